// Package channel implements the local ChannelEndpoint abstraction: one
// local stream socket per logical channel, accepting at most one client at
// a time, with length-prefixed message framing.
package channel

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/rs/zerolog/log"
)

// MaxMessageSize bounds a single client message; it matches the protocol
// MTU since a channel payload can never exceed it.
const MaxMessageSize = 16384

// ErrNotConnected is returned by Send when no client is currently attached.
var ErrNotConnected = errors.New("channel: no client connected")

// Message is one payload received from a channel's client, tagged with the
// channel it arrived on so the reactor can multiplex many endpoints onto a
// single inbound Go channel.
type Message struct {
	Channel uint8
	Payload []byte
}

// socketName returns the abstract-namespace address for channel c. The
// leading '@' tells net.Listen("unix", ...) to use Linux's abstract
// namespace instead of a filesystem path.
func socketName(c uint8) string {
	return fmt.Sprintf("@rethos/%d", c)
}

// Endpoint owns the listener/client pair for one channel. Exactly one of
// the two is active at a time, enforced by Run: accepting a
// connection closes the listener, and the client's disconnect reopens it.
type Endpoint struct {
	channel uint8

	mu       sync.Mutex
	listener net.Listener
	conn     net.Conn
}

// New creates the endpoint's listener for channel c. The caller must call
// Run to start accepting clients.
func New(c uint8) (*Endpoint, error) {
	l, err := net.Listen("unix", socketName(c))
	if err != nil {
		return nil, fmt.Errorf("channel %d: listen: %w", c, err)
	}
	return &Endpoint{channel: c, listener: l}, nil
}

// Connected reports whether a client is currently attached.
func (e *Endpoint) Connected() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.conn != nil
}

// Run accepts clients forever, forwarding each message read from the
// attached client onto inbound. It returns when the endpoint is closed via
// Close (called on shutdown) or when accepting a client fails.
func (e *Endpoint) Run(inbound chan<- Message) {
	for {
		e.mu.Lock()
		l := e.listener
		e.mu.Unlock()
		if l == nil {
			return
		}

		conn, err := l.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			log.Error().Err(err).Uint8("channel", e.channel).Msg("channel accept failed")
			return
		}

		e.attach(conn)
		e.serveClient(conn, inbound)
		e.detach(conn)
	}
}

// attach withdraws the listener and records the new client connection.
func (e *Endpoint) attach(conn net.Conn) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.listener != nil {
		_ = e.listener.Close()
		e.listener = nil
	}
	e.conn = conn
	log.Debug().Uint8("channel", e.channel).Msg("client attached")
}

// detach clears the client and rebinds a fresh listener at the same
// address, restoring the channel to its pre-client state.
func (e *Endpoint) detach(conn net.Conn) {
	_ = conn.Close()

	e.mu.Lock()
	if e.conn != conn {
		// Close already tore the endpoint down; do not rebind.
		e.mu.Unlock()
		return
	}
	e.conn = nil
	alreadyClosed := e.listener != nil
	e.mu.Unlock()

	if alreadyClosed {
		return
	}

	l, err := net.Listen("unix", socketName(e.channel))
	if err != nil {
		log.Error().Err(err).Uint8("channel", e.channel).Msg("failed to rebind channel listener")
		return
	}

	e.mu.Lock()
	e.listener = l
	e.mu.Unlock()
	log.Debug().Uint8("channel", e.channel).Msg("client detached, listener restored")
}

// serveClient reads length-prefixed messages from conn until EOF or error,
// forwarding each to inbound. A partial read or client EOF is recoverable:
// it ends this client's session without affecting the channel.
func (e *Endpoint) serveClient(conn net.Conn, inbound chan<- Message) {
	for {
		payload, err := readMessage(conn)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				log.Debug().Err(err).Uint8("channel", e.channel).Msg("client read error, closing")
			}
			return
		}
		inbound <- Message{Channel: e.channel, Payload: payload}
	}
}

// Send writes payload to the attached client, length-prefixed. Returns
// ErrNotConnected if no client is attached (the reactor turns this into a
// drop_notconnected counter increment).
func (e *Endpoint) Send(payload []byte) error {
	e.mu.Lock()
	conn := e.conn
	e.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}
	return writeMessage(conn, payload)
}

// Close tears down whatever is currently active (listener or client),
// used only at process shutdown.
func (e *Endpoint) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	var err error
	if e.conn != nil {
		err = e.conn.Close()
		e.conn = nil
	}
	if e.listener != nil {
		if lerr := e.listener.Close(); lerr != nil && err == nil {
			err = lerr
		}
		e.listener = nil
	}
	return err
}

// readMessage reads one u32-big-endian-length-prefixed message.
func readMessage(r io.Reader) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	if n > MaxMessageSize {
		return nil, fmt.Errorf("channel: message length %d exceeds max %d", n, MaxMessageSize)
	}
	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, err
	}
	return payload, nil
}

// writeMessage writes one u32-big-endian-length-prefixed message.
func writeMessage(w io.Writer, payload []byte) error {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(payload)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err := w.Write(payload)
	return err
}
