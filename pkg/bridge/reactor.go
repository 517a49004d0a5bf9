// Package bridge implements the Multiplexer/EventLoop and TimerService:
// the single reactor that owns the serial descriptor, the optional TUN
// device, stdin, and all 256 ChannelEndpoints.
//
// The event loop is single-threaded and cooperative, with one multi-source
// wait point. Go's idiomatic rendering of that shape is a goroutine per
// I/O source feeding a Go channel, with one consumer goroutine
// (Reactor.Run) doing a central select: several reader goroutines, zero
// shared mutable state, one consumer goroutine holds everything. The
// reactor goroutine is the only writer to the serial descriptor and the
// only mutator of Link state, so no lock is needed there.
package bridge

import (
	"context"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/rethos/rethos/pkg/channel"
	"github.com/rethos/rethos/pkg/chanconfig"
	"github.com/rethos/rethos/pkg/link"
	"github.com/rethos/rethos/pkg/proto"
	"github.com/rethos/rethos/pkg/stats"
	"github.com/rethos/rethos/pkg/store"
)

// Command-channel opcodes.
const (
	cmdGetMCUIPAddr     = 0x01
	rspGetMCUIPAddr     = 0x11
	statsTickPeriod     = 15 * time.Second
	rexmitTickPeriod    = 100 * time.Millisecond
	ipAddrTickPeriod    = 20 * time.Second
	serialReadChunkSize = 4096
)

// SerialIO is the narrow interface Reactor needs from the serial
// descriptor. *serialport.Port satisfies it; tests use a fake.
type SerialIO interface {
	Read([]byte) (int, error)
	Write([]byte) (int, error)
}

// TunIO is the narrow interface Reactor needs from the TUN device.
// *tundev.Device satisfies it; tests use a fake.
type TunIO interface {
	Read([]byte) (int, error)
	Write([]byte) (int, error)
	MCUAddress() net.IP
}

type outboundItem struct {
	channel uint8
	payload []byte
}

// Reactor is the REthos bridge's central event loop.
type Reactor struct {
	serial    SerialIO
	link      *link.Link
	decoder   *proto.Decoder
	encoder   proto.Encoder
	collector *stats.Collector
	channels  [stats.NumChannels]*channel.Endpoint
	tun       TunIO
	st        *store.Store
	chanMeta  *chanconfig.Config

	sessionID int64

	inbound      chan channel.Message
	serialChunks chan []byte
	serialErr    chan error
	stdinChunks  chan []byte
	tunPackets   chan []byte

	outbound []outboundItem
}

// Config gathers the dependencies a Reactor needs to run.
type Config struct {
	Serial    SerialIO
	Collector *stats.Collector
	Channels  [stats.NumChannels]*channel.Endpoint
	TUN       TunIO        // nil if no IPv6 prefix was configured
	Store     *store.Store // nil disables history persistence
	ChanMeta  *chanconfig.Config
}

// New builds a Reactor from its dependencies. Call Run to start it.
func New(cfg Config) *Reactor {
	return &Reactor{
		serial:       cfg.Serial,
		decoder:      proto.NewDecoder(),
		collector:    cfg.Collector,
		channels:     cfg.Channels,
		tun:          cfg.TUN,
		st:           cfg.Store,
		chanMeta:     cfg.ChanMeta,
		inbound:      make(chan channel.Message, 64),
		serialChunks: make(chan []byte, 16),
		serialErr:    make(chan error, 1),
		stdinChunks:  make(chan []byte, 16),
		tunPackets:   make(chan []byte, 16),
	}
}

// Run starts all reader goroutines and blocks servicing the event loop
// until ctx is cancelled or a fatal error occurs (serial EOF/error is
// fatal). It returns nil on clean cancellation.
func (r *Reactor) Run(ctx context.Context) error {
	r.link = link.New(r.sendFrame, r.collector)

	if r.st != nil {
		id, err := r.st.StartSession(ctx)
		if err != nil {
			log.Error().Err(err).Msg("failed to record link session start")
		} else {
			r.sessionID = id
		}
	}

	go r.readSerial()
	go r.readStdin()
	for i := range r.channels {
		ep := r.channels[i]
		go ep.Run(r.inbound)
	}
	if r.tun != nil {
		go r.readTun()
	}

	statsTicker := time.NewTicker(statsTickPeriod)
	defer statsTicker.Stop()
	rexmitTicker := time.NewTicker(rexmitTickPeriod)
	defer rexmitTicker.Stop()
	ipAddrTicker := time.NewTicker(ipAddrTickPeriod)
	defer ipAddrTicker.Stop()

	var tunPackets <-chan []byte
	if r.tun != nil {
		tunPackets = r.tunPackets
	}

	for {
		select {
		case <-ctx.Done():
			r.closeSession(context.Background())
			return nil

		case err := <-r.serialErr:
			r.closeSession(context.Background())
			return fmt.Errorf("bridge: serial read failed: %w", err)

		case chunk := <-r.serialChunks:
			r.handleSerialChunk(chunk)

		case chunk, ok := <-r.stdinChunks:
			if !ok {
				r.stdinChunks = nil
				continue
			}
			r.handleLocalPayload(proto.ChannelStdin, chunk)

		case pkt := <-tunPackets:
			r.handleLocalPayload(proto.ChannelTunTap, pkt)

		case msg := <-r.inbound:
			r.handleLocalPayload(msg.Channel, msg.Payload)

		case <-rexmitTicker.C:
			if err := r.link.OnRexmitTick(); err != nil {
				log.Error().Err(err).Msg("rexmit tick failed")
			}

		case <-statsTicker.C:
			r.onStatsTick(ctx)

		case <-ipAddrTicker.C:
			r.onIPAddrTick()
		}

		r.drainOutbound()
	}
}

func (r *Reactor) closeSession(ctx context.Context) {
	if r.st == nil || r.sessionID == 0 {
		return
	}
	snap := r.collector.TakeSnapshot()
	if err := r.st.EndSession(ctx, r.sessionID, snap.LostFrames, snap.BadFrames); err != nil {
		log.Error().Err(err).Msg("failed to record link session end")
	}
}

// readSerial reads chunks from the serial descriptor and forwards them to
// the reactor goroutine. A read error is fatal.
func (r *Reactor) readSerial() {
	buf := make([]byte, serialReadChunkSize)
	for {
		n, err := r.serial.Read(buf)
		if err != nil {
			r.serialErr <- err
			return
		}
		if n == 0 {
			continue
		}
		chunk := make([]byte, n)
		copy(chunk, buf[:n])
		r.serialChunks <- chunk
	}
}

// readStdin reads arbitrary bytes from the process's standard input,
// forwarding them as channel 1 outbound data. EOF removes stdin from the
// wait set permanently; it is not fatal to the bridge as a whole.
func (r *Reactor) readStdin() {
	buf := make([]byte, 4096)
	for {
		n, err := os.Stdin.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			r.stdinChunks <- chunk
		}
		if err != nil {
			close(r.stdinChunks)
			return
		}
	}
}

// readTun reads whole IP packets from the TUN device, forwarding them as
// channel 3 outbound data.
func (r *Reactor) readTun() {
	buf := make([]byte, proto.MTU)
	for {
		n, err := r.tun.Read(buf)
		if err != nil {
			log.Error().Err(err).Msg("tun read failed")
			return
		}
		if n == 0 {
			continue
		}
		pkt := make([]byte, n)
		copy(pkt, buf[:n])
		r.tunPackets <- pkt
	}
}

// sendFrame encodes and writes one frame to the serial descriptor. It is
// the single choke point every outbound byte passes through: Link's ACKs
// and retransmissions and the reactor's NACKs all call it directly, bypassing the outbound
// queue by design, since a retransmission triggered by the timer must
// precede any new frame composed in the same iteration. drainOutbound
// uses it indirectly via Link.SendData.
func (r *Reactor) sendFrame(f proto.Frame) error {
	buf := r.encoder.Encode(f)
	_, err := r.serial.Write(buf)
	return err
}

// sendNACK emits a bare NACK frame, used when the decoder drops a frame.
func (r *Reactor) sendNACK() {
	if err := r.sendFrame(proto.NewNACK()); err != nil {
		log.Error().Err(err).Msg("failed to send NACK")
	}
}
