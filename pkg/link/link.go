// Package link implements the stop-and-wait reliability state machine:
// one outstanding DATA frame per direction, ACK/NACK handling, duplicate
// suppression, and sequence-gap loss accounting. At most one frame is ever
// in flight, so the outstanding-frame state is a single slot rather than a
// window.
package link

import "github.com/rethos/rethos/pkg/proto"

// LossSink is the narrow counter interface Link needs; pkg/stats.Collector
// satisfies it.
type LossSink interface {
	AddLostFrames(n uint64)
}

// Sender transmits a frame on the wire. The reactor supplies an
// implementation that encodes the frame and writes it to the serial
// descriptor; this package never touches I/O directly so it stays testable
// with a fake.
type Sender func(proto.Frame) error

// Link holds the per-process link state: one outbound retransmit slot and
// the inbound duplicate-suppression state.
type Link struct {
	send Sender
	loss LossSink

	outSeq      uint16
	rexmit      *proto.Frame
	rexmitAcked bool

	lastRcvdSeq       uint16
	receivedDataFrame bool
}

// New returns a Link in its startup state: idle, with no data frame ever
// received, so nothing stale can ever be retransmitted or acked.
func New(send Sender, loss LossSink) *Link {
	return &Link{send: send, loss: loss, rexmitAcked: true}
}

// IsIdle reports whether there is no outstanding unacknowledged DATA frame.
// The reactor must only originate a new outbound DATA frame when this is
// true; the stop-and-wait invariant of at most one unacked frame is
// enforced by the caller never invoking SendData otherwise.
func (l *Link) IsIdle() bool {
	return l.rexmitAcked
}

// SendData assigns the next outbound sequence number, emits a DATA frame on
// channel, and arms the retransmit slot. Callers must only call this when
// IsIdle() is true.
func (l *Link) SendData(channel uint8, payload []byte) error {
	l.outSeq++
	frame := proto.NewData(l.outSeq, channel, payload)
	l.rexmit = &frame
	l.rexmitAcked = false
	return l.send(frame)
}

// OnAck processes a received ACK frame. ACKs for any sequence number other
// than the one currently outstanding are ignored and leave state unchanged.
func (l *Link) OnAck(seq uint16) {
	if l.rexmitAcked || l.rexmit == nil {
		return
	}
	if seq != l.rexmit.Seq {
		return
	}
	l.rexmitAcked = true
}

// OnNack processes a received NACK frame: if nothing is outstanding, a NACK
// is treated as a symptom of a lost/corrupted ACK and answered by re-acking
// the last frame we actually received (if any); otherwise the stored DATA
// frame is retransmitted immediately.
func (l *Link) OnNack() error {
	if l.rexmitAcked {
		if l.receivedDataFrame {
			return l.send(proto.NewACK(l.lastRcvdSeq))
		}
		return nil
	}
	return l.send(*l.rexmit)
}

// OnRexmitTick re-emits the stored DATA frame unchanged if one is still
// outstanding. The reactor calls this from the 100ms retransmit timer; Link
// itself owns no timer, since timers are first-class event-loop sources,
// not embedded in link state.
func (l *Link) OnRexmitTick() error {
	if l.rexmitAcked || l.rexmit == nil {
		return nil
	}
	return l.send(*l.rexmit)
}

// InboundResult describes what the reactor should do after an inbound DATA
// frame on a non-reserved channel.
type InboundResult struct {
	Duplicate bool
	Deliver   bool
	Payload   []byte
}

// HandleInboundData handles an inbound DATA frame for any channel other
// than the reserved control channel: it always ACKs first, then applies
// duplicate suppression and loss accounting, in that order, so the ACK
// always precedes local delivery of the payload.
func (l *Link) HandleInboundData(seq uint16, payload []byte) (InboundResult, error) {
	if err := l.send(proto.NewACK(seq)); err != nil {
		return InboundResult{}, err
	}

	if l.receivedDataFrame && seq == l.lastRcvdSeq {
		return InboundResult{Duplicate: true}, nil
	}

	gap := uint16(seq - l.lastRcvdSeq - 1)
	if l.loss != nil {
		l.loss.AddLostFrames(uint64(gap))
	}

	l.lastRcvdSeq = seq
	l.receivedDataFrame = true

	if len(payload) == 0 {
		return InboundResult{Deliver: false}, nil
	}
	return InboundResult{Deliver: true, Payload: payload}, nil
}
