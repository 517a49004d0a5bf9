package proto

// Encoder turns a Frame into its on-wire byte representation: start marker,
// escaped preamble+payload, end marker, escaped checksum.
type Encoder struct{}

// Encode renders a frame to wire bytes.
func (Encoder) Encode(f Frame) []byte {
	if len(f.Payload) > MTU {
		panic("proto: payload exceeds MTU")
	}

	preamble := make([]byte, 0, 4+len(f.Payload))
	preamble = append(preamble, byte(f.Type), byte(f.Seq), byte(f.Seq>>8), f.Channel)
	preamble = append(preamble, f.Payload...)

	ck := fletcher16(preamble)

	out := make([]byte, 0, len(preamble)*2+8)
	out = append(out, escByte, startByte)
	out = appendEscaped(out, preamble)
	out = append(out, escByte, endByte)
	out = appendEscaped(out, []byte{byte(ck), byte(ck >> 8)})
	return out
}

// appendEscaped appends data to out, escaping any literal ESC (0xBE) byte
// as ESC 0x55.
func appendEscaped(out []byte, data []byte) []byte {
	for _, b := range data {
		if b == escByte {
			out = append(out, escByte, literal)
		} else {
			out = append(out, b)
		}
	}
	return out
}

// decState is the decoder's position within a frame.
type decState int

const (
	decWaitStart decState = iota
	decType
	decSeqLo
	decSeqHi
	decChannel
	decPayload
	decChecksum1
	decChecksum2
)

// EventKind classifies what a single Decoder.Feed call produced.
type EventKind int

const (
	// EventNone means the byte was consumed with no frame-level event yet.
	EventNone EventKind = iota
	// EventFrameReady means a frame with a valid checksum is available.
	EventFrameReady
	// EventFrameDropped means a frame was discarded: bad checksum,
	// unexpected escape, payload overflow, or a mid-frame restart.
	EventFrameDropped
	// EventStray means a byte arrived outside of frame sync (before the
	// first start marker, or an unexpected escape/end marker while idle).
	// Per spec this is logged but never counted as a bad frame.
	EventStray
)

// Decoder is an incremental, one-byte-at-a-time frame parser. It holds no
// I/O; callers feed it bytes from any source (serial line, test vectors).
type Decoder struct {
	state     decState
	inEscape  bool
	ck        Fletcher16
	frameType FrameType
	seqLo     byte
	seq       uint16
	channel   uint8
	payload   []byte
	ckLo      byte
}

// NewDecoder returns a Decoder ready to consume bytes from a fresh stream.
func NewDecoder() *Decoder {
	return &Decoder{state: decWaitStart}
}

// Feed consumes one raw byte and returns the resulting event. When the
// event is EventFrameReady, the returned Frame is valid and owns its own
// payload slice (safe to retain across calls).
func (d *Decoder) Feed(b byte) (EventKind, Frame) {
	if d.inEscape {
		d.inEscape = false
		return d.feedEscaped(b)
	}
	if b == escByte {
		d.inEscape = true
		return EventNone, Frame{}
	}
	return d.feedPlain(b)
}

func (d *Decoder) feedEscaped(code byte) (EventKind, Frame) {
	switch code {
	case startByte:
		if d.state == decWaitStart {
			d.beginFrame()
			return EventNone, Frame{}
		}
		// Mid-frame restart: a new start marker appeared before the
		// current frame finished. Drop what we had and start fresh.
		d.beginFrame()
		return EventFrameDropped, Frame{}
	case endByte:
		if d.state == decPayload {
			d.state = decChecksum1
			return EventNone, Frame{}
		}
		if d.state == decWaitStart {
			return EventStray, Frame{}
		}
		// Saw an end marker while still in the header fields or in the
		// checksum bytes: the frame is malformed, drop it.
		d.resetToIdle()
		return EventFrameDropped, Frame{}
	case literal:
		if d.state == decWaitStart {
			return EventStray, Frame{}
		}
		return d.consumeByte(escByte)
	default:
		// Any other byte after ESC is a protocol error.
		if d.state == decWaitStart {
			return EventStray, Frame{}
		}
		d.resetToIdle()
		return EventFrameDropped, Frame{}
	}
}

func (d *Decoder) feedPlain(b byte) (EventKind, Frame) {
	if d.state == decWaitStart {
		return EventStray, Frame{}
	}
	return d.consumeByte(b)
}

// consumeByte advances the header/payload/checksum field machine by one
// data byte (already unescaped if necessary).
func (d *Decoder) consumeByte(b byte) (EventKind, Frame) {
	switch d.state {
	case decType:
		d.frameType = FrameType(b)
		d.ck.WriteByte(b)
		d.state = decSeqLo
		return EventNone, Frame{}
	case decSeqLo:
		d.seqLo = b
		d.ck.WriteByte(b)
		d.state = decSeqHi
		return EventNone, Frame{}
	case decSeqHi:
		d.seq = uint16(d.seqLo) | uint16(b)<<8
		d.ck.WriteByte(b)
		d.state = decChannel
		return EventNone, Frame{}
	case decChannel:
		d.channel = b
		d.ck.WriteByte(b)
		d.state = decPayload
		return EventNone, Frame{}
	case decPayload:
		if len(d.payload) >= MTU {
			d.resetToIdle()
			return EventFrameDropped, Frame{}
		}
		d.payload = append(d.payload, b)
		d.ck.WriteByte(b)
		return EventNone, Frame{}
	case decChecksum1:
		d.ckLo = b
		d.state = decChecksum2
		return EventNone, Frame{}
	case decChecksum2:
		want := d.ck.Sum16()
		got := uint16(d.ckLo) | uint16(b)<<8
		frame := Frame{Type: d.frameType, Seq: d.seq, Channel: d.channel, Payload: d.payload}
		d.resetToIdle()
		if got != want {
			return EventFrameDropped, Frame{}
		}
		return EventFrameReady, frame
	default:
		return EventNone, Frame{}
	}
}

func (d *Decoder) beginFrame() {
	d.state = decType
	d.ck.Reset()
	d.payload = nil
}

func (d *Decoder) resetToIdle() {
	d.state = decWaitStart
	d.payload = nil
}
