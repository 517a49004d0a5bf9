package proto

import "fmt"

// MTU is the maximum DATA frame payload size in bytes.
const MTU = 16384

// Wire framing bytes.
const (
	escByte   byte = 0xBE
	startByte byte = 0xEF
	endByte   byte = 0xE5
	literal   byte = 0x55
)

// FrameType identifies the kind of frame carried on the wire.
type FrameType uint8

const (
	FrameData    FrameType = 1
	FrameHB      FrameType = 2
	FrameHBReply FrameType = 3
	FrameACK     FrameType = 4
	FrameNACK    FrameType = 5
)

func (t FrameType) String() string {
	switch t {
	case FrameData:
		return "DATA"
	case FrameHB:
		return "HB"
	case FrameHBReply:
		return "HB_REPLY"
	case FrameACK:
		return "ACK"
	case FrameNACK:
		return "NACK"
	default:
		return fmt.Sprintf("FrameType(%d)", uint8(t))
	}
}

// Reserved channel numbers.
const (
	ChannelCtrl   uint8 = 0
	ChannelStdin  uint8 = 1
	ChannelCmd    uint8 = 2
	ChannelTunTap uint8 = 3
)

// Frame is a single decoded or to-be-encoded protocol unit.
type Frame struct {
	Type    FrameType
	Seq     uint16
	Channel uint8
	Payload []byte
}

// NewACK builds the ACK frame for a given received sequence number.
func NewACK(seq uint16) Frame {
	return Frame{Type: FrameACK, Seq: seq, Channel: ChannelCtrl}
}

// NewNACK builds the NACK frame. Its seqno field is always 0 on emission
// (spec leaves a future "seqno = highest received" meaning open; this
// implementation does not adopt it, see DESIGN.md).
func NewNACK() Frame {
	return Frame{Type: FrameNACK, Seq: 0, Channel: ChannelCtrl}
}

// NewData builds a DATA frame for the given channel and payload.
func NewData(seq uint16, channel uint8, payload []byte) Frame {
	return Frame{Type: FrameData, Seq: seq, Channel: channel, Payload: payload}
}
