package bridge

import (
	"bytes"
	"context"
	"net"
	"os"

	"github.com/rs/zerolog/log"

	"github.com/rethos/rethos/pkg/proto"
)

// handleSerialChunk feeds each byte of a just-read serial chunk to the
// decoder, one byte at a time.
func (r *Reactor) handleSerialChunk(chunk []byte) {
	for _, b := range chunk {
		event, frame := r.decoder.Feed(b)
		switch event {
		case proto.EventFrameReady:
			r.handleFrame(frame)
		case proto.EventFrameDropped:
			r.collector.AddBadFrame()
			r.sendNACK()
		case proto.EventStray:
			log.Debug().Msg("stray byte before frame sync")
		}
	}
}

// handleFrame dispatches one successfully decoded frame. serial_received
// counts every frame that reaches here, regardless of type, channel, or
// whether it turns out to be a duplicate.
func (r *Reactor) handleFrame(f proto.Frame) {
	r.collector.RecordSerialReceived(f.Channel)

	switch f.Type {
	case proto.FrameACK:
		r.link.OnAck(f.Seq)

	case proto.FrameNACK:
		if err := r.link.OnNack(); err != nil {
			log.Error().Err(err).Msg("failed to respond to NACK")
		}

	case proto.FrameHB, proto.FrameHBReply:
		log.Debug().Str("type", f.Type.String()).Msg("heartbeat frame received (no action taken)")

	case proto.FrameData:
		r.handleDataFrame(f)

	default:
		log.Warn().Uint8("type", uint8(f.Type)).Msg("unknown frame type")
	}
}

// handleDataFrame handles an inbound DATA frame, splitting the reserved
// control channel (ACK/NACK-only) from all others.
func (r *Reactor) handleDataFrame(f proto.Frame) {
	if f.Channel == proto.ChannelCtrl {
		log.Warn().Msg("DATA frame received on reserved control channel, ignoring")
		return
	}

	res, err := r.link.HandleInboundData(f.Seq, f.Payload)
	if err != nil {
		log.Error().Err(err).Msg("failed to handle inbound DATA frame")
		return
	}
	if res.Duplicate || !res.Deliver {
		return
	}

	r.deliverFromSerial(f.Channel, res.Payload)
}

// deliverFromSerial applies the per-channel delivery policy to a payload
// that just arrived from the MCU over the serial link.
func (r *Reactor) deliverFromSerial(ch uint8, payload []byte) {
	switch ch {
	case proto.ChannelStdin:
		if _, err := os.Stdout.Write(payload); err != nil {
			log.Error().Err(err).Msg("failed to write channel 1 payload to stdout")
		}
		r.deliverToClient(ch, payload, false)

	case proto.ChannelCmd:
		r.handleCmdPayload(payload)
		r.deliverToClient(ch, payload, true)

	case proto.ChannelTunTap:
		if r.tun != nil {
			if _, err := r.tun.Write(payload); err != nil {
				log.Error().Err(err).Msg("failed to write channel 3 payload to tun device")
			}
		}
		r.deliverToClient(ch, payload, false)

	default:
		r.deliverToClient(ch, payload, true)
	}
}

// deliverToClient writes payload to ch's attached client, if any, or
// counts the drop. countGlobal is false for channels 1 and 3, whose
// primary sinks are stdout and the TUN device respectively.
func (r *Reactor) deliverToClient(ch uint8, payload []byte, countGlobal bool) {
	ep := r.channels[ch]
	if ep == nil || !ep.Connected() {
		r.collector.RecordDropNotConnected(ch, countGlobal)
		return
	}
	if err := ep.Send(payload); err != nil {
		r.collector.RecordDropNotConnected(ch, countGlobal)
		return
	}
	r.collector.RecordDomainForwarded(ch)
}

// handleCmdPayload interprets a channel-2 payload's opcode.
func (r *Reactor) handleCmdPayload(payload []byte) {
	if len(payload) == 0 {
		return
	}
	switch payload[0] {
	case cmdGetMCUIPAddr:
		r.queueMCUAddrReply()
	default:
		log.Debug().Uint8("opcode", payload[0]).Msg("unknown cmd channel opcode")
	}
}

// queueMCUAddrReply enqueues the RSP_GET_MCU_IP_ADDR DATA frame on channel
// 2. If no TUN device is configured, the address is all zeros: with no
// prefix, the tuntap channel is inert and there is no MCU address to
// report.
func (r *Reactor) queueMCUAddrReply() {
	addr := make(net.IP, 16)
	if r.tun != nil {
		copy(addr, r.tun.MCUAddress().To16())
	}

	payload := make([]byte, 0, 17)
	payload = append(payload, rspGetMCUIPAddr)
	payload = append(payload, addr...)

	r.enqueueOutbound(proto.ChannelCmd, payload)

	if r.st != nil && r.tun != nil {
		if err := r.st.RecordMCUAddress(context.Background(), addr.String()); err != nil {
			log.Error().Err(err).Msg("failed to record mcu address observation")
		}
	}
}

// handleLocalPayload is the common path for stdin bytes, TUN packets, and
// client messages: all three become outbound DATA frames on the channel
// they arrived on.
func (r *Reactor) handleLocalPayload(ch uint8, payload []byte) {
	r.collector.RecordDomainReceived(ch)
	r.enqueueOutbound(ch, payload)
}

func (r *Reactor) enqueueOutbound(ch uint8, payload []byte) {
	r.outbound = append(r.outbound, outboundItem{channel: ch, payload: payload})
}

// drainOutbound sends queued outbound payloads one at a time while the
// link is idle, preserving the single-outstanding-frame invariant. Called
// once per reactor iteration, after the event that may have freed the
// link (an ACK) or produced new outbound work.
func (r *Reactor) drainOutbound() {
	for len(r.outbound) > 0 && r.link.IsIdle() {
		item := r.outbound[0]
		r.outbound = r.outbound[1:]
		if err := r.link.SendData(item.channel, item.payload); err != nil {
			log.Error().Err(err).Uint8("channel", item.channel).Msg("failed to send outbound DATA frame")
			continue
		}
		r.collector.RecordSerialForwarded(item.channel)
	}
}

// onStatsTick implements the 15s stats timer: print the human-readable
// summary, push the binary record to channel 0's client if attached, and
// persist a snapshot for history.
func (r *Reactor) onStatsTick(ctx context.Context) {
	log.Info().Msg(r.collector.Text())

	if ep := r.channels[proto.ChannelCtrl]; ep != nil && ep.Connected() {
		var buf bytes.Buffer
		if err := r.collector.WriteBinary(&buf); err != nil {
			log.Error().Err(err).Msg("failed to encode stats record")
		} else if err := ep.Send(buf.Bytes()); err != nil {
			log.Debug().Err(err).Msg("failed to push stats record to control channel client")
		}
	}

	if r.st != nil {
		if err := r.st.RecordSnapshot(ctx, r.collector.TakeSnapshot()); err != nil {
			log.Error().Err(err).Msg("failed to persist stats snapshot")
		}
	}
}

// onIPAddrTick implements the 20s unsolicited MCU-address broadcast.
func (r *Reactor) onIPAddrTick() {
	if r.tun == nil {
		return
	}
	r.queueMCUAddrReply()
}
