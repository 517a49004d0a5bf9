package link

import (
	"bytes"
	"testing"

	"github.com/rethos/rethos/pkg/proto"
)

type fakeSink struct{ lost uint64 }

func (s *fakeSink) AddLostFrames(n uint64) { s.lost += n }

type sentFrame struct {
	frame proto.Frame
}

func newTestLink() (*Link, *[]sentFrame, *fakeSink) {
	var sent []sentFrame
	sink := &fakeSink{}
	l := New(func(f proto.Frame) error {
		sent = append(sent, sentFrame{frame: f})
		return nil
	}, sink)
	return l, &sent, sink
}

func TestSendDataIncrementsSeqAndArmsSlot(t *testing.T) {
	l, sent, _ := newTestLink()
	if !l.IsIdle() {
		t.Fatalf("fresh link should be idle")
	}
	if err := l.SendData(4, []byte("x")); err != nil {
		t.Fatalf("SendData: %v", err)
	}
	if l.IsIdle() {
		t.Fatalf("link should not be idle after SendData")
	}
	if len(*sent) != 1 || (*sent)[0].frame.Seq != 1 {
		t.Fatalf("expected one DATA frame with seq 1, got %+v", *sent)
	}
}

func TestAckCancelsRexmit(t *testing.T) {
	l, _, _ := newTestLink()
	_ = l.SendData(1, []byte("a"))
	l.OnAck(1)
	if !l.IsIdle() {
		t.Fatalf("ACK for the outstanding seq should return link to idle")
	}
}

func TestAckMismatchLeavesStateUnchanged(t *testing.T) {
	l, _, _ := newTestLink()
	_ = l.SendData(1, []byte("a"))
	l.OnAck(99)
	if l.IsIdle() {
		t.Fatalf("ACK for the wrong seq must not clear the outstanding frame")
	}
}

func TestRexmitTickResendsUnackedFrame(t *testing.T) {
	l, sent, _ := newTestLink()
	_ = l.SendData(1, []byte("a"))
	*sent = nil

	if err := l.OnRexmitTick(); err != nil {
		t.Fatalf("OnRexmitTick: %v", err)
	}
	if len(*sent) != 1 || (*sent)[0].frame.Seq != 1 {
		t.Fatalf("expected exactly one retransmission with seq 1, got %+v", *sent)
	}

	l.OnAck(1)
	*sent = nil
	if err := l.OnRexmitTick(); err != nil {
		t.Fatalf("OnRexmitTick after ack: %v", err)
	}
	if len(*sent) != 0 {
		t.Fatalf("expected no further retransmissions after ack, got %+v", *sent)
	}
}

func TestNackWhenIdleReAcksLastReceived(t *testing.T) {
	l, sent, _ := newTestLink()
	if _, err := l.HandleInboundData(5, []byte("payload")); err != nil {
		t.Fatalf("HandleInboundData: %v", err)
	}
	*sent = nil

	if err := l.OnNack(); err != nil {
		t.Fatalf("OnNack: %v", err)
	}
	if len(*sent) != 1 || (*sent)[0].frame.Type != proto.FrameACK || (*sent)[0].frame.Seq != 5 {
		t.Fatalf("expected a re-ACK of seq 5, got %+v", *sent)
	}
}

func TestNackWhenIdleAndNothingEverReceivedIsNoop(t *testing.T) {
	l, sent, _ := newTestLink()
	if err := l.OnNack(); err != nil {
		t.Fatalf("OnNack: %v", err)
	}
	if len(*sent) != 0 {
		t.Fatalf("expected no frames sent, got %+v", *sent)
	}
}

func TestNackWhenOutstandingRetransmitsImmediately(t *testing.T) {
	l, sent, _ := newTestLink()
	_ = l.SendData(2, []byte("z"))
	*sent = nil

	if err := l.OnNack(); err != nil {
		t.Fatalf("OnNack: %v", err)
	}
	if len(*sent) != 1 || (*sent)[0].frame.Type != proto.FrameData || (*sent)[0].frame.Seq != 1 {
		t.Fatalf("expected immediate retransmission of the outstanding DATA frame, got %+v", *sent)
	}
}

func TestDuplicateSuppressionAndAck(t *testing.T) {
	l, sent, _ := newTestLink()

	res1, err := l.HandleInboundData(5, []byte("A"))
	if err != nil {
		t.Fatalf("HandleInboundData: %v", err)
	}
	if res1.Duplicate || !res1.Deliver || !bytes.Equal(res1.Payload, []byte("A")) {
		t.Fatalf("first arrival should deliver, got %+v", res1)
	}

	res2, err := l.HandleInboundData(5, []byte("A"))
	if err != nil {
		t.Fatalf("HandleInboundData (dup): %v", err)
	}
	if !res2.Duplicate || res2.Deliver {
		t.Fatalf("second arrival of the same seq should be a suppressed duplicate, got %+v", res2)
	}

	acks := 0
	for _, s := range *sent {
		if s.frame.Type == proto.FrameACK && s.frame.Seq == 5 {
			acks++
		}
	}
	if acks != 2 {
		t.Fatalf("expected both arrivals (including the duplicate) to produce an ACK(5), got %d", acks)
	}
}

func TestLostFramesCountsSequenceGaps(t *testing.T) {
	l, _, sink := newTestLink()
	if _, err := l.HandleInboundData(1, []byte("a")); err != nil {
		t.Fatalf("HandleInboundData: %v", err)
	}
	if sink.lost != 0 {
		t.Fatalf("no gap expected for the first frame, got lost=%d", sink.lost)
	}
	if _, err := l.HandleInboundData(5, []byte("b")); err != nil {
		t.Fatalf("HandleInboundData: %v", err)
	}
	if sink.lost != 3 {
		t.Fatalf("expected a gap of 3 (seqs 2,3,4), got %d", sink.lost)
	}
}

func TestEmptyPayloadCountsButDoesNotDeliver(t *testing.T) {
	l, _, _ := newTestLink()
	res, err := l.HandleInboundData(1, nil)
	if err != nil {
		t.Fatalf("HandleInboundData: %v", err)
	}
	if res.Deliver || res.Duplicate {
		t.Fatalf("empty payload should be counted as received but not delivered: %+v", res)
	}
}
