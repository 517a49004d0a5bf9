package stats

import (
	"bytes"
	"encoding/binary"
	"testing"
)

func TestWriteBinarySizeAndLayout(t *testing.T) {
	c := NewCollector()
	c.Global.SerialReceived.Store(11)
	c.Channels[7].DomainForwarded.Store(22)

	var buf bytes.Buffer
	if err := c.WriteBinary(&buf); err != nil {
		t.Fatalf("WriteBinary: %v", err)
	}
	if buf.Len() != RecordSize {
		t.Fatalf("record size mismatch: got %d want %d", buf.Len(), RecordSize)
	}

	data := buf.Bytes()
	if got := binary.LittleEndian.Uint64(data[0:8]); got != 11 {
		t.Fatalf("global serial_received mismatch: %d", got)
	}

	chanOffset := globalFields*8 + 7*channelFields*8 + 8 // skip SerialReceived field of channel 7
	if got := binary.LittleEndian.Uint64(data[chanOffset : chanOffset+8]); got != 22 {
		t.Fatalf("channel 7 domain_forwarded mismatch: %d", got)
	}
}

func TestAddBadFrameIncrementsBoth(t *testing.T) {
	c := NewCollector()
	c.AddBadFrame()
	if c.Global.BadFrames.Load() != 1 || c.Global.LostFrames.Load() != 1 {
		t.Fatalf("expected bad_frames and lost_frames both at 1")
	}
}

func TestDropNotConnectedRespectsGlobalFlag(t *testing.T) {
	c := NewCollector()
	c.RecordDropNotConnected(1, false) // stdin channel: per-channel only
	c.RecordDropNotConnected(5, true)  // ordinary channel: counts globally too

	if c.Global.DropNotConnected.Load() != 1 {
		t.Fatalf("expected global drop count 1, got %d", c.Global.DropNotConnected.Load())
	}
	if c.Channels[1].DropNotConnected.Load() != 1 || c.Channels[5].DropNotConnected.Load() != 1 {
		t.Fatalf("expected both channels to record their own drop")
	}
}
