// Package stats implements REthos's StatsCollector: global and per-channel
// counters, a stable packed binary wire record, and a human-readable text
// rendering.
//
// Counters are monotonic for the lifetime of the process (reset only on
// restart) and are exposed as atomic.Uint64 fields rather than plain
// integers. The protocol core only ever touches them from the single
// reactor goroutine, but the ambient admin HTTP and MCP introspection
// surfaces read them concurrently, so atomics make that safe without
// adding a lock the core loop would have to take.
package stats

import (
	"encoding/binary"
	"fmt"
	"io"
	"sync/atomic"
)

// Global holds the process-wide counters.
type Global struct {
	SerialReceived   atomic.Uint64
	DomainForwarded  atomic.Uint64
	DomainReceived   atomic.Uint64
	SerialForwarded  atomic.Uint64
	LostFrames       atomic.Uint64
	BadFrames        atomic.Uint64
	DropNotConnected atomic.Uint64
}

// Channel holds the per-channel counters.
type Channel struct {
	SerialReceived   atomic.Uint64
	DomainForwarded  atomic.Uint64
	DropNotConnected atomic.Uint64
	DomainReceived   atomic.Uint64
	SerialForwarded  atomic.Uint64
}

// NumChannels is the number of logical channels REthos multiplexes.
const NumChannels = 256

// Collector owns the global counters and the 256-entry per-channel array.
type Collector struct {
	Global   Global
	Channels [NumChannels]Channel
}

// NewCollector returns a zeroed Collector.
func NewCollector() *Collector {
	return &Collector{}
}

// AddLostFrames implements the narrow sink interface pkg/link depends on.
func (c *Collector) AddLostFrames(n uint64) {
	if n == 0 {
		return
	}
	c.Global.LostFrames.Add(n)
}

// AddBadFrame records one corrupted/dropped frame: every frame-level
// recoverable error increments both bad_frames and lost_frames.
func (c *Collector) AddBadFrame() {
	c.Global.BadFrames.Add(1)
	c.Global.LostFrames.Add(1)
}

// RecordSerialReceived counts one successfully decoded frame of any type
// arriving from the serial line on channel ch.
func (c *Collector) RecordSerialReceived(ch uint8) {
	c.Global.SerialReceived.Add(1)
	c.Channels[ch].SerialReceived.Add(1)
}

// RecordSerialForwarded counts one payload written out from a local source
// (stdin/TUN/client) onto the serial line as a DATA frame.
func (c *Collector) RecordSerialForwarded(ch uint8) {
	c.Global.SerialForwarded.Add(1)
	c.Channels[ch].SerialForwarded.Add(1)
}

// RecordDomainForwarded counts one payload delivered to a channel's
// attached local client. Writes to stdout and the TUN device are not
// counted here.
func (c *Collector) RecordDomainForwarded(ch uint8) {
	c.Global.DomainForwarded.Add(1)
	c.Channels[ch].DomainForwarded.Add(1)
}

// RecordDomainReceived counts one payload read from a local source
// (client socket, stdin, TUN device) before it is sent as a frame.
func (c *Collector) RecordDomainReceived(ch uint8) {
	c.Global.DomainReceived.Add(1)
	c.Channels[ch].DomainReceived.Add(1)
}

// RecordDropNotConnected counts a payload discarded because no client is
// attached. countGlobal is false for channels 1 and 3, whose primary sinks
// are stdout and the TUN device respectively.
func (c *Collector) RecordDropNotConnected(ch uint8, countGlobal bool) {
	if countGlobal {
		c.Global.DropNotConnected.Add(1)
	}
	c.Channels[ch].DropNotConnected.Add(1)
}

// RecordSize is the packed little-endian size of one global record (7
// uint64 fields) plus 256 per-channel records (5 uint64 fields each).
const (
	globalFields  = 7
	channelFields = 5
	RecordSize    = globalFields*8 + NumChannels*channelFields*8
)

// WriteBinary serializes the full stats snapshot as the stable global
// stats record layout: global counters then channel[256], each field a
// little-endian uint64.
func (c *Collector) WriteBinary(w io.Writer) error {
	buf := make([]byte, RecordSize)
	off := 0
	putGlobal := func(v *atomic.Uint64) {
		binary.LittleEndian.PutUint64(buf[off:], v.Load())
		off += 8
	}
	putGlobal(&c.Global.SerialReceived)
	putGlobal(&c.Global.DomainForwarded)
	putGlobal(&c.Global.DomainReceived)
	putGlobal(&c.Global.SerialForwarded)
	putGlobal(&c.Global.LostFrames)
	putGlobal(&c.Global.BadFrames)
	putGlobal(&c.Global.DropNotConnected)

	for i := range c.Channels {
		ch := &c.Channels[i]
		putGlobal(&ch.SerialReceived)
		putGlobal(&ch.DomainForwarded)
		putGlobal(&ch.DropNotConnected)
		putGlobal(&ch.DomainReceived)
		putGlobal(&ch.SerialForwarded)
	}

	_, err := w.Write(buf)
	return err
}

// Text renders the global counters as a single human-readable line, for
// the 15s stats timer's stderr print.
func (c *Collector) Text() string {
	return fmt.Sprintf(
		"serial_rx=%d domain_fwd=%d domain_rx=%d serial_fwd=%d lost=%d bad=%d drop_nc=%d",
		c.Global.SerialReceived.Load(),
		c.Global.DomainForwarded.Load(),
		c.Global.DomainReceived.Load(),
		c.Global.SerialForwarded.Load(),
		c.Global.LostFrames.Load(),
		c.Global.BadFrames.Load(),
		c.Global.DropNotConnected.Load(),
	)
}

// Snapshot is an immutable point-in-time copy of the global counters, used
// by pkg/store for historical persistence and by the admin/MCP
// introspection surfaces.
type Snapshot struct {
	SerialReceived   uint64
	DomainForwarded  uint64
	DomainReceived   uint64
	SerialForwarded  uint64
	LostFrames       uint64
	BadFrames        uint64
	DropNotConnected uint64
}

// TakeSnapshot copies the current global counters.
func (c *Collector) TakeSnapshot() Snapshot {
	return Snapshot{
		SerialReceived:   c.Global.SerialReceived.Load(),
		DomainForwarded:  c.Global.DomainForwarded.Load(),
		DomainReceived:   c.Global.DomainReceived.Load(),
		SerialForwarded:  c.Global.SerialForwarded.Load(),
		LostFrames:       c.Global.LostFrames.Load(),
		BadFrames:        c.Global.BadFrames.Load(),
		DropNotConnected: c.Global.DropNotConnected.Load(),
	}
}
