// Package serialport wraps the host serial device REthos speaks the wire
// protocol over: configurable baud rate, 8N1, raw mode, no hardware or
// software flow control.
package serialport

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
	"go.bug.st/serial"
)

// AllowedBaudRates is the set of named baud rates accepted outright; any
// platform-available rate above 115200 up to 4000000 is also accepted.
var AllowedBaudRates = []int{9600, 19200, 38400, 57600, 115200}

const maxBaudRate = 4000000

// DefaultBaudRate is used when the caller does not specify one.
const DefaultBaudRate = 115200

// ValidBaudRate reports whether rate is one of the named rates or falls in
// the platform-available range up to maxBaudRate.
func ValidBaudRate(rate int) bool {
	if rate <= 0 || rate > maxBaudRate {
		return false
	}
	for _, r := range AllowedBaudRates {
		if rate == r {
			return true
		}
	}
	return rate > AllowedBaudRates[len(AllowedBaudRates)-1]
}

// Port wraps a serial connection to the MCU. Writes are serialized under a
// mutex so that each Write call's bytes reach the wire contiguously even
// if more than one goroutine writes.
type Port struct {
	port serial.Port
	mu   sync.Mutex
}

// Open opens devicePath at baudRate in 8N1 raw mode with no hardware or
// software flow control.
func Open(devicePath string, baudRate int) (*Port, error) {
	if !ValidBaudRate(baudRate) {
		return nil, fmt.Errorf("serialport: baud rate %d not in allowed range", baudRate)
	}

	mode := &serial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	port, err := serial.Open(devicePath, mode)
	if err != nil {
		return nil, fmt.Errorf("open serial port %s: %w", devicePath, err)
	}

	log.Info().Str("device", devicePath).Int("baud", baudRate).Msg("serial port opened")

	return &Port{port: port}, nil
}

// Write sends raw bytes. Safe for concurrent use; callers must still
// ensure one frame's bytes are written contiguously (do not interleave two
// concurrent Write calls mid-frame from outside this package).
func (p *Port) Write(data []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.port.Write(data)
}

// Read reads raw bytes from the serial port.
func (p *Port) Read(buf []byte) (int, error) {
	return p.port.Read(buf)
}

// Close closes the serial port.
func (p *Port) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.port.Close()
}
