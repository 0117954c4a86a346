package port

import (
	"fmt"
	"time"

	"go.bug.st/serial"
)

// DefaultBaudRate is the line speed of the serial bridge.
const DefaultBaudRate = 115200

// DefaultReadTimeout bounds the wait for the byte echoed by the bridge.
const DefaultReadTimeout = 100 * time.Millisecond

// SerialMode is the line setting for a bridge at baud: 8N1.
func SerialMode(baud int) *serial.Mode {
	if baud <= 0 {
		baud = DefaultBaudRate
	}
	return &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
}

// OpenSerial opens a serial bridge as a Stream.
func OpenSerial(path string, baud int, timeout time.Duration) (*Stream, error) {
	p, err := serial.Open(path, SerialMode(baud))
	if err != nil {
		return nil, fmt.Errorf("open serial %q: %v", path, err)
	}
	if timeout <= 0 {
		timeout = DefaultReadTimeout
	}
	if err := p.SetReadTimeout(timeout); err != nil {
		p.Close()
		return nil, fmt.Errorf("serial %q read timeout: %v", path, err)
	}
	return NewStream(p), nil
}
