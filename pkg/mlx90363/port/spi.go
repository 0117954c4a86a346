package port

import (
	"fmt"
	"sync"

	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
)

// Mode is the SPI mode of the MLX90363: clock idle low, data sampled on
// the falling edge. The chip select is driven by the session, so the
// controller must not toggle it between bytes.
const Mode = spi.Mode1 | spi.NoCS

// SPI is a Transferer on a periph SPI port.
type SPI struct {
	Mode spi.Mode

	port spi.PortCloser
	conn spi.Conn
	lock sync.Mutex
	w, r [1]byte
}

// OpenSPI opens a port from the periph registry, e.g. "SPI0.0" or
// "/dev/spidev0.0".
func OpenSPI(name string) (*SPI, error) {
	p, err := spireg.Open(name)
	if err != nil {
		return nil, fmt.Errorf("open spi %q: %v", name, err)
	}
	return NewSPI(p), nil
}

// NewSPI wraps an opened port. The port is connected by the first SetSpeed.
func NewSPI(p spi.PortCloser) *SPI {
	return &SPI{Mode: Mode, port: p}
}

// String implements fmt.Stringer.
func (s *SPI) String() string {
	return s.port.String()
}

// SetSpeed implements SpeedSetter. The first call connects the port, later
// calls lower the clock limit.
func (s *SPI) SetSpeed(f physic.Frequency) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.conn != nil {
		return s.port.LimitSpeed(f)
	}
	conn, err := s.port.Connect(f, s.Mode, 8)
	if err != nil {
		return err
	}
	s.conn = conn
	return nil
}

// Transfer implements Transferer.
func (s *SPI) Transfer(tx byte) (byte, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.conn == nil {
		return FailedByte, fmt.Errorf("%s: not connected", s.port)
	}
	s.w[0] = tx
	if err := s.conn.Tx(s.w[:], s.r[:]); err != nil {
		return FailedByte, err
	}
	return s.r[0], nil
}

// Close releases the port.
func (s *SPI) Close() error {
	return s.port.Close()
}
