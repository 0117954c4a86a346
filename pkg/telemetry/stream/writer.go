// Package stream writes measurements as length-prefixed protobuf records.
package stream

import (
	"encoding/binary"
	"fmt"
	"io"
	"sync"

	"github.com/golang/protobuf/proto"

	"github.com/robotalks/mlx90363/pkg/telemetry/msgs"
)

// MaxRecordSize bounds the length prefix accepted by Read.
const MaxRecordSize = 1 << 16

// Writer implements telemetry.Sink on an io.Writer. Each record is prefixed
// by its length as a 4-byte little-endian integer.
type Writer struct {
	w    io.Writer
	lock sync.Mutex
}

// NewWriter creates a Writer.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// Publish implements telemetry.Sink.
func (s *Writer) Publish(m *msgs.Measurement) error {
	data, err := proto.Marshal(m)
	if err != nil {
		return err
	}
	s.lock.Lock()
	defer s.lock.Unlock()
	if err := binary.Write(s.w, binary.LittleEndian, uint32(len(data))); err != nil {
		return err
	}
	_, err = s.w.Write(data)
	return err
}

// Read reads one record written by Writer.
func Read(r io.Reader) (*msgs.Measurement, error) {
	var size uint32
	if err := binary.Read(r, binary.LittleEndian, &size); err != nil {
		return nil, err
	}
	if size > MaxRecordSize {
		return nil, fmt.Errorf("record size %d exceeds %d", size, MaxRecordSize)
	}
	data := make([]byte, size)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, err
	}
	m := &msgs.Measurement{}
	return m, proto.Unmarshal(data, m)
}
