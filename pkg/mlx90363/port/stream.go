package port

import (
	"errors"
	"io"
)

// ErrNoReply is returned when the bridge does not answer a byte before
// the read timeout of the stream.
var ErrNoReply = errors.New("no reply from bridge")

// Stream is a Transferer over a byte stream to a bridge which shifts each
// written byte on the bus and writes back the byte received.
type Stream struct {
	ReadWriter io.ReadWriter

	buf [1]byte
}

// NewStream creates a Stream.
func NewStream(rw io.ReadWriter) *Stream {
	return &Stream{ReadWriter: rw}
}

// Transfer implements Transferer.
func (s *Stream) Transfer(tx byte) (byte, error) {
	s.buf[0] = tx
	if _, err := s.ReadWriter.Write(s.buf[:]); err != nil {
		return FailedByte, err
	}
	n, err := s.ReadWriter.Read(s.buf[:])
	if err != nil {
		return FailedByte, err
	}
	if n == 0 {
		return FailedByte, ErrNoReply
	}
	return s.buf[0], nil
}

// Close closes the stream if it is an io.Closer.
func (s *Stream) Close() error {
	if c, ok := s.ReadWriter.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
