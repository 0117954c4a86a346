package mlx90363

import (
	"errors"
	"fmt"
)

var (
	// ErrBusy indicates a transfer is already in progress on the bus.
	ErrBusy = errors.New("bus busy")
	// ErrNotInitialized indicates Session.Init has not been called.
	ErrNotInitialized = errors.New("session not initialized")
	// ErrChecksum indicates the received frame failed the CRC check.
	ErrChecksum = errors.New("checksum mismatch")
	// ErrTimeout indicates a transfer did not complete in time.
	ErrTimeout = errors.New("transfer timeout")
)

// FrameError reports a completed transfer that did not decode.
type FrameError struct {
	State ResponseState
	Frame Frame
}

// Error implements error.
func (e *FrameError) Error() string {
	return fmt.Sprintf("frame %s: %s", e.Frame, e.State)
}

// Unwrap maps ChecksumFailed to ErrChecksum.
func (e *FrameError) Unwrap() error {
	if e.State == StateChecksumFailed {
		return ErrChecksum
	}
	return nil
}
