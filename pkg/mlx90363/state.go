package mlx90363

import "fmt"

// ResponseState is the progress of the current or last transfer.
type ResponseState int32

// Response states.
const (
	StateUninitialized ResponseState = iota
	StateReady
	StateReceiving
	StateReceived
	StateChecksumFailed
	StateAlpha
	StateAlphaBeta
	StateXYZ
	StateOther
)

var stateNames = [...]string{
	StateUninitialized:  "Uninitialized",
	StateReady:          "Ready",
	StateReceiving:      "Receiving",
	StateReceived:       "Received",
	StateChecksumFailed: "ChecksumFailed",
	StateAlpha:          "DecodedAlpha",
	StateAlphaBeta:      "DecodedAlphaBeta",
	StateXYZ:            "DecodedXYZ",
	StateOther:          "DecodedOther",
}

// String implements fmt.Stringer.
func (s ResponseState) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("ResponseState(%d)", int32(s))
}

// Decoded is true for the states reached by a checksum-valid frame.
func (s ResponseState) Decoded() bool {
	return s >= StateAlpha && s <= StateOther
}

// Measurement is true when the last frame carried a measurement.
func (s ResponseState) Measurement() bool {
	return s >= StateAlpha && s <= StateXYZ
}
