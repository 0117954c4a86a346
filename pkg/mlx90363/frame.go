package mlx90363

import (
	"encoding/binary"
	"encoding/hex"
	"strings"
)

// FrameLength is the fixed size of every message in both directions.
const FrameLength = 8

const (
	markerOffset   = 6
	checksumOffset = 7
	markerShift    = 6
	rollMask       = 0x3f
	resetRollBit   = 0x01
)

// Angle field geometry.
const (
	AlphaBits   = 14
	AlphaModulo = 1 << AlphaBits
	AlphaMask   = AlphaModulo - 1
)

// DefaultTimeout is the GET timeout which disables the device timeout.
const DefaultTimeout uint16 = 0xffff

// Frame is one message on the wire.
type Frame [FrameLength]byte

// Marker gets the 2-bit message type.
func (f Frame) Marker() MessageType {
	return MessageType(f[markerOffset] >> markerShift)
}

// Opcode gets the opcode of a request or an Other-type response.
func (f Frame) Opcode() Opcode {
	return Opcode(f[markerOffset] & opcodeMask)
}

// Roll gets the rolling counter of a measurement response.
func (f Frame) Roll() uint8 {
	return f[markerOffset] & rollMask
}

// Word gets the little-endian 16-bit field i (0..2) of the payload.
func (f Frame) Word(i int) uint16 {
	return binary.LittleEndian.Uint16(f[i*2:])
}

// SetWord sets the little-endian 16-bit field i (0..2) of the payload.
func (f *Frame) SetWord(i int, v uint16) {
	binary.LittleEndian.PutUint16(f[i*2:], v)
}

// Seal writes the device CRC into the check byte.
func (f *Frame) Seal() *Frame {
	return f.SealWith(Checksum)
}

// SealWith writes the check byte computed by c.
func (f *Frame) SealWith(c Checksummer) *Frame {
	f[checksumOffset] = c(f[:checksumOffset])
	return f
}

// Valid verifies the device CRC.
func (f Frame) Valid() bool {
	return Verify(f)
}

// String formats the frame as dash separated hex.
func (f Frame) String() string {
	digits := hex.EncodeToString(f[:])
	var b strings.Builder
	for i := 0; i < len(digits); i += 2 {
		if i > 0 {
			b.WriteByte('-')
		}
		b.WriteString(digits[i : i+2])
	}
	return b.String()
}

// Encode builds a sealed request with six payload bytes.
func Encode(op Opcode, marker MessageType, payload [6]byte) Frame {
	var f Frame
	copy(f[:], payload[:])
	f[markerOffset] = byte(marker)<<markerShift | byte(op)&opcodeMask
	f.Seal()
	return f
}

// EncodeGET builds a GET1/GET2/GET3 measurement request.
func EncodeGET(op Opcode, typ MessageType, timeout uint16, resetRoll bool) Frame {
	var payload [6]byte
	if resetRoll {
		payload[1] = resetRollBit
	}
	binary.LittleEndian.PutUint16(payload[2:], timeout)
	return Encode(op, typ, payload)
}

// EncodeNOP builds a NOP request carrying a challenge key, which the
// device echoes together with its inverse.
func EncodeNOP(key uint16) Frame {
	var payload [6]byte
	binary.LittleEndian.PutUint16(payload[2:], key)
	return Encode(OpNOPChallenge, TypeOther, payload)
}

// EncodeMemoryRead requests two 16-bit words from device memory.
func EncodeMemoryRead(addr0, addr1 uint16) Frame {
	var payload [6]byte
	binary.LittleEndian.PutUint16(payload[0:], addr0)
	binary.LittleEndian.PutUint16(payload[2:], addr1)
	return Encode(OpMemoryRead, TypeOther, payload)
}

// EncodeCommand builds a request without payload, e.g. OpReboot,
// OpStandby, OpDiagnosticDetails, OpOscCounterStart or OpOscCounterStop.
func EncodeCommand(op Opcode) Frame {
	return Encode(op, TypeOther, [6]byte{})
}
