package mlx90363

import "github.com/sigurn/crc8"

// Checksummer computes the check byte over the first 7 bytes of a frame.
type Checksummer func(data []byte) byte

// CRCParams is the CRC used by the MLX90363: polynomial 0x2F, initial
// value 0xFF, result inverted, no reflection.
var CRCParams = crc8.Params{
	Poly:   0x2F,
	Init:   0xFF,
	RefIn:  false,
	RefOut: false,
	XorOut: 0xFF,
	Check:  0xDF,
	Name:   "CRC-8/MLX90363",
}

var crcTable = crc8.MakeTable(CRCParams)

// Checksum is the device CRC.
func Checksum(data []byte) byte {
	return crc8.Checksum(data, crcTable)
}

// Verify checks the trailing CRC of f with the device algorithm.
func Verify(f Frame) bool {
	return VerifyWith(f, Checksum)
}

// VerifyWith checks the trailing check byte of f using c.
func VerifyWith(f Frame, c Checksummer) bool {
	return c(f[:checksumOffset]) == f[checksumOffset]
}
