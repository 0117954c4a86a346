package mlx90363

// Record holds the values decoded from the last valid frames.
type Record struct {
	// Type is the marker of the last measurement.
	Type  MessageType
	Alpha uint16
	Beta  uint16
	X     int16
	Y     int16
	Z     int16
	// Err is the E1E0 device error field, surfaced as is.
	Err  uint8
	VG   uint8
	Roll uint8

	// Opcode and Status come from the last Other-type response.
	Opcode Opcode
	Status uint8

	// Raw is the last checksum-valid frame.
	Raw Frame
}

func decodeAngle(lo, hi byte) uint16 {
	return (uint16(hi)<<8 | uint16(lo)) & AlphaMask
}

// decodeAxis sign-extends a 14-bit two's complement field.
func decodeAxis(lo, hi byte) int16 {
	v := (uint16(hi)<<8 | uint16(lo)) & AlphaMask
	return int16(v<<2) >> 2
}

// decodeErr extracts E1E0 from the top of the angle high byte.
func decodeErr(hi byte) uint8 {
	return hi >> (AlphaBits - 8)
}

// decode applies a checksum-valid frame and reports the resulting state.
func (r *Record) decode(f Frame) ResponseState {
	r.Raw = f
	switch marker := f.Marker(); marker {
	case TypeAlpha:
		r.Type = marker
		r.Alpha = decodeAngle(f[0], f[1])
		r.Err = decodeErr(f[1])
		r.VG = f[4]
		r.Roll = f.Roll()
		return StateAlpha
	case TypeAlphaBeta:
		r.Type = marker
		r.Alpha = decodeAngle(f[0], f[1])
		r.Err = decodeErr(f[1])
		r.Beta = decodeAngle(f[2], f[3])
		r.VG = f[4]
		r.Roll = f.Roll()
		return StateAlphaBeta
	case TypeXYZ:
		r.Type = marker
		r.X = decodeAxis(f[0], f[1])
		r.Err = decodeErr(f[1])
		r.Y = decodeAxis(f[2], f[3])
		r.Z = decodeAxis(f[4], f[5])
		r.Roll = f.Roll()
		return StateXYZ
	default:
		r.Opcode = f.Opcode()
		r.Status = f[0]
		return StateOther
	}
}
