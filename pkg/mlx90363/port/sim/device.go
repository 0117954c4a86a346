// Package sim simulates an MLX90363 at the byte level.
package sim

import (
	"errors"
	"sync"

	"periph.io/x/conn/v3/physic"

	"github.com/robotalks/mlx90363/pkg/mlx90363"
)

// Error codes carried in byte 0 of an ErrorFrame.
const (
	ErrCodeBitCount uint8 = 1
	ErrCodeCRC      uint8 = 2
	ErrCodeNTT      uint8 = 3
	ErrCodeOpcode   uint8 = 4
)

// Versions reported in the ready message.
const (
	HardwareVersion uint8 = 0x03
	FirmwareVersion uint8 = 0x12
)

// ErrDisconnected is returned by Transfer after Disconnect.
var ErrDisconnected = errors.New("device disconnected")

// Device answers each frame with the response to the previous one.
type Device struct {
	// Alpha and Beta are the angles reported by the next measurement.
	Alpha, Beta uint16
	// Step is added to Alpha after each measurement.
	Step uint16
	// X, Y and Z are the field components reported by XYZ measurements.
	X, Y, Z int16
	// Err is the E1E0 field of measurements.
	Err uint8
	VG  uint8
	// Diag is reported in DiagnosticsAnswer.
	Diag [4]byte
	// Memory backs MemoryRead.
	Memory map[uint16]uint16

	speed physic.Frequency
	in    mlx90363.Frame
	out   mlx90363.Frame
	pos   int
	roll  uint8
	osc   uint16

	corruptNext  bool
	disconnected bool
	requests     []mlx90363.Frame

	lock sync.Mutex
}

// New creates a device which has just powered up.
func New() *Device {
	d := &Device{
		VG:     0x50,
		Memory: make(map[uint16]uint16),
	}
	d.out = d.ready()
	return d
}

// SetSpeed implements port.SpeedSetter.
func (d *Device) SetSpeed(f physic.Frequency) error {
	d.lock.Lock()
	d.speed = f
	d.lock.Unlock()
	return nil
}

// Speed gets the configured clock.
func (d *Device) Speed() physic.Frequency {
	d.lock.Lock()
	defer d.lock.Unlock()
	return d.speed
}

// SetAngles sets the angles of the next measurements.
func (d *Device) SetAngles(alpha, beta uint16) {
	d.lock.Lock()
	d.Alpha, d.Beta = alpha, beta
	d.lock.Unlock()
}

// SetField sets the field components of the next XYZ measurements.
func (d *Device) SetField(x, y, z int16) {
	d.lock.Lock()
	d.X, d.Y, d.Z = x, y, z
	d.lock.Unlock()
}

// CorruptNext flips the checksum of the next response.
func (d *Device) CorruptNext() {
	d.lock.Lock()
	d.corruptNext = true
	d.lock.Unlock()
}

// Disconnect makes every following Transfer fail.
func (d *Device) Disconnect() {
	d.lock.Lock()
	d.disconnected = true
	d.lock.Unlock()
}

// Requests gets the frames received so far.
func (d *Device) Requests() []mlx90363.Frame {
	d.lock.Lock()
	defer d.lock.Unlock()
	return append([]mlx90363.Frame(nil), d.requests...)
}

// Transfer implements port.Transferer.
func (d *Device) Transfer(tx byte) (byte, error) {
	d.lock.Lock()
	defer d.lock.Unlock()
	if d.disconnected {
		return 0, ErrDisconnected
	}
	rx := d.out[d.pos]
	d.in[d.pos] = tx
	if d.pos++; d.pos == mlx90363.FrameLength {
		d.pos = 0
		d.requests = append(d.requests, d.in)
		d.out = d.respond(d.in)
		if d.corruptNext {
			d.out[mlx90363.FrameLength-1] ^= 0xff
			d.corruptNext = false
		}
	}
	return rx, nil
}

func (d *Device) respond(req mlx90363.Frame) mlx90363.Frame {
	if !req.Valid() {
		return errorFrame(ErrCodeCRC)
	}
	switch op := req.Opcode(); op {
	case mlx90363.OpGET1, mlx90363.OpGET2, mlx90363.OpGET3:
		return d.measure(req)
	case mlx90363.OpNOPChallenge:
		key := req.Word(1)
		f := other(mlx90363.OpChallengeNOPMISO)
		f.SetWord(1, key)
		f.SetWord(2, ^key)
		return *f.Seal()
	case mlx90363.OpMemoryRead:
		f := other(mlx90363.OpMemoryReadAnswer)
		f.SetWord(0, d.Memory[req.Word(0)])
		f.SetWord(1, d.Memory[req.Word(1)])
		return *f.Seal()
	case mlx90363.OpDiagnosticDetails:
		f := other(mlx90363.OpDiagnosticsAnswer)
		copy(f[:4], d.Diag[:])
		return *f.Seal()
	case mlx90363.OpOscCounterStart:
		d.osc = 0
		return command(mlx90363.OpOscCounterStartAck)
	case mlx90363.OpOscCounterStop:
		f := other(mlx90363.OpOscCounterStopAck)
		f.SetWord(0, d.osc)
		return *f.Seal()
	case mlx90363.OpStandby:
		return command(mlx90363.OpStandbyAck)
	case mlx90363.OpReboot:
		d.roll = 0
		return d.ready()
	default:
		return errorFrame(ErrCodeOpcode)
	}
}

func (d *Device) measure(req mlx90363.Frame) mlx90363.Frame {
	if req[1]&0x01 != 0 {
		d.roll = 0
	}
	d.roll = (d.roll + 1) & 0x3f
	d.osc++
	var f mlx90363.Frame
	typ := req.Marker()
	switch typ {
	case mlx90363.TypeAlpha, mlx90363.TypeAlphaBeta:
		f.SetWord(0, d.Alpha&mlx90363.AlphaMask)
		if typ == mlx90363.TypeAlphaBeta {
			f.SetWord(1, d.Beta&mlx90363.AlphaMask)
		}
		f[4] = d.VG
		d.Alpha = (d.Alpha + d.Step) & mlx90363.AlphaMask
	case mlx90363.TypeXYZ:
		f.SetWord(0, uint16(d.X)&mlx90363.AlphaMask)
		f.SetWord(1, uint16(d.Y)&mlx90363.AlphaMask)
		f.SetWord(2, uint16(d.Z)&mlx90363.AlphaMask)
	default:
		return errorFrame(ErrCodeOpcode)
	}
	f[1] |= d.Err << 6
	f[6] = byte(typ)<<6 | d.roll
	return *f.Seal()
}

func (d *Device) ready() mlx90363.Frame {
	f := other(mlx90363.OpReadyMessage)
	f[0] = HardwareVersion
	f[1] = FirmwareVersion
	return *f.Seal()
}

func other(op mlx90363.Opcode) *mlx90363.Frame {
	f := mlx90363.EncodeCommand(op)
	return &f
}

func command(op mlx90363.Opcode) mlx90363.Frame {
	return mlx90363.EncodeCommand(op)
}

func errorFrame(code uint8) mlx90363.Frame {
	f := other(mlx90363.OpErrorFrame)
	f[0] = code
	return *f.Seal()
}
