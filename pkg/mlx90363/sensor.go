package mlx90363

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/golang/glog"
	"periph.io/x/conn/v3/gpio"

	"github.com/robotalks/mlx90363/pkg/framework"
)

// MinSettlingInterval is the minimum time between two GET requests for the
// device to produce a fresh measurement.
const MinSettlingInterval = 920 * time.Microsecond

// Sensor is one MLX90363 on a shared Session.
type Sensor struct {
	Name string
	// Settling is the minimum interval between requests.
	Settling time.Duration
	// Clock defaults to framework.SystemTime.
	Clock framework.TimeSource

	session *Session
	cs      ChipSelect
	request Frame
	// reset is a GET with the reset-roll bit, sent once by the next Request.
	reset *Frame

	lastRequest atomic.Int64

	lock    sync.RWMutex
	record  Record
	decodes uint64
	seen    uint64
}

// NewSensor creates a sensor on a session. cs may be nil when the chip
// select is handled by the port.
func NewSensor(name string, session *Session, cs ChipSelect) *Sensor {
	return &Sensor{
		Name:     name,
		Settling: MinSettlingInterval,
		Clock:    framework.SystemTime,
		session:  session,
		cs:       cs,
		request:  EncodeGET(OpGET1, TypeAlpha, DefaultTimeout, false),
	}
}

// Session gets the session the sensor is attached to.
func (s *Sensor) Session() *Session {
	return s.session
}

// SetRequest replaces the request sent by Request. A GET with the
// reset-roll bit is sent once; the following requests are the same GET
// without it, so ROLL keeps advancing.
func (s *Sensor) SetRequest(f Frame) *Sensor {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.reset = nil
	if f.Opcode().IsGET() && f[1]&resetRollBit != 0 {
		reset := f
		s.reset = &reset
		f[1] &^= resetRollBit
		f.Seal()
	}
	s.request = f
	return s
}

// SetMeasurement configures the GET request sent by Request.
func (s *Sensor) SetMeasurement(op Opcode, typ MessageType, timeout uint16, resetRoll bool) *Sensor {
	return s.SetRequest(EncodeGET(op, typ, timeout, resetRoll))
}

// RequestFrame gets the request repeatedly sent by Request.
func (s *Sensor) RequestFrame() Frame {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return s.request
}

// ResetPending is true until the reset-roll GET has been armed.
func (s *Sensor) ResetPending() bool {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return s.reset != nil
}

// Request sends the configured request. It returns false if the bus is
// busy or not initialized.
func (s *Sensor) Request() bool {
	s.lock.RLock()
	f, reset := s.request, s.reset
	s.lock.RUnlock()
	if reset == nil {
		return s.Send(f)
	}
	if !s.Send(*reset) {
		return false
	}
	s.lock.Lock()
	if s.reset == reset {
		s.reset = nil
	}
	s.lock.Unlock()
	return true
}

// RequestGET sends a GET request of the given type.
func (s *Sensor) RequestGET(op Opcode, typ MessageType, timeout uint16, resetRoll bool) bool {
	return s.Send(EncodeGET(op, typ, timeout, resetRoll))
}

// Send stages f on the session and arms it. The answer to f arrives with
// the next transfer.
func (s *Sensor) Send(f Frame) bool {
	if !s.session.Request(s, f) {
		return false
	}
	s.lastRequest.Store(s.now().UnixNano())
	return true
}

// IsMeasurementReady is true when the settling interval has passed since
// the last request.
func (s *Sensor) IsMeasurementReady() bool {
	last := s.lastRequest.Load()
	if last == 0 {
		return true
	}
	return s.now().Sub(time.Unix(0, last)) > s.Settling
}

// Update decodes a pending frame owned by this sensor and reports whether
// the record changed since the previous Update.
func (s *Sensor) Update() bool {
	s.session.update(s)
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.decodes == s.seen {
		return false
	}
	s.seen = s.decodes
	return true
}

// HasNewData reports whether the roll counter differs from *lastRoll and
// stores the current one.
func (s *Sensor) HasNewData(lastRoll *uint8) bool {
	roll := s.Roll()
	if roll == *lastRoll {
		return false
	}
	*lastRoll = roll
	return true
}

// Record gets a snapshot of the decoded values.
func (s *Sensor) Record() Record {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return s.record
}

// Alpha gets the 14-bit angle.
func (s *Sensor) Alpha() uint16 { return s.Record().Alpha }

// Beta gets the second 14-bit angle.
func (s *Sensor) Beta() uint16 { return s.Record().Beta }

// X gets the X field component.
func (s *Sensor) X() int16 { return s.Record().X }

// Y gets the Y field component.
func (s *Sensor) Y() int16 { return s.Record().Y }

// Z gets the Z field component.
func (s *Sensor) Z() int16 { return s.Record().Z }

// Err gets the device error field.
func (s *Sensor) Err() uint8 { return s.Record().Err }

// VG gets the virtual gain.
func (s *Sensor) VG() uint8 { return s.Record().VG }

// Roll gets the device rolling counter.
func (s *Sensor) Roll() uint8 { return s.Record().Roll }

// Exchange sends f and blocks until the transfer carrying the answer to f
// completes, so two frames are exchanged. It is meant for diagnostics and
// must not be used from a loop controller.
func (s *Sensor) Exchange(ctx context.Context, f Frame) (Frame, error) {
	nop := EncodeNOP(0)
	for _, req := range []Frame{f, nop} {
		if err := s.waitIdle(ctx); err != nil {
			return Frame{}, err
		}
		if !s.session.Request(s, req) {
			if s.session.State() == StateUninitialized {
				return Frame{}, ErrNotInitialized
			}
			return Frame{}, ErrBusy
		}
		s.lastRequest.Store(s.now().UnixNano())
	}
	if err := s.waitIdle(ctx); err != nil {
		return Frame{}, err
	}
	s.session.update(s)
	rx, _ := s.session.LastFrame()
	if state := s.session.State(); !state.Decoded() {
		return rx, &FrameError{State: state, Frame: rx}
	}
	return rx, nil
}

const pollInterval = 50 * time.Microsecond

func (s *Sensor) waitIdle(ctx context.Context) error {
	for s.session.IsBusy() {
		select {
		case <-ctx.Done():
			if ctx.Err() == context.DeadlineExceeded {
				return ErrTimeout
			}
			return ctx.Err()
		case <-time.After(pollInterval):
		}
	}
	return nil
}

func (s *Sensor) now() time.Time {
	if s.Clock == nil {
		return time.Now()
	}
	return s.Clock.Time()
}

func (s *Sensor) selectChip(active bool) {
	if s.cs == nil {
		return
	}
	l := gpio.High
	if active {
		l = gpio.Low
	}
	if err := s.cs.Out(l); err != nil {
		glog.Errorf("%s: chip select: %v", s.Name, err)
	}
}

// apply decodes a checksum-valid frame into the record.
func (s *Sensor) apply(f Frame) ResponseState {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.decodes++
	return s.record.decode(f)
}
