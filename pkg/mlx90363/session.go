package mlx90363

import (
	"sync"
	"sync/atomic"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/physic"
)

// DefaultSpeed is the SPI clock configured by Session.Init.
const DefaultSpeed = 1 * physic.MegaHertz

// ByteHandler receives the byte shifted in by each completed exchange.
type ByteHandler interface {
	OnByteExchanged(rx byte)
}

// Port is the byte-level full-duplex bus.
type Port interface {
	// Attach sets the receiver of completed exchanges.
	Attach(ByteHandler)
	// Exchange starts shifting tx out and one byte in. It must not block;
	// completion is reported through the attached ByteHandler.
	Exchange(tx byte)
	// SetSpeed changes the bus clock.
	SetSpeed(physic.Frequency) error
}

// ChipSelect drives the select line of one device, active low.
type ChipSelect interface {
	Out(l gpio.Level) error
}

// Observer is notified of every completed frame.
type Observer interface {
	FrameCompleted(sensor string, state ResponseState)
}

// Stats counts session activity.
type Stats struct {
	Frames           uint64
	ChecksumFailures uint64
	Others           uint64
	RejectedArms     uint64
	SpuriousBytes    uint64
}

// Session owns the single transfer in flight on one bus: the staged
// request, the receive buffer, the cursor and the response state.
//
// Only the completion context (OnByteExchanged) moves the cursor and
// writes the receive buffer while a transfer is in progress. The polling
// context touches them only after observing the session idle.
type Session struct {
	// Checksum verifies received frames, Checksum by default.
	Checksum Checksummer
	// DeferDecode leaves completed frames in StateReceived until the owning
	// Sensor's Update, instead of decoding in the completion context.
	DeferDecode bool
	// OnComplete is called in the completion context after each frame.
	OnComplete func()
	// Observer is notified after each frame is interpreted.
	Observer Observer

	port   Port
	tx     Frame
	rx     Frame
	cursor atomic.Int32
	state  atomic.Int32
	owner  *Sensor

	// lock serializes the polling side: arming, staging and deferred
	// decoding. The completion context never takes it.
	lock sync.Mutex

	frames, crcFailures, others, rejected, spurious atomic.Uint64
}

// NewSession creates an uninitialized session on a port and attaches
// itself as the port's ByteHandler.
func NewSession(port Port) *Session {
	s := &Session{port: port, DeferDecode: true}
	s.cursor.Store(FrameLength)
	s.state.Store(int32(StateUninitialized))
	s.tx = EncodeGET(OpGET1, TypeAlpha, DefaultTimeout, false)
	port.Attach(s)
	return s
}

// Init configures the bus clock and makes the session ready.
func (s *Session) Init() error {
	s.lock.Lock()
	defer s.lock.Unlock()
	if err := s.port.SetSpeed(DefaultSpeed); err != nil {
		return err
	}
	if s.state.Load() == int32(StateUninitialized) {
		s.state.Store(int32(StateReady))
	}
	return nil
}

// SetSpeed changes the bus clock.
func (s *Session) SetSpeed(f physic.Frequency) error {
	return s.port.SetSpeed(f)
}

// State gets the response state.
func (s *Session) State() ResponseState {
	return ResponseState(s.state.Load())
}

// IsBusy is true while a transfer is in progress.
func (s *Session) IsBusy() bool {
	return s.cursor.Load() != FrameLength
}

// Cursor gets the number of bytes exchanged in the current transfer.
func (s *Session) Cursor() int {
	return int(s.cursor.Load())
}

// Owner gets the sensor of the current or last transfer.
func (s *Session) Owner() *Sensor {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.owner
}

// Staged gets the request that the next Arm sends.
func (s *Session) Staged() Frame {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.tx
}

// Stage replaces the staged request. It is refused while busy.
func (s *Session) Stage(f Frame) bool {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.IsBusy() {
		return false
	}
	s.tx = f
	return true
}

// LastFrame gets the received bytes of the last transfer, false while
// a transfer is in progress.
func (s *Session) LastFrame() (Frame, bool) {
	if s.IsBusy() {
		return Frame{}, false
	}
	return s.rx, true
}

// ReceivedOpcode gets the opcode field of the last received frame.
func (s *Session) ReceivedOpcode() Opcode {
	f, _ := s.LastFrame()
	return f.Opcode()
}

// Stats gets a snapshot of the counters.
func (s *Session) Stats() Stats {
	return Stats{
		Frames:           s.frames.Load(),
		ChecksumFailures: s.crcFailures.Load(),
		Others:           s.others.Load(),
		RejectedArms:     s.rejected.Load(),
		SpuriousBytes:    s.spurious.Load(),
	}
}

// Arm starts sending the staged request on behalf of owner. It is a no-op
// returning false if a transfer is in progress or the session is not
// initialized. A nil owner is refused.
func (s *Session) Arm(owner *Sensor) bool {
	if owner == nil {
		return false
	}
	s.lock.Lock()
	defer s.lock.Unlock()
	if !s.armable() {
		return false
	}
	s.armUnsafe(owner)
	return true
}

// Request stages f and arms it in one step.
func (s *Session) Request(owner *Sensor, f Frame) bool {
	if owner == nil {
		return false
	}
	s.lock.Lock()
	defer s.lock.Unlock()
	if !s.armable() {
		return false
	}
	if s.tx != f {
		s.tx = f
	}
	s.armUnsafe(owner)
	return true
}

func (s *Session) armable() bool {
	if s.IsBusy() || s.State() == StateUninitialized {
		s.rejected.Add(1)
		return false
	}
	return true
}

// armUnsafe starts a transfer without checking for one in progress.
// The caller holds s.lock and has verified the session is idle.
func (s *Session) armUnsafe(owner *Sensor) {
	if s.State() == StateReceived {
		// the previous frame was never picked up by Update.
		s.interpret()
	}
	s.owner = owner
	owner.selectChip(true)
	s.state.Store(int32(StateReceiving))
	s.cursor.Store(0)
	s.port.Exchange(s.tx[0])
}

// OnByteExchanged implements ByteHandler. It runs in the completion
// context, once per byte.
func (s *Session) OnByteExchanged(rx byte) {
	pos := s.cursor.Load()
	if pos >= FrameLength {
		s.spurious.Add(1)
		return
	}
	s.rx[pos] = rx
	pos++
	if pos < FrameLength {
		s.cursor.Store(pos)
		s.port.Exchange(s.tx[pos])
		return
	}
	s.owner.selectChip(false)
	s.state.Store(int32(StateReceived))
	if !s.DeferDecode {
		s.interpret()
	}
	s.cursor.Store(FrameLength)
	if fn := s.OnComplete; fn != nil {
		fn()
	}
}

// update decodes a pending frame for owner in deferred mode.
func (s *Session) update(owner *Sensor) {
	if s.IsBusy() || s.State() != StateReceived {
		return
	}
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.owner == owner && !s.IsBusy() && s.State() == StateReceived {
		s.interpret()
	}
}
