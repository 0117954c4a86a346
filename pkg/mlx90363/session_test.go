package mlx90363

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpiotest"
	"periph.io/x/conn/v3/physic"
)

// fakePort records the bytes sent and lets the test complete exchanges.
type fakePort struct {
	handler  ByteHandler
	sent     []byte
	pending  int
	speed    physic.Frequency
	speedErr error
}

func (p *fakePort) Attach(h ByteHandler) { p.handler = h }

func (p *fakePort) Exchange(tx byte) {
	p.sent = append(p.sent, tx)
	p.pending++
}

func (p *fakePort) SetSpeed(f physic.Frequency) error {
	if p.speedErr != nil {
		return p.speedErr
	}
	p.speed = f
	return nil
}

// complete finishes n pending exchanges with the given bytes.
func (p *fakePort) complete(t *testing.T, rx ...byte) {
	for _, b := range rx {
		require.Equal(t, 1, p.pending, "no exchange in progress")
		p.pending--
		p.handler.OnByteExchanged(b)
	}
}

func (p *fakePort) frame(t *testing.T, f Frame) {
	p.complete(t, f[:]...)
}

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Time() time.Time { return c.now }

func (c *fakeClock) advance(d time.Duration) { c.now = c.now.Add(d) }

type recordingObserver struct {
	states []ResponseState
}

func (o *recordingObserver) FrameCompleted(sensor string, state ResponseState) {
	o.states = append(o.states, state)
}

type sessionFixture struct {
	port    *fakePort
	session *Session
	sensor  *Sensor
	cs      *gpiotest.Pin
	clock   *fakeClock
}

func newSessionFixture(t *testing.T) *sessionFixture {
	fx := &sessionFixture{
		port:  &fakePort{},
		cs:    &gpiotest.Pin{N: "CS0", L: gpio.High},
		clock: &fakeClock{now: time.Unix(1000, 0)},
	}
	fx.session = NewSession(fx.port)
	require.NoError(t, fx.session.Init())
	fx.sensor = NewSensor("s0", fx.session, fx.cs)
	fx.sensor.Clock = fx.clock
	return fx
}

func TestSessionInit(t *testing.T) {
	port := &fakePort{}
	s := NewSession(port)
	require.Equal(t, StateUninitialized, s.State())
	require.False(t, s.IsBusy())
	require.False(t, s.Arm(NewSensor("s", s, nil)))
	require.Empty(t, port.sent)

	port.speedErr = errors.New("no clock")
	require.Error(t, s.Init())
	require.Equal(t, StateUninitialized, s.State())

	port.speedErr = nil
	require.NoError(t, s.Init())
	require.Equal(t, DefaultSpeed, port.speed)
	require.Equal(t, StateReady, s.State())

	require.NoError(t, s.SetSpeed(2*physic.MegaHertz))
	require.Equal(t, 2*physic.MegaHertz, port.speed)
}

func TestSessionBusyAccounting(t *testing.T) {
	fx := newSessionFixture(t)
	staged := fx.session.Staged()

	require.True(t, fx.session.Arm(fx.sensor))
	require.True(t, fx.session.IsBusy())
	require.Equal(t, StateReceiving, fx.session.State())
	require.Equal(t, gpio.Low, fx.cs.L)
	require.Same(t, fx.sensor, fx.session.Owner())

	for i := 0; i < FrameLength-1; i++ {
		fx.port.complete(t, 0)
		require.True(t, fx.session.IsBusy(), "after %d bytes", i+1)
		require.Equal(t, i+1, fx.session.Cursor())
	}
	fx.port.complete(t, 0)
	require.False(t, fx.session.IsBusy())
	require.Equal(t, gpio.High, fx.cs.L)
	require.Equal(t, StateReceived, fx.session.State())
	require.Equal(t, staged[:], fx.port.sent)
}

func TestSessionRearmWhileBusy(t *testing.T) {
	fx := newSessionFixture(t)
	require.True(t, fx.session.Arm(fx.sensor))
	fx.port.complete(t, 1, 2, 3)

	other := NewSensor("s1", fx.session, nil)
	require.False(t, fx.session.Arm(other))
	require.False(t, other.Request())
	require.False(t, fx.session.Stage(EncodeNOP(1)))
	require.Equal(t, 3, fx.session.Cursor())
	require.Len(t, fx.port.sent, 4)
	require.Same(t, fx.sensor, fx.session.Owner())
	require.Equal(t, EncodeGET(OpGET1, TypeAlpha, DefaultTimeout, false), fx.session.Staged())
	require.Equal(t, uint64(2), fx.session.Stats().RejectedArms)

	_, ok := fx.session.LastFrame()
	require.False(t, ok)
}

func TestSessionReusesStagedRequest(t *testing.T) {
	fx := newSessionFixture(t)
	nop := EncodeNOP(0x1234)
	require.True(t, fx.session.Stage(nop))
	for i := 0; i < 3; i++ {
		require.True(t, fx.session.Arm(fx.sensor))
		fx.port.frame(t, alphaResponse(uint16(i), uint8(i)))
	}
	require.Len(t, fx.port.sent, 3*FrameLength)
	for i := 0; i < 3; i++ {
		require.Equal(t, nop[:], fx.port.sent[i*FrameLength:(i+1)*FrameLength])
	}
}

func TestSessionAlphaDecode(t *testing.T) {
	for _, deferred := range []bool{true, false} {
		name := "immediate"
		if deferred {
			name = "deferred"
		}
		t.Run(name, func(t *testing.T) {
			fx := newSessionFixture(t)
			fx.session.DeferDecode = deferred
			var lastRoll uint8
			require.False(t, fx.sensor.HasNewData(&lastRoll))

			require.True(t, fx.sensor.Request())
			fx.port.frame(t, alphaResponse(0x2abc, 5))
			require.True(t, fx.sensor.Update())
			require.False(t, fx.sensor.Update())

			require.Equal(t, StateAlpha, fx.session.State())
			require.Equal(t, uint16(0x2abc), fx.sensor.Alpha())
			require.Equal(t, uint8(0x40), fx.sensor.VG())
			require.Equal(t, uint8(5), fx.sensor.Roll())
			require.True(t, fx.sensor.HasNewData(&lastRoll))
			require.Equal(t, uint8(5), lastRoll)
			require.False(t, fx.sensor.HasNewData(&lastRoll))
		})
	}
}

func TestSessionChecksumFailureKeepsRecord(t *testing.T) {
	fx := newSessionFixture(t)
	obs := &recordingObserver{}
	fx.session.Observer = obs

	require.True(t, fx.sensor.Request())
	fx.port.frame(t, alphaResponse(100, 1))
	require.True(t, fx.sensor.Update())
	var lastRoll uint8
	require.True(t, fx.sensor.HasNewData(&lastRoll))
	before := fx.sensor.Record()

	bad := alphaResponse(200, 2)
	bad[checksumOffset] ^= 0xff
	require.True(t, fx.sensor.Request())
	fx.port.frame(t, bad)
	require.False(t, fx.sensor.Update())

	require.Equal(t, StateChecksumFailed, fx.session.State())
	require.Equal(t, before, fx.sensor.Record())
	require.False(t, fx.sensor.HasNewData(&lastRoll))
	require.Equal(t, uint64(1), fx.session.Stats().ChecksumFailures)
	require.Equal(t, uint64(2), fx.session.Stats().Frames)
	require.Equal(t, []ResponseState{StateAlpha, StateChecksumFailed}, obs.states)
}

func TestSessionAlphaBetaScenario(t *testing.T) {
	fx := newSessionFixture(t)
	req := EncodeGET(OpGET1, TypeAlphaBeta, 0xffff, false)
	require.Equal(t, []byte{0x00, 0x00, 0xff, 0xff, 0x00, 0x00, 0x53}, req[:7])

	resp := Frame{0x34, 0x12, 0xbc, 0x0a, 0x55, 0x00, 0x45, 0}
	resp.Seal()
	require.True(t, fx.sensor.Send(req))
	fx.port.frame(t, resp)
	require.True(t, fx.sensor.Update())
	require.Equal(t, StateAlphaBeta, fx.session.State())
	rec := fx.sensor.Record()
	require.Equal(t, uint16(0x1234), rec.Alpha)
	require.Equal(t, uint16(0x0abc), rec.Beta)
	require.Equal(t, uint8(0), rec.Err)
	require.Equal(t, uint8(0x55), rec.VG)
	require.Equal(t, uint8(5), rec.Roll)

	resp[checksumOffset] ^= 0x01
	require.True(t, fx.sensor.Send(req))
	fx.port.frame(t, resp)
	require.False(t, fx.sensor.Update())
	require.Equal(t, StateChecksumFailed, fx.session.State())
	require.Equal(t, rec, fx.sensor.Record())
}

func TestSessionOtherResponse(t *testing.T) {
	fx := newSessionFixture(t)
	require.True(t, fx.sensor.Send(EncodeNOP(0xbeef)))
	fx.port.frame(t, response(TypeOther).opcode(OpChallengeNOPMISO).word(1, 0xbeef).word(2, 0x4110).build())
	require.True(t, fx.sensor.Update())
	require.Equal(t, StateOther, fx.session.State())
	require.Equal(t, OpChallengeNOPMISO, fx.session.ReceivedOpcode())
	rec := fx.sensor.Record()
	require.Equal(t, OpChallengeNOPMISO, rec.Opcode)
	require.Equal(t, uint16(0xbeef), rec.Raw.Word(1))
	require.Equal(t, uint64(1), fx.session.Stats().Others)
}

func TestSessionDecodesPendingFrameBeforeArm(t *testing.T) {
	fx := newSessionFixture(t)
	other := NewSensor("s1", fx.session, nil)

	require.True(t, fx.sensor.Request())
	fx.port.frame(t, alphaResponse(77, 3))
	require.Equal(t, StateReceived, fx.session.State())

	require.True(t, other.Request())
	require.Equal(t, uint16(77), fx.sensor.Alpha())
	require.True(t, fx.sensor.Update())
	require.False(t, other.Update())
}

func TestSessionUpdateIgnoresOtherOwner(t *testing.T) {
	fx := newSessionFixture(t)
	other := NewSensor("s1", fx.session, nil)
	require.True(t, fx.sensor.Request())
	fx.port.frame(t, alphaResponse(1, 1))
	require.False(t, other.Update())
	require.Equal(t, StateReceived, fx.session.State())
	require.True(t, fx.sensor.Update())
}

func TestSessionSpuriousByte(t *testing.T) {
	fx := newSessionFixture(t)
	fx.session.OnByteExchanged(0xaa)
	require.False(t, fx.session.IsBusy())
	require.Equal(t, uint64(1), fx.session.Stats().SpuriousBytes)
}

func TestSessionOnComplete(t *testing.T) {
	fx := newSessionFixture(t)
	completed := 0
	fx.session.OnComplete = func() {
		require.False(t, fx.session.IsBusy())
		completed++
	}
	require.True(t, fx.sensor.Request())
	fx.port.frame(t, alphaResponse(1, 1))
	require.Equal(t, 1, completed)
	f, ok := fx.session.LastFrame()
	require.True(t, ok)
	require.Equal(t, alphaResponse(1, 1), f)
}

func TestSessionCustomChecksum(t *testing.T) {
	fx := newSessionFixture(t)
	fx.session.Checksum = func([]byte) byte { return 0x42 }
	f := response(TypeAlpha).word(0, 9).roll(1).build()
	f[checksumOffset] = 0x42
	require.True(t, fx.sensor.Request())
	fx.port.frame(t, f)
	require.True(t, fx.sensor.Update())
	require.Equal(t, uint16(9), fx.sensor.Alpha())
}

func TestSensorTimingGate(t *testing.T) {
	fx := newSessionFixture(t)
	require.True(t, fx.sensor.IsMeasurementReady())
	require.True(t, fx.sensor.Request())
	require.False(t, fx.sensor.IsMeasurementReady())

	fx.clock.advance(MinSettlingInterval)
	require.False(t, fx.sensor.IsMeasurementReady())
	fx.clock.advance(time.Microsecond)
	require.True(t, fx.sensor.IsMeasurementReady())

	fx.port.frame(t, alphaResponse(1, 1))
	fx.sensor.Settling = time.Millisecond * 5
	require.True(t, fx.sensor.Request())
	fx.clock.advance(time.Millisecond)
	require.False(t, fx.sensor.IsMeasurementReady())
	fx.clock.advance(time.Millisecond * 5)
	require.True(t, fx.sensor.IsMeasurementReady())
}

func TestSensorRequestGET(t *testing.T) {
	fx := newSessionFixture(t)
	require.True(t, fx.sensor.RequestGET(OpGET2, TypeXYZ, 10, true))
	require.Equal(t, EncodeGET(OpGET2, TypeXYZ, 10, true), fx.session.Staged())
	fx.port.frame(t, response(TypeXYZ).word(0, 0x3ffe).roll(4).build())
	require.True(t, fx.sensor.Update())
	require.Equal(t, int16(-2), fx.sensor.X())
	require.Equal(t, int16(0), fx.sensor.Y())
	require.Equal(t, int16(0), fx.sensor.Z())
	require.Equal(t, uint16(0), fx.sensor.Beta())
	require.Equal(t, uint8(0), fx.sensor.Err())

	fx.sensor.SetMeasurement(OpGET1, TypeAlphaBeta, 0xffff, false)
	require.True(t, fx.sensor.Request())
	require.Equal(t, EncodeGET(OpGET1, TypeAlphaBeta, 0xffff, false), fx.session.Staged())
}

func TestSensorResetRollOnce(t *testing.T) {
	fx := newSessionFixture(t)
	reset := EncodeGET(OpGET1, TypeAlpha, 0xffff, true)
	steady := EncodeGET(OpGET1, TypeAlpha, 0xffff, false)
	fx.sensor.SetMeasurement(OpGET1, TypeAlpha, 0xffff, true)
	require.True(t, fx.sensor.ResetPending())
	require.Equal(t, steady, fx.sensor.RequestFrame())

	require.True(t, fx.sensor.Request())
	require.Equal(t, reset, fx.session.Staged())
	require.False(t, fx.sensor.ResetPending())
	require.False(t, fx.sensor.Request(), "busy")
	fx.port.frame(t, alphaResponse(1, 5))

	require.True(t, fx.sensor.Request())
	require.Equal(t, steady, fx.session.Staged())
	fx.port.frame(t, alphaResponse(2, 1))
	require.True(t, fx.sensor.Request())
	require.Equal(t, steady, fx.session.Staged())
	fx.port.frame(t, alphaResponse(3, 2))

	var roll uint8
	require.True(t, fx.sensor.Update())
	require.True(t, fx.sensor.HasNewData(&roll))
	require.Equal(t, uint16(3), fx.sensor.Alpha())
}

func TestSensorResetRollRetriedWhileBusy(t *testing.T) {
	fx := newSessionFixture(t)
	other := NewSensor("s1", fx.session, nil)
	require.True(t, other.Request())
	fx.sensor.SetRequest(EncodeGET(OpGET2, TypeXYZ, 10, true))
	require.False(t, fx.sensor.Request())
	require.True(t, fx.sensor.ResetPending())
	fx.port.frame(t, alphaResponse(1, 1))

	require.True(t, fx.sensor.Request())
	require.Equal(t, EncodeGET(OpGET2, TypeXYZ, 10, true), fx.session.Staged())
	require.Equal(t, EncodeGET(OpGET2, TypeXYZ, 10, false), fx.sensor.RequestFrame())
}

func TestSessionRefusesNilOwner(t *testing.T) {
	fx := newSessionFixture(t)
	require.False(t, fx.session.Arm(nil))
	require.False(t, fx.session.Request(nil, EncodeNOP(1)))
	require.False(t, fx.session.IsBusy())
	require.Empty(t, fx.port.sent)
	require.Nil(t, fx.session.Owner())
}
