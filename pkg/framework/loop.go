package framework

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/golang/glog"
)

// DefaultInterval is used when Loop.Interval is not set.
const DefaultInterval = 100 * time.Millisecond

// Loop runs controllers periodically ordered by priority, and
// keeps Runnables alive alongside.
type Loop struct {
	Interval time.Duration
	Clock    TimeSource

	levels  [PriorityLevels][]Controller
	runners []Runnable
	lock    sync.Mutex

	wakeUpCh chan struct{}
	initOnce sync.Once
}

// LoopAdder knows how to install itself into a Loop.
type LoopAdder interface {
	AddToLoop(*Loop)
}

type loopIteration struct {
	*Loop
	ctx   context.Context
	now   time.Time
	level int
}

type loopCtxKeyType struct{}

var loopCtxKey loopCtxKeyType

// LoopCtlFrom gets the LoopControl injected by Loop.Run.
func LoopCtlFrom(ctx context.Context) LoopControl {
	if ctl, ok := ctx.Value(loopCtxKey).(LoopControl); ok {
		return ctl
	}
	return nopLoopControl{}
}

type nopLoopControl struct{}

func (nopLoopControl) TriggerNext() {}

// NewLoop creates a Loop with the given interval.
func NewLoop(interval time.Duration) *Loop {
	return &Loop{Interval: interval}
}

func (l *Loop) init() {
	l.initOnce.Do(func() {
		l.wakeUpCh = make(chan struct{}, 1)
	})
}

// Add installs LoopAdders.
func (l *Loop) Add(adders ...LoopAdder) *Loop {
	for _, adder := range adders {
		adder.AddToLoop(l)
	}
	return l
}

// AddController registers controllers at a priority level.
// Controllers which are also Runnable are started with the loop.
func (l *Loop) AddController(level int, ctls ...Controller) *Loop {
	l.lock.Lock()
	defer l.lock.Unlock()
	l.levels[level] = append(l.levels[level], ctls...)
	for _, ctl := range ctls {
		if r, ok := ctl.(Runnable); ok {
			l.runners = append(l.runners, r)
		}
	}
	return l
}

// AddRunnable registers background runners.
func (l *Loop) AddRunnable(runners ...Runnable) *Loop {
	l.lock.Lock()
	l.runners = append(l.runners, runners...)
	l.lock.Unlock()
	return l
}

// TriggerNext implements LoopControl.
func (l *Loop) TriggerNext() {
	l.init()
	select {
	case l.wakeUpCh <- struct{}{}:
	default:
	}
}

// Run implements Runnable.
func (l *Loop) Run(ctx context.Context) error {
	l.init()
	ctx = context.WithValue(ctx, loopCtxKey, LoopControl(l))

	l.lock.Lock()
	runners := append([]Runnable(nil), l.runners...)
	l.lock.Unlock()
	runner := NewRunnerWith(ctx).Go(runners...)
	defer runner.Wait()

	interval := l.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			l.RunOnce(ctx)
		case <-l.wakeUpCh:
			l.RunOnce(ctx)
		}
	}
}

// RunOnce runs a single iteration over all priority levels.
func (l *Loop) RunOnce(ctx context.Context) {
	clock := l.Clock
	if clock == nil {
		clock = SystemTime
	}
	iter := &loopIteration{Loop: l, now: clock.Time()}
	iter.ctx = ctx
	for level := 0; level < PriorityLevels; level++ {
		l.lock.Lock()
		ctls := l.levels[level]
		l.lock.Unlock()
		iter.level = level
		for _, ctl := range ctls {
			if err := ctl.Control(iter); err != nil {
				glog.Errorf("controller error at level %d: %v", level, err)
			}
		}
	}
}

// RunOrFail runs the loop until interrupted and exits on error.
func (l *Loop) RunOrFail() {
	runner := NewRunner().HandleSignals()
	if err := l.Run(runner.Context); err != nil && err != context.Canceled {
		log.Fatalln(err)
	}
}

func (t *loopIteration) Context() context.Context { return t.ctx }
func (t *loopIteration) Time() time.Time          { return t.now }
func (t *loopIteration) PriorityLevel() int       { return t.level }
