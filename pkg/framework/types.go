package framework

import (
	"context"
	"time"
)

// Named is implemented by components with a display name.
type Named interface {
	Name() string
}

// Runnable is a background task bound to a context.
type Runnable interface {
	Run(context.Context) error
}

// Controller runs once per loop iteration.
type Controller interface {
	Control(ControlContext) error
}

// ControlFunc is the func form of Controller.
type ControlFunc func(ControlContext) error

// Control implements Controller.
func (f ControlFunc) Control(cc ControlContext) error {
	return f(cc)
}

// TimeSource provides the current time.
type TimeSource interface {
	Time() time.Time
}

// TimeFunc is the func form of TimeSource.
type TimeFunc func() time.Time

// Time implements TimeSource.
func (f TimeFunc) Time() time.Time {
	return f()
}

// SystemTime is the TimeSource backed by the wall clock.
var SystemTime TimeSource = TimeFunc(time.Now)

// LoopControl exposes the running loop to its components.
type LoopControl interface {
	// TriggerNext runs the next iteration as soon as the current one ends.
	TriggerNext()
}

// ControlContext is passed to controllers on each iteration.
type ControlContext interface {
	TimeSource
	LoopControl
	// Context retrieves the loop context.
	Context() context.Context
	// PriorityLevel gets the level currently being run.
	PriorityLevel() int
}

// PriorityLevels is the number of controller priority levels.
const PriorityLevels int = 16

// Priority levels, lower runs first.
const (
	PrLvTop    int = 0
	PrLvHigh   int = 4
	PrLvNormal int = 8
	PrLvLow    int = 12
	PrLvIdle   int = PriorityLevels - 1

	// PrLvSense is where sensors drive their buses.
	PrLvSense = PrLvHigh
	// PrLvControl is where consumers of measurements run.
	PrLvControl = PrLvNormal
	// PrLvPostProc is for publishing and bookkeeping.
	PrLvPostProc = PrLvIdle - 1
)
