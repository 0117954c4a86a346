// Package telemetry forwards fresh sensor measurements to sinks.
package telemetry

import (
	"time"

	"github.com/robotalks/mlx90363/pkg/framework"
	"github.com/robotalks/mlx90363/pkg/mlx90363"
	"github.com/robotalks/mlx90363/pkg/telemetry/msgs"
)

// Sink receives measurements.
type Sink interface {
	Publish(*msgs.Measurement) error
}

// SinkFunc is the func form of Sink.
type SinkFunc func(*msgs.Measurement) error

// Publish implements Sink.
func (f SinkFunc) Publish(m *msgs.Measurement) error { return f(m) }

// FromRecord converts a decoded record.
func FromRecord(sensor string, rec mlx90363.Record, at time.Time) *msgs.Measurement {
	return &msgs.Measurement{
		Sensor:    sensor,
		Type:      rec.Type.String(),
		Alpha:     uint32(rec.Alpha),
		Beta:      uint32(rec.Beta),
		X:         int32(rec.X),
		Y:         int32(rec.Y),
		Z:         int32(rec.Z),
		Err:       uint32(rec.Err),
		VG:        uint32(rec.VG),
		Roll:      uint32(rec.Roll),
		Timestamp: at.UnixNano(),
	}
}

// Publisher is a loop controller sending each new measurement to all sinks.
type Publisher struct {
	Sinks []Sink

	sensors []*mlx90363.Sensor
	rolls   []uint8
}

// NewPublisher creates a Publisher watching sensors.
func NewPublisher(sensors ...*mlx90363.Sensor) *Publisher {
	return &Publisher{
		sensors: sensors,
		rolls:   make([]uint8, len(sensors)),
	}
}

// AddSink appends sinks.
func (p *Publisher) AddSink(sinks ...Sink) *Publisher {
	p.Sinks = append(p.Sinks, sinks...)
	return p
}

// AddToLoop implements framework.LoopAdder.
func (p *Publisher) AddToLoop(l *framework.Loop) {
	l.AddController(framework.PrLvPostProc, p)
}

// Control implements framework.Controller.
func (p *Publisher) Control(cc framework.ControlContext) error {
	return p.Publish(cc.Time())
}

// Publish sends the measurements of sensors with new data.
func (p *Publisher) Publish(now time.Time) error {
	var errs framework.AggregatedError
	for n, s := range p.sensors {
		if !s.HasNewData(&p.rolls[n]) {
			continue
		}
		m := FromRecord(s.Name, s.Record(), now)
		for _, sink := range p.Sinks {
			errs.Add(sink.Publish(m))
		}
	}
	return errs.Aggregate()
}
