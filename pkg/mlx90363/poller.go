package mlx90363

import (
	"github.com/golang/glog"

	"github.com/robotalks/mlx90363/pkg/framework"
)

// Poller drives the sensors sharing one session from a loop. On each
// iteration it picks up completed frames, then arms the next sensor whose
// settling interval has passed, round robin.
type Poller struct {
	Session *Session
	Sensors []*Sensor

	next int
}

// NewPoller creates a Poller for the sensors on session.
func NewPoller(session *Session, sensors ...*Sensor) *Poller {
	return &Poller{Session: session, Sensors: sensors}
}

// AddToLoop implements framework.LoopAdder.
func (p *Poller) AddToLoop(l *framework.Loop) {
	l.AddController(framework.PrLvSense, p)
}

// Control implements framework.Controller.
func (p *Poller) Control(framework.ControlContext) error {
	p.Poll()
	return nil
}

// Poll runs one polling step and returns the sensor armed, if any.
func (p *Poller) Poll() *Sensor {
	for _, s := range p.Sensors {
		s.Update()
	}
	if p.Session.IsBusy() || len(p.Sensors) == 0 {
		return nil
	}
	for n := 0; n < len(p.Sensors); n++ {
		s := p.Sensors[p.next]
		p.next = (p.next + 1) % len(p.Sensors)
		if !s.IsMeasurementReady() {
			continue
		}
		if s.Request() {
			if glog.V(4) {
				glog.Infof("%s: armed %s", s.Name, s.RequestFrame())
			}
			return s
		}
		return nil
	}
	return nil
}
