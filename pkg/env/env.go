package env

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"github.com/golang/glog"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"

	fx "github.com/robotalks/mlx90363/pkg/framework"
	"github.com/robotalks/mlx90363/pkg/mlx90363"
	"github.com/robotalks/mlx90363/pkg/mlx90363/port"
	"github.com/robotalks/mlx90363/pkg/mlx90363/port/sim"
)

// Env is a bus with its sensors, ready to be added to a loop.
type Env struct {
	Config  *Config
	Port    *port.Async
	Session *mlx90363.Session
	Sensors []*mlx90363.Sensor
	Poller  *mlx90363.Poller
	// Device is the simulated device when Bus is "sim".
	Device *sim.Device

	closer io.Closer
}

// NewEnv creates Env from config.
func (c *Config) NewEnv() (*Env, error) {
	if c.ConfigFile != "" {
		if err := c.Load(c.ConfigFile); err != nil {
			return nil, err
		}
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	if c.Node == "" {
		c.Node = MachineID()
	}
	speed, err := c.Frequency()
	if err != nil {
		return nil, err
	}

	env := &Env{Config: c}
	transferer, err := env.openBus()
	if err != nil {
		return nil, err
	}
	env.Port = port.NewAsync(transferer)
	env.Session = mlx90363.NewSession(env.Port)
	for _, sc := range c.Sensors {
		sensor, err := env.newSensor(sc)
		if err != nil {
			env.Close()
			return nil, err
		}
		env.Sensors = append(env.Sensors, sensor)
	}
	if err := env.Session.Init(); err != nil {
		env.Close()
		return nil, fmt.Errorf("init bus %s error: %v", c.Bus, err)
	}
	if speed != mlx90363.DefaultSpeed {
		if err := env.Session.SetSpeed(speed); err != nil {
			env.Close()
			return nil, fmt.Errorf("set speed %v error: %v", speed, err)
		}
	}
	env.Poller = mlx90363.NewPoller(env.Session, env.Sensors...)
	glog.Infof("bus %s: %d sensors at %v", c.Bus, len(env.Sensors), speed)
	return env, nil
}

// MustNewEnv creates Env and fails on error.
func (c *Config) MustNewEnv() *Env {
	env, err := c.NewEnv()
	if err != nil {
		log.Fatalln(err)
	}
	return env
}

func (e *Env) openBus() (port.Transferer, error) {
	bus := e.Config.Bus
	switch {
	case bus == BusSim:
		e.Device = sim.New()
		return e.Device, nil
	case strings.HasPrefix(bus, BusStreamPrefix):
		path, baud, err := e.Config.SerialBridge()
		if err != nil {
			return nil, err
		}
		s, err := port.OpenSerial(path, baud, port.DefaultReadTimeout)
		if err != nil {
			return nil, err
		}
		glog.Infof("serial bridge %s at %d baud", path, baud)
		e.closer = s
		return s, nil
	case strings.HasPrefix(bus, BusFilePrefix):
		f, err := os.OpenFile(strings.TrimPrefix(bus, BusFilePrefix), os.O_RDWR, 0)
		if err != nil {
			return nil, err
		}
		s := port.NewStream(f)
		e.closer = s
		return s, nil
	}
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("init host drivers error: %v", err)
	}
	s, err := port.OpenSPI(bus)
	if err != nil {
		return nil, err
	}
	e.closer = s
	return s, nil
}

func (e *Env) newSensor(sc SensorConfig) (*mlx90363.Sensor, error) {
	var cs mlx90363.ChipSelect
	if sc.CS != "" {
		pin := gpioreg.ByName(sc.CS)
		if pin == nil {
			return nil, fmt.Errorf("sensor %s: unknown chip select %q", sc.Name, sc.CS)
		}
		if err := pin.Out(gpio.High); err != nil {
			return nil, fmt.Errorf("sensor %s: chip select %s: %v", sc.Name, sc.CS, err)
		}
		cs = pin
	}
	op, typ, timeout, err := sc.Measurement()
	if err != nil {
		return nil, err
	}
	sensor := mlx90363.NewSensor(sc.Name, e.Session, cs)
	sensor.SetMeasurement(op, typ, timeout, sc.ResetRoll)
	if sc.Settling > 0 {
		sensor.Settling = sc.Settling
	}
	return sensor, nil
}

// Sensor finds a sensor by name.
func (e *Env) Sensor(name string) *mlx90363.Sensor {
	for _, s := range e.Sensors {
		if s.Name == name {
			return s
		}
	}
	return nil
}

// SensorNames lists the names of all sensors.
func (e *Env) SensorNames() []string {
	names := make([]string, len(e.Sensors))
	for n, s := range e.Sensors {
		names[n] = s.Name
	}
	return names
}

// AddToLoop adds the port and the poller to loop.
func (e *Env) AddToLoop(loop *fx.Loop) {
	loop.AddRunnable(e.Port)
	loop.Add(e.Poller)
}

// Close releases the bus.
func (e *Env) Close() error {
	if e.closer != nil {
		return e.closer.Close()
	}
	return nil
}
