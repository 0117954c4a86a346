// Package env sets up the bus, sensors and telemetry of a node from
// flags, environment variables and a sensor definition file.
package env

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
	"periph.io/x/conn/v3/physic"

	"github.com/robotalks/mlx90363/pkg/mlx90363"
	"github.com/robotalks/mlx90363/pkg/mlx90363/port"
)

// Bus names which are not SPI ports.
const (
	BusSim          = "sim"
	BusStreamPrefix = "stream:"
	BusFilePrefix   = "file:"
)

// SensorConfig defines one sensor on the bus.
type SensorConfig struct {
	Name string `yaml:"name"`
	// CS is the GPIO name of the chip select, empty when the SPI port
	// drives it.
	CS string `yaml:"cs"`
	// Type is alpha, alphabeta or xyz.
	Type string `yaml:"type"`
	// Opcode is get1, get2 or get3.
	Opcode    string        `yaml:"opcode"`
	Timeout   uint16        `yaml:"timeout"`
	ResetRoll bool          `yaml:"reset_roll"`
	Settling  time.Duration `yaml:"settling"`
}

// Config provides options to setup the env of a node.
type Config struct {
	// Bus is an SPI port name, "sim", "stream:<tty>[@baud]" for a serial
	// bridge or "file:<path>" for a bridge behind a FIFO or pty.
	Bus string `yaml:"bus"`
	// Baud is the serial bridge line speed unless given in Bus.
	Baud int `yaml:"baud"`
	// Speed is the SPI clock, e.g. 1MHz.
	Speed string `yaml:"speed"`
	// Interval is the period of the control loop.
	Interval time.Duration `yaml:"interval"`
	// MQTTBrokerURL specifies the MQTT broker to use.
	// e.g. mqtt://host:port/topic-prefix
	MQTTBrokerURL string `yaml:"mqtt"`
	// Listen is the HTTP address serving /metrics and /ws.
	Listen string `yaml:"listen"`
	// Node identifies the node in telemetry topics.
	Node    string         `yaml:"node"`
	Sensors []SensorConfig `yaml:"sensors"`

	// ConfigFile is loaded by NewEnv when set.
	ConfigFile string `yaml:"-"`
}

var defaultConfig = Config{
	Speed:    mlx90363.DefaultSpeed.String(),
	Interval: time.Millisecond,
	Listen:   ":9363",
}

func init() {
	if val := os.Getenv("MLX_SPI"); val != "" {
		defaultConfig.Bus = val
	}
	if val := os.Getenv("MLX_MQTT_URL"); val != "" {
		defaultConfig.MQTTBrokerURL = val
	}
	if val := os.Getenv("MLX_CONFIG"); val != "" {
		defaultConfig.ConfigFile = val
	}
}

// SetupFlags sets command line flags.
func SetupFlags() {
	flag.StringVar(&defaultConfig.Bus, "bus", defaultConfig.Bus, "SPI port, sim, stream:TTY[@BAUD] or file:PATH")
	flag.IntVar(&defaultConfig.Baud, "baud", defaultConfig.Baud, "Serial bridge baud rate")
	flag.StringVar(&defaultConfig.Speed, "speed", defaultConfig.Speed, "SPI clock")
	flag.DurationVar(&defaultConfig.Interval, "interval", defaultConfig.Interval, "Control loop interval")
	flag.StringVar(&defaultConfig.MQTTBrokerURL, "mqtt", defaultConfig.MQTTBrokerURL, "MQTT broker URL")
	flag.StringVar(&defaultConfig.Listen, "listen", defaultConfig.Listen, "HTTP listen address")
	flag.StringVar(&defaultConfig.Node, "node", defaultConfig.Node, "Node ID, defaults to the machine ID")
	flag.StringVar(&defaultConfig.ConfigFile, "config", defaultConfig.ConfigFile, "Sensor definition file")
}

// NewConfig creates a Config with default configurations.
func NewConfig() *Config {
	conf := defaultConfig
	conf.Sensors = append([]SensorConfig(nil), defaultConfig.Sensors...)
	return &conf
}

// Load merges a YAML definition file into the config. Fields set in the
// file override the current values.
func (c *Config) Load(fn string) error {
	data, err := os.ReadFile(fn)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse %s error: %v", fn, err)
	}
	return nil
}

// SerialBridge parses a "stream:" bus into the tty path and baud rate.
func (c *Config) SerialBridge() (path string, baud int, err error) {
	path = strings.TrimPrefix(c.Bus, BusStreamPrefix)
	baud = c.Baud
	if pos := strings.LastIndex(path, "@"); pos >= 0 {
		if baud, err = strconv.Atoi(path[pos+1:]); err != nil || baud <= 0 {
			return "", 0, fmt.Errorf("invalid baud rate in %q", c.Bus)
		}
		path = path[:pos]
	}
	if path == "" {
		return "", 0, fmt.Errorf("serial device expected in %q", c.Bus)
	}
	if baud <= 0 {
		baud = port.DefaultBaudRate
	}
	return path, baud, nil
}

// Frequency parses Speed.
func (c *Config) Frequency() (physic.Frequency, error) {
	if c.Speed == "" {
		return mlx90363.DefaultSpeed, nil
	}
	var f physic.Frequency
	if err := f.Set(c.Speed); err != nil {
		return 0, fmt.Errorf("invalid speed %q: %v", c.Speed, err)
	}
	return f, nil
}

// Measurement gets the GET request parameters of the sensor.
func (s *SensorConfig) Measurement() (op mlx90363.Opcode, typ mlx90363.MessageType, timeout uint16, err error) {
	typ = mlx90363.TypeAlpha
	if s.Type != "" {
		if typ, err = mlx90363.ParseMessageType(s.Type); err != nil {
			return
		}
	}
	switch strings.ToLower(s.Opcode) {
	case "", "get1":
		op = mlx90363.OpGET1
	case "get2":
		op = mlx90363.OpGET2
	case "get3":
		op = mlx90363.OpGET3
	default:
		err = fmt.Errorf("sensor %s: unknown opcode %q", s.Name, s.Opcode)
		return
	}
	timeout = s.Timeout
	if timeout == 0 {
		timeout = mlx90363.DefaultTimeout
	}
	return
}

func (c *Config) validate() error {
	if len(c.Sensors) == 0 {
		c.Sensors = []SensorConfig{{Name: "s0"}}
	}
	names := make(map[string]bool)
	for n := range c.Sensors {
		s := &c.Sensors[n]
		if s.Name == "" {
			s.Name = fmt.Sprintf("s%d", n)
		}
		if names[s.Name] {
			return fmt.Errorf("duplicated sensor %q", s.Name)
		}
		names[s.Name] = true
		if strings.ContainsAny(s.Name, "/+#") {
			return fmt.Errorf("invalid sensor name %q", s.Name)
		}
		if s.Settling != 0 && s.Settling < mlx90363.MinSettlingInterval {
			return fmt.Errorf("sensor %s: settling %v below %v", s.Name, s.Settling, mlx90363.MinSettlingInterval)
		}
		if _, _, _, err := s.Measurement(); err != nil {
			return err
		}
	}
	return nil
}
