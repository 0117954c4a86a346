package sh

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/abiosoft/ishell"

	fx "github.com/robotalks/mlx90363/pkg/framework"
	"github.com/robotalks/mlx90363/pkg/env"
	"github.com/robotalks/mlx90363/pkg/mlx90363"
)

// Shell provides ishell backed interactive shell on a bus.
type Shell struct {
	Interactive bool
	OutputJSON  bool
	Timeout     time.Duration

	Shell  *ishell.Shell
	Config *env.Config
	Env    *env.Env
	Sensor *mlx90363.Sensor

	runner *fx.Runner
	cancel func()
}

// Result is the outcome of a frame exchange.
type Result struct {
	Sensor string
	State  mlx90363.ResponseState
	Frame  mlx90363.Frame
	Record mlx90363.Record
}

const (
	shellKey       = "$shell"
	defaultTimeout = time.Second
)

var (
	// flags

	evalOnly   bool
	outputJSON bool

	// commands
	commands = []*ishell.Cmd{
		&SensorsCmd,
		&UseCmd,
		&StatsCmd,
		&SpeedCmd,
	}
)

func init() {
	flag.BoolVar(&evalOnly, "e", evalOnly, "Evaluation only, no interactive shell.")
	flag.BoolVar(&outputJSON, "json", outputJSON, "Print output in JSON.")
}

// AddCmds is used by other commands providers during init func.
func AddCmds(cmds ...*ishell.Cmd) {
	commands = append(commands, cmds...)
}

// New creates a new shell.
func New(conf *env.Config) *Shell {
	s := &Shell{
		Interactive: !evalOnly,
		OutputJSON:  outputJSON,
		Timeout:     defaultTimeout,

		Shell:  ishell.New(),
		Config: conf,
	}
	s.Shell.Set(shellKey, s)
	for _, cmd := range commands {
		s.Shell.AddCmd(cmd)
	}
	return s
}

// ShellFrom gets Shell from ishell context.
func ShellFrom(c *ishell.Context) *Shell {
	return c.Get(shellKey).(*Shell)
}

// MustHaveSensor wraps command func requires a selected sensor.
func MustHaveSensor(fn func(c *ishell.Context)) func(c *ishell.Context) {
	return func(c *ishell.Context) {
		if ShellFrom(c).Sensor == nil {
			c.Err(fmt.Errorf("no sensor selected"))
			return
		}
		fn(c)
	}
}

// Open creates the env and starts the bus.
func (s *Shell) Open() error {
	e, err := s.Config.NewEnv()
	if err != nil {
		return err
	}
	return s.Attach(e)
}

// Attach starts the bus of an existing env and selects its first sensor.
func (s *Shell) Attach(e *env.Env) error {
	if len(e.Sensors) == 0 {
		return fmt.Errorf("no sensors")
	}
	s.Close()
	ctx, cancel := context.WithCancel(context.Background())
	s.Env, s.cancel = e, cancel
	s.runner = fx.NewRunnerWith(ctx).Go(e.Port)
	return s.Use(e.Sensors[0].Name)
}

// Close stops the bus.
func (s *Shell) Close() {
	if s.cancel != nil {
		s.cancel()
		s.runner.Wait()
		s.cancel, s.runner = nil, nil
		s.Env.Close()
	}
}

// Use selects the sensor by name.
func (s *Shell) Use(name string) error {
	if s.Env == nil {
		return fmt.Errorf("bus not open")
	}
	sensor := s.Env.Sensor(name)
	if sensor == nil {
		return fmt.Errorf("unknown sensor %q", name)
	}
	s.Sensor = sensor
	s.Shell.SetPrompt(fmt.Sprintf("%s > ", name))
	return nil
}

// Exchange sends f to the selected sensor and waits for the answer.
func (s *Shell) Exchange(f mlx90363.Frame) (*Result, error) {
	if s.Sensor == nil {
		return nil, fmt.Errorf("no sensor selected")
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.Timeout)
	defer cancel()
	rx, err := s.Sensor.Exchange(ctx, f)
	res := &Result{
		Sensor: s.Sensor.Name,
		State:  s.Sensor.Session().State(),
		Frame:  rx,
		Record: s.Sensor.Record(),
	}
	return res, err
}

// DoExchange runs an exchange and prints the result.
func DoExchange(c *ishell.Context, f mlx90363.Frame) (*Result, error) {
	s := ShellFrom(c)
	res, err := s.Exchange(f)
	if err != nil {
		c.Err(err)
		return res, err
	}
	if s.OutputJSON {
		out, err := json.Marshal(res)
		if err != nil {
			c.Err(err)
			return res, err
		}
		c.Println(string(out))
		return res, nil
	}
	c.Println(res.String())
	return res, nil
}

// MarshalJSON implements json.Marshaler.
func (r *Result) MarshalJSON() ([]byte, error) {
	out := map[string]interface{}{
		"sensor": r.Sensor,
		"state":  r.State.String(),
		"frame":  hex.EncodeToString(r.Frame[:]),
	}
	rec := r.Record
	switch r.State {
	case mlx90363.StateXYZ:
		out["x"], out["y"], out["z"] = rec.X, rec.Y, rec.Z
	case mlx90363.StateAlphaBeta:
		out["beta"] = rec.Beta
		fallthrough
	case mlx90363.StateAlpha:
		out["alpha"], out["vg"] = rec.Alpha, rec.VG
	case mlx90363.StateOther:
		out["opcode"] = rec.Opcode.String()
		out["status"] = rec.Status
	}
	if r.State.Measurement() {
		out["err"], out["roll"] = rec.Err, rec.Roll
	}
	return json.Marshal(out)
}

// String formats the result for display.
func (r *Result) String() string {
	rec := r.Record
	var detail string
	switch r.State {
	case mlx90363.StateAlpha:
		detail = fmt.Sprintf("alpha=%d vg=%d", rec.Alpha, rec.VG)
	case mlx90363.StateAlphaBeta:
		detail = fmt.Sprintf("alpha=%d beta=%d vg=%d", rec.Alpha, rec.Beta, rec.VG)
	case mlx90363.StateXYZ:
		detail = fmt.Sprintf("x=%d y=%d z=%d", rec.X, rec.Y, rec.Z)
	case mlx90363.StateOther:
		detail = rec.Opcode.String()
	}
	if r.State.Measurement() {
		detail += fmt.Sprintf(" err=%d roll=%d", rec.Err, rec.Roll)
	}
	return strings.TrimSpace(fmt.Sprintf("%s [%s] %s", r.State, r.Frame, detail))
}

// ParseUint16 accepts decimal or 0x prefixed values.
func ParseUint16(s string) (uint16, error) {
	v, err := strconv.ParseUint(s, 0, 16)
	return uint16(v), err
}

var frameSeparators = strings.NewReplacer("-", "", ":", "", " ", "")

// ParseFrame parses hex bytes, separated or not. Seven bytes are sealed
// with the checksum, eight are sent as is.
func ParseFrame(args []string) (f mlx90363.Frame, err error) {
	var digits strings.Builder
	for _, arg := range args {
		arg = strings.TrimPrefix(strings.ToLower(arg), "0x")
		digits.WriteString(frameSeparators.Replace(arg))
	}
	data, err := hex.DecodeString(digits.String())
	if err != nil {
		return f, fmt.Errorf("invalid frame: %v", err)
	}
	switch len(data) {
	case mlx90363.FrameLength - 1:
		copy(f[:], data)
		f.Seal()
	case mlx90363.FrameLength:
		copy(f[:], data)
	default:
		return f, fmt.Errorf("invalid frame length %d", len(data))
	}
	return f, nil
}

// Run runs the shell.
func (s *Shell) Run(args ...string) {
	if err := s.Open(); err != nil {
		log.Fatalf("open bus %q failed: %v", s.Config.Bus, err)
	}
	defer s.Close()

	if len(args) > 0 {
		if err := s.Shell.Process(args...); err != nil {
			log.Fatalln(err)
		}
		return
	}
	if s.Interactive {
		s.Shell.Run()
		return
	}
	log.Fatalln("command expected")
}

var (
	// SensorsCmd lists sensors on the bus.
	SensorsCmd = ishell.Cmd{
		Name:    "sensors",
		Aliases: []string{"list", "l"},
		Help:    "",
		Func: func(c *ishell.Context) {
			s := ShellFrom(c)
			if s.OutputJSON {
				out, err := json.Marshal(s.Env.SensorNames())
				if err != nil {
					c.Err(err)
					return
				}
				c.Println(string(out))
				return
			}
			for _, sensor := range s.Env.Sensors {
				mark := " "
				if sensor == s.Sensor {
					mark = "*"
				}
				req := sensor.RequestFrame()
				c.Printf("%s %s: %s %s\n", mark, sensor.Name, req.Opcode(), req.Marker())
			}
		},
	}

	// UseCmd selects a sensor.
	UseCmd = ishell.Cmd{
		Name:    "use",
		Aliases: []string{"u"},
		Help:    "SENSOR",
		Func: func(c *ishell.Context) {
			if len(c.Args) != 1 {
				c.Err(fmt.Errorf("sensor name expected"))
				return
			}
			if err := ShellFrom(c).Use(c.Args[0]); err != nil {
				c.Err(err)
			}
		},
	}

	// StatsCmd prints session counters.
	StatsCmd = ishell.Cmd{
		Name:    "stats",
		Aliases: []string{"st"},
		Help:    "",
		Func: func(c *ishell.Context) {
			s := ShellFrom(c)
			stats := s.Env.Session.Stats()
			total, failed := s.Env.Port.Transfers()
			if s.OutputJSON {
				out, err := json.Marshal(struct {
					mlx90363.Stats
					State     string
					Transfers uint64
					Failures  uint64
				}{stats, s.Env.Session.State().String(), total, failed})
				if err != nil {
					c.Err(err)
					return
				}
				c.Println(string(out))
				return
			}
			c.Printf("state=%s frames=%d crc=%d other=%d rejected=%d spurious=%d transfers=%d failed=%d\n",
				s.Env.Session.State(), stats.Frames, stats.ChecksumFailures, stats.Others,
				stats.RejectedArms, stats.SpuriousBytes, total, failed)
		},
	}

	// SpeedCmd changes the bus clock.
	SpeedCmd = ishell.Cmd{
		Name: "speed",
		Help: "FREQUENCY",
		Func: func(c *ishell.Context) {
			if len(c.Args) != 1 {
				c.Err(fmt.Errorf("frequency expected, e.g. 1MHz"))
				return
			}
			conf := env.Config{Speed: c.Args[0]}
			f, err := conf.Frequency()
			if err != nil {
				c.Err(err)
				return
			}
			if err := ShellFrom(c).Env.Session.SetSpeed(f); err != nil {
				c.Err(err)
				return
			}
			c.Println("OK")
		},
	}
)

// Main is a helper to provide a single call in main.
func Main() {
	env.SetupFlags()
	flag.Parse()
	New(env.NewConfig()).Run(flag.Args()...)
}
