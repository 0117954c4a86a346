package env

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/physic"

	fx "github.com/robotalks/mlx90363/pkg/framework"
	"github.com/robotalks/mlx90363/pkg/mlx90363"
	"github.com/robotalks/mlx90363/pkg/mlx90363/port"
)

const sensorsYAML = `
bus: sim
speed: 2MHz
sensors:
  - name: knee
    type: alphabeta
    opcode: get2
    reset_roll: true
    settling: 2ms
  - name: hip
    type: xyz
    timeout: 100
  - {}
`

func writeFile(t *testing.T, content string) string {
	fn := filepath.Join(t.TempDir(), "sensors.yaml")
	require.NoError(t, os.WriteFile(fn, []byte(content), 0644))
	return fn
}

func TestConfigLoad(t *testing.T) {
	conf := &Config{Listen: ":1", Node: "n1"}
	require.NoError(t, conf.Load(writeFile(t, sensorsYAML)))
	require.NoError(t, conf.validate())
	require.Equal(t, BusSim, conf.Bus)
	require.Equal(t, ":1", conf.Listen)
	require.Len(t, conf.Sensors, 3)
	require.Equal(t, "s2", conf.Sensors[2].Name)
	require.Equal(t, 2*time.Millisecond, conf.Sensors[0].Settling)

	f, err := conf.Frequency()
	require.NoError(t, err)
	require.Equal(t, 2*physic.MegaHertz, f)

	op, typ, timeout, err := conf.Sensors[0].Measurement()
	require.NoError(t, err)
	require.Equal(t, mlx90363.OpGET2, op)
	require.Equal(t, mlx90363.TypeAlphaBeta, typ)
	require.Equal(t, mlx90363.DefaultTimeout, timeout)

	op, typ, timeout, err = conf.Sensors[1].Measurement()
	require.NoError(t, err)
	require.Equal(t, mlx90363.OpGET1, op)
	require.Equal(t, mlx90363.TypeXYZ, typ)
	require.Equal(t, uint16(100), timeout)
}

func TestConfigValidate(t *testing.T) {
	testCases := []struct {
		name    string
		sensors []SensorConfig
	}{
		{"duplicated", []SensorConfig{{Name: "a"}, {Name: "a"}}},
		{"topic chars", []SensorConfig{{Name: "a/b"}}},
		{"settling", []SensorConfig{{Name: "a", Settling: time.Microsecond}}},
		{"type", []SensorConfig{{Name: "a", Type: "beta"}}},
		{"opcode", []SensorConfig{{Name: "a", Opcode: "nop"}}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			conf := &Config{Sensors: tc.sensors}
			require.Error(t, conf.validate())
		})
	}

	conf := &Config{}
	require.NoError(t, conf.validate())
	require.Equal(t, []SensorConfig{{Name: "s0"}}, conf.Sensors)
}

func TestConfigFrequency(t *testing.T) {
	f, err := (&Config{}).Frequency()
	require.NoError(t, err)
	require.Equal(t, mlx90363.DefaultSpeed, f)
	_, err = (&Config{Speed: "fast"}).Frequency()
	require.Error(t, err)
}

func TestNewEnvSim(t *testing.T) {
	conf := &Config{Node: "n1", ConfigFile: writeFile(t, sensorsYAML)}
	env, err := conf.NewEnv()
	require.NoError(t, err)
	defer env.Close()

	require.NotNil(t, env.Device)
	require.Equal(t, 2*physic.MegaHertz, env.Device.Speed())
	require.Equal(t, []string{"knee", "hip", "s2"}, env.SensorNames())
	knee := env.Sensor("knee")
	require.NotNil(t, knee)
	require.Nil(t, env.Sensor("none"))
	require.Equal(t, 2*time.Millisecond, knee.Settling)
	req := knee.RequestFrame()
	require.Equal(t, mlx90363.OpGET2, req.Opcode())
	require.Equal(t, mlx90363.TypeAlphaBeta, req.Marker())

	env.Device.SetAngles(0x0123, 0x0456)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	runner := fx.NewRunnerWith(ctx).Go(env.Port)
	defer func() {
		cancel()
		runner.Wait()
	}()

	rx, err := knee.Exchange(ctx, knee.RequestFrame())
	require.NoError(t, err)
	require.Equal(t, mlx90363.TypeAlphaBeta, rx.Marker())
	require.Equal(t, uint16(0x0123), knee.Alpha())
	require.Equal(t, uint16(0x0456), knee.Beta())
}

func TestNewEnvUnknownStream(t *testing.T) {
	dir := t.TempDir()
	for _, bus := range []string{
		BusStreamPrefix + filepath.Join(dir, "missing"),
		BusStreamPrefix + filepath.Join(dir, "missing") + "@9600",
		BusFilePrefix + filepath.Join(dir, "missing"),
	} {
		_, err := (&Config{Node: "n1", Bus: bus}).NewEnv()
		require.Error(t, err, bus)
	}
}

func TestSerialBridge(t *testing.T) {
	testCases := []struct {
		name string
		bus  string
		baud int
		path string
		rate int
		fail bool
	}{
		{name: "default baud", bus: "stream:/dev/ttyUSB0", path: "/dev/ttyUSB0", rate: port.DefaultBaudRate},
		{name: "config baud", bus: "stream:/dev/ttyUSB0", baud: 57600, path: "/dev/ttyUSB0", rate: 57600},
		{name: "inline baud", bus: "stream:/dev/ttyACM1@230400", baud: 57600, path: "/dev/ttyACM1", rate: 230400},
		{name: "bad baud", bus: "stream:/dev/ttyUSB0@fast", fail: true},
		{name: "zero baud", bus: "stream:/dev/ttyUSB0@0", fail: true},
		{name: "no device", bus: "stream:@9600", fail: true},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			path, rate, err := (&Config{Bus: tc.bus, Baud: tc.baud}).SerialBridge()
			if tc.fail {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.path, path)
			require.Equal(t, tc.rate, rate)
		})
	}
}

func TestNewEnvFileBridge(t *testing.T) {
	fn := filepath.Join(t.TempDir(), "bridge")
	require.NoError(t, os.WriteFile(fn, nil, 0644))
	e, err := (&Config{Node: "n1", Bus: BusFilePrefix + fn}).NewEnv()
	require.NoError(t, err)
	require.Nil(t, e.Device)
	require.NoError(t, e.Close())
}

func TestAddToLoop(t *testing.T) {
	env, err := (&Config{Node: "n1", Bus: BusSim}).NewEnv()
	require.NoError(t, err)
	loop := fx.NewLoop(time.Millisecond)
	env.AddToLoop(loop)
	loop.RunOnce(context.Background())
	require.True(t, env.Session.IsBusy())
	require.Same(t, env.Sensors[0], env.Session.Owner())
}
