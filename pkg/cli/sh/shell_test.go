package sh

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/robotalks/mlx90363/pkg/env"
	"github.com/robotalks/mlx90363/pkg/mlx90363"
)

func TestParseFrame(t *testing.T) {
	nop := mlx90363.EncodeNOP(0x1234)
	testCases := []struct {
		name   string
		args   []string
		expect mlx90363.Frame
		fail   bool
	}{
		{"sealed", []string{nop.String()}, nop, false},
		{"split", []string{"00 00", "34 12 00 00 d0"}, nop, false},
		{"prefixed", []string{"0x00", "0x00", "0x34", "0x12", "0x00", "0x00", "0xd0"}, nop, false},
		{"raw", []string{"0000341200000000"}, mlx90363.Frame{0, 0, 0x34, 0x12}, false},
		{"short", []string{"0102"}, mlx90363.Frame{}, true},
		{"bad hex", []string{"zz"}, mlx90363.Frame{}, true},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			f, err := ParseFrame(tc.args)
			if tc.fail {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.expect, f)
		})
	}
}

func TestParseUint16(t *testing.T) {
	v, err := ParseUint16("0x1f")
	require.NoError(t, err)
	require.Equal(t, uint16(0x1f), v)
	_, err = ParseUint16("70000")
	require.Error(t, err)
}

func TestResultFormat(t *testing.T) {
	res := &Result{
		Sensor: "s0",
		State:  mlx90363.StateAlphaBeta,
		Record: mlx90363.Record{Alpha: 1, Beta: 2, VG: 3, Err: 1, Roll: 4},
	}
	require.Equal(t, "DecodedAlphaBeta [00-00-00-00-00-00-00-00] alpha=1 beta=2 vg=3 err=1 roll=4", res.String())

	out, err := json.Marshal(res)
	require.NoError(t, err)
	var m map[string]interface{}
	require.NoError(t, json.Unmarshal(out, &m))
	require.Equal(t, "DecodedAlphaBeta", m["state"])
	require.Equal(t, float64(2), m["beta"])
	require.Equal(t, float64(4), m["roll"])

	res = &Result{State: mlx90363.StateChecksumFailed}
	require.Equal(t, "ChecksumFailed [00-00-00-00-00-00-00-00]", res.String())
}

func TestShellExchange(t *testing.T) {
	e, err := (&env.Config{Node: "n1", Bus: env.BusSim}).NewEnv()
	require.NoError(t, err)
	e.Device.SetAngles(0x0777, 0)

	s := New(&env.Config{})
	_, err = s.Exchange(mlx90363.EncodeNOP(1))
	require.Error(t, err)
	require.Error(t, s.Use("s0"))

	require.NoError(t, s.Attach(e))
	defer s.Close()
	require.Same(t, e.Sensors[0], s.Sensor)
	require.Error(t, s.Use("none"))

	res, err := s.Exchange(mlx90363.EncodeNOP(0x0102))
	require.NoError(t, err)
	require.Equal(t, mlx90363.StateOther, res.State)
	require.Equal(t, mlx90363.OpChallengeNOPMISO, res.Frame.Opcode())
	require.Equal(t, uint16(0x0102), res.Frame.Word(1))

	res, err = s.Exchange(mlx90363.EncodeGET(mlx90363.OpGET1, mlx90363.TypeAlpha, mlx90363.DefaultTimeout, false))
	require.NoError(t, err)
	require.Equal(t, mlx90363.StateAlpha, res.State)
	require.Equal(t, uint16(0x0777), res.Record.Alpha)

	e.Device.CorruptNext()
	res, err = s.Exchange(mlx90363.EncodeNOP(3))
	require.ErrorIs(t, err, mlx90363.ErrChecksum)
	require.Equal(t, mlx90363.StateChecksumFailed, res.State)
	require.Equal(t, uint16(0x0777), res.Record.Alpha)

	_, err = s.Exchange(mlx90363.EncodeNOP(4))
	require.NoError(t, err)
}
