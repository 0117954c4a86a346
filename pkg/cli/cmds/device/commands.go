// Package device adds the MLX90363 request commands to the shell.
package device

import (
	"fmt"

	"github.com/abiosoft/ishell"

	"github.com/robotalks/mlx90363/pkg/cli/sh"
	"github.com/robotalks/mlx90363/pkg/mlx90363"
)

func getCmd(name string, op mlx90363.Opcode) *ishell.Cmd {
	return &ishell.Cmd{
		Name: name,
		Help: "[alpha|alphabeta|xyz] [TIMEOUT] [reset]",
		Func: sh.MustHaveSensor(func(c *ishell.Context) {
			f, err := GETFrame(op, c.Args)
			if err != nil {
				c.Err(err)
				return
			}
			sh.DoExchange(c, f)
		}),
	}
}

// GETFrame builds a GET request from shell arguments.
func GETFrame(op mlx90363.Opcode, args []string) (mlx90363.Frame, error) {
	typ, timeout, reset := mlx90363.TypeAlpha, mlx90363.DefaultTimeout, false
	for n, arg := range args {
		switch {
		case n == 0:
			t, err := mlx90363.ParseMessageType(arg)
			if err != nil {
				return mlx90363.Frame{}, err
			}
			typ = t
		case arg == "reset":
			reset = true
		default:
			v, err := sh.ParseUint16(arg)
			if err != nil {
				return mlx90363.Frame{}, fmt.Errorf("invalid timeout %q", arg)
			}
			timeout = v
		}
	}
	return mlx90363.EncodeGET(op, typ, timeout, reset), nil
}

func commandCmd(name string, op mlx90363.Opcode) *ishell.Cmd {
	return &ishell.Cmd{
		Name: name,
		Help: "",
		Func: sh.MustHaveSensor(func(c *ishell.Context) {
			sh.DoExchange(c, mlx90363.EncodeCommand(op))
		}),
	}
}

var (
	// NOPCmd sends a NOP challenge and checks the echo.
	NOPCmd = ishell.Cmd{
		Name: "nop",
		Help: "[KEY]",
		Func: sh.MustHaveSensor(func(c *ishell.Context) {
			var key uint16 = 0x55aa
			if len(c.Args) > 0 {
				v, err := sh.ParseUint16(c.Args[0])
				if err != nil {
					c.Err(err)
					return
				}
				key = v
			}
			res, err := sh.DoExchange(c, mlx90363.EncodeNOP(key))
			if err != nil {
				return
			}
			if err := CheckChallenge(res.Frame, key); err != nil {
				c.Err(err)
			}
		}),
	}

	// MemCmd reads two words of device memory.
	MemCmd = ishell.Cmd{
		Name: "mem",
		Help: "ADDR0 [ADDR1]",
		Func: sh.MustHaveSensor(func(c *ishell.Context) {
			if len(c.Args) == 0 {
				c.Err(fmt.Errorf("address expected"))
				return
			}
			var addrs [2]uint16
			for n := 0; n < len(c.Args) && n < len(addrs); n++ {
				v, err := sh.ParseUint16(c.Args[n])
				if err != nil {
					c.Err(err)
					return
				}
				addrs[n] = v
			}
			if len(c.Args) == 1 {
				addrs[1] = addrs[0] + 2
			}
			res, err := sh.DoExchange(c, mlx90363.EncodeMemoryRead(addrs[0], addrs[1]))
			if err == nil && res.Frame.Opcode() == mlx90363.OpMemoryReadAnswer {
				c.Printf("[0x%04x]=0x%04x [0x%04x]=0x%04x\n",
					addrs[0], res.Frame.Word(0), addrs[1], res.Frame.Word(1))
			}
		}),
	}

	// RawCmd sends a frame given in hex.
	RawCmd = ishell.Cmd{
		Name: "raw",
		Help: "HEX (7 bytes are sealed, 8 are sent as is)",
		Func: sh.MustHaveSensor(func(c *ishell.Context) {
			f, err := sh.ParseFrame(c.Args)
			if err != nil {
				c.Err(err)
				return
			}
			sh.DoExchange(c, f)
		}),
	}
)

// CheckChallenge verifies the answer to a NOP challenge.
func CheckChallenge(rx mlx90363.Frame, key uint16) error {
	if op := rx.Opcode(); op != mlx90363.OpChallengeNOPMISO {
		return fmt.Errorf("unexpected answer %s", op)
	}
	if rx.Word(1) != key || rx.Word(2) != ^key {
		return fmt.Errorf("challenge mismatch: key 0x%04x, got 0x%04x/0x%04x", key, rx.Word(1), rx.Word(2))
	}
	return nil
}

func init() {
	sh.AddCmds(
		getCmd("get", mlx90363.OpGET1),
		getCmd("get2", mlx90363.OpGET2),
		getCmd("get3", mlx90363.OpGET3),
		&NOPCmd,
		&MemCmd,
		&RawCmd,
		commandCmd("diag", mlx90363.OpDiagnosticDetails),
		commandCmd("osc.start", mlx90363.OpOscCounterStart),
		commandCmd("osc.stop", mlx90363.OpOscCounterStop),
		commandCmd("standby", mlx90363.OpStandby),
		commandCmd("reboot", mlx90363.OpReboot),
	)
}
