package main

import (
	"github.com/robotalks/mlx90363/pkg/cli/sh"

	_ "github.com/robotalks/mlx90363/pkg/cli/cmds/device"
)

//go-build: CGO_ENABLED=0

func main() {
	sh.Main()
}
