package main

//go-build: CGO_ENABLED=0

import (
	"flag"
	"log"
	"os"

	"github.com/robotalks/mlx90363/pkg/env"
	"github.com/robotalks/mlx90363/pkg/framework"
	"github.com/robotalks/mlx90363/pkg/node"
)

var recordFile string

func init() {
	env.SetupFlags()
	flag.StringVar(&recordFile, "record", recordFile, "Append measurements to file")
}

func main() {
	flag.Parse()

	conf := env.NewConfig()
	e := conf.MustNewEnv()
	defer e.Close()
	n := node.MustNew(e)
	if recordFile != "" {
		f, err := os.OpenFile(recordFile, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0644)
		if err != nil {
			log.Fatalln(err)
		}
		defer f.Close()
		n.Record(f)
	}
	framework.NewLoop(conf.Interval).Add(n).RunOrFail()
}
