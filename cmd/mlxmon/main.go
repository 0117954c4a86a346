package main

import (
	"context"
	"flag"
	"log"
	"os"
	"strings"

	"github.com/golang/protobuf/proto"

	"github.com/robotalks/mlx90363/pkg/telemetry/mqtt"
	"github.com/robotalks/mlx90363/pkg/telemetry/msgs"
)

var (
	mqttURL = "mqtt://localhost:1883/mlx/"
)

func init() {
	if val := os.Getenv("MLX_MQTT_URL"); val != "" {
		mqttURL = val
	}
	flag.StringVar(&mqttURL, "mqtt", mqttURL, "MQTT broker URL.")
}

func main() {
	flag.Parse()
	log.SetFlags(log.Lmicroseconds)

	opts, prefix, err := mqtt.ClientOptionsFromURL(mqttURL)
	if err != nil {
		log.Fatalln(err)
	}
	q := mqtt.NewQueue(opts, prefix)
	q.Sub("+/"+mqtt.InfoTopic, func(topic string, payload []byte) {
		var info msgs.NodeInfo
		if err := proto.Unmarshal(payload, &info); err != nil {
			log.Printf("%s: bad message: %v", topic, err)
			return
		}
		log.Printf("%s: %s", topic, info.String())
	})
	q.Sub("+/+/"+mqtt.MeasurementTopic, func(topic string, payload []byte) {
		var m msgs.Measurement
		if err := proto.Unmarshal(payload, &m); err != nil {
			log.Printf("%s: bad message: %v", topic, err)
			return
		}
		log.Printf("%s: %s", strings.TrimSuffix(topic, "/"+mqtt.MeasurementTopic), m.String())
	})
	if err := q.Run(context.Background()); err != nil {
		log.Fatalln(err)
	}
}
