// Package node runs a bus of sensors with its telemetry and HTTP surface.
package node

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"

	"github.com/golang/glog"

	fx "github.com/robotalks/mlx90363/pkg/framework"
	"github.com/robotalks/mlx90363/pkg/env"
	"github.com/robotalks/mlx90363/pkg/mlx90363"
	"github.com/robotalks/mlx90363/pkg/monitor"
	"github.com/robotalks/mlx90363/pkg/telemetry"
	"github.com/robotalks/mlx90363/pkg/telemetry/mqtt"
	"github.com/robotalks/mlx90363/pkg/telemetry/msgs"
	"github.com/robotalks/mlx90363/pkg/telemetry/stream"
	"github.com/robotalks/mlx90363/pkg/telemetry/websocket"
)

// Node wires an Env to its sinks.
type Node struct {
	Env       *env.Env
	Metrics   *monitor.Metrics
	Hub       *websocket.Hub
	Publisher *telemetry.Publisher
	// Queue and Sink are nil without an MQTT broker.
	Queue *mqtt.Queue
	Sink  *mqtt.Sink
}

// New creates a Node.
func New(e *env.Env) (*Node, error) {
	n := &Node{
		Env:       e,
		Metrics:   monitor.New(),
		Hub:       websocket.NewHub(),
		Publisher: telemetry.NewPublisher(e.Sensors...),
	}
	e.Session.Observer = n.Metrics
	n.Publisher.AddSink(n.Metrics, n.Hub)

	if url := e.Config.MQTTBrokerURL; url != "" {
		opts, prefix, err := mqtt.ClientOptionsFromURL(url)
		if err != nil {
			return nil, fmt.Errorf("invalid MQTT URL %q: %v", url, err)
		}
		if err := mqtt.SetWill(opts, prefix, e.Config.Node); err != nil {
			return nil, err
		}
		n.Queue = mqtt.NewQueue(opts, prefix)
		n.Sink = mqtt.NewSink(n.Queue, e.Config.Node)
		n.Queue.OnConnect = func(*mqtt.Queue) {
			if err := n.Sink.Announce(n.Info(true)); err != nil {
				glog.Errorf("announce error: %v", err)
			}
		}
		n.Sink.HandleRequests(func(sensor string, req *msgs.Request) {
			if err := n.Apply(sensor, req); err != nil {
				glog.Warningf("request for %s rejected: %v", sensor, err)
			}
		})
		n.Publisher.AddSink(n.Sink)
	}
	return n, nil
}

// MustNew creates a Node and fails on error.
func MustNew(e *env.Env) *Node {
	n, err := New(e)
	if err != nil {
		log.Fatalln(err)
	}
	return n
}

// Record appends every measurement to w.
func (n *Node) Record(w io.Writer) *Node {
	n.Publisher.AddSink(stream.NewWriter(w))
	return n
}

// Info describes the node.
func (n *Node) Info(online bool) *msgs.NodeInfo {
	return &msgs.NodeInfo{
		Node:    n.Env.Config.Node,
		Sensors: n.Env.SensorNames(),
		Online:  online,
	}
}

// Apply changes the measurement a sensor is polled with.
func (n *Node) Apply(sensor string, req *msgs.Request) error {
	s := n.Env.Sensor(sensor)
	if s == nil {
		return fmt.Errorf("unknown sensor %q", sensor)
	}
	op := mlx90363.OpGET1
	if req.Opcode != 0 {
		op = mlx90363.Opcode(req.Opcode)
	}
	if !op.IsGET() {
		return fmt.Errorf("opcode %s is not a measurement", op)
	}
	typ := mlx90363.TypeAlpha
	if req.Type != "" {
		t, err := mlx90363.ParseMessageType(req.Type)
		if err != nil {
			return err
		}
		typ = t
	}
	timeout := mlx90363.DefaultTimeout
	if req.Timeout != 0 {
		if req.Timeout > 0xffff {
			return fmt.Errorf("timeout %d out of range", req.Timeout)
		}
		timeout = uint16(req.Timeout)
	}
	s.SetMeasurement(op, typ, timeout, req.ResetRoll)
	glog.Infof("%s: polling with %s %s", sensor, op, typ)
	return nil
}

// Handler serves /metrics, /ws and /info.
func (n *Node) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", n.Metrics.Handler())
	mux.Handle("/ws", n.Hub.Handler())
	mux.HandleFunc("/info", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(n.Info(true)); err != nil {
			glog.V(2).Infof("write /info error: %v", err)
		}
	})
	return mux
}

// Run implements framework.Runnable. It serves Handler on the listen
// address until ctx is done.
func (n *Node) Run(ctx context.Context) error {
	server := &http.Server{Addr: n.Env.Config.Listen, Handler: n.Handler()}
	glog.Infof("listening on %s", server.Addr)
	return fx.RunWithContextCloser(ctx, server, server.ListenAndServe)
}

// AddToLoop implements framework.LoopAdder.
func (n *Node) AddToLoop(l *fx.Loop) {
	n.Env.AddToLoop(l)
	l.Add(n.Publisher)
	if n.Env.Config.Listen != "" {
		l.AddRunnable(n)
	}
	if n.Queue != nil {
		l.AddRunnable(n.Queue)
	}
}
