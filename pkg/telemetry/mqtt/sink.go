package mqtt

import (
	"errors"
	"strings"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/golang/glog"
	"github.com/golang/protobuf/proto"

	"github.com/robotalks/mlx90363/pkg/telemetry/msgs"
)

// Topic suffixes below <node>/.
const (
	InfoTopic        = "info"
	MeasurementTopic = "measurement"
	RequestTopic     = "request"
)

// ErrDeliveryTimeout is returned by Sink.Publish when the broker does not
// acknowledge a measurement within Timeout.
var ErrDeliveryTimeout = errors.New("mqtt delivery timeout")

// Broker is the part of Queue used by Sink.
type Broker interface {
	PubWith(topic string, payload []byte, qos byte, retain bool) paho.Token
	Sub(pattern string, handler Handler) paho.Token
}

// Sink publishes measurements to <node>/<sensor>/measurement.
type Sink struct {
	Broker Broker
	Node   string
	QoS    byte
	// Timeout bounds the wait for delivery, zero publishes without waiting.
	Timeout time.Duration
}

// NewSink creates a Sink.
func NewSink(b Broker, node string) *Sink {
	return &Sink{Broker: b, Node: node}
}

// SensorTopic gets the topic of a sensor.
func (s *Sink) SensorTopic(sensor, suffix string) string {
	return s.Node + "/" + sensor + "/" + suffix
}

// Publish implements telemetry.Sink.
func (s *Sink) Publish(m *msgs.Measurement) error {
	data, err := proto.Marshal(m)
	if err != nil {
		return err
	}
	token := s.Broker.PubWith(s.SensorTopic(m.Sensor, MeasurementTopic), data, s.QoS, false)
	if s.Timeout <= 0 {
		return nil
	}
	if !token.WaitTimeout(s.Timeout) {
		return ErrDeliveryTimeout
	}
	return token.Error()
}

// Announce publishes the retained node info.
func (s *Sink) Announce(info *msgs.NodeInfo) error {
	data, err := proto.Marshal(info)
	if err != nil {
		return err
	}
	token := s.Broker.PubWith(s.Node+"/"+InfoTopic, data, 1, true)
	token.Wait()
	return token.Error()
}

// HandleRequests subscribes to <node>/+/request.
func (s *Sink) HandleRequests(fn func(sensor string, req *msgs.Request)) paho.Token {
	return s.Broker.Sub(s.Node+"/+/"+RequestTopic, func(topic string, payload []byte) {
		tokens := strings.Split(topic, "/")
		if len(tokens) != 3 {
			return
		}
		var req msgs.Request
		if err := proto.Unmarshal(payload, &req); err != nil {
			glog.Warningf("invalid request on %q: %v", topic, err)
			return
		}
		fn(tokens[1], &req)
	})
}

// SetWill registers the offline node info as the last will.
func SetWill(opts *paho.ClientOptions, topicPrefix, node string) error {
	data, err := proto.Marshal(&msgs.NodeInfo{Node: node})
	if err != nil {
		return err
	}
	opts.SetBinaryWill(topicPrefix+node+"/"+InfoTopic, data, 1, true)
	return nil
}
