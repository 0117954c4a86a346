// Package monitor exposes bus and sensor metrics to Prometheus.
package monitor

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/robotalks/mlx90363/pkg/mlx90363"
	"github.com/robotalks/mlx90363/pkg/telemetry/msgs"
)

const namespace = "mlx90363"

// Metrics implements mlx90363.Observer and telemetry.Sink.
type Metrics struct {
	Registry *prometheus.Registry

	frames *prometheus.CounterVec
	alpha  *prometheus.GaugeVec
	beta   *prometheus.GaugeVec
	field  *prometheus.GaugeVec
	err    *prometheus.GaugeVec
	vg     *prometheus.GaugeVec
}

// New creates Metrics registered on a new registry.
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		frames: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_total",
			Help:      "Completed frames by resulting state.",
		}, []string{"sensor", "state"}),
		alpha: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "alpha",
			Help:      "Last 14-bit alpha angle.",
		}, []string{"sensor"}),
		beta: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "beta",
			Help:      "Last 14-bit beta angle.",
		}, []string{"sensor"}),
		field: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "field",
			Help:      "Last magnetic field component.",
		}, []string{"sensor", "axis"}),
		err: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "device_error",
			Help:      "Last E1E0 device error field.",
		}, []string{"sensor"}),
		vg: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "virtual_gain",
			Help:      "Last virtual gain.",
		}, []string{"sensor"}),
	}
	m.Registry.MustRegister(m.frames, m.alpha, m.beta, m.field, m.err, m.vg)
	return m
}

// FrameCompleted implements mlx90363.Observer.
func (m *Metrics) FrameCompleted(sensor string, state mlx90363.ResponseState) {
	m.frames.WithLabelValues(sensor, state.String()).Inc()
}

// Publish implements telemetry.Sink.
func (m *Metrics) Publish(ms *msgs.Measurement) error {
	switch ms.Type {
	case mlx90363.TypeXYZ.String():
		m.field.WithLabelValues(ms.Sensor, "x").Set(float64(ms.X))
		m.field.WithLabelValues(ms.Sensor, "y").Set(float64(ms.Y))
		m.field.WithLabelValues(ms.Sensor, "z").Set(float64(ms.Z))
	case mlx90363.TypeAlphaBeta.String():
		m.beta.WithLabelValues(ms.Sensor).Set(float64(ms.Beta))
		fallthrough
	default:
		m.alpha.WithLabelValues(ms.Sensor).Set(float64(ms.Alpha))
		m.vg.WithLabelValues(ms.Sensor).Set(float64(ms.VG))
	}
	m.err.WithLabelValues(ms.Sensor).Set(float64(ms.Err))
	return nil
}

// Handler serves the registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}
