// Package metrics exposes Prometheus counters for the routing engine and its
// hardware backends. A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "callaudio"

// Metrics holds the daemon's collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	HardwareOps       *prometheus.CounterVec
	HardwareErrors    *prometheus.CounterVec
	FocusRequests     *prometheus.CounterVec
	Events            *prometheus.CounterVec
	AudioStateChanges prometheus.Counter
	Defects           prometheus.Counter
	QueueDepth        prometheus.Gauge
}

// New creates a Metrics instance with its own registry, including the Go
// runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		HardwareOps: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "hardware_ops_total",
			Help:      "Hardware control operations issued, by operation.",
		}, []string{"op"}),
		HardwareErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "hardware_errors_total",
			Help:      "Hardware control operations that returned an error, by operation.",
		}, []string{"op"}),
		FocusRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "focus_requests_total",
			Help:      "Audio focus requests sent to the platform, by stream.",
		}, []string{"stream"}),
		Events: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Routing events handled, by event type.",
		}, []string{"type"}),
		AudioStateChanges: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_state_changes_total",
			Help:      "Accepted audio state transitions that changed the published state.",
		}),
		Defects: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "defects_total",
			Help:      "Logic defects detected and recovered from.",
		}),
		QueueDepth: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "event_queue_depth",
			Help:      "Events waiting in the routing controller queue.",
		}),
	}
}

// Handler returns the /metrics HTTP handler for this registry.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// HardwareOp counts one hardware operation and, if err is non-nil, its failure.
func (m *Metrics) HardwareOp(op string, err error) {
	if m == nil {
		return
	}
	m.HardwareOps.WithLabelValues(op).Inc()
	if err != nil {
		m.HardwareErrors.WithLabelValues(op).Inc()
	}
}

// FocusRequest counts a focus request for the named stream.
func (m *Metrics) FocusRequest(stream string) {
	if m == nil {
		return
	}
	m.FocusRequests.WithLabelValues(stream).Inc()
}

// Event counts one handled routing event.
func (m *Metrics) Event(kind string) {
	if m == nil {
		return
	}
	m.Events.WithLabelValues(kind).Inc()
}

// StateChanged counts a published audio state change.
func (m *Metrics) StateChanged() {
	if m == nil {
		return
	}
	m.AudioStateChanges.Inc()
}

// Defect counts a recovered logic defect.
func (m *Metrics) Defect() {
	if m == nil {
		return
	}
	m.Defects.Inc()
}

// SetQueueDepth records the controller queue length.
func (m *Metrics) SetQueueDepth(n int) {
	if m == nil {
		return
	}
	m.QueueDepth.Set(float64(n))
}
