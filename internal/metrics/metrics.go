package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Decode results used as the "result" label of PacketsTotal.
const (
	ResultDecoded     = "decoded"
	ResultUnsupported = "unsupported"
	ResultMalformed   = "malformed"
)

// Metrics holds the pipeline's Prometheus collectors. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	PacketsTotal  *prometheus.CounterVec
	BytesTotal    prometheus.Counter
	ActiveFlows   prometheus.Gauge
	WindowsTotal  prometheus.Counter
	TrimmedTotal  prometheus.Counter
	WriterErrors  *prometheus.CounterVec
	FramesDropped prometheus.Counter
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		PacketsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "nettop",
			Name:      "packets_total",
			Help:      "Captured frames by decode result.",
		}, []string{"result"}),
		BytesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "nettop",
			Name:      "bytes_total",
			Help:      "IP bytes accounted to flows.",
		}),
		ActiveFlows: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "nettop",
			Name:      "active_flows",
			Help:      "Flows present in the last reported window.",
		}),
		WindowsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "nettop",
			Name:      "windows_total",
			Help:      "Reporting windows completed.",
		}),
		TrimmedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "nettop",
			Name:      "flows_trimmed_total",
			Help:      "Flows evicted after a silent window.",
		}),
		WriterErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "nettop",
			Name:      "writer_errors_total",
			Help:      "Report writes that failed, by writer.",
		}, []string{"writer"}),
		FramesDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "nettop",
			Name:      "frames_dropped_total",
			Help:      "Frames dropped because the processing queue was full.",
		}),
	}
	reg.MustRegister(m.PacketsTotal, m.BytesTotal, m.ActiveFlows, m.WindowsTotal,
		m.TrimmedTotal, m.WriterErrors, m.FramesDropped)
	return m
}

// ObservePacket records one frame's decode result and, when decoded, its length.
func (m *Metrics) ObservePacket(result string, length uint64) {
	if m == nil {
		return
	}
	m.PacketsTotal.WithLabelValues(result).Inc()
	if result == ResultDecoded {
		m.BytesTotal.Add(float64(length))
	}
}

// ObserveWindow records a window boundary.
func (m *Metrics) ObserveWindow(flows, trimmed int) {
	if m == nil {
		return
	}
	m.WindowsTotal.Inc()
	m.ActiveFlows.Set(float64(flows))
	m.TrimmedTotal.Add(float64(trimmed))
}

// ObserveWriterError records a failed report write.
func (m *Metrics) ObserveWriterError(writer string) {
	if m == nil {
		return
	}
	m.WriterErrors.WithLabelValues(writer).Inc()
}

// ObserveDrop records a frame dropped before decoding.
func (m *Metrics) ObserveDrop() {
	if m == nil {
		return
	}
	m.FramesDropped.Inc()
}
