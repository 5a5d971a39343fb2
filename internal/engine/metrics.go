package engine

import (
	"github.com/prometheus/client_golang/prometheus"

	"conveyor/internal/queue"
)

// Metrics tracks engine activity with the conveyor_ prefix.
type Metrics struct {
	TransfersStarted  *prometheus.CounterVec
	TransfersFinished *prometheus.CounterVec
	FilesTotal        *prometheus.CounterVec
	Running           prometheus.Gauge
	AttemptDuration   prometheus.Histogram
}

// NewMetrics creates and registers engine metrics on reg. Collectors already
// registered by an earlier engine are reused.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		TransfersStarted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "conveyor_transfers_started_total",
				Help: "Transfers launched by type",
			},
			[]string{"type"},
		),
		TransfersFinished: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "conveyor_transfers_finished_total",
				Help: "Transfer attempts closed by resulting state and status",
			},
			[]string{"state", "status"},
		),
		FilesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "conveyor_files_total",
				Help: "Per-file outcomes reported by the remote client",
			},
			[]string{"outcome"},
		),
		Running: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "conveyor_worker_running",
				Help: "1 while a worker is executing a transfer",
			},
		),
		AttemptDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "conveyor_attempt_duration_seconds",
				Help:    "Wall time of transfer attempts",
				Buckets: prometheus.ExponentialBuckets(0.1, 4, 10),
			},
		),
	}
	if reg == nil {
		return m
	}
	m.TransfersStarted = registerOrReuse(reg, m.TransfersStarted).(*prometheus.CounterVec)
	m.TransfersFinished = registerOrReuse(reg, m.TransfersFinished).(*prometheus.CounterVec)
	m.FilesTotal = registerOrReuse(reg, m.FilesTotal).(*prometheus.CounterVec)
	m.Running = registerOrReuse(reg, m.Running).(prometheus.Gauge)
	m.AttemptDuration = registerOrReuse(reg, m.AttemptDuration).(prometheus.Histogram)
	return m
}

func registerOrReuse(reg prometheus.Registerer, c prometheus.Collector) prometheus.Collector {
	if err := reg.Register(c); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			return are.ExistingCollector
		}
		panic(err)
	}
	return c
}

func (m *Metrics) started(t queue.TransferType) {
	if m == nil {
		return
	}
	m.TransfersStarted.WithLabelValues(string(t)).Inc()
	m.Running.Set(1)
}

func (m *Metrics) finished(state queue.State, status queue.Status, seconds float64) {
	if m == nil {
		return
	}
	m.TransfersFinished.WithLabelValues(string(state), string(status)).Inc()
	m.AttemptDuration.Observe(seconds)
	m.Running.Set(0)
}

func (m *Metrics) file(outcome queue.Outcome) {
	if m == nil {
		return
	}
	m.FilesTotal.WithLabelValues(string(outcome)).Inc()
}
