package prometheus

import (
	"errors"
	"time"

	"github.com/fluxorio/roundpool/pkg/core/concurrency"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// RoundMetrics records round pool activity. It implements concurrency.Observer,
// so it can be set as RoundPoolConfig.Observer directly.
type RoundMetrics struct {
	RoundsTotal    *prometheus.CounterVec
	RoundDuration  *prometheus.HistogramVec
	RoundsInFlight *prometheus.GaugeVec
	RoundStalls    *prometheus.CounterVec
	WorkerDuration *prometheus.HistogramVec
	WorkerFailures *prometheus.CounterVec

	registerer prometheus.Registerer
}

var _ concurrency.Observer = (*RoundMetrics)(nil)

// NewRoundMetrics creates and registers the round pool metrics on registerer,
// or on prometheus.DefaultRegisterer if it is nil
func NewRoundMetrics(registerer prometheus.Registerer) *RoundMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registerer)

	return &RoundMetrics{
		RoundsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "roundpool_rounds_total",
				Help: "Total number of completed rounds",
			},
			[]string{"pool", "task", "result"}, // result: ok, failed
		),
		RoundDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "roundpool_round_duration_seconds",
				Help:    "Time from publishing a round until every worker completed it",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"pool", "task"},
		),
		RoundsInFlight: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "roundpool_rounds_in_flight",
				Help: "Rounds published but not yet completed (0 or 1 per pool)",
			},
			[]string{"pool"},
		),
		RoundStalls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "roundpool_round_stalls_total",
				Help: "Rounds that exceeded the configured stall threshold",
			},
			[]string{"pool", "task"},
		),
		WorkerDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "roundpool_worker_duration_seconds",
				Help:    "Time one worker spent executing its share of a round",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"pool", "task"},
		),
		WorkerFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "roundpool_worker_failures_total",
				Help: "Worker callbacks that returned an error or panicked",
			},
			[]string{"pool", "task", "kind"}, // kind: error, panic
		),
		registerer: registerer,
	}
}

// RoundStarted implements concurrency.Observer
func (m *RoundMetrics) RoundStarted(info concurrency.RoundInfo) {
	m.RoundsInFlight.WithLabelValues(info.Pool).Inc()
}

// WorkerFinished implements concurrency.Observer
func (m *RoundMetrics) WorkerFinished(info concurrency.RoundInfo, id concurrency.WorkerID, elapsed time.Duration, err error) {
	m.WorkerDuration.WithLabelValues(info.Pool, info.Task).Observe(elapsed.Seconds())
	if err == nil {
		return
	}
	kind := "error"
	var pe *concurrency.PanicError
	if errors.As(err, &pe) {
		kind = "panic"
	}
	m.WorkerFailures.WithLabelValues(info.Pool, info.Task, kind).Inc()
}

// RoundFinished implements concurrency.Observer
func (m *RoundMetrics) RoundFinished(info concurrency.RoundInfo, elapsed time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "failed"
	}
	m.RoundsInFlight.WithLabelValues(info.Pool).Dec()
	m.RoundsTotal.WithLabelValues(info.Pool, info.Task, result).Inc()
	m.RoundDuration.WithLabelValues(info.Pool, info.Task).Observe(elapsed.Seconds())
}

// RoundStalled implements concurrency.Observer
func (m *RoundMetrics) RoundStalled(info concurrency.RoundInfo, complete int) {
	m.RoundStalls.WithLabelValues(info.Pool, info.Task).Inc()
}

// TrackPool exposes the live worker counters of pool as gauges labelled with name.
// Values are read from pool.Stats() at scrape time.
func (m *RoundMetrics) TrackPool(name string, pool concurrency.RoundPool) error {
	labels := prometheus.Labels{"pool": name}
	gauges := []struct {
		name, help string
		value      func(concurrency.RoundPoolStats) float64
	}{
		{"roundpool_workers", "Fixed number of pool workers",
			func(s concurrency.RoundPoolStats) float64 { return float64(s.Workers) }},
		{"roundpool_workers_waiting", "Workers parked for the next round",
			func(s concurrency.RoundPoolStats) float64 { return float64(s.Waiting) }},
		{"roundpool_workers_complete", "Workers done with the in-flight round",
			func(s concurrency.RoundPoolStats) float64 { return float64(s.Complete) }},
		{"roundpool_state", "Round state: 0 idle, 1 run, 2 stop",
			func(s concurrency.RoundPoolStats) float64 { return float64(s.State) }},
	}

	for _, g := range gauges {
		value := g.value
		collector := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name:        g.name,
			Help:        g.help,
			ConstLabels: labels,
		}, func() float64 { return value(pool.Stats()) })
		if err := m.registerer.Register(collector); err != nil {
			return err
		}
	}
	return nil
}
