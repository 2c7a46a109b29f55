package tick

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the tick driver's Prometheus collectors. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	ticks     *prometheus.CounterVec
	due       prometheus.Counter
	delivered prometheus.Counter
	failed    prometheus.Counter
	duration  prometheus.Histogram
	lastTick  prometheus.Gauge
}

// MustNewMetrics registers the collectors with reg and panics on a
// registration conflict that cannot be resolved by reuse.
func MustNewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		ticks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "remindbot",
			Name:      "tick_total",
			Help:      "Due-check passes by outcome (ok, skipped, error).",
		}, []string{"outcome"}),
		due: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "remindbot",
			Name:      "reminders_due_total",
			Help:      "Reminders found due across all ticks.",
		}),
		delivered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "remindbot",
			Name:      "deliveries_accepted_total",
			Help:      "Due reminders accepted by the notifier.",
		}),
		failed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "remindbot",
			Name:      "deliveries_failed_total",
			Help:      "Due reminders the notifier refused.",
		}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "remindbot",
			Name:      "tick_duration_seconds",
			Help:      "Wall time of one due-check pass.",
			Buckets:   prometheus.DefBuckets,
		}),
		lastTick: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "remindbot",
			Name:      "last_tick_timestamp_seconds",
			Help:      "Unix time of the last evaluated minute.",
		}),
	}
	m.ticks = register(reg, m.ticks)
	m.due = register(reg, m.due)
	m.delivered = register(reg, m.delivered)
	m.failed = register(reg, m.failed)
	m.duration = register(reg, m.duration)
	m.lastTick = register(reg, m.lastTick)
	return m
}

// register returns the already-registered collector when one exists.
func register[C prometheus.Collector](reg prometheus.Registerer, c C) C {
	if err := reg.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(C); ok {
				return existing
			}
		}
		panic(err)
	}
	return c
}

func (m *Metrics) observe(res Result) {
	if m == nil {
		return
	}
	switch {
	case res.Err != nil:
		m.ticks.WithLabelValues("error").Inc()
	case res.Skipped:
		m.ticks.WithLabelValues("skipped").Inc()
		return
	default:
		m.ticks.WithLabelValues("ok").Inc()
	}
	m.due.Add(float64(res.Due))
	m.delivered.Add(float64(res.Delivered))
	m.failed.Add(float64(res.Failed))
	m.duration.Observe(res.Took.Seconds())
	m.lastTick.Set(float64(res.Minute.Unix()))
}
