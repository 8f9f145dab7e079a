package metrics

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	SweeperReasonDeadlineExceeded = "deadline_exceeded"
	SweeperReasonCanceled         = "canceled"
	SweeperReasonUnknown          = "unknown"
)

// SweeperMetrics tracks overdue sweep runs.
type SweeperMetrics struct {
	runs     *prometheus.CounterVec
	duration prometheus.Histogram
	errors   *prometheus.CounterVec
	promoted prometheus.Counter
	lastRun  prometheus.Gauge
}

var (
	sweeperMetricsOnce sync.Once
	sweeperMetrics     *SweeperMetrics
)

// Sweeper returns the singleton sweeper metrics registry.
func Sweeper() *SweeperMetrics {
	return SweeperWithConfig(Config{})
}

// SweeperWithConfig returns the singleton sweeper metrics registry using config labels.
func SweeperWithConfig(cfg Config) *SweeperMetrics {
	sweeperMetricsOnce.Do(func() {
		sweeperMetrics = newSweeperMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return sweeperMetrics
}

// ResetSweeperMetricsForTest resets the sweeper metrics singleton for tests.
func ResetSweeperMetricsForTest() {
	sweeperMetricsOnce = sync.Once{}
	sweeperMetrics = nil
}

func newSweeperMetrics(registerer prometheus.Registerer, cfg Config) *SweeperMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "splitpay"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "unknown"
	}
	constLabels := prometheus.Labels{"service": serviceName, "env": environment}

	m := &SweeperMetrics{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "splitpay_sweeper_runs_total",
			Help:        "Overdue sweep runs by trigger.",
			ConstLabels: constLabels,
		}, []string{"trigger"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:        "splitpay_sweeper_duration_seconds",
			Help:        "Overdue sweep latency.",
			Buckets:     []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			ConstLabels: constLabels,
		}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "splitpay_sweeper_errors_total",
			Help:        "Overdue sweep failures by reason.",
			ConstLabels: constLabels,
		}, []string{"reason"}),
		promoted: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "splitpay_sweeper_promoted_payments_total",
			Help:        "Payments promoted from pending to overdue.",
			ConstLabels: constLabels,
		}),
		lastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "splitpay_sweeper_last_run_timestamp_seconds",
			Help:        "Unix time of the last completed sweep.",
			ConstLabels: constLabels,
		}),
	}

	m.runs = registerCollector(registerer, m.runs)
	m.duration = registerCollector(registerer, m.duration)
	m.errors = registerCollector(registerer, m.errors)
	m.promoted = registerCollector(registerer, m.promoted)
	m.lastRun = registerCollector(registerer, m.lastRun)
	return m
}

func registerCollector[T prometheus.Collector](registerer prometheus.Registerer, c T) T {
	if err := registerer.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(T); ok {
				return existing
			}
		}
	}
	return c
}

// ObserveRun records one finished sweep.
func (m *SweeperMetrics) ObserveRun(trigger string, duration time.Duration, promoted int, finishedAt time.Time, err error) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(trigger).Inc()
	m.duration.Observe(duration.Seconds())
	if err != nil {
		m.errors.WithLabelValues(ClassifySweeperReason(err)).Inc()
		return
	}
	m.promoted.Add(float64(promoted))
	m.lastRun.Set(float64(finishedAt.Unix()))
}

// ClassifySweeperReason maps a sweep error to a low-cardinality label.
func ClassifySweeperReason(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return SweeperReasonDeadlineExceeded
	case errors.Is(err, context.Canceled):
		return SweeperReasonCanceled
	default:
		return SweeperReasonUnknown
	}
}
