package runtime

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	errspkg "github.com/drblury/contractflow/internal/runtime/errors"
)

const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeNoReply = "no_reply"
)

// DispatchMetrics exports dispatch counters, latency and in-flight gauges to
// Prometheus.
type DispatchMetrics struct {
	mu sync.Mutex

	dispatchTotal *prometheus.CounterVec
	duration      *prometheus.HistogramVec
	inFlight      *prometheus.GaugeVec

	registerer prometheus.Registerer
	registered bool
}

func newDispatchCounterVec(name, help string, labels []string) *prometheus.CounterVec {
	return prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "contractflow",
			Subsystem: "dispatch",
			Name:      name,
			Help:      help,
		},
		labels,
	)
}

func newDispatchGaugeVec(name, help string, labels []string) *prometheus.GaugeVec {
	return prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "contractflow",
			Subsystem: "dispatch",
			Name:      name,
			Help:      help,
		},
		labels,
	)
}

func newDispatchHistogramVec(name, help string, buckets []float64, labels []string) *prometheus.HistogramVec {
	return prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "contractflow",
			Subsystem: "dispatch",
			Name:      name,
			Help:      help,
			Buckets:   buckets,
		},
		labels,
	)
}

// NewDispatchMetrics creates collectors bound to registerer, or the default
// registerer when nil.
func NewDispatchMetrics(registerer prometheus.Registerer) *DispatchMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	return &DispatchMetrics{
		registerer:    registerer,
		dispatchTotal: newDispatchCounterVec("total", "Total number of dispatched requests and events", []string{"contract", "kind", "outcome"}),
		duration:      newDispatchHistogramVec("duration_seconds", "Handler latency including reply encoding", prometheus.DefBuckets, []string{"contract", "kind"}),
		inFlight:      newDispatchGaugeVec("in_flight", "Dispatches currently being handled", []string{"contract", "kind"}),
	}
}

// Register registers the collectors. Safe to call multiple times.
func (m *DispatchMetrics) Register() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.registered {
		return nil
	}
	for _, c := range []prometheus.Collector{m.dispatchTotal, m.duration, m.inFlight} {
		if err := m.registerer.Register(c); err != nil {
			var already prometheus.AlreadyRegisteredError
			if !errors.As(err, &already) {
				return err
			}
		}
	}
	m.registered = true
	return nil
}

// Observe records one finished dispatch.
func (m *DispatchMetrics) Observe(info DispatchInfo, elapsed time.Duration, err error) {
	kind := kindLabel(info.Kind)
	m.dispatchTotal.WithLabelValues(info.Contract, kind, outcome(err)).Inc()
	m.duration.WithLabelValues(info.Contract, kind).Observe(elapsed.Seconds())
}

// Middleware returns a dispatch middleware feeding m.
func (m *DispatchMetrics) Middleware() Middleware {
	return func(next DispatchFunc) DispatchFunc {
		return func(ctx context.Context, info DispatchInfo) error {
			gauge := m.inFlight.WithLabelValues(info.Contract, kindLabel(info.Kind))
			gauge.Inc()
			defer gauge.Dec()

			start := time.Now()
			err := next(ctx, info)
			m.Observe(info, time.Since(start), err)
			return err
		}
	}
}

// Reset clears every series.
func (m *DispatchMetrics) Reset() {
	m.dispatchTotal.Reset()
	m.duration.Reset()
	m.inFlight.Reset()
}

func outcome(err error) string {
	switch {
	case err == nil:
		return OutcomeSuccess
	case errors.Is(err, errspkg.ErrNoResponse):
		return OutcomeNoReply
	default:
		return OutcomeFailure
	}
}
