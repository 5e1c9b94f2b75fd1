package runtime

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/drblury/contractflow/internal/runtime/contract"
	errspkg "github.com/drblury/contractflow/internal/runtime/errors"
)

const (
	latencySampleSize    = 256
	throughputWindowSize = time.Minute
)

// RouteStats accumulates dispatch statistics for one bound contract.
type RouteStats struct {
	mu sync.Mutex `json:"-"`

	Processed           uint64    `json:"processed"`
	Failed              uint64    `json:"failed"`
	TotalProcessingTime int64     `json:"total_processing_time_ns"`
	LastProcessedAt     time.Time `json:"last_processed_at"`

	Latency    LatencyMetrics    `json:"latency"`
	Throughput ThroughputMetrics `json:"throughput"`
	Errors     ErrorBreakdown    `json:"errors"`
	Resource   ResourceUsage     `json:"resource"`

	InFlight    uint64 `json:"in_flight"`
	MaxInFlight uint64 `json:"max_in_flight"`

	classifier       ErrorClassifier
	latencyWindow    *latencyWindow
	throughputWindow *throughputWindow
	resourceSampler  *resourceTracker
}

// RouteInfo describes a bound route for status pages.
type RouteInfo struct {
	Contract string      `json:"contract"`
	Kind     string      `json:"kind"`
	Handler  string      `json:"handler"`
	Address  string      `json:"address"`
	Stats    *RouteStats `json:"stats"`
}

type LatencyMetrics struct {
	AverageNs  int64 `json:"average_ns"`
	P50Ns      int64 `json:"p50_ns"`
	P95Ns      int64 `json:"p95_ns"`
	P99Ns      int64 `json:"p99_ns"`
	LastNs     int64 `json:"last_ns"`
	SampleSize int   `json:"sample_size"`
}

type ThroughputMetrics struct {
	CurrentRPS       float64 `json:"current_rps"`
	WindowSeconds    float64 `json:"window_seconds"`
	MessagesInWindow uint64  `json:"messages_in_window"`
}

// ErrorBreakdown counts failures per ErrorCategory.
type ErrorBreakdown struct {
	Decode     uint64 `json:"decode"`
	NoResponse uint64 `json:"no_response"`
	Downstream uint64 `json:"downstream"`
	Other      uint64 `json:"other"`
	LastError  string `json:"last_error,omitempty"`
}

type ErrorCategory string

const (
	ErrorCategoryNone       ErrorCategory = "none"
	ErrorCategoryDecode     ErrorCategory = "decode"
	ErrorCategoryNoResponse ErrorCategory = "no_response"
	ErrorCategoryDownstream ErrorCategory = "downstream"
	ErrorCategoryOther      ErrorCategory = "other"
)

// ErrorClassifier buckets handler errors for RouteStats.
type ErrorClassifier func(error) ErrorCategory

func newRouteStats(sampler *resourceTracker, classifier ErrorClassifier) *RouteStats {
	if classifier == nil {
		classifier = DefaultErrorClassifier
	}
	return &RouteStats{
		classifier:       classifier,
		latencyWindow:    newLatencyWindow(latencySampleSize),
		throughputWindow: newThroughputWindow(throughputWindowSize),
		resourceSampler:  sampler,
	}
}

func (s *RouteStats) onStart() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.InFlight++
	if s.InFlight > s.MaxInFlight {
		s.MaxInFlight = s.InFlight
	}
}

func (s *RouteStats) onFinish(duration time.Duration, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.InFlight > 0 {
		s.InFlight--
	}
	s.Processed++
	if err != nil {
		s.Failed++
	}
	s.TotalProcessingTime += int64(duration)
	s.LastProcessedAt = time.Now().UTC()

	s.latencyWindow.Add(duration)
	snapshot := s.latencyWindow.Snapshot()
	snapshot.AverageNs = s.TotalProcessingTime / int64(s.Processed)
	s.Latency = snapshot

	tp := s.throughputWindow.AddAndSnapshot(time.Now())
	s.Throughput = ThroughputMetrics{
		CurrentRPS:       tp.CurrentRPS,
		WindowSeconds:    tp.WindowSeconds,
		MessagesInWindow: uint64(tp.Count),
	}

	classifier := s.classifier
	if classifier == nil {
		classifier = DefaultErrorClassifier
	}
	s.Errors.Record(classifier(err), err)

	if s.resourceSampler != nil {
		s.Resource = s.resourceSampler.Snapshot()
	}
}

// Snapshot returns a copy safe to read without locking.
func (s *RouteStats) Snapshot() RouteStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return RouteStats{
		Processed:           s.Processed,
		Failed:              s.Failed,
		TotalProcessingTime: s.TotalProcessingTime,
		LastProcessedAt:     s.LastProcessedAt,
		Latency:             s.Latency,
		Throughput:          s.Throughput,
		Errors:              s.Errors,
		Resource:            s.Resource,
		InFlight:            s.InFlight,
		MaxInFlight:         s.MaxInFlight,
	}
}

func (s *RouteStats) MarshalJSON() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	type Alias RouteStats
	return json.Marshal((*Alias)(s))
}

func (e *ErrorBreakdown) Record(category ErrorCategory, err error) {
	switch category {
	case ErrorCategoryNone:
		if err == nil {
			return
		}
		e.Other++
	case ErrorCategoryDecode:
		e.Decode++
	case ErrorCategoryNoResponse:
		e.NoResponse++
	case ErrorCategoryDownstream:
		e.Downstream++
	default:
		e.Other++
	}
	if err != nil {
		e.LastError = err.Error()
	}
}

// DefaultErrorClassifier sorts decode and subject failures, missing replies
// and context expiry into their own buckets.
func DefaultErrorClassifier(err error) ErrorCategory {
	if err == nil {
		return ErrorCategoryNone
	}
	var decodeErr *errspkg.DecodeError
	var mismatch *errspkg.SubjectMismatchError
	if errors.As(err, &decodeErr) || errors.As(err, &mismatch) {
		return ErrorCategoryDecode
	}
	if errors.Is(err, errspkg.ErrNoResponse) {
		return ErrorCategoryNoResponse
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return ErrorCategoryDownstream
	}
	return ErrorCategoryOther
}

func kindLabel(k contract.Kind) string {
	return k.String()
}

type latencyWindow struct {
	samples []int64
	next    int
	filled  int
	last    int64
}

func newLatencyWindow(size int) *latencyWindow {
	if size <= 0 {
		size = latencySampleSize
	}
	return &latencyWindow{samples: make([]int64, size)}
}

func (lw *latencyWindow) Add(d time.Duration) {
	if lw == nil || len(lw.samples) == 0 {
		return
	}
	lw.samples[lw.next] = int64(d)
	lw.last = int64(d)
	lw.next = (lw.next + 1) % len(lw.samples)
	if lw.filled < len(lw.samples) {
		lw.filled++
	}
}

func (lw *latencyWindow) Snapshot() LatencyMetrics {
	var m LatencyMetrics
	if lw == nil {
		return m
	}
	m.LastNs = lw.last
	if lw.filled == 0 {
		return m
	}
	samples := make([]int64, lw.filled)
	for i := range samples {
		idx := lw.next - lw.filled + i
		if idx < 0 {
			idx += len(lw.samples)
		}
		samples[i] = lw.samples[idx]
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	m.SampleSize = lw.filled
	m.P50Ns = percentile(samples, 0.50)
	m.P95Ns = percentile(samples, 0.95)
	m.P99Ns = percentile(samples, 0.99)
	return m
}

func percentile(samples []int64, q float64) int64 {
	if len(samples) == 0 {
		return 0
	}
	if q <= 0 {
		return samples[0]
	}
	if q >= 1 {
		return samples[len(samples)-1]
	}
	pos := q * float64(len(samples)-1)
	lower := int(math.Floor(pos))
	upper := int(math.Ceil(pos))
	if lower == upper {
		return samples[lower]
	}
	frac := pos - float64(lower)
	return samples[lower] + int64(float64(samples[upper]-samples[lower])*frac)
}

type throughputWindow struct {
	horizon time.Duration
	samples []time.Time
}

type throughputSnapshot struct {
	Count         int
	WindowSeconds float64
	CurrentRPS    float64
}

func newThroughputWindow(horizon time.Duration) *throughputWindow {
	return &throughputWindow{horizon: horizon, samples: make([]time.Time, 0, 64)}
}

func (tw *throughputWindow) AddAndSnapshot(now time.Time) throughputSnapshot {
	if tw == nil {
		return throughputSnapshot{}
	}
	tw.samples = append(tw.samples, now)

	cutoff := now.Add(-tw.horizon)
	idx := 0
	for idx < len(tw.samples) && tw.samples[idx].Before(cutoff) {
		idx++
	}
	if idx > 0 {
		tw.samples = append(tw.samples[:0], tw.samples[idx:]...)
	}

	span := now.Sub(tw.samples[0])
	if span <= 0 {
		span = time.Nanosecond
	}
	return throughputSnapshot{
		Count:         len(tw.samples),
		WindowSeconds: span.Seconds(),
		CurrentRPS:    float64(len(tw.samples)) / span.Seconds(),
	}
}
