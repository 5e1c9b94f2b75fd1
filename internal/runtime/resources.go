package runtime

import (
	"runtime"
	"runtime/metrics"
	"sync"
	"time"
)

const (
	metricCPUSeconds = "/sched/cpu:seconds"
	metricHeapBytes  = "/memory/classes/heap/objects:bytes"
	metricGoroutines = "/sched/goroutines:goroutines"
)

// ResourceUsage is a coarse process snapshot attached to route stats.
type ResourceUsage struct {
	CPUPercent  float64 `json:"cpu_percent"`
	MemoryBytes uint64  `json:"memory_bytes"`
	Goroutines  int     `json:"goroutines"`
}

// resourceTracker samples process CPU and heap usage. One tracker is shared by
// every route of a server.
type resourceTracker struct {
	mu             sync.Mutex
	samples        []metrics.Sample
	lastCPUSeconds float64
	lastSample     time.Time
	numCPU         float64
}

func newResourceTracker() *resourceTracker {
	return &resourceTracker{
		samples: defaultSamples(),
		numCPU:  float64(runtime.NumCPU()),
	}
}

func defaultSamples() []metrics.Sample {
	return []metrics.Sample{
		{Name: metricCPUSeconds},
		{Name: metricHeapBytes},
		{Name: metricGoroutines},
	}
}

func (r *resourceTracker) Snapshot() ResourceUsage {
	if r == nil {
		return ResourceUsage{}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.samples) == 0 {
		r.samples = defaultSamples()
	}
	metrics.Read(r.samples)

	var usage ResourceUsage
	now := time.Now()
	for _, sample := range r.samples {
		switch sample.Name {
		case metricCPUSeconds:
			if sample.Value.Kind() != metrics.KindFloat64 {
				continue
			}
			cpu := sample.Value.Float64()
			if !r.lastSample.IsZero() && r.numCPU > 0 {
				if wall := now.Sub(r.lastSample).Seconds(); wall > 0 {
					usage.CPUPercent = (cpu - r.lastCPUSeconds) / wall / r.numCPU * 100
				}
			}
			r.lastCPUSeconds = cpu
		case metricHeapBytes:
			if sample.Value.Kind() == metrics.KindUint64 {
				usage.MemoryBytes = sample.Value.Uint64()
			}
		case metricGoroutines:
			if sample.Value.Kind() == metrics.KindUint64 {
				usage.Goroutines = int(sample.Value.Uint64())
			}
		}
	}
	r.lastSample = now

	if usage.Goroutines == 0 {
		usage.Goroutines = runtime.NumGoroutine()
	}
	return usage
}
