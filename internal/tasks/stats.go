package tasks

import (
	"runtime"
	"sync"
	"time"

	"github.com/stone-age-io/inventory-agent/internal/metrics"
	"github.com/stone-age-io/inventory-agent/internal/probe"
	"github.com/stone-age-io/inventory-agent/internal/utils"
)

// CycleStats tracks reporting cycles for self-monitoring
type CycleStats struct {
	mu sync.RWMutex

	startTime time.Time

	cycles   int64
	failures int64

	lastCycle      time.Time
	lastSuccess    time.Time
	lastDuration   time.Duration
	lastDetections []probe.Detection
}

// HealthMetrics is the health view answered over NATS
type HealthMetrics struct {
	MemoryUsageMB         float64  `json:"memory_usage_mb"`
	Goroutines            int      `json:"goroutines"`
	UptimeSeconds         int64    `json:"uptime_seconds"`
	CyclesTotal           int64    `json:"cycles_total"`
	CyclesFailed          int64    `json:"cycles_failed"`
	LastCycle             string   `json:"last_cycle,omitempty"`
	LastSuccess           string   `json:"last_success,omitempty"`
	LastDurationSeconds   float64  `json:"last_duration_seconds"`
	VirtualizationMethods []string `json:"virtualization_methods"`
}

func newCycleStats(start time.Time) *CycleStats {
	return &CycleStats{startTime: start}
}

func (s *CycleStats) record(at time.Time, duration time.Duration, sent bool, detections []probe.Detection) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cycles++
	s.lastCycle = at
	s.lastDuration = duration
	s.lastDetections = detections
	if sent {
		s.lastSuccess = at
	} else {
		s.failures++
	}
}

func (s *CycleStats) sample() metrics.Sample {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return metrics.Sample{
		CyclesSucceeded: s.cycles - s.failures,
		CyclesFailed:    s.failures,
		LastCycle:       s.lastCycle,
		LastSuccess:     s.lastSuccess,
		LastDuration:    s.lastDuration,
		Detections:      s.lastDetections,
	}
}

func (s *CycleStats) health(now time.Time) *HealthMetrics {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	s.mu.RLock()
	defer s.mu.RUnlock()

	h := &HealthMetrics{
		// mem.Sys is the full process footprint, not just the heap
		MemoryUsageMB:         utils.Round(float64(mem.Sys) / 1024 / 1024),
		Goroutines:            runtime.NumGoroutine(),
		UptimeSeconds:         int64(now.Sub(s.startTime).Seconds()),
		CyclesTotal:           s.cycles,
		CyclesFailed:          s.failures,
		LastDurationSeconds:   utils.Round(s.lastDuration.Seconds()),
		VirtualizationMethods: probe.Result{Detections: s.lastDetections}.Methods(),
	}

	if !s.lastCycle.IsZero() {
		h.LastCycle = s.lastCycle.UTC().Format(time.RFC3339)
	}
	if !s.lastSuccess.IsZero() {
		h.LastSuccess = s.lastSuccess.UTC().Format(time.RFC3339)
	}

	return h
}
