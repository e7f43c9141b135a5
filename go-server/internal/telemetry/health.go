// Copyright (c) 2024-2026 IT Help San Diego Inc.
// Licensed under BUSL-1.1 — See LICENSE for terms.
package telemetry

import (
	"math"
	"sort"
	"sync"
	"time"
)

type HealthState string

const (
	Healthy   HealthState = "healthy"
	Degraded  HealthState = "degraded"
	Unhealthy HealthState = "unhealthy"

	degradedThreshold  = 3
	unhealthyThreshold = 5
	cooldownBase       = 5 * time.Second
	cooldownMax        = 5 * time.Minute
	latencyWindowSize  = 100
)

// LookupStats is a point-in-time view of one named network lookup.
type LookupStats struct {
	Name            string      `json:"name"`
	State           HealthState `json:"state"`
	Attempts        int64       `json:"attempts"`
	Successes       int64       `json:"successes"`
	Failures        int64       `json:"failures"`
	Skipped         int64       `json:"skipped"`
	ConsecFailures  int         `json:"consecutive_failures"`
	LastError       string      `json:"last_error,omitempty"`
	LastErrorTime   *time.Time  `json:"last_error_time,omitempty"`
	LastSuccessTime *time.Time  `json:"last_success_time,omitempty"`
	AvgLatencyMs    float64     `json:"avg_latency_ms"`
	P95LatencyMs    float64     `json:"p95_latency_ms"`
	InCooldown      bool        `json:"in_cooldown"`
	CooldownUntil   *time.Time  `json:"cooldown_until,omitempty"`
}

type lookupHealth struct {
	mu             sync.RWMutex
	name           string
	attempts       int64
	successes      int64
	failures       int64
	skipped        int64
	consecFailures int
	lastError      string
	lastErrorTime  time.Time
	lastSuccess    time.Time
	latencies      [latencyWindowSize]float64
	latencyIdx     int
	latencyFull    bool
	cooldownUntil  time.Time
}

// Registry tracks success, failure and latency per lookup name. A lookup
// that keeps failing enters an exponential cooldown so callers can skip it
// and take the fallback value immediately.
type Registry struct {
	mu      sync.RWMutex
	lookups map[string]*lookupHealth
	now     func() time.Time
}

func NewRegistry() *Registry {
	return &Registry{
		lookups: make(map[string]*lookupHealth),
		now:     time.Now,
	}
}

func (r *Registry) entry(name string) *lookupHealth {
	r.mu.RLock()
	h, ok := r.lookups[name]
	r.mu.RUnlock()
	if ok {
		return h
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if h, ok = r.lookups[name]; ok {
		return h
	}
	h = &lookupHealth{name: name}
	r.lookups[name] = h
	return h
}

func (r *Registry) RecordSuccess(name string, latency time.Duration) {
	h := r.entry(name)
	h.mu.Lock()
	defer h.mu.Unlock()

	h.attempts++
	h.successes++
	h.consecFailures = 0
	h.lastSuccess = r.now()
	h.cooldownUntil = time.Time{}

	h.latencies[h.latencyIdx] = float64(latency.Microseconds()) / 1000.0
	h.latencyIdx++
	if h.latencyIdx == latencyWindowSize {
		h.latencyIdx = 0
		h.latencyFull = true
	}
}

func (r *Registry) RecordFailure(name, errMsg string) {
	h := r.entry(name)
	h.mu.Lock()
	defer h.mu.Unlock()

	now := r.now()
	h.attempts++
	h.failures++
	h.consecFailures++
	h.lastError = errMsg
	h.lastErrorTime = now

	if h.consecFailures >= degradedThreshold {
		backoff := time.Duration(math.Min(
			float64(cooldownBase)*math.Pow(2, float64(h.consecFailures-degradedThreshold)),
			float64(cooldownMax),
		))
		h.cooldownUntil = now.Add(backoff)
	}
}

// RecordSkipped counts a lookup that was not attempted because of cooldown.
func (r *Registry) RecordSkipped(name string) {
	h := r.entry(name)
	h.mu.Lock()
	h.skipped++
	h.mu.Unlock()
}

func (r *Registry) InCooldown(name string) bool {
	r.mu.RLock()
	h, ok := r.lookups[name]
	r.mu.RUnlock()
	if !ok {
		return false
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	return !h.cooldownUntil.IsZero() && r.now().Before(h.cooldownUntil)
}

func (r *Registry) Stats(name string) LookupStats {
	h := r.entry(name)
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.snapshot(r.now())
}

// AllStats returns every tracked lookup sorted by name.
func (r *Registry) AllStats() []LookupStats {
	r.mu.RLock()
	names := make([]string, 0, len(r.lookups))
	for name := range r.lookups {
		names = append(names, name)
	}
	r.mu.RUnlock()
	sort.Strings(names)

	stats := make([]LookupStats, 0, len(names))
	for _, name := range names {
		stats = append(stats, r.Stats(name))
	}
	return stats
}

// Overall is the worst state across all lookups.
func (r *Registry) Overall() HealthState {
	state := Healthy
	for _, s := range r.AllStats() {
		switch s.State {
		case Unhealthy:
			return Unhealthy
		case Degraded:
			state = Degraded
		}
	}
	return state
}

func (h *lookupHealth) snapshot(now time.Time) LookupStats {
	s := LookupStats{
		Name:           h.name,
		Attempts:       h.attempts,
		Successes:      h.successes,
		Failures:       h.failures,
		Skipped:        h.skipped,
		ConsecFailures: h.consecFailures,
		LastError:      h.lastError,
	}
	if !h.lastErrorTime.IsZero() {
		t := h.lastErrorTime
		s.LastErrorTime = &t
	}
	if !h.lastSuccess.IsZero() {
		t := h.lastSuccess
		s.LastSuccessTime = &t
	}

	switch {
	case h.consecFailures >= unhealthyThreshold:
		s.State = Unhealthy
	case h.consecFailures >= degradedThreshold:
		s.State = Degraded
	default:
		s.State = Healthy
	}

	if !h.cooldownUntil.IsZero() && now.Before(h.cooldownUntil) {
		s.InCooldown = true
		t := h.cooldownUntil
		s.CooldownUntil = &t
	}

	count := h.latencyIdx
	if h.latencyFull {
		count = latencyWindowSize
	}
	if count > 0 {
		window := make([]float64, count)
		copy(window, h.latencies[:count])
		sort.Float64s(window)
		sum := 0.0
		for _, v := range window {
			sum += v
		}
		s.AvgLatencyMs = sum / float64(count)
		s.P95LatencyMs = window[int(float64(count-1)*0.95)]
	}
	return s
}
