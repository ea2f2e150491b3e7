// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Paw Contributors

package provider

import (
	"sync"
	"time"

	"github.com/elemarin/paw/pkg/health"
)

// HealthMetrics is the serializable snapshot of a HealthTracker.
type HealthMetrics = health.Metrics

const (
	// DefaultHealthCooldown is how long a provider sits out after its first
	// failure.
	DefaultHealthCooldown = 30 * time.Second
	// MaxHealthCooldown caps the cooldown however many failures stack up.
	MaxHealthCooldown = 5 * time.Minute
)

// HealthTracker decides whether the router should still send turns to a
// provider. Each consecutive failure doubles the sit-out period, starting
// from the base cooldown and capped at MaxHealthCooldown. One success clears
// the streak.
type HealthTracker struct {
	mu          sync.RWMutex
	base        time.Duration
	streak      int
	total       int64
	lastFailure time.Time
	until       time.Time
	now         func() time.Time
}

// NewHealthTracker returns a tracker that starts available. A non-positive
// cooldown means DefaultHealthCooldown.
func NewHealthTracker(cooldown time.Duration) *HealthTracker {
	if cooldown <= 0 {
		cooldown = DefaultHealthCooldown
	}
	return &HealthTracker{base: cooldown, now: time.Now}
}

func (h *HealthTracker) availableLocked() bool {
	return h.streak == 0 || !h.now().Before(h.until)
}

// IsHealthy reports whether the provider may be tried. A provider whose
// cooldown has run out is eligible again even before it succeeds.
func (h *HealthTracker) IsHealthy() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.availableLocked()
}

// RecordSuccess ends the failure streak.
func (h *HealthTracker) RecordSuccess() {
	h.mu.Lock()
	h.streak = 0
	h.until = time.Time{}
	h.mu.Unlock()
}

// RecordFailure extends the streak and starts the next cooldown.
func (h *HealthTracker) RecordFailure() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.streak++
	h.total++
	h.lastFailure = h.now()
	h.until = h.lastFailure.Add(h.cooldownLocked())
}

func (h *HealthTracker) cooldownLocked() time.Duration {
	d := h.base
	for i := 1; i < h.streak && d < MaxHealthCooldown; i++ {
		d *= 2
	}
	return min(d, MaxHealthCooldown)
}

// SetNowFunc overrides the clock.
func (h *HealthTracker) SetNowFunc(fn func() time.Time) {
	h.mu.Lock()
	h.now = fn
	h.mu.Unlock()
}

// Metrics snapshots the tracker for the health endpoint.
func (h *HealthTracker) Metrics() HealthMetrics {
	h.mu.RLock()
	defer h.mu.RUnlock()

	m := HealthMetrics{
		FailureCount:        h.total,
		ConsecutiveFailures: h.streak,
		Available:           h.availableLocked(),
	}
	if h.total > 0 {
		t := h.lastFailure
		m.LastFailureAt = &t
	}
	if h.streak > 0 {
		t := h.until
		m.CooldownUntil = &t
	}
	return m
}

// MetricsReporter is implemented by providers that expose health metrics.
type MetricsReporter interface {
	HealthMetrics() HealthMetrics
}
