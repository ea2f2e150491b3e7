// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Paw Contributors

package provider_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elemarin/paw/internal/provider"
)

func fixedClock(h *provider.HealthTracker) *time.Time {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	h.SetNowFunc(func() time.Time { return now })
	return &now
}

func TestHealthTracker_CooldownRecovery(t *testing.T) {
	h := provider.NewHealthTracker(10 * time.Second)
	now := fixedClock(h)
	start := *now

	assert.True(t, h.IsHealthy())
	h.RecordFailure()
	assert.False(t, h.IsHealthy())

	m := h.Metrics()
	assert.False(t, m.Available)
	assert.Equal(t, int64(1), m.FailureCount)
	assert.Equal(t, 1, m.ConsecutiveFailures)
	require.NotNil(t, m.CooldownUntil)
	assert.Equal(t, start.Add(10*time.Second), *m.CooldownUntil)

	*now = start.Add(10 * time.Second)
	assert.True(t, h.IsHealthy(), "eligible again after the cooldown")

	h.RecordSuccess()
	m = h.Metrics()
	assert.True(t, m.Available)
	assert.Nil(t, m.CooldownUntil)
	assert.Zero(t, m.ConsecutiveFailures)
	assert.Equal(t, int64(1), m.FailureCount, "failure count is cumulative")
}

func TestHealthTracker_CooldownDoublesPerConsecutiveFailure(t *testing.T) {
	h := provider.NewHealthTracker(10 * time.Second)
	now := fixedClock(h)

	for _, want := range []time.Duration{10 * time.Second, 20 * time.Second, 40 * time.Second} {
		h.RecordFailure()
		m := h.Metrics()
		require.NotNil(t, m.CooldownUntil)
		assert.Equal(t, now.Add(want), *m.CooldownUntil)
	}

	h.RecordSuccess()
	h.RecordFailure()
	assert.Equal(t, now.Add(10*time.Second), *h.Metrics().CooldownUntil, "success resets the streak")
}

func TestHealthTracker_CooldownIsCapped(t *testing.T) {
	h := provider.NewHealthTracker(time.Minute)
	now := fixedClock(h)
	for range 20 {
		h.RecordFailure()
	}
	assert.Equal(t, now.Add(provider.MaxHealthCooldown), *h.Metrics().CooldownUntil)
	assert.Equal(t, int64(20), h.Metrics().FailureCount)
}

func TestHealthTracker_DefaultCooldown(t *testing.T) {
	h := provider.NewHealthTracker(0)
	now := fixedClock(h)
	h.RecordFailure()
	*now = now.Add(provider.DefaultHealthCooldown - time.Millisecond)
	assert.False(t, h.IsHealthy())
	*now = now.Add(time.Millisecond)
	assert.True(t, h.IsHealthy())
}
