// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Paw Contributors

// Package health holds the health snapshot shared by the provider gateway
// and the HTTP API.
package health

import "time"

// Metrics is a point-in-time view of a provider's health, safe to
// serialize to JSON.
type Metrics struct {
	Available bool `json:"available"`
	// FailureCount is cumulative since startup.
	FailureCount int64 `json:"failure_count"`
	// ConsecutiveFailures resets on the first success.
	ConsecutiveFailures int        `json:"consecutive_failures"`
	LastFailureAt       *time.Time `json:"last_failure_at,omitempty"`
	// CooldownUntil is set while a failure streak is open, even if the
	// cooldown already ran out.
	CooldownUntil *time.Time `json:"cooldown_until,omitempty"`
}

// ProviderHealth pairs a provider name with its metrics.
type ProviderHealth struct {
	Provider string  `json:"provider"`
	Metrics  Metrics `json:"metrics"`
}
