// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Paw Contributors

package provider

import (
	"context"
	"log/slog"
	"math"
	"math/rand/v2"
	"time"

	pawerr "github.com/elemarin/paw/pkg/errors"
)

// RetryPolicy configures retry behavior with exponential backoff.
type RetryPolicy struct {
	MaxRetries int // retries after the first attempt
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	Multiplier float64
	Jitter     bool // scale each delay by a random factor in [0.5, 1.5)
}

// DefaultRetryPolicy returns two retries starting at one second.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries: 2,
		BaseDelay:  time.Second,
		MaxDelay:   60 * time.Second,
		Multiplier: 2,
		Jitter:     true,
	}
}

// Delay calculates the delay before retry n (0-indexed).
func (p RetryPolicy) Delay(attempt int) time.Duration {
	mult := p.Multiplier
	if mult < 1 {
		mult = 1
	}
	delay := float64(p.BaseDelay) * math.Pow(mult, float64(attempt))
	if p.MaxDelay > 0 {
		delay = math.Min(delay, float64(p.MaxDelay))
	}
	if p.Jitter {
		delay *= 0.5 + rand.Float64()
	}
	return time.Duration(delay)
}

// Retry runs fn until it succeeds, fails with a non-retryable error, or the
// policy's retries are exhausted. A rate-limit Retry-After longer than
// MaxDelay is not waited out: the error is returned immediately.
func Retry[T any](ctx context.Context, policy RetryPolicy, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	result, err := fn(ctx)
	if err == nil {
		return result, nil
	}

	for attempt := 0; attempt < policy.MaxRetries; attempt++ {
		if !pawerr.IsRetryable(err) {
			return zero, err
		}

		delay := policy.Delay(attempt)
		if ra, ok := RetryAfter(err); ok {
			if policy.MaxDelay > 0 && ra > policy.MaxDelay {
				return zero, err
			}
			delay = ra
		}
		slog.Warn("provider call failed, retrying",
			"attempt", attempt+1,
			"delay", delay,
			"code", pawerr.CodeOf(err),
			"error", err,
		)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, ctx.Err()
		case <-timer.C:
		}

		result, err = fn(ctx)
		if err == nil {
			return result, nil
		}
	}
	return zero, err
}
