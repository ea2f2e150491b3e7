// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Paw Contributors

package server

import (
	"log/slog"
	"net"
	"net/http"
	"slices"
	"sync"
	"time"

	pawerr "github.com/elemarin/paw/pkg/errors"
)

// RateLimitConfig configures per-IP rate limiting.
type RateLimitConfig struct {
	// RequestsPerSecond is the sustained request rate per IP. Zero disables limiting.
	RequestsPerSecond float64
	// Burst is the maximum burst size per IP.
	Burst int
	// MaxVisitors caps the number of tracked IPs. Default: 10000.
	MaxVisitors int
}

// Validate checks the config and applies defaults.
func (c *RateLimitConfig) Validate() error {
	if c.RequestsPerSecond < 0 {
		return pawerr.Errorf(pawerr.CodeServerConfigInvalid,
			"rate limit requests per second must not be negative (got %g)", c.RequestsPerSecond)
	}
	if c.RequestsPerSecond > 0 && c.Burst <= 0 {
		return pawerr.Errorf(pawerr.CodeServerConfigInvalid,
			"rate limit burst must be positive when rate is set (got burst=%d, rate=%g)",
			c.Burst, c.RequestsPerSecond)
	}
	if c.MaxVisitors < 0 {
		return pawerr.Errorf(pawerr.CodeServerConfigInvalid,
			"rate limit max visitors must not be negative (got %d)", c.MaxVisitors)
	}
	if c.MaxVisitors == 0 {
		c.MaxVisitors = 10000
	}
	return nil
}

type visitor struct {
	tokens   float64
	lastSeen time.Time
}

// limiter is a token bucket per client IP.
type limiter struct {
	cfg      RateLimitConfig
	mu       sync.Mutex
	visitors map[string]*visitor
	now      func() time.Time
}

func (l *limiter) allow(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	v, ok := l.visitors[ip]
	if !ok {
		v = &visitor{tokens: float64(l.cfg.Burst), lastSeen: now}
		l.visitors[ip] = v
	}
	v.tokens = min(float64(l.cfg.Burst), v.tokens+now.Sub(v.lastSeen).Seconds()*l.cfg.RequestsPerSecond)
	v.lastSeen = now

	if v.tokens < 1 {
		return false
	}
	v.tokens--
	return true
}

// sweep drops idle visitors, then the oldest ones beyond MaxVisitors.
func (l *limiter) sweep(idle time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	type seen struct {
		ip string
		at time.Time
	}
	keep := make([]seen, 0, len(l.visitors))
	for ip, v := range l.visitors {
		if now.Sub(v.lastSeen) > idle {
			delete(l.visitors, ip)
			continue
		}
		keep = append(keep, seen{ip, v.lastSeen})
	}
	if over := len(keep) - l.cfg.MaxVisitors; over > 0 {
		slices.SortFunc(keep, func(a, b seen) int { return a.at.Compare(b.at) })
		for _, e := range keep[:over] {
			delete(l.visitors, e.ip)
		}
		slog.Warn("rate limiter visitor map cap enforced", "evicted", over, "max_visitors", l.cfg.MaxVisitors)
	}
}

// rateLimitMiddleware enforces per-IP limits. It passes everything through
// when cfg.RequestsPerSecond is zero. done stops the sweeper.
func rateLimitMiddleware(cfg RateLimitConfig, done <-chan struct{}) func(http.Handler) http.Handler {
	if cfg.RequestsPerSecond <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	l := &limiter{cfg: cfg, visitors: make(map[string]*visitor), now: time.Now}

	go func() {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				l.sweep(10 * time.Minute)
			case <-done:
				return
			}
		}
	}()

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Key on the host only so ephemeral ports share a bucket.
			ip, _, err := net.SplitHostPort(r.RemoteAddr)
			if err != nil {
				ip = r.RemoteAddr
			}
			if !l.allow(ip) {
				slog.Warn("rate limit exceeded", "ip", ip, "path", r.URL.Path)
				w.Header().Set("Content-Type", "application/problem+json")
				w.Header().Set("Retry-After", "1")
				w.WriteHeader(http.StatusTooManyRequests)
				_, _ = w.Write([]byte(`{"status":429,"title":"Too Many Requests","detail":"rate limit exceeded"}`))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
