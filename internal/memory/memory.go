// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Paw Contributors

// Package memory gives the agent persistent facts and a rolling daily log,
// and merges both into the bounded <MEMORY> block injected into every prompt.
package memory

import (
	"context"
	"hash/fnv"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/elemarin/paw/internal/store"
	pawerr "github.com/elemarin/paw/pkg/errors"
)

const (
	DefaultScope    = "global"
	DefaultPeriods  = 3
	DefaultMaxChars = 8000

	lockStripes = 64
)

// Config bounds the context block.
type Config struct {
	// Scope is used when a caller passes an empty scope.
	Scope string
	// Periods is the number of calendar days of log included, counting today.
	Periods int
	// MaxChars caps the rendered block including its tags.
	MaxChars int
	Logger   *slog.Logger
}

// Service implements the memory operations on top of a store.MemoryStore.
// Writes to the same (scope, key) are serialized in-process; the store's
// upsert makes the last committed write win across processes.
type Service struct {
	store store.MemoryStore
	cfg   Config
	locks [lockStripes]sync.Mutex
}

func New(st store.MemoryStore, cfg Config) *Service {
	if cfg.Scope == "" {
		cfg.Scope = DefaultScope
	}
	if cfg.Periods <= 0 {
		cfg.Periods = DefaultPeriods
	}
	if cfg.MaxChars <= 0 {
		cfg.MaxChars = DefaultMaxChars
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Service{store: st, cfg: cfg}
}

// DefaultScope returns the scope used for empty scope arguments.
func (s *Service) DefaultScope() string { return s.cfg.Scope }

func (s *Service) scope(scope string) string {
	if scope = strings.TrimSpace(scope); scope == "" {
		return s.cfg.Scope
	}
	return scope
}

func (s *Service) lockFor(scope, key string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(scope))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(key))
	return &s.locks[h.Sum32()%lockStripes]
}

// Remember stores value under key, replacing any previous value.
func (s *Service) Remember(ctx context.Context, scope, key, value string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return pawerr.New(pawerr.CodeMemoryInputInvalid, "memory: key is required")
	}
	if value == "" {
		return pawerr.New(pawerr.CodeMemoryInputInvalid, "memory: value is required", pawerr.Field("key", key))
	}
	scope = s.scope(scope)

	mu := s.lockFor(scope, key)
	mu.Lock()
	defer mu.Unlock()

	if err := s.store.PutEntry(ctx, &store.MemoryEntry{Scope: scope, Key: key, Value: value}); err != nil {
		return err
	}
	s.cfg.Logger.Debug("memory remembered", "scope", scope, "key", key)
	return nil
}

// Recall returns the value stored under key, or memory.entry.not_found.
func (s *Service) Recall(ctx context.Context, scope, key string) (string, error) {
	scope = s.scope(scope)
	e, err := s.store.GetEntry(ctx, scope, strings.TrimSpace(key))
	if pawerr.IsNotFound(err) {
		return "", pawerr.New(pawerr.CodeMemoryNotFound, "no memory found for key '"+key+"'",
			pawerr.Field("scope", scope), pawerr.Field("key", key))
	}
	if err != nil {
		return "", err
	}
	return e.Value, nil
}

// Forget deletes key. Forgetting a missing key is not an error.
func (s *Service) Forget(ctx context.Context, scope, key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return pawerr.New(pawerr.CodeMemoryInputInvalid, "memory: key is required")
	}
	scope = s.scope(scope)

	mu := s.lockFor(scope, key)
	mu.Lock()
	defer mu.Unlock()
	return s.store.DeleteEntry(ctx, scope, key)
}

// List returns every entry in scope ordered by key.
func (s *Service) List(ctx context.Context, scope string) ([]*store.MemoryEntry, error) {
	return s.store.ListEntries(ctx, s.scope(scope))
}

// Log appends text to the scope's log.
func (s *Service) Log(ctx context.Context, scope, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return pawerr.New(pawerr.CodeMemoryInputInvalid, "memory: log text is required")
	}
	return s.store.AppendLog(ctx, &store.LogEntry{Scope: s.scope(scope), Content: text})
}

// windowStart returns midnight, in now's location, of the oldest day in the window.
func (s *Service) windowStart(now time.Time) time.Time {
	y, m, d := now.Date()
	today := time.Date(y, m, d, 0, 0, 0, 0, now.Location())
	return today.AddDate(0, 0, -(s.cfg.Periods - 1))
}

// Recent returns log entries from the last Periods days, oldest first.
func (s *Service) Recent(ctx context.Context, scope string, now time.Time) ([]*store.LogEntry, error) {
	return s.store.ListLog(ctx, s.scope(scope), s.windowStart(now))
}
