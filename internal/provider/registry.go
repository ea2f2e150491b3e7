// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Paw Contributors

package provider

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strconv"
	"strings"
	"sync"

	pawerr "github.com/elemarin/paw/pkg/errors"
	"github.com/elemarin/paw/pkg/health"
)

// Budget defines token and monetary limits for a routing request. The agent
// loop tracks spend and fills these in; routing only enforces them.
// Monetary values are int64 cents.
type Budget struct {
	maxSessionTokens  int
	usedSessionTokens int

	// 0 means unlimited.
	maxHourCents  int64
	usedHourCents int64
	maxDayCents   int64
	usedDayCents  int64
}

// NewBudget creates a validated Budget. Monetary fields are in cents.
func NewBudget(maxSessionTokens, usedSessionTokens int, maxHourCents, usedHourCents, maxDayCents, usedDayCents int64) (*Budget, error) {
	b := &Budget{
		maxSessionTokens:  maxSessionTokens,
		usedSessionTokens: usedSessionTokens,
		maxHourCents:      maxHourCents,
		usedHourCents:     usedHourCents,
		maxDayCents:       maxDayCents,
		usedDayCents:      usedDayCents,
	}
	if err := b.Validate(); err != nil {
		return nil, err
	}
	return b, nil
}

// Validate rejects negative fields. Usage above a limit is valid here and
// rejected at routing time.
func (b *Budget) Validate() error {
	for name, v := range map[string]int64{
		"MaxSessionTokens":  int64(b.maxSessionTokens),
		"UsedSessionTokens": int64(b.usedSessionTokens),
		"MaxHourCents":      b.maxHourCents,
		"UsedHourCents":     b.usedHourCents,
		"MaxDayCents":       b.maxDayCents,
		"UsedDayCents":      b.usedDayCents,
	} {
		if v < 0 {
			return pawerr.Errorf(pawerr.CodeConfigValidateInvalidValue, "%s must be non-negative, got %d", name, v)
		}
	}
	return nil
}

// check returns provider.budget.exceeded when any limit is reached.
func (b *Budget) check() error {
	if b == nil {
		return nil
	}
	if err := checkBudgetLimit(b.maxSessionTokens, b.usedSessionTokens,
		func(used, max int) string {
			return "budget exceeded: used " + strconv.Itoa(used) + " of " + strconv.Itoa(max) + " tokens"
		}); err != nil {
		return err
	}
	if err := checkBudgetLimit(b.maxHourCents, b.usedHourCents,
		func(used, max int64) string {
			return "budget exceeded: hourly spend " + formatCents(used) + " of " + formatCents(max) + " limit"
		}); err != nil {
		return err
	}
	return checkBudgetLimit(b.maxDayCents, b.usedDayCents,
		func(used, max int64) string {
			return "budget exceeded: daily spend " + formatCents(used) + " of " + formatCents(max) + " limit"
		})
}

// Registry manages provider registration, lookup, and routing with
// failover and budget enforcement. It implements Router.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider

	defaultRef string   // "provider/model"
	failover   []string // ordered "provider/model" refs
}

var _ Router = (*Registry)(nil)

func NewRegistry() *Registry {
	return &Registry{providers: make(map[string]Provider)}
}

// Register adds or replaces a provider.
func (r *Registry) Register(name string, p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[name] = p
}

// RegisterProvider implements Router.
func (r *Registry) RegisterProvider(name string, p Provider) error {
	r.Register(name, p)
	return nil
}

// Get retrieves a provider by name.
func (r *Registry) Get(name string) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.providers[name]
	if !ok {
		return nil, pawerr.New(pawerr.CodeProviderNotFound, "provider not found: "+name, pawerr.FieldProvider(name))
	}
	return p, nil
}

// Names returns the registered provider names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.providers))
	for n := range r.providers {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// SetDefault sets the "provider/model" reference used when a request names
// no model. The provider must already be registered.
func (r *Registry) SetDefault(ref string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.checkRefLocked("SetDefault", ref); err != nil {
		return err
	}
	r.defaultRef = ref
	return nil
}

// SetFailover sets the ordered fallback chain of "provider/model" refs.
func (r *Registry) SetFailover(chain []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, ref := range chain {
		if err := r.checkRefLocked("SetFailover", ref); err != nil {
			return err
		}
	}
	r.failover = slices.Clone(chain)
	return nil
}

func (r *Registry) checkRefLocked(op, ref string) error {
	provName, _ := parseRef(ref)
	if _, ok := r.providers[provName]; !ok {
		return pawerr.New(pawerr.CodeProviderNotFound,
			op+": provider not registered: "+provName, pawerr.FieldProvider(provName))
	}
	return nil
}

// MaxAttempts returns 1 (primary) + len(failover chain).
func (r *Registry) MaxAttempts() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return 1 + len(r.failover)
}

// Route selects a provider for modelName, or for the default when
// modelName is empty.
func (r *Registry) Route(ctx context.Context, modelName string) (Provider, string, error) {
	return r.RouteWithBudget(ctx, modelName, nil, nil)
}

// RouteWithBudget is like Route but also enforces budget limits. exclude
// lists provider names already tried in the current failover sequence.
func (r *Registry) RouteWithBudget(ctx context.Context, modelName string, budget *Budget, exclude []string) (Provider, string, error) {
	if err := budget.check(); err != nil {
		return nil, "", err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	ref, err := r.resolveRef(modelName)
	if err != nil {
		return nil, "", err
	}
	if ref == "" {
		return nil, "", pawerr.New(pawerr.CodeProviderNoDefault, "no default provider configured")
	}

	for _, candidate := range append([]string{ref}, r.failover...) {
		provName, _ := parseRef(candidate)
		if slices.Contains(exclude, provName) {
			continue
		}
		if p, model, err := r.tryRef(ctx, candidate); err == nil {
			return p, model, nil
		}
	}

	return nil, "", pawerr.New(pawerr.CodeProviderAllUnavailable,
		"all providers unavailable: no healthy provider found")
}

// Health reports metrics for every provider that tracks them.
func (r *Registry) Health() []health.ProviderHealth {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []health.ProviderHealth
	for name, p := range r.providers {
		if mr, ok := p.(MetricsReporter); ok {
			out = append(out, health.ProviderHealth{Provider: name, Metrics: mr.HealthMetrics()})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Provider < out[j].Provider })
	return out
}

// Close shuts down all registered providers.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error
	for _, p := range r.providers {
		if err := p.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return pawerr.Join(errs...)
	}
	return nil
}

// resolveRef determines which "provider/model" ref to use.
// Caller must hold r.mu.
func (r *Registry) resolveRef(modelName string) (string, error) {
	if modelName != "" && modelName != "default" {
		if !strings.Contains(modelName, "/") {
			return "", pawerr.Errorf(pawerr.CodeProviderInvalidModelRef,
				"model name %q must use provider/model format", modelName)
		}
		return modelName, nil
	}
	return r.defaultRef, nil
}

// tryRef looks up the provider for ref and checks availability.
// Caller must hold r.mu.
func (r *Registry) tryRef(ctx context.Context, ref string) (Provider, string, error) {
	providerName, model := parseRef(ref)

	p, ok := r.providers[providerName]
	if !ok {
		return nil, "", pawerr.New(pawerr.CodeProviderNotFound,
			"provider not found: "+providerName, pawerr.FieldProvider(providerName))
	}
	if !p.Available(ctx) {
		return nil, "", pawerr.New(pawerr.CodeProviderUpstreamFailure,
			"provider unavailable: "+providerName, pawerr.FieldProvider(providerName))
	}
	return p, model, nil
}

// parseRef splits a "provider/model" reference on the first "/".
func parseRef(ref string) (providerName, model string) {
	name, model, _ := strings.Cut(ref, "/")
	return name, model
}

// ParseRef is the exported form of parseRef for callers that need to
// attribute a model to its provider.
func ParseRef(ref string) (providerName, model string) { return parseRef(ref) }

func formatCents(cents int64) string {
	return fmt.Sprintf("$%d.%02d", cents/100, cents%100)
}

// checkBudgetLimit returns nil if max is 0 (unlimited) or used < max.
func checkBudgetLimit[T int | int64](max, used T, formatMsg func(used, max T) string) error {
	if max > 0 && used >= max {
		return pawerr.New(pawerr.CodeProviderBudgetExceeded, formatMsg(used, max))
	}
	return nil
}
