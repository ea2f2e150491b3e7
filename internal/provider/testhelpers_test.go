// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Paw Contributors

package provider_test

import (
	"context"

	"github.com/elemarin/paw/internal/provider"
)

// mockProvider is a minimal provider.Provider for routing tests.
type mockProvider struct {
	name    string
	health  *provider.HealthTracker
	closed  bool
	closeFn func() error
}

func newMockProvider(name string) *mockProvider {
	return &mockProvider{name: name, health: provider.NewHealthTracker(provider.DefaultHealthCooldown)}
}

func (m *mockProvider) Name() string { return m.name }
func (m *mockProvider) Available(context.Context) bool { return m.health.IsHealthy() }
func (m *mockProvider) RecordFailure() { m.health.RecordFailure() }
func (m *mockProvider) RecordSuccess() { m.health.RecordSuccess() }
func (m *mockProvider) HealthMetrics() provider.HealthMetrics { return m.health.Metrics() }

func (m *mockProvider) ListModels(context.Context) ([]provider.ModelInfo, error) {
	return nil, nil
}

func (m *mockProvider) Chat(context.Context, provider.ChatRequest) (<-chan provider.ChatEvent, error) {
	ch := make(chan provider.ChatEvent, 3)
	ch <- provider.ChatEvent{Type: provider.EventTypeTextDelta, Text: "hello"}
	ch <- provider.ChatEvent{Type: provider.EventTypeUsage, Usage: &provider.Usage{InputTokens: 10, OutputTokens: 5}}
	ch <- provider.ChatEvent{Type: provider.EventTypeDone}
	close(ch)
	return ch, nil
}

func (m *mockProvider) Status(ctx context.Context) (provider.ProviderStatus, error) {
	return provider.ProviderStatus{Available: m.Available(ctx), Provider: m.name, Message: "ok"}, nil
}

func (m *mockProvider) Close() error {
	m.closed = true
	if m.closeFn != nil {
		return m.closeFn()
	}
	return nil
}
