// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Paw Contributors

package server

import (
	"context"
	"time"
)

// MemoryEntryView is a remembered fact.
type MemoryEntryView struct {
	Scope     string    `json:"scope"`
	Key       string    `json:"key"`
	Value     string    `json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}

type scopeInput struct {
	Scope string `query:"scope" doc:"Memory scope; empty uses the default"`
}

type listMemoryOutput struct {
	Body struct {
		Scope   string            `json:"scope"`
		Entries []MemoryEntryView `json:"entries"`
	}
}

type memoryContextOutput struct {
	Body struct {
		Scope string `json:"scope"`
		Block string `json:"block" doc:"The <MEMORY> block as injected into the system prompt"`
	}
}

type rememberInput struct {
	Key  string `path:"key" minLength:"1" maxLength:"256"`
	Body struct {
		Value string `json:"value"`
		Scope string `json:"scope,omitempty"`
	}
}

type forgetInput struct {
	Key   string `path:"key"`
	Scope string `query:"scope"`
}

type memoryLogInput struct {
	Body struct {
		Text  string `json:"text" minLength:"1"`
		Scope string `json:"scope,omitempty"`
	}
}

func (s *Server) scope(scope string) string {
	if scope == "" {
		return s.services.Memory.DefaultScope()
	}
	return scope
}

func (s *Server) handleListMemory(ctx context.Context, input *scopeInput) (*listMemoryOutput, error) {
	scope := s.scope(input.Scope)
	entries, err := s.services.Memory.List(ctx, scope)
	if err != nil {
		return nil, s.apiError("list-memory", err)
	}
	out := &listMemoryOutput{}
	out.Body.Scope = scope
	out.Body.Entries = make([]MemoryEntryView, 0, len(entries))
	for _, e := range entries {
		out.Body.Entries = append(out.Body.Entries, MemoryEntryView{
			Scope:     e.Scope,
			Key:       e.Key,
			Value:     e.Value,
			UpdatedAt: e.UpdatedAt,
		})
	}
	return out, nil
}

func (s *Server) handleMemoryContext(ctx context.Context, input *scopeInput) (*memoryContextOutput, error) {
	scope := s.scope(input.Scope)
	block, err := s.services.Memory.ContextBlock(ctx, scope, s.services.Now())
	if err != nil {
		return nil, s.apiError("get-memory-context", err)
	}
	out := &memoryContextOutput{}
	out.Body.Scope = scope
	out.Body.Block = block
	return out, nil
}

func (s *Server) handleRemember(ctx context.Context, input *rememberInput) (*struct{}, error) {
	if err := s.services.Memory.Remember(ctx, s.scope(input.Body.Scope), input.Key, input.Body.Value); err != nil {
		return nil, s.apiError("remember", err)
	}
	return nil, nil
}

func (s *Server) handleForget(ctx context.Context, input *forgetInput) (*struct{}, error) {
	if err := s.services.Memory.Forget(ctx, s.scope(input.Scope), input.Key); err != nil {
		return nil, s.apiError("forget", err)
	}
	return nil, nil
}

func (s *Server) handleMemoryLog(ctx context.Context, input *memoryLogInput) (*struct{}, error) {
	if err := s.services.Memory.Log(ctx, s.scope(input.Body.Scope), input.Body.Text); err != nil {
		return nil, s.apiError("append-memory-log", err)
	}
	return nil, nil
}
