// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Paw Contributors

package server

import (
	"context"

	"github.com/elemarin/paw/internal/agent"
)

// ChatRequest is the body of a chat turn.
type ChatRequest struct {
	ConversationID string `json:"conversation_id,omitempty" doc:"Conversation to continue; empty starts a new one"`
	Message        string `json:"message" minLength:"1" doc:"User instruction"`
	Approve        bool   `json:"approve,omitempty" doc:"Consent to commands that match an approval pattern"`
	MaxIterations  int    `json:"max_iterations,omitempty" minimum:"0" doc:"Override the iteration ceiling"`
	Model          string `json:"model,omitempty" doc:"provider/model override"`
}

func (r ChatRequest) runRequest() agent.RunRequest {
	return agent.RunRequest{
		ConversationID: r.ConversationID,
		Message:        r.Message,
		Model:          r.Model,
		Limits:         agent.Limits{MaxIterations: r.MaxIterations},
		Approve:        r.Approve,
	}
}

// Usage is token accounting for one turn.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// ChatResult is the outcome of a chat turn.
type ChatResult struct {
	ConversationID string                 `json:"conversation_id"`
	Status         agent.Status           `json:"status" enum:"final,max-iterations,budget-exceeded"`
	Text           string                 `json:"text"`
	Reason         string                 `json:"reason,omitempty"`
	ToolCalls      []agent.ToolCallRecord `json:"tool_calls"`
	Usage          Usage                  `json:"usage"`
	Iterations     int                    `json:"iterations"`
}

func chatResult(res *agent.Result) ChatResult {
	calls := res.ToolCalls
	if calls == nil {
		calls = []agent.ToolCallRecord{}
	}
	return ChatResult{
		ConversationID: res.ConversationID,
		Status:         res.Status,
		Text:           res.Text,
		Reason:         res.Reason,
		ToolCalls:      calls,
		Usage: Usage{
			InputTokens:  res.Usage.InputTokens,
			OutputTokens: res.Usage.OutputTokens,
			TotalTokens:  res.Usage.Total(),
		},
		Iterations: res.Iterations,
	}
}

type chatInput struct {
	Body ChatRequest
}

type chatOutput struct {
	Body ChatResult
}

func (s *Server) handleChat(ctx context.Context, input *chatInput) (*chatOutput, error) {
	res, err := s.services.Agent.Run(ctx, input.Body.runRequest())
	if err != nil {
		return nil, s.apiError("chat", err)
	}
	return &chatOutput{Body: chatResult(res)}, nil
}
