// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Paw Contributors

package server

import (
	"context"
	"time"

	"github.com/elemarin/paw/internal/store"
)

// ConversationSummary is the list representation of a conversation.
type ConversationSummary struct {
	ID        string    `json:"id" doc:"Conversation identifier"`
	Title     string    `json:"title"`
	Model     string    `json:"model,omitempty" doc:"Model override"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// MessageView is the REST representation of a stored message.
type MessageView struct {
	ID           string                  `json:"id"`
	Seq          int64                   `json:"seq"`
	Role         store.MessageRole       `json:"role" enum:"user,assistant,tool,system"`
	Content      string                  `json:"content"`
	ToolCallID   string                  `json:"tool_call_id,omitempty"`
	ToolName     string                  `json:"tool_name,omitempty"`
	ToolCalls    []store.ToolCallRequest `json:"tool_calls,omitempty"`
	InputTokens  int                     `json:"input_tokens,omitempty"`
	OutputTokens int                     `json:"output_tokens,omitempty"`
	CreatedAt    time.Time               `json:"created_at"`
}

// ConversationDetail is a conversation with its messages in order.
type ConversationDetail struct {
	ConversationSummary
	Messages []MessageView `json:"messages"`
}

func conversationSummary(c *store.Conversation) ConversationSummary {
	return ConversationSummary{
		ID:        c.ID,
		Title:     c.Title,
		Model:     c.ModelOverride,
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
	}
}

type listConversationsInput struct {
	Limit  int `query:"limit" minimum:"0" maximum:"500" doc:"Page size (0 = all)"`
	Offset int `query:"offset" minimum:"0"`
}

type listConversationsOutput struct {
	Body struct {
		Conversations []ConversationSummary `json:"conversations"`
	}
}

type conversationIDInput struct {
	ID string `path:"id"`
}

type getConversationOutput struct {
	Body ConversationDetail
}

func (s *Server) handleListConversations(ctx context.Context, input *listConversationsInput) (*listConversationsOutput, error) {
	convs, err := s.services.Conversations.ListConversations(ctx, store.ListOpts{Limit: input.Limit, Offset: input.Offset})
	if err != nil {
		return nil, s.apiError("list-conversations", err)
	}
	out := &listConversationsOutput{}
	out.Body.Conversations = make([]ConversationSummary, 0, len(convs))
	for _, c := range convs {
		out.Body.Conversations = append(out.Body.Conversations, conversationSummary(c))
	}
	return out, nil
}

func (s *Server) handleGetConversation(ctx context.Context, input *conversationIDInput) (*getConversationOutput, error) {
	conv, err := s.services.Conversations.GetConversation(ctx, input.ID)
	if err != nil {
		return nil, s.apiError("get-conversation", err)
	}
	msgs, err := s.services.Conversations.GetMessages(ctx, input.ID, 0)
	if err != nil {
		return nil, s.apiError("get-conversation", err)
	}

	detail := ConversationDetail{
		ConversationSummary: conversationSummary(conv),
		Messages:            make([]MessageView, 0, len(msgs)),
	}
	for _, m := range msgs {
		detail.Messages = append(detail.Messages, MessageView{
			ID:           m.ID,
			Seq:          m.Seq,
			Role:         m.Role,
			Content:      m.Content,
			ToolCallID:   m.ToolCallID,
			ToolName:     m.ToolName,
			ToolCalls:    m.ToolCalls,
			InputTokens:  m.InputTokens,
			OutputTokens: m.OutputTokens,
			CreatedAt:    m.CreatedAt,
		})
	}
	return &getConversationOutput{Body: detail}, nil
}

func (s *Server) handleDeleteConversation(ctx context.Context, input *conversationIDInput) (*struct{}, error) {
	if err := s.services.Conversations.DeleteConversation(ctx, input.ID); err != nil {
		return nil, s.apiError("delete-conversation", err)
	}
	s.services.Agent.Lanes().Remove(input.ID)
	s.log.Info("conversation deleted", "conversation_id", input.ID)
	return nil, nil
}
