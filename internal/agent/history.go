// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Paw Contributors

package agent

import (
	"log/slog"

	"github.com/elemarin/paw/internal/provider"
	"github.com/elemarin/paw/internal/store"
)

// normalizeHistory converts stored messages into provider messages. A tool
// message survives only when an earlier assistant message in the window
// requested its call ID; the rest are orphans, typically left behind when
// the history window cut off the request. System messages are dropped since
// the system prompt is composed per turn.
func normalizeHistory(conversationID string, msgs []*store.Message) []provider.Message {
	out := make([]provider.Message, 0, len(msgs))
	requested := make(map[string]bool)
	dropped := 0

	for _, m := range msgs {
		switch m.Role {
		case store.MessageRoleSystem:
			continue
		case store.MessageRoleAssistant:
			pm := provider.Message{Role: provider.MessageRoleAssistant, Content: m.Content}
			for _, tc := range m.ToolCalls {
				if tc.ID != "" {
					requested[tc.ID] = true
				}
				pm.ToolCalls = append(pm.ToolCalls, provider.ToolCall{ID: tc.ID, Name: tc.Name, Arguments: tc.Arguments})
			}
			out = append(out, pm)
		case store.MessageRoleTool:
			if !requested[m.ToolCallID] {
				dropped++
				continue
			}
			out = append(out, provider.Message{
				Role:       provider.MessageRoleTool,
				Content:    m.Content,
				ToolCallID: m.ToolCallID,
				ToolName:   m.ToolName,
			})
		default:
			out = append(out, provider.Message{Role: provider.MessageRoleUser, Content: m.Content})
		}
	}

	if dropped > 0 {
		slog.Warn("dropped orphan tool messages", "conversation_id", conversationID, "count", dropped)
	}
	return stripUnanswered(out)
}

// stripUnanswered removes requested tool calls that never got a result, as
// happens when a turn was interrupted between the request and dispatch.
// Providers reject such requests.
func stripUnanswered(msgs []provider.Message) []provider.Message {
	answered := make(map[string]bool)
	for _, m := range msgs {
		if m.Role == provider.MessageRoleTool {
			answered[m.ToolCallID] = true
		}
	}

	out := msgs[:0]
	for _, m := range msgs {
		if m.Role == provider.MessageRoleAssistant && len(m.ToolCalls) > 0 {
			kept := m.ToolCalls[:0:0]
			for _, tc := range m.ToolCalls {
				if answered[tc.ID] {
					kept = append(kept, tc)
				}
			}
			m.ToolCalls = kept
			if m.Content == "" && len(kept) == 0 {
				continue
			}
		}
		out = append(out, m)
	}
	return out
}
