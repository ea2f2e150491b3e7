// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Paw Contributors

package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	"github.com/google/uuid"

	"github.com/elemarin/paw/internal/agent"
	pawerr "github.com/elemarin/paw/pkg/errors"
)

// SSEEvent is a single server-sent event.
type SSEEvent struct {
	Event string `json:"event"`
	Data  string `json:"data"`
}

// Stream event names.
const (
	EventConversation = "conversation"
	EventToolCall     = "tool_call"
	EventResult       = "result"
	EventError        = "error"
)

func (s *Server) registerStreamRoute() {
	s.router.Post("/api/v1/chat/stream", s.handleChatStream)

	// The handler writes to the raw ResponseWriter, so huma cannot register
	// it; the operation is added to the document by hand.
	minLen := 1
	s.api.OpenAPI().AddOperation(&huma.Operation{
		OperationID: "chat-stream",
		Method:      http.MethodPost,
		Path:        "/api/v1/chat/stream",
		Summary:     "Run one agent turn, streaming tool calls as they complete",
		Description: "Set Accept: text/event-stream for SSE; otherwise the events come back as a JSON array.",
		Tags:        []string{"chat"},
		RequestBody: &huma.RequestBody{
			Required: true,
			Content: map[string]*huma.MediaType{
				"application/json": {
					Schema: &huma.Schema{
						Type:     "object",
						Required: []string{"message"},
						Properties: map[string]*huma.Schema{
							"conversation_id": {Type: "string", Description: "Conversation to continue"},
							"message":         {Type: "string", MinLength: &minLen, Description: "User instruction"},
							"approve":         {Type: "boolean", Description: "Consent to approval-gated commands"},
							"max_iterations":  {Type: "integer", Description: "Override the iteration ceiling"},
							"model":           {Type: "string", Description: "provider/model override"},
						},
					},
				},
			},
		},
		Responses: map[string]*huma.Response{
			"200": {
				Description: "conversation, tool_call*, then result or error",
				Content: map[string]*huma.MediaType{
					"text/event-stream": {Schema: &huma.Schema{Type: "string"}},
					"application/json": {Schema: &huma.Schema{
						Type: "object",
						Properties: map[string]*huma.Schema{
							"events": {Type: "array", Items: &huma.Schema{Type: "object"}},
						},
					}},
				},
			},
			"400": {Description: "Invalid request body"},
			"422": {Description: "Missing message"},
		},
	})
}

func (s *Server) handleChatStream(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid request body"}`, http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		http.Error(w, `{"error":"message is required"}`, http.StatusUnprocessableEntity)
		return
	}
	if req.ConversationID == "" {
		req.ConversationID = uuid.NewString()
	}

	events := s.streamTurn(r, req)

	if strings.Contains(r.Header.Get("Accept"), "text/event-stream") {
		writeSSE(w, events)
		return
	}
	writeEventsJSON(w, events)
}

// streamTurn runs the turn in the background and returns its events. The
// channel closes after the result or error event.
func (s *Server) streamTurn(r *http.Request, req ChatRequest) <-chan SSEEvent {
	ctx := r.Context()
	ch := make(chan SSEEvent, 16)
	send := func(event string, v any) {
		data, _ := json.Marshal(v)
		select {
		case ch <- SSEEvent{Event: event, Data: string(data)}:
		case <-ctx.Done():
		}
	}

	go func() {
		defer close(ch)
		send(EventConversation, map[string]string{"conversation_id": req.ConversationID})

		run := req.runRequest()
		run.OnToolCall = func(rec agent.ToolCallRecord) { send(EventToolCall, rec) }

		res, err := s.services.Agent.Run(ctx, run)
		if err != nil {
			s.log.Warn("streamed chat turn failed", "conversation_id", req.ConversationID, "error", err)
			send(EventError, map[string]string{"code": string(pawerr.CodeOf(err)), "message": err.Error()})
			return
		}
		send(EventResult, chatResult(res))
	}()
	return ch
}

func writeSSE(w http.ResponseWriter, events <-chan SSEEvent) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	// httptest.ResponseRecorder is not a Flusher; events are still written.
	flusher, _ := w.(http.Flusher)

	for event := range events {
		if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Event, event.Data); err != nil {
			// Drain so the producer can finish.
			for range events {
			}
			return
		}
		if flusher != nil {
			flusher.Flush()
		}
	}
}

func writeEventsJSON(w http.ResponseWriter, events <-chan SSEEvent) {
	var out []json.RawMessage
	for event := range events {
		raw, _ := json.Marshal(struct {
			Event string          `json:"event"`
			Data  json.RawMessage `json:"data"`
		}{event.Event, json.RawMessage(event.Data)})
		out = append(out, raw)
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(struct {
		Events []json.RawMessage `json:"events"`
	}{out}); err != nil {
		http.Error(w, `{"error":"encoding response"}`, http.StatusInternalServerError)
	}
}
