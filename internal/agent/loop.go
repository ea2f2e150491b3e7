// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Paw Contributors

// Package agent runs the Think→Act→Observe loop: it asks the model for the
// next step, dispatches the tool calls it requests, feeds the observations
// back, and stops on a final answer or a limit.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/elemarin/paw/internal/provider"
	"github.com/elemarin/paw/internal/store"
	"github.com/elemarin/paw/internal/tool"
	pawerr "github.com/elemarin/paw/pkg/errors"
)

const (
	defaultMaxIterations = 10
	defaultMaxToolCalls  = 20
	defaultHistoryLimit  = 50
	maxTitleRunes        = 60
)

// Status is how a turn ended.
type Status string

const (
	StatusFinal          Status = "final"
	StatusMaxIterations  Status = "max-iterations"
	StatusBudgetExceeded Status = "budget-exceeded"
)

// Limits bound a single turn. Zero fields fall back to the loop defaults;
// a zero TokenBudget means unlimited.
type Limits struct {
	MaxIterations int
	MaxToolCalls  int
	TokenBudget   int
}

func (l Limits) withDefaults(d Limits) Limits {
	if l.MaxIterations <= 0 {
		l.MaxIterations = d.MaxIterations
	}
	if l.MaxToolCalls <= 0 {
		l.MaxToolCalls = d.MaxToolCalls
	}
	if l.TokenBudget <= 0 {
		l.TokenBudget = d.TokenBudget
	}
	return l
}

// RunRequest is one user instruction.
type RunRequest struct {
	// ConversationID selects the conversation; empty starts a new one. An
	// unknown ID creates a conversation with that ID.
	ConversationID string
	Message        string
	// Model overrides the conversation's model with a "provider/model" ref.
	Model  string
	Limits Limits
	// Approve consents to commands matching an approval pattern.
	Approve bool
	// OnToolCall, when set, observes each dispatch as it completes. It runs
	// on the conversation's lane and must not block.
	OnToolCall func(ToolCallRecord)
}

// ToolCallRecord summarises one dispatch of the turn.
type ToolCallRecord struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
	Output    string          `json:"output"`
	ErrorCode string          `json:"error_code,omitempty"`
	Error     string          `json:"error,omitempty"`
	Duration  time.Duration   `json:"duration"`
}

// Result is the outcome of a turn. Only StatusFinal carries a final answer;
// the other statuses return the partial transcript with Reason set.
type Result struct {
	ConversationID string
	Status         Status
	Text           string
	Reason         string
	// Messages holds every message appended during the turn, user first.
	Messages   []*store.Message
	ToolCalls  []ToolCallRecord
	Usage      provider.Usage
	Iterations int
}

// Gateway selects a provider for each model call. *provider.Registry
// implements it.
type Gateway interface {
	RouteWithBudget(ctx context.Context, model string, budget *provider.Budget, exclude []string) (provider.Provider, string, error)
	MaxAttempts() int
}

// MemoryContext renders the memory block injected into the system prompt.
type MemoryContext interface {
	ContextBlock(ctx context.Context, scope string, now time.Time) (string, error)
}

// LoopConfig holds dependencies for the Loop.
type LoopConfig struct {
	Conversations store.ConversationStore
	Gateway       Gateway
	Dispatcher    *tool.Dispatcher
	// Memory is optional; without it the prompt carries no memory block.
	Memory      MemoryContext
	MemoryScope string
	Soul        string
	Limits      Limits
	Retry       provider.RetryPolicy
	// HistoryLimit is the number of stored messages replayed to the model.
	HistoryLimit int
	// Lanes is optional; the loop creates and owns one when nil.
	Lanes  *LanePool
	Now    func() time.Time
	Logger *slog.Logger
}

// Loop is the agent's core processing pipeline.
type Loop struct {
	convs        store.ConversationStore
	gateway      Gateway
	dispatcher   *tool.Dispatcher
	memory       MemoryContext
	memoryScope  string
	soul         string
	limits       Limits
	retry        provider.RetryPolicy
	historyLimit int
	lanes        *LanePool
	ownLanes     bool
	now          func() time.Time
	log          *slog.Logger
}

// NewLoop creates a Loop with the given dependencies.
func NewLoop(cfg LoopConfig) (*Loop, error) {
	var missing []string
	if cfg.Conversations == nil {
		missing = append(missing, "Conversations")
	}
	if cfg.Gateway == nil {
		missing = append(missing, "Gateway")
	}
	if cfg.Dispatcher == nil {
		missing = append(missing, "Dispatcher")
	}
	if len(missing) > 0 {
		return nil, pawerr.New(pawerr.CodeAgentLoopInvalidInput,
			"agent loop: missing dependencies: "+strings.Join(missing, ", "))
	}

	l := &Loop{
		convs:        cfg.Conversations,
		gateway:      cfg.Gateway,
		dispatcher:   cfg.Dispatcher,
		memory:       cfg.Memory,
		memoryScope:  cfg.MemoryScope,
		soul:         cfg.Soul,
		limits:       cfg.Limits.withDefaults(Limits{MaxIterations: defaultMaxIterations, MaxToolCalls: defaultMaxToolCalls}),
		retry:        cfg.Retry,
		historyLimit: cfg.HistoryLimit,
		lanes:        cfg.Lanes,
		now:          cfg.Now,
		log:          cfg.Logger,
	}
	if l.historyLimit <= 0 {
		l.historyLimit = defaultHistoryLimit
	}
	if l.lanes == nil {
		l.lanes = NewLanePool()
		l.ownLanes = true
	}
	if l.now == nil {
		l.now = time.Now
	}
	if l.log == nil {
		l.log = slog.Default()
	}
	return l, nil
}

// Lanes exposes the lane pool so callers can drop lanes of deleted
// conversations.
func (l *Loop) Lanes() *LanePool { return l.lanes }

// Close stops the lanes the loop created itself.
func (l *Loop) Close() {
	if l.ownLanes {
		l.lanes.Close()
	}
}

// Run executes one turn on the conversation's lane. Hitting a limit is not
// an error: the partial result comes back with its status set. Errors are
// reserved for invalid input, cancellation, storage failures, and provider
// failures that retries and failover could not absorb.
func (l *Loop) Run(ctx context.Context, req RunRequest) (*Result, error) {
	if strings.TrimSpace(req.Message) == "" {
		return nil, pawerr.New(pawerr.CodeAgentLoopInvalidInput, "message is required",
			pawerr.FieldConversationID(req.ConversationID))
	}
	if req.ConversationID == "" {
		req.ConversationID = uuid.NewString()
	}

	out := make(chan *Result, 1)
	err := l.lanes.Submit(ctx, req.ConversationID, func(ctx context.Context) error {
		res, err := l.run(ctx, req)
		out <- res
		return err
	})
	if err != nil {
		return nil, err
	}
	return <-out, nil
}

// turn accumulates the state of one Run.
type turn struct {
	loop       *Loop
	convID     string
	res        *Result
	messages   []provider.Message
	onToolCall func(ToolCallRecord)
}

func (t *turn) appendMessage(ctx context.Context, m *store.Message) error {
	m.ID = uuid.NewString()
	if err := t.loop.convs.AppendMessage(ctx, t.convID, m); err != nil {
		return pawerr.Wrapf(err, pawerr.CodeAgentLoopFailure, "persisting %s message", m.Role)
	}
	t.res.Messages = append(t.res.Messages, m)
	return nil
}

func (t *turn) finish(status Status, reason string) *Result {
	t.res.Status = status
	t.res.Reason = reason
	t.loop.log.Info("agent turn finished",
		"conversation_id", t.convID,
		"status", status,
		"iterations", t.res.Iterations,
		"tool_calls", len(t.res.ToolCalls),
		"tokens", t.res.Usage.Total(),
	)
	return t.res
}

func (l *Loop) run(ctx context.Context, req RunRequest) (*Result, error) {
	conv, err := l.conversation(ctx, req.ConversationID, req.Message)
	if err != nil {
		return nil, err
	}
	limits := req.Limits.withDefaults(l.limits)
	model := req.Model
	if model == "" {
		model = conv.ModelOverride
	}

	t := &turn{loop: l, convID: conv.ID, res: &Result{ConversationID: conv.ID}, onToolCall: req.OnToolCall}
	if err := t.appendMessage(ctx, &store.Message{Role: store.MessageRoleUser, Content: req.Message}); err != nil {
		return nil, err
	}

	history, err := l.convs.GetMessages(ctx, conv.ID, l.historyLimit)
	if err != nil {
		return nil, pawerr.Wrapf(err, pawerr.CodeAgentLoopFailure, "loading history")
	}
	t.messages = normalizeHistory(conv.ID, history)

	chatReq := provider.ChatRequest{
		SystemPrompt: l.systemPrompt(ctx),
		Tools:        l.toolDefinitions(),
	}

	for i := 1; i <= limits.MaxIterations; i++ {
		t.res.Iterations = i
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		l.log.Debug("agent iteration",
			"conversation_id", conv.ID,
			"iteration", i,
			"max", limits.MaxIterations,
			"messages", len(t.messages),
		)

		budget, err := provider.NewBudget(limits.TokenBudget, t.res.Usage.Total(), 0, 0, 0, 0)
		if err != nil {
			return nil, err
		}
		chatReq.Messages = t.messages
		rep, err := l.think(ctx, model, budget, chatReq)
		if err != nil {
			if pawerr.IsBudgetExceeded(err) {
				return t.finish(StatusBudgetExceeded, err.Error()), nil
			}
			return nil, err
		}
		t.res.Usage.Add(rep.usage)

		if err := t.recordReply(ctx, rep); err != nil {
			return nil, err
		}
		if len(rep.calls) == 0 {
			return t.finish(StatusFinal, ""), nil
		}

		limitHit, err := t.act(ctx, rep.calls, limits.MaxToolCalls, req.Approve)
		if err != nil {
			return nil, err
		}
		if limitHit {
			return t.finish(StatusMaxIterations, fmt.Sprintf("tool call limit of %d reached", limits.MaxToolCalls)), nil
		}
		if limits.TokenBudget > 0 && t.res.Usage.Total() >= limits.TokenBudget {
			return t.finish(StatusBudgetExceeded,
				fmt.Sprintf("token budget exceeded: %d of %d tokens used", t.res.Usage.Total(), limits.TokenBudget)), nil
		}
	}

	l.log.Warn("agent reached iteration ceiling", "conversation_id", conv.ID, "max", limits.MaxIterations)
	return t.finish(StatusMaxIterations, fmt.Sprintf("iteration ceiling of %d reached", limits.MaxIterations)), nil
}

// recordReply persists the assistant reply and appends it to the prompt.
func (t *turn) recordReply(ctx context.Context, rep *reply) error {
	msg := &store.Message{
		Role:         store.MessageRoleAssistant,
		Content:      rep.text,
		InputTokens:  rep.usage.InputTokens,
		OutputTokens: rep.usage.OutputTokens,
	}
	pm := provider.Message{Role: provider.MessageRoleAssistant, Content: rep.text}
	for _, c := range rep.calls {
		msg.ToolCalls = append(msg.ToolCalls, store.ToolCallRequest{ID: c.ID, Name: c.Name, Arguments: c.Arguments})
		pm.ToolCalls = append(pm.ToolCalls, c)
	}
	if err := t.appendMessage(ctx, msg); err != nil {
		return err
	}
	t.messages = append(t.messages, pm)
	if rep.text != "" {
		t.res.Text = rep.text
	}
	return nil
}

// act dispatches the requested calls in order. Once the tool call ceiling
// is hit, the remaining calls are answered with a limit notice instead of
// running, and act reports the limit.
func (t *turn) act(ctx context.Context, calls []provider.ToolCall, maxCalls int, approve bool) (bool, error) {
	limitHit := false
	for _, c := range calls {
		var observation string
		if len(t.res.ToolCalls) >= maxCalls {
			limitHit = true
			observation = fmt.Sprintf("Tool call limit reached (%d). Provide a final answer with what you have so far.", maxCalls)
			t.loop.log.Warn("agent tool call limit reached", "conversation_id", t.convID, "limit", maxCalls)
		} else {
			if err := ctx.Err(); err != nil {
				return false, err
			}
			res := t.loop.dispatcher.Dispatch(ctx, tool.Call{
				ID:             c.ID,
				ConversationID: t.convID,
				Name:           c.Name,
				Args:           json.RawMessage(c.Arguments),
				Approved:       approve,
			})
			observation = res.Observation()
			rec := ToolCallRecord{
				ID:        c.ID,
				Name:      c.Name,
				Arguments: json.RawMessage(c.Arguments),
				Output:    res.Output,
				Duration:  res.Duration,
			}
			if res.Err != nil {
				rec.ErrorCode = string(res.Code())
				rec.Error = res.Err.Error()
			}
			t.res.ToolCalls = append(t.res.ToolCalls, rec)
			if t.onToolCall != nil {
				t.onToolCall(rec)
			}
		}

		if err := t.appendMessage(ctx, &store.Message{
			Role:       store.MessageRoleTool,
			Content:    observation,
			ToolCallID: c.ID,
			ToolName:   c.Name,
		}); err != nil {
			return false, err
		}
		t.messages = append(t.messages, provider.Message{
			Role:       provider.MessageRoleTool,
			Content:    observation,
			ToolCallID: c.ID,
			ToolName:   c.Name,
		})
	}
	return limitHit, nil
}

func (l *Loop) conversation(ctx context.Context, id, firstMessage string) (*store.Conversation, error) {
	conv, err := l.convs.GetConversation(ctx, id)
	if err == nil {
		return conv, nil
	}
	if !pawerr.IsNotFound(err) {
		return nil, pawerr.Wrapf(err, pawerr.CodeAgentLoopFailure, "loading conversation %s", id)
	}

	conv = &store.Conversation{ID: id, Title: titleFrom(firstMessage)}
	if err := l.convs.CreateConversation(ctx, conv); err != nil {
		return nil, pawerr.Wrapf(err, pawerr.CodeAgentLoopFailure, "creating conversation %s", id)
	}
	l.log.Info("conversation created", "conversation_id", id)
	return conv, nil
}

func titleFrom(msg string) string {
	title := strings.Join(strings.Fields(msg), " ")
	if utf8.RuneCountInString(title) <= maxTitleRunes {
		return title
	}
	r := []rune(title)
	return string(r[:maxTitleRunes-3]) + "..."
}

func (l *Loop) systemPrompt(ctx context.Context) string {
	if l.memory == nil {
		return systemPrompt(l.soul, "")
	}
	block, err := l.memory.ContextBlock(ctx, l.memoryScope, l.now())
	if err != nil {
		l.log.Warn("loading memory context", "error", err)
		block = ""
	}
	return systemPrompt(l.soul, block)
}

func (l *Loop) toolDefinitions() []provider.ToolDefinition {
	defs := l.dispatcher.Registry().Definitions()
	out := make([]provider.ToolDefinition, 0, len(defs))
	for _, d := range defs {
		out = append(out, provider.ToolDefinition{Name: d.Name, Description: d.Description, Schema: d.Schema})
	}
	return out
}
