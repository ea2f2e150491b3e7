// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Paw Contributors

package tool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/elemarin/paw/internal/scanner"
	"github.com/elemarin/paw/internal/store"
	pawerr "github.com/elemarin/paw/pkg/errors"
)

// AuditLogEscalationThreshold is the number of consecutive audit write
// failures after which the log level escalates from Warn to Error.
const AuditLogEscalationThreshold = 3

// maxAuditArgLen bounds the argument text kept in audit records.
const maxAuditArgLen = 1024

// DispatcherConfig holds dependencies for Dispatcher.
type DispatcherConfig struct {
	Registry *Registry
	// Calls persists one row per dispatch of a registered tool. Optional.
	Calls store.ToolCallStore
	// Timeout bounds a single tool execution. Zero means no extra bound.
	Timeout time.Duration
	// Scanner inspects tool output for credentials. Nil disables scanning.
	Scanner *scanner.Scanner
	// ScanMode decides what happens to output with a match. Empty means
	// scanner.ModeRedact.
	ScanMode scanner.Mode
	Logger   *slog.Logger
}

// Dispatcher validates, executes, and audits tool calls.
type Dispatcher struct {
	registry *Registry
	calls    store.ToolCallStore
	timeout  time.Duration
	scanner  *scanner.Scanner
	scanMode scanner.Mode
	log      *slog.Logger

	// auditFailCount tracks consecutive audit write failures and resets on success.
	auditFailCount atomic.Int64
}

func NewDispatcher(cfg DispatcherConfig) (*Dispatcher, error) {
	if cfg.Registry == nil {
		return nil, pawerr.New(pawerr.CodeToolDefinitionInvalid, "dispatcher: Registry is required")
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	mode := cfg.ScanMode
	if mode == "" {
		mode = scanner.ModeRedact
	}
	if _, err := scanner.ParseMode(string(mode)); err != nil {
		return nil, err
	}
	sc := cfg.Scanner
	if mode == scanner.ModeOff {
		sc = nil
	}
	return &Dispatcher{
		registry: cfg.Registry,
		calls:    cfg.Calls,
		timeout:  cfg.Timeout,
		scanner:  sc,
		scanMode: mode,
		log:      log,
	}, nil
}

// Registry returns the registry the dispatcher resolves tools from.
func (d *Dispatcher) Registry() *Registry { return d.registry }

// Dispatch runs one call. It never returns a Go error: failures are carried
// in Result.Err so the agent can feed them back to the model.
//
// Order: unknown names fail with tool.registry.not_found before anything else
// happens; arguments are validated against the tool's schema; the tool then
// runs under the configured timeout, with panics recovered. Output is
// scanned for credentials before it is persisted or returned.
func (d *Dispatcher) Dispatch(ctx context.Context, call Call) Result {
	if call.ID == "" {
		call.ID = uuid.NewString()
	}
	start := time.Now()
	res := Result{CallID: call.ID, Name: call.Name}

	e, ok := d.registry.lookup(call.Name)
	if !ok {
		res.Err = pawerr.New(pawerr.CodeToolRegistryNotFound, "unknown tool "+call.Name, pawerr.FieldTool(call.Name))
		res.Duration = time.Since(start)
		d.audit(ctx, call, "", res)
		return res
	}

	record := d.begin(ctx, call)

	if err := validateArgs(e.schema, call); err != nil {
		res.Err = err
	} else {
		res.Output, res.Err = d.execute(ctx, e, call)
		d.scan(ctx, call, &res)
	}
	res.Duration = time.Since(start)

	d.complete(ctx, record, res)
	d.audit(ctx, call, e.def.Owner, res)
	return res
}

func (d *Dispatcher) execute(ctx context.Context, e *entry, call Call) (out string, err error) {
	execCtx := ctx
	if d.timeout > 0 {
		var cancel context.CancelFunc
		execCtx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			out = ""
			err = pawerr.New(pawerr.CodeToolExecuteFailure, fmt.Sprintf("tool %s panicked: %v", call.Name, r),
				pawerr.FieldTool(call.Name), pawerr.FieldCapability(e.def.Owner))
		}
	}()

	out, err = e.tool.Execute(execCtx, call)
	if err == nil {
		return out, nil
	}
	if pawerr.CodeOf(err) != "" {
		return out, err
	}
	if errors.Is(execCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		return out, pawerr.Wrapf(err, pawerr.CodeToolExecuteTimeout, "tool %s timed out after %s", call.Name, d.timeout)
	}
	return out, pawerr.Wrapf(err, pawerr.CodeToolExecuteFailure, "tool %s failed", call.Name)
}

// scan applies the configured mode to res.Output.
func (d *Dispatcher) scan(ctx context.Context, call Call, res *Result) {
	if d.scanner == nil || res.Output == "" {
		return
	}
	found := d.scanner.Scan(res.Output)
	if !found.Found() {
		return
	}
	d.log.LogAttrs(ctx, slog.LevelWarn, "credential found in tool output",
		slog.String("tool", call.Name),
		slog.String("call_id", call.ID),
		slog.String("conversation_id", call.ConversationID),
		slog.Any("rules", found.Rules()),
		slog.Int("matches", len(found.Matches)),
		slog.String("mode", string(d.scanMode)),
		slog.Bool("security", true),
	)
	switch d.scanMode {
	case scanner.ModeFlag:
	case scanner.ModeBlock:
		res.Output = ""
		if res.Err == nil {
			res.Err = pawerr.New(pawerr.CodeToolOutputBlocked,
				"tool output withheld because it contains credentials ("+strings.Join(found.Rules(), ", ")+")",
				pawerr.FieldTool(call.Name))
		}
	default:
		res.Output = scanner.Mask(found.Content, found.Matches)
	}
}

func (d *Dispatcher) begin(ctx context.Context, call Call) *store.ToolCall {
	if d.calls == nil {
		return nil
	}
	tc := &store.ToolCall{
		ID:             call.ID,
		ConversationID: call.ConversationID,
		Name:           call.Name,
		Arguments:      string(call.Args),
		Approved:       call.Approved,
		Status:         store.ToolCallPending,
	}
	if err := d.calls.CreateToolCall(ctx, tc); err != nil {
		d.auditFailure(ctx, err, call)
		return nil
	}
	d.auditFailCount.Store(0)
	return tc
}

func (d *Dispatcher) complete(ctx context.Context, tc *store.ToolCall, res Result) {
	if tc == nil {
		return
	}
	tc.Status = store.ToolCallSucceeded
	tc.Result = res.Output
	if res.Err != nil {
		tc.Status = store.ToolCallFailed
		tc.Error = res.Err.Error()
		tc.ErrorCode = string(res.Code())
	}
	// The row must be completed even if the turn was cancelled meanwhile.
	if err := d.calls.CompleteToolCall(context.WithoutCancel(ctx), tc); err != nil {
		d.auditFailure(ctx, err, Call{ID: tc.ID, Name: tc.Name, ConversationID: tc.ConversationID})
		return
	}
	d.auditFailCount.Store(0)
}

func (d *Dispatcher) auditFailure(ctx context.Context, err error, call Call) {
	consecutive := d.auditFailCount.Add(1)
	level := slog.LevelWarn
	if consecutive >= AuditLogEscalationThreshold {
		level = slog.LevelError
	}
	d.log.LogAttrs(ctx, level, "tool call audit write failed",
		slog.Any("error", err),
		slog.String("tool", call.Name),
		slog.String("call_id", call.ID),
		slog.String("conversation_id", call.ConversationID),
		slog.Int64("consecutive_failures", consecutive),
	)
}

// audit emits one structured record per dispatch attempt. Sandbox denials are
// logged at Warn and tagged as security events.
func (d *Dispatcher) audit(ctx context.Context, call Call, owner string, res Result) {
	attrs := []slog.Attr{
		slog.String("tool", call.Name),
		slog.String("call_id", call.ID),
		slog.String("conversation_id", call.ConversationID),
		slog.String("args", truncateUTF8(string(call.Args), maxAuditArgLen)),
		slog.Bool("approved", call.Approved),
		slog.Duration("duration", res.Duration),
	}
	if owner != "" {
		attrs = append(attrs, slog.String("owner", owner))
	}

	if res.Err == nil {
		d.log.LogAttrs(ctx, slog.LevelInfo, "tool dispatched", append(attrs, slog.String("result", "ok"))...)
		return
	}

	code := res.Code()
	attrs = append(attrs, slog.String("result", "error"), slog.String("code", string(code)), slog.Any("error", res.Err))
	if strings.HasPrefix(string(code), "sandbox.") {
		d.log.LogAttrs(ctx, slog.LevelWarn, "tool dispatch blocked by sandbox", append(attrs, slog.Bool("security", true))...)
		return
	}
	d.log.LogAttrs(ctx, slog.LevelInfo, "tool dispatched", attrs...)
}

// truncateUTF8 cuts s to at most n bytes on a rune boundary.
func truncateUTF8(s string, n int) string {
	if len(s) <= n {
		return s
	}
	i := n
	for i > 0 && !utf8.RuneStart(s[i]) {
		i--
	}
	return s[:i]
}
