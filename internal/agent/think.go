// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Paw Contributors

package agent

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/elemarin/paw/internal/provider"
	pawerr "github.com/elemarin/paw/pkg/errors"
)

// reply is one parsed model response.
type reply struct {
	text  string
	calls []provider.ToolCall
	usage provider.Usage
}

// think asks the model for the next step. Transient failures are retried
// with backoff on the routed provider; once retries are exhausted the call
// fails over to the next provider in the chain. Non-retryable errors such as
// auth failures or content-policy refusals end the attempt immediately.
func (l *Loop) think(ctx context.Context, model string, budget *provider.Budget, req provider.ChatRequest) (*reply, error) {
	var tried []string
	var lastErr error

	for attempt := 0; attempt < l.gateway.MaxAttempts(); attempt++ {
		prov, resolved, err := l.gateway.RouteWithBudget(ctx, model, budget, tried)
		if err != nil {
			if lastErr != nil && pawerr.HasCode(err, pawerr.CodeProviderAllUnavailable) {
				return nil, lastErr
			}
			return nil, err
		}

		req.Model = resolved
		rep, err := provider.Retry(ctx, l.retry, func(ctx context.Context) (*reply, error) {
			return collect(ctx, prov, req)
		})
		if err == nil {
			return rep, nil
		}
		if !pawerr.IsRetryable(err) {
			return nil, err
		}

		l.log.Warn("provider failed after retries, failing over",
			"provider", prov.Name(),
			"model", resolved,
			"code", pawerr.CodeOf(err),
			"error", err,
		)
		tried = append(tried, prov.Name())
		lastErr = err
	}
	return nil, lastErr
}

// collect drains one streamed reply.
func collect(ctx context.Context, prov provider.Provider, req provider.ChatRequest) (*reply, error) {
	ch, err := prov.Chat(ctx, req)
	if err != nil {
		return nil, provider.Classify(prov.Name(), err)
	}

	rep := &reply{}
	var text strings.Builder
	for ev := range ch {
		switch ev.Type {
		case provider.EventTypeTextDelta:
			text.WriteString(ev.Text)
		case provider.EventTypeToolCall:
			if ev.ToolCall == nil {
				continue
			}
			tc := *ev.ToolCall
			if tc.ID == "" {
				tc.ID = "call_" + uuid.NewString()
			}
			if strings.TrimSpace(tc.Arguments) == "" {
				tc.Arguments = "{}"
			}
			rep.calls = append(rep.calls, tc)
		case provider.EventTypeUsage:
			if ev.Usage != nil {
				rep.usage.Merge(*ev.Usage)
			}
		case provider.EventTypeError:
			streamErr := ev.Err
			if streamErr == nil {
				streamErr = pawerr.New(pawerr.CodeProviderUpstreamFailure, ev.Error,
					pawerr.FieldProvider(prov.Name()))
			}
			for range ch {
			}
			return nil, streamErr
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rep.text = text.String()
	return rep, nil
}
