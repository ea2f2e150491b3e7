// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Paw Contributors

// Package tool holds the registry of callable tools and the dispatcher that
// validates, executes, and audits every call the agent makes.
package tool

import (
	"context"
	"encoding/json"
	"time"

	pawerr "github.com/elemarin/paw/pkg/errors"
)

// OwnerBuiltin marks tools compiled into the binary.
const OwnerBuiltin = "builtin"

// Class names the sandbox policy a tool applies. File and command tools
// resolve paths and screen commands through the sandbox themselves, so the
// registry only accepts those classes from builtin tools.
type Class string

const (
	ClassFile    Class = "file"
	ClassCommand Class = "command"
	ClassOther   Class = "other"
)

// Definition describes a tool to the model and to the registry.
type Definition struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Schema      json.RawMessage `json:"schema"`
	Owner       string          `json:"owner"`
	Class       Class           `json:"class"`
}

// Call is one invocation request, usually parsed from a model reply.
type Call struct {
	ID             string
	ConversationID string
	Name           string
	Args           json.RawMessage
	// Approved is the caller's explicit consent for commands that match an
	// approval pattern.
	Approved bool
}

// Tool is anything the agent can invoke. Execute receives arguments that
// already passed the definition's schema.
type Tool interface {
	Definition() Definition
	Execute(ctx context.Context, call Call) (string, error)
}

// Func adapts a function into a Tool.
type Func struct {
	Def Definition
	Fn  func(ctx context.Context, call Call) (string, error)
}

func (f Func) Definition() Definition { return f.Def }

func (f Func) Execute(ctx context.Context, call Call) (string, error) {
	return f.Fn(ctx, call)
}

// Result is the outcome of a dispatch. Err is nil on success.
type Result struct {
	CallID   string
	Name     string
	Output   string
	Err      error
	Duration time.Duration
}

// Code returns the error code of a failed dispatch, or "" on success.
func (r Result) Code() pawerr.Code {
	return pawerr.CodeOf(r.Err)
}

// Observation renders the result as the text fed back to the model. Failures
// are reported in-band so the model can react to them.
func (r Result) Observation() string {
	if r.Err == nil {
		return r.Output
	}
	msg := "error [" + string(r.Code()) + "]: " + r.Err.Error()
	if r.Output != "" {
		msg += "\n" + r.Output
	}
	return msg
}

