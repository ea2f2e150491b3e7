// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Paw Contributors

package store

import "errors"

// Backends wrap these with a pawerr code so callers can match either the
// sentinel with errors.Is or the code with pawerr.HasCode.
var (
	// ErrNotFound: no conversation, tool call, proposal, or memory entry
	// with the given key.
	ErrNotFound = errors.New("not found")
	// ErrConflict: duplicate id, or a proposal whose status moved since it
	// was read.
	ErrConflict = errors.New("conflict")
	// ErrInvalidInput: rejected before touching storage, such as a tool
	// message without a call id.
	ErrInvalidInput = errors.New("invalid input")
)
