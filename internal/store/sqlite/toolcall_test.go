// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Paw Contributors

package sqlite_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elemarin/paw/internal/store"
	pawerr "github.com/elemarin/paw/pkg/errors"
)

func TestToolCallStore_Lifecycle(t *testing.T) {
	ctx := t.Context()
	tcs := openTestDB(t).ToolCalls()

	tc := &store.ToolCall{
		ID:             "call-1",
		ConversationID: "conv-1",
		Name:           "shell",
		Arguments:      `{"command":"ls"}`,
		Approved:       true,
	}
	require.NoError(t, tcs.CreateToolCall(ctx, tc))
	assert.Equal(t, store.ToolCallPending, tc.Status)

	tc.Status = store.ToolCallFailed
	tc.Error = "command blocked"
	tc.ErrorCode = string(pawerr.CodeSandboxCommandDenied)
	require.NoError(t, tcs.CompleteToolCall(ctx, tc))

	got, err := tcs.GetToolCall(ctx, "call-1")
	require.NoError(t, err)
	assert.Equal(t, store.ToolCallFailed, got.Status)
	assert.Equal(t, "command blocked", got.Error)
	assert.Equal(t, string(pawerr.CodeSandboxCommandDenied), got.ErrorCode)
	assert.True(t, got.Approved)
	assert.False(t, got.CompletedAt.IsZero())

	require.NoError(t, tcs.CreateToolCall(ctx, &store.ToolCall{ID: "call-2", ConversationID: "conv-1", Name: "files"}))
	list, err := tcs.ListToolCalls(ctx, "conv-1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "call-1", list[0].ID)
	assert.Equal(t, "call-2", list[1].ID)
}

func TestToolCallStore_Errors(t *testing.T) {
	ctx := t.Context()
	tcs := openTestDB(t).ToolCalls()

	_, err := tcs.GetToolCall(ctx, "missing")
	assert.True(t, pawerr.IsNotFound(err))

	err = tcs.CompleteToolCall(ctx, &store.ToolCall{ID: "missing", Status: store.ToolCallSucceeded})
	assert.True(t, pawerr.IsNotFound(err))

	err = tcs.CreateToolCall(ctx, &store.ToolCall{ID: "x"})
	assert.True(t, pawerr.IsInvalidInput(err))
}
