// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Paw Contributors

package sqlite_test

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elemarin/paw/internal/store"
	pawerr "github.com/elemarin/paw/pkg/errors"
)

func TestMemoryStore_Entries(t *testing.T) {
	ctx := t.Context()
	ms := openTestDB(t).Memory()

	require.NoError(t, ms.PutEntry(ctx, &store.MemoryEntry{Scope: "global", Key: "name", Value: "Ada"}))
	require.NoError(t, ms.PutEntry(ctx, &store.MemoryEntry{Scope: "global", Key: "name", Value: "Grace"}))
	require.NoError(t, ms.PutEntry(ctx, &store.MemoryEntry{Scope: "other", Key: "name", Value: "Linus"}))

	got, err := ms.GetEntry(ctx, "global", "name")
	require.NoError(t, err)
	assert.Equal(t, "Grace", got.Value)

	list, err := ms.ListEntries(ctx, "global")
	require.NoError(t, err)
	assert.Len(t, list, 1)

	require.NoError(t, ms.DeleteEntry(ctx, "global", "name"))
	require.NoError(t, ms.DeleteEntry(ctx, "global", "name"))

	_, err = ms.GetEntry(ctx, "global", "name")
	assert.True(t, pawerr.IsNotFound(err))

	other, err := ms.GetEntry(ctx, "other", "name")
	require.NoError(t, err)
	assert.Equal(t, "Linus", other.Value)
}

func TestMemoryStore_ConcurrentPutLeavesOneValue(t *testing.T) {
	ctx := t.Context()
	ms := openTestDB(t).Memory()

	values := []string{"a", "b"}
	var wg sync.WaitGroup
	errs := make([]error, len(values))
	for i, v := range values {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = ms.PutEntry(ctx, &store.MemoryEntry{Scope: "s", Key: "k", Value: v})
		}()
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}
	got, err := ms.GetEntry(ctx, "s", "k")
	require.NoError(t, err)
	assert.Contains(t, values, got.Value)
}

func TestMemoryStore_LogWindow(t *testing.T) {
	ctx := t.Context()
	ms := openTestDB(t).Memory()

	day := time.Date(2026, 5, 10, 0, 0, 0, 0, time.UTC)
	for i, content := range []string{"old", "boundary", "recent"} {
		require.NoError(t, ms.AppendLog(ctx, &store.LogEntry{
			Scope:     "global",
			Content:   content,
			CreatedAt: day.Add(time.Duration(i-1) * 500 * time.Millisecond),
		}))
	}

	got, err := ms.ListLog(ctx, "global", day)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "boundary", got[0].Content)
	assert.Equal(t, "recent", got[1].Content)
	assert.NotZero(t, got[0].ID)
}
