// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Paw Contributors

package sqlite_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/elemarin/paw/internal/store"
	"github.com/elemarin/paw/internal/store/sqlite"
)

// openTestDB opens a fresh database in a per-test temp directory.
func openTestDB(t *testing.T) *sqlite.DB {
	t.Helper()
	db, err := sqlite.Open(filepath.Join(t.TempDir(), "paw.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func createConversation(t *testing.T, db store.Store, id string) *store.Conversation {
	t.Helper()
	conv := &store.Conversation{ID: id, Title: "test " + id}
	require.NoError(t, db.Conversations().CreateConversation(t.Context(), conv))
	return conv
}
