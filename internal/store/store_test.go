package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nemark/chat-server/internal/database"
	"github.com/nemark/chat-server/pkg/types"
)

// newTestStore opens an in-memory database with the full schema applied.
// MaxOpenConns is pinned to 1 so every query sees the same memory database.
func newTestStore(t *testing.T) *Store {
	t.Helper()

	db, err := database.Open(":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	return New(db.DB)
}

// seedWidget inserts a workspace and an active widget, returning the widget key.
func seedWidget(t *testing.T, s *Store, siteKey string, allowedOrigins string) int64 {
	t.Helper()
	ctx := context.Background()

	res, err := s.db.ExecContext(ctx,
		"INSERT INTO workspaces (workspace_id, name) VALUES (?, ?)",
		types.NewID(), "ws-"+siteKey,
	)
	require.NoError(t, err)
	workspaceKey, _ := res.LastInsertId()

	if allowedOrigins == "" {
		allowedOrigins = "[]"
	}
	res, err = s.db.ExecContext(ctx, `
		INSERT INTO widgets (widget_id, workspace_key, site_key, name, status, allowed_origins)
		VALUES (?, ?, ?, ?, 1, ?)`,
		types.NewID(), workspaceKey, siteKey, "widget-"+siteKey, allowedOrigins,
	)
	require.NoError(t, err)
	widgetKey, _ := res.LastInsertId()
	return widgetKey
}

// seedStaff inserts a staff account with a membership in the widget's
// workspace, returning (staffKey, staffID).
func seedStaff(t *testing.T, s *Store, widgetKey int64, email string) (int64, string) {
	t.Helper()
	ctx := context.Background()

	var workspaceKey int64
	err := s.db.QueryRowContext(ctx,
		"SELECT workspace_key FROM widgets WHERE widget_key = ?", widgetKey,
	).Scan(&workspaceKey)
	require.NoError(t, err)

	staffID := types.NewID()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO staff_accounts (staff_id, email, name, password_hash, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		staffID, email, "Staff "+email, "x", time.Now().UTC(),
	)
	require.NoError(t, err)
	staffKey, _ := res.LastInsertId()

	_, err = s.db.ExecContext(ctx,
		"INSERT INTO memberships (staff_key, workspace_key, status) VALUES (?, ?, 1)",
		staffKey, workspaceKey,
	)
	require.NoError(t, err)
	return staffKey, staffID
}

// seedConversation creates a conversation for a fresh visitor.
func seedConversation(t *testing.T, s *Store, widgetKey int64, visitorID string) Conversation {
	t.Helper()
	conv, _, err := s.GetOrCreateConversation(context.Background(), widgetKey, visitorID, "", "", types.NewID())
	require.NoError(t, err)
	return conv
}
