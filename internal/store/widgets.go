package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"
)

// Widget is an embeddable chat widget registration for one site.
type Widget struct {
	WidgetKey      int64
	WidgetID       string
	WorkspaceKey   int64
	SiteKey        string
	Name           string
	Status         int64
	AllowedOrigins []string
	CreatedAt      time.Time
}

// GetWidgetBySiteKey returns the active widget registered for a site key.
func (s *Store) GetWidgetBySiteKey(ctx context.Context, siteKey string) (Widget, error) {
	var (
		w       Widget
		origins string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT widget_key, widget_id, workspace_key, site_key, name, status, allowed_origins, created_at
		FROM widgets
		WHERE site_key = ? AND status = 1`,
		siteKey,
	).Scan(&w.WidgetKey, &w.WidgetID, &w.WorkspaceKey, &w.SiteKey, &w.Name, &w.Status, &origins, &w.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Widget{}, ErrNotFound
	}
	if err != nil {
		return Widget{}, err
	}
	if err := json.Unmarshal([]byte(origins), &w.AllowedOrigins); err != nil {
		w.AllowedOrigins = nil
	}
	return w, nil
}
