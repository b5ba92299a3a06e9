package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Conversation is one visitor's thread against a widget.
type Conversation struct {
	ConversationKey int64
	ConversationID  string
	WidgetKey       int64
	VisitorID       string
	VisitorName     string
	Status          int64
	SourceURL       string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// GetOrCreateConversation resolves the conversation for (widget, visitor),
// creating it when absent. The id is used only when a new row is inserted.
// A concurrent create for the same pair is absorbed by the unique constraint
// and resolved by re-fetch.
func (s *Store) GetOrCreateConversation(ctx context.Context, widgetKey int64, visitorID, visitorName, sourceURL, id string) (Conversation, bool, error) {
	conv, err := s.getConversationByWidgetAndVisitor(ctx, widgetKey, visitorID)
	if err == nil {
		if visitorName != "" && visitorName != conv.VisitorName {
			_, err = s.db.ExecContext(ctx,
				"UPDATE conversations SET visitor_name = ?, updated_at = ? WHERE conversation_key = ?",
				visitorName, time.Now().UTC(), conv.ConversationKey,
			)
			if err != nil {
				return Conversation{}, false, err
			}
			conv.VisitorName = visitorName
		}
		return conv, false, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return Conversation{}, false, err
	}

	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO conversations (conversation_id, widget_key, visitor_id, visitor_name, status, source_url, created_at, updated_at)
		VALUES (?, ?, ?, ?, 1, ?, ?, ?)`,
		id, widgetKey, visitorID, nullable(visitorName), nullable(sourceURL), now, now,
	)
	if err != nil {
		if isUniqueViolation(err) {
			conv, fetchErr := s.getConversationByWidgetAndVisitor(ctx, widgetKey, visitorID)
			if fetchErr == nil {
				return conv, false, nil
			}
		}
		return Conversation{}, false, fmt.Errorf("failed to create conversation: %w", err)
	}

	key, err := res.LastInsertId()
	if err != nil {
		return Conversation{}, false, err
	}

	return Conversation{
		ConversationKey: key,
		ConversationID:  id,
		WidgetKey:       widgetKey,
		VisitorID:       visitorID,
		VisitorName:     visitorName,
		Status:          1,
		SourceURL:       sourceURL,
		CreatedAt:       now,
		UpdatedAt:       now,
	}, true, nil
}

// GetConversationByID looks up a conversation by its public identifier.
func (s *Store) GetConversationByID(ctx context.Context, conversationID string) (Conversation, error) {
	row := s.db.QueryRowContext(ctx, selectConversation+" WHERE conversation_id = ?", conversationID)
	return scanConversation(row)
}

// GetConversationByVisitorAndSiteKey resolves the active conversation for a
// visitor on a site. Used by staff-side senders that address conversations
// by (siteKey, visitorId).
func (s *Store) GetConversationByVisitorAndSiteKey(ctx context.Context, siteKey, visitorID string) (Conversation, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT c.conversation_key, c.conversation_id, c.widget_key, c.visitor_id, c.visitor_name, c.status, c.source_url, c.created_at, c.updated_at
		FROM conversations c
		INNER JOIN widgets w ON w.widget_key = c.widget_key
		WHERE w.site_key = ? AND c.visitor_id = ? AND c.status = 1`,
		siteKey, visitorID,
	)
	return scanConversation(row)
}

// ConversationSiteKey returns the site key of the widget a conversation
// belongs to. Used to build fanout topics and check staff access.
func (s *Store) ConversationSiteKey(ctx context.Context, conversationKey int64) (string, error) {
	var siteKey string
	err := s.db.QueryRowContext(ctx, `
		SELECT w.site_key
		FROM conversations c
		INNER JOIN widgets w ON w.widget_key = c.widget_key
		WHERE c.conversation_key = ?`,
		conversationKey,
	).Scan(&siteKey)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	return siteKey, err
}

func (s *Store) getConversationByWidgetAndVisitor(ctx context.Context, widgetKey int64, visitorID string) (Conversation, error) {
	row := s.db.QueryRowContext(ctx,
		selectConversation+" WHERE widget_key = ? AND visitor_id = ? AND status = 1",
		widgetKey, visitorID,
	)
	return scanConversation(row)
}

// ConversationListItem is a staff inbox row: conversation metadata joined
// with its summary projection and the viewer's unread count.
type ConversationListItem struct {
	ConversationID     string
	VisitorID          string
	VisitorName        string
	Status             int64
	SiteKey            string
	WidgetName         string
	LastMessagePreview string
	LastMessageSeq     int64
	LastMessageAt      *time.Time
	MessageCount       int64
	UnreadCount        int64
	CreatedAt          time.Time
}

// ListConversationsForStaff lists conversations in every workspace the staff
// member belongs to, most recently active first, with unread counts derived
// from the summary and the member's read pointer.
func (s *Store) ListConversationsForStaff(ctx context.Context, staffKey int64, memberKey string, limit int) ([]ConversationListItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT
			c.conversation_id, c.visitor_id, c.visitor_name, c.status,
			w.site_key, w.name,
			COALESCE(cs.last_message_preview, ''), COALESCE(cs.last_message_seq, 0), cs.last_message_at,
			COALESCE(cs.message_count, 0),
			max(0, COALESCE(cs.last_message_seq, 0) - COALESCE(r.last_seen_seq, 0)),
			c.created_at
		FROM conversations c
		INNER JOIN widgets w ON w.widget_key = c.widget_key
		INNER JOIN memberships m ON m.workspace_key = w.workspace_key AND m.staff_key = ? AND m.status = 1
		LEFT JOIN conversation_summaries cs ON cs.conversation_key = c.conversation_key
		LEFT JOIN read_pointers r ON r.conversation_key = c.conversation_key AND r.member_key = ?
		ORDER BY COALESCE(cs.last_message_at, c.created_at) DESC
		LIMIT ?`,
		staffKey, memberKey, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []ConversationListItem
	for rows.Next() {
		var (
			item        ConversationListItem
			visitorName sql.NullString
			lastAt      sql.NullTime
		)
		err := rows.Scan(
			&item.ConversationID, &item.VisitorID, &visitorName, &item.Status,
			&item.SiteKey, &item.WidgetName,
			&item.LastMessagePreview, &item.LastMessageSeq, &lastAt,
			&item.MessageCount, &item.UnreadCount, &item.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		item.VisitorName = visitorName.String
		if lastAt.Valid {
			t := lastAt.Time
			item.LastMessageAt = &t
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

const selectConversation = `
	SELECT conversation_key, conversation_id, widget_key, visitor_id, visitor_name, status, source_url, created_at, updated_at
	FROM conversations`

func scanConversation(row rowScanner) (Conversation, error) {
	var (
		conv        Conversation
		visitorName sql.NullString
		sourceURL   sql.NullString
	)
	err := row.Scan(
		&conv.ConversationKey, &conv.ConversationID, &conv.WidgetKey, &conv.VisitorID,
		&visitorName, &conv.Status, &sourceURL, &conv.CreatedAt, &conv.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return Conversation{}, ErrNotFound
	}
	if err != nil {
		return Conversation{}, err
	}
	conv.VisitorName = visitorName.String
	conv.SourceURL = sourceURL.String
	return conv, nil
}
