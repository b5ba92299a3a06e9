package store

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// ConversationSummary is the denormalized last-activity projection of a
// conversation, used by list views so they never scan message history.
type ConversationSummary struct {
	ConversationKey     int64
	LastMessageSeq      int64
	LastMessagePreview  string
	LastMessageRef      string
	MessageCount        int64
	VisitorMessageCount int64
	LastMessageAt       *time.Time
}

// SummaryUpdateParams describe one projected message for ApplySummaryUpdate.
type SummaryUpdateParams struct {
	ConversationKey int64
	Seq             int64
	Preview         string
	MessageRef      string
	IsVisitor       bool
	At              time.Time
}

// ApplySummaryUpdate applies one message to the conversation summary.
//
// Counts are always incremented, but the last-message fields carry a
// monotonic guard: they advance only when the incoming seq is greater than
// the stored one. Updates arriving out of order therefore converge on the
// newest message regardless of arrival order, without any locking.
func (s *Store) ApplySummaryUpdate(ctx context.Context, arg SummaryUpdateParams) error {
	visitorInc := int64(0)
	if arg.IsVisitor {
		visitorInc = 1
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO conversation_summaries
			(conversation_key, last_message_seq, last_message_preview, last_message_ref, message_count, visitor_message_count, last_message_at)
		VALUES (?, ?, ?, ?, 1, ?, ?)
		ON CONFLICT(conversation_key) DO UPDATE SET
			message_count = message_count + 1,
			visitor_message_count = visitor_message_count + excluded.visitor_message_count,
			last_message_seq = CASE WHEN excluded.last_message_seq > last_message_seq
				THEN excluded.last_message_seq ELSE last_message_seq END,
			last_message_preview = CASE WHEN excluded.last_message_seq > last_message_seq
				THEN excluded.last_message_preview ELSE last_message_preview END,
			last_message_ref = CASE WHEN excluded.last_message_seq > last_message_seq
				THEN excluded.last_message_ref ELSE last_message_ref END,
			last_message_at = CASE WHEN excluded.last_message_seq > last_message_seq
				THEN excluded.last_message_at ELSE last_message_at END`,
		arg.ConversationKey, arg.Seq, arg.Preview, arg.MessageRef, visitorInc, arg.At.UTC(),
	)
	return err
}

// GetSummary returns the summary row for a conversation.
func (s *Store) GetSummary(ctx context.Context, conversationKey int64) (ConversationSummary, error) {
	var (
		summary ConversationSummary
		preview sql.NullString
		ref     sql.NullString
		lastAt  sql.NullTime
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT conversation_key, last_message_seq, last_message_preview, last_message_ref, message_count, visitor_message_count, last_message_at
		FROM conversation_summaries
		WHERE conversation_key = ?`,
		conversationKey,
	).Scan(
		&summary.ConversationKey, &summary.LastMessageSeq, &preview, &ref,
		&summary.MessageCount, &summary.VisitorMessageCount, &lastAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return ConversationSummary{}, ErrNotFound
	}
	if err != nil {
		return ConversationSummary{}, err
	}
	summary.LastMessagePreview = preview.String
	summary.LastMessageRef = ref.String
	if lastAt.Valid {
		t := lastAt.Time
		summary.LastMessageAt = &t
	}
	return summary, nil
}
