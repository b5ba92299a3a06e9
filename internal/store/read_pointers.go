package store

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// ReadPointer tracks how far a member has received and read a conversation.
// Invariant: LastSeenSeq <= LastDeliveredSeq.
type ReadPointer struct {
	ConversationKey  int64
	MemberKey        string
	LastDeliveredSeq int64
	LastSeenSeq      int64
	UpdatedAt        time.Time
}

// MarkDelivered advances the delivered pointer for a member. The pointer
// only moves forward; stale updates are no-ops.
func (s *Store) MarkDelivered(ctx context.Context, conversationKey int64, memberKey string, seq int64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO read_pointers (conversation_key, member_key, last_delivered_seq, last_seen_seq, updated_at)
		VALUES (?, ?, ?, 0, ?)
		ON CONFLICT(conversation_key, member_key) DO UPDATE SET
			last_delivered_seq = max(last_delivered_seq, excluded.last_delivered_seq),
			updated_at = excluded.updated_at`,
		conversationKey, memberKey, seq, time.Now().UTC(),
	)
	return err
}

// MarkSeen advances the seen pointer for a member, dragging the delivered
// pointer along so that seen never exceeds delivered.
func (s *Store) MarkSeen(ctx context.Context, conversationKey int64, memberKey string, seq int64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO read_pointers (conversation_key, member_key, last_delivered_seq, last_seen_seq, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(conversation_key, member_key) DO UPDATE SET
			last_seen_seq = max(last_seen_seq, excluded.last_seen_seq),
			last_delivered_seq = max(last_delivered_seq, excluded.last_seen_seq),
			updated_at = excluded.updated_at`,
		conversationKey, memberKey, seq, seq, time.Now().UTC(),
	)
	return err
}

// GetReadPointer returns the pointer for one (conversation, member) pair.
func (s *Store) GetReadPointer(ctx context.Context, conversationKey int64, memberKey string) (ReadPointer, error) {
	var ptr ReadPointer
	err := s.db.QueryRowContext(ctx, `
		SELECT conversation_key, member_key, last_delivered_seq, last_seen_seq, updated_at
		FROM read_pointers
		WHERE conversation_key = ? AND member_key = ?`,
		conversationKey, memberKey,
	).Scan(&ptr.ConversationKey, &ptr.MemberKey, &ptr.LastDeliveredSeq, &ptr.LastSeenSeq, &ptr.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return ReadPointer{}, ErrNotFound
	}
	if err != nil {
		return ReadPointer{}, err
	}
	return ptr, nil
}

// UnreadCount computes the member's unread count from the summary and read
// pointer without scanning message history. A missing pointer means nothing
// has been read yet.
func (s *Store) UnreadCount(ctx context.Context, conversationKey int64, memberKey string) (int64, error) {
	var unread int64
	err := s.db.QueryRowContext(ctx, `
		SELECT max(0, COALESCE(s.last_message_seq, 0) - COALESCE(r.last_seen_seq, 0))
		FROM (SELECT 1) AS one
		LEFT JOIN conversation_summaries s ON s.conversation_key = ?
		LEFT JOIN read_pointers r ON r.conversation_key = ? AND r.member_key = ?`,
		conversationKey, conversationKey, memberKey,
	).Scan(&unread)
	return unread, err
}
