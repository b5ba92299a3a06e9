package store

import (
	"context"
	"database/sql"
	"errors"
)

// AllocateSeq atomically increments and returns the per-conversation message
// sequence counter, creating it on first use (first allocation returns 1).
//
// The increment happens inside a single upsert statement so concurrent
// callers always observe distinct, increasing values. Never split this into
// a read followed by a write.
func (s *Store) AllocateSeq(ctx context.Context, conversationKey int64) (int64, error) {
	var seq int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO conversation_counters (conversation_key, next_seq)
		VALUES (?, 1)
		ON CONFLICT(conversation_key) DO UPDATE SET next_seq = next_seq + 1
		RETURNING next_seq`,
		conversationKey,
	).Scan(&seq)
	if err != nil {
		return 0, err
	}
	return seq, nil
}

// AllocateSeqBatch reserves a contiguous range of count sequence numbers in
// one atomic operation and returns its inclusive bounds. Used for bulk
// import scenarios.
func (s *Store) AllocateSeqBatch(ctx context.Context, conversationKey int64, count int64) (start, end int64, err error) {
	if count <= 0 {
		return 0, 0, errors.New("batch count must be positive")
	}
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO conversation_counters (conversation_key, next_seq)
		VALUES (?, ?)
		ON CONFLICT(conversation_key) DO UPDATE SET next_seq = next_seq + ?
		RETURNING next_seq`,
		conversationKey, count, count,
	).Scan(&end)
	if err != nil {
		return 0, 0, err
	}
	return end - count + 1, end, nil
}

// PeekSeq returns the last allocated sequence number without incrementing.
//
// Diagnostics only: the value may be stale by the time it is observed, so
// callers must never use it to predict the seq they would be allocated.
func (s *Store) PeekSeq(ctx context.Context, conversationKey int64) (int64, error) {
	var seq int64
	err := s.db.QueryRowContext(ctx,
		"SELECT next_seq FROM conversation_counters WHERE conversation_key = ?",
		conversationKey,
	).Scan(&seq)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return seq, nil
}
