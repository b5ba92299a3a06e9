package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sqlite3 "github.com/mattn/go-sqlite3"
)

// Message is a persisted chat message. Messages are immutable once created.
type Message struct {
	ID              string
	ConversationKey int64
	ConversationID  string
	Seq             int64
	SenderType      SenderType
	SenderID        string
	SenderName      string
	Content         string
	ClientMsgID     *string
	CreatedAt       time.Time
}

// CreateMessageParams are the inputs for CreateMessage. Content is expected
// to be validated (non-empty, length-bounded) by the caller before any
// sequence number is consumed.
type CreateMessageParams struct {
	ID              string
	ConversationKey int64
	ConversationID  string
	SenderType      SenderType
	SenderID        string
	SenderName      string
	Content         string
	ClientMsgID     *string
}

// CreateMessageResult is the outcome of an idempotent message creation.
type CreateMessageResult struct {
	Message Message
	// IsDuplicate is true when the message already existed for the
	// supplied clientMsgId; the returned Message is the original record.
	IsDuplicate bool
}

// CreateMessage persists a new message, allocating the next sequence number
// for the conversation.
//
// Creation is idempotent under client retries: when ClientMsgID is set and a
// message with the same (conversationKey, clientMsgId) already exists, the
// existing record is returned unchanged. A concurrent duplicate that loses
// the insert race is absorbed by the unique index and resolved by re-fetch;
// the sequence number burnt by the loser leaves a gap, which is tolerated.
func (s *Store) CreateMessage(ctx context.Context, arg CreateMessageParams) (CreateMessageResult, error) {
	if arg.ClientMsgID != nil && *arg.ClientMsgID != "" {
		existing, err := s.GetMessageByClientMsgID(ctx, arg.ConversationKey, *arg.ClientMsgID)
		if err == nil {
			return CreateMessageResult{Message: existing, IsDuplicate: true}, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return CreateMessageResult{}, err
		}
	}

	seq, err := s.AllocateSeq(ctx, arg.ConversationKey)
	if err != nil {
		return CreateMessageResult{}, fmt.Errorf("failed to allocate seq: %w", err)
	}

	var clientMsgID sql.NullString
	if arg.ClientMsgID != nil && *arg.ClientMsgID != "" {
		clientMsgID = sql.NullString{String: *arg.ClientMsgID, Valid: true}
	}

	createdAt := time.Now().UTC()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO messages (id, conversation_key, conversation_id, seq, sender_type, sender_id, sender_name, content, client_msg_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		arg.ID, arg.ConversationKey, arg.ConversationID, seq,
		string(arg.SenderType), nullable(arg.SenderID), nullable(arg.SenderName), arg.Content, clientMsgID, createdAt,
	)
	if err != nil {
		// A concurrent request with the same clientMsgId won the insert
		// race; return its record instead.
		if isUniqueViolation(err) && clientMsgID.Valid {
			existing, fetchErr := s.GetMessageByClientMsgID(ctx, arg.ConversationKey, clientMsgID.String)
			if fetchErr == nil {
				return CreateMessageResult{Message: existing, IsDuplicate: true}, nil
			}
		}
		return CreateMessageResult{}, fmt.Errorf("failed to insert message: %w", err)
	}

	return CreateMessageResult{
		Message: Message{
			ID:              arg.ID,
			ConversationKey: arg.ConversationKey,
			ConversationID:  arg.ConversationID,
			Seq:             seq,
			SenderType:      arg.SenderType,
			SenderID:        arg.SenderID,
			SenderName:      arg.SenderName,
			Content:         arg.Content,
			ClientMsgID:     arg.ClientMsgID,
			CreatedAt:       createdAt,
		},
	}, nil
}

// GetMessageByClientMsgID looks up a message by its per-conversation
// idempotency key.
func (s *Store) GetMessageByClientMsgID(ctx context.Context, conversationKey int64, clientMsgID string) (Message, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, conversation_key, conversation_id, seq, sender_type, sender_id, sender_name, content, client_msg_id, created_at
		FROM messages
		WHERE conversation_key = ? AND client_msg_id = ?`,
		conversationKey, clientMsgID,
	)
	return scanMessage(row)
}

// MessagePage is one window of reverse-chronological history.
type MessagePage struct {
	// Items are in chronological (ascending seq) order within the page.
	Items []Message
	// NextCursor is the seq of the oldest item returned, nil when no
	// older message exists.
	NextCursor *int64
}

// GetMessagePage returns up to limit messages, newest first, strictly below
// cursorSeq when a cursor is given, reversed into chronological order.
//
// Keyset pagination on the immutable seq keeps already-returned pages stable
// under concurrent inserts; repeating a call with the same cursor returns
// the same window.
func (s *Store) GetMessagePage(ctx context.Context, conversationKey int64, limit int, cursorSeq *int64) (MessagePage, error) {
	query := `
		SELECT id, conversation_key, conversation_id, seq, sender_type, sender_id, sender_name, content, client_msg_id, created_at
		FROM messages
		WHERE conversation_key = ?`
	args := []any{conversationKey}
	if cursorSeq != nil {
		query += " AND seq < ?"
		args = append(args, *cursorSeq)
	}
	query += " ORDER BY seq DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return MessagePage{}, err
	}
	defer rows.Close()

	var newestFirst []Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return MessagePage{}, err
		}
		newestFirst = append(newestFirst, msg)
	}
	if err := rows.Err(); err != nil {
		return MessagePage{}, err
	}

	page := MessagePage{Items: make([]Message, 0, len(newestFirst))}
	for i := len(newestFirst) - 1; i >= 0; i-- {
		page.Items = append(page.Items, newestFirst[i])
	}

	if len(page.Items) > 0 {
		oldest := page.Items[0].Seq
		// Existence probe rather than counting: the cursor is null only
		// when nothing older remains.
		var hasMore bool
		err = s.db.QueryRowContext(ctx,
			"SELECT EXISTS(SELECT 1 FROM messages WHERE conversation_key = ? AND seq < ?)",
			conversationKey, oldest,
		).Scan(&hasMore)
		if err != nil {
			return MessagePage{}, err
		}
		if hasMore {
			cursor := oldest
			page.NextCursor = &cursor
		}
	}

	return page, nil
}

// GetLastMessage returns the highest-seq message of a conversation.
func (s *Store) GetLastMessage(ctx context.Context, conversationKey int64) (Message, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, conversation_key, conversation_id, seq, sender_type, sender_id, sender_name, content, client_msg_id, created_at
		FROM messages
		WHERE conversation_key = ?
		ORDER BY seq DESC
		LIMIT 1`,
		conversationKey,
	)
	return scanMessage(row)
}

// CountMessages counts the persisted messages of a conversation.
func (s *Store) CountMessages(ctx context.Context, conversationKey int64) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM messages WHERE conversation_key = ?",
		conversationKey,
	).Scan(&count)
	return count, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMessage(row rowScanner) (Message, error) {
	var (
		msg         Message
		senderType  string
		senderID    sql.NullString
		senderName  sql.NullString
		clientMsgID sql.NullString
	)
	err := row.Scan(
		&msg.ID, &msg.ConversationKey, &msg.ConversationID, &msg.Seq,
		&senderType, &senderID, &senderName, &msg.Content, &clientMsgID, &msg.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return Message{}, ErrNotFound
	}
	if err != nil {
		return Message{}, err
	}
	msg.SenderType = SenderType(senderType)
	msg.SenderID = senderID.String
	msg.SenderName = senderName.String
	if clientMsgID.Valid {
		msg.ClientMsgID = &clientMsgID.String
	}
	return msg, nil
}

func nullable(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}
