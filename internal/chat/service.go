package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nemark/chat-server/internal/store"
	"github.com/nemark/chat-server/pkg/types"
)

const (
	// MaxContentLength caps the stored message body in characters.
	MaxContentLength = 2000

	// DefaultHistoryLimit is used when a history request omits the limit.
	DefaultHistoryLimit = 30

	// MaxHistoryLimit caps the page size regardless of what the client asks for.
	MaxHistoryLimit = 50

	// previewLength caps the summary preview stored per conversation.
	previewLength = 200
)

// ErrValidation marks errors caused by bad client input. Use errors.Is to
// distinguish them from storage failures when mapping to wire errors.
var ErrValidation = errors.New("validation failed")

var (
	ErrEmptyContent   = fmt.Errorf("%w: message cannot be empty", ErrValidation)
	ErrContentTooLong = fmt.Errorf("%w: message exceeds %d characters", ErrValidation, MaxContentLength)
)

// Service orchestrates message ingestion, history reads and read pointer
// updates on top of the store, and feeds the summary projector.
type Service struct {
	store     Store
	projector *Projector

	now   func() time.Time
	newID func() string
}

func NewService(st Store, projector *Projector) *Service {
	return &Service{
		store:     st,
		projector: projector,
		now:       time.Now,
		newID:     types.NewID,
	}
}

// SendMessageParams carries one inbound message through validation and
// persistence. ClientMsgID is optional; when set, resends with the same value
// return the original message instead of creating a new one.
type SendMessageParams struct {
	ConversationKey int64
	ConversationID  string
	SenderType      store.SenderType
	SenderID        string
	SenderName      string
	Content         string
	ClientMsgID     *string
}

// SendMessage validates and persists one message. Validation rejects the
// message before a sequence number is consumed. Duplicates are returned
// as-is and never re-projected into the conversation summary.
func (s *Service) SendMessage(ctx context.Context, arg SendMessageParams) (store.CreateMessageResult, error) {
	content, err := sanitizeContent(arg.Content)
	if err != nil {
		return store.CreateMessageResult{}, err
	}
	if !arg.SenderType.Valid() {
		return store.CreateMessageResult{}, fmt.Errorf("%w: unknown sender type %q", ErrValidation, arg.SenderType)
	}

	res, err := s.store.CreateMessage(ctx, store.CreateMessageParams{
		ID:              s.newID(),
		ConversationKey: arg.ConversationKey,
		ConversationID:  arg.ConversationID,
		SenderType:      arg.SenderType,
		SenderID:        arg.SenderID,
		SenderName:      arg.SenderName,
		Content:         content,
		ClientMsgID:     arg.ClientMsgID,
	})
	if err != nil {
		return store.CreateMessageResult{}, fmt.Errorf("create message: %w", err)
	}

	if !res.IsDuplicate && s.projector != nil {
		s.projector.Enqueue(store.SummaryUpdateParams{
			ConversationKey: res.Message.ConversationKey,
			Seq:             res.Message.Seq,
			Preview:         truncate(content, previewLength),
			MessageRef:      res.Message.ID,
			IsVisitor:       res.Message.SenderType == store.SenderVisitor,
			At:              res.Message.CreatedAt,
		})
	}
	return res, nil
}

// History returns one page of messages in chronological order, newest page
// first. A nil cursor starts from the most recent message.
func (s *Service) History(ctx context.Context, conversationKey int64, limit int, cursorSeq *int64) (store.MessagePage, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	if limit > MaxHistoryLimit {
		limit = MaxHistoryLimit
	}
	return s.store.GetMessagePage(ctx, conversationKey, limit, cursorSeq)
}

// JoinConversation resolves (or lazily creates) the conversation for a
// visitor on a widget. The returned bool reports whether it was created.
func (s *Service) JoinConversation(ctx context.Context, widgetKey int64, visitorID, visitorName, sourceURL string) (store.Conversation, bool, error) {
	return s.store.GetOrCreateConversation(ctx, widgetKey, visitorID, visitorName, sourceURL, s.newID())
}

func (s *Service) ConversationByID(ctx context.Context, conversationID string) (store.Conversation, error) {
	return s.store.GetConversationByID(ctx, conversationID)
}

func (s *Service) ConversationByVisitor(ctx context.Context, siteKey, visitorID string) (store.Conversation, error) {
	return s.store.GetConversationByVisitorAndSiteKey(ctx, siteKey, visitorID)
}

// MarkSeen advances the member's seen pointer. Seeing a message implies it
// was delivered, so the delivered pointer is dragged along when behind.
func (s *Service) MarkSeen(ctx context.Context, conversationKey int64, memberKey string, seq int64) error {
	if seq < 0 {
		return fmt.Errorf("%w: negative seq", ErrValidation)
	}
	return s.store.MarkSeen(ctx, conversationKey, memberKey, seq)
}

func (s *Service) MarkDelivered(ctx context.Context, conversationKey int64, memberKey string, seq int64) error {
	if seq < 0 {
		return fmt.Errorf("%w: negative seq", ErrValidation)
	}
	return s.store.MarkDelivered(ctx, conversationKey, memberKey, seq)
}

func (s *Service) Unread(ctx context.Context, conversationKey int64, memberKey string) (int64, error) {
	return s.store.UnreadCount(ctx, conversationKey, memberKey)
}

// sanitizeContent strips non-printable control characters, trims surrounding
// whitespace and enforces the length cap. Newlines and tabs survive.
func sanitizeContent(raw string) (string, error) {
	if len([]rune(raw)) > MaxContentLength {
		return "", ErrContentTooLong
	}
	cleaned := strings.Map(func(r rune) rune {
		if r >= 0x00 && r <= 0x08 || r == 0x0B || r == 0x0C || r >= 0x0E && r <= 0x1F {
			return -1
		}
		return r
	}, raw)
	cleaned = strings.TrimSpace(cleaned)
	if cleaned == "" {
		return "", ErrEmptyContent
	}
	return cleaned, nil
}

func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
