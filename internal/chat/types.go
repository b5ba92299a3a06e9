package chat

import (
	"context"

	"github.com/nemark/chat-server/internal/store"
)

// Store abstracts the persistence operations consumed by the chat service.
// Implemented by *store.Store; narrowed here so tests can substitute fakes.
type Store interface {
	CreateMessage(ctx context.Context, arg store.CreateMessageParams) (store.CreateMessageResult, error)
	GetMessagePage(ctx context.Context, conversationKey int64, limit int, cursorSeq *int64) (store.MessagePage, error)
	GetOrCreateConversation(ctx context.Context, widgetKey int64, visitorID, visitorName, sourceURL, id string) (store.Conversation, bool, error)
	GetConversationByID(ctx context.Context, conversationID string) (store.Conversation, error)
	GetConversationByVisitorAndSiteKey(ctx context.Context, siteKey, visitorID string) (store.Conversation, error)
	MarkDelivered(ctx context.Context, conversationKey int64, memberKey string, seq int64) error
	MarkSeen(ctx context.Context, conversationKey int64, memberKey string, seq int64) error
	UnreadCount(ctx context.Context, conversationKey int64, memberKey string) (int64, error)
}

// SummaryStore is the persistence surface used by the Projector.
type SummaryStore interface {
	ApplySummaryUpdate(ctx context.Context, arg store.SummaryUpdateParams) error
}

// VisitorMemberKey is the read-pointer member key for a visitor.
func VisitorMemberKey(visitorID string) string {
	return "visitor:" + visitorID
}

// StaffMemberKey is the read-pointer member key for a staff account.
func StaffMemberKey(staffID string) string {
	return "staff:" + staffID
}
