// Package wire defines the JSON payloads exchanged over the realtime
// connection. Event names are shared between the widget and staff clients.
package wire

import "time"

// Realtime event names.
const (
	EventJoin       = "join"
	EventMessage    = "message"
	EventHistory    = "history"
	EventTyping     = "typing"
	EventSeen       = "seen"
	EventStaffJoin  = "staff-join"
	EventStaffLeave = "staff-leave"
	EventError      = "error"
)

// SocketAuth is the handshake auth payload sent when the connection opens.
type SocketAuth struct {
	// Token is the bearer credential (embed or platform token).
	Token string `json:"token"`
	// VisitorName optionally seeds the visitor display name at connect.
	VisitorName string `json:"visitorName,omitempty"`
}

// JoinRequest opens (or resumes) the visitor's conversation.
type JoinRequest struct {
	// VisitorName is an optional display name for the visitor.
	VisitorName string `json:"visitorName,omitempty"`
	// SourceURL is the page the widget was embedded on.
	SourceURL string `json:"sourceUrl,omitempty"`
}

// JoinResponse acknowledges a join with the resolved conversation.
type JoinResponse struct {
	// ConversationID is the logical conversation identifier.
	ConversationID string `json:"conversationId"`
	// Created reports whether this join created the conversation.
	Created bool `json:"created"`
}

// SendMessage is the inbound payload for a message send.
type SendMessage struct {
	// Text is the message body.
	Text string `json:"text"`
	// ClientMsgID is the client idempotency key; resends with the same
	// value collapse into one persisted message.
	ClientMsgID *string `json:"clientMsgId,omitempty"`
}

// Message is the canonical persisted record. Acks and broadcasts always
// carry this shape, never the client's original payload.
type Message struct {
	// ID is the server-assigned message id.
	ID string `json:"id"`
	// ConversationID is the logical conversation identifier.
	ConversationID string `json:"conversationId"`
	// Seq is the conversation-scoped sequence number.
	Seq int64 `json:"seq"`
	// SenderType is "visitor", "staff" or "system".
	SenderType string `json:"senderType"`
	// SenderID identifies the sender within its type.
	SenderID string `json:"senderId"`
	// SenderName is the sender's display name.
	SenderName string `json:"senderName,omitempty"`
	// Text is the sanitized message body.
	Text string `json:"text"`
	// ClientMsgID echoes the idempotency key; null when absent.
	ClientMsgID *string `json:"clientMsgId"`
	// IsDuplicate is set on acks when the send was a collapsed retry.
	IsDuplicate bool `json:"isDuplicate,omitempty"`
	// CreatedAt is the persistence time in ms since epoch.
	CreatedAt int64 `json:"createdAt"`
}

// HistoryRequest asks for one page of older messages.
type HistoryRequest struct {
	// Limit caps the page size; the server clamps it.
	Limit int `json:"limit,omitempty"`
	// Cursor is the seq to page back from; omit for the newest page.
	Cursor *int64 `json:"cursor,omitempty"`
}

// HistoryResponse is one chronological page of messages.
type HistoryResponse struct {
	// Items are ordered by ascending seq within the page.
	Items []Message `json:"items"`
	// NextCursor pages further back; null when no older messages exist.
	NextCursor *int64 `json:"nextCursor"`
}

// StaffSendMessage is the staff-side message send, addressed by site and
// visitor rather than by connection-bound conversation.
type StaffSendMessage struct {
	// SiteID is the widget's public site key.
	SiteID string `json:"siteId"`
	// VisitorID identifies the target conversation's visitor.
	VisitorID string `json:"visitorId"`
	// Text is the message body.
	Text string `json:"text"`
	// ClientMsgID is the client idempotency key.
	ClientMsgID *string `json:"clientMsgId,omitempty"`
}

// Typing is the ephemeral typing indicator, both directions.
type Typing struct {
	// SiteID addresses the conversation on staff-originated events.
	SiteID string `json:"siteId,omitempty"`
	// ConversationID identifies the conversation being typed in.
	ConversationID string `json:"conversationId,omitempty"`
	// VisitorID is set on staff-facing mirrors of visitor typing.
	VisitorID string `json:"visitorId,omitempty"`
	// SenderType is "visitor" or "staff".
	SenderType string `json:"senderType,omitempty"`
	// IsTyping turns the indicator on or off.
	IsTyping bool `json:"isTyping"`
}

// Seen is the read-receipt hint, both directions.
type Seen struct {
	// SiteID addresses the conversation on staff-originated events.
	SiteID string `json:"siteId,omitempty"`
	// VisitorID addresses the conversation on staff-originated events.
	VisitorID string `json:"visitorId,omitempty"`
	// ConversationID identifies the conversation.
	ConversationID string `json:"conversationId,omitempty"`
	// SenderType is "visitor" or "staff".
	SenderType string `json:"senderType,omitempty"`
	// LastSeenSeq is the highest seq the member has seen.
	LastSeenSeq int64 `json:"lastSeenSeq"`
}

// StaffConversationRef addresses one conversation topic from the staff side.
type StaffConversationRef struct {
	// SiteID is the widget's public site key.
	SiteID string `json:"siteId"`
	// VisitorID identifies the visitor on that site.
	VisitorID string `json:"visitorId"`
}

// Error is the out-of-band failure notice.
type Error struct {
	// Code is a stable machine-readable error code.
	Code string `json:"code"`
	// Message is a human-readable description.
	Message string `json:"message"`
}

// Wire error codes.
const (
	CodeValidation   = "validation_error"
	CodeNotFound     = "not_found"
	CodeAuth         = "auth_error"
	CodeInternal     = "internal_error"
	CodeUnauthorized = "unauthorized"
)

// Ack is the generic acknowledgement envelope for realtime requests.
type Ack struct {
	// Success reports whether the request was applied.
	Success bool `json:"success"`
	// Error is set when Success is false.
	Error *Error `json:"error,omitempty"`
}

// MessageAck acknowledges a message send with the persisted record.
type MessageAck struct {
	Ack
	// Message is the canonical persisted record.
	Message *Message `json:"message,omitempty"`
}

// Millis converts a wall-clock time to ms since epoch for wire payloads.
func Millis(t time.Time) int64 {
	return t.UnixMilli()
}
