package handlers

import (
	"errors"
	"strings"

	"github.com/nemark/chat-server/internal/wire"
)

var errMissingConversationRef = errors.New("siteId and visitorId are required")

// MessageInstruction carries a validated send through to the chat service.
type MessageInstruction struct {
	text         string
	clientMsgID  *string
	skipSocketID string
}

func (m *MessageInstruction) Text() string         { return m.text }
func (m *MessageInstruction) ClientMsgID() *string { return m.clientMsgID }
func (m *MessageInstruction) SkipSocketID() string { return m.skipSocketID }

// MessageIngest shapes an inbound message payload into an instruction.
// Returns nil when the payload is empty; full content validation happens in
// the chat service so the limit is enforced identically on every path.
func MessageIngest(auth AuthContext, payload wire.SendMessage) *MessageInstruction {
	if strings.TrimSpace(payload.Text) == "" {
		return nil
	}
	var clientMsgID *string
	if payload.ClientMsgID != nil && strings.TrimSpace(*payload.ClientMsgID) != "" {
		id := strings.TrimSpace(*payload.ClientMsgID)
		clientMsgID = &id
	}
	return &MessageInstruction{
		text:         payload.Text,
		clientMsgID:  clientMsgID,
		skipSocketID: auth.SocketID(),
	}
}

// ValidateConversationRef checks a staff-join/staff-leave target.
func ValidateConversationRef(ref wire.StaffConversationRef) (wire.StaffConversationRef, error) {
	ref.SiteID = strings.TrimSpace(ref.SiteID)
	ref.VisitorID = strings.TrimSpace(ref.VisitorID)
	if ref.SiteID == "" || ref.VisitorID == "" {
		return wire.StaffConversationRef{}, errMissingConversationRef
	}
	return ref, nil
}
