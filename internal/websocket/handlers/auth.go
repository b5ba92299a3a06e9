package handlers

import (
	"github.com/nemark/chat-server/internal/chat"
	"github.com/nemark/chat-server/internal/crypto"
)

// AuthContext identifies the authenticated caller of a realtime handler.
type AuthContext struct {
	identity crypto.Identity
	socketID string
}

// NewAuthContext builds an auth context for a handler call.
func NewAuthContext(identity crypto.Identity, socketID string) AuthContext {
	return AuthContext{identity: identity, socketID: socketID}
}

func (a AuthContext) Identity() crypto.Identity { return a.identity }
func (a AuthContext) SocketID() string          { return a.socketID }

func (a AuthContext) IsStaff() bool {
	return a.identity.ActorType == crypto.ActorStaff
}

// MemberKey is the read-pointer key for the caller.
func (a AuthContext) MemberKey() string {
	if a.IsStaff() {
		return chat.StaffMemberKey(a.identity.StaffID)
	}
	return chat.VisitorMemberKey(a.identity.VisitorID)
}

// SenderID is the free-form sender identifier recorded on messages.
func (a AuthContext) SenderID() string {
	if a.IsStaff() {
		return a.identity.StaffID
	}
	return a.identity.VisitorID
}
