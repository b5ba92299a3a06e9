package handlers

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nemark/chat-server/internal/crypto"
	"github.com/nemark/chat-server/internal/wire"
)

func visitorAuth(socketID string) AuthContext {
	return NewAuthContext(crypto.Identity{
		ActorType: crypto.ActorVisitor,
		SiteKey:   "site-abc",
		WidgetKey: 1,
		VisitorID: "visitor-1",
	}, socketID)
}

func staffAuth(socketID string) AuthContext {
	return NewAuthContext(crypto.Identity{
		ActorType: crypto.ActorStaff,
		StaffID:   "staff-1",
	}, socketID)
}

func TestValidateSocketAuthPayload_MissingToken(t *testing.T) {
	_, err := ValidateSocketAuthPayload(wire.SocketAuth{})
	require.Error(t, err)

	_, err = ValidateSocketAuthPayload(wire.SocketAuth{Token: "   "})
	require.Error(t, err)
}

func TestValidateSocketAuthPayload_Trims(t *testing.T) {
	hs, err := ValidateSocketAuthPayload(wire.SocketAuth{
		Token:       "  tok-123  ",
		VisitorName: "  Ada  ",
	})
	require.NoError(t, err)
	require.Equal(t, "tok-123", hs.Token)
	require.Equal(t, "Ada", hs.VisitorName)
}

func TestMessageIngest_EmptyText(t *testing.T) {
	auth := visitorAuth("sock-1")

	require.Nil(t, MessageIngest(auth, wire.SendMessage{Text: ""}))
	require.Nil(t, MessageIngest(auth, wire.SendMessage{Text: "  \n\t "}))
}

func TestMessageIngest_ClientMsgID(t *testing.T) {
	auth := visitorAuth("sock-1")

	raw := "  client-7  "
	instr := MessageIngest(auth, wire.SendMessage{Text: "hi", ClientMsgID: &raw})
	require.NotNil(t, instr)
	require.Equal(t, "hi", instr.Text())
	require.NotNil(t, instr.ClientMsgID())
	require.Equal(t, "client-7", *instr.ClientMsgID())
	require.Equal(t, "sock-1", instr.SkipSocketID())

	blank := "   "
	instr = MessageIngest(auth, wire.SendMessage{Text: "hi", ClientMsgID: &blank})
	require.NotNil(t, instr)
	require.Nil(t, instr.ClientMsgID())

	instr = MessageIngest(auth, wire.SendMessage{Text: "hi"})
	require.NotNil(t, instr)
	require.Nil(t, instr.ClientMsgID())
}

func TestValidateConversationRef(t *testing.T) {
	ref, err := ValidateConversationRef(wire.StaffConversationRef{
		SiteID:    " site-abc ",
		VisitorID: " visitor-1 ",
	})
	require.NoError(t, err)
	require.Equal(t, "site-abc", ref.SiteID)
	require.Equal(t, "visitor-1", ref.VisitorID)

	_, err = ValidateConversationRef(wire.StaffConversationRef{VisitorID: "visitor-1"})
	require.Error(t, err)

	_, err = ValidateConversationRef(wire.StaffConversationRef{SiteID: "site-abc"})
	require.Error(t, err)
}

func TestAuthContext_Visitor(t *testing.T) {
	auth := visitorAuth("sock-1")
	require.False(t, auth.IsStaff())
	require.Equal(t, "visitor:visitor-1", auth.MemberKey())
	require.Equal(t, "visitor-1", auth.SenderID())
	require.Equal(t, "sock-1", auth.SocketID())
}

func TestAuthContext_Staff(t *testing.T) {
	auth := staffAuth("sock-2")
	require.True(t, auth.IsStaff())
	require.Equal(t, "staff:staff-1", auth.MemberKey())
	require.Equal(t, "staff-1", auth.SenderID())
	require.Equal(t, "sock-2", auth.SocketID())
}
