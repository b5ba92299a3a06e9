package websocket

import (
	"context"
	"strings"

	socket "github.com/zishang520/socket.io/servers/socket/v3"

	"github.com/nemark/chat-server/internal/chat"
	"github.com/nemark/chat-server/internal/crypto"
	"github.com/nemark/chat-server/internal/fanout"
	"github.com/nemark/chat-server/internal/logger"
	"github.com/nemark/chat-server/internal/store"
	"github.com/nemark/chat-server/internal/websocket/handlers"
	"github.com/nemark/chat-server/internal/wire"
)

func (s *SocketIOServer) registerStaffHandlers(client *socket.Socket, sd *SocketData, socketID string) {
	identity := sd.Identity
	auth := handlers.NewAuthContext(identity, socketID)
	sub := &socketSubscriber{id: socketID, socket: client}

	client.On(wire.EventStaffJoin, func(data ...any) {
		raw, ack := getFirstAnyWithAck(data)
		var payload wire.StaffConversationRef
		if err := decodeAny(raw, &payload); err != nil {
			ackError(ack, wire.CodeValidation, "invalid payload")
			return
		}
		ref, err := handlers.ValidateConversationRef(payload)
		if err != nil {
			ackError(ack, wire.CodeValidation, err.Error())
			return
		}
		if !s.staffCanAccess(identity, ref.SiteID) {
			ackError(ack, wire.CodeUnauthorized, "no access to site")
			return
		}
		s.router.Subscribe(fanout.ConversationTopic(ref.SiteID, ref.VisitorID), sub)
		if ack != nil {
			ack(wire.Ack{Success: true})
		}
	})

	client.On(wire.EventStaffLeave, func(data ...any) {
		raw, ack := getFirstAnyWithAck(data)
		var payload wire.StaffConversationRef
		if err := decodeAny(raw, &payload); err != nil {
			ackError(ack, wire.CodeValidation, "invalid payload")
			return
		}
		ref, err := handlers.ValidateConversationRef(payload)
		if err != nil {
			ackError(ack, wire.CodeValidation, err.Error())
			return
		}
		s.router.Unsubscribe(fanout.ConversationTopic(ref.SiteID, ref.VisitorID), socketID)
		if ack != nil {
			ack(wire.Ack{Success: true})
		}
	})

	client.On(wire.EventMessage, func(data ...any) {
		raw, ack := getFirstAnyWithAck(data)
		var payload wire.StaffSendMessage
		if err := decodeAny(raw, &payload); err != nil {
			ackMessageError(ack, wire.CodeValidation, "invalid message payload")
			return
		}
		ref, err := handlers.ValidateConversationRef(wire.StaffConversationRef{
			SiteID:    payload.SiteID,
			VisitorID: payload.VisitorID,
		})
		if err != nil {
			ackMessageError(ack, wire.CodeValidation, err.Error())
			return
		}
		if !s.staffCanAccess(identity, ref.SiteID) {
			ackMessageError(ack, wire.CodeUnauthorized, "no access to site")
			return
		}

		conv, err := s.chat.ConversationByVisitor(context.Background(), ref.SiteID, ref.VisitorID)
		if err != nil {
			code, msg := classifyError(err)
			ackMessageError(ack, code, msg)
			return
		}

		instr := handlers.MessageIngest(auth, wire.SendMessage{
			Text:        payload.Text,
			ClientMsgID: payload.ClientMsgID,
		})
		if instr == nil {
			ackMessageError(ack, wire.CodeValidation, "message cannot be empty")
			return
		}

		res, err := s.chat.SendMessage(context.Background(), chat.SendMessageParams{
			ConversationKey: conv.ConversationKey,
			ConversationID:  conv.ConversationID,
			SenderType:      store.SenderStaff,
			SenderID:        identity.StaffID,
			Content:         instr.Text(),
			ClientMsgID:     instr.ClientMsgID(),
		})
		if err != nil {
			code, msg := classifyError(err)
			ackMessageError(ack, code, msg)
			return
		}

		record := messageToWire(res.Message, conv.ConversationID, res.IsDuplicate)
		if ack != nil {
			ack(wire.MessageAck{Ack: wire.Ack{Success: true}, Message: &record})
		}

		if !res.IsDuplicate {
			broadcast := record
			broadcast.IsDuplicate = false
			s.router.Publish(fanout.ConversationTopic(ref.SiteID, ref.VisitorID),
				wire.EventMessage, broadcast, instr.SkipSocketID())
			s.router.Publish(fanout.StaffTopic(ref.SiteID),
				wire.EventMessage, broadcast, instr.SkipSocketID())

			if err := s.chat.MarkSeen(context.Background(), conv.ConversationKey, auth.MemberKey(), res.Message.Seq); err != nil {
				logger.Warnf("staff seen pointer update failed (socket %s): %v", socketID, err)
			}
		}
	})

	client.On(wire.EventHistory, func(data ...any) {
		raw, ack := getFirstAnyWithAck(data)
		var payload struct {
			wire.StaffConversationRef
			wire.HistoryRequest
		}
		if err := decodeAny(raw, &payload); err != nil {
			ackError(ack, wire.CodeValidation, "invalid history payload")
			return
		}
		ref, err := handlers.ValidateConversationRef(payload.StaffConversationRef)
		if err != nil {
			ackError(ack, wire.CodeValidation, err.Error())
			return
		}
		if !s.staffCanAccess(identity, ref.SiteID) {
			ackError(ack, wire.CodeUnauthorized, "no access to site")
			return
		}
		conv, err := s.chat.ConversationByVisitor(context.Background(), ref.SiteID, ref.VisitorID)
		if err != nil {
			code, msg := classifyError(err)
			ackError(ack, code, msg)
			return
		}
		page, err := s.chat.History(context.Background(), conv.ConversationKey, payload.Limit, payload.Cursor)
		if err != nil {
			logger.Errorf("staff history failed (socket %s): %v", socketID, err)
			ackError(ack, wire.CodeInternal, "could not load history")
			return
		}
		if ack != nil {
			ack(historyToWire(page, conv.ConversationID))
		}
	})

	client.On(wire.EventTyping, func(data ...any) {
		var payload wire.Typing
		if len(data) == 0 || decodeAny(data[0], &payload) != nil {
			return
		}
		if payload.SiteID == "" || payload.VisitorID == "" || !s.staffCanAccess(identity, payload.SiteID) {
			return
		}
		// Staff typing goes only to the conversation, not to other staff.
		s.router.Publish(fanout.ConversationTopic(payload.SiteID, payload.VisitorID), wire.EventTyping, wire.Typing{
			SenderType: string(store.SenderStaff),
			IsTyping:   payload.IsTyping,
		}, socketID)
	})

	client.On(wire.EventSeen, func(data ...any) {
		var payload wire.Seen
		if len(data) == 0 || decodeAny(data[0], &payload) != nil {
			return
		}
		if payload.SiteID == "" || payload.VisitorID == "" || !s.staffCanAccess(identity, payload.SiteID) {
			return
		}
		conv, err := s.chat.ConversationByVisitor(context.Background(), payload.SiteID, payload.VisitorID)
		if err != nil {
			return
		}
		if err := s.chat.MarkSeen(context.Background(), conv.ConversationKey, auth.MemberKey(), payload.LastSeenSeq); err != nil {
			logger.Warnf("staff seen pointer update failed (socket %s): %v", socketID, err)
			return
		}
		s.router.Publish(fanout.ConversationTopic(payload.SiteID, payload.VisitorID), wire.EventSeen, wire.Seen{
			ConversationID: conv.ConversationID,
			SenderType:     string(store.SenderStaff),
			LastSeenSeq:    payload.LastSeenSeq,
		}, socketID)
	})

	client.On("disconnect", func(data ...any) {
		reason := ""
		if len(data) > 0 {
			if r, ok := data[0].(string); ok {
				reason = r
			}
		}
		logger.Infof("Staff disconnected: %s (socket %s, reason: %s)", identity.StaffID, socketID, reason)
		s.teardown(socketID, sd)
	})
}

// staffCanAccess reports whether the staff identity may act on a site.
func (s *SocketIOServer) staffCanAccess(identity crypto.Identity, siteID string) bool {
	siteID = strings.TrimSpace(siteID)
	if siteID == "" {
		return false
	}
	if identity.SiteKey != "" {
		return identity.SiteKey == siteID
	}
	siteKeys, err := s.staff.ListAccessibleSiteKeys(context.Background(), identity.StaffID)
	if err != nil {
		logger.Errorf("site access lookup failed (staff %s): %v", identity.StaffID, err)
		return false
	}
	for _, key := range siteKeys {
		if key == siteID {
			return true
		}
	}
	return false
}
