package websocket

import (
	"context"
	"errors"

	socket "github.com/zishang520/socket.io/servers/socket/v3"

	"github.com/nemark/chat-server/internal/chat"
	"github.com/nemark/chat-server/internal/crypto"
	"github.com/nemark/chat-server/internal/fanout"
	"github.com/nemark/chat-server/internal/logger"
	"github.com/nemark/chat-server/internal/store"
	"github.com/nemark/chat-server/internal/websocket/handlers"
	"github.com/nemark/chat-server/internal/wire"
)

func (s *SocketIOServer) registerVisitorHandlers(client *socket.Socket, sd *SocketData, socketID string) {
	identity := sd.Identity
	auth := handlers.NewAuthContext(identity, socketID)

	client.On(wire.EventJoin, func(data ...any) {
		raw, ack := getFirstAnyWithAck(data)
		var payload wire.JoinRequest
		if raw != nil {
			if err := decodeAny(raw, &payload); err != nil {
				logger.Warnf("join decode error (socket %s): %v", socketID, err)
				ackError(ack, wire.CodeValidation, "invalid join payload")
				return
			}
		}

		conv, created, err := s.chat.JoinConversation(
			context.Background(), identity.WidgetKey, identity.VisitorID, payload.VisitorName, payload.SourceURL)
		if err != nil {
			logger.Errorf("join failed (socket %s): %v", socketID, err)
			ackError(ack, wire.CodeInternal, "could not open conversation")
			return
		}
		sd.setConversation(conv.ConversationKey, conv.ConversationID)

		if ack != nil {
			ack(wire.JoinResponse{ConversationID: conv.ConversationID, Created: created})
		}
	})

	client.On(wire.EventMessage, func(data ...any) {
		raw, ack := getFirstAnyWithAck(data)
		var payload wire.SendMessage
		if err := decodeAny(raw, &payload); err != nil {
			logger.Warnf("message decode error (socket %s): %v", socketID, err)
			ackMessageError(ack, wire.CodeValidation, "invalid message payload")
			return
		}

		instr := handlers.MessageIngest(auth, payload)
		if instr == nil {
			ackMessageError(ack, wire.CodeValidation, "message cannot be empty")
			return
		}

		convKey, convID, err := s.visitorConversation(sd, identity)
		if err != nil {
			logger.Errorf("message conversation resolve failed (socket %s): %v", socketID, err)
			ackMessageError(ack, wire.CodeInternal, "could not open conversation")
			return
		}

		res, err := s.chat.SendMessage(context.Background(), chat.SendMessageParams{
			ConversationKey: convKey,
			ConversationID:  convID,
			SenderType:      store.SenderVisitor,
			SenderID:        identity.VisitorID,
			Content:         instr.Text(),
			ClientMsgID:     instr.ClientMsgID(),
		})
		if err != nil {
			code, msg := classifyError(err)
			ackMessageError(ack, code, msg)
			return
		}

		record := messageToWire(res.Message, convID, res.IsDuplicate)
		if ack != nil {
			ack(wire.MessageAck{Ack: wire.Ack{Success: true}, Message: &record})
		}

		// Duplicates were already broadcast when first persisted.
		if !res.IsDuplicate {
			broadcast := record
			broadcast.IsDuplicate = false
			s.router.Publish(fanout.ConversationTopic(identity.SiteKey, identity.VisitorID),
				wire.EventMessage, broadcast, instr.SkipSocketID())
			s.router.Publish(fanout.StaffTopic(identity.SiteKey),
				wire.EventMessage, broadcast, instr.SkipSocketID())

			if err := s.chat.MarkSeen(context.Background(), convKey, auth.MemberKey(), res.Message.Seq); err != nil {
				logger.Warnf("sender seen pointer update failed (socket %s): %v", socketID, err)
			}
		}
	})

	client.On(wire.EventHistory, func(data ...any) {
		raw, ack := getFirstAnyWithAck(data)
		var payload wire.HistoryRequest
		if raw != nil {
			if err := decodeAny(raw, &payload); err != nil {
				ackError(ack, wire.CodeValidation, "invalid history payload")
				return
			}
		}

		convKey, convID, err := s.visitorConversation(sd, identity)
		if err != nil {
			ackError(ack, wire.CodeInternal, "could not open conversation")
			return
		}

		page, err := s.chat.History(context.Background(), convKey, payload.Limit, payload.Cursor)
		if err != nil {
			logger.Errorf("history failed (socket %s): %v", socketID, err)
			ackError(ack, wire.CodeInternal, "could not load history")
			return
		}
		if ack != nil {
			ack(historyToWire(page, convID))
		}
	})

	client.On(wire.EventTyping, func(data ...any) {
		var payload wire.Typing
		if len(data) == 0 || decodeAny(data[0], &payload) != nil {
			return
		}

		_, convID := sd.conversation()
		if convID == "" {
			return
		}
		s.typing.Set(convID, auth.MemberKey(), payload.IsTyping)

		out := wire.Typing{
			ConversationID: convID,
			VisitorID:      identity.VisitorID,
			SenderType:     string(store.SenderVisitor),
			IsTyping:       payload.IsTyping,
		}
		s.router.Publish(fanout.ConversationTopic(identity.SiteKey, identity.VisitorID),
			wire.EventTyping, out, socketID)
		// Mirror to the staff topic so list views can show the indicator.
		s.router.Publish(fanout.StaffTopic(identity.SiteKey), wire.EventTyping, out, socketID)
	})

	client.On(wire.EventSeen, func(data ...any) {
		var payload wire.Seen
		if len(data) == 0 || decodeAny(data[0], &payload) != nil {
			return
		}

		convKey, convID := sd.conversation()
		if convKey == 0 {
			return
		}
		if err := s.chat.MarkSeen(context.Background(), convKey, auth.MemberKey(), payload.LastSeenSeq); err != nil {
			logger.Warnf("seen pointer update failed (socket %s): %v", socketID, err)
			return
		}
		s.router.Publish(fanout.ConversationTopic(identity.SiteKey, identity.VisitorID), wire.EventSeen, wire.Seen{
			ConversationID: convID,
			SenderType:     string(store.SenderVisitor),
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
		logger.Infof("Visitor disconnected: %s (socket %s, reason: %s)", identity.VisitorID, socketID, reason)
		s.teardown(socketID, sd)
	})
}

// visitorConversation returns the connection's conversation, lazily resolving
// it when the client sent a message without an explicit join first.
func (s *SocketIOServer) visitorConversation(sd *SocketData, identity crypto.Identity) (int64, string, error) {
	if key, id := sd.conversation(); key != 0 {
		return key, id, nil
	}
	conv, _, err := s.chat.JoinConversation(context.Background(), identity.WidgetKey, identity.VisitorID, "", "")
	if err != nil {
		return 0, "", err
	}
	sd.setConversation(conv.ConversationKey, conv.ConversationID)
	return conv.ConversationKey, conv.ConversationID, nil
}

func historyToWire(page store.MessagePage, conversationID string) wire.HistoryResponse {
	items := make([]wire.Message, 0, len(page.Items))
	for _, m := range page.Items {
		items = append(items, messageToWire(m, conversationID, false))
	}
	return wire.HistoryResponse{Items: items, NextCursor: page.NextCursor}
}

func classifyError(err error) (string, string) {
	switch {
	case errors.Is(err, chat.ErrValidation):
		return wire.CodeValidation, err.Error()
	case errors.Is(err, store.ErrNotFound):
		return wire.CodeNotFound, "not found"
	default:
		return wire.CodeInternal, "temporary failure, please retry"
	}
}

func ackError(ack func(...any), code, message string) {
	if ack == nil {
		return
	}
	ack(wire.Ack{Success: false, Error: &wire.Error{Code: code, Message: message}})
}

func ackMessageError(ack func(...any), code, message string) {
	if ack == nil {
		return
	}
	ack(wire.MessageAck{Ack: wire.Ack{Success: false, Error: &wire.Error{Code: code, Message: message}}})
}
