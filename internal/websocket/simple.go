package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/nemark/chat-server/internal/chat"
	"github.com/nemark/chat-server/internal/crypto"
	"github.com/nemark/chat-server/internal/fanout"
	"github.com/nemark/chat-server/internal/logger"
	"github.com/nemark/chat-server/internal/store"
	"github.com/nemark/chat-server/internal/websocket/handlers"
	"github.com/nemark/chat-server/internal/wire"
	pkgtypes "github.com/nemark/chat-server/pkg/types"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// Origin enforcement happens at token issuance; the widget is
		// embedded on arbitrary customer pages.
		return true
	},
}

// SimpleServer is a plain WebSocket fallback for visitor widgets that cannot
// load the Socket.IO client. It speaks a {type, data} envelope over one
// conversation and shares the fanout router with the Socket.IO server.
type SimpleServer struct {
	jwtManager *crypto.JWTManager
	chat       *chat.Service
	router     *fanout.Router
	typing     *fanout.TypingTracker
}

// Event is the plain WebSocket message envelope.
type Event struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

func NewSimpleServer(jwtManager *crypto.JWTManager, chatSvc *chat.Service, router *fanout.Router, typing *fanout.TypingTracker) *SimpleServer {
	return &SimpleServer{
		jwtManager: jwtManager,
		chat:       chatSvc,
		router:     router,
		typing:     typing,
	}
}

// connSubscriber adapts a gorilla connection to the fanout router. Writes
// are serialized because gorilla allows only one concurrent writer.
type connSubscriber struct {
	id   string
	mu   sync.Mutex
	conn *websocket.Conn
}

func (c *connSubscriber) ID() string { return c.id }

func (c *connSubscriber) Emit(event string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		logger.Errorf("ws emit marshal error: %v", err)
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.conn.WriteJSON(Event{Type: event, Data: data}); err != nil {
		logger.Warnf("ws emit failed (conn %s): %v", c.id, err)
	}
}

// HandleWebSocket upgrades and serves one visitor connection. The embed
// token arrives as a query parameter because browser WebSocket clients
// cannot set headers.
func (s *SimpleServer) HandleWebSocket(c *gin.Context) {
	identity, err := s.jwtManager.Verify(c.Query("token"))
	if err != nil || identity.ActorType != crypto.ActorVisitor {
		c.JSON(http.StatusUnauthorized, pkgtypes.ErrorResponse{Error: "invalid token"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Warnf("WebSocket upgrade error: %v", err)
		return
	}
	defer conn.Close()

	connID := pkgtypes.NewID()
	sub := &connSubscriber{id: connID, conn: conn}
	auth := handlers.NewAuthContext(identity, connID)

	s.router.Subscribe(fanout.ConversationTopic(identity.SiteKey, identity.VisitorID), sub)
	defer func() {
		s.router.Disconnect(connID)
		s.typing.ClearMember(auth.MemberKey())
	}()

	logger.Infof("WebSocket visitor connected: %s (site %s)", identity.VisitorID, identity.SiteKey)

	for {
		var event Event
		if err := conn.ReadJSON(&event); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Warnf("WebSocket error: %v", err)
			}
			break
		}
		s.handleEvent(sub, auth, identity, &event)
	}

	logger.Infof("WebSocket visitor disconnected: %s", identity.VisitorID)
}

func (s *SimpleServer) handleEvent(sub *connSubscriber, auth handlers.AuthContext, identity crypto.Identity, event *Event) {
	ctx := context.Background()

	switch event.Type {
	case wire.EventJoin:
		var payload wire.JoinRequest
		if len(event.Data) > 0 {
			if err := json.Unmarshal(event.Data, &payload); err != nil {
				sub.Emit(wire.EventError, wire.Error{Code: wire.CodeValidation, Message: "invalid join payload"})
				return
			}
		}
		conv, created, err := s.chat.JoinConversation(ctx, identity.WidgetKey, identity.VisitorID, payload.VisitorName, payload.SourceURL)
		if err != nil {
			sub.Emit(wire.EventError, wire.Error{Code: wire.CodeInternal, Message: "could not open conversation"})
			return
		}
		sub.Emit(wire.EventJoin, wire.JoinResponse{ConversationID: conv.ConversationID, Created: created})

	case wire.EventMessage:
		var payload wire.SendMessage
		if err := json.Unmarshal(event.Data, &payload); err != nil {
			sub.Emit(wire.EventError, wire.Error{Code: wire.CodeValidation, Message: "invalid message payload"})
			return
		}
		instr := handlers.MessageIngest(auth, payload)
		if instr == nil {
			sub.Emit(wire.EventError, wire.Error{Code: wire.CodeValidation, Message: "message cannot be empty"})
			return
		}
		conv, _, err := s.chat.JoinConversation(ctx, identity.WidgetKey, identity.VisitorID, "", "")
		if err != nil {
			sub.Emit(wire.EventError, wire.Error{Code: wire.CodeInternal, Message: "could not open conversation"})
			return
		}
		res, err := s.chat.SendMessage(ctx, chat.SendMessageParams{
			ConversationKey: conv.ConversationKey,
			ConversationID:  conv.ConversationID,
			SenderType:      store.SenderVisitor,
			SenderID:        identity.VisitorID,
			Content:         instr.Text(),
			ClientMsgID:     instr.ClientMsgID(),
		})
		if err != nil {
			code, msg := classifyError(err)
			sub.Emit(wire.EventError, wire.Error{Code: code, Message: msg})
			return
		}
		record := messageToWire(res.Message, conv.ConversationID, res.IsDuplicate)
		sub.Emit(wire.EventMessage, record)
		if !res.IsDuplicate {
			broadcast := record
			broadcast.IsDuplicate = false
			s.router.Publish(fanout.ConversationTopic(identity.SiteKey, identity.VisitorID), wire.EventMessage, broadcast, sub.ID())
			s.router.Publish(fanout.StaffTopic(identity.SiteKey), wire.EventMessage, broadcast, sub.ID())
		}

	case wire.EventHistory:
		var payload wire.HistoryRequest
		if len(event.Data) > 0 {
			if err := json.Unmarshal(event.Data, &payload); err != nil {
				sub.Emit(wire.EventError, wire.Error{Code: wire.CodeValidation, Message: "invalid history payload"})
				return
			}
		}
		conv, _, err := s.chat.JoinConversation(ctx, identity.WidgetKey, identity.VisitorID, "", "")
		if err != nil {
			sub.Emit(wire.EventError, wire.Error{Code: wire.CodeInternal, Message: "could not open conversation"})
			return
		}
		page, err := s.chat.History(ctx, conv.ConversationKey, payload.Limit, payload.Cursor)
		if err != nil {
			sub.Emit(wire.EventError, wire.Error{Code: wire.CodeInternal, Message: "could not load history"})
			return
		}
		sub.Emit(wire.EventHistory, historyToWire(page, conv.ConversationID))

	case wire.EventTyping:
		var payload wire.Typing
		if json.Unmarshal(event.Data, &payload) != nil {
			return
		}
		conv, _, err := s.chat.JoinConversation(ctx, identity.WidgetKey, identity.VisitorID, "", "")
		if err != nil {
			return
		}
		s.typing.Set(conv.ConversationID, auth.MemberKey(), payload.IsTyping)
		out := wire.Typing{
			ConversationID: conv.ConversationID,
			VisitorID:      identity.VisitorID,
			SenderType:     string(store.SenderVisitor),
			IsTyping:       payload.IsTyping,
		}
		s.router.Publish(fanout.ConversationTopic(identity.SiteKey, identity.VisitorID), wire.EventTyping, out, sub.ID())
		s.router.Publish(fanout.StaffTopic(identity.SiteKey), wire.EventTyping, out, sub.ID())

	case wire.EventSeen:
		var payload wire.Seen
		if json.Unmarshal(event.Data, &payload) != nil {
			return
		}
		conv, _, err := s.chat.JoinConversation(ctx, identity.WidgetKey, identity.VisitorID, "", "")
		if err != nil {
			return
		}
		if err := s.chat.MarkSeen(ctx, conv.ConversationKey, auth.MemberKey(), payload.LastSeenSeq); err != nil {
			return
		}
		s.router.Publish(fanout.ConversationTopic(identity.SiteKey, identity.VisitorID), wire.EventSeen, wire.Seen{
			ConversationID: conv.ConversationID,
			SenderType:     string(store.SenderVisitor),
			LastSeenSeq:    payload.LastSeenSeq,
		}, sub.ID())

	default:
		logger.Debugf("Unknown event type: %s", event.Type)
	}
}
