package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	socket "github.com/zishang520/socket.io/servers/socket/v3"
	sockettypes "github.com/zishang520/socket.io/v3/pkg/types"

	"github.com/nemark/chat-server/internal/chat"
	"github.com/nemark/chat-server/internal/crypto"
	"github.com/nemark/chat-server/internal/fanout"
	"github.com/nemark/chat-server/internal/logger"
	"github.com/nemark/chat-server/internal/store"
	"github.com/nemark/chat-server/internal/wire"
)

// StaffDirectory resolves which sites a platform staff account may monitor.
type StaffDirectory interface {
	ListAccessibleSiteKeys(ctx context.Context, staffID string) ([]string, error)
}

// SocketIOServer is the realtime front door for both widget and staff
// connections. Authentication happens at handshake; message ordering and
// persistence live in the chat service, topic routing in the fanout router.
type SocketIOServer struct {
	jwtManager *crypto.JWTManager
	chat       *chat.Service
	staff      StaffDirectory
	router     *fanout.Router
	typing     *fanout.TypingTracker
	server     *socket.Server
	socketData sync.Map // socket ID -> *SocketData
}

// NewSocketIOServer creates a Socket.IO server on /v1/realtime.
func NewSocketIOServer(jwtManager *crypto.JWTManager, chatSvc *chat.Service, staff StaffDirectory, router *fanout.Router, typing *fanout.TypingTracker) *SocketIOServer {
	opts := socket.DefaultServerOptions()

	opts.SetCors(&sockettypes.Cors{
		Origin:      "*",
		Credentials: false,
	})

	// PingInterval/PingTimeout control how quickly an abruptly closed widget
	// tab is detected and its typing flags swept.
	const pingInterval = 5 * time.Second
	const pingTimeout = 15 * time.Second
	opts.SetPingTimeout(pingTimeout)
	opts.SetPingInterval(pingInterval)

	opts.SetPath("/v1/realtime")

	server := socket.NewServer(nil, opts)

	s := &SocketIOServer{
		jwtManager: jwtManager,
		chat:       chatSvc,
		staff:      staff,
		router:     router,
		typing:     typing,
		server:     server,
		socketData: sync.Map{},
	}
	s.setupHandlers()
	return s
}

// SocketData stores connection metadata for each socket.
type SocketData struct {
	Identity crypto.Identity
	Socket   *socket.Socket

	// Conversation resolved at join time; zero until the visitor joins.
	// Guarded by mu because join and message handlers can interleave.
	mu              sync.Mutex
	conversationKey int64
	conversationID  string
}

func (sd *SocketData) conversation() (int64, string) {
	sd.mu.Lock()
	defer sd.mu.Unlock()
	return sd.conversationKey, sd.conversationID
}

func (sd *SocketData) setConversation(key int64, id string) {
	sd.mu.Lock()
	defer sd.mu.Unlock()
	sd.conversationKey = key
	sd.conversationID = id
}

func (s *SocketIOServer) setupHandlers() {
	s.server.On("connection", func(clients ...any) {
		client := clients[0].(*socket.Socket)
		s.handleConnection(client)
	})
}

func decodeAny(input any, out any) error {
	raw, err := json.Marshal(input)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}

func getFirstAnyWithAck(data []any) (any, func(...any)) {
	var ack func(...any)
	if len(data) == 0 {
		return nil, nil
	}
	if cb, ok := data[len(data)-1].(func(...any)); ok {
		ack = cb
		data = data[:len(data)-1]
	} else if cb, ok := data[len(data)-1].(socket.Ack); ok {
		ack = func(args ...any) {
			cb(args, nil)
		}
		data = data[:len(data)-1]
	}
	if len(data) == 0 {
		return nil, ack
	}
	return data[0], ack
}

// getSocketData retrieves socket metadata by socket ID.
func (s *SocketIOServer) getSocketData(socketID string) *SocketData {
	if data, ok := s.socketData.Load(socketID); ok {
		if sd, ok := data.(*SocketData); ok {
			return sd
		}
	}
	return &SocketData{}
}

// HandleSocketIO creates a Gin handler for the Socket.IO endpoint.
func (s *SocketIOServer) HandleSocketIO() gin.HandlerFunc {
	httpHandler := s.server.ServeHandler(nil)

	return func(c *gin.Context) {
		// The widget is served cross-origin from customer pages.
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")

		if c.Request.Method == "OPTIONS" {
			c.Status(http.StatusOK)
			return
		}

		logger.Tracef("Socket.IO request: %s %s", c.Request.Method, c.Request.URL.Path)
		httpHandler.ServeHTTP(c.Writer, c.Request)
	}
}

// Close shuts down the Socket.IO server.
func (s *SocketIOServer) Close() error {
	s.server.Close(nil)
	return nil
}

// socketSubscriber adapts a Socket.IO socket to the fanout router.
type socketSubscriber struct {
	id     string
	socket *socket.Socket
}

func (s *socketSubscriber) ID() string { return s.id }

func (s *socketSubscriber) Emit(event string, payload any) {
	s.socket.Emit(event, payload)
}

var _ fanout.Subscriber = (*socketSubscriber)(nil)

// messageToWire converts a persisted record to its wire shape.
func messageToWire(m store.Message, conversationID string, isDuplicate bool) wire.Message {
	return wire.Message{
		ID:             m.ID,
		ConversationID: conversationID,
		Seq:            m.Seq,
		SenderType:     string(m.SenderType),
		SenderID:       m.SenderID,
		SenderName:     m.SenderName,
		Text:           m.Content,
		ClientMsgID:    m.ClientMsgID,
		IsDuplicate:    isDuplicate,
		CreatedAt:      wire.Millis(m.CreatedAt),
	}
}
