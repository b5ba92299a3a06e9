package websocket

import (
	"context"

	socket "github.com/zishang520/socket.io/servers/socket/v3"

	"github.com/nemark/chat-server/internal/crypto"
	"github.com/nemark/chat-server/internal/fanout"
	"github.com/nemark/chat-server/internal/logger"
	"github.com/nemark/chat-server/internal/websocket/handlers"
	"github.com/nemark/chat-server/internal/wire"
)

func (s *SocketIOServer) handleConnection(client *socket.Socket) {
	socketID := string(client.Id())

	logger.Infof("Socket.IO connection attempt (socket ID: %s)", socketID)

	handshake := client.Handshake()

	authMap := handshake.Auth
	if len(authMap) == 0 {
		logger.Warnf("Socket.IO missing auth data (socket %s)", socketID)
		s.rejectConnection(client, wire.CodeAuth, "missing authentication data")
		return
	}

	var authPayload wire.SocketAuth
	if err := decodeAny(authMap, &authPayload); err != nil {
		logger.Warnf("Socket.IO invalid auth data (socket %s): %v", socketID, err)
		s.rejectConnection(client, wire.CodeAuth, "invalid authentication data")
		return
	}

	handshakeAuth, err := handlers.ValidateSocketAuthPayload(authPayload)
	if err != nil {
		logger.Warnf("Socket.IO handshake rejected (socket %s): %v", socketID, err)
		s.rejectConnection(client, wire.CodeAuth, err.Error())
		return
	}

	identity, err := s.jwtManager.Verify(handshakeAuth.Token)
	if err != nil {
		logger.Warnf("Socket.IO invalid token (socket %s): %v", socketID, err)
		s.rejectConnection(client, wire.CodeAuth, "invalid authentication token")
		return
	}

	sd := &SocketData{
		Identity: identity,
		Socket:   client,
	}
	s.socketData.Store(socketID, sd)

	sub := &socketSubscriber{id: socketID, socket: client}

	switch identity.ActorType {
	case crypto.ActorVisitor:
		// A visitor listens on exactly one topic, their own conversation.
		s.router.Subscribe(fanout.ConversationTopic(identity.SiteKey, identity.VisitorID), sub)
		s.registerVisitorHandlers(client, sd, socketID)
		logger.Infof("Socket.IO visitor ready (site: %s, visitor: %s)", identity.SiteKey, identity.VisitorID)

	case crypto.ActorStaff:
		siteKeys, err := s.accessibleSites(identity)
		if err != nil {
			logger.Errorf("Socket.IO staff site lookup failed (socket %s): %v", socketID, err)
			s.rejectConnection(client, wire.CodeInternal, "could not resolve site access")
			return
		}
		if len(siteKeys) == 0 {
			s.rejectConnection(client, wire.CodeUnauthorized, "no accessible sites")
			return
		}
		for _, siteKey := range siteKeys {
			s.router.Subscribe(fanout.StaffTopic(siteKey), sub)
		}
		s.registerStaffHandlers(client, sd, socketID)
		logger.Infof("Socket.IO staff ready (staff: %s, sites: %d)", identity.StaffID, len(siteKeys))

	default:
		s.rejectConnection(client, wire.CodeAuth, "unknown actor type")
	}
}

// accessibleSites resolves the staff topics for a staff identity. Embed-scoped
// staff tokens carry their single site; platform tokens consult memberships.
func (s *SocketIOServer) accessibleSites(identity crypto.Identity) ([]string, error) {
	if identity.SiteKey != "" {
		return []string{identity.SiteKey}, nil
	}
	return s.staff.ListAccessibleSiteKeys(context.Background(), identity.StaffID)
}

func (s *SocketIOServer) rejectConnection(client *socket.Socket, code, message string) {
	client.Emit(wire.EventError, wire.Error{Code: code, Message: message})
	client.Disconnect(true)
}

// teardown drops all connection-local state. Writes already in flight are
// unaffected and still complete and fan out.
func (s *SocketIOServer) teardown(socketID string, sd *SocketData) {
	s.router.Disconnect(socketID)
	s.typing.ClearMember(memberKeyFor(sd.Identity))
	s.socketData.Delete(socketID)
}

func memberKeyFor(identity crypto.Identity) string {
	return handlers.NewAuthContext(identity, "").MemberKey()
}
