package handlers

import (
	"errors"
	"strings"

	"github.com/nemark/chat-server/internal/wire"
)

// SocketHandshake is the validated handshake auth payload.
type SocketHandshake struct {
	Token       string
	VisitorName string
}

// ValidateSocketAuthPayload checks the handshake auth payload before any
// credential verification happens.
func ValidateSocketAuthPayload(auth wire.SocketAuth) (SocketHandshake, error) {
	token := strings.TrimSpace(auth.Token)
	if token == "" {
		return SocketHandshake{}, errors.New("missing authentication token")
	}
	return SocketHandshake{
		Token:       token,
		VisitorName: strings.TrimSpace(auth.VisitorName),
	}, nil
}
