// Package relay implements the websocket chat protocol on top of the hub.
// Two variants exist: Chat persists messages and authenticates connections,
// Echo is a bare broadcaster without storage.
package relay

import (
	"context"

	"github.com/fathimasithara01/chat-relay/internal/hub"
)

// Session is a connection as seen by a Handler.
type Session interface {
	hub.Conn
	// Param returns a handshake query parameter.
	Param(key string) string
	// Authenticate binds the session to a user. Call before registering.
	Authenticate(userID int64)
}

// Handler receives the lifecycle events of every connection. Events for one
// session are never delivered concurrently; events for different sessions are.
// A non-nil error from OnOpen rejects the connection: it is closed and no
// other event follows.
type Handler interface {
	OnOpen(ctx context.Context, s Session) error
	OnMessage(ctx context.Context, s Session, payload []byte)
	OnClose(ctx context.Context, s Session)
	OnError(ctx context.Context, s Session, err error)
}
