package ws

import (
	"context"
	"sync"

	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/fathimasithara01/chat-relay/internal/relay"
)

// Server drives each connection through the relay lifecycle:
// OnOpen, then OnMessage per frame, then OnError if the transport failed, then OnClose.
type Server struct {
	handler relay.Handler
	opts    Options
	log     *zap.Logger
	active  sync.WaitGroup
}

func NewServer(h relay.Handler, opts Options, log *zap.Logger) *Server {
	return &Server{handler: h, opts: opts.withDefaults(), log: log.Named("ws")}
}

// Handle is the fiber websocket handler.
func (s *Server) Handle(c *websocket.Conn) {
	s.Serve(c, func(key string) string { return c.Query(key) })
}

// Serve runs one connection and returns once it is fully closed.
func (s *Server) Serve(sock Socket, param func(string) string) {
	s.active.Add(1)
	defer s.active.Done()

	ctx := context.Background()
	conn := NewConnection(sock, param, s.opts)

	if err := s.handler.OnOpen(ctx, conn); err != nil {
		s.log.Info("connection rejected", zap.String("conn_id", conn.ID()), zap.Error(err))
		conn.abort()
		return
	}

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		conn.writePump()
	}()

	err := conn.readPump(func(p []byte) { s.handler.OnMessage(ctx, conn, p) })
	if err != nil && !conn.closed() && !isNormalClose(err) {
		s.handler.OnError(ctx, conn, err)
	}
	_ = conn.Close()
	<-writerDone
	s.handler.OnClose(ctx, conn)
}

// Wait blocks until every connection handler has returned or ctx is done.
func (s *Server) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.active.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func isNormalClose(err error) bool {
	return websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived)
}
