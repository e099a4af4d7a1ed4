package relay

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/fathimasithara01/chat-relay/internal/hub"
	"github.com/fathimasithara01/chat-relay/internal/metrics"
)

const echoTimeLayout = "2006-01-02 15:04:05"

// Echo relays every JSON object it receives to all other connections, stamped
// with the server time and the sender's connection id. Nothing is stored.
type Echo struct {
	hub *hub.Hub
	now func() time.Time
	log *zap.Logger
}

func NewEcho(h *hub.Hub, now func() time.Time, log *zap.Logger) *Echo {
	if now == nil {
		now = time.Now
	}
	return &Echo{hub: h, now: now, log: log.Named("echo")}
}

func (e *Echo) OnOpen(_ context.Context, s Session) error {
	e.hub.Register(s)
	e.log.Info("connection opened", zap.String("conn_id", s.ID()))
	return nil
}

func (e *Echo) OnMessage(_ context.Context, s Session, payload []byte) {
	var msg map[string]any
	if err := json.Unmarshal(payload, &msg); err != nil || len(msg) == 0 {
		if err == nil {
			err = errors.New("empty or not an object")
		}
		metrics.FramesDiscarded.WithLabelValues("malformed").Inc()
		e.log.Debug("frame discarded", zap.String("conn_id", s.ID()), zap.Error(err))
		return
	}

	msg["timestamp"] = e.now().Format(echoTimeLayout)
	msg["from_id"] = s.ID()

	n, err := e.hub.BroadcastExcept(msg, s.ID())
	if err != nil {
		e.log.Error("encode echo frame", zap.Error(err))
		return
	}
	e.log.Debug("message relayed", zap.String("conn_id", s.ID()), zap.Int("recipients", n))
}

func (e *Echo) OnClose(_ context.Context, s Session) {
	e.hub.Unregister(s)
	e.log.Info("connection closed", zap.String("conn_id", s.ID()))
}

func (e *Echo) OnError(_ context.Context, s Session, err error) {
	e.log.Warn("connection error", zap.String("conn_id", s.ID()), zap.Error(err))
	_ = s.Close()
}
