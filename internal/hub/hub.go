// Package hub tracks the open websocket connections of this process.
package hub

import (
	"encoding/json"
	"sync"

	"go.uber.org/zap"

	"github.com/fathimasithara01/chat-relay/internal/metrics"
)

// Conn is a registered connection. Send must not block on a slow peer.
type Conn interface {
	ID() string
	UserID() int64
	Send(payload []byte) error
	Close() error
}

// Hub is the single owner of connection membership. Broadcasts iterate a
// snapshot, and a failed write never evicts a connection; removal only happens
// through Unregister.
type Hub struct {
	mu     sync.RWMutex
	conns  map[string]Conn
	byUser map[int64]map[string]struct{}
	log    *zap.Logger
}

func New(log *zap.Logger) *Hub {
	return &Hub{
		conns:  make(map[string]Conn),
		byUser: make(map[int64]map[string]struct{}),
		log:    log.Named("hub"),
	}
}

func (h *Hub) Register(c Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if old, ok := h.conns[c.ID()]; ok {
		h.unindex(old)
	} else {
		metrics.ActiveConnections.Inc()
	}
	h.conns[c.ID()] = c
	if uid := c.UserID(); uid > 0 {
		if _, ok := h.byUser[uid]; !ok {
			h.byUser[uid] = make(map[string]struct{})
		}
		h.byUser[uid][c.ID()] = struct{}{}
	}
	h.log.Debug("connection registered", zap.String("conn_id", c.ID()), zap.Int64("user_id", c.UserID()))
}

// Unregister is a no-op for connections that are absent or were replaced under the same id.
func (h *Hub) Unregister(c Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	cur, ok := h.conns[c.ID()]
	if !ok || cur != c {
		return
	}
	delete(h.conns, c.ID())
	h.unindex(c)
	metrics.ActiveConnections.Dec()
	h.log.Debug("connection unregistered", zap.String("conn_id", c.ID()))
}

func (h *Hub) unindex(c Conn) {
	set, ok := h.byUser[c.UserID()]
	if !ok {
		return
	}
	delete(set, c.ID())
	if len(set) == 0 {
		delete(h.byUser, c.UserID())
	}
}

// Broadcast serializes v once and queues it on every registered connection.
// It returns the number of connections that accepted the frame.
func (h *Hub) Broadcast(v any) (int, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return 0, err
	}
	return h.fanOut(payload, ""), nil
}

// BroadcastExcept is Broadcast without the connection identified by exceptID.
func (h *Hub) BroadcastExcept(v any, exceptID string) (int, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return 0, err
	}
	return h.fanOut(payload, exceptID), nil
}

func (h *Hub) fanOut(payload []byte, exceptID string) int {
	delivered := 0
	for _, c := range h.Snapshot() {
		if exceptID != "" && c.ID() == exceptID {
			continue
		}
		if err := c.Send(payload); err != nil {
			metrics.SendFailures.Inc()
			h.log.Warn("broadcast write failed", zap.String("conn_id", c.ID()), zap.Error(err))
			continue
		}
		delivered++
	}
	return delivered
}

// SendTo writes v to exactly one connection. Write failures are logged, not retried.
func (h *Hub) SendTo(c Conn, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if err := c.Send(payload); err != nil {
		metrics.SendFailures.Inc()
		h.log.Warn("send failed", zap.String("conn_id", c.ID()), zap.Error(err))
	}
	return nil
}

// Snapshot returns the connections registered at the time of the call.
func (h *Hub) Snapshot() []Conn {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]Conn, 0, len(h.conns))
	for _, c := range h.conns {
		out = append(out, c)
	}
	return out
}

func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

func (h *Hub) IsUserConnected(userID int64) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.byUser[userID]) > 0
}

// CloseAll closes every registered connection. Membership is left to the close callbacks.
func (h *Hub) CloseAll() {
	for _, c := range h.Snapshot() {
		if err := c.Close(); err != nil {
			h.log.Debug("close failed", zap.String("conn_id", c.ID()), zap.Error(err))
		}
	}
}
