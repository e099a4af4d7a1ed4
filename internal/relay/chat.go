package relay

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/fathimasithara01/chat-relay/internal/domain"
	"github.com/fathimasithara01/chat-relay/internal/events"
	"github.com/fathimasithara01/chat-relay/internal/hub"
	"github.com/fathimasithara01/chat-relay/internal/metrics"
	"github.com/fathimasithara01/chat-relay/internal/repository"
	"github.com/fathimasithara01/chat-relay/internal/token"
)

type ChatOptions struct {
	// RequireAuth enables the token handshake on open.
	RequireAuth bool
	// RateLimit caps sendMessage frames per connection per second. Zero disables it.
	RateLimit float64
	RateBurst int
	Now       func() time.Time
}

// Chat is the persistent relay. getMessages is answered to the requester only;
// sendMessage is stored and then broadcast to every connection, sender included.
type Chat struct {
	hub    *hub.Hub
	repo   repository.Repository
	tokens token.Store
	events events.Publisher
	opts   ChatOptions
	log    *zap.Logger

	// postMu keeps persistence order and broadcast order identical
	postMu sync.Mutex

	limMu    sync.Mutex
	limiters map[string]*rate.Limiter
}

func NewChat(h *hub.Hub, repo repository.Repository, tokens token.Store, pub events.Publisher, opts ChatOptions, log *zap.Logger) *Chat {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.RateBurst <= 0 {
		opts.RateBurst = 1
	}
	if pub == nil {
		pub = events.Nop{}
	}
	return &Chat{
		hub:      h,
		repo:     repo,
		tokens:   tokens,
		events:   pub,
		opts:     opts,
		log:      log.Named("chat"),
		limiters: make(map[string]*rate.Limiter),
	}
}

func (c *Chat) OnOpen(ctx context.Context, s Session) error {
	if c.opts.RequireAuth {
		if err := c.authenticate(ctx, s); err != nil {
			return err
		}
	}

	c.hub.Register(s)
	if c.opts.RateLimit > 0 {
		c.limMu.Lock()
		c.limiters[s.ID()] = rate.NewLimiter(rate.Limit(c.opts.RateLimit), c.opts.RateBurst)
		c.limMu.Unlock()
	}
	c.log.Info("connection opened",
		zap.String("conn_id", s.ID()),
		zap.Int64("user_id", s.UserID()),
		zap.Int("clients", c.hub.Count()))
	return nil
}

func (c *Chat) authenticate(ctx context.Context, s Session) error {
	tok := s.Param("token")
	uid, err := strconv.ParseInt(s.Param("user_id"), 10, 64)
	if tok == "" || err != nil || uid <= 0 {
		metrics.AuthRejected.WithLabelValues("missing_credentials").Inc()
		return fmt.Errorf("%w: missing credentials", domain.ErrUnauthorized)
	}
	if c.tokens == nil {
		return fmt.Errorf("%w: no token store", domain.ErrUnauthorized)
	}

	ok, err := c.tokens.Validate(ctx, tok, uid)
	if err != nil {
		metrics.AuthRejected.WithLabelValues("storage").Inc()
		c.log.Error("token validation failed", zap.String("conn_id", s.ID()), zap.Error(err))
		return err
	}
	if !ok {
		metrics.AuthRejected.WithLabelValues("invalid_token").Inc()
		return fmt.Errorf("%w: invalid token", domain.ErrUnauthorized)
	}
	s.Authenticate(uid)
	return nil
}

func (c *Chat) OnMessage(ctx context.Context, s Session, payload []byte) {
	req, err := Decode(payload)
	if err != nil {
		c.discard(s, err)
		return
	}

	switch r := req.(type) {
	case GetMessages:
		c.getMessages(ctx, s, r)
	case SendMessage:
		c.sendMessage(ctx, s, r)
	}
}

func (c *Chat) getMessages(ctx context.Context, s Session, r GetMessages) {
	page, err := c.repo.Paginate(ctx, r.Page, r.PerPage)
	if err != nil {
		c.log.Warn("load messages failed", zap.String("conn_id", s.ID()), zap.Error(err))
		return
	}
	if err := c.hub.SendTo(s, Frame{Action: ActionMessages, Data: page}); err != nil {
		c.log.Error("encode messages frame", zap.Error(err))
	}
}

func (c *Chat) sendMessage(ctx context.Context, s Session, r SendMessage) {
	if !c.allow(s) {
		c.discard(s, domain.ErrRateLimited)
		return
	}
	if _, err := c.Post(ctx, r.Username, r.Message); err != nil {
		if errors.Is(err, domain.ErrInvalidMessage) || errors.Is(err, domain.ErrInvalidUsername) {
			c.discard(s, err)
			return
		}
		c.log.Warn("message not persisted", zap.String("conn_id", s.ID()), zap.Error(err))
	}
}

// Post validates, persists and broadcasts a message. Nothing is broadcast when
// persisting fails. The HTTP handlers post through here too.
func (c *Chat) Post(ctx context.Context, username, body string) (domain.Message, error) {
	if err := domain.ValidateMessage(username, body); err != nil {
		return domain.Message{}, err
	}

	c.postMu.Lock()
	ts := c.opts.Now().Unix()
	id, err := c.repo.Insert(ctx, username, body, ts)
	if err != nil {
		c.postMu.Unlock()
		return domain.Message{}, fmt.Errorf("persist message: %w", err)
	}
	msg := domain.Message{ID: id, User: username, Msg: body, Time: ts}
	n, err := c.hub.Broadcast(Frame{
		Action: ActionNewMessage,
		Data:   NewMessage{User: msg.User, Msg: msg.Msg, Timestamp: msg.Time},
	})
	c.postMu.Unlock()

	if err != nil {
		c.log.Error("encode newMessage frame", zap.Error(err))
	}
	metrics.MessagesPosted.Inc()
	c.log.Debug("message broadcast", zap.Int64("id", id), zap.Int("delivered", n))

	if err := c.events.PublishMessageSent(ctx, msg); err != nil {
		c.log.Warn("publish message event failed", zap.Int64("id", id), zap.Error(err))
	}
	return msg, nil
}

func (c *Chat) allow(s Session) bool {
	c.limMu.Lock()
	lim, ok := c.limiters[s.ID()]
	c.limMu.Unlock()
	return !ok || lim.Allow()
}

func (c *Chat) discard(s Session, err error) {
	metrics.FramesDiscarded.WithLabelValues(discardReason(err)).Inc()
	c.log.Debug("frame discarded", zap.String("conn_id", s.ID()), zap.Error(err))
}

func (c *Chat) OnClose(_ context.Context, s Session) {
	c.hub.Unregister(s)
	c.limMu.Lock()
	delete(c.limiters, s.ID())
	c.limMu.Unlock()
	c.log.Info("connection closed", zap.String("conn_id", s.ID()), zap.Int("clients", c.hub.Count()))
}

func (c *Chat) OnError(_ context.Context, s Session, err error) {
	c.log.Warn("connection error", zap.String("conn_id", s.ID()), zap.Error(err))
	_ = s.Close()
}

func (c *Chat) ClientCount() int {
	return c.hub.Count()
}

func (c *Chat) IsUserConnected(userID int64) bool {
	return c.hub.IsUserConnected(userID)
}

// Messages returns one page of history, for the HTTP surface.
func (c *Chat) Messages(ctx context.Context, page, perPage int) (domain.Page, error) {
	return c.repo.Paginate(ctx, page, perPage)
}
