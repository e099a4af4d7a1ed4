package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/fathimasithara01/chat-relay/internal/domain"
)

type natsConn interface {
	Publish(subject string, data []byte) error
	Drain() error
}

// NATS publishes message-sent events on a core NATS subject. Delivery is
// fire-and-forget; subscribers that are offline miss the event.
type NATS struct {
	nc      natsConn
	subject string
	log     *zap.Logger
}

func NewNATS(url, subject string, log *zap.Logger) (*NATS, error) {
	log = log.Named("nats")
	nc, err := nats.Connect(url,
		nats.Name("chat-relay"),
		nats.Timeout(5*time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn("nats disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.Info("nats reconnected", zap.String("url", c.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect %s: %w", url, err)
	}
	return newNATS(nc, subject, log), nil
}

func newNATS(nc natsConn, subject string, log *zap.Logger) *NATS {
	return &NATS{nc: nc, subject: subject, log: log}
}

func (n *NATS) PublishMessageSent(_ context.Context, m domain.Message) error {
	b, err := json.Marshal(NewMessageSent(m))
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := n.nc.Publish(n.subject, b); err != nil {
		return fmt.Errorf("publish %s: %w", n.subject, err)
	}
	return nil
}

// Close flushes pending publishes and closes the connection.
func (n *NATS) Close() error {
	return n.nc.Drain()
}
