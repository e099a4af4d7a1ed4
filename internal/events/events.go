// Package events announces posted chat messages to other systems.
package events

import (
	"context"
	"time"

	"github.com/fathimasithara01/chat-relay/internal/domain"
)

const TypeMessageSent = "message.sent"

// MessageSent is the event payload written for every persisted message.
type MessageSent struct {
	Type       string    `json:"type"`
	ID         int64     `json:"id"`
	User       string    `json:"user"`
	Msg        string    `json:"msg"`
	Timestamp  int64     `json:"timestamp"`
	OccurredAt time.Time `json:"occurred_at"`
}

func NewMessageSent(m domain.Message) MessageSent {
	return MessageSent{
		Type:       TypeMessageSent,
		ID:         m.ID,
		User:       m.User,
		Msg:        m.Msg,
		Timestamp:  m.Time,
		OccurredAt: time.Now().UTC(),
	}
}

type Publisher interface {
	PublishMessageSent(ctx context.Context, m domain.Message) error
	Close() error
}

// Nop discards events. Used when no brokers are configured.
type Nop struct{}

func (Nop) PublishMessageSent(context.Context, domain.Message) error { return nil }
func (Nop) Close() error                                             { return nil }
