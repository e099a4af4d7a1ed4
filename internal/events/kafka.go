package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/fathimasithara01/chat-relay/internal/domain"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Kafka publishes message-sent events. A circuit breaker stops hammering an
// unavailable cluster; while it is open publishes fail fast with gobreaker.ErrOpenState.
type Kafka struct {
	w   messageWriter
	cb  *gobreaker.CircuitBreaker
	log *zap.Logger
}

func NewKafka(brokers []string, topic string, log *zap.Logger) *Kafka {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		BatchTimeout:           10 * time.Millisecond,
		AllowAutoTopicCreation: true,
	}
	return newKafka(w, topic, log)
}

func newKafka(w messageWriter, topic string, log *zap.Logger) *Kafka {
	log = log.Named("kafka")
	st := gobreaker.Settings{
		Name:        "kafka-" + topic,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Info("circuit breaker state", zap.String("name", name), zap.String("from", from.String()), zap.String("to", to.String()))
		},
	}
	return &Kafka{w: w, cb: gobreaker.NewCircuitBreaker(st), log: log}
}

func (k *Kafka) PublishMessageSent(ctx context.Context, m domain.Message) error {
	value, err := json.Marshal(NewMessageSent(m))
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	msg := kafka.Message{
		Key:   []byte(m.User),
		Value: value,
		Time:  time.Unix(m.Time, 0),
	}
	_, err = k.cb.Execute(func() (interface{}, error) {
		return nil, k.w.WriteMessages(ctx, msg)
	})
	if err != nil {
		return fmt.Errorf("publish message.sent: %w", err)
	}
	return nil
}

func (k *Kafka) Close() error {
	return k.w.Close()
}
