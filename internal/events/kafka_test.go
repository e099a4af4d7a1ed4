package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fathimasithara01/chat-relay/internal/domain"
)

type fakeWriter struct {
	err    error
	calls  int
	sent   []kafka.Message
	closed bool
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	f.calls++
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, msgs...)
	return nil
}

func (f *fakeWriter) Close() error {
	f.closed = true
	return nil
}

func TestKafkaPublishesMessageSent(t *testing.T) {
	w := &fakeWriter{}
	k := newKafka(w, "chat.message.sent", zap.NewNop())

	err := k.PublishMessageSent(context.Background(), domain.Message{ID: 4, User: "bob", Msg: "hello", Time: 1700000000})
	require.NoError(t, err)
	require.Len(t, w.sent, 1)
	assert.Equal(t, "bob", string(w.sent[0].Key))

	var ev MessageSent
	require.NoError(t, json.Unmarshal(w.sent[0].Value, &ev))
	assert.Equal(t, TypeMessageSent, ev.Type)
	assert.Equal(t, int64(4), ev.ID)
	assert.Equal(t, "hello", ev.Msg)
	assert.Equal(t, int64(1700000000), ev.Timestamp)

	require.NoError(t, k.Close())
	assert.True(t, w.closed)
}

func TestKafkaBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	w := &fakeWriter{err: errors.New("no brokers")}
	k := newKafka(w, "t", zap.NewNop())

	for i := 0; i < 5; i++ {
		assert.Error(t, k.PublishMessageSent(context.Background(), domain.Message{User: "u"}))
	}
	assert.Equal(t, 5, w.calls)

	err := k.PublishMessageSent(context.Background(), domain.Message{User: "u"})
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, 5, w.calls, "open breaker does not reach the writer")
}

func TestNop(t *testing.T) {
	var p Publisher = Nop{}
	assert.NoError(t, p.PublishMessageSent(context.Background(), domain.Message{}))
	assert.NoError(t, p.Close())
}
