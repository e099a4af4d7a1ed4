package relay

import (
	"encoding/json"
	"errors"
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fathimasithara01/chat-relay/internal/domain"
)

type fakeSession struct {
	id     string
	params map[string]string

	mu     sync.Mutex
	userID int64
	frames [][]byte
	closed bool
}

func newSession(id string, params map[string]string) *fakeSession {
	return &fakeSession{id: id, params: params}
}

func (s *fakeSession) ID() string { return s.id }

func (s *fakeSession) UserID() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userID
}

func (s *fakeSession) Authenticate(userID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.userID = userID
}

func (s *fakeSession) Param(key string) string { return s.params[key] }

func (s *fakeSession) Send(p []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.New("closed")
	}
	s.frames = append(s.frames, p)
	return nil
}

func (s *fakeSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *fakeSession) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *fakeSession) received() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]byte(nil), s.frames...)
}

type decodedFrame struct {
	Action string          `json:"action"`
	Data   json.RawMessage `json:"data"`
}

func decodeFrame(t *testing.T, raw []byte) decodedFrame {
	t.Helper()
	var f decodedFrame
	require.NoError(t, json.Unmarshal(raw, &f))
	return f
}

func TestDecode(t *testing.T) {
	req, err := Decode([]byte(`{"action":"getMessages"}`))
	require.NoError(t, err)
	assert.Equal(t, GetMessages{Page: 1, PerPage: domain.DefaultPerPage}, req)

	req, err = Decode([]byte(`{"action":"getMessages","page":3,"perPage":5}`))
	require.NoError(t, err)
	assert.Equal(t, GetMessages{Page: 3, PerPage: 5}, req)

	req, err = Decode([]byte(`{"action":"getMessages","page":9223372036854775807,"perPage":2}`))
	require.NoError(t, err)
	assert.Equal(t, GetMessages{Page: domain.MaxPage, PerPage: 2}, req)

	req, err = Decode([]byte(`{"action":"sendMessage","username":"alice","message":"hi","timestamp":1}`))
	require.NoError(t, err)
	assert.Equal(t, SendMessage{Username: "alice", Message: "hi"}, req)

	cases := map[string]error{
		`not json`:           ErrMalformed,
		`[1,2]`:              ErrMalformed,
		`"text"`:             ErrMalformed,
		`null`:               ErrMissingAction,
		`{}`:                 ErrMissingAction,
		`{"action":""}`:      ErrMissingAction,
		`{"action":"dance"}`: ErrUnknownAction,
		`{"action":"sendMessage","username":"bob"}`: ErrMissingField,
		`{"action":"sendMessage","message":"hi"}`:   ErrMissingField,
	}
	for in, want := range cases {
		_, err := Decode([]byte(in))
		assert.ErrorIs(t, err, want, in)
	}
}

func TestDecodePagingIsLenient(t *testing.T) {
	cases := []struct {
		in   string
		want GetMessages
	}{
		{`{"action":"getMessages","page":2.0,"perPage":"5"}`, GetMessages{Page: 2, PerPage: 5}},
		{`{"action":"getMessages","page":"3","perPage":7.9}`, GetMessages{Page: 3, PerPage: 7}},
		{`{"action":"getMessages","page":"two","perPage":true}`, GetMessages{Page: 1, PerPage: domain.DefaultPerPage}},
		{`{"action":"getMessages","page":null,"perPage":{}}`, GetMessages{Page: 1, PerPage: domain.DefaultPerPage}},
		{`{"action":"getMessages","page":1e300,"perPage":-1e300}`, GetMessages{Page: domain.MaxPage, PerPage: math.MinInt32}},
		{`{"action":"getMessages","page":"-4"}`, GetMessages{Page: -4, PerPage: domain.DefaultPerPage}},
	}
	for _, tc := range cases {
		req, err := Decode([]byte(tc.in))
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.want, req, tc.in)
	}
}
