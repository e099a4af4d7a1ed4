package ws

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	fws "github.com/fasthttp/websocket"
	"github.com/gofiber/websocket/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fathimasithara01/chat-relay/internal/relay"
)

type inFrame struct {
	mt   int
	data []byte
	err  error
}

type fakeSocket struct {
	in     chan inFrame
	closed chan struct{}
	once   sync.Once

	mu       sync.Mutex
	written  [][]byte
	controls []int
}

func newFakeSocket() *fakeSocket {
	return &fakeSocket{in: make(chan inFrame, 16), closed: make(chan struct{})}
}

func (f *fakeSocket) ReadMessage() (int, []byte, error) {
	select {
	case fr := <-f.in:
		return fr.mt, fr.data, fr.err
	case <-f.closed:
		return 0, nil, errors.New("use of closed network connection")
	}
}

func (f *fakeSocket) WriteMessage(mt int, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.written = append(f.written, data)
	return nil
}

func (f *fakeSocket) WriteControl(mt int, _ []byte, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.controls = append(f.controls, mt)
	return nil
}

func (f *fakeSocket) SetReadLimit(int64)                {}
func (f *fakeSocket) SetReadDeadline(time.Time) error   { return nil }
func (f *fakeSocket) SetWriteDeadline(time.Time) error  { return nil }
func (f *fakeSocket) SetPongHandler(func(string) error) {}

func (f *fakeSocket) Close() error {
	f.once.Do(func() { close(f.closed) })
	return nil
}

func (f *fakeSocket) text(s string) {
	f.in <- inFrame{mt: websocket.TextMessage, data: []byte(s)}
}

func (f *fakeSocket) fail(err error) {
	f.in <- inFrame{err: err}
}

func (f *fakeSocket) isClosed() bool {
	select {
	case <-f.closed:
		return true
	default:
		return false
	}
}

func (f *fakeSocket) frames() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]byte(nil), f.written...)
}

func (f *fakeSocket) controlFrames() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int(nil), f.controls...)
}

type recorder struct {
	rejectWith error
	echo       bool

	mu       sync.Mutex
	events   []string
	messages []string
}

func (r *recorder) add(ev string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) snapshot() ([]string, []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...), append([]string(nil), r.messages...)
}

func (r *recorder) OnOpen(_ context.Context, s relay.Session) error {
	r.add("open")
	return r.rejectWith
}

func (r *recorder) OnMessage(_ context.Context, s relay.Session, p []byte) {
	r.mu.Lock()
	r.messages = append(r.messages, string(p))
	r.mu.Unlock()
	if r.echo {
		_ = s.Send(p)
	}
}

func (r *recorder) OnClose(context.Context, relay.Session) { r.add("close") }

func (r *recorder) OnError(_ context.Context, s relay.Session, err error) {
	r.add("error")
	_ = s.Close()
}

func serveAsync(srv *Server, sock *fakeSocket, params map[string]string) chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		srv.Serve(sock, func(k string) string { return params[k] })
	}()
	return done
}

func waitDone(t *testing.T, done chan struct{}) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("serve did not return")
	}
}

func TestServeDeliversFramesInOrder(t *testing.T) {
	rec := &recorder{echo: true}
	srv := NewServer(rec, DefaultOptions(), zap.NewNop())
	sock := newFakeSocket()
	done := serveAsync(srv, sock, nil)

	sock.text("one")
	sock.text("two")
	sock.in <- inFrame{mt: websocket.BinaryMessage, data: []byte("bin")}
	sock.text("three")
	assert.Eventually(t, func() bool { return len(sock.frames()) == 3 }, time.Second, 5*time.Millisecond)

	sock.fail(&fws.CloseError{Code: fws.CloseNormalClosure})
	waitDone(t, done)

	events, msgs := rec.snapshot()
	assert.Equal(t, []string{"open", "close"}, events)
	assert.Equal(t, []string{"one", "two", "three"}, msgs)
	assert.True(t, sock.isClosed())
}

func TestServeTransportErrorTriggersOnError(t *testing.T) {
	rec := &recorder{}
	srv := NewServer(rec, DefaultOptions(), zap.NewNop())
	sock := newFakeSocket()
	done := serveAsync(srv, sock, nil)

	sock.fail(errors.New("connection reset by peer"))
	waitDone(t, done)

	events, _ := rec.snapshot()
	assert.Equal(t, []string{"open", "error", "close"}, events)
}

func TestServeRejectedOpen(t *testing.T) {
	rec := &recorder{rejectWith: errors.New("unauthorized")}
	srv := NewServer(rec, DefaultOptions(), zap.NewNop())
	sock := newFakeSocket()
	done := serveAsync(srv, sock, map[string]string{"token": "x"})
	waitDone(t, done)

	events, _ := rec.snapshot()
	assert.Equal(t, []string{"open"}, events)
	assert.True(t, sock.isClosed())
	assert.Empty(t, sock.frames())
	assert.Empty(t, sock.controlFrames(), "rejected connections get no frames at all")
}

func TestServerWait(t *testing.T) {
	rec := &recorder{}
	srv := NewServer(rec, DefaultOptions(), zap.NewNop())
	sock := newFakeSocket()
	done := serveAsync(srv, sock, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, srv.Wait(ctx), context.DeadlineExceeded)

	require.NoError(t, sock.Close())
	waitDone(t, done)
	assert.NoError(t, srv.Wait(context.Background()))
}

func TestConnectionSend(t *testing.T) {
	sock := newFakeSocket()
	c := NewConnection(sock, nil, Options{SendBuffer: 1})

	require.NoError(t, c.Send([]byte("a")))
	assert.ErrorIs(t, c.Send([]byte("b")), ErrSendBufferFull)

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
	assert.ErrorIs(t, c.Send([]byte("c")), ErrClosed)
	assert.Equal(t, []int{websocket.CloseMessage}, sock.controlFrames())
	assert.True(t, sock.isClosed())
}

func TestConnectionIdentity(t *testing.T) {
	a := NewConnection(newFakeSocket(), func(k string) string { return "v-" + k }, DefaultOptions())
	b := NewConnection(newFakeSocket(), nil, DefaultOptions())

	assert.NotEqual(t, a.ID(), b.ID())
	assert.Equal(t, "v-token", a.Param("token"))
	assert.Equal(t, "", b.Param("token"))

	assert.Zero(t, a.UserID())
	a.Authenticate(9)
	assert.Equal(t, int64(9), a.UserID())
}
