// Package ws adapts fiber websocket connections to the relay handlers.
package ws

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
)

var (
	ErrClosed         = errors.New("connection closed")
	ErrSendBufferFull = errors.New("send buffer full")
)

// Socket is the part of *websocket.Conn a Connection uses.
type Socket interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	SetReadLimit(limit int64)
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
	Close() error
}

type Options struct {
	SendBuffer     int
	MaxMessageSize int64
	PingInterval   time.Duration
	PongWait       time.Duration
	WriteWait      time.Duration
}

func DefaultOptions() Options {
	return Options{
		SendBuffer:     256,
		MaxMessageSize: 64 * 1024,
		PingInterval:   30 * time.Second,
		PongWait:       60 * time.Second,
		WriteWait:      10 * time.Second,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.SendBuffer <= 0 {
		o.SendBuffer = d.SendBuffer
	}
	if o.MaxMessageSize <= 0 {
		o.MaxMessageSize = d.MaxMessageSize
	}
	if o.PingInterval <= 0 {
		o.PingInterval = d.PingInterval
	}
	if o.PongWait <= 0 {
		o.PongWait = d.PongWait
	}
	if o.WriteWait <= 0 {
		o.WriteWait = d.WriteWait
	}
	return o
}

// Connection is one websocket session. Writes go through a bounded queue
// drained by writePump, so Send never blocks on a slow peer.
type Connection struct {
	id     string
	sock   Socket
	param  func(string) string
	opts   Options
	userID atomic.Int64

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func NewConnection(sock Socket, param func(string) string, opts Options) *Connection {
	opts = opts.withDefaults()
	if param == nil {
		param = func(string) string { return "" }
	}
	return &Connection{
		id:    uuid.NewString(),
		sock:  sock,
		param: param,
		opts:  opts,
		send:  make(chan []byte, opts.SendBuffer),
		done:  make(chan struct{}),
	}
}

func (c *Connection) ID() string                { return c.id }
func (c *Connection) UserID() int64             { return c.userID.Load() }
func (c *Connection) Authenticate(userID int64) { c.userID.Store(userID) }
func (c *Connection) Param(key string) string   { return c.param(key) }

func (c *Connection) Send(payload []byte) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	select {
	case c.send <- payload:
		return nil
	case <-c.done:
		return ErrClosed
	default:
		return ErrSendBufferFull
	}
}

// Close sends a normal close frame and closes the socket. Safe to call more than once.
func (c *Connection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		deadline := time.Now().Add(c.opts.WriteWait)
		_ = c.sock.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		err = c.sock.Close()
	})
	return err
}

// abort drops the socket without any frame.
func (c *Connection) abort() {
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.sock.Close()
	})
}

func (c *Connection) closed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

func (c *Connection) writePump() {
	ticker := time.NewTicker(c.opts.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case msg := <-c.send:
			_ = c.sock.SetWriteDeadline(time.Now().Add(c.opts.WriteWait))
			if err := c.sock.WriteMessage(websocket.TextMessage, msg); err != nil {
				_ = c.Close()
				return
			}
		case <-ticker.C:
			// ping to keep connection alive
			if err := c.sock.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.opts.WriteWait)); err != nil {
				_ = c.Close()
				return
			}
		}
	}
}

// readPump delivers text frames to onMessage until the socket fails or closes.
func (c *Connection) readPump(onMessage func([]byte)) error {
	c.sock.SetReadLimit(c.opts.MaxMessageSize)
	_ = c.sock.SetReadDeadline(time.Now().Add(c.opts.PongWait))
	c.sock.SetPongHandler(func(string) error {
		return c.sock.SetReadDeadline(time.Now().Add(c.opts.PongWait))
	})

	for {
		mt, data, err := c.sock.ReadMessage()
		if err != nil {
			return err
		}
		_ = c.sock.SetReadDeadline(time.Now().Add(c.opts.PongWait))
		if mt != websocket.TextMessage {
			continue
		}
		onMessage(data)
	}
}
