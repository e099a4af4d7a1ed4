// Package api exposes the relay over HTTP: the websocket endpoint, message
// history, token administration, health and metrics.
package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/gofiber/websocket/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/fathimasithara01/chat-relay/internal/auth"
	"github.com/fathimasithara01/chat-relay/internal/domain"
	"github.com/fathimasithara01/chat-relay/internal/hub"
	"github.com/fathimasithara01/chat-relay/internal/relay"
	"github.com/fathimasithara01/chat-relay/internal/token"
	"github.com/fathimasithara01/chat-relay/internal/ws"
)

type Deps struct {
	Mode string
	Hub  *hub.Hub
	WS   *ws.Server
	// Chat is nil in echo mode.
	Chat *relay.Chat
	// Tokens and ServiceSecret enable the token endpoints when both are set.
	Tokens        token.Store
	TokenTTL      time.Duration
	ServiceSecret string
	// PostLimiter throttles POST /v1/messages per client; nil disables it.
	PostLimiter *IPRateLimiter
	Registry    *prometheus.Registry
	Log         *zap.Logger
}

type Server struct {
	d   Deps
	log *zap.Logger
}

func New(d Deps) *fiber.App {
	s := &Server{d: d, log: d.Log.Named("api")}

	app := fiber.New(fiber.Config{
		AppName:               "chat-relay",
		DisableStartupMessage: true,
		ErrorHandler:          s.errorHandler,
	})
	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(s.accessLog)

	if d.Registry != nil {
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(d.Registry, promhttp.HandlerOpts{})))
	}

	v1 := app.Group("/v1")
	v1.Get("/health", s.health)

	v1.Get("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	v1.Get("/ws", websocket.New(d.WS.Handle))

	if d.Chat != nil {
		v1.Get("/messages", s.listMessages)
		if d.PostLimiter != nil {
			v1.Post("/messages", d.PostLimiter.Handler(), s.postMessage)
		} else {
			v1.Post("/messages", s.postMessage)
		}
	}

	if d.Tokens != nil && d.ServiceSecret != "" {
		guard := auth.Middleware(d.ServiceSecret)
		v1.Post("/tokens", guard, s.issueToken)
		v1.Get("/tokens/:token/owner", guard, s.tokenOwner)
		v1.Delete("/tokens/:token", guard, s.revokeToken)
		v1.Delete("/users/:id/tokens", guard, s.revokeUserTokens)
	}

	return app
}

func (s *Server) health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":      "ok",
		"mode":        s.d.Mode,
		"connections": s.d.Hub.Count(),
	})
}

func (s *Server) accessLog(c *fiber.Ctx) error {
	start := time.Now()
	err := c.Next()
	s.log.Debug("request",
		zap.String("method", c.Method()),
		zap.String("path", c.Path()),
		zap.Int("status", c.Response().StatusCode()),
		zap.Duration("latency", time.Since(start)),
		zap.String("request_id", c.GetRespHeader(fiber.HeaderXRequestID)))
	return err
}

func (s *Server) errorHandler(c *fiber.Ctx, err error) error {
	code := http.StatusInternalServerError
	var fe *fiber.Error
	switch {
	case errors.As(err, &fe):
		code = fe.Code
	case errors.Is(err, domain.ErrBadRequest),
		errors.Is(err, domain.ErrInvalidMessage),
		errors.Is(err, domain.ErrInvalidUsername),
		errors.Is(err, token.ErrInvalidUser):
		code = http.StatusBadRequest
	case errors.Is(err, domain.ErrUnauthorized):
		code = http.StatusUnauthorized
	case errors.Is(err, domain.ErrNotFound):
		code = http.StatusNotFound
	case errors.Is(err, token.ErrStorage):
		code = http.StatusServiceUnavailable
	}
	if code >= http.StatusInternalServerError {
		s.log.Error("request failed", zap.String("path", c.Path()), zap.Error(err))
	}
	return c.Status(code).JSON(fiber.Map{"error": err.Error()})
}
