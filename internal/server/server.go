// Package server assembles the relay from configuration and runs it.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/fathimasithara01/chat-relay/internal/api"
	"github.com/fathimasithara01/chat-relay/internal/config"
	"github.com/fathimasithara01/chat-relay/internal/events"
	"github.com/fathimasithara01/chat-relay/internal/hub"
	"github.com/fathimasithara01/chat-relay/internal/metrics"
	"github.com/fathimasithara01/chat-relay/internal/relay"
	"github.com/fathimasithara01/chat-relay/internal/repository"
	"github.com/fathimasithara01/chat-relay/internal/token"
	"github.com/fathimasithara01/chat-relay/internal/ws"
)

const shutdownTimeout = 10 * time.Second

type Server struct {
	cfg     *config.Config
	log     *zap.Logger
	app     *fiber.App
	hub     *hub.Hub
	ws      *ws.Server
	sweeper *token.Sweeper
	limiter *api.IPRateLimiter
	closers []func(context.Context) error
}

// New builds every component named by cfg. On error, whatever was already
// opened is closed again.
func New(ctx context.Context, cfg *config.Config, log *zap.Logger) (srv *Server, err error) {
	s := &Server{cfg: cfg, log: log, hub: hub.New(log)}
	defer func() {
		if err != nil {
			_ = s.close(context.Background())
		}
	}()

	reg, err := metrics.NewRegistry()
	if err != nil {
		return nil, fmt.Errorf("metrics: %w", err)
	}
	deps := api.Deps{
		Mode:     cfg.App.Mode,
		Hub:      s.hub,
		Registry: reg,
		Log:      log,
	}

	var handler relay.Handler
	switch cfg.App.Mode {
	case config.ModeEcho:
		handler = relay.NewEcho(s.hub, nil, log)
	default:
		chat, tokens, err := s.buildChat(ctx)
		if err != nil {
			return nil, err
		}
		handler = chat
		deps.Chat = chat
		deps.Tokens = tokens
		deps.TokenTTL = cfg.Auth.TokenTTL
		deps.ServiceSecret = cfg.Auth.ServiceSecret
		s.sweeper = token.NewSweeper(tokens, cfg.Auth.SweepInterval, log)
		if cfg.HTTP.PostRatePerMinute > 0 {
			s.limiter = api.NewIPRateLimiter(cfg.HTTP.PostRatePerMinute, cfg.HTTP.PostBurst, log)
			deps.PostLimiter = s.limiter
		}
	}

	s.ws = ws.NewServer(handler, ws.Options{
		SendBuffer:     cfg.WS.SendBuffer,
		MaxMessageSize: cfg.WS.MaxMessageSize,
		PingInterval:   cfg.WS.PingInterval,
		PongWait:       cfg.WS.PongWait,
		WriteWait:      cfg.WS.WriteWait,
	}, log)
	deps.WS = s.ws
	s.app = api.New(deps)
	return s, nil
}

func (s *Server) buildChat(ctx context.Context) (*relay.Chat, token.Store, error) {
	var rdb *redis.Client
	if s.cfg.RedisEnabled() {
		var err error
		if rdb, err = s.openRedis(ctx); err != nil {
			return nil, nil, err
		}
	}

	tokens, err := s.openTokens(rdb)
	if err != nil {
		return nil, nil, err
	}
	repo, err := s.openRepository(ctx, rdb)
	if err != nil {
		return nil, nil, err
	}

	pub, err := s.openPublishers()
	if err != nil {
		return nil, nil, err
	}

	chat := relay.NewChat(s.hub, repo, tokens, pub, relay.ChatOptions{
		RequireAuth: s.cfg.Auth.Required,
		RateLimit:   s.cfg.WS.RateLimit,
		RateBurst:   s.cfg.WS.RateBurst,
	}, s.log)
	return chat, tokens, nil
}

func (s *Server) openRedis(ctx context.Context) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     s.cfg.Redis.Addr,
		Password: s.cfg.Redis.Password,
		DB:       s.cfg.Redis.DB,
	})
	s.closers = append(s.closers, func(context.Context) error { return rdb.Close() })

	err := retry(ctx, s.cfg.App.ConnectTimeout, s.log, "redis", func(ctx context.Context) error {
		pctx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		return rdb.Ping(pctx).Err()
	})
	if err != nil {
		return nil, fmt.Errorf("redis ping %s: %w", s.cfg.Redis.Addr, err)
	}
	return rdb, nil
}

func (s *Server) openPublishers() (events.Publisher, error) {
	var pubs []events.Publisher
	if len(s.cfg.Kafka.Brokers) > 0 {
		k := events.NewKafka(s.cfg.Kafka.Brokers, s.cfg.Kafka.Topic, s.log)
		s.closers = append(s.closers, func(context.Context) error { return k.Close() })
		pubs = append(pubs, k)
	}
	if s.cfg.NATS.URL != "" {
		n, err := events.NewNATS(s.cfg.NATS.URL, s.cfg.NATS.Subject, s.log)
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, func(context.Context) error { return n.Close() })
		pubs = append(pubs, n)
	}
	return events.Combine(pubs...), nil
}

func (s *Server) openTokens(rdb *redis.Client) (token.Store, error) {
	ttl := token.WithTTL(s.cfg.Auth.TokenTTL)
	switch s.cfg.Auth.Backend {
	case config.TokenBackendRedis:
		return token.NewRedisStore(rdb, s.cfg.Redis.Prefix, ttl), nil
	case config.TokenBackendFile:
		st, err := token.OpenFileStore(s.cfg.Auth.File, ttl)
		if err != nil {
			return nil, err
		}
		return st, nil
	default:
		return token.NewMemoryStore(ttl), nil
	}
}

func (s *Server) openRepository(ctx context.Context, rdb *redis.Client) (repository.Repository, error) {
	var repo repository.Repository = repository.NewMemory()
	if s.cfg.Store.Backend == config.StoreBackendMongo {
		var client *mongo.Client
		err := retry(ctx, s.cfg.App.ConnectTimeout, s.log, "mongo", func(ctx context.Context) error {
			c, err := repository.Connect(ctx, s.cfg.Mongo.URI, s.cfg.Mongo.Timeout)
			if err != nil {
				return err
			}
			client = c
			return nil
		})
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, client.Disconnect)
		m, err := repository.NewMongo(ctx, client.Database(s.cfg.Mongo.Database), s.cfg.Mongo.Timeout)
		if err != nil {
			return nil, err
		}
		repo = m
	}
	if s.cfg.Cache.Enabled && rdb != nil {
		repo = repository.NewCached(repo, rdb, s.cfg.Redis.Prefix, s.cfg.Cache.TTL, s.log)
	}
	return repo, nil
}

// Run serves on ln until ctx is cancelled or the listener fails, then shuts down.
func (s *Server) Run(ctx context.Context, ln net.Listener) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.log.Info("relay listening", zap.String("addr", ln.Addr().String()), zap.String("mode", s.cfg.App.Mode))
		if err := s.app.Listener(ln); err != nil {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	})
	if s.sweeper != nil {
		g.Go(func() error { return s.sweeper.Run(gctx) })
	}
	if s.limiter != nil {
		g.Go(func() error { return s.limiter.Run(gctx) })
	}
	g.Go(func() error {
		<-gctx.Done()
		return s.shutdown()
	})
	return g.Wait()
}

func (s *Server) shutdown() error {
	s.log.Info("shutting down", zap.Int("connections", s.hub.Count()))
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var errs []error
	if err := s.app.ShutdownWithContext(ctx); err != nil {
		errs = append(errs, fmt.Errorf("http shutdown: %w", err))
	}
	s.hub.CloseAll()
	if err := s.ws.Wait(ctx); err != nil {
		errs = append(errs, fmt.Errorf("waiting for connections: %w", err))
	}
	if err := s.close(ctx); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (s *Server) close(ctx context.Context) error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	return errors.Join(errs...)
}

// App exposes the fiber application, mainly for tests.
func (s *Server) App() *fiber.App {
	return s.app
}
