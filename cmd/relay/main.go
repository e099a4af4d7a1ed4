package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/fathimasithara01/chat-relay/internal/config"
	"github.com/fathimasithara01/chat-relay/internal/logger"
	"github.com/fathimasithara01/chat-relay/internal/server"
)

func main() {
	// .env is optional
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintln(os.Stderr, "relay:", err)
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	cfg, err := config.Load(args)
	if err != nil {
		return err
	}

	log, err := logger.New(logger.Config{Level: cfg.Log.Level, Development: cfg.Log.Development})
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	// bind before dialing redis/mongo so a taken port fails fast
	ln, err := net.Listen("tcp", cfg.Addr())
	if err != nil {
		log.Error("bind failed", zap.String("addr", cfg.Addr()), zap.Error(err))
		return fmt.Errorf("bind %s: %w", cfg.Addr(), err)
	}

	srv, err := server.New(ctx, cfg, log)
	if err != nil {
		_ = ln.Close()
		log.Error("startup failed", zap.Error(err))
		return err
	}

	if err := srv.Run(ctx, ln); err != nil {
		log.Error("relay stopped with error", zap.Error(err))
		return err
	}
	log.Info("relay stopped")
	return nil
}
