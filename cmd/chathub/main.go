package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/vinneth/chathub/config"
	"github.com/vinneth/chathub/src/auth"
	"github.com/vinneth/chathub/src/hub"
	"github.com/vinneth/chathub/src/pipeline"
	"github.com/vinneth/chathub/src/presence"
	"github.com/vinneth/chathub/src/server"
	"github.com/vinneth/chathub/src/service"
	"github.com/vinneth/chathub/src/storage"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}

	db, err := badger.Open(badger.DefaultOptions(cfg.BadgerPath))
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() {
		logger.Info().Msg("closing store")
		_ = db.Close()
	}()

	store := storage.New(db, logger)
	h := hub.New(logger, store)

	pipeline.New(h, store, cfg.StorageTimeout, logger).Register()

	lastSeen := connectLastSeen(cfg.Redis, logger)
	presence.NewNotifier(h, store, lastSeen, cfg.StorageTimeout, logger).Register()

	authn := auth.New(cfg.JWTSecret, cfg.TokenTTL)
	svc := service.New(h, store, cfg.StorageTimeout, logger)
	srv := server.New(cfg.Socket, h, svc, authn, logger)

	go h.Run()

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Listen(cfg.Addr()); err != nil {
			errCh <- fmt.Errorf("server error: %w", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	select {
	case <-ctx.Done():
		logger.Info().Msg("shutting down")
	case err := <-errCh:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("server shutdown")
	}
	h.Stop()
	logger.Info().Msg("stopped cleanly")
	return nil
}

// connectLastSeen tries Redis and falls back to the in-process store so
// an unreachable Redis never keeps the hub from starting.
func connectLastSeen(cfg config.RedisConfig, logger zerolog.Logger) presence.LastSeenStore {
	rls := presence.NewRedisLastSeen(cfg, logger)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := rls.Ping(ctx); err != nil {
		logger.Warn().Err(err).Str("addr", cfg.Addr).
			Msg("redis unavailable, keeping last-seen in memory")
		return presence.NewMemoryLastSeen()
	}
	logger.Info().Str("addr", cfg.Addr).Msg("redis last-seen store connected")
	return rls
}

func newLogger(level string) (zerolog.Logger, error) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return zerolog.Logger{}, fmt.Errorf("log level %q: %w", level, err)
	}
	return zerolog.New(os.Stdout).Level(lvl).With().Timestamp().Logger(), nil
}
