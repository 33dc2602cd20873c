package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/mossy-p/telecare-signaling/config"
	"github.com/mossy-p/telecare-signaling/internal/booking"
	"github.com/mossy-p/telecare-signaling/internal/handlers"
	"github.com/mossy-p/telecare-signaling/internal/logging"
	"github.com/mossy-p/telecare-signaling/internal/presence"
	"github.com/mossy-p/telecare-signaling/internal/redis"
	"github.com/mossy-p/telecare-signaling/internal/signaling"
)

const shutdownTimeout = 10 * time.Second

func main() {
	logger := logging.Init(zerolog.InfoLevel)

	if err := run(logger); err != nil {
		logger.Error().Err(err).Msg("Server stopped with error")
		os.Exit(1)
	}
	logger.Info().Msg("Server stopped")
}

// run returns only after every deferred connection has been closed
func run(logger zerolog.Logger) error {
	// Load configuration
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	// Mirror room presence to Redis when configured
	var hooks signaling.Lifecycle
	if cfg.Redis.Host != "" {
		store, err := redis.Connect(ctx, cfg.Redis)
		if err != nil {
			return fmt.Errorf("connect to Redis: %w", err)
		}
		defer store.Close()
		logger.Info().Str("host", cfg.Redis.Host).Msg("Redis connection established")

		mirror := presence.NewMirror(store, 0, logger)
		hooks = mirror.Lifecycle()
		g.Go(func() error { return mirror.Run(ctx) })
	}

	hub := signaling.NewHub(signaling.NewRegistry(hooks), logger)
	g.Go(func() error { return hub.Run(ctx) })

	deps := handlers.Deps{Config: cfg, Hub: hub, Logger: logger}
	if cfg.Mongo.URI != "" {
		appointments, err := booking.NewMongoStore(ctx, cfg.Mongo.URI, cfg.Mongo.Database)
		if err != nil {
			stop()
			g.Wait()
			return fmt.Errorf("connect to MongoDB: %w", err)
		}
		defer appointments.Close(context.Background())
		deps.Appointments = appointments
		logger.Info().Str("database", cfg.Mongo.Database).Msg("MongoDB connection established")
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handlers.NewRouter(deps),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g.Go(func() error {
		logger.Info().Str("port", cfg.Port).Msg("Starting signaling server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
