package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/zhejian/url-shortener/shortlink/internal/config"
	"github.com/zhejian/url-shortener/shortlink/internal/events"
	"github.com/zhejian/url-shortener/shortlink/internal/infra"
	"github.com/zhejian/url-shortener/shortlink/internal/migrations"
	"github.com/zhejian/url-shortener/shortlink/internal/observability"
	"github.com/zhejian/url-shortener/shortlink/internal/server"
	_ "go.uber.org/automaxprocs"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	obs, err := observability.Setup(ctx, observability.Config{
		ServiceName:  cfg.Observability.ServiceName,
		Environment:  cfg.Observability.Environment,
		OTLPEndpoint: cfg.Observability.OTLPEndpoint,
	})
	if err != nil {
		log.Fatalf("Failed to setup observability: %v", err)
	}
	logger := obs.Logger

	if err := run(ctx, cfg, obs); err != nil {
		logger.Error("server exited with error", slog.String("error", err.Error()))
		shutdownObservability(obs)
		os.Exit(1)
	}

	shutdownObservability(obs)
	logger.Info("server exited gracefully")
}

func run(ctx context.Context, cfg *config.Config, obs *observability.Observability) error {
	logger := obs.Logger

	if cfg.Database.MigrateOnStart {
		if err := migrations.Run(cfg.Database.ConnectionString(), logger); err != nil {
			return err
		}
	}

	db, err := infra.NewPostgresPool(ctx, cfg.Database.ConnectionString(), cfg.Database.MaxConns)
	if err != nil {
		return err
	}
	defer db.Close()
	logger.Info("database connected")

	cache, err := infra.NewCacheClient(ctx, cfg.Cache.ConnectionString())
	if err != nil {
		return err
	}
	defer cache.Close()
	logger.Info("cache connected")

	var publisher events.Publisher = events.NoopPublisher{}
	if cfg.Broker.URL != "" {
		conn, err := infra.NewBrokerConnection(cfg.Broker.URL)
		if err != nil {
			return err
		}
		defer conn.Close()

		amqpPublisher, err := events.NewAMQPPublisher(conn, cfg.Broker.Exchange, logger)
		if err != nil {
			return err
		}
		publisher = amqpPublisher
		logger.Info("event publisher connected", slog.String("exchange", cfg.Broker.Exchange))
	} else {
		logger.Info("no broker configured, events are discarded")
	}
	defer publisher.Close()

	srv := server.NewServer(cfg, server.Deps{
		DB:             db,
		Cache:          cache,
		Publisher:      publisher,
		MetricsHandler: obs.MetricsHandler,
		Logger:         logger,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("server starting",
			slog.String("port", cfg.Server.Port),
			slog.String("base_url", cfg.App.BaseURL))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func shutdownObservability(obs *observability.Observability) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	obs.Shutdown(ctx)
}
