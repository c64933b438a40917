package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/sgracers-leaderboard/internal/backend"
	"github.com/sgracers-leaderboard/internal/config"
	"github.com/sgracers-leaderboard/internal/handler"
	"github.com/sgracers-leaderboard/internal/identity"
	"github.com/sgracers-leaderboard/internal/kafka"
	"github.com/sgracers-leaderboard/internal/metrics"
	"github.com/sgracers-leaderboard/internal/service"
	"github.com/sgracers-leaderboard/internal/steam"
	"github.com/sgracers-leaderboard/internal/websocket"
	"github.com/sgracers-leaderboard/internal/worker"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Warn("failed to load config file, using defaults", "error", err)
		cfg = config.DefaultConfig()
		if err := cfg.Validate(); err != nil {
			logger.Error("default configuration is not usable", "error", err)
			os.Exit(1)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	serviceMetrics := metrics.New(registry)

	be, err := backend.Open(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to open document store", "backend", cfg.Store.Backend, "error", err)
		os.Exit(1)
	}
	defer be.Close()

	ids := identity.NewCache(be.Store, logger)
	if err := ids.Load(ctx); err != nil {
		logger.Warn("failed to load identity mapping, friend ids will use the default", "error", err)
	}

	opts := []service.Option{service.WithMetrics(serviceMetrics)}
	if cfg.Steam.APIKey != "" {
		opts = append(opts, service.WithVerifier(steam.NewClient(&cfg.Steam, logger)))
	} else {
		logger.Warn("steam api key not set, steam submissions will be rejected")
	}
	if be.Audit != nil {
		opts = append(opts, service.WithAudit(be.Audit))
	}

	var wsHub *websocket.Hub
	if cfg.WebSocket.Enabled {
		wsHub = websocket.NewHub(logger, cfg.Server.AllowedOrigins)
		go wsHub.Run()
		opts = append(opts, service.WithPublisher(wsHub))
		logger.Info("WebSocket hub initialized")
	}

	leaderboardService := service.NewLeaderboardService(be.Store, ids, service.ConfigFrom(cfg), logger, opts...)

	var rebuildInterval time.Duration
	if cfg.Snapshots.Enabled {
		rebuildInterval = cfg.Snapshots.RebuildInterval
	}
	snapshotWorker := worker.NewSnapshotWorker(leaderboardService, ids, rebuildInterval, cfg.Identity.ReloadInterval, logger)
	if err := snapshotWorker.Start(ctx); err != nil {
		logger.Error("failed to start snapshot worker", "error", err)
		os.Exit(1)
	}

	var kafkaConsumer *kafka.Consumer
	if cfg.Kafka.Enabled {
		logger.Info("initializing Kafka consumer",
			"brokers", cfg.Kafka.Brokers,
			"topic", cfg.Kafka.Topic,
		)
		kafkaConsumer, err = kafka.NewConsumer(&cfg.Kafka, leaderboardService, logger)
		if err != nil {
			logger.Warn("failed to create Kafka consumer, continuing without Kafka", "error", err)
		} else {
			startCtx, startCancel := context.WithTimeout(ctx, 30*time.Second)
			if err := kafkaConsumer.Start(startCtx); err != nil {
				logger.Warn("failed to start Kafka consumer, continuing without Kafka", "error", err)
				if err := kafkaConsumer.Stop(); err != nil {
					logger.Warn("failed to close Kafka consumer", "error", err)
				}
				kafkaConsumer = nil
			}
			startCancel()
		}
	}

	handlerOpts := []handler.Option{
		handler.WithMetrics(registry),
		handler.WithReadiness(be.Ping),
		handler.WithAllowedOrigins(cfg.Server.AllowedOrigins),
	}
	if cfg.RateLimit.Enabled {
		handlerOpts = append(handlerOpts, handler.WithRateLimit(
			handler.NewIPRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst)))
	}
	httpHandler := handler.NewHandler(leaderboardService, wsHub, logger, handlerOpts...)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      httpHandler.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		logger.Info("starting HTTP server", "port", cfg.Server.Port, "backend", cfg.Store.Backend)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shutdown server", "error", err)
	}

	if wsHub != nil {
		wsHub.Stop()
	}

	if kafkaConsumer != nil {
		if err := kafkaConsumer.Stop(); err != nil {
			logger.Error("failed to stop Kafka consumer", "error", err)
		}
	}

	if err := snapshotWorker.Stop(); err != nil {
		logger.Error("failed to stop snapshot worker", "error", err)
	}

	logger.Info("server stopped")
}
