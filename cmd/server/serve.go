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

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/botsdv/backend/internal/cache"
	"github.com/botsdv/backend/internal/config"
	"github.com/botsdv/backend/internal/db"
	httpapi "github.com/botsdv/backend/internal/http"
	"github.com/botsdv/backend/internal/kafka"
	"github.com/botsdv/backend/internal/logging"
	"github.com/botsdv/backend/internal/mongodb"
	"github.com/botsdv/backend/internal/notify"
	"github.com/botsdv/backend/internal/realtime"
	"github.com/botsdv/backend/internal/service"
	"github.com/botsdv/backend/internal/store"
)

const shutdownTimeout = 10 * time.Second

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	logger := logging.New(cfg)
	if !cfg.IsDev() {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx := context.Background()
	st, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	dashCache := openCache(ctx, cfg, logger)
	invalidator := &cache.Invalidator{Cache: dashCache, Logger: logger}

	channel := notify.NewTelegram(notify.TelegramConfig{
		APIURL:      cfg.TelegramAPIURL,
		Token:       cfg.BotToken,
		MaxAttempts: cfg.NotifyMaxAttempts,
		Timeout:     cfg.NotifyTimeout,
	}, logger)
	dispatcher := notify.NewDispatcher(channel, cfg.NotifyWorkers, cfg.NotifyQueueSize, cfg.NotifyTimeout, logger)

	producer := kafka.NewProducer(kafka.ParseBrokers(cfg.KafkaBrokers), cfg.KafkaTopic, logger)
	defer producer.Close()

	hub := realtime.NewHub(logger, cfg.AllowedOrigins()...)

	fx := service.Effects{
		Notifier: dispatcher,
		Realtime: hub,
		Cache:    invalidator,
		Events:   producer,
		Logger:   logger,
	}
	dashboards := &service.DashboardAggregator{Store: st, Cache: dashCache, TTL: cfg.DashboardCacheTTL, Logger: logger}
	svc := httpapi.Services{
		Store:      st,
		Tickets:    &service.TicketService{Store: st, Effects: fx},
		Engine:     &service.AssignmentEngine{Store: st, GroupChatID: cfg.GroupChatID, Effects: fx},
		Users:      &service.UserService{Store: st, Effects: fx},
		Dashboards: dashboards,
		Exporter:   &service.Exporter{Store: st, Dashboards: dashboards},
		Hub:        hub,
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           httpapi.Router(cfg, svc, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("port", cfg.Port).Str("store", cfg.StoreDriver).Msg("server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-errCh:
		return fmt.Errorf("server: %w", err)
	}

	ctxShutdown, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctxShutdown); err != nil {
		logger.Error().Err(err).Msg("http shutdown")
	}
	if err := dispatcher.Close(ctxShutdown); err != nil {
		logger.Warn().Err(err).Msg("notification queue not drained")
	}
	logger.Info().Msg("server stopped")
	return nil
}

func openStore(ctx context.Context, cfg config.Config, logger zerolog.Logger) (store.Store, error) {
	switch cfg.StoreDriver {
	case config.DriverMongo:
		s, err := mongodb.New(ctx, cfg.MongoURL, cfg.MongoDB)
		if err != nil {
			return nil, fmt.Errorf("connect mongo: %w", err)
		}
		return s, nil
	case config.DriverMemory:
		logger.Warn().Msg("using in-memory store, data is lost on restart")
		return store.NewMemory(), nil
	default:
		s, err := db.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		return s, nil
	}
}

// openCache prefers Redis and falls back to a process-local cache when Redis
// is not configured or unreachable at startup.
func openCache(ctx context.Context, cfg config.Config, logger zerolog.Logger) cache.Cache {
	if cfg.RedisAddr == "" {
		return cache.NewMemory()
	}
	client, err := cache.NewRedisClient(ctx, cache.RedisConfig{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err != nil {
		logger.Warn().Err(err).Msg("redis unavailable, using in-process dashboard cache")
		return cache.NewMemory()
	}
	return &cache.Redis{Client: client}
}
