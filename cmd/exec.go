package cmd

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"smartqueue/config"
	"smartqueue/handlers"
	"smartqueue/monitoring"
	"smartqueue/services"
	"smartqueue/storage"
	"smartqueue/utils"
)

func Start() error {
	cfg := config.LoadConfig()

	// Storage backend is picked once here and injected everywhere.
	var (
		store       storage.Store
		redisClient *redis.Client
	)
	switch cfg.StorageBackend {
	case "redis":
		redisClient = utils.NewRedisClient(cfg.RedisURL, cfg.RedisPassword, cfg.RedisDB)
		defer redisClient.Close()
		store = storage.NewRedisStore(redisClient)
		slog.Info("using redis storage", "addr", cfg.RedisURL)
	default:
		store = storage.NewMemoryStore()
		slog.Info("using in-memory storage")
	}

	var archive *storage.Archive
	if cfg.ArchivePath != "" {
		var err error
		archive, err = storage.OpenArchive(cfg.ArchivePath)
		if err != nil {
			slog.Warn("stats archive unavailable, continuing without history", "error", err)
			archive = nil
		} else {
			defer archive.Close()
		}
	}

	var notifier services.Notifier = services.NoopNotifier{}
	if cfg.PubNubPublishKey != "" && cfg.PubNubSubscribeKey != "" {
		notifier = services.NewPubNubNotifier(cfg)
		slog.Info("pubnub notifications enabled")
	}

	var archiver services.StatsArchiver
	var logs services.NotificationLogger
	if archive != nil {
		archiver = archive
		logs = archive
	}

	monitor := monitoring.NewMonitor()
	estimator := services.NewRateEstimator(store, archiver, cfg)
	ledger := services.NewTicketLedger(store)
	predictor := services.NewEtaPredictor(estimator, cfg)

	svc := services.NewQueueService(store, ledger, estimator, predictor, notifier, logs, monitor, cfg)
	svc.StartSweeper()
	defer svc.Stop()

	e := echo.New()
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	queueHandler := handlers.NewQueueHandler(svc)
	statsHandler := handlers.NewStatsHandler(svc)
	adminHandler := handlers.NewAdminHandler(svc, archive)

	api := e.Group("/api")

	api.POST("/queues/:queueId/join", queueHandler.Join)
	api.GET("/queues/:queueId/tickets/:ticketId", queueHandler.Status)
	api.POST("/queues/:queueId/tickets/:ticketId/cancel", queueHandler.Cancel)
	api.POST("/queues/:queueId/tickets/:ticketId/expire", queueHandler.Expire)
	api.POST("/queues/:queueId/process-next", queueHandler.ProcessNext)
	api.GET("/queues/:queueId/eta", queueHandler.Eta)
	api.GET("/queues/:queueId/stats", queueHandler.Stats)
	api.POST("/stats/served", statsHandler.UpdateServed)

	api.POST("/queues", adminHandler.CreateQueue)
	api.GET("/queues", adminHandler.ListQueues)
	api.GET("/queues/:queueId", adminHandler.GetQueue)
	api.PATCH("/queues/:queueId", adminHandler.UpdateQueue)
	api.DELETE("/queues/:queueId", adminHandler.DeleteQueue)
	api.GET("/queues/:queueId/stats/history", adminHandler.StatsHistory)

	e.GET("/health", func(c echo.Context) error {
		if redisClient != nil {
			if err := utils.RedisHealthCheck(redisClient); err != nil {
				return c.JSON(http.StatusServiceUnavailable, map[string]any{
					"status": "degraded",
					"error":  err.Error(),
				})
			}
		}
		return c.JSON(http.StatusOK, map[string]any{"status": "ok"})
	})

	if cfg.EnableMetrics {
		e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	}

	server := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: e,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("smartqueue listening", "port", cfg.Port, "env", cfg.Environment)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-quit:
		slog.Info("shutting down", "signal", sig.String())
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		slog.Error("server shutdown failed", "error", err)
		return err
	}
	return nil
}
