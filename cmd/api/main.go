package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"github.com/therealutkarshpriyadarshi/cnpjleads/internal/cache"
	"github.com/therealutkarshpriyadarshi/cnpjleads/internal/config"
	"github.com/therealutkarshpriyadarshi/cnpjleads/internal/database"
	"github.com/therealutkarshpriyadarshi/cnpjleads/internal/dataset"
	"github.com/therealutkarshpriyadarshi/cnpjleads/internal/export"
	"github.com/therealutkarshpriyadarshi/cnpjleads/internal/leads"
	"github.com/therealutkarshpriyadarshi/cnpjleads/internal/logging"
	"github.com/therealutkarshpriyadarshi/cnpjleads/internal/metrics"
	"github.com/therealutkarshpriyadarshi/cnpjleads/internal/middleware"
	"github.com/therealutkarshpriyadarshi/cnpjleads/internal/queue"
	"github.com/therealutkarshpriyadarshi/cnpjleads/internal/storage"
	"github.com/therealutkarshpriyadarshi/cnpjleads/internal/tracing"
)

func main() {
	// Load configuration
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}

	logger, err := logging.NewLogger(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize logger")
	}

	gin.SetMode(cfg.Server.Mode)

	// Initialize JWT secret from config
	middleware.SetJWTSecret(cfg.Auth.JWTSecret)

	tracerCloser, err := tracing.Init(cfg.Tracing)
	if err != nil {
		logger.WithError(err).Warn("Tracing disabled")
	} else {
		defer tracerCloser.Close()
	}

	// Initialize database
	db, err := database.New(cfg.Database)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to database")
	}
	defer db.Close()

	migrateCtx, cancelMigrate := context.WithTimeout(context.Background(), 30*time.Second)
	if err := db.Migrate(migrateCtx); err != nil {
		logger.WithError(err).Fatal("Failed to run migrations")
	}
	cancelMigrate()

	repo := database.NewRepository(db)
	repo.SetBcryptCost(cfg.Auth.BcryptCost)

	executor := dataset.NewExecutor(dataset.Config{
		BusyTimeout:  cfg.Dataset.BusyTimeout,
		QueryTimeout: cfg.Dataset.QueryTimeout,
	})

	svc := leads.NewService(leads.Config{
		DefaultPath: cfg.Dataset.DefaultPath,
		SearchLimit: cfg.Export.SearchLimit,
		CatalogTTL:  cfg.Redis.CatalogTTL,
	}, repo, repo, executor, export.NewMaterializer(cfg.Export.TempDir), logger)

	api := &API{
		store:     repo,
		leads:     svc,
		validator: executor,
		logger:    logger,
		settings: settings{
			TokenTTL:      cfg.Auth.TokenTTL,
			DatasetDir:    cfg.Dataset.Dir,
			MaxUploadSize: cfg.Dataset.MaxUploadSize,
		},
	}

	// Redis is optional; without it the dashboard computes stats on every request
	redisCache, err := cache.NewCache(cfg.Redis.Host, cfg.Redis.Port, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		logger.WithError(err).Warn("Redis unavailable, caching disabled")
	} else {
		defer redisCache.Close()
		svc.SetCatalogCache(redisCache)
		svc.SetStatsCache(redisCache, cfg.Redis.StatsTTL)
		svc.SetExportCounter(redisCache)
		api.cache = redisCache
	}

	if cfg.Queue.Enabled {
		q, err := queue.New(cfg.Queue)
		if err != nil {
			logger.WithError(err).Warn("Queue unavailable, audit events disabled")
		} else {
			defer q.Close()
			svc.SetPublisher(q)
			api.events = q
		}
	}

	if cfg.Storage.Enabled {
		stor, err := storage.New(cfg.Storage)
		if err != nil {
			logger.WithError(err).Warn("Object storage unavailable, datasets will not be archived")
		} else {
			api.archive = stor
		}
	}

	var metricsServer *metrics.Server
	if cfg.Metrics.Enabled {
		metricsServer = metrics.NewServer(cfg.Metrics.Port)
		go func() {
			if err := metricsServer.Start(); err != nil {
				logger.WithError(err).Error("Metrics server stopped")
			}
		}()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var limiter *middleware.RateLimiter
	if cfg.RateLimit.Enabled {
		limiter = middleware.NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst)
		go limiter.Cleanup(ctx)
	}

	router := setupRouter(api, limiter)

	srv := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server in goroutine
	go func() {
		logger.WithField("addr", srv.Addr).Info("Starting API server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatal("Failed to start server")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	// Graceful shutdown
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancelShutdown()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Server forced to shutdown")
	}
	if metricsServer != nil {
		_ = metricsServer.Shutdown(shutdownCtx)
	}

	logger.Info("Server stopped")
}
