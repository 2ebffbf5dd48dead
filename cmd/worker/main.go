package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/therealutkarshpriyadarshi/cnpjleads/internal/config"
	"github.com/therealutkarshpriyadarshi/cnpjleads/internal/database"
	"github.com/therealutkarshpriyadarshi/cnpjleads/internal/logging"
	"github.com/therealutkarshpriyadarshi/cnpjleads/internal/metrics"
	"github.com/therealutkarshpriyadarshi/cnpjleads/internal/queue"
)

const depthInterval = time.Minute

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
	logger = logger.WithField("component", "worker")

	// Initialize database
	db, err := database.New(cfg.Database)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to database")
	}
	defer db.Close()

	repo := database.NewRepository(db)

	// Initialize queue
	q, err := queue.New(cfg.Queue)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to queue")
	}
	defer q.Close()

	var metricsServer *metrics.Server
	if cfg.Metrics.Enabled {
		metricsServer = metrics.NewServer(cfg.Metrics.Port)
		go func() {
			if err := metricsServer.Start(); err != nil {
				logger.WithError(err).Error("Metrics server stopped")
			}
		}()
	}

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown gracefully
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		logger.Info("Shutting down worker gracefully...")
		cancel()
	}()

	// Start consuming audit events
	logger.Info("Worker started, waiting for audit events...")
	if err := q.Consume(ctx, newEventHandler(repo, logger)); err != nil {
		logger.WithError(err).Fatal("Failed to consume audit events")
	}

	go reportDepth(ctx, q, logger)

	// Wait for shutdown
	<-ctx.Done()

	if metricsServer != nil {
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
		_ = metricsServer.Shutdown(shutdownCtx)
		cancelShutdown()
	}
	logger.Info("Worker stopped")
}

// reportDepth logs the backlog of the audit and dead letter queues
func reportDepth(ctx context.Context, q *queue.Queue, logger *logging.Logger) {
	ticker := time.NewTicker(depthInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pending, err := q.GetQueueDepth()
			if err != nil {
				logger.WithError(err).Warn("Failed to read queue depth")
				continue
			}
			dead, err := q.GetDLQDepth()
			if err != nil {
				logger.WithError(err).Warn("Failed to read dead letter queue depth")
				continue
			}
			l := logger.WithField("pending", pending).WithField("dead_lettered", dead)
			if dead > 0 {
				l.Warn("Audit events are being dead-lettered")
			} else {
				l.Debug("Audit queue depth")
			}
		}
	}
}
