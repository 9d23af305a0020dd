package worker

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/contentforge/api/internal/config"
	"github.com/contentforge/api/internal/logger"
	"github.com/contentforge/api/internal/service"
)

// NewServer builds the asynq server that consumes the generation queue
func NewServer(redisOpt asynq.RedisClientOpt, cfg *config.Config, log *slog.Logger) *asynq.Server {
	log = log.With("component", "worker")

	return asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: cfg.Worker.Concurrency,
		Queues: map[string]int{
			cfg.Queue.Name: 1,
		},
		RetryDelayFunc:  service.RetryDelay(cfg.Queue.BackoffBase),
		ErrorHandler:    errorHandler(log),
		Logger:          logger.NewAsynqLogger(log),
		LogLevel:        logger.AsynqLevel(cfg.Log.Level),
		ShutdownTimeout: 30 * time.Second,
	})
}

func errorHandler(log *slog.Logger) asynq.ErrorHandlerFunc {
	return func(ctx context.Context, task *asynq.Task, err error) {
		jobID, _ := asynq.GetTaskID(ctx)
		retried, _ := asynq.GetRetryCount(ctx)
		maxRetry, _ := asynq.GetMaxRetry(ctx)

		if errors.Is(err, asynq.SkipRetry) {
			log.Error("Generation job dropped without retry", "jobId", jobID, "error", err)
			return
		}
		if retried >= maxRetry {
			log.Error("Generation job failed permanently", "jobId", jobID, "attempts", retried+1, "error", err)
			return
		}
		log.Warn("Generation job attempt failed, will retry", "jobId", jobID, "attempt", retried+1, "maxAttempts", maxRetry+1, "error", err)
	}
}
