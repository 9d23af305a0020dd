package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/contentforge/api/internal/client"
	"github.com/contentforge/api/internal/config"
	"github.com/contentforge/api/internal/handler"
	"github.com/contentforge/api/internal/logger"
	"github.com/contentforge/api/internal/metrics"
	"github.com/contentforge/api/internal/pubsub"
	"github.com/contentforge/api/internal/service"
	"github.com/contentforge/api/internal/store"
	"github.com/contentforge/api/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	log := logger.New(logger.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("Worker stopped with error", "error", err)
		os.Exit(1)
	}
	log.Info("Worker stopped")
}

func run(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	if cfg.Mongo.URI == "" {
		return errors.New("MONGO_URI is required for a standalone worker")
	}

	m := metrics.New()

	redisOpts := &redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}
	redisClient := redis.NewClient(redisOpts)
	defer redisClient.Close()

	contents, mongoClient, err := store.Open(ctx, cfg.Mongo, log)
	if err != nil {
		return err
	}
	defer store.DisconnectMongo(mongoClient)

	generator, err := client.NewGenerator(ctx, cfg, log)
	if err != nil {
		return err
	}
	log.Info("Generation provider ready", "provider", generator.Name())

	// A bus that failed to connect still accepts publishes and reports them as failed
	bus := pubsub.NewBus(redisOpts, log, m)
	defer bus.Shutdown()
	if err := bus.Initialize(ctx); err != nil {
		log.Warn("Event bus unavailable, lifecycle events will be dropped", "error", err)
	}

	var lock service.GenerationLock
	if cfg.Queue.SingleFlight {
		lock = service.NewRedisGenerationLock(redisClient, cfg.Queue.LockTTL)
	}

	asynqOpt := asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}
	srv := worker.NewServer(asynqOpt, cfg, log)
	mux := asynq.NewServeMux()
	worker.NewGenerationWorker(contents, generator, bus, lock, log, m).Register(mux)

	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	app.Get("/", func(c *fiber.Ctx) error {
		return c.SendString("worker is active")
	})
	app.Get("/health", handler.NewHealthHandler("worker", map[string]handler.HealthCheck{
		"redis": handler.RedisCheck(redisClient),
		"mongo": handler.MongoCheck(mongoClient),
	}).Health)
	app.Get("/metrics", m.Handler())

	if err := srv.Start(mux); err != nil {
		return err
	}
	log.Info("Generation worker started",
		"queue", cfg.Queue.Name,
		"concurrency", cfg.Worker.Concurrency,
		"maxAttempts", cfg.Queue.MaxAttempts,
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		addr := ":" + cfg.Worker.HealthPort
		log.Info("Worker health server starting", "addr", addr)
		return app.Listen(addr)
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info("Shutting down worker...")
		srv.Shutdown()
		return app.ShutdownWithTimeout(5 * time.Second)
	})

	return g.Wait()
}
