package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/contentforge/api/internal/auth"
	"github.com/contentforge/api/internal/client"
	"github.com/contentforge/api/internal/config"
	"github.com/contentforge/api/internal/handler"
	"github.com/contentforge/api/internal/logger"
	"github.com/contentforge/api/internal/metrics"
	"github.com/contentforge/api/internal/middleware"
	"github.com/contentforge/api/internal/model"
	"github.com/contentforge/api/internal/pubsub"
	"github.com/contentforge/api/internal/service"
	"github.com/contentforge/api/internal/store"
	ws "github.com/contentforge/api/internal/websocket"
	"github.com/contentforge/api/internal/worker"
	"github.com/contentforge/api/pkg/response"
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
		log.Error("Server stopped with error", "error", err)
		os.Exit(1)
	}
	log.Info("Server stopped")
}

func run(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	m := metrics.New()

	redisOpts := &redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}
	redisClient := redis.NewClient(redisOpts)
	defer redisClient.Close()

	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Warn("Redis not available", "addr", cfg.Redis.Addr, "error", err)
	}

	asynqOpt := asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}
	asynqClient := asynq.NewClient(asynqOpt)
	defer asynqClient.Close()
	inspector := asynq.NewInspector(asynqOpt)
	defer inspector.Close()

	contents, mongoClient, err := store.Open(ctx, cfg.Mongo, log)
	if err != nil {
		return err
	}
	if mongoClient != nil {
		defer store.DisconnectMongo(mongoClient)
	}

	var lock service.GenerationLock
	if cfg.Queue.SingleFlight {
		lock = service.NewRedisGenerationLock(redisClient, cfg.Queue.LockTTL)
	}

	var storage client.StorageClient
	if cfg.R2.IsConfigured() {
		r2, err := client.NewR2Client(ctx, &cfg.R2)
		if err != nil {
			log.Warn("R2 not available, exports will use placeholder URLs", "error", err)
		} else {
			storage = r2
		}
	}

	queueService := service.NewQueueService(asynqClient, inspector, contents, lock, cfg.Queue, cfg.Worker.TaskTimeout, log, m)
	contentService := service.NewContentService(contents, queueService, storage, log)

	var verifier auth.TokenVerifier
	if cfg.Zitadel.Issuer != "" {
		v, err := auth.NewJWKSVerifier(ctx, &cfg.Zitadel)
		if err != nil {
			log.Warn("Zitadel JWKS unavailable, accepting HMAC tokens only", "error", err)
		} else {
			verifier = v
		}
	}
	authMiddleware := middleware.NewAuthMiddleware(verifier, cfg.JWT.Secret, time.Duration(cfg.JWT.Expiration)*time.Hour)
	rateLimiter := middleware.NewRateLimiter(redisClient, log)

	hub := ws.NewHub(log, m)

	bus := pubsub.NewBus(redisOpts, log, m)
	defer bus.Shutdown()
	if err := bus.Initialize(ctx); err != nil {
		log.Warn("Event bus unavailable, real-time notifications disabled", "error", err)
	} else if err := bus.SubscribeToAll(ctx, pubsub.Handlers{
		OnStarted: func(userID string, p model.GenerationStartedPayload) {
			hub.EmitToUser(userID, model.EventGenerationStarted, p)
		},
		OnCompleted: func(userID string, p model.GenerationCompletedPayload) {
			hub.EmitToUser(userID, model.EventGenerationCompleted, p)
		},
		OnFailed: func(userID string, p model.GenerationFailedPayload) {
			hub.EmitToUser(userID, model.EventGenerationFailed, p)
		},
	}); err != nil {
		log.Warn("Failed to subscribe to lifecycle events", "error", err)
	}

	contentHandler := handler.NewContentHandler(contentService, queueService, validator.New(), log)
	checks := map[string]handler.HealthCheck{"redis": handler.RedisCheck(redisClient)}
	if mongoClient != nil {
		checks["mongo"] = handler.MongoCheck(mongoClient)
	}
	healthHandler := handler.NewHealthHandler("api", checks)

	app := fiber.New(fiber.Config{
		ErrorHandler:          customErrorHandler,
		DisableStartupMessage: true,
	})

	app.Use(recover.New())
	app.Use(fiberlogger.New(fiberlogger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
		Next: func(c *fiber.Ctx) bool {
			return c.Path() == "/health" || c.Path() == "/metrics"
		},
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization",
	}))

	app.Get("/health", healthHandler.Health)
	app.Get("/metrics", m.Handler())

	api := app.Group("/api", authMiddleware.Authenticate())
	contentHandler.Routes(api, handler.RouteLimits{
		Generate: rateLimiter.GenerateLimit(cfg.RateLimit.GeneratePerHour),
		Export:   rateLimiter.ExportLimit(cfg.RateLimit.ExportPerHour),
		Read:     rateLimiter.ReadLimit(cfg.RateLimit.ReadPerMin),
	})

	app.Use("/ws", ws.UpgradeMiddleware(authMiddleware))
	app.Get("/ws", hub.Handler())

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		hub.Run(gctx)
		return nil
	})

	if cfg.Worker.Embedded {
		generator, err := client.NewGenerator(ctx, cfg, log)
		if err != nil {
			return err
		}
		srv := worker.NewServer(asynqOpt, cfg, log)
		mux := asynq.NewServeMux()
		worker.NewGenerationWorker(contents, generator, bus, lock, log, m).Register(mux)

		if err := srv.Start(mux); err != nil {
			return err
		}
		log.Info("Embedded generation worker started", "queue", cfg.Queue.Name, "concurrency", cfg.Worker.Concurrency)
		g.Go(func() error {
			<-gctx.Done()
			srv.Shutdown()
			return nil
		})
	}

	g.Go(func() error {
		addr := ":" + cfg.Server.Port
		log.Info("Server starting", "addr", addr, "env", cfg.Server.Env)
		return app.Listen(addr)
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info("Shutting down server...")
		return app.ShutdownWithTimeout(10 * time.Second)
	})

	return g.Wait()
}

func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	var e *fiber.Error
	if errors.As(err, &e) {
		code = e.Code
		message = e.Message
	}

	return response.Error(c, code, response.CodeServiceError, message, nil)
}
