package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// readSecret reads a Docker secret from a file path specified by an env var
// with _FILE suffix. If FOO is already set directly, the file is skipped.
// If FOO_FILE is set, reads the file content and sets FOO.
func readSecret(envKey string) {
	if os.Getenv(envKey) != "" {
		return
	}
	filePath := os.Getenv(envKey + "_FILE")
	if filePath == "" {
		return
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		return
	}
	os.Setenv(envKey, strings.TrimSpace(string(data)))
}

type Config struct {
	Server     ServerConfig
	Log        LogConfig
	Redis      RedisConfig
	Mongo      MongoConfig
	Queue      QueueConfig
	Worker     WorkerConfig
	Generation GenerationConfig
	Gemini     GeminiConfig
	Groq       GroqConfig
	JWT        JWTConfig
	Zitadel    ZitadelConfig
	RateLimit  RateLimitConfig
	R2         R2Config
}

type ServerConfig struct {
	Port      string
	Env       string
	ApiDomain string
}

type LogConfig struct {
	Level  string
	Format string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type MongoConfig struct {
	URI        string
	Database   string
	Collection string
}

// QueueConfig controls how generation jobs are enqueued
type QueueConfig struct {
	Name         string
	InitialDelay time.Duration
	MaxAttempts  int
	BackoffBase  time.Duration
	Retention    time.Duration
	SingleFlight bool
	LockTTL      time.Duration
}

type WorkerConfig struct {
	Concurrency int
	HealthPort  string
	Embedded    bool
	TaskTimeout time.Duration
}

type GenerationConfig struct {
	Provider      string // gemini, groq or mock
	Timeout       time.Duration
	RatePerSecond float64
	Burst         int
}

type GeminiConfig struct {
	APIKey      string
	Model       string
	Temperature float32
	MaxTokens   int
	TopP        float32
	TopK        float32
}

type GroqConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

type JWTConfig struct {
	Secret     string
	Expiration int // hours
}

type ZitadelConfig struct {
	Domain   string
	ClientID string
	Issuer   string
}

type RateLimitConfig struct {
	GeneratePerHour int
	ExportPerHour   int
	ReadPerMin      int
}

type R2Config struct {
	AccountID       string
	AccessKeyID     string
	SecretAccessKey string
	BucketName      string
	PublicURL       string
}

// IsConfigured reports whether all credentials needed for uploads are present
func (c R2Config) IsConfigured() bool {
	return c.AccountID != "" && c.AccessKeyID != "" && c.SecretAccessKey != "" && c.BucketName != ""
}

var envBindings = map[string]string{
	"server.port":                 "SERVER_PORT",
	"server.env":                  "SERVER_ENV",
	"server.api_domain":           "API_DOMAIN",
	"log.level":                   "LOG_LEVEL",
	"log.format":                  "LOG_FORMAT",
	"redis.addr":                  "REDIS_ADDR",
	"redis.password":              "REDIS_PASSWORD",
	"redis.db":                    "REDIS_DB",
	"mongo.uri":                   "MONGO_URI",
	"mongo.database":              "MONGO_DATABASE",
	"mongo.collection":            "MONGO_COLLECTION",
	"queue.name":                  "QUEUE_NAME",
	"queue.initial_delay":         "QUEUE_INITIAL_DELAY",
	"queue.max_attempts":          "QUEUE_MAX_ATTEMPTS",
	"queue.backoff_base":          "QUEUE_BACKOFF_BASE",
	"queue.retention":             "QUEUE_RETENTION",
	"queue.single_flight":         "QUEUE_SINGLE_FLIGHT",
	"queue.lock_ttl":              "QUEUE_LOCK_TTL",
	"worker.concurrency":          "WORKER_CONCURRENCY",
	"worker.health_port":          "WORKER_HEALTH_PORT",
	"worker.embedded":             "WORKER_EMBEDDED",
	"worker.task_timeout":         "WORKER_TASK_TIMEOUT",
	"generation.provider":         "GENERATION_PROVIDER",
	"generation.timeout":          "GENERATION_TIMEOUT",
	"generation.rate_per_second":  "GENERATION_RATE_PER_SECOND",
	"generation.burst":            "GENERATION_BURST",
	"gemini.api_key":              "GEMINI_API_KEY",
	"gemini.model":                "GEMINI_MODEL",
	"gemini.temperature":          "GEMINI_TEMPERATURE",
	"gemini.max_tokens":           "GEMINI_MAX_TOKENS",
	"gemini.top_p":                "GEMINI_TOP_P",
	"gemini.top_k":                "GEMINI_TOP_K",
	"groq.api_key":                "GROQ_API_KEY",
	"groq.base_url":               "GROQ_BASE_URL",
	"groq.model":                  "GROQ_MODEL",
	"jwt.secret":                  "JWT_SECRET",
	"jwt.expiration":              "JWT_EXPIRATION",
	"zitadel.domain":              "ZITADEL_DOMAIN",
	"zitadel.client_id":           "ZITADEL_CLIENT_ID",
	"zitadel.issuer":              "ZITADEL_ISSUER",
	"ratelimit.generate_per_hour": "RATELIMIT_GENERATE_PER_HOUR",
	"ratelimit.export_per_hour":   "RATELIMIT_EXPORT_PER_HOUR",
	"ratelimit.read_per_min":      "RATELIMIT_READ_PER_MIN",
	"r2.account_id":               "R2_ACCOUNT_ID",
	"r2.access_key_id":            "R2_ACCESS_KEY_ID",
	"r2.secret_access_key":        "R2_SECRET_ACCESS_KEY",
	"r2.bucket_name":              "R2_BUCKET_NAME",
	"r2.public_url":               "R2_PUBLIC_URL",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8000")
	v.SetDefault("server.env", "development")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	// Mongo defaults; an empty URI selects the in-memory store
	v.SetDefault("mongo.uri", "")
	v.SetDefault("mongo.database", "contentforge")
	v.SetDefault("mongo.collection", "contents")

	// Queue defaults
	v.SetDefault("queue.name", "content-generation")
	v.SetDefault("queue.initial_delay", "60s")
	v.SetDefault("queue.max_attempts", 3)
	v.SetDefault("queue.backoff_base", "2s")
	v.SetDefault("queue.retention", "24h")
	v.SetDefault("queue.single_flight", true)
	v.SetDefault("queue.lock_ttl", "30m")

	// Worker defaults
	v.SetDefault("worker.concurrency", 1)
	v.SetDefault("worker.health_port", "8001")
	v.SetDefault("worker.embedded", false)
	v.SetDefault("worker.task_timeout", "5m")

	// Generation defaults
	v.SetDefault("generation.provider", "gemini")
	v.SetDefault("generation.timeout", "60s")
	v.SetDefault("generation.rate_per_second", 0)
	v.SetDefault("generation.burst", 1)

	v.SetDefault("gemini.model", "gemini-1.5-flash")
	v.SetDefault("gemini.temperature", 0.7)
	v.SetDefault("gemini.max_tokens", 1024)
	v.SetDefault("gemini.top_p", 0.95)
	v.SetDefault("gemini.top_k", 40)

	v.SetDefault("groq.base_url", "https://api.groq.com/openai/v1")
	v.SetDefault("groq.model", "llama-3.3-70b-versatile")

	v.SetDefault("jwt.secret", "change-me-in-production")
	v.SetDefault("jwt.expiration", 24)

	v.SetDefault("ratelimit.generate_per_hour", 20)
	v.SetDefault("ratelimit.export_per_hour", 20)
	v.SetDefault("ratelimit.read_per_min", 120)
}

func Load() (*Config, error) {
	// .env is optional; real environment variables win
	_ = godotenv.Load()

	// Read Docker Swarm secrets from _FILE env vars before Viper binds
	readSecret("REDIS_PASSWORD")
	readSecret("MONGO_URI")
	readSecret("GEMINI_API_KEY")
	readSecret("GROQ_API_KEY")
	readSecret("JWT_SECRET")
	readSecret("R2_ACCOUNT_ID")
	readSecret("R2_ACCESS_KEY_ID")
	readSecret("R2_SECRET_ACCESS_KEY")
	readSecret("ZITADEL_CLIENT_ID")

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.AutomaticEnv()
	for key, env := range envBindings {
		_ = v.BindEnv(key, env)
	}
	setDefaults(v)

	// Try to read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:      v.GetString("server.port"),
			Env:       v.GetString("server.env"),
			ApiDomain: v.GetString("server.api_domain"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
		},
		Redis: RedisConfig{
			Addr:     v.GetString("redis.addr"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		Mongo: MongoConfig{
			URI:        v.GetString("mongo.uri"),
			Database:   v.GetString("mongo.database"),
			Collection: v.GetString("mongo.collection"),
		},
		Queue: QueueConfig{
			Name:         v.GetString("queue.name"),
			InitialDelay: v.GetDuration("queue.initial_delay"),
			MaxAttempts:  v.GetInt("queue.max_attempts"),
			BackoffBase:  v.GetDuration("queue.backoff_base"),
			Retention:    v.GetDuration("queue.retention"),
			SingleFlight: v.GetBool("queue.single_flight"),
			LockTTL:      v.GetDuration("queue.lock_ttl"),
		},
		Worker: WorkerConfig{
			Concurrency: v.GetInt("worker.concurrency"),
			HealthPort:  v.GetString("worker.health_port"),
			Embedded:    v.GetBool("worker.embedded"),
			TaskTimeout: v.GetDuration("worker.task_timeout"),
		},
		Generation: GenerationConfig{
			Provider:      strings.ToLower(v.GetString("generation.provider")),
			Timeout:       v.GetDuration("generation.timeout"),
			RatePerSecond: v.GetFloat64("generation.rate_per_second"),
			Burst:         v.GetInt("generation.burst"),
		},
		Gemini: GeminiConfig{
			APIKey:      v.GetString("gemini.api_key"),
			Model:       v.GetString("gemini.model"),
			Temperature: float32(v.GetFloat64("gemini.temperature")),
			MaxTokens:   v.GetInt("gemini.max_tokens"),
			TopP:        float32(v.GetFloat64("gemini.top_p")),
			TopK:        float32(v.GetFloat64("gemini.top_k")),
		},
		Groq: GroqConfig{
			APIKey:  v.GetString("groq.api_key"),
			BaseURL: v.GetString("groq.base_url"),
			Model:   v.GetString("groq.model"),
		},
		JWT: JWTConfig{
			Secret:     v.GetString("jwt.secret"),
			Expiration: v.GetInt("jwt.expiration"),
		},
		Zitadel: ZitadelConfig{
			Domain:   v.GetString("zitadel.domain"),
			ClientID: v.GetString("zitadel.client_id"),
			Issuer:   v.GetString("zitadel.issuer"),
		},
		RateLimit: RateLimitConfig{
			GeneratePerHour: v.GetInt("ratelimit.generate_per_hour"),
			ExportPerHour:   v.GetInt("ratelimit.export_per_hour"),
			ReadPerMin:      v.GetInt("ratelimit.read_per_min"),
		},
		R2: R2Config{
			AccountID:       v.GetString("r2.account_id"),
			AccessKeyID:     v.GetString("r2.access_key_id"),
			SecretAccessKey: v.GetString("r2.secret_access_key"),
			BucketName:      v.GetString("r2.bucket_name"),
			PublicURL:       v.GetString("r2.public_url"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the pipeline cannot run with
func (c *Config) Validate() error {
	if c.Queue.MaxAttempts < 1 {
		return fmt.Errorf("queue.max_attempts must be at least 1, got %d", c.Queue.MaxAttempts)
	}
	if c.Queue.InitialDelay < 0 {
		return fmt.Errorf("queue.initial_delay must not be negative")
	}
	if c.Queue.BackoffBase <= 0 {
		return fmt.Errorf("queue.backoff_base must be positive")
	}
	if c.Worker.Concurrency < 1 {
		return fmt.Errorf("worker.concurrency must be at least 1, got %d", c.Worker.Concurrency)
	}
	switch c.Generation.Provider {
	case "gemini", "groq", "mock":
	default:
		return fmt.Errorf("generation.provider must be one of gemini, groq, mock; got %q", c.Generation.Provider)
	}
	return nil
}
