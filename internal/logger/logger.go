package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/hibiken/asynq"
	"github.com/lmittmann/tint"
)

// Config holds logger configuration
type Config struct {
	Level        string // debug, info, warn, error
	Format       string // json, console
	EnableSource bool
	TimeFormat   string // Time format for console output
}

// New creates a logger writing to stdout
func New(cfg Config) *slog.Logger {
	return NewWithWriter(os.Stdout, cfg)
}

// NewWithWriter creates a logger writing to w
func NewWithWriter(w io.Writer, cfg Config) *slog.Logger {
	level := ParseLevel(cfg.Level)

	var handler slog.Handler
	switch cfg.Format {
	case "json":
		handler = slog.NewJSONHandler(w, &slog.HandlerOptions{
			Level:     level,
			AddSource: cfg.EnableSource,
		})
	default:
		timeFormat := cfg.TimeFormat
		if timeFormat == "" {
			timeFormat = time.RFC3339
		}
		handler = tint.NewHandler(w, &tint.Options{
			Level:      level,
			AddSource:  cfg.EnableSource,
			TimeFormat: timeFormat,
		})
	}

	return slog.New(handler)
}

// ParseLevel converts string level to slog.Level
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// AsynqLevel maps the application log level onto the asynq server's level
func AsynqLevel(level string) asynq.LogLevel {
	switch strings.ToLower(level) {
	case "debug":
		return asynq.DebugLevel
	case "warn", "warning":
		return asynq.WarnLevel
	case "error":
		return asynq.ErrorLevel
	default:
		return asynq.InfoLevel
	}
}

// AsynqLogger routes asynq's internal logging through slog
type AsynqLogger struct {
	log *slog.Logger
}

// NewAsynqLogger returns an asynq.Logger backed by log
func NewAsynqLogger(log *slog.Logger) *AsynqLogger {
	return &AsynqLogger{log: log.With("component", "asynq")}
}

func (l *AsynqLogger) Debug(args ...interface{}) { l.log.Debug(fmt.Sprint(args...)) }
func (l *AsynqLogger) Info(args ...interface{})  { l.log.Info(fmt.Sprint(args...)) }
func (l *AsynqLogger) Warn(args ...interface{})  { l.log.Warn(fmt.Sprint(args...)) }
func (l *AsynqLogger) Error(args ...interface{}) { l.log.Error(fmt.Sprint(args...)) }

// Fatal logs and exits; asynq only calls it on unrecoverable startup errors
func (l *AsynqLogger) Fatal(args ...interface{}) {
	l.log.Error(fmt.Sprint(args...))
	os.Exit(1)
}
