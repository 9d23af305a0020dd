package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/contentforge/api/internal/config"
	"github.com/contentforge/api/internal/model"
)

// Generator produces text for a prompt of a given content type
type Generator interface {
	Generate(ctx context.Context, prompt string, contentType model.ContentType) (string, error)
	Name() string
}

// ClassifyError maps a raw provider failure onto a GenerationProviderError.
// Errors that are already classified pass through unchanged.
func ClassifyError(provider string, err error) error {
	if err == nil {
		return nil
	}

	var pe *model.GenerationProviderError
	if errors.As(err, &pe) {
		return err
	}

	msg := err.Error()
	lower := strings.ToLower(msg)

	switch {
	case errors.Is(err, context.DeadlineExceeded) || strings.Contains(lower, "timeout") || strings.Contains(lower, "deadline exceeded"):
		return &model.GenerationProviderError{
			Kind:    model.ProviderErrorTimeout,
			Message: "AI service timeout - please try again",
			Err:     err,
		}
	case strings.Contains(msg, "API key") || strings.Contains(lower, "api_key") || strings.Contains(lower, "unauthenticated") || strings.Contains(lower, "status 401"):
		return &model.GenerationProviderError{
			Kind:    model.ProviderErrorAuth,
			Message: fmt.Sprintf("Invalid or missing %s API key", provider),
			Err:     err,
		}
	case strings.Contains(lower, "quota") || strings.Contains(lower, "resource_exhausted") || strings.Contains(lower, "status 429"):
		return &model.GenerationProviderError{
			Kind:    model.ProviderErrorQuota,
			Message: fmt.Sprintf("%s API quota exceeded", provider),
			Err:     err,
		}
	case strings.Contains(msg, "SAFETY"):
		return &model.GenerationProviderError{
			Kind:    model.ProviderErrorSafety,
			Message: "Content blocked by safety filters",
			Err:     err,
		}
	}

	return &model.GenerationProviderError{
		Kind:    model.ProviderErrorUnknown,
		Message: "AI content generation failed: " + msg,
		Err:     err,
	}
}

// NewGenerator builds the configured provider. Providers without credentials
// fall back to the mock generator.
func NewGenerator(ctx context.Context, cfg *config.Config, log *slog.Logger) (Generator, error) {
	var gen Generator

	switch cfg.Generation.Provider {
	case "gemini":
		if cfg.Gemini.APIKey == "" {
			log.Warn("Gemini API key not configured, using mock generator")
			gen = NewMockGenerator()
			break
		}
		g, err := NewGeminiClient(ctx, &cfg.Gemini, cfg.Generation.Timeout)
		if err != nil {
			return nil, err
		}
		gen = g
	case "groq":
		g := NewGroqClient(&cfg.Groq, cfg.Generation.Timeout)
		if !g.IsConfigured() {
			log.Warn("Groq API key not configured, using mock generator")
			gen = NewMockGenerator()
			break
		}
		gen = g
	default:
		gen = NewMockGenerator()
	}

	if cfg.Generation.RatePerSecond > 0 {
		gen = NewRateLimitedGenerator(gen, cfg.Generation.RatePerSecond, cfg.Generation.Burst)
	}
	return gen, nil
}
