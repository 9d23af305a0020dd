package client

import (
	"context"

	"golang.org/x/time/rate"

	"github.com/contentforge/api/internal/model"
)

// RateLimitedGenerator throttles calls to the wrapped generator with a token bucket
type RateLimitedGenerator struct {
	next    Generator
	limiter *rate.Limiter
}

func NewRateLimitedGenerator(next Generator, perSecond float64, burst int) *RateLimitedGenerator {
	if burst < 1 {
		burst = 1
	}
	return &RateLimitedGenerator{
		next:    next,
		limiter: rate.NewLimiter(rate.Limit(perSecond), burst),
	}
}

func (g *RateLimitedGenerator) Name() string { return g.next.Name() }

func (g *RateLimitedGenerator) Generate(ctx context.Context, prompt string, contentType model.ContentType) (string, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return "", ClassifyError(g.next.Name(), err)
	}
	return g.next.Generate(ctx, prompt, contentType)
}
