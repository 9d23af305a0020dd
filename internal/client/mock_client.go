package client

import (
	"context"
	"fmt"
	"strings"

	"github.com/contentforge/api/internal/model"
)

// MockGenerator returns deterministic text without calling a provider
type MockGenerator struct{}

func NewMockGenerator() *MockGenerator {
	return &MockGenerator{}
}

func (m *MockGenerator) Name() string { return "mock" }

func (m *MockGenerator) Generate(ctx context.Context, prompt string, contentType model.ContentType) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", ClassifyError("mock", err)
	}

	topic := strings.TrimSpace(prompt)
	switch contentType {
	case model.ContentTypeBlog:
		return fmt.Sprintf("%s: a short look at what matters, why it matters now, and how you can put it to work today.", topic), nil
	case model.ContentTypeSocial:
		return fmt.Sprintf("Big news about %s. Here is what you need to know.", topic), nil
	case model.ContentTypeProduct:
		return fmt.Sprintf("- %s\n- Premium build and design\n- All-day performance", topic), nil
	default:
		return "", fmt.Errorf("unsupported content type: %s", contentType)
	}
}
