package client

import (
	"context"
	"fmt"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/contentforge/api/internal/config"
	"github.com/contentforge/api/internal/model"
)

// GeminiClient generates content with the Gemini API
type GeminiClient struct {
	client  *genai.Client
	model   string
	timeout time.Duration
	config  *genai.GenerateContentConfig
}

// NewGeminiClient creates a Gemini client using an API key
func NewGeminiClient(ctx context.Context, cfg *config.GeminiConfig, timeout time.Duration) (*GeminiClient, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &GeminiClient{
		client:  client,
		model:   cfg.Model,
		timeout: timeout,
		config:  generateConfig(cfg),
	}, nil
}

func generateConfig(cfg *config.GeminiConfig) *genai.GenerateContentConfig {
	threshold := genai.HarmBlockThresholdBlockMediumAndAbove
	return &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(SystemInstruction, genai.RoleUser),
		Temperature:       ptrFloat32(cfg.Temperature),
		TopP:              ptrFloat32(cfg.TopP),
		TopK:              ptrFloat32(cfg.TopK),
		MaxOutputTokens:   int32(cfg.MaxTokens),
		SafetySettings: []*genai.SafetySetting{
			{Category: genai.HarmCategoryHarassment, Threshold: threshold},
			{Category: genai.HarmCategoryHateSpeech, Threshold: threshold},
			{Category: genai.HarmCategorySexuallyExplicit, Threshold: threshold},
			{Category: genai.HarmCategoryDangerousContent, Threshold: threshold},
		},
	}
}

func (c *GeminiClient) Name() string { return "gemini" }

// Generate sends the templated prompt and returns the trimmed response text
func (c *GeminiClient) Generate(ctx context.Context, prompt string, contentType model.ContentType) (string, error) {
	formatted, err := BuildPrompt(contentType, prompt)
	if err != nil {
		return "", err
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	resp, err := c.client.Models.GenerateContent(ctx, c.model, genai.Text(formatted), c.config)
	if err != nil {
		return "", ClassifyError("Gemini", err)
	}

	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
		return "", ClassifyError("Gemini", fmt.Errorf("prompt blocked: SAFETY (%s)", resp.PromptFeedback.BlockReason))
	}
	if len(resp.Candidates) > 0 && resp.Candidates[0].FinishReason == genai.FinishReasonSafety {
		return "", ClassifyError("Gemini", fmt.Errorf("response blocked: SAFETY"))
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", model.ErrEmptyGenerationResult
	}
	return text, nil
}

func ptrFloat32(v float32) *float32 {
	return &v
}
