package genai

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/googleai"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/mediconsult/internal/config"
)

// NewModel builds an llms.Model from the configured provider. Supported
// providers: openai, googleai, anthropic, ollama, and compat for
// self-hosted gateways speaking the raw streaming chat protocol.
func NewModel(ctx context.Context, cfg *config.Config) (llms.Model, error) {
	switch cfg.AI.Provider {
	case "openai":
		opts := []openai.Option{
			openai.WithToken(cfg.AI.APIKey),
			openai.WithModel(cfg.AI.Model),
		}
		if cfg.AI.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.AI.BaseURL))
		}
		llm, err := openai.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize openai: %w", err)
		}
		return llm, nil

	case "googleai":
		llm, err := googleai.New(ctx,
			googleai.WithAPIKey(cfg.AI.APIKey),
			googleai.WithDefaultModel(cfg.AI.Model),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize googleai: %w", err)
		}
		return llm, nil

	case "anthropic":
		llm, err := anthropic.New(
			anthropic.WithToken(cfg.AI.APIKey),
			anthropic.WithModel(cfg.AI.Model),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize anthropic: %w", err)
		}
		return llm, nil

	case "ollama":
		llm, err := ollama.New(
			ollama.WithServerURL(cfg.AI.BaseURL),
			ollama.WithModel(cfg.AI.Model),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize ollama: %w", err)
		}
		return llm, nil

	case "compat":
		return NewHTTPModel(cfg.AI.BaseURL, cfg.AI.Model, cfg.AI.APIKey), nil

	default:
		return nil, fmt.Errorf("unknown ai provider %q", cfg.AI.Provider)
	}
}
