package genai

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/tmc/langchaingo/llms"

	"github.com/mediconsult/internal/assembler"
	"github.com/mediconsult/internal/config"
	"github.com/mediconsult/internal/retry"
	"github.com/mediconsult/pkg/models"
)

// DefaultFallback is used when no fallback text is configured.
const DefaultFallback = "抱歉，我暂时无法回答您的问题，请稍后再试。如症状紧急，请尽快前往医院就诊。"

// Turn is one prior exchange step fed back as generation context.
type Turn struct {
	Role    models.MessageRole
	Content string
}

// Result is the outcome of a Generate call. Generate never fails: on
// provider error or timeout Text holds the fallback and Fallback is true.
type Result struct {
	Text     string
	Fallback bool
}

// Generator turns conversation history plus an assembled context bundle into
// an assistant reply, streaming fragments through a callback.
type Generator struct {
	model       llms.Model
	fallback    string
	timeout     time.Duration
	temperature float64
	retryConfig retry.Config
	logger      zerolog.Logger
}

// NewGenerator creates a Generator from config.
func NewGenerator(model llms.Model, cfg *config.Config, logger zerolog.Logger) *Generator {
	fallback := cfg.AI.FallbackResponse
	if fallback == "" {
		fallback = DefaultFallback
	}
	timeout := time.Duration(cfg.AI.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	return &Generator{
		model:       model,
		fallback:    fallback,
		timeout:     timeout,
		temperature: cfg.AI.Temperature,
		retryConfig: retry.GenerationConfig(),
		logger:      logger.With().Str("component", "genai").Logger(),
	}
}

// Fallback returns the configured fallback text.
func (g *Generator) Fallback() string {
	return g.fallback
}

func buildMessages(history []Turn, bundle assembler.Bundle) []llms.MessageContent {
	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, buildSystemPrompt(bundle)),
	}

	for _, turn := range history {
		switch turn.Role {
		case models.RoleAssistant:
			messages = append(messages, llms.TextParts(llms.ChatMessageTypeAI, turn.Content))
		case models.RoleSystem:
			messages = append(messages, llms.TextParts(llms.ChatMessageTypeSystem, turn.Content))
		default:
			messages = append(messages, llms.TextParts(llms.ChatMessageTypeHuman, turn.Content))
		}
	}

	return messages
}

// Generate produces the assistant reply. When onChunk is non-nil, fragments
// are forwarded synchronously in receipt order; their concatenation always
// equals the returned text, including on failure. Retryable provider errors
// are retried before the fallback kicks in, but never after fragments were
// already delivered.
func (g *Generator) Generate(ctx context.Context, history []Turn, bundle assembler.Bundle, onChunk func(string)) Result {
	genCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	messages := buildMessages(history, bundle)

	// delivered accumulates every fragment the client has seen across the
	// whole call, so the persisted text can never disagree with the stream.
	var delivered strings.Builder
	var text string

	deliver := func(fragment string) {
		delivered.WriteString(fragment)
		if onChunk != nil {
			onChunk(fragment)
		}
	}

	attempt := func() error {
		opts := []llms.CallOption{llms.WithTemperature(g.temperature)}
		if onChunk != nil {
			opts = append(opts, llms.WithStreamingFunc(func(_ context.Context, chunk []byte) error {
				if fragment := string(chunk); fragment != "" {
					deliver(fragment)
				}
				return nil
			}))
		}

		resp, err := g.model.GenerateContent(genCtx, messages, opts...)
		if err != nil {
			return err
		}

		if delivered.Len() > 0 {
			// Streaming path: the fragments the client already saw are
			// the answer.
			text = delivered.String()
			return nil
		}
		if len(resp.Choices) == 0 {
			return nil
		}
		text = resp.Choices[0].Content
		if text != "" && onChunk != nil {
			deliver(text)
		}
		return nil
	}

	result := retry.WithBackoff(genCtx, g.retryConfig, g.logger, func() error {
		if delivered.Len() > 0 {
			// A partial stream already reached the client; replaying the
			// request would duplicate fragments.
			return context.Canceled
		}
		return attempt()
	})

	if result.Success && text != "" {
		g.logger.Debug().
			Int("attempts", result.Attempts).
			Int("length", len(text)).
			Msg("generation complete")
		return Result{Text: text}
	}

	if delivered.Len() > 0 {
		// The provider died mid-stream. Appending the fallback now would
		// make the saved message disagree with what the client saw, so the
		// delivered fragments stand as the reply.
		g.logger.Warn().
			Err(result.LastError).
			Int("delivered", delivered.Len()).
			Msg("stream interrupted, keeping delivered fragments")
		return Result{Text: delivered.String()}
	}

	g.logger.Warn().
		Err(result.LastError).
		Int("attempts", result.Attempts).
		Bool("empty_response", result.Success).
		Msg("generation produced nothing, serving fallback")

	deliver(g.fallback)
	return Result{Text: g.fallback, Fallback: true}
}
