package genai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/tmc/langchaingo/llms"
)

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature,omitempty"`
	Stream      bool          `json:"stream"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// HTTPModel speaks the streaming chat protocol of self-hosted gateways:
// POST /api/chat answered by an SSE or NDJSON event stream of
// {"content": ...} fragments. It satisfies llms.Model, so the Generator
// drives it exactly like a langchaingo provider.
type HTTPModel struct {
	baseURL string
	model   string
	apiKey  string
	client  *http.Client
}

// NewHTTPModel creates a model client for baseURL. The api key is optional;
// when set it is sent as a bearer token.
func NewHTTPModel(baseURL, model, apiKey string) *HTTPModel {
	return &HTTPModel{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		model:   model,
		apiKey:  apiKey,
		client:  &http.Client{},
	}
}

var _ llms.Model = (*HTTPModel)(nil)

// GenerateContent runs one chat request against the gateway and decodes the
// event stream with ParseStream, forwarding fragments to the streaming func
// from the call options as they arrive.
func (m *HTTPModel) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	opts := llms.CallOptions{}
	for _, opt := range options {
		opt(&opts)
	}

	payload := chatRequest{
		Model:       m.model,
		Temperature: opts.Temperature,
		Stream:      true,
	}
	for _, mc := range messages {
		payload.Messages = append(payload.Messages, chatMessage{
			Role:    wireRole(mc.Role),
			Content: textContent(mc),
		})
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if m.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+m.apiKey)
	}

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("chat request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("chat endpoint returned status %d: %s",
			resp.StatusCode, strings.TrimSpace(string(detail)))
	}

	var (
		acc       strings.Builder
		streamErr error
	)
	err = ParseStream(resp.Body, func(event StreamEvent) {
		if streamErr != nil {
			return
		}
		if event.Error != "" {
			streamErr = errors.New(event.Error)
			return
		}
		if event.Content == "" {
			return
		}
		acc.WriteString(event.Content)
		if opts.StreamingFunc != nil {
			if err := opts.StreamingFunc(ctx, []byte(event.Content)); err != nil {
				streamErr = err
			}
		}
	})
	if err != nil {
		return nil, err
	}
	if streamErr != nil {
		return nil, fmt.Errorf("chat stream failed: %w", streamErr)
	}

	return &llms.ContentResponse{
		Choices: []*llms.ContentChoice{{Content: acc.String()}},
	}, nil
}

// Call implements the single-prompt convenience of llms.Model.
func (m *HTTPModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	resp, err := m.GenerateContent(ctx, []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeHuman, prompt),
	}, options...)
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("empty response")
	}
	return resp.Choices[0].Content, nil
}

func wireRole(role llms.ChatMessageType) string {
	switch role {
	case llms.ChatMessageTypeSystem:
		return "system"
	case llms.ChatMessageTypeAI:
		return "assistant"
	default:
		return "user"
	}
}

func textContent(mc llms.MessageContent) string {
	var sb strings.Builder
	for _, part := range mc.Parts {
		if tc, ok := part.(llms.TextContent); ok {
			sb.WriteString(tc.Text)
		}
	}
	return sb.String()
}
