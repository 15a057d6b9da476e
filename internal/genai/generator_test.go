package genai

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"

	"github.com/mediconsult/internal/assembler"
	"github.com/mediconsult/internal/config"
	"github.com/mediconsult/pkg/models"
)

// fakeModel scripts GenerateContent behavior for tests. With errAfterStream
// set the fragments are streamed before err is returned, mimicking a
// provider dying mid-stream.
type fakeModel struct {
	fragments      []string
	response       string
	err            error
	errAfterStream bool
	noChoices      bool
	block          bool

	gotMessages []llms.MessageContent
}

func (f *fakeModel) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	f.gotMessages = messages

	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if f.err != nil && !f.errAfterStream {
		return nil, f.err
	}

	opts := llms.CallOptions{}
	for _, opt := range options {
		opt(&opts)
	}

	if opts.StreamingFunc != nil {
		for _, fragment := range f.fragments {
			if err := opts.StreamingFunc(ctx, []byte(fragment)); err != nil {
				return nil, err
			}
		}
	}

	if f.err != nil {
		return nil, f.err
	}
	if f.noChoices {
		return &llms.ContentResponse{}, nil
	}

	content := f.response
	if content == "" {
		content = strings.Join(f.fragments, "")
	}
	return &llms.ContentResponse{
		Choices: []*llms.ContentChoice{{Content: content}},
	}, nil
}

func (f *fakeModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	resp, err := f.GenerateContent(ctx, []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeHuman, prompt),
	}, options...)
	if err != nil {
		return "", err
	}
	return resp.Choices[0].Content, nil
}

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.AI.TimeoutSeconds = 1
	cfg.AI.Temperature = 0.3
	return cfg
}

func TestGenerateStreaming(t *testing.T) {
	model := &fakeModel{fragments: []string{"建议", "挂", "神经内科"}}
	g := NewGenerator(model, testConfig(), zerolog.Nop())

	var chunks []string
	result := g.Generate(context.Background(), []Turn{
		{Role: models.RoleUser, Content: "我头疼"},
	}, assembler.EmptyBundle{}, func(chunk string) {
		chunks = append(chunks, chunk)
	})

	assert.False(t, result.Fallback)
	assert.Equal(t, []string{"建议", "挂", "神经内科"}, chunks)
	assert.Equal(t, strings.Join(chunks, ""), result.Text)
}

func TestGenerateNonStreaming(t *testing.T) {
	model := &fakeModel{response: "多喝水，注意休息。"}
	g := NewGenerator(model, testConfig(), zerolog.Nop())

	result := g.Generate(context.Background(), []Turn{
		{Role: models.RoleUser, Content: "感冒了怎么办"},
	}, assembler.EmptyBundle{}, nil)

	assert.False(t, result.Fallback)
	assert.Equal(t, "多喝水，注意休息。", result.Text)
}

func TestGenerateDeliversResponseAsSingleChunk(t *testing.T) {
	// Providers without streaming support return everything in one response;
	// the callback still has to see it.
	model := &fakeModel{response: "整段回复"}
	g := NewGenerator(model, testConfig(), zerolog.Nop())

	var chunks []string
	result := g.Generate(context.Background(), nil, assembler.EmptyBundle{}, func(chunk string) {
		chunks = append(chunks, chunk)
	})

	assert.Equal(t, []string{"整段回复"}, chunks)
	assert.Equal(t, "整段回复", result.Text)
}

func TestGenerateProviderErrorFallsBack(t *testing.T) {
	model := &fakeModel{err: errors.New("invalid api key")}
	g := NewGenerator(model, testConfig(), zerolog.Nop())

	var chunks []string
	result := g.Generate(context.Background(), nil, assembler.EmptyBundle{}, func(chunk string) {
		chunks = append(chunks, chunk)
	})

	assert.True(t, result.Fallback)
	assert.Equal(t, DefaultFallback, result.Text)
	assert.Equal(t, []string{DefaultFallback}, chunks)
}

func TestGeneratePartialStreamKeptOnProviderError(t *testing.T) {
	// The provider dies after delivering real fragments. The client already
	// saw them, so the reply is the delivered text, not the fallback, and
	// no fallback chunk follows.
	model := &fakeModel{
		fragments:      []string{"部分", "回复"},
		err:            errors.New("connection reset"),
		errAfterStream: true,
	}
	g := NewGenerator(model, testConfig(), zerolog.Nop())

	var chunks []string
	result := g.Generate(context.Background(), nil, assembler.EmptyBundle{}, func(chunk string) {
		chunks = append(chunks, chunk)
	})

	assert.False(t, result.Fallback)
	assert.Equal(t, []string{"部分", "回复"}, chunks)
	assert.Equal(t, "部分回复", result.Text)
	assert.Equal(t, strings.Join(chunks, ""), result.Text)
}

func TestGenerateEmptyResponseFallsBack(t *testing.T) {
	// A reply must carry content; an empty provider response is served as
	// the fallback, never as an empty assistant message.
	t.Run("EmptyContent", func(t *testing.T) {
		model := &fakeModel{response: ""}
		g := NewGenerator(model, testConfig(), zerolog.Nop())

		var chunks []string
		result := g.Generate(context.Background(), nil, assembler.EmptyBundle{}, func(chunk string) {
			chunks = append(chunks, chunk)
		})

		assert.True(t, result.Fallback)
		assert.Equal(t, DefaultFallback, result.Text)
		assert.Equal(t, []string{DefaultFallback}, chunks)
	})

	t.Run("NoChoices", func(t *testing.T) {
		model := &fakeModel{noChoices: true}
		g := NewGenerator(model, testConfig(), zerolog.Nop())

		result := g.Generate(context.Background(), nil, assembler.EmptyBundle{}, nil)
		assert.True(t, result.Fallback)
		assert.Equal(t, DefaultFallback, result.Text)
	})
}

func TestGenerateTimeoutFallsBack(t *testing.T) {
	model := &fakeModel{block: true}
	g := NewGenerator(model, testConfig(), zerolog.Nop())

	result := g.Generate(context.Background(), nil, assembler.EmptyBundle{}, nil)

	assert.True(t, result.Fallback)
	assert.Equal(t, DefaultFallback, result.Text)
}

func TestGenerateUsesConfiguredFallback(t *testing.T) {
	cfg := testConfig()
	cfg.AI.FallbackResponse = "系统繁忙"
	model := &fakeModel{err: errors.New("boom")}
	g := NewGenerator(model, cfg, zerolog.Nop())

	result := g.Generate(context.Background(), nil, assembler.EmptyBundle{}, nil)
	assert.True(t, result.Fallback)
	assert.Equal(t, "系统繁忙", result.Text)
}

func TestBuildMessagesRoles(t *testing.T) {
	model := &fakeModel{response: "ok"}
	g := NewGenerator(model, testConfig(), zerolog.Nop())

	g.Generate(context.Background(), []Turn{
		{Role: models.RoleSystem, Content: "seed"},
		{Role: models.RoleUser, Content: "q"},
		{Role: models.RoleAssistant, Content: "a"},
	}, assembler.EmptyBundle{}, nil)

	require.Len(t, model.gotMessages, 4)
	assert.Equal(t, llms.ChatMessageTypeSystem, model.gotMessages[0].Role)
	assert.Equal(t, llms.ChatMessageTypeSystem, model.gotMessages[1].Role)
	assert.Equal(t, llms.ChatMessageTypeHuman, model.gotMessages[2].Role)
	assert.Equal(t, llms.ChatMessageTypeAI, model.gotMessages[3].Role)
}

func TestSystemPromptPerBundle(t *testing.T) {
	triage := buildSystemPrompt(assembler.TriageBundle{
		Departments: []models.Department{{ID: "d1", Name: "神经内科"}},
		Doctors:     []models.Doctor{{Name: "王医生", DepartmentID: "d1"}},
	})
	assert.Contains(t, triage, "分诊")
	assert.Contains(t, triage, "神经内科")
	assert.Contains(t, triage, "王医生")

	report := buildSystemPrompt(assembler.ReportBundle{ReportRef: "r1", Text: "白细胞 12.3"})
	assert.Contains(t, report, "报告")
	assert.Contains(t, report, "白细胞 12.3")

	empty := buildSystemPrompt(assembler.EmptyBundle{})
	assert.Contains(t, empty, "预问诊")
}
