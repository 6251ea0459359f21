package ai

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"

	"github.com/vovakirdan/medchat-server/internal/config"
)

type stubModel struct {
	answer  string
	err     error
	prompts []string
	opts    llms.CallOptions
}

func (m *stubModel) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	for _, opt := range options {
		opt(&m.opts)
	}
	for _, msg := range messages {
		for _, part := range msg.Parts {
			if text, ok := part.(llms.TextContent); ok {
				m.prompts = append(m.prompts, text.Text)
			}
		}
	}
	if m.err != nil {
		return nil, m.err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: m.answer}}}, nil
}

func (m *stubModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, m, prompt, options...)
}

func TestLLMResponderBuildsAnonymizedPrompt(t *testing.T) {
	model := &stubModel{answer: "  Keep the patient hydrated.\n"}
	r := NewLLMResponder(model, Settings{SystemPrompt: "default system", Temperature: 0.2, Anonymize: true}, nil)

	answer, err := r.Respond(context.Background(), Request{
		Query:   "Patient reachable at jane@example.org, MRN 12345, fever",
		Context: "case 7",
	})
	require.NoError(t, err)
	require.Equal(t, "Keep the patient hydrated.", answer)

	require.Len(t, model.prompts, 1)
	prompt := model.prompts[0]
	require.True(t, strings.HasPrefix(prompt, "default system"))
	require.Contains(t, prompt, "Context: case 7")
	require.Contains(t, prompt, "[EMAIL]")
	require.Contains(t, prompt, "[MRN]")
	require.NotContains(t, prompt, "jane@example.org")
	require.InDelta(t, 0.2, model.opts.Temperature, 1e-9)
}

func TestLLMResponderRequestSystemPromptWins(t *testing.T) {
	model := &stubModel{answer: "ok"}
	r := NewLLMResponder(model, Settings{SystemPrompt: "default system"}, nil)

	_, err := r.Respond(context.Background(), Request{Query: "q", SystemPrompt: "custom"})
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(model.prompts[0], "custom"))
	require.NotContains(t, model.prompts[0], "default system")
}

func TestLLMResponderErrors(t *testing.T) {
	boom := errors.New("connection refused")
	r := NewLLMResponder(&stubModel{err: boom}, Settings{}, nil)
	_, err := r.Respond(context.Background(), Request{Query: "q"})
	require.ErrorIs(t, err, boom)

	r = NewLLMResponder(&stubModel{answer: " \n"}, Settings{}, nil)
	_, err = r.Respond(context.Background(), Request{Query: "q"})
	require.ErrorIs(t, err, ErrEmptyAnswer)
}

func TestNewFromConfig(t *testing.T) {
	r, err := NewFromConfig(config.AIConfig{Provider: "none"}, nil)
	require.NoError(t, err)
	_, err = r.Respond(context.Background(), Request{Query: "q"})
	require.ErrorIs(t, err, ErrDisabled)

	r, err = NewFromConfig(config.AIConfig{Provider: "ollama", BaseURL: "http://127.0.0.1:11434", Model: "biomistral-7b"}, nil)
	require.NoError(t, err)
	require.IsType(t, &LLMResponder{}, r)

	_, err = NewFromConfig(config.AIConfig{Provider: "bard"}, nil)
	require.Error(t, err)
}
