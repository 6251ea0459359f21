package ai

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/vovakirdan/medchat-server/internal/config"
)

// Settings tunes prompt construction and generation.
type Settings struct {
	SystemPrompt string
	Temperature  float64
	MaxTokens    int
	Anonymize    bool
}

// LLMResponder answers through a langchaingo model.
type LLMResponder struct {
	model    llms.Model
	settings Settings
	log      *zerolog.Logger
}

// NewLLMResponder wraps model.
func NewLLMResponder(model llms.Model, settings Settings, logger *zerolog.Logger) *LLMResponder {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &LLMResponder{model: model, settings: settings, log: logger}
}

// Respond implements Responder.
func (r *LLMResponder) Respond(ctx context.Context, req Request) (string, error) {
	prompt := r.prompt(req)

	opts := []llms.CallOption{llms.WithTemperature(r.settings.Temperature)}
	if r.settings.MaxTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(r.settings.MaxTokens))
	}

	r.log.Debug().
		Str("conversation_id", req.ConversationID).
		Int("prompt_len", len(prompt)).
		Msg("querying model")

	answer, err := llms.GenerateFromSinglePrompt(ctx, r.model, prompt, opts...)
	if err != nil {
		return "", fmt.Errorf("generate: %w", err)
	}
	answer = strings.TrimSpace(answer)
	if answer == "" {
		return "", ErrEmptyAnswer
	}
	return answer, nil
}

func (r *LLMResponder) prompt(req Request) string {
	system := req.SystemPrompt
	if system == "" {
		system = r.settings.SystemPrompt
	}
	query, extra := req.Query, req.Context
	if r.settings.Anonymize {
		query = Anonymize(query)
		extra = Anonymize(extra)
	}

	var b strings.Builder
	if system != "" {
		b.WriteString(system)
		b.WriteString("\n\n")
	}
	if extra != "" {
		b.WriteString("Context: ")
		b.WriteString(extra)
		b.WriteString("\n\n")
	}
	b.WriteString("Question: ")
	b.WriteString(query)
	return b.String()
}

// NewFromConfig builds the responder selected by cfg.Provider.
func NewFromConfig(cfg config.AIConfig, logger *zerolog.Logger) (Responder, error) {
	settings := Settings{
		SystemPrompt: cfg.SystemPrompt,
		Temperature:  cfg.Temperature,
		Anonymize:    true,
	}

	var (
		model llms.Model
		err   error
	)
	switch cfg.Provider {
	case "", "none":
		return Disabled{}, nil
	case "ollama":
		model, err = ollama.New(
			ollama.WithServerURL(cfg.BaseURL),
			ollama.WithModel(cfg.Model),
		)
	case "openai":
		opts := []openai.Option{
			openai.WithModel(cfg.Model),
			openai.WithToken(cfg.APIKey),
		}
		if cfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
		}
		model, err = openai.New(opts...)
	default:
		return nil, fmt.Errorf("unknown ai provider %q", cfg.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("init %s model: %w", cfg.Provider, err)
	}
	return NewLLMResponder(model, settings, logger), nil
}
