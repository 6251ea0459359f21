// Package ai produces assistant replies for AI conversations.
package ai

import (
	"context"
	"errors"
)

var (
	// ErrDisabled is returned when no AI provider is configured.
	ErrDisabled = errors.New("ai: responder disabled")
	// ErrEmptyAnswer is returned when the model answered with whitespace only.
	ErrEmptyAnswer = errors.New("ai: empty answer")
)

// Request is one question put to the assistant.
type Request struct {
	ConversationID string
	UserID         string
	Query          string
	Context        string
	SystemPrompt   string
}

// Responder answers assistant queries. Implementations must honour ctx.
type Responder interface {
	Respond(ctx context.Context, req Request) (string, error)
}

// Disabled always fails so callers fall back to their canned reply.
type Disabled struct{}

// Respond implements Responder.
func (Disabled) Respond(context.Context, Request) (string, error) {
	return "", ErrDisabled
}
