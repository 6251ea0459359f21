package core

import (
	"context"

	"github.com/vovakirdan/medchat-server/internal/ai"
	"github.com/vovakirdan/medchat-server/internal/audit"
	"github.com/vovakirdan/medchat-server/internal/store"
)

// Persistence is the slice of the store the hub needs.
type Persistence interface {
	GetConversation(ctx context.Context, id string) (*store.Conversation, error)
	ListConversations(ctx context.Context, userID string) ([]*store.Conversation, error)
	CreateMessage(ctx context.Context, msg *store.Message) error
	TouchConversation(ctx context.Context, id, preview string, unreadDelta int) (int, error)
	ResetUnread(ctx context.Context, id string) error
	UpdateMessageStatus(ctx context.Context, conversationID, excludeSenderID string, from []store.MessageStatus, to store.MessageStatus) (int64, error)
}

// Responder answers assistant queries.
type Responder interface {
	Respond(ctx context.Context, req ai.Request) (string, error)
}

// Auditor records security relevant actions.
type Auditor interface {
	Record(ctx context.Context, ev audit.Event) error
}

type nopAuditor struct{}

func (nopAuditor) Record(context.Context, audit.Event) error { return nil }
