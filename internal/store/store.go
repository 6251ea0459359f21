package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// ConversationType distinguishes human-to-human from human-to-AI conversations.
type ConversationType string

const (
	ConversationUserToUser ConversationType = "user_to_user"
	ConversationUserToAI   ConversationType = "user_to_ai"
)

// Conversation is a persisted conversation.
// User-to-user conversations use Participant1ID/Participant2ID,
// user-to-AI conversations use UserID and AIModel.
type Conversation struct {
	ID                 string
	Type               ConversationType
	Title              string
	Participant1ID     string
	Participant2ID     string
	UserID             string
	AIModel            string
	CaseID             string
	Context            string
	LastMessagePreview string
	IsActive           bool
	UnreadCount        int
	LastMessageAt      *time.Time
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// HasParticipant reports whether userID takes part in the conversation.
func (c *Conversation) HasParticipant(userID string) bool {
	if userID == "" {
		return false
	}
	return c.Participant1ID == userID || c.Participant2ID == userID || c.UserID == userID
}

// Counterpart returns the other human of a user-to-user conversation,
// or "" when there is none (AI conversations, or userID not a participant).
func (c *Conversation) Counterpart(userID string) string {
	if c.Type != ConversationUserToUser {
		return ""
	}
	switch userID {
	case c.Participant1ID:
		return c.Participant2ID
	case c.Participant2ID:
		return c.Participant1ID
	default:
		return ""
	}
}

// SenderType identifies who authored a message.
type SenderType string

const (
	SenderUser   SenderType = "user"
	SenderAI     SenderType = "ai"
	SenderSystem SenderType = "system"
)

// MessageStatus is the delivery lifecycle state of a message.
type MessageStatus string

const (
	StatusSent      MessageStatus = "sent"
	StatusDelivered MessageStatus = "delivered"
	StatusRead      MessageStatus = "read"
	StatusFailed    MessageStatus = "failed"
)

// Message represents a persisted chat message.
type Message struct {
	ID             string
	ConversationID string
	SenderID       string // empty for AI and system messages
	SenderType     SenderType
	Content        string
	IsEncrypted    bool
	Status         MessageStatus
	ReplyToID      string
	Attachments    []string
	AIModel        string
	Anonymized     bool
	ReadAt         *time.Time
	CreatedAt      time.Time
}

// AuditEntry is one link of the hash-chained audit trail.
type AuditEntry struct {
	ID           string
	Timestamp    time.Time
	Action       string
	UserID       string
	Username     string
	Resource     string
	ResourceID   string
	IPAddress    string
	Success      bool
	ErrorMessage string
	Metadata     map[string]any
	PreviousHash string
	CurrentHash  string
}

// ConversationStore handles conversation persistence.
type ConversationStore interface {
	// CreateConversation inserts a conversation; ID and timestamps are filled in.
	CreateConversation(ctx context.Context, conv *Conversation) error

	// GetConversation retrieves a conversation by ID or returns ErrNotFound.
	GetConversation(ctx context.Context, id string) (*Conversation, error)

	// FindDirectConversation returns the active user-to-user conversation
	// between two users in either direction, or ErrNotFound.
	FindDirectConversation(ctx context.Context, userA, userB string) (*Conversation, error)

	// ListConversations lists active conversations the user participates in,
	// most recent activity first.
	ListConversations(ctx context.Context, userID string) ([]*Conversation, error)

	// TouchConversation records a new message: bumps last_message_at, stores the
	// preview and adds unreadDelta to the unread counter. Returns the new counter.
	TouchConversation(ctx context.Context, id, preview string, unreadDelta int) (int, error)

	// ResetUnread sets the unread counter to zero.
	ResetUnread(ctx context.Context, id string) error
}

// MessageStore handles message persistence.
type MessageStore interface {
	// CreateMessage inserts a message; ID and CreatedAt are filled in.
	CreateMessage(ctx context.Context, msg *Message) error

	// ListMessages returns up to limit messages, oldest first, skipping the newest offset messages.
	ListMessages(ctx context.Context, conversationID string, limit, offset int) ([]*Message, error)

	// UpdateMessageStatus moves every message of the conversation whose status is one of from
	// and whose sender is not excludeSenderID to status to. Returns the number of rows changed.
	UpdateMessageStatus(ctx context.Context, conversationID, excludeSenderID string, from []MessageStatus, to MessageStatus) (int64, error)
}

// AuditStore persists the audit chain.
type AuditStore interface {
	// AppendAudit inserts an entry; callers compute the hashes.
	AppendAudit(ctx context.Context, entry *AuditEntry) error

	// LastAudit returns the newest entry or ErrNotFound when the chain is empty.
	LastAudit(ctx context.Context) (*AuditEntry, error)

	// ListAudit returns every entry in insertion order.
	ListAudit(ctx context.Context) ([]*AuditEntry, error)
}

// Store aggregates all storage interfaces.
type Store interface {
	ConversationStore
	MessageStore
	AuditStore

	// Close closes the underlying database connection.
	Close() error
}
