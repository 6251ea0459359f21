package core

import "github.com/vovakirdan/medchat-server/internal/store"

// EventKind is a notification the core emits to clients.
type EventKind int

const (
	// EventAuthError tells a connection its credential was rejected.
	EventAuthError EventKind = iota
	// EventUserOnline announces a user's first live connection.
	EventUserOnline
	// EventUserOffline announces that a user's last connection closed.
	EventUserOffline
	// EventNewMessage carries a persisted message to a conversation room.
	EventNewMessage
	// EventUnreadUpdate pushes a new unread counter to the recipient.
	EventUnreadUpdate
	// EventAITyping signals that the assistant is composing a reply.
	EventAITyping
	// EventUserTyping relays a human typing indicator.
	EventUserTyping
	// EventUnreadCleared confirms to the reader that a conversation is read.
	EventUnreadCleared
	// EventMessageStatus reports a bulk status change in a conversation.
	EventMessageStatus
	// EventAck answers a single command.
	EventAck
)

var eventNames = map[EventKind]string{
	EventAuthError:     "auth_error",
	EventUserOnline:    "user_online",
	EventUserOffline:   "user_offline",
	EventNewMessage:    "new_message",
	EventUnreadUpdate:  "unread_update",
	EventAITyping:      "ai_typing",
	EventUserTyping:    "user_typing",
	EventUnreadCleared: "unread_cleared",
	EventMessageStatus: "message_status",
	EventAck:           "ack",
}

func (k EventKind) String() string {
	if name, ok := eventNames[k]; ok {
		return name
	}
	return "unknown"
}

// Event is sent to clients to describe what happened in the system.
type Event struct {
	Kind           EventKind
	ConversationID string
	User           Identity
	Message        *MessageView
	IsTyping       bool
	UnreadCount    int
	Status         store.MessageStatus
	Error          *CoreError
	Ack            *Ack
}

// Ack is the reply to one acknowledged command. Exactly one of Err or the
// success fields is meaningful.
type Ack struct {
	ID      int64
	Command CommandKind
	Err     *CoreError

	ConversationID string
	Message        *MessageView
	UserMessage    *MessageView
	AIResponse     *MessageView
	Updated        int64
}

// OK reports whether the command succeeded.
func (a *Ack) OK() bool {
	return a.Err == nil
}
