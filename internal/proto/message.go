package proto

import (
	"encoding/json"
	"strings"
)

// Inbound is the envelope for messages coming from the client.
type Inbound struct {
	Type string          `json:"type"`
	ID   int64           `json:"id,omitempty"`
	Data json.RawMessage `json:"data"`
}

const (
	ProtocolVersion = 1

	InboundTypeHello             = "hello"
	InboundTypeSendMessage       = "send_message"
	InboundTypeSendAIMessage     = "send_ai_message"
	InboundTypeTyping            = "typing"
	InboundTypeJoinConversation  = "join_conversation"
	InboundTypeLeaveConversation = "leave_conversation"
	InboundTypeMarkRead          = "mark_read"
	InboundTypeMarkDelivered     = "mark_delivered"

	OutboundTypeEvent = "event"
	OutboundTypeAck   = "ack"
)

// HelloData introduces the client when no credential came with the upgrade.
type HelloData struct {
	Token    string `json:"token"`
	Protocol int    `json:"protocol,omitempty"`
}

// SendMessageData is a chat message from the client.
type SendMessageData struct {
	ConversationID string `json:"conversationId"`
	Content        string `json:"content"`
	Encrypted      bool   `json:"encrypted,omitempty"`
	ReplyToID      string `json:"replyToId,omitempty"`
	AttachmentURL  string `json:"attachmentUrl,omitempty"`
}

// SendAIMessageData is a question for the assistant.
type SendAIMessageData struct {
	ConversationID string `json:"conversationId"`
	Content        string `json:"content"`
	SystemPrompt   string `json:"systemPrompt,omitempty"`
}

// TypingData toggles a typing indicator.
type TypingData struct {
	ConversationID string `json:"conversationId"`
	IsTyping       bool   `json:"isTyping"`
}

// ConversationRef names a conversation. On the wire it is either a bare
// string or an object with a conversationId field.
type ConversationRef struct {
	ConversationID string `json:"conversationId"`
}

// UnmarshalJSON accepts both accepted shapes.
func (r *ConversationRef) UnmarshalJSON(data []byte) error {
	if trimmed := strings.TrimSpace(string(data)); strings.HasPrefix(trimmed, `"`) {
		return json.Unmarshal(data, &r.ConversationID)
	}
	type plain ConversationRef
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*r = ConversationRef(p)
	return nil
}

// Outbound is the envelope for messages sent to the client.
type Outbound struct {
	Type  string `json:"type"`
	ID    int64  `json:"id,omitempty"`
	Event string `json:"event,omitempty"`
	Data  any    `json:"data,omitempty"`
}

// Message is a persisted message as delivered to clients.
type Message struct {
	ID             string   `json:"id"`
	ConversationID string   `json:"conversationId"`
	SenderID       string   `json:"senderId,omitempty"`
	SenderType     string   `json:"senderType"`
	SenderUsername string   `json:"senderUsername"`
	Content        string   `json:"content"`
	IsEncrypted    bool     `json:"isEncrypted"`
	Status         string   `json:"status"`
	ReplyToID      string   `json:"replyToId,omitempty"`
	Attachments    []string `json:"attachments,omitempty"`
	AIModel        string   `json:"aiModel,omitempty"`
	Anonymized     bool     `json:"anonymized,omitempty"`
	CreatedAt      string   `json:"createdAt"`
	ReadAt         string   `json:"readAt,omitempty"`
}

// EventAuthError tells the client its credential was rejected.
type EventAuthError struct {
	Message string `json:"message"`
}

// EventUserOnline announces a user's first connection.
type EventUserOnline struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
}

// EventUserOffline announces that a user's last connection closed.
type EventUserOffline struct {
	UserID string `json:"userId"`
}

// EventUnreadUpdate carries a conversation's unread counter.
type EventUnreadUpdate struct {
	ConversationID string `json:"conversationId"`
	UnreadCount    int    `json:"unreadCount"`
}

// EventAITyping signals the assistant's typing state.
type EventAITyping struct {
	ConversationID string `json:"conversationId"`
	IsTyping       bool   `json:"isTyping"`
}

// EventUserTyping relays a human typing indicator.
type EventUserTyping struct {
	UserID         string `json:"userId"`
	Username       string `json:"username"`
	ConversationID string `json:"conversationId"`
	IsTyping       bool   `json:"isTyping"`
}

// EventUnreadCleared confirms a conversation was read.
type EventUnreadCleared struct {
	ConversationID string `json:"conversationId"`
}

// EventMessageStatus reports a bulk status change.
type EventMessageStatus struct {
	ConversationID string `json:"conversationId"`
	Status         string `json:"status"`
}

// AckData is the payload of an acknowledgement. Error is set on failure;
// otherwise Success is true and the remaining fields depend on the command.
type AckData struct {
	Success        bool     `json:"success,omitempty"`
	Error          string   `json:"error,omitempty"`
	Code           string   `json:"code,omitempty"`
	ConversationID string   `json:"conversationId,omitempty"`
	Message        *Message `json:"message,omitempty"`
	UserMessage    *Message `json:"userMessage,omitempty"`
	AIResponse     *Message `json:"aiResponse,omitempty"`
	Updated        *int64   `json:"updated,omitempty"`
}
