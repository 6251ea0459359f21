package core

// CommandKind describes what the client wants to do.
type CommandKind int

const (
	// CommandSendMessage persists and fans out a human message.
	CommandSendMessage CommandKind = iota
	// CommandSendAIMessage runs a full exchange with the AI assistant.
	CommandSendAIMessage
	// CommandTyping relays a typing indicator to the rest of the conversation.
	CommandTyping
	// CommandJoinConversation subscribes the connection to a conversation room.
	CommandJoinConversation
	// CommandLeaveConversation unsubscribes the connection from a conversation room.
	CommandLeaveConversation
	// CommandMarkRead marks the counterpart's messages as read.
	CommandMarkRead
	// CommandMarkDelivered marks the counterpart's messages as delivered.
	CommandMarkDelivered
)

var commandNames = map[CommandKind]string{
	CommandSendMessage:       "send_message",
	CommandSendAIMessage:     "send_ai_message",
	CommandTyping:            "typing",
	CommandJoinConversation:  "join_conversation",
	CommandLeaveConversation: "leave_conversation",
	CommandMarkRead:          "mark_read",
	CommandMarkDelivered:     "mark_delivered",
}

func (k CommandKind) String() string {
	if name, ok := commandNames[k]; ok {
		return name
	}
	return "unknown"
}

// Acknowledged reports whether the caller expects an ack for this kind.
func (k CommandKind) Acknowledged() bool {
	return k != CommandTyping
}

// Command represents an action requested by a client.
type Command struct {
	Kind CommandKind
	// AckID is echoed back in the ack so the client can correlate it.
	AckID          int64
	ConversationID string
	Content        string
	Encrypted      bool
	ReplyToID      string
	AttachmentURL  string
	SystemPrompt   string
	IsTyping       bool
}
