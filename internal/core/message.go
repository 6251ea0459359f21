package core

import "github.com/vovakirdan/medchat-server/internal/store"

// MessageView is a persisted message enriched for delivery.
type MessageView struct {
	*store.Message
	SenderUsername string
}

func newView(msg *store.Message, sender string) *MessageView {
	return &MessageView{Message: msg, SenderUsername: sender}
}
