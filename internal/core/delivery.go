package core

import (
	"context"
	"fmt"
	"unicode/utf8"

	"github.com/vovakirdan/medchat-server/internal/audit"
	"github.com/vovakirdan/medchat-server/internal/store"
)

const encryptedPreview = "[encrypted message]"

func (h *Hub) handleSendMessage(ctx context.Context, c *Client, cmd *Command) (*Ack, error) {
	conv, err := h.authorize(ctx, c, cmd.ConversationID)
	if err != nil {
		return nil, err
	}
	if !trimmed(cmd.Content) && cmd.AttachmentURL == "" {
		return nil, fmt.Errorf("%w: content is required", ErrBadRequest)
	}

	msg := &store.Message{
		ConversationID: conv.ID,
		SenderID:       c.UserID(),
		SenderType:     store.SenderUser,
		Content:        cmd.Content,
		IsEncrypted:    cmd.Encrypted,
		ReplyToID:      cmd.ReplyToID,
	}
	if cmd.AttachmentURL != "" {
		msg.Attachments = []string{cmd.AttachmentURL}
	}
	if err := h.store.CreateMessage(ctx, msg); err != nil {
		return nil, fmt.Errorf("store message: %w", err)
	}

	view := newView(msg, c.Identity.Username)
	h.rooms.Broadcast(ConversationRoom(conv.ID), &Event{
		Kind:           EventNewMessage,
		ConversationID: conv.ID,
		Message:        view,
	}, "")

	h.bestEffort("unread update", func() error {
		unread, err := h.store.TouchConversation(ctx, conv.ID, preview(msg), 1)
		if err != nil {
			return err
		}
		recipient := conv.Counterpart(c.UserID())
		if recipient != "" && h.presence.IsOnline(recipient) {
			h.rooms.Broadcast(PersonalRoom(recipient), &Event{
				Kind:           EventUnreadUpdate,
				ConversationID: conv.ID,
				UnreadCount:    unread,
			}, "")
		}
		return nil
	})

	h.record(ctx, c, audit.Event{
		Action:     audit.ActionMessageSent,
		Resource:   "message",
		ResourceID: msg.ID,
		Success:    true,
		Metadata:   map[string]any{"conversationId": conv.ID, "encrypted": msg.IsEncrypted},
	})

	return &Ack{ConversationID: conv.ID, Message: view}, nil
}

func (h *Hub) handleMarkDelivered(ctx context.Context, c *Client, cmd *Command) (*Ack, error) {
	conv, err := h.authorize(ctx, c, cmd.ConversationID)
	if err != nil {
		return nil, err
	}

	n, err := h.advance(ctx, conv.ID, c.UserID(), store.StatusSent, store.StatusDelivered)
	if err != nil {
		return nil, err
	}
	if n > 0 {
		h.rooms.Broadcast(ConversationRoom(conv.ID), &Event{
			Kind:           EventMessageStatus,
			ConversationID: conv.ID,
			Status:         store.StatusDelivered,
		}, "")
	}
	return &Ack{ConversationID: conv.ID, Updated: n}, nil
}

// handleMarkRead moves the counterpart's messages to read. Messages still in
// sent pass through delivered so no edge of the status machine is skipped.
// The unread counter is only reset once the statuses are stored.
func (h *Hub) handleMarkRead(ctx context.Context, c *Client, cmd *Command) (*Ack, error) {
	conv, err := h.authorize(ctx, c, cmd.ConversationID)
	if err != nil {
		return nil, err
	}

	if _, err := h.advance(ctx, conv.ID, c.UserID(), store.StatusSent, store.StatusDelivered); err != nil {
		return nil, err
	}
	n, err := h.advance(ctx, conv.ID, c.UserID(), store.StatusDelivered, store.StatusRead)
	if err != nil {
		return nil, err
	}
	if err := h.store.ResetUnread(ctx, conv.ID); err != nil {
		return nil, fmt.Errorf("reset unread: %w", err)
	}

	if n > 0 {
		h.rooms.Broadcast(ConversationRoom(conv.ID), &Event{
			Kind:           EventMessageStatus,
			ConversationID: conv.ID,
			Status:         store.StatusRead,
		}, "")
	}
	h.rooms.Broadcast(PersonalRoom(c.UserID()), &Event{
		Kind:           EventUnreadCleared,
		ConversationID: conv.ID,
	}, "")
	return &Ack{ConversationID: conv.ID, Updated: n}, nil
}

// advance applies one edge of the status machine to every message in the
// conversation not sent by reader.
func (h *Hub) advance(ctx context.Context, conversationID, reader string, from, to store.MessageStatus) (int64, error) {
	if err := checkTransition(from, to); err != nil {
		return 0, err
	}
	n, err := h.store.UpdateMessageStatus(ctx, conversationID, reader, []store.MessageStatus{from}, to)
	if err != nil {
		return 0, fmt.Errorf("mark %s: %w", to, err)
	}
	return n, nil
}

func (h *Hub) handleJoin(ctx context.Context, c *Client, cmd *Command) (*Ack, error) {
	conv, err := h.authorize(ctx, c, cmd.ConversationID)
	if err != nil {
		return nil, err
	}
	if h.rooms.Join(c, ConversationRoom(conv.ID)) {
		h.log.Debug().Str("conn_id", c.ID).Str("conversation_id", conv.ID).Msg("joined conversation")
	}
	return &Ack{ConversationID: conv.ID}, nil
}

func (h *Hub) handleLeave(_ context.Context, c *Client, cmd *Command) (*Ack, error) {
	if cmd.ConversationID == "" {
		return nil, fmt.Errorf("%w: conversationId is required", ErrBadRequest)
	}
	h.rooms.Leave(c, ConversationRoom(cmd.ConversationID))
	return &Ack{ConversationID: cmd.ConversationID}, nil
}

func preview(msg *store.Message) string {
	if msg.IsEncrypted {
		return encryptedPreview
	}
	text := msg.Content
	if text == "" && len(msg.Attachments) > 0 {
		return "[attachment]"
	}
	if utf8.RuneCountInString(text) <= previewLimit {
		return text
	}
	return string([]rune(text)[:previewLimit])
}
