package core

import (
	"context"
	"errors"
	"fmt"

	"github.com/vovakirdan/medchat-server/internal/ai"
	"github.com/vovakirdan/medchat-server/internal/audit"
	"github.com/vovakirdan/medchat-server/internal/store"
)

func (h *Hub) handleSendAIMessage(ctx context.Context, c *Client, cmd *Command) (*Ack, error) {
	conv, err := h.authorize(ctx, c, cmd.ConversationID)
	if err != nil {
		return nil, err
	}
	if conv.Type != store.ConversationUserToAI {
		return nil, fmt.Errorf("%w: not an AI conversation", ErrForbidden)
	}
	if !trimmed(cmd.Content) {
		return nil, fmt.Errorf("%w: content is required", ErrBadRequest)
	}

	question := &store.Message{
		ConversationID: conv.ID,
		SenderID:       c.UserID(),
		SenderType:     store.SenderUser,
		Content:        cmd.Content,
	}
	if err := h.store.CreateMessage(ctx, question); err != nil {
		return nil, fmt.Errorf("store message: %w", err)
	}
	questionView := newView(question, c.Identity.Username)
	room := ConversationRoom(conv.ID)
	h.rooms.Broadcast(room, &Event{Kind: EventNewMessage, ConversationID: conv.ID, Message: questionView}, "")

	reply, err := h.produceReply(ctx, c, conv, cmd)
	if err != nil {
		return nil, err
	}
	replyView := newView(reply, h.opts.AIDisplayName)
	h.rooms.Broadcast(room, &Event{Kind: EventNewMessage, ConversationID: conv.ID, Message: replyView}, "")

	h.bestEffort("conversation preview", func() error {
		_, err := h.store.TouchConversation(ctx, conv.ID, preview(reply), 0)
		return err
	})
	h.record(ctx, c, audit.Event{
		Action:     audit.ActionAIMessageSent,
		Resource:   "message",
		ResourceID: reply.ID,
		Success:    true,
		Metadata:   map[string]any{"conversationId": conv.ID, "aiModel": conv.AIModel},
	})

	return &Ack{ConversationID: conv.ID, UserMessage: questionView, AIResponse: replyView}, nil
}

// produceReply brackets the model call and the reply's persistence with
// ai_typing indicators. The closing indicator is sent on every path.
func (h *Hub) produceReply(ctx context.Context, c *Client, conv *store.Conversation, cmd *Command) (*store.Message, error) {
	h.signalAITyping(conv.ID, true)
	defer h.signalAITyping(conv.ID, false)

	answer := h.ask(ctx, ai.Request{
		ConversationID: conv.ID,
		UserID:         c.UserID(),
		Query:          cmd.Content,
		Context:        conv.Context,
		SystemPrompt:   cmd.SystemPrompt,
	})

	reply := &store.Message{
		ConversationID: conv.ID,
		SenderType:     store.SenderAI,
		Content:        answer,
		AIModel:        conv.AIModel,
		Anonymized:     true,
	}
	if err := h.store.CreateMessage(ctx, reply); err != nil {
		return nil, fmt.Errorf("store ai reply: %w", err)
	}
	return reply, nil
}

type answer struct {
	text string
	err  error
}

// ask queries the responder within the configured deadline. Any failure
// yields the fallback text; it never fails the exchange.
func (h *Hub) ask(ctx context.Context, req ai.Request) string {
	qctx, cancel := context.WithTimeout(ctx, h.opts.AITimeout)
	defer cancel()

	done := make(chan answer, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- answer{err: fmt.Errorf("responder panicked: %v", r)}
			}
		}()
		text, err := h.ai.Respond(qctx, req)
		done <- answer{text: text, err: err}
	}()

	var err error
	select {
	case res := <-done:
		if res.err == nil && trimmed(res.text) {
			return res.text
		}
		err = res.err
		if err == nil {
			err = ai.ErrEmptyAnswer
		}
		if errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("%w: %v", ErrUpstreamTimeout, err)
		} else {
			err = fmt.Errorf("%w: %v", ErrUpstream, err)
		}
	case <-qctx.Done():
		err = fmt.Errorf("%w: %v", ErrUpstreamTimeout, qctx.Err())
	}

	h.log.Warn().
		Err(err).
		Str("conversation_id", req.ConversationID).
		Bool("timeout", errors.Is(err, ErrUpstreamTimeout)).
		Msg("ai responder failed, using fallback")
	return h.opts.AIFallback
}
