package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/medchat-server/internal/ai"
	"github.com/vovakirdan/medchat-server/internal/audit"
	"github.com/vovakirdan/medchat-server/internal/config"
	"github.com/vovakirdan/medchat-server/internal/store"
)

const (
	defaultAITimeout   = 20 * time.Second
	defaultAIName      = "AI Assistant"
	previewLimit       = 100
	sideEffectDeadline = 5 * time.Second
)

// Options tunes the hub.
type Options struct {
	AITimeout     time.Duration
	AIFallback    string
	AIDisplayName string
}

func (o Options) withDefaults() Options {
	if o.AITimeout <= 0 {
		o.AITimeout = defaultAITimeout
	}
	if o.AIFallback == "" {
		o.AIFallback = config.DefaultFallbackMessage
	}
	if o.AIDisplayName == "" {
		o.AIDisplayName = defaultAIName
	}
	return o
}

type commandHandler func(ctx context.Context, c *Client, cmd *Command) (*Ack, error)

// Hub orchestrates presence, room membership and message delivery for all
// live connections. Each connection's commands are handled sequentially by
// Serve; different connections run concurrently.
type Hub struct {
	store    Persistence
	ai       Responder
	audit    Auditor
	presence *Presence
	rooms    *Rooms
	opts     Options
	log      *zerolog.Logger
	handlers map[CommandKind]commandHandler

	// presenceMu keeps a presence transition and its announcement together so
	// observers see user_online/user_offline in registry order.
	presenceMu sync.Mutex
}

// NewHub wires the hub. responder and auditor may be nil.
func NewHub(st Persistence, responder Responder, auditor Auditor, opts Options, logger *zerolog.Logger) *Hub {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	if responder == nil {
		responder = ai.Disabled{}
	}
	if auditor == nil {
		auditor = nopAuditor{}
	}
	h := &Hub{
		store:    st,
		ai:       responder,
		audit:    auditor,
		presence: NewPresence(),
		rooms:    NewRooms(logger),
		opts:     opts.withDefaults(),
		log:      logger,
	}
	h.handlers = map[CommandKind]commandHandler{
		CommandSendMessage:       h.handleSendMessage,
		CommandSendAIMessage:     h.handleSendAIMessage,
		CommandTyping:            h.handleTyping,
		CommandJoinConversation:  h.handleJoin,
		CommandLeaveConversation: h.handleLeave,
		CommandMarkRead:          h.handleMarkRead,
		CommandMarkDelivered:     h.handleMarkDelivered,
	}
	return h
}

// Presence exposes the presence registry.
func (h *Hub) Presence() *Presence {
	return h.presence
}

// Rooms exposes the room membership index.
func (h *Hub) Rooms() *Rooms {
	return h.rooms
}

// IsOnline reports whether the user has any live connection.
func (h *Hub) IsOnline(userID string) bool {
	return h.presence.IsOnline(userID)
}

// Attach registers an authenticated connection: presence first, then the
// personal room and the rooms of every conversation the user takes part in.
func (h *Hub) Attach(ctx context.Context, c *Client) {
	h.presenceMu.Lock()
	if change, first := h.presence.Register(c.ID, c.Identity); first {
		h.rooms.BroadcastAll(&Event{Kind: EventUserOnline, User: change.User}, c.ID)
	}
	h.presenceMu.Unlock()

	h.rooms.Add(c)
	h.rooms.JoinPersonalRoom(c)

	convs, err := h.store.ListConversations(ctx, c.UserID())
	if err != nil {
		h.log.Warn().Err(err).Str("user_id", c.UserID()).Msg("list conversations on connect")
	} else {
		ids := make([]string, 0, len(convs))
		for _, conv := range convs {
			ids = append(ids, conv.ID)
		}
		h.rooms.JoinConversationRooms(c, ids)
	}

	h.log.Info().
		Str("conn_id", c.ID).
		Str("user_id", c.UserID()).
		Int("rooms", len(h.rooms.RoomsOf(c.ID))).
		Msg("client attached")
	h.record(ctx, c, audit.Event{Action: audit.ActionConnect, Success: true,
		Metadata: map[string]any{"connId": c.ID}})
}

// Detach forgets a closed connection. It is safe to call more than once.
func (h *Hub) Detach(ctx context.Context, c *Client) {
	if _, tracked := h.rooms.Remove(c); !tracked {
		return
	}
	h.presenceMu.Lock()
	change, last := h.presence.Unregister(c.ID)
	if last {
		h.rooms.BroadcastAll(&Event{Kind: EventUserOffline, User: change.User}, "")
	}
	h.presenceMu.Unlock()

	h.log.Info().
		Str("conn_id", c.ID).
		Str("user_id", c.UserID()).
		Bool("offline", last).
		Msg("client detached")
	h.record(context.WithoutCancel(ctx), c, audit.Event{Action: audit.ActionDisconnect, Success: true,
		Metadata: map[string]any{"connId": c.ID}})
}

// Serve handles c's commands one at a time until ctx is done or Commands is
// closed. Acks are queued on c.Events.
func (h *Hub) Serve(ctx context.Context, c *Client) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case cmd, ok := <-c.Commands:
			if !ok {
				return nil
			}
			ack := h.Dispatch(ctx, c, cmd)
			if ack == nil {
				continue
			}
			if err := c.Deliver(ctx, &Event{Kind: EventAck, Ack: ack}); err != nil {
				return err
			}
		}
	}
}

// Dispatch runs one command and returns the ack for it, or nil when the
// command kind is not acknowledged.
func (h *Hub) Dispatch(ctx context.Context, c *Client, cmd *Command) *Ack {
	handler, ok := h.handlers[cmd.Kind]
	var (
		ack *Ack
		err error
	)
	if ok {
		ack, err = handler(ctx, c, cmd)
	} else {
		err = fmt.Errorf("%w: unsupported command", ErrBadRequest)
	}

	if err != nil {
		ce, known := toCoreError(err)
		ev := h.log.Warn()
		if !known {
			ev = h.log.Error()
		}
		ev.Err(err).
			Str("conn_id", c.ID).
			Str("user_id", c.UserID()).
			Str("command", cmd.Kind.String()).
			Str("conversation_id", cmd.ConversationID).
			Msg("command failed")
		ack = &Ack{Err: ce}
	}
	if !cmd.Kind.Acknowledged() {
		return nil
	}
	if ack == nil {
		ack = &Ack{}
	}
	ack.ID = cmd.AckID
	ack.Command = cmd.Kind
	return ack
}

// authorize loads the conversation and checks that the caller participates.
func (h *Hub) authorize(ctx context.Context, c *Client, conversationID string) (*store.Conversation, error) {
	if conversationID == "" {
		return nil, fmt.Errorf("%w: conversationId is required", ErrBadRequest)
	}
	conv, err := h.store.GetConversation(ctx, conversationID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: conversation %s", ErrNotFound, conversationID)
	}
	if err != nil {
		return nil, fmt.Errorf("load conversation: %w", err)
	}
	if !conv.IsActive {
		return nil, fmt.Errorf("%w: conversation %s", ErrNotFound, conversationID)
	}
	if !conv.HasParticipant(c.UserID()) {
		return nil, fmt.Errorf("%w: not a participant", ErrForbidden)
	}
	return conv, nil
}

// bestEffort runs an advisory step. Its failure, or panic, is logged and never
// reaches the caller.
func (h *Hub) bestEffort(step string, fn func() error) {
	defer func() {
		if r := recover(); r != nil {
			h.log.Error().Interface("panic", r).Str("step", step).Msg("advisory step panicked")
		}
	}()
	if err := fn(); err != nil {
		h.log.Warn().Err(err).Str("step", step).Msg("advisory step failed")
	}
}

func (h *Hub) record(ctx context.Context, c *Client, ev audit.Event) {
	ev.UserID = c.UserID()
	ev.Username = c.Identity.Username
	ev.IPAddress = c.RemoteAddr
	h.bestEffort("audit "+ev.Action, func() error {
		ctx, cancel := context.WithTimeout(ctx, sideEffectDeadline)
		defer cancel()
		return h.audit.Record(ctx, ev)
	})
}
