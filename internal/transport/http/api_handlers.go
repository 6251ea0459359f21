package http

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/medchat-server/internal/audit"
	"github.com/vovakirdan/medchat-server/internal/core"
	"github.com/vovakirdan/medchat-server/internal/proto"
	"github.com/vovakirdan/medchat-server/internal/store"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

// PresenceChecker reports whether a user has a live connection.
type PresenceChecker interface {
	IsOnline(userID string) bool
}

// APIHandlers provides the REST endpoints around conversations and presence.
type APIHandlers struct {
	store     store.Store
	presence  PresenceChecker
	auditor   core.Auditor
	defaultAI string
	log       *zerolog.Logger
}

// NewAPIHandlers creates a new API handlers instance.
func NewAPIHandlers(st store.Store, presence PresenceChecker, auditor core.Auditor, defaultAIModel string, logger *zerolog.Logger) *APIHandlers {
	return &APIHandlers{
		store:     st,
		presence:  presence,
		auditor:   auditor,
		defaultAI: defaultAIModel,
		log:       logger,
	}
}

// ErrorResponse represents an error response body.
type ErrorResponse struct {
	Error string `json:"error"`
}

// CreateConversationRequest represents the create conversation request body.
type CreateConversationRequest struct {
	Type          string `json:"type"`
	ParticipantID string `json:"participantId"`
	Title         string `json:"title" binding:"max=255"`
	AIModel       string `json:"aiModel"`
	Context       string `json:"context"`
	CaseID        string `json:"caseId"`
}

// ConversationResponse represents a conversation in API responses.
type ConversationResponse struct {
	ID                 string  `json:"id"`
	Type               string  `json:"type"`
	Title              string  `json:"title"`
	Participant1ID     string  `json:"participant1Id,omitempty"`
	Participant2ID     string  `json:"participant2Id,omitempty"`
	UserID             string  `json:"userId,omitempty"`
	AIModel            string  `json:"aiModel,omitempty"`
	CaseID             string  `json:"caseId,omitempty"`
	LastMessagePreview string  `json:"lastMessagePreview,omitempty"`
	LastMessageAt      *string `json:"lastMessageAt,omitempty"`
	UnreadCount        int     `json:"unreadCount"`
	CreatedAt          string  `json:"createdAt"`
}

// PresenceResponse reports a user's online state.
type PresenceResponse struct {
	UserID string `json:"userId"`
	Online bool   `json:"online"`
}

// CreateConversation opens a direct or AI conversation. An existing active
// direct conversation between the same pair is returned instead of a new one.
// POST /api/conversations
func (h *APIHandlers) CreateConversation(c *gin.Context) {
	id, ok := identityFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	var req CreateConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid create conversation request")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	ctx := c.Request.Context()
	conv := &store.Conversation{Title: strings.TrimSpace(req.Title)}

	switch store.ConversationType(req.Type) {
	case store.ConversationUserToAI:
		conv.Type = store.ConversationUserToAI
		conv.UserID = id.UserID
		conv.AIModel = req.AIModel
		if conv.AIModel == "" {
			conv.AIModel = h.defaultAI
		}
		conv.Context = req.Context
		conv.CaseID = req.CaseID
		if conv.Title == "" {
			conv.Title = "AI Assistant"
		}
	case store.ConversationUserToUser, "":
		other := strings.TrimSpace(req.ParticipantID)
		if other == "" || other == id.UserID {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "participantId must name another user"})
			return
		}
		existing, err := h.store.FindDirectConversation(ctx, id.UserID, other)
		if err == nil {
			c.JSON(http.StatusOK, conversationResponse(existing))
			return
		}
		if !errors.Is(err, store.ErrNotFound) {
			h.log.Error().Err(err).Msg("failed to look up conversation")
			c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
			return
		}
		conv.Type = store.ConversationUserToUser
		conv.Participant1ID = id.UserID
		conv.Participant2ID = other
	default:
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "unknown conversation type"})
		return
	}

	if err := h.store.CreateConversation(ctx, conv); err != nil {
		h.log.Error().Err(err).Str("user_id", id.UserID).Msg("failed to create conversation")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	h.recordCreated(c, id, conv)

	h.log.Info().Str("conversation_id", conv.ID).Str("type", string(conv.Type)).Msg("conversation created")
	c.JSON(http.StatusCreated, conversationResponse(conv))
}

func (h *APIHandlers) recordCreated(c *gin.Context, id core.Identity, conv *store.Conversation) {
	if h.auditor == nil {
		return
	}
	if err := h.auditor.Record(c.Request.Context(), audit.Event{
		Action:     audit.ActionConversationCreated,
		UserID:     id.UserID,
		Username:   id.Username,
		Resource:   "conversation",
		ResourceID: conv.ID,
		IPAddress:  c.ClientIP(),
		Success:    true,
		Metadata:   map[string]any{"type": string(conv.Type)},
	}); err != nil {
		h.log.Warn().Err(err).Msg("failed to audit conversation creation")
	}
}

// ListConversations returns the caller's conversations.
// GET /api/conversations
func (h *APIHandlers) ListConversations(c *gin.Context) {
	id, ok := identityFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	convs, err := h.store.ListConversations(c.Request.Context(), id.UserID)
	if err != nil {
		h.log.Error().Err(err).Msg("failed to list conversations")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	resp := make([]ConversationResponse, 0, len(convs))
	for _, conv := range convs {
		resp = append(resp, conversationResponse(conv))
	}
	c.JSON(http.StatusOK, resp)
}

// ListMessages returns a page of history, oldest first.
// GET /api/conversations/:id/messages?limit=&offset=
func (h *APIHandlers) ListMessages(c *gin.Context) {
	id, ok := identityFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	ctx := c.Request.Context()
	conv, err := h.store.GetConversation(ctx, c.Param("id"))
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "conversation not found"})
		return
	}
	if err != nil {
		h.log.Error().Err(err).Msg("failed to load conversation")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}
	if !conv.HasParticipant(id.UserID) {
		c.JSON(http.StatusForbidden, ErrorResponse{Error: "not a participant"})
		return
	}

	limit := queryInt(c, "limit", defaultPageSize)
	if limit <= 0 || limit > maxPageSize {
		limit = defaultPageSize
	}
	offset := queryInt(c, "offset", 0)
	if offset < 0 {
		offset = 0
	}

	msgs, err := h.store.ListMessages(ctx, conv.ID, limit, offset)
	if err != nil {
		h.log.Error().Err(err).Msg("failed to list messages")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	resp := make([]*proto.Message, 0, len(msgs))
	for _, m := range msgs {
		sender := m.SenderID
		if m.SenderType == store.SenderAI {
			sender = "AI Assistant"
		}
		resp = append(resp, messageFromView(&core.MessageView{Message: m, SenderUsername: sender}))
	}
	c.JSON(http.StatusOK, resp)
}

// Presence reports whether a user is online.
// GET /api/presence/:userId
func (h *APIHandlers) Presence(c *gin.Context) {
	userID := c.Param("userId")
	c.JSON(http.StatusOK, PresenceResponse{UserID: userID, Online: h.presence.IsOnline(userID)})
}

func conversationResponse(conv *store.Conversation) ConversationResponse {
	resp := ConversationResponse{
		ID:                 conv.ID,
		Type:               string(conv.Type),
		Title:              conv.Title,
		Participant1ID:     conv.Participant1ID,
		Participant2ID:     conv.Participant2ID,
		UserID:             conv.UserID,
		AIModel:            conv.AIModel,
		CaseID:             conv.CaseID,
		LastMessagePreview: conv.LastMessagePreview,
		UnreadCount:        conv.UnreadCount,
		CreatedAt:          conv.CreatedAt.UTC().Format(time.RFC3339),
	}
	if conv.LastMessageAt != nil {
		at := conv.LastMessageAt.UTC().Format(time.RFC3339)
		resp.LastMessageAt = &at
	}
	return resp
}

func queryInt(c *gin.Context, key string, fallback int) int {
	raw := c.Query(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}
