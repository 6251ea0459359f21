package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vovakirdan/medchat-server/internal/store"
)

func (e *testEnv) do(t *testing.T, method, path, userID string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, e.server.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req.Header.Set("Authorization", "Bearer "+e.token(t, userID))
	}
	resp, err := e.server.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestAPIRequiresToken(t *testing.T) {
	env := newTestEnv(t, nil)

	resp := env.do(t, http.MethodGet, "/api/conversations", "", nil)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestCreateConversationReusesDirectPair(t *testing.T) {
	env := newTestEnv(t, nil)

	resp := env.do(t, http.MethodPost, "/api/conversations", "alice", CreateConversationRequest{ParticipantID: "bob", Title: "Shift handover"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	created := decode[ConversationResponse](t, resp)
	require.Equal(t, string(store.ConversationUserToUser), created.Type)

	resp = env.do(t, http.MethodPost, "/api/conversations", "bob", CreateConversationRequest{ParticipantID: "alice"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, created.ID, decode[ConversationResponse](t, resp).ID)

	resp = env.do(t, http.MethodPost, "/api/conversations", "alice", CreateConversationRequest{ParticipantID: "alice"})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = env.do(t, http.MethodPost, "/api/conversations", "alice", CreateConversationRequest{Type: "group"})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	entries, err := env.store.ListAudit(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "conversation_created", entries[0].Action)
}

func TestCreateAIConversationAndListMessages(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	resp := env.do(t, http.MethodPost, "/api/conversations", "alice", CreateConversationRequest{Type: string(store.ConversationUserToAI), Context: "field triage"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	conv := decode[ConversationResponse](t, resp)
	require.Equal(t, "AI Assistant", conv.Title)
	require.Equal(t, "biomistral-7b", conv.AIModel)

	for _, text := range []string{"one", "two", "three"} {
		require.NoError(t, env.store.CreateMessage(ctx, &store.Message{ConversationID: conv.ID, SenderID: "alice", Content: text}))
	}

	resp = env.do(t, http.MethodGet, "/api/conversations/"+conv.ID+"/messages?limit=2", "alice", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	page := decode[[]map[string]any](t, resp)
	require.Len(t, page, 2)
	require.Equal(t, "two", page[0]["content"])
	require.Equal(t, "three", page[1]["content"])

	resp = env.do(t, http.MethodGet, "/api/conversations/"+conv.ID+"/messages", "mallory", nil)
	require.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = env.do(t, http.MethodGet, "/api/conversations/00000000-0000-0000-0000-000000000000/messages", "alice", nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = env.do(t, http.MethodGet, "/api/conversations", "alice", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, decode[[]ConversationResponse](t, resp), 1)
}

func TestPresenceEndpoint(t *testing.T) {
	env := newTestEnv(t, nil)

	resp := env.do(t, http.MethodGet, "/api/presence/bob", "alice", nil)
	require.Equal(t, PresenceResponse{UserID: "bob", Online: false}, decode[PresenceResponse](t, resp))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	env.dial(t, ctx, "bob")
	env.waitOnline(t, "bob")

	resp = env.do(t, http.MethodGet, "/api/presence/bob", "alice", nil)
	require.True(t, decode[PresenceResponse](t, resp).Online)
}
