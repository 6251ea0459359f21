package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/vovakirdan/medchat-server/internal/ai"
	"github.com/vovakirdan/medchat-server/internal/audit"
	"github.com/vovakirdan/medchat-server/internal/auth"
	"github.com/vovakirdan/medchat-server/internal/config"
	"github.com/vovakirdan/medchat-server/internal/core"
	"github.com/vovakirdan/medchat-server/internal/proto"
	"github.com/vovakirdan/medchat-server/internal/store"
	"github.com/vovakirdan/medchat-server/internal/store/sqldb"
	"github.com/vovakirdan/medchat-server/internal/store/sqlite"
)

type stubResponder struct {
	answer string
}

func (s stubResponder) Respond(context.Context, ai.Request) (string, error) {
	return s.answer, nil
}

type testEnv struct {
	server *httptest.Server
	store  *sqldb.Store
	hub    *core.Hub
	jwt    *auth.JWTConfig
}

func newTestEnv(t *testing.T, mutate func(*config.Config)) *testEnv {
	t.Helper()

	cfg := config.Default()
	cfg.JWT.Secret = "test-secret"
	cfg.JWT.Issuer = "medchat-test"
	cfg.JWT.Audience = "medchat-test"
	cfg.HandshakeTimeout = time.Second
	cfg.AllowedOrigins = nil
	if mutate != nil {
		mutate(&cfg)
	}

	st, err := sqlite.New(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	logger := zerolog.Nop()
	recorder := audit.NewRecorder(st, &logger)
	hub := core.NewHub(st, stubResponder{answer: "Stay hydrated."}, recorder, core.Options{AITimeout: time.Second}, &logger)
	jwtCfg := auth.NewJWTConfig(cfg.JWT)

	router := NewRouter(&cfg, Deps{
		Hub:      hub,
		Verifier: auth.NewVerifier(jwtCfg),
		Store:    st,
		Auditor:  recorder,
	}, &logger)

	ts := httptest.NewServer(router)
	t.Cleanup(ts.Close)

	return &testEnv{server: ts, store: st, hub: hub, jwt: jwtCfg}
}

func (e *testEnv) token(t *testing.T, userID string) string {
	t.Helper()
	token, err := auth.GenerateToken(e.jwt, core.Identity{UserID: userID, Username: userID + "-name"})
	require.NoError(t, err)
	return token
}

func (e *testEnv) wsURL() string {
	return strings.Replace(e.server.URL, "http", "ws", 1) + "/ws"
}

func (e *testEnv) dial(t *testing.T, ctx context.Context, userID string) *websocket.Conn {
	t.Helper()
	header := http.Header{}
	header.Set("Authorization", "Bearer "+e.token(t, userID))
	conn, _, err := websocket.Dial(ctx, e.wsURL(), &websocket.DialOptions{HTTPHeader: header})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "done") })
	return conn
}

func (e *testEnv) directConversation(t *testing.T, a, b string) *store.Conversation {
	t.Helper()
	conv := &store.Conversation{Type: store.ConversationUserToUser, Participant1ID: a, Participant2ID: b}
	require.NoError(t, e.store.CreateConversation(context.Background(), conv))
	return conv
}

// waitOnline blocks until the hub has attached the user.
func (e *testEnv) waitOnline(t *testing.T, userID string) {
	t.Helper()
	require.Eventually(t, func() bool { return e.hub.IsOnline(userID) }, 2*time.Second, 10*time.Millisecond)
}

type frame struct {
	Type  string          `json:"type"`
	ID    int64           `json:"id"`
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

func send(t *testing.T, ctx context.Context, conn *websocket.Conn, typ string, id int64, data any) {
	t.Helper()
	payload, err := json.Marshal(data)
	require.NoError(t, err)
	require.NoError(t, wsjson.Write(ctx, conn, proto.Inbound{Type: typ, ID: id, Data: payload}))
}

// readUntil reads frames until one matches typ and event.
func readUntil(t *testing.T, ctx context.Context, conn *websocket.Conn, typ, event string) frame {
	t.Helper()
	for {
		var f frame
		require.NoError(t, wsjson.Read(ctx, conn, &f))
		if f.Type == typ && f.Event == event {
			return f
		}
	}
}
