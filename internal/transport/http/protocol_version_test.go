package http

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/stretchr/testify/require"

	"github.com/vovakirdan/medchat-server/internal/proto"
)

func TestProtocolVersionMismatch(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, env.wsURL(), nil)
	require.NoError(t, err)
	defer conn.CloseNow()

	send(t, ctx, conn, proto.InboundTypeHello, 0, proto.HelloData{Token: env.token(t, "alice"), Protocol: proto.ProtocolVersion + 1})

	var f frame
	require.NoError(t, wsjson.Read(ctx, conn, &f))
	require.Equal(t, "auth_error", f.Event)
	var data proto.EventAuthError
	require.NoError(t, json.Unmarshal(f.Data, &data))
	require.Contains(t, data.Message, "unsupported protocol version")
	require.False(t, env.hub.IsOnline("alice"))
}

func TestHelloMustComeFirst(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, env.wsURL(), nil)
	require.NoError(t, err)
	defer conn.CloseNow()

	send(t, ctx, conn, proto.InboundTypeTyping, 0, proto.TypingData{ConversationID: "x", IsTyping: true})

	var f frame
	require.NoError(t, wsjson.Read(ctx, conn, &f))
	require.Equal(t, "auth_error", f.Event)
	_, _, err = conn.Read(ctx)
	require.Equal(t, websocket.StatusPolicyViolation, websocket.CloseStatus(err))
}
