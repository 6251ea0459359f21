package http

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/vovakirdan/medchat-server/internal/proto"
)

func makeJWT(secret, aud, iss, sub, name string, ttl time.Duration) (string, error) {
	claims := jwt.MapClaims{
		"sub": sub,
		"exp": time.Now().Add(ttl).Unix(),
	}
	if aud != "" {
		claims["aud"] = aud
	}
	if iss != "" {
		claims["iss"] = iss
	}
	if name != "" {
		claims["username"] = name
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

func TestWebSocketJWTSuccess(t *testing.T) {
	env := newTestEnv(t, nil)
	token, err := makeJWT("test-secret", "medchat-test", "medchat-test", "user1", "Alice", time.Minute)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)
	conn, _, err := websocket.Dial(ctx, env.wsURL(), &websocket.DialOptions{HTTPHeader: header})
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "done")

	env.waitOnline(t, "user1")
}

func TestWebSocketJWTInvalid(t *testing.T) {
	env := newTestEnv(t, nil)

	expired, err := makeJWT("test-secret", "medchat-test", "medchat-test", "user1", "Alice", -time.Minute)
	require.NoError(t, err)
	wrongSecret, err := makeJWT("other-secret", "medchat-test", "medchat-test", "user1", "Alice", time.Minute)
	require.NoError(t, err)
	wrongIssuer, err := makeJWT("test-secret", "medchat-test", "someone", "user1", "Alice", time.Minute)
	require.NoError(t, err)

	for name, token := range map[string]string{
		"expired":      expired,
		"wrong secret": wrongSecret,
		"wrong issuer": wrongIssuer,
		"empty":        "",
	} {
		t.Run(name, func(t *testing.T) {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			conn, _, err := websocket.Dial(ctx, env.wsURL(), nil)
			require.NoError(t, err)
			defer conn.CloseNow()

			send(t, ctx, conn, proto.InboundTypeHello, 0, proto.HelloData{Token: token})

			var f frame
			require.NoError(t, wsjson.Read(ctx, conn, &f))
			require.Equal(t, proto.OutboundTypeEvent, f.Type)
			require.Equal(t, "auth_error", f.Event)
			require.False(t, env.hub.IsOnline("user1"))
		})
	}
}
