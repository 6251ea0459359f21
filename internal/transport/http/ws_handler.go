package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	stdhttp "net/http"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/vovakirdan/medchat-server/internal/config"
	"github.com/vovakirdan/medchat-server/internal/core"
	"github.com/vovakirdan/medchat-server/internal/proto"
	"github.com/vovakirdan/medchat-server/internal/utils"
)

const defaultHandshakeTimeout = 10 * time.Second

// TokenVerifier resolves a bearer credential to an identity.
type TokenVerifier interface {
	Verify(token string) (core.Identity, error)
}

// WSHandler upgrades HTTP connections and bridges them to core.Client.
type WSHandler struct {
	hub      *core.Hub
	verifier TokenVerifier
	cfg      *config.Config
	log      *zerolog.Logger
}

// NewWSHandler builds a new WebSocket handler.
func NewWSHandler(hub *core.Hub, verifier TokenVerifier, cfg *config.Config, logger *zerolog.Logger) *WSHandler {
	return &WSHandler{hub: hub, verifier: verifier, cfg: cfg, log: logger}
}

func (h *WSHandler) ServeHTTP(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	ctx := r.Context()
	token := requestToken(r)

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.cfg.AllowedOrigins,
	})
	if err != nil {
		h.log.Error().Err(err).Msg("ws accept error")
		return
	}
	defer conn.CloseNow()
	if h.cfg.MaxMessageBytes > 0 {
		conn.SetReadLimit(h.cfg.MaxMessageBytes)
	}

	identity, err := h.authenticate(ctx, conn, token)
	if err != nil {
		h.reject(ctx, conn, err)
		return
	}

	client := core.NewClient(utils.NewID(), identity)
	client.RemoteAddr = remoteIP(r)
	log := h.log.With().Str("conn_id", client.ID).Str("user_id", identity.UserID).Logger()

	h.hub.Attach(ctx, client)
	defer h.hub.Detach(context.WithoutCancel(ctx), client)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return h.readLoop(gctx, conn, client, &log) })
	g.Go(func() error { return h.writeLoop(gctx, conn, client, &log) })
	g.Go(func() error { return h.hub.Serve(gctx, client) })
	err = g.Wait()

	status, reason := closeStatus(err)
	if status != websocket.StatusNormalClosure {
		log.Warn().Err(err).Msg("ws connection closed with error")
	} else {
		log.Info().Msg("ws connection closed")
	}
	conn.Close(status, reason)
}

// authenticate resolves the caller from the upgrade request or, failing
// that, from a hello frame sent within the handshake timeout.
func (h *WSHandler) authenticate(ctx context.Context, conn *websocket.Conn, token string) (core.Identity, error) {
	if token == "" {
		timeout := h.cfg.HandshakeTimeout
		if timeout <= 0 {
			timeout = defaultHandshakeTimeout
		}
		hctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		var inbound proto.Inbound
		if err := wsjson.Read(hctx, conn, &inbound); err != nil {
			return core.Identity{}, fmt.Errorf("%w: no credential: %v", core.ErrUnauthenticated, err)
		}
		if inbound.Type != proto.InboundTypeHello {
			return core.Identity{}, fmt.Errorf("%w: expected hello, got %q", core.ErrUnauthenticated, inbound.Type)
		}
		var hello proto.HelloData
		if err := json.Unmarshal(inbound.Data, &hello); err != nil {
			return core.Identity{}, fmt.Errorf("%w: bad hello: %v", core.ErrUnauthenticated, err)
		}
		if hello.Protocol != 0 && hello.Protocol != proto.ProtocolVersion {
			return core.Identity{}, &core.CoreError{
				Code:    core.ErrCodeUnauthenticated,
				Message: fmt.Sprintf("unsupported protocol version %d", hello.Protocol),
			}
		}
		token = hello.Token
	}
	return h.verifier.Verify(token)
}

// reject sends auth_error and closes with a policy violation.
func (h *WSHandler) reject(ctx context.Context, conn *websocket.Conn, err error) {
	h.log.Debug().Err(err).Msg("ws authentication failed")

	msg := "authentication failed"
	var ce *core.CoreError
	if errors.As(err, &ce) {
		msg = ce.Message
	}
	wctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	_ = wsjson.Write(wctx, conn, outboundFromEvent(&core.Event{
		Kind:  core.EventAuthError,
		Error: &core.CoreError{Code: core.ErrCodeUnauthenticated, Message: msg},
	}))
	conn.Close(websocket.StatusPolicyViolation, "unauthenticated")
}

func (h *WSHandler) readLoop(ctx context.Context, conn *websocket.Conn, client *core.Client, log *zerolog.Logger) error {
	limiter := newRateLimiter(h.cfg.RateLimitPerSecond, h.cfg.RateLimitBurst)
	for {
		var inbound proto.Inbound
		if err := wsjson.Read(ctx, conn, &inbound); err != nil {
			return err
		}

		cmd, err := inboundToCommand(inbound)
		if cmd == nil {
			log.Debug().Err(err).Msg("ignoring inbound frame")
			continue
		}
		if err == nil && !allow(limiter) {
			err = &core.CoreError{Code: core.ErrCodeRateLimited, Message: "rate limit exceeded"}
		}
		if err != nil {
			log.Debug().Err(err).Str("event", inbound.Type).Msg("rejecting inbound frame")
			if !cmd.Kind.Acknowledged() {
				continue
			}
			if err := client.Deliver(ctx, rejection(cmd, err)); err != nil {
				return err
			}
			continue
		}

		select {
		case client.Commands <- cmd:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (h *WSHandler) writeLoop(ctx context.Context, conn *websocket.Conn, client *core.Client, log *zerolog.Logger) error {
	for {
		select {
		case event := <-client.Events:
			if err := wsjson.Write(ctx, conn, outboundFromEvent(event)); err != nil {
				log.Warn().Err(err).Str("event", event.Kind.String()).Msg("write ws event")
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func rejection(cmd *core.Command, err error) *core.Event {
	var ce *core.CoreError
	if !errors.As(err, &ce) {
		ce = &core.CoreError{Code: core.ErrCodeBadRequest, Message: err.Error()}
	}
	return &core.Event{Kind: core.EventAck, Ack: &core.Ack{ID: cmd.AckID, Command: cmd.Kind, Err: ce}}
}

func closeStatus(err error) (websocket.StatusCode, string) {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, io.EOF) {
		return websocket.StatusNormalClosure, "closing"
	}
	switch websocket.CloseStatus(err) {
	case websocket.StatusNormalClosure, websocket.StatusGoingAway:
		return websocket.StatusNormalClosure, "closing"
	case websocket.StatusMessageTooBig:
		return websocket.StatusMessageTooBig, "message too big"
	}
	return websocket.StatusInternalError, "internal error"
}

// requestToken reads the credential from the Authorization header or the
// token query parameter.
func requestToken(r *stdhttp.Request) string {
	if token, ok := bearer(r.Header.Get("Authorization")); ok {
		return token
	}
	return strings.TrimSpace(r.URL.Query().Get("token"))
}

func bearer(header string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func remoteIP(r *stdhttp.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		return strings.TrimSpace(first)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
