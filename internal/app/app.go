package app

import (
	"context"
	"errors"
	"fmt"
	stdhttp "net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/medchat-server/internal/ai"
	"github.com/vovakirdan/medchat-server/internal/audit"
	"github.com/vovakirdan/medchat-server/internal/auth"
	"github.com/vovakirdan/medchat-server/internal/config"
	"github.com/vovakirdan/medchat-server/internal/core"
	"github.com/vovakirdan/medchat-server/internal/store/postgres"
	"github.com/vovakirdan/medchat-server/internal/store/sqldb"
	"github.com/vovakirdan/medchat-server/internal/store/sqlite"
	transporthttp "github.com/vovakirdan/medchat-server/internal/transport/http"
)

// App wires together core and transport layers.
type App struct {
	server          *stdhttp.Server
	shutdownTimeout time.Duration
	hub             *core.Hub
	store           *sqldb.Store
	log             *zerolog.Logger
}

// OpenStore connects to the configured database and applies the schema.
func OpenStore(ctx context.Context, cfg config.DatabaseConfig) (*sqldb.Store, error) {
	switch cfg.Driver {
	case "sqlite", "":
		return sqlite.New(ctx, cfg.DSN)
	case "postgres":
		return postgres.New(ctx, cfg.DSN)
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
	}
}

// New constructs the application with provided configuration.
func New(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (*App, error) {
	st, err := OpenStore(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}
	logger.Info().Str("driver", cfg.Database.Driver).Msg("database initialized")

	responder, err := ai.NewFromConfig(cfg.AI, logger)
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("init ai responder: %w", err)
	}
	logger.Info().Str("provider", cfg.AI.Provider).Str("model", cfg.AI.Model).Msg("ai responder initialized")

	recorder := audit.NewRecorder(st, logger)
	hub := core.NewHub(st, responder, recorder, core.Options{
		AITimeout:  cfg.AI.Timeout,
		AIFallback: cfg.AI.FallbackMessage,
	}, logger)

	server := transporthttp.NewServer(cfg, transporthttp.Deps{
		Hub:      hub,
		Verifier: auth.NewVerifier(auth.NewJWTConfig(cfg.JWT)),
		Store:    st,
		Auditor:  recorder,
	}, logger)

	return &App{
		server:          server,
		shutdownTimeout: cfg.ShutdownTimeout,
		hub:             hub,
		store:           st,
		log:             logger,
	}, nil
}

// Run starts the HTTP server and blocks until context cancellation or fatal error.
func (a *App) Run(ctx context.Context) error {
	serverErr := make(chan error, 1)

	go func() {
		a.log.Info().Str("addr", a.server.Addr).Msg("starting medchat server")
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, stdhttp.ErrServerClosed) {
			serverErr <- err
			return
		}
		serverErr <- nil
	}()

	select {
	case err := <-serverErr:
		a.cleanup()
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
		defer cancel()

		a.log.Info().Msg("shutting down http server")
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			a.cleanup()
			return err
		}

		a.cleanup()
		return <-serverErr
	}
}

// cleanup closes database and other resources.
func (a *App) cleanup() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close store")
		} else {
			a.log.Info().Msg("store closed")
		}
	}
}
