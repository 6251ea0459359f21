package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/vovakirdan/medchat-server/internal/app"
	"github.com/vovakirdan/medchat-server/internal/audit"
	"github.com/vovakirdan/medchat-server/internal/auth"
	"github.com/vovakirdan/medchat-server/internal/config"
	"github.com/vovakirdan/medchat-server/internal/core"
	applog "github.com/vovakirdan/medchat-server/internal/log"
)

type rootOptions struct {
	configPath string
	overrides  config.Config
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "medchat-server",
		Short:         "Real-time secure messaging server with an AI assistant",
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), opts)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", "", "path to config.yaml")
	flags.StringVar(&opts.overrides.Addr, "addr", "", "HTTP listen address")
	flags.DurationVar(&opts.overrides.ReadHeaderTimeout, "read-header-timeout", 0, "HTTP read header timeout")
	flags.DurationVar(&opts.overrides.ShutdownTimeout, "shutdown-timeout", 0, "graceful shutdown timeout")
	flags.StringVar(&opts.overrides.LogLevel, "log-level", "", "log level (debug, info, warn, error)")
	flags.StringVar(&opts.overrides.Database.Driver, "db-driver", "", "database driver (sqlite, postgres)")
	flags.StringVar(&opts.overrides.Database.DSN, "db-dsn", "", "database DSN or sqlite path")
	flags.StringVar(&opts.overrides.AI.Provider, "ai-provider", "", "AI provider (ollama, openai, none)")
	flags.StringVar(&opts.overrides.AI.Model, "ai-model", "", "AI model name")
	flags.DurationVar(&opts.overrides.AI.Timeout, "ai-timeout", 0, "AI reply deadline")

	root.AddCommand(newServeCmd(opts), newTokenCmd(opts), newAuditCmd(opts))
	return root
}

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the chat server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), opts)
		},
	}
}

func newTokenCmd(opts *rootOptions) *cobra.Command {
	var (
		id  core.Identity
		ttl time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a signed development credential",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := loadConfig(opts)
			if err != nil {
				return err
			}
			jwtCfg := auth.NewJWTConfig(cfg.JWT)
			if ttl > 0 {
				jwtCfg.TTL = ttl
			}
			token, err := auth.GenerateToken(jwtCfg, id)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&id.UserID, "user-id", "", "subject user id")
	cmd.Flags().StringVar(&id.Username, "username", "", "display name")
	cmd.Flags().StringVar(&id.Role, "role", "", "role claim")
	cmd.Flags().IntVar(&id.Clearance, "clearance", 0, "clearance level claim")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime (defaults to jwt.ttl)")
	_ = cmd.MarkFlagRequired("user-id")
	return cmd
}

func newAuditCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Inspect the audit trail",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "verify",
		Short: "Check the audit hash chain",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := loadConfig(opts)
			if err != nil {
				return err
			}
			st, err := app.OpenStore(cmd.Context(), cfg.Database)
			if err != nil {
				return err
			}
			defer st.Close()

			n, err := audit.NewRecorder(st, logger).Verify(cmd.Context())
			if err != nil {
				return fmt.Errorf("verified %d entries before failure: %w", n, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "audit chain intact (%d entries)\n", n)
			return nil
		},
	})
	return cmd
}

func runServe(parent context.Context, opts *rootOptions) error {
	cfg, logger, err := loadConfig(opts)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, &cfg, logger)
	if err != nil {
		logger.Error().Err(err).Msg("failed to initialize app")
		return err
	}

	if err := application.Run(ctx); err != nil {
		logger.Error().Err(err).Msg("server exited with error")
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}

func loadConfig(opts *rootOptions) (config.Config, *zerolog.Logger, error) {
	bootstrap := applog.New("info", "console")
	cfg, path, err := config.Load(bootstrap, opts.configPath)
	if err != nil {
		return cfg, bootstrap, fmt.Errorf("load config %s: %w", path, err)
	}
	cfg.UpdateFrom(opts.overrides)

	logger := applog.New(cfg.LogLevel, cfg.LogFormat)
	logger.Debug().Str("config", path).Msg("configuration loaded")
	return cfg, logger, nil
}
