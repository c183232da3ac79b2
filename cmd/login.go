package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/example/classwatch/internal/auth"
	"github.com/example/classwatch/internal/config"
	"github.com/example/classwatch/internal/logging"
)

func newLoginCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Log in to the booking platform and cache the token",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logger, err := logging.New(cfg.Env, cfg.Log.Level, cfg.Log.Format)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			provider := auth.NewProvider(auth.Config{
				BaseURL:     cfg.Auth.BaseURL,
				ClientID:    cfg.Auth.ClientID,
				RedirectURI: cfg.Auth.RedirectURI,
				Email:       cfg.Auth.Email,
				Password:    cfg.Auth.Password,
				CachePath:   cfg.Auth.TokenCachePath,
			}, logger.Named("auth"))

			// Drop any cached token so the configured credentials are
			// actually exercised.
			provider.Invalidate()
			if _, err := provider.Credential(ctx); err != nil {
				return fmt.Errorf("login: %w", err)
			}
			fmt.Printf("logged in, token cached at %s\n", cfg.Auth.TokenCachePath)
			return nil
		},
	}
}
