package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/example/classwatch/internal/auth"
	"github.com/example/classwatch/internal/booking"
	"github.com/example/classwatch/internal/config"
	"github.com/example/classwatch/internal/logging"
	"github.com/example/classwatch/internal/mariana"
	"github.com/example/classwatch/internal/metrics"
	"github.com/example/classwatch/internal/notify"
	"github.com/example/classwatch/internal/tracker"
	"github.com/example/classwatch/internal/watcher"
)

func newWatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Run the schedule watcher",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if len(cfg.Schedule) == 0 {
				return fmt.Errorf("WEEKLY_SCHEDULE is empty, nothing to watch")
			}

			logger, err := logging.New(cfg.Env, cfg.Log.Level, cfg.Log.Format)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			loc, err := cfg.BookingOpens.Location()
			if err != nil {
				return err
			}

			provider := auth.NewProvider(auth.Config{
				BaseURL:     cfg.Auth.BaseURL,
				ClientID:    cfg.Auth.ClientID,
				RedirectURI: cfg.Auth.RedirectURI,
				Email:       cfg.Auth.Email,
				Password:    cfg.Auth.Password,
				CachePath:   cfg.Auth.TokenCachePath,
			}, logger.Named("auth"))

			client := mariana.New(mariana.Config{
				BaseURL:    cfg.API.BaseURL,
				RegionID:   cfg.API.RegionID,
				LocationID: cfg.API.LocationID,
			}, provider)

			var notifier notify.Notifier = notify.Nop{}
			if cfg.Telegram.Token != "" && cfg.Telegram.ChatID != "" {
				notifier = notify.NewTelegram(cfg.Telegram.Token, cfg.Telegram.ChatID, logger.Named("notify"))
			} else {
				logger.Warn("telegram not configured, notifications disabled")
			}

			registry := tracker.NewRegistry()
			orch := &booking.Orchestrator{
				API:           client,
				Registry:      registry,
				Notifier:      notifier,
				Logger:        logger.Named("booking"),
				PreferredSpot: cfg.PreferredSpot,
				ScheduleURL:   cfg.ScheduleURL,
			}

			var m *metrics.Metrics
			if cfg.MetricsAddr != "" {
				promReg := prometheus.NewRegistry()
				m = metrics.New(promReg)
				orch.Notifier = notify.WithCounter(notifier, m.NotificationSent)
				go func() {
					if err := metrics.Serve(ctx, cfg.MetricsAddr, promReg, logger.Named("metrics")); err != nil {
						logger.Warn("metrics listener failed", zap.Error(err))
					}
				}()
			}

			w := watcher.New(watcher.Config{
				PollInterval: cfg.PollInterval,
				RefreshHours: cfg.RefreshHours,
				Entries:      cfg.Schedule,
				OpenLeadDays: cfg.BookingOpens.LeadDays,
				OpenHour:     cfg.BookingOpens.Hour,
				Location:     loc,
			}, client, orch, registry, logger.Named("watcher"), m)

			if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			logger.Info("shutdown complete")
			return nil
		},
	}
}
