package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/example/classwatch/internal/auth"
	"github.com/example/classwatch/internal/config"
	"github.com/example/classwatch/internal/logging"
	"github.com/example/classwatch/internal/mariana"
	"github.com/example/classwatch/internal/schedule"
	"github.com/example/classwatch/internal/tracker"
)

func newClassesCmd() *cobra.Command {
	var date string

	cmd := &cobra.Command{
		Use:   "classes",
		Short: "List classes and their booking status for a date",
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

			loc, err := cfg.BookingOpens.Location()
			if err != nil {
				return err
			}
			if date == "" {
				date = time.Now().In(loc).Format("2006-01-02")
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

			classes, err := client.ListClasses(ctx, date)
			if err != nil {
				return err
			}
			if len(classes) == 0 {
				fmt.Printf("no classes listed for %s\n", date)
				return nil
			}

			now := time.Now()
			for _, c := range classes {
				name := c.ClassType.Name
				if len(c.Instructors) > 0 {
					name += " w/ " + c.Instructors[0].Name
				}
				fmt.Printf("%-9s %-40s %s\n",
					schedule.FormatClock(c.StartTime),
					strings.TrimSpace(name),
					tracker.DetailedStatus(c, now))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&date, "date", "", "date to list (YYYY-MM-DD, default today)")
	return cmd
}
