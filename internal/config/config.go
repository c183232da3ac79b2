package config

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/example/classwatch/internal/schedule"
)

type Config struct {
	Env string
	Log LogConfig

	API      APIConfig
	Auth     AuthConfig
	Telegram TelegramConfig

	// Schedule is the weekly slot list the watcher projects onto
	// calendar dates.
	Schedule []schedule.Entry

	PreferredSpot string
	PollInterval  time.Duration

	// RefreshHours gates the schedule re-projection sweep: it runs on
	// the first poll tick of any hour divisible by this value.
	RefreshHours int

	BookingOpens BookingOpensConfig

	// ScheduleURL is the public schedule page, used for manual
	// booking links in failure notifications.
	ScheduleURL string

	// MetricsAddr enables the Prometheus listener when non-empty.
	MetricsAddr string
}

type LogConfig struct {
	Level  string
	Format string
}

type APIConfig struct {
	BaseURL    string
	RegionID   string
	LocationID string
}

type AuthConfig struct {
	BaseURL        string
	ClientID       string
	RedirectURI    string
	Email          string
	Password       string
	TokenCachePath string
}

type TelegramConfig struct {
	Token  string
	ChatID string
}

// BookingOpensConfig describes when the studio opens booking relative
// to each class: LeadDays before, at Hour local time in Zone.
type BookingOpensConfig struct {
	LeadDays int
	Hour     int
	Zone     string
}

func (b BookingOpensConfig) Location() (*time.Location, error) {
	return time.LoadLocation(b.Zone)
}

// Load reads configuration from the environment, with a .env file
// autoloaded when present.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "")
	v.SetDefault("API_BASE_URL", "https://getsweatstudio.marianatek.com/api/customer/v1")
	v.SetDefault("AUTH_BASE_URL", "https://getsweatstudio.marianatek.com")
	v.SetDefault("OAUTH_CLIENT_ID", "sbLziNCoF5HcOhkSV6zRL8O7betwd3mDDIQbWZa3")
	v.SetDefault("OAUTH_REDIRECT_URI", "https://getsweatstudio.marianaiframes.com/iframe/callback/")
	v.SetDefault("REGION_ID", "48541")
	v.SetDefault("LOCATION_ID", "48718")
	v.SetDefault("PREFERRED_SPOT", "6")
	v.SetDefault("POLL_INTERVAL", "10m")
	v.SetDefault("SCHEDULE_REFRESH_HOURS", 6)
	v.SetDefault("BOOKING_OPENS_DAYS_AHEAD", 7)
	v.SetDefault("BOOKING_OPENS_HOUR", 12)
	v.SetDefault("BOOKING_OPENS_TZ", "America/Los_Angeles")
	v.SetDefault("SCHEDULE_URL", "https://www.getsweatstudio.com/schedule")
	v.SetDefault("TOKEN_CACHE_PATH", ".tokens.json")
	v.SetDefault("WEEKLY_SCHEDULE", "[]")

	cfg := Config{
		Env: v.GetString("ENV"),
		Log: LogConfig{
			Level:  v.GetString("LOG_LEVEL"),
			Format: v.GetString("LOG_FORMAT"),
		},
		API: APIConfig{
			BaseURL:    v.GetString("API_BASE_URL"),
			RegionID:   v.GetString("REGION_ID"),
			LocationID: v.GetString("LOCATION_ID"),
		},
		Auth: AuthConfig{
			BaseURL:        v.GetString("AUTH_BASE_URL"),
			ClientID:       v.GetString("OAUTH_CLIENT_ID"),
			RedirectURI:    v.GetString("OAUTH_REDIRECT_URI"),
			Email:          v.GetString("MT_EMAIL"),
			Password:       v.GetString("MT_PASSWORD"),
			TokenCachePath: v.GetString("TOKEN_CACHE_PATH"),
		},
		Telegram: TelegramConfig{
			Token:  v.GetString("TELEGRAM_TOKEN"),
			ChatID: v.GetString("TELEGRAM_CHANNEL"),
		},
		PreferredSpot: v.GetString("PREFERRED_SPOT"),
		PollInterval:  v.GetDuration("POLL_INTERVAL"),
		RefreshHours:  v.GetInt("SCHEDULE_REFRESH_HOURS"),
		BookingOpens: BookingOpensConfig{
			LeadDays: v.GetInt("BOOKING_OPENS_DAYS_AHEAD"),
			Hour:     v.GetInt("BOOKING_OPENS_HOUR"),
			Zone:     v.GetString("BOOKING_OPENS_TZ"),
		},
		ScheduleURL: v.GetString("SCHEDULE_URL"),
		MetricsAddr: v.GetString("METRICS_ADDR"),
	}

	entries, err := ParseSchedule(v.GetString("WEEKLY_SCHEDULE"))
	if err != nil {
		return Config{}, fmt.Errorf("WEEKLY_SCHEDULE: %w", err)
	}
	cfg.Schedule = entries

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ParseSchedule decodes the weekly schedule from its JSON form, e.g.
// [{"day":1,"time":"17:30:00","label":"Monday 5:30pm"}].
func ParseSchedule(raw string) ([]schedule.Entry, error) {
	var entries []schedule.Entry
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		return nil, err
	}
	for i, e := range entries {
		if err := e.Validate(); err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}
	}
	return entries, nil
}

func (c Config) Validate() error {
	if c.API.BaseURL == "" {
		return fmt.Errorf("API_BASE_URL is required")
	}
	if c.PollInterval < time.Second {
		return fmt.Errorf("POLL_INTERVAL must be at least 1s, got %s", c.PollInterval)
	}
	if c.RefreshHours < 1 || c.RefreshHours > 24 {
		return fmt.Errorf("SCHEDULE_REFRESH_HOURS must be 1-24, got %d", c.RefreshHours)
	}
	if c.BookingOpens.LeadDays < 0 {
		return fmt.Errorf("BOOKING_OPENS_DAYS_AHEAD must not be negative")
	}
	if c.BookingOpens.Hour < 0 || c.BookingOpens.Hour > 23 {
		return fmt.Errorf("BOOKING_OPENS_HOUR must be 0-23, got %d", c.BookingOpens.Hour)
	}
	if _, err := c.BookingOpens.Location(); err != nil {
		return fmt.Errorf("BOOKING_OPENS_TZ: %w", err)
	}
	return nil
}
