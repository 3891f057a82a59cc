package internal

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/robfig/cron/v3"

	"github.com/starford/recall/internal/review"
	"github.com/starford/recall/internal/reviewservice"
	"github.com/starford/recall/internal/schedule"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Config represents the application configuration.
type Config struct {
	App    ApplicationConfig `yaml:"app"`
	Vault  VaultConfig       `yaml:"vault"`
	SQLite SQLiteConfig      `yaml:"sqlite"`
	Auth   AuthConfig        `yaml:"auth"`
	Review ReviewConfig      `yaml:"review"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.Vault.Validate(); err != nil {
		return err
	}
	if err := c.SQLite.Validate(); err != nil {
		return err
	}
	if err := c.Auth.Validate(); err != nil {
		return err
	}
	return c.Review.Validate()
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
	// EventThrottle bounds how often queue.updated events are pushed.
	EventThrottle time.Duration `yaml:"event_throttle"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	if err := validation.ValidateStruct(c,
		validation.Field(&c.EventThrottle, validation.Min(time.Duration(0))),
	); err != nil {
		return err
	}
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port"`
	// CORSOrigins lists the browser origins allowed to call the API.
	CORSOrigins []string `yaml:"cors_origins"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// VaultConfig holds the path to the Markdown vault directory.
type VaultConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the vault configuration.
func (c *VaultConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// SQLiteConfig holds SQLite database configuration.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the SQLite configuration.
func (c *SQLiteConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// AuthConfig holds authentication configuration.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for local dev.
//   - "token": Bearer token authentication; Token must be non-empty.
type AuthConfig struct {
	Mode  string `yaml:"mode"`
	Token string `yaml:"token"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	// Normalise empty mode to "disabled" for backward compatibility.
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AuthModeDisabled, AuthModeToken)),
	); err != nil {
		return err
	}
	if c.Mode == AuthModeToken && c.Token == "" {
		return fmt.Errorf("auth: mode is %q but token is empty", AuthModeToken)
	}
	return nil
}

// AuthEnabled returns true when authentication is active.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode == AuthModeToken
}

// ReviewConfig holds scheduling and queue settings.
type ReviewConfig struct {
	BaseEase             int      `yaml:"base_ease"`
	MaxLinkFactor        float64  `yaml:"max_link_factor"`
	LapsesIntervalChange float64  `yaml:"lapses_interval_change"`
	TagsToReview         []string `yaml:"tags_to_review"`
	FlashcardsTag        string   `yaml:"flashcards_tag"`
	SameLineComment      bool     `yaml:"single_line_comment_on_same_line"`
	OpenRandomNote       bool     `yaml:"open_random_note"`
	AutoNextNote         bool     `yaml:"auto_next_note"`
	// SyncSchedule is a standard five-field cron spec for periodic resyncs,
	// e.g. "0 * * * *". Empty disables them.
	SyncSchedule string `yaml:"sync_schedule"`
}

var cronSpec = validation.By(func(v interface{}) error {
	spec, _ := v.(string)
	if spec == "" {
		return nil
	}
	if _, err := cron.ParseStandard(spec); err != nil {
		return errors.New("must be a valid cron spec")
	}
	return nil
})

// Validate validates the review configuration.
func (c *ReviewConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.BaseEase, validation.Required, validation.Min(schedule.MinEase)),
		validation.Field(&c.MaxLinkFactor, validation.Min(0.0), validation.Max(1.0)),
		validation.Field(&c.LapsesIntervalChange, validation.Required, validation.Min(0.01), validation.Max(0.99)),
		validation.Field(&c.TagsToReview, validation.Required, validation.Each(validation.Required)),
		validation.Field(&c.SyncSchedule, cronSpec),
	)
}

// Params returns the scheduler parameters.
func (c *ReviewConfig) Params() schedule.Params {
	return schedule.Params{
		BaseEase:      c.BaseEase,
		MaxLinkFactor: c.MaxLinkFactor,
		LapseFactor:   c.LapsesIntervalChange,
	}
}

// ServiceOptions returns the review service options.
func (c *ReviewConfig) ServiceOptions() reviewservice.Options {
	return reviewservice.Options{
		Params: c.Params(),
		Settings: review.Settings{
			TagsToReview:  c.TagsToReview,
			FlashcardsTag: c.FlashcardsTag,
		},
		SameLineComment: c.SameLineComment,
		OpenRandomNote:  c.OpenRandomNote,
		AutoNextNote:    c.AutoNextNote,
	}
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port:        8080,
				CORSOrigins: []string{"*"},
			},
			EventThrottle: 2 * time.Second,
		},
		Vault: VaultConfig{
			Path: "./vault",
		},
		SQLite: SQLiteConfig{
			Path: "./recall.db",
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
		Review: ReviewConfig{
			BaseEase:             250,
			MaxLinkFactor:        1.0,
			LapsesIntervalChange: 0.5,
			TagsToReview:         []string{"review"},
			FlashcardsTag:        "flashcards",
		},
	}
}
