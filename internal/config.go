package internal

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/notesync/internal/remote"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Config represents the application configuration.
type Config struct {
	App    ApplicationConfig `yaml:"app"`
	Store  StoreConfig       `yaml:"store"`
	SQLite SQLiteConfig      `yaml:"sqlite"`
	Remote RemoteConfig      `yaml:"remote"`
	Sync   SyncConfig        `yaml:"sync"`
	Auth   AuthConfig        `yaml:"auth"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return fmt.Errorf("app: %w", err)
	}
	if err := c.Store.Validate(); err != nil {
		return fmt.Errorf("store: %w", err)
	}
	if err := c.SQLite.Validate(); err != nil {
		return fmt.Errorf("sqlite: %w", err)
	}
	if err := c.Remote.Validate(); err != nil {
		return fmt.Errorf("remote: %w", err)
	}
	if err := c.Sync.Validate(); err != nil {
		return fmt.Errorf("sync: %w", err)
	}
	return c.Auth.Validate()
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port"`
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

// StoreConfig holds the directory of the local note files.
type StoreConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the store configuration.
func (c *StoreConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// SQLiteConfig holds the search mirror database configuration.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the SQLite configuration.
func (c *SQLiteConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// RemoteConfig holds the remote note service settings. Credentials are
// only checked when a command talks to the service.
type RemoteConfig struct {
	APIURL    string        `yaml:"api_url"`
	AuthURL   string        `yaml:"auth_url"`
	Email     string        `yaml:"email"`
	Password  string        `yaml:"password"`
	Timeout   time.Duration `yaml:"timeout"`
	PageSize  int           `yaml:"page_size"`
	RateLimit float64       `yaml:"rate_limit"`
	UserAgent string        `yaml:"user_agent"`
}

// Validate validates the remote configuration.
func (c *RemoteConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.APIURL, validation.Required, validation.By(absoluteURL)),
		validation.Field(&c.AuthURL, validation.Required, validation.By(absoluteURL)),
		validation.Field(&c.Timeout, validation.Min(time.Second)),
		validation.Field(&c.PageSize, validation.Min(1), validation.Max(1000)),
		validation.Field(&c.RateLimit, validation.Min(0.0)),
	)
}

func absoluteURL(value any) error {
	s, _ := value.(string)
	u, err := url.Parse(s)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return errors.New("must be an absolute http(s) URL")
	}
	return nil
}

// ClientConfig converts the section into remote client settings.
func (c *RemoteConfig) ClientConfig() remote.Config {
	return remote.Config{
		APIURL:    c.APIURL,
		AuthURL:   c.AuthURL,
		Email:     c.Email,
		Password:  c.Password,
		Timeout:   c.Timeout,
		PageSize:  c.PageSize,
		RateLimit: c.RateLimit,
		UserAgent: c.UserAgent,
	}
}

// SyncConfig controls background synchronization in serve mode.
// A zero Interval disables the timer; passes then run only on demand.
type SyncConfig struct {
	Interval time.Duration `yaml:"interval"`
	OnStart  bool          `yaml:"on_start"`
}

// Validate validates the sync configuration.
func (c *SyncConfig) Validate() error {
	if c.Interval != 0 && c.Interval < 10*time.Second {
		return fmt.Errorf("interval %s is below the 10s minimum", c.Interval)
	}
	return nil
}

// AuthConfig holds authentication configuration for the local HTTP API.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required.
//   - "token": Bearer token authentication; Token must be non-empty.
type AuthConfig struct {
	Mode  string `yaml:"mode"`
	Token string `yaml:"token"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
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

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		Store: StoreConfig{
			Path: "./notes",
		},
		SQLite: SQLiteConfig{
			Path: "./notesync.db",
		},
		Remote: RemoteConfig{
			APIURL:   remote.DefaultAPIURL,
			AuthURL:  remote.DefaultAuthURL,
			Timeout:  remote.DefaultTimeout,
			PageSize: remote.DefaultPageSize,
		},
		Sync: SyncConfig{
			Interval: 5 * time.Minute,
			OnStart:  true,
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
	}
}
