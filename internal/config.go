package internal

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/notesync/internal/watchtree"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Correlation strategies.
const (
	StrategyBuffer = "buffer"
	StrategyCache  = "cache"
)

// Config represents the application configuration.
type Config struct {
	App     ApplicationConfig `yaml:"app"`
	Vault   VaultConfig       `yaml:"vault"`
	Watch   WatchConfig       `yaml:"watch"`
	Sync    SyncConfig        `yaml:"sync"`
	Journal JournalConfig     `yaml:"journal"`
	Auth    AuthConfig        `yaml:"auth"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.Vault.Validate(); err != nil {
		return err
	}
	if err := c.Watch.Validate(); err != nil {
		return err
	}
	if err := c.Sync.Validate(); err != nil {
		return err
	}
	return c.Auth.Validate()
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel    slog.Level `yaml:"log_level"`
	StopOnStdin bool       `yaml:"stop_on_stdin"`
	HTTP        HTTPConfig `yaml:"http"`
	MCP         MCPConfig  `yaml:"mcp"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	if c.MCP.Enabled && !c.HTTP.Enabled {
		return fmt.Errorf("mcp: requires app.http.enabled")
	}
	return c.HTTP.Validate()
}

// MCPConfig toggles the MCP endpoint served at /mcp on the HTTP server.
type MCPConfig struct {
	Enabled bool `yaml:"enabled"`
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.When(c.Enabled, validation.Required, validation.Min(1), validation.Max(65535))),
	)
}

// VaultConfig describes the watched directory tree.
type VaultConfig struct {
	Path string `yaml:"path"`
	// Exclude lists substrings matched against a file or directory base
	// name. Files inside an excluded directory are never watched.
	Exclude []string `yaml:"exclude"`
	// DocumentExtensions limits asset relocation to these file types.
	// An empty list relocates for every moved file.
	DocumentExtensions []string `yaml:"document_extensions"`
}

// Validate validates the vault configuration.
func (c *VaultConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
		validation.Field(&c.Exclude, validation.Each(validation.Required)),
		validation.Field(&c.DocumentExtensions, validation.Each(validation.Required)),
	)
}

// WatchConfig tunes move correlation and debouncing.
type WatchConfig struct {
	Strategy          string        `yaml:"strategy"`
	CorrelationWindow time.Duration `yaml:"correlation_window"`
	QuietWindow       time.Duration `yaml:"quiet_window"`
}

// Validate validates the watch configuration.
func (c *WatchConfig) Validate() error {
	if c.Strategy == "" {
		c.Strategy = StrategyBuffer
	}
	return validation.ValidateStruct(c,
		validation.Field(&c.Strategy, validation.In(StrategyBuffer, StrategyCache)),
		validation.Field(&c.CorrelationWindow, validation.Required, validation.Min(10*time.Millisecond)),
		validation.Field(&c.QuietWindow, validation.Required, validation.Min(time.Millisecond)),
	)
}

// SyncConfig describes the git remote the vault is published to.
type SyncConfig struct {
	Enabled bool   `yaml:"enabled"`
	GitPath string `yaml:"git_path"`
	// GitPaths overrides GitPath per GOOS value.
	GitPaths      map[string]string `yaml:"git_paths"`
	Remote        string            `yaml:"remote"`
	Branch        string            `yaml:"branch"`
	CommitMessage string            `yaml:"commit_message"`
}

// Validate validates the sync configuration.
func (c *SyncConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	return validation.ValidateStruct(c,
		validation.Field(&c.Remote, validation.Required),
		validation.Field(&c.Branch, validation.Required),
		validation.Field(&c.CommitMessage, validation.Required),
	)
}

// ErrNoGitPath is returned when no git executable is configured for a host.
var ErrNoGitPath = errors.New("no git executable configured")

// GitPathFor returns the git executable for the given GOOS.
func (c *SyncConfig) GitPathFor(goos string) (string, error) {
	if p, ok := c.GitPaths[goos]; ok && p != "" {
		return p, nil
	}
	if c.GitPath != "" {
		return c.GitPath, nil
	}
	return "", fmt.Errorf("sync: %s: %w", goos, ErrNoGitPath)
}

// JournalConfig holds the SQLite journal location. An empty path disables
// journaling.
type JournalConfig struct {
	Path string `yaml:"path"`
}

// Enabled reports whether a journal is configured.
func (c *JournalConfig) Enabled() bool {
	return c.Path != ""
}

// AuthConfig holds authentication configuration.
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
			LogLevel:    slog.LevelInfo,
			StopOnStdin: true,
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		Vault: VaultConfig{
			Path:               "./vault",
			Exclude:            append([]string(nil), watchtree.DefaultExclusions...),
			DocumentExtensions: []string{".md"},
		},
		Watch: WatchConfig{
			Strategy:          StrategyBuffer,
			CorrelationWindow: time.Second,
			QuietWindow:       30 * time.Second,
		},
		Sync: SyncConfig{
			Enabled:       true,
			GitPath:       "git",
			Remote:        "origin",
			Branch:        "main",
			CommitMessage: "auto sync",
		},
		Journal: JournalConfig{
			Path: "./notesync.db",
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
	}
}
