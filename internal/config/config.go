// Package config handles application configuration
package config

import (
	_ "embed"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"orgsync/backend"
)

//go:embed config.sample.yaml
var sampleConfig string

// GetSampleConfig returns the embedded sample configuration content
func GetSampleConfig() string {
	return sampleConfig
}

// Defaults for unset values
const (
	DefaultBaseURL        = "http://localhost:8000"
	DefaultTimeout        = 30 * time.Second
	DefaultToastDuration  = 4 * time.Second
	DefaultStubAddr       = "127.0.0.1:8000"
	DefaultAccessTokenTTL = time.Hour
	DefaultLogMaxSizeMB   = 10
)

// Config represents the application configuration
type Config struct {
	API           APIConfig                       `yaml:"api"`
	Resources     map[backend.Kind]ResourceConfig `yaml:"resources"`
	Credentials   CredentialsConfig               `yaml:"credentials"`
	Notifications NotificationsConfig             `yaml:"notifications"`
	Logging       LoggingConfig                   `yaml:"logging"`
	NoPrompt      bool                            `yaml:"no_prompt"`
	OutputFormat  string                          `yaml:"output_format"`
	StubServer    StubServerConfig                `yaml:"stub_server"`
}

// APIConfig holds REST backend settings
type APIConfig struct {
	BaseURL           string  `yaml:"base_url"`
	Timeout           string  `yaml:"timeout"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
}

// ResourceConfig holds per-resource settings
type ResourceConfig struct {
	Path string `yaml:"path"`
}

// CredentialsConfig holds token storage settings
type CredentialsConfig struct {
	UseKeyring *bool  `yaml:"use_keyring"` // default: true
	TokenFile  string `yaml:"token_file"`
}

// NotificationsConfig holds toast settings
type NotificationsConfig struct {
	ToastDuration string              `yaml:"toast_duration"`
	Log           NotificationLog     `yaml:"log"`
	Desktop       NotificationDesktop `yaml:"desktop"`
}

// NotificationLog holds toast log settings
type NotificationLog struct {
	Enabled   bool   `yaml:"enabled"`
	Path      string `yaml:"path"`
	MaxSizeMB int    `yaml:"max_size_mb"`
}

// NotificationDesktop holds desktop notification settings
type NotificationDesktop struct {
	Enabled   bool  `yaml:"enabled"`
	OnError   *bool `yaml:"on_error"` // default: true
	OnSuccess bool  `yaml:"on_success"`
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	Verbose           bool  `yaml:"verbose"`
	BackgroundEnabled *bool `yaml:"background_enabled"` // Controls TUI log file creation (default: true)
}

// StubServerConfig holds development server settings
type StubServerConfig struct {
	Addr           string `yaml:"addr"`
	DBPath         string `yaml:"db_path"`
	Secret         string `yaml:"secret"`
	Paginate       bool   `yaml:"paginate"`
	AccessTokenTTL string `yaml:"access_token_ttl"`
}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		API: APIConfig{
			BaseURL: DefaultBaseURL,
			Timeout: DefaultTimeout.String(),
			Burst:   1,
		},
		OutputFormat: "text",
		StubServer: StubServerConfig{
			Addr: DefaultStubAddr,
		},
	}
}

// Load loads configuration from the specified path, or the default XDG path if empty.
// If the config file doesn't exist, it creates one from the sample.
func Load(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = filepath.Join(GetConfigDir(), "config.yaml")
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		cfg := DefaultConfig()
		if err := cfg.save(configPath); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML and applies defaults
func Parse(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid YAML in config file: %w", err)
	}

	if cfg.API.BaseURL == "" {
		cfg.API.BaseURL = DefaultBaseURL
	}
	if cfg.OutputFormat == "" {
		cfg.OutputFormat = "text"
	}

	cfg.Credentials.TokenFile = ExpandPath(cfg.Credentials.TokenFile)
	cfg.Notifications.Log.Path = ExpandPath(cfg.Notifications.Log.Path)
	cfg.StubServer.DBPath = ExpandPath(cfg.StubServer.DBPath)

	return cfg, nil
}

// save writes the embedded sample to path
func (c *Config) save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.OutputFormat != "text" && c.OutputFormat != "json" {
		return fmt.Errorf("invalid output_format: %q (must be 'text' or 'json')", c.OutputFormat)
	}

	u, err := url.Parse(c.API.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid api.base_url: %q (must be an absolute URL)", c.API.BaseURL)
	}

	durations := map[string]string{
		"api.timeout":                  c.API.Timeout,
		"notifications.toast_duration": c.Notifications.ToastDuration,
		"stub_server.access_token_ttl": c.StubServer.AccessTokenTTL,
	}
	for key, value := range durations {
		if value == "" {
			continue
		}
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration for %s: %q", key, value)
		}
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %q", key, value)
		}
	}

	if c.API.RequestsPerSecond < 0 {
		return fmt.Errorf("api.requests_per_second must not be negative, got %v", c.API.RequestsPerSecond)
	}
	if c.API.Burst < 0 {
		return fmt.Errorf("api.burst must not be negative, got %d", c.API.Burst)
	}

	for kind, rc := range c.Resources {
		if _, ok := backend.ParseKind(string(kind)); !ok {
			return fmt.Errorf("unknown resource %q (must be tasks, notes or expenses)", kind)
		}
		if rc.Path != "" && !strings.HasPrefix(rc.Path, "/") {
			return fmt.Errorf("resources.%s.path must start with '/', got %q", kind, rc.Path)
		}
	}

	return nil
}

// ApplyFlags applies command-line flag overrides to the config
func (c *Config) ApplyFlags(noPrompt bool, outputFormat, baseURL string, verbose bool) {
	if noPrompt {
		c.NoPrompt = true
	}
	if outputFormat != "" {
		c.OutputFormat = outputFormat
	}
	if baseURL != "" {
		c.API.BaseURL = baseURL
	}
	if verbose {
		c.Logging.Verbose = true
	}
}

// =============================================================================
// Getters
// =============================================================================

// GetBaseURL returns the API root
func (c *Config) GetBaseURL() string {
	if c.API.BaseURL == "" {
		return DefaultBaseURL
	}
	return c.API.BaseURL
}

// GetTimeout returns the per-request timeout
func (c *Config) GetTimeout() time.Duration {
	return parseDurationOr(c.API.Timeout, DefaultTimeout)
}

// GetBurst returns the pacing burst, at least 1
func (c *Config) GetBurst() int {
	if c.API.Burst <= 0 {
		return 1
	}
	return c.API.Burst
}

// GetResourcePath returns the collection path of kind, or "" for the default
func (c *Config) GetResourcePath(kind backend.Kind) string {
	if rc, ok := c.Resources[kind]; ok {
		return rc.Path
	}
	return ""
}

// IsKeyringEnabled returns whether tokens go to the OS keyring (default: true)
func (c *Config) IsKeyringEnabled() bool {
	if c.Credentials.UseKeyring == nil {
		return true
	}
	return *c.Credentials.UseKeyring
}

// GetTokenFile returns the token file path
func (c *Config) GetTokenFile() string {
	if c.Credentials.TokenFile != "" {
		return c.Credentials.TokenFile
	}
	return filepath.Join(GetDataDir(), "tokens.json")
}

// GetToastDuration returns how long a toast stays active
func (c *Config) GetToastDuration() time.Duration {
	return parseDurationOr(c.Notifications.ToastDuration, DefaultToastDuration)
}

// GetNotificationLogPath returns the toast log path
func (c *Config) GetNotificationLogPath() string {
	if c.Notifications.Log.Path != "" {
		return c.Notifications.Log.Path
	}
	return filepath.Join(GetDataDir(), "notifications.log")
}

// GetNotificationLogMaxSizeMB returns the toast log rotation size
func (c *Config) GetNotificationLogMaxSizeMB() int {
	if c.Notifications.Log.MaxSizeMB <= 0 {
		return DefaultLogMaxSizeMB
	}
	return c.Notifications.Log.MaxSizeMB
}

// IsDesktopOnErrorEnabled returns whether error toasts reach the desktop (default: true)
func (c *Config) IsDesktopOnErrorEnabled() bool {
	if c.Notifications.Desktop.OnError == nil {
		return true
	}
	return *c.Notifications.Desktop.OnError
}

// IsBackgroundLoggingEnabled returns whether background logging is enabled (default: true)
func (c *Config) IsBackgroundLoggingEnabled() bool {
	if c.Logging.BackgroundEnabled == nil {
		return true
	}
	return *c.Logging.BackgroundEnabled
}

// GetStubAddr returns the stub server listen address
func (c *Config) GetStubAddr() string {
	if c.StubServer.Addr == "" {
		return DefaultStubAddr
	}
	return c.StubServer.Addr
}

// GetStubDBPath returns the stub server database path
func (c *Config) GetStubDBPath() string {
	if c.StubServer.DBPath != "" {
		return c.StubServer.DBPath
	}
	return filepath.Join(GetDataDir(), "stub.db")
}

// GetAccessTokenTTL returns the lifetime of tokens issued by the stub server
func (c *Config) GetAccessTokenTTL() time.Duration {
	return parseDurationOr(c.StubServer.AccessTokenTTL, DefaultAccessTokenTTL)
}

func parseDurationOr(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// =============================================================================
// Paths
// =============================================================================

// getXDGDir returns an XDG directory for orgsync
func getXDGDir(envVar, fallbackPath string) string {
	if xdgDir := os.Getenv(envVar); xdgDir != "" {
		return filepath.Join(xdgDir, "orgsync")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", fallbackPath, "orgsync")
	}
	return filepath.Join(home, fallbackPath, "orgsync")
}

// GetConfigDir returns the XDG config directory for orgsync
func GetConfigDir() string {
	return getXDGDir("XDG_CONFIG_HOME", ".config")
}

// GetDataDir returns the XDG data directory for orgsync
func GetDataDir() string {
	return getXDGDir("XDG_DATA_HOME", filepath.Join(".local", "share"))
}

// ExpandPath expands ~ and environment variables in a path
func ExpandPath(path string) string {
	if path == "" {
		return path
	}

	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err == nil {
			path = filepath.Join(home, path[2:])
		}
	}

	return os.ExpandEnv(path)
}
