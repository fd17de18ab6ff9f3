package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"orgsync/backend"
)

// =============================================================================
// Configuration System Tests
// =============================================================================

// TestConfigAutoCreate verifies first run creates config file at XDG path with defaults
func TestConfigAutoCreate(t *testing.T) {
	tmpDir := t.TempDir()
	configDir := filepath.Join(tmpDir, "config")
	dataDir := filepath.Join(tmpDir, "data")

	t.Setenv("XDG_CONFIG_HOME", configDir)
	t.Setenv("XDG_DATA_HOME", dataDir)
	t.Setenv("HOME", tmpDir)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	configPath := filepath.Join(configDir, "orgsync", "config.yaml")
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		t.Errorf("config file not created at %s", configPath)
	}

	if cfg.GetBaseURL() != DefaultBaseURL {
		t.Errorf("expected base URL %q, got %q", DefaultBaseURL, cfg.GetBaseURL())
	}
	if cfg.OutputFormat != "text" {
		t.Errorf("expected OutputFormat = 'text', got %q", cfg.OutputFormat)
	}
	if cfg.GetTokenFile() != filepath.Join(dataDir, "orgsync", "tokens.json") {
		t.Errorf("unexpected token file %q", cfg.GetTokenFile())
	}
}

// TestConfigCustomPath verifies --config /path/to/config.yaml uses specified config
func TestConfigCustomPath(t *testing.T) {
	tmpDir := t.TempDir()

	customConfigPath := filepath.Join(tmpDir, "custom-config.yaml")
	customConfig := `
api:
  base_url: https://organizer.example.com
  timeout: 5s
resources:
  tasks:
    path: /api/todos/
  expenses:
    path: /api/depenses/
no_prompt: true
`
	if err := os.WriteFile(customConfigPath, []byte(customConfig), 0644); err != nil {
		t.Fatalf("failed to write custom config: %v", err)
	}

	cfg, err := Load(customConfigPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.GetBaseURL() != "https://organizer.example.com" {
		t.Errorf("unexpected base URL %q", cfg.GetBaseURL())
	}
	if cfg.GetTimeout() != 5*time.Second {
		t.Errorf("expected timeout 5s, got %v", cfg.GetTimeout())
	}
	if cfg.GetResourcePath(backend.KindTask) != "/api/todos/" {
		t.Errorf("unexpected tasks path %q", cfg.GetResourcePath(backend.KindTask))
	}
	if cfg.GetResourcePath(backend.KindNote) != "" {
		t.Errorf("unset notes path should be empty, got %q", cfg.GetResourcePath(backend.KindNote))
	}
	if !cfg.NoPrompt {
		t.Error("expected NoPrompt = true")
	}
}

// TestConfigInvalidYAML verifies a parse error is reported
func TestConfigInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("api: [unclosed"), 0644); err != nil {
		t.Fatal(err)
	}
	_, err := Load(path)
	if err == nil || !strings.Contains(err.Error(), "invalid YAML") {
		t.Errorf("expected invalid YAML error, got %v", err)
	}
}

// TestConfigDefaults verifies getters fall back to defaults
func TestConfigDefaults(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", "/xdg/data")
	cfg := &Config{}

	if cfg.GetTimeout() != DefaultTimeout {
		t.Errorf("GetTimeout = %v", cfg.GetTimeout())
	}
	if cfg.GetToastDuration() != DefaultToastDuration {
		t.Errorf("GetToastDuration = %v", cfg.GetToastDuration())
	}
	if cfg.GetBurst() != 1 {
		t.Errorf("GetBurst = %d", cfg.GetBurst())
	}
	if !cfg.IsKeyringEnabled() {
		t.Error("keyring should be enabled by default")
	}
	if !cfg.IsDesktopOnErrorEnabled() {
		t.Error("desktop error notifications should be enabled by default")
	}
	if !cfg.IsBackgroundLoggingEnabled() {
		t.Error("background logging should be enabled by default")
	}
	if cfg.GetStubAddr() != DefaultStubAddr {
		t.Errorf("GetStubAddr = %q", cfg.GetStubAddr())
	}
	if cfg.GetStubDBPath() != "/xdg/data/orgsync/stub.db" {
		t.Errorf("GetStubDBPath = %q", cfg.GetStubDBPath())
	}
	if cfg.GetAccessTokenTTL() != time.Hour {
		t.Errorf("GetAccessTokenTTL = %v", cfg.GetAccessTokenTTL())
	}
	if cfg.GetNotificationLogMaxSizeMB() != DefaultLogMaxSizeMB {
		t.Errorf("GetNotificationLogMaxSizeMB = %d", cfg.GetNotificationLogMaxSizeMB())
	}
}

// TestConfigExplicitFalse verifies pointer booleans honor explicit false
func TestConfigExplicitFalse(t *testing.T) {
	cfg, err := Parse([]byte(`
credentials:
  use_keyring: false
notifications:
  desktop:
    on_error: false
logging:
  background_enabled: false
`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.IsKeyringEnabled() || cfg.IsDesktopOnErrorEnabled() || cfg.IsBackgroundLoggingEnabled() {
		t.Error("explicit false should win over defaults")
	}
}

// TestConfigValidate verifies invalid settings are rejected
func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{"valid", "api:\n  base_url: http://localhost:8000\n", ""},
		{"relative base url", "api:\n  base_url: localhost:8000/api\n", "api.base_url"},
		{"bad timeout", "api:\n  timeout: soon\n", "api.timeout"},
		{"negative toast duration", "notifications:\n  toast_duration: -1s\n", "toast_duration"},
		{"negative rate", "api:\n  requests_per_second: -2\n", "requests_per_second"},
		{"bad output", "output_format: xml\n", "output_format"},
		{"unknown resource", "resources:\n  books:\n    path: /api/books/\n", "unknown resource"},
		{"relative path", "resources:\n  notes:\n    path: api/notes/\n", "must start with '/'"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Parse([]byte(tt.yaml))
			if err != nil {
				t.Fatalf("Parse: %v", err)
			}
			err = cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("unexpected error %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

// TestApplyFlags verifies flags override file values
func TestApplyFlags(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ApplyFlags(true, "json", "http://other:9000", true)

	if !cfg.NoPrompt || cfg.OutputFormat != "json" || cfg.GetBaseURL() != "http://other:9000" || !cfg.Logging.Verbose {
		t.Errorf("flags not applied: %+v", cfg)
	}

	cfg.ApplyFlags(false, "", "", false)
	if !cfg.NoPrompt || cfg.OutputFormat != "json" {
		t.Error("zero flags must not reset values")
	}
}

// TestExpandPath verifies ~ and environment expansion
func TestExpandPath(t *testing.T) {
	home, _ := os.UserHomeDir()
	t.Setenv("ORGSYNC_TEST_DIR", "/srv")

	if got := ExpandPath("~/x/tokens.json"); got != filepath.Join(home, "x", "tokens.json") {
		t.Errorf("ExpandPath(~) = %q", got)
	}
	if got := ExpandPath("$ORGSYNC_TEST_DIR/stub.db"); got != "/srv/stub.db" {
		t.Errorf("ExpandPath($) = %q", got)
	}
	if got := ExpandPath(""); got != "" {
		t.Errorf("ExpandPath(empty) = %q", got)
	}
}
