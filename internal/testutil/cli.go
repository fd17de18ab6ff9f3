// Package testutil provides shared test utilities for CLI testing across packages.
// Every CLITest runs against its own in-memory stub API server.
package testutil

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"orgsync/backend/sqlite"
	"orgsync/cmd/orgsync/cmd"
	"orgsync/internal/credentials"
	"orgsync/internal/stubserver"
)

// Result codes printed in no-prompt mode
const (
	ResultActionCompleted = cmd.ResultActionCompleted
	ResultInfoOnly        = cmd.ResultInfoOnly
	ResultError           = cmd.ResultError
)

// DefaultPassword is the password of accounts created by Register
const DefaultPassword = "correct-horse"

// CLITest provides a test helper for running CLI commands in isolation.
type CLITest struct {
	t          *testing.T
	cfg        *cmd.Config
	tmpDir     string
	configPath string
	server     *httptest.Server
}

// NewCLITest creates a CLI test helper wired to a fresh stub server
func NewCLITest(t *testing.T) *CLITest {
	return newCLITest(t, stubserver.Config{})
}

// NewCLITestPaginated is NewCLITest with a server that wraps lists in pages
func NewCLITestPaginated(t *testing.T) *CLITest {
	return newCLITest(t, stubserver.Config{Paginate: true})
}

func newCLITest(t *testing.T, serverCfg stubserver.Config) *CLITest {
	t.Helper()

	store, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("failed to open stub database: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	serverCfg.Secret = []byte("cli-test-secret")
	serverCfg.BcryptCost = bcrypt.MinCost
	srv, err := stubserver.New(store, serverCfg)
	if err != nil {
		t.Fatalf("failed to create stub server: %v", err)
	}
	server := httptest.NewServer(srv.Handler())
	t.Cleanup(server.Close)

	c := &CLITest{
		t:      t,
		tmpDir: t.TempDir(),
		server: server,
	}
	c.configPath = filepath.Join(c.tmpDir, "config.yaml")
	c.writeConfig("")

	c.cfg = &cmd.Config{
		NoPrompt:   true,
		ConfigPath: c.configPath,
		Keyring:    credentials.NewMockKeyring(),
		Getenv:     func(string) string { return "" },
	}
	return c
}

func (c *CLITest) writeConfig(extra string) {
	c.t.Helper()
	content := fmt.Sprintf(`# test config
api:
  base_url: %s
  timeout: 5s
credentials:
  use_keyring: false
  token_file: %s
notifications:
  log:
    enabled: true
    path: %s
logging:
  background_enabled: false
%s`, c.server.URL, c.TokenFile(), c.NotificationLogPath(), extra)

	if err := os.WriteFile(c.configPath, []byte(content), 0644); err != nil {
		c.t.Fatalf("failed to write config file: %v", err)
	}
}

// AppendConfig adds raw YAML after the generated settings
func (c *CLITest) AppendConfig(yamlContent string) {
	c.t.Helper()
	c.writeConfig(yamlContent)
}

// Config returns the CLI config for direct access
func (c *CLITest) Config() *cmd.Config {
	return c.cfg
}

// TmpDir returns the temporary directory used by this test
func (c *CLITest) TmpDir() string {
	return c.tmpDir
}

// ConfigPath returns the path to the config file
func (c *CLITest) ConfigPath() string {
	return c.configPath
}

// ServerURL returns the base URL of the stub server
func (c *CLITest) ServerURL() string {
	return c.server.URL
}

// TokenFile returns where session tokens are written
func (c *CLITest) TokenFile() string {
	return filepath.Join(c.tmpDir, "tokens.json")
}

// NotificationLogPath returns the toast log of this test
func (c *CLITest) NotificationLogPath() string {
	return filepath.Join(c.tmpDir, "notifications.log")
}

// SetInput switches to interactive mode and feeds input to the prompts
func (c *CLITest) SetInput(input string) {
	c.cfg.NoPrompt = false
	c.cfg.Stdin = strings.NewReader(input)
}

// Execute runs a CLI command and returns stdout, stderr, and exit code
func (c *CLITest) Execute(args ...string) (stdout, stderr string, exitCode int) {
	c.t.Helper()

	var stdoutBuf, stderrBuf bytes.Buffer
	exitCode = cmd.Execute(args, &stdoutBuf, &stderrBuf, c.cfg)
	return stdoutBuf.String(), stderrBuf.String(), exitCode
}

// MustExecute runs a CLI command and fails the test if exit code is non-zero
func (c *CLITest) MustExecute(args ...string) string {
	c.t.Helper()

	stdout, stderr, exitCode := c.Execute(args...)
	if exitCode != 0 {
		c.t.Fatalf("expected exit code 0, got %d: stdout=%s stderr=%s", exitCode, stdout, stderr)
	}
	return stdout
}

// ExecuteAndFail runs a CLI command and fails the test if exit code is zero
func (c *CLITest) ExecuteAndFail(args ...string) (stdout, stderr string) {
	c.t.Helper()

	stdout, stderr, exitCode := c.Execute(args...)
	if exitCode == 0 {
		c.t.Fatalf("expected non-zero exit code, got 0: stdout=%s", stdout)
	}
	return stdout, stderr
}

// ExecuteJSON runs a command with --json and decodes its output
func (c *CLITest) ExecuteJSON(out any, args ...string) {
	c.t.Helper()

	stdout := c.MustExecute(append(args, "--json")...)
	if err := json.Unmarshal([]byte(stdout), out); err != nil {
		c.t.Fatalf("invalid JSON output: %v\n%s", err, stdout)
	}
}

// Register creates an account on the stub server through the CLI
func (c *CLITest) Register(username string) {
	c.t.Helper()
	c.MustExecute("register", username, "--email", username+"@example.com", "--password", DefaultPassword)
}

// Login registers username and signs in
func (c *CLITest) Login(username string) {
	c.t.Helper()
	c.Register(username)
	c.MustExecute("login", username, "--password", DefaultPassword)
}

// =============================================================================
// Assertions
// =============================================================================

// AssertContains checks that output contains expected substring
func AssertContains(t *testing.T, output, expected string) {
	t.Helper()
	if !strings.Contains(output, expected) {
		t.Errorf("expected output to contain %q, got:\n%s", expected, output)
	}
}

// AssertNotContains checks that output does not contain unexpected substring
func AssertNotContains(t *testing.T, output, unexpected string) {
	t.Helper()
	if strings.Contains(output, unexpected) {
		t.Errorf("expected output not to contain %q, got:\n%s", unexpected, output)
	}
}

// AssertExitCode checks that exit code matches expected value
func AssertExitCode(t *testing.T, got, want int) {
	t.Helper()
	if got != want {
		t.Errorf("expected exit code %d, got %d", want, got)
	}
}

// AssertResultCode checks that the last line of output is the expected result code
func AssertResultCode(t *testing.T, output, expectedCode string) {
	t.Helper()
	lines := strings.Split(strings.TrimSpace(output), "\n")
	if len(lines) == 0 {
		t.Errorf("expected result code %q but output is empty", expectedCode)
		return
	}
	lastLine := strings.TrimSpace(lines[len(lines)-1])
	if lastLine != expectedCode {
		t.Errorf("expected result code %q, got %q\nFull output:\n%s", expectedCode, lastLine, output)
	}
}
