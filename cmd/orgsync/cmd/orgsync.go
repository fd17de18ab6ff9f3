package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/spf13/cobra"

	"orgsync/backend"
	"orgsync/backend/rest"
	"orgsync/internal/auth"
	"orgsync/internal/cli/prompt"
	"orgsync/internal/config"
	"orgsync/internal/coordinator"
	"orgsync/internal/credentials"
	"orgsync/internal/notification"
	"orgsync/internal/ratelimit"
	"orgsync/internal/resource"
	"orgsync/internal/utils"
)

// Version is set at build time
var Version = "dev"

// Result codes for CLI output (used in no-prompt mode)
const (
	ResultActionCompleted = "ACTION_COMPLETED"
	ResultInfoOnly        = "INFO_ONLY"
	ResultError           = "ERROR"
)

// Config holds what the caller injects into a CLI run
type Config struct {
	NoPrompt   bool
	Verbose    bool
	ConfigPath string // empty: $XDG_CONFIG_HOME/orgsync/config.yaml

	Stdin    io.Reader             // prompt input, os.Stdin when nil
	Terminal prompt.TerminalReader // hidden password input, stdin terminal when nil
	Keyring  credentials.Keyring   // system keyring when nil
	Getenv   func(string) string   // os.Getenv when nil
}

// Execute runs the CLI with the given arguments and IO writers
func Execute(args []string, stdout, stderr io.Writer, cfg *Config) int {
	rootCmd := NewOrgSync(stdout, stderr, cfg)

	rootCmd.SetArgs(args)
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)

	if err := rootCmd.Execute(); err != nil {
		if containsJSONFlag(args) {
			outputErrorJSON(err, stdout)
		} else {
			_, _ = fmt.Fprintln(stderr, "Error:", err)
			if (cfg != nil && cfg.NoPrompt) || containsNoPromptFlag(args) {
				_, _ = fmt.Fprintln(stdout, ResultError)
			}
		}
		return 1
	}
	return 0
}

func containsJSONFlag(args []string) bool {
	for _, arg := range args {
		if arg == "--json" {
			return true
		}
	}
	return false
}

func containsNoPromptFlag(args []string) bool {
	for _, arg := range args {
		if arg == "-y" || arg == "--no-prompt" {
			return true
		}
	}
	return false
}

// NewOrgSync creates the root command with injectable IO
func NewOrgSync(stdout, stderr io.Writer, cfg *Config) *cobra.Command {
	if cfg == nil {
		cfg = &Config{}
	}

	cmd := &cobra.Command{
		Use:     "orgsync",
		Short:   "Tasks, notes and expenses from the terminal",
		Long:    "orgsync keeps your tasks, notes and expenses in sync with the organizer API.",
		Version: Version,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().String("config", "", "Path to the config file")
	cmd.PersistentFlags().String("base-url", "", "API root, overrides api.base_url")
	cmd.PersistentFlags().BoolP("no-prompt", "y", false, "Disable interactive prompts and assume yes")
	cmd.PersistentFlags().BoolP("verbose", "V", false, "Enable verbose/debug output")
	cmd.PersistentFlags().Bool("json", false, "Output in JSON format")

	cmd.AddCommand(newLoginCmd(stdout, stderr, cfg))
	cmd.AddCommand(newLogoutCmd(stdout, stderr, cfg))
	cmd.AddCommand(newRegisterCmd(stdout, stderr, cfg))
	cmd.AddCommand(newTasksCmd(stdout, stderr, cfg))
	cmd.AddCommand(newNotesCmd(stdout, stderr, cfg))
	cmd.AddCommand(newExpensesCmd(stdout, stderr, cfg))
	cmd.AddCommand(newNotificationsCmd(stdout, stderr, cfg))
	cmd.AddCommand(newTUICmd(stdout, stderr, cfg))
	cmd.AddCommand(newServeCmd(stdout, stderr, cfg))
	cmd.AddCommand(newVersionCmd(stdout))

	return cmd
}

// =============================================================================
// Application wiring
// =============================================================================

// app is everything a command needs, built from flags and the config file
type app struct {
	cfg      *Config
	conf     *config.Config
	stdout   io.Writer
	stderr   io.Writer
	json     bool
	prompter *prompt.Prompter

	store   *credentials.Store
	api     *rest.Transport // carries the access token
	authAPI *rest.Transport // token and register endpoints, no credentials
	auth    *auth.Client
	guard   *auth.Guard
	set     resource.Set
	toasts  *notification.Queue
	stats   *ratelimit.Stats
}

// loadConfig reads the config file and applies flag overrides
func loadConfig(cmd *cobra.Command, cfg *Config) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		path = cfg.ConfigPath
	}
	conf, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	noPrompt, _ := cmd.Flags().GetBool("no-prompt")
	verbose, _ := cmd.Flags().GetBool("verbose")
	jsonOutput, _ := cmd.Flags().GetBool("json")
	baseURL, _ := cmd.Flags().GetString("base-url")
	format := ""
	if jsonOutput {
		format = "json"
	}
	conf.ApplyFlags(noPrompt || cfg.NoPrompt, format, baseURL, verbose || cfg.Verbose)

	if err := conf.Validate(); err != nil {
		return nil, utils.WrapWithSuggestion(err, "Fix the config file or pass --config with another one")
	}
	utils.SetVerboseMode(conf.Logging.Verbose)
	return conf, nil
}

// setup builds the app. The caller must call close.
func setup(cmd *cobra.Command, cfg *Config, stdout, stderr io.Writer) (*app, error) {
	conf, err := loadConfig(cmd, cfg)
	if err != nil {
		return nil, err
	}

	a := &app{
		cfg:    cfg,
		conf:   conf,
		stdout: stdout,
		stderr: stderr,
		json:   conf.OutputFormat == "json",
		set:    resource.Configured(conf.GetResourcePath),
		stats:  ratelimit.NewStats(),
	}

	stdin := cfg.Stdin
	if stdin == nil {
		stdin = os.Stdin
	}
	terminal := cfg.Terminal
	if terminal == nil && cfg.Stdin == nil {
		terminal = prompt.StdinTerminal()
	}
	a.prompter = prompt.New(stdin, stdout, conf.NoPrompt, terminal)

	var storeOpts []credentials.StoreOption
	if cfg.Keyring != nil {
		storeOpts = append(storeOpts, credentials.WithKeyring(cfg.Keyring))
	}
	if cfg.Getenv != nil {
		storeOpts = append(storeOpts, credentials.WithEnv(cfg.Getenv))
	}
	a.store = credentials.NewStore(credentials.Config{
		UseKeyring: conf.IsKeyringEnabled(),
		TokenFile:  conf.GetTokenFile(),
		Account:    conf.GetBaseURL(),
	}, storeOpts...)

	limiter := ratelimit.NewLimiter(ratelimit.Config{
		RequestsPerSecond: conf.API.RequestsPerSecond,
		Burst:             conf.GetBurst(),
		Stats:             a.stats,
	})
	a.api, err = rest.NewTransport(rest.Config{
		BaseURL:     conf.GetBaseURL(),
		Timeout:     conf.GetTimeout(),
		Credentials: a.store,
		Limiter:     limiter,
	})
	if err != nil {
		return nil, err
	}
	a.authAPI, err = rest.NewTransport(rest.Config{
		BaseURL: conf.GetBaseURL(),
		Timeout: conf.GetTimeout(),
		Limiter: limiter,
	})
	if err != nil {
		_ = a.api.Close()
		return nil, err
	}
	a.auth = auth.NewClient(a.authAPI, a.store)
	a.guard = auth.NewGuard(a.store, auth.WithRefresher(a.auth))

	var queueOpts []notification.Option
	if conf.Logging.Verbose {
		queueOpts = append(queueOpts, notification.WithSink(notification.NewWriterSink(stderr)))
	}
	a.toasts = notification.NewQueue(&notification.Config{
		ToastDuration: conf.GetToastDuration(),
		Log: notification.LogConfig{
			Enabled:   conf.Notifications.Log.Enabled,
			Path:      conf.GetNotificationLogPath(),
			MaxSizeMB: conf.GetNotificationLogMaxSizeMB(),
		},
		Desktop: notification.DesktopConfig{
			Enabled:   conf.Notifications.Desktop.Enabled,
			OnError:   conf.IsDesktopOnErrorEnabled(),
			OnSuccess: conf.Notifications.Desktop.OnSuccess,
		},
	}, queueOpts...)

	return a, nil
}

func (a *app) close() {
	_ = a.toasts.Close()
	_ = a.api.Close()
	_ = a.authAPI.Close()
	if n := a.stats.RateLimitCount(); n > 0 {
		utils.Debugf("server rate limited %d request(s)", n)
	}
}

// requireLogin runs the same guard as the TUI router
func (a *app) requireLogin(ctx context.Context) error {
	if a.guard.Check(ctx) != auth.Allow {
		return utils.ErrNotAuthenticated()
	}
	return nil
}

// explain turns a request failure into a user-facing error
func (a *app) explain(err error, kind backend.Kind, id string) error {
	if err == nil {
		return nil
	}
	var suggested *utils.ErrorWithSuggestion
	if errors.As(err, &suggested) {
		return err
	}

	f, ok := backend.AsFailure(err)
	if !ok {
		return err
	}
	switch {
	case rest.IsOffline(err):
		reason := f.Summary()
		if f.Cause != nil {
			reason = f.Cause.Error()
		}
		return utils.ErrBackendOffline(a.conf.GetBaseURL(), reason)
	case f.Kind == backend.NotFound && id != "":
		return utils.ErrEntityNotFound(string(kind), id)
	case f.StatusCode == http.StatusUnauthorized:
		return utils.ErrNotAuthenticated()
	}
	return errors.New(coordinator.Describe(err))
}

// done prints the result code of a completed action in no-prompt mode
func (a *app) done(code string) {
	if a.conf.NoPrompt && !a.json {
		_, _ = fmt.Fprintln(a.stdout, code)
	}
}

// =============================================================================
// JSON output
// =============================================================================

type actionResponse struct {
	Action string `json:"action"`
	Kind   string `json:"kind,omitempty"`
	Item   any    `json:"item,omitempty"`
	Result string `json:"result"`
}

type errorResponse struct {
	Error  string `json:"error"`
	Code   int    `json:"code"`
	Result string `json:"result"`
}

func writeJSON(w io.Writer, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintln(w, string(data))
	return nil
}

func outputActionJSON(w io.Writer, action string, kind backend.Kind, item any) error {
	return writeJSON(w, actionResponse{Action: action, Kind: string(kind), Item: item, Result: ResultActionCompleted})
}

func outputErrorJSON(err error, stdout io.Writer) {
	_ = writeJSON(stdout, errorResponse{Error: err.Error(), Code: 1, Result: ResultError})
}

// =============================================================================
// Version
// =============================================================================

func newVersionCmd(stdout io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, _ = fmt.Fprintf(stdout, "orgsync version %s\n", Version)
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
}
