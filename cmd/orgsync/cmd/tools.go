package cmd

import (
	"context"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/spf13/cobra"

	"orgsync/backend"
	"orgsync/backend/rest"
	"orgsync/backend/sqlite"
	"orgsync/internal/notification"
	"orgsync/internal/router"
	"orgsync/internal/shutdown"
	"orgsync/internal/stubserver"
	"orgsync/internal/tui"
	"orgsync/internal/utils"
)

// =============================================================================
// Notifications
// =============================================================================

// newNotificationsCmd creates the 'notifications' subcommand
func newNotificationsCmd(stdout, stderr io.Writer, cfg *Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "notifications",
		Short: "Show the notification log",
		Long:  "Show the toasts recorded by earlier runs, oldest first.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(cmd, cfg, stdout, stderr)
			if err != nil {
				return err
			}
			defer a.close()

			lines, err := notification.ReadLog(a.conf.GetNotificationLogPath())
			if err != nil {
				return fmt.Errorf("reading notification log: %w", err)
			}
			if a.json {
				if lines == nil {
					lines = []string{}
				}
				return writeJSON(a.stdout, map[string]any{"notifications": lines, "count": len(lines), "result": ResultInfoOnly})
			}
			if len(lines) == 0 {
				_, _ = fmt.Fprintln(a.stdout, "No notifications")
			}
			for _, line := range lines {
				_, _ = fmt.Fprintln(a.stdout, line)
			}
			a.done(ResultInfoOnly)
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Empty the notification log",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(cmd, cfg, stdout, stderr)
			if err != nil {
				return err
			}
			defer a.close()

			if err := notification.ClearLog(a.conf.GetNotificationLogPath()); err != nil {
				return fmt.Errorf("clearing notification log: %w", err)
			}
			if a.json {
				return outputActionJSON(a.stdout, "clear", "", nil)
			}
			_, _ = fmt.Fprintln(a.stdout, "Notification log cleared")
			a.done(ResultActionCompleted)
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	})
	return cmd
}

// =============================================================================
// Terminal UI
// =============================================================================

// newTUICmd creates the 'tui' subcommand
func newTUICmd(stdout, stderr io.Writer, cfg *Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tui",
		Short: "Open the interactive interface",
		Long:  "Open the full-screen interface. Screens that need a session send you to the login screen first.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(cmd, cfg, stdout, stderr)
			if err != nil {
				return err
			}
			defer a.close()

			start, _ := cmd.Flags().GetString("open")
			return runTUI(a, start)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.Flags().String("open", router.HomePath, "Route to open first, e.g. /tasks/lists")
	return cmd
}

func runTUI(a *app, start string) error {
	mgr := shutdown.NewManager(context.Background())
	stop := mgr.NotifySignals()
	defer stop()

	var logOutput io.Writer
	if a.conf.IsBackgroundLoggingEnabled() {
		bl, err := utils.NewBackgroundLogger()
		if err != nil {
			utils.Warnf("background log disabled: %v", err)
		} else {
			logOutput = bl
			mgr.RegisterCleanup("background log", func(context.Context) error {
				bl.Close()
				return nil
			})
		}
	}

	err := tui.Run(mgr.Context(), tui.Config{
		Resources: a.set,
		Clients: tui.Clients{
			Tasks:    rest.NewResource[backend.Task](a.api, a.set.Tasks.BasePath),
			Notes:    rest.NewResource[backend.Note](a.api, a.set.Notes.BasePath),
			Expenses: rest.NewResource[backend.Expense](a.api, a.set.Expenses.BasePath),
		},
		Auth:      a.auth,
		Gate:      a.guard,
		Toasts:    a.toasts,
		TokenFile: a.store.TokenFile(),
		StartPath: start,
		LogOutput: logOutput,
	})

	mgr.Shutdown()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if werr := mgr.Wait(ctx); werr != nil && err == nil {
		err = werr
	}
	return err
}

// =============================================================================
// Development server
// =============================================================================

// newServeCmd creates the 'serve' subcommand
func newServeCmd(stdout, stderr io.Writer, cfg *Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run a local API server for development",
		Long:  "Serve the organizer REST API from a local SQLite database, with the same token, register and collection endpoints.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(cmd, cfg, stdout, stderr)
			if err != nil {
				return err
			}
			defer a.close()

			addr, _ := cmd.Flags().GetString("addr")
			if addr == "" {
				addr = a.conf.GetStubAddr()
			}
			dbPath, _ := cmd.Flags().GetString("db")
			if dbPath == "" {
				dbPath = a.conf.GetStubDBPath()
			}
			return runServe(a, addr, dbPath)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.Flags().String("addr", "", "Listen address (default stub_server.addr)")
	cmd.Flags().String("db", "", "SQLite database path, or :memory:")
	return cmd
}

func runServe(a *app, addr, dbPath string) error {
	mgr := shutdown.NewManager(context.Background())
	stop := mgr.NotifySignals()
	defer stop()

	store, err := sqlite.New(dbPath)
	if err != nil {
		return utils.WrapWithSuggestion(err, "Pass --db with a writable path, or --db :memory:")
	}
	mgr.RegisterCleanup("database", func(context.Context) error { return store.Close() })

	srv, err := stubserver.New(store, stubserver.Config{
		Secret:         []byte(a.conf.StubServer.Secret),
		Paginate:       a.conf.StubServer.Paginate,
		AccessTokenTTL: a.conf.GetAccessTokenTTL(),
		Paths: map[backend.Kind]string{
			backend.KindTask:    a.set.Tasks.BasePath,
			backend.KindNote:    a.set.Notes.BasePath,
			backend.KindExpense: a.set.Expenses.BasePath,
		},
	})
	if err != nil {
		_ = store.Close()
		return err
	}

	err = srv.ListenAndServe(mgr.Context(), addr, func(ln net.Addr) {
		_, _ = fmt.Fprintf(a.stdout, "Listening on http://%s\n", ln)
	})

	mgr.Shutdown()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if werr := mgr.Wait(ctx); werr != nil && err == nil {
		err = werr
	}
	return err
}
