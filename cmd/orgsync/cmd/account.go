package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"orgsync/internal/auth"
	"orgsync/internal/utils"
)

// newLoginCmd creates the 'login' subcommand
func newLoginCmd(stdout, stderr io.Writer, cfg *Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "login [username]",
		Short: "Sign in and store the session tokens",
		Long:  "Exchange a username and password for API tokens. Tokens go to the system keyring, or the token file when the keyring is disabled.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(cmd, cfg, stdout, stderr)
			if err != nil {
				return err
			}
			defer a.close()

			username := ""
			if len(args) == 1 {
				username = args[0]
			}
			password, _ := cmd.Flags().GetString("password")
			return doLogin(context.Background(), a, username, password)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.Flags().StringP("password", "p", "", "Password (prompted when omitted)")
	return cmd
}

func doLogin(ctx context.Context, a *app, username, password string) error {
	var err error
	if username == "" {
		if a.prompter.NoPrompt() {
			return utils.WrapWithSuggestion(errors.New("username is required"), "Pass it as an argument: orgsync login <username>")
		}
		if username, err = a.prompter.Line("Username"); err != nil {
			return err
		}
	}
	if password == "" {
		if a.prompter.NoPrompt() {
			return utils.WrapWithSuggestion(errors.New("password is required"), "Pass --password when prompts are disabled")
		}
		if password, err = a.prompter.Password("Password"); err != nil {
			return err
		}
	}

	if err := a.auth.Login(ctx, username, password); err != nil {
		return a.explain(err, "", "")
	}

	if a.json {
		return outputActionJSON(a.stdout, "login", "", map[string]string{"username": username})
	}
	_, _ = fmt.Fprintf(a.stdout, "Logged in as %s\n", username)
	a.done(ResultActionCompleted)
	return nil
}

// newLogoutCmd creates the 'logout' subcommand
func newLogoutCmd(stdout, stderr io.Writer, cfg *Config) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored session tokens",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(cmd, cfg, stdout, stderr)
			if err != nil {
				return err
			}
			defer a.close()

			if err := a.auth.Logout(); err != nil {
				return err
			}
			if a.json {
				return outputActionJSON(a.stdout, "logout", "", nil)
			}
			_, _ = fmt.Fprintln(a.stdout, "Logged out")
			a.done(ResultActionCompleted)
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
}

// newRegisterCmd creates the 'register' subcommand
func newRegisterCmd(stdout, stderr io.Writer, cfg *Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "register <username>",
		Short: "Create an account",
		Long:  "Create an account on the server. The password is asked twice unless --password is given. Registering does not sign in.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(cmd, cfg, stdout, stderr)
			if err != nil {
				return err
			}
			defer a.close()

			email, _ := cmd.Flags().GetString("email")
			password, _ := cmd.Flags().GetString("password")
			return doRegister(context.Background(), a, args[0], email, password)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.Flags().String("email", "", "Email address")
	cmd.Flags().StringP("password", "p", "", "Password (prompted twice when omitted)")
	return cmd
}

func doRegister(ctx context.Context, a *app, username, email, password string) error {
	reg := auth.Registration{Username: username, Email: email, Password: password, Password2: password}
	if password == "" {
		if a.prompter.NoPrompt() {
			return utils.WrapWithSuggestion(errors.New("password is required"), "Pass --password when prompts are disabled")
		}
		var err error
		if reg.Password, err = a.prompter.Password("Password"); err != nil {
			return err
		}
		if reg.Password2, err = a.prompter.Password("Confirm password"); err != nil {
			return err
		}
	}

	if err := a.auth.Register(ctx, reg); err != nil {
		if errors.Is(err, auth.ErrPasswordMismatch) {
			return utils.WrapWithSuggestion(err, "Run the command again and type the same password twice")
		}
		return a.explain(err, "", "")
	}

	if a.json {
		return outputActionJSON(a.stdout, "register", "", map[string]string{"username": username, "email": email})
	}
	_, _ = fmt.Fprintf(a.stdout, "Account %s created. Run 'orgsync login %s' to sign in.\n", username, username)
	a.done(ResultActionCompleted)
	return nil
}
