package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/rshade/detconsole/internal/deterr"
	"github.com/rshade/detconsole/internal/storage"
)

// defaultUsername is the account a fresh master is provisioned with.
const defaultUsername = "determined"

// newLoginCmd creates the login command, which saves a session token for the
// master.
func newLoginCmd(opts *rootOptions) *cobra.Command {
	var passwordStdin bool

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in to the master and save the session",
		Long: `Signs in to the master and saves the session token in the storage directory.

The password is read from stdin with --password-stdin, prompted for on a
terminal, and empty otherwise.`,
		Example: `  # Prompt for the password
  detconsole login --user admin

  # Read the password from a pipe
  echo "$DET_PASS" | detconsole login --user admin --password-stdin`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := newSession(cmd, opts, opts.settings().Console.LoginPath)
			if err != nil {
				return err
			}
			defer s.Close()

			username := s.cfg.Master.User
			if username == "" {
				username = defaultUsername
			}
			password, err := readPassword(cmd, username, passwordStdin)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			resp, err := s.client.Login(ctx, username, password)
			if err != nil {
				return fmt.Errorf("login as %s failed: %w", username,
					s.report(ctx, err, deterr.WithPublicSubject("Login failed"), deterr.WithID("login-failed")))
			}

			master := s.client.BaseURL().String()
			if err := s.tokens.SaveToken(master, resp.User.Username, resp.Token); err != nil {
				if !errors.Is(err, storage.ErrDisabled) {
					return fmt.Errorf("saving session: %w", err)
				}
				cmd.PrintErrln("Warning: storage is disabled, the session will not be saved")
			}
			s.svc.CurrentUser.Set(resp.User)

			logger.Info().Ctx(ctx).Str("master", master).Str("user", resp.User.Username).Msg("logged in")
			cmd.Printf("Logged in to %s as %s\n", master, resp.User.Name())
			return nil
		},
	}

	cmd.Flags().BoolVar(&passwordStdin, "password-stdin", false, "read the password from stdin")

	return cmd
}

// readPassword gets the password from stdin, a terminal prompt, or nowhere.
func readPassword(cmd *cobra.Command, username string, fromStdin bool) (string, error) {
	if fromStdin {
		line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return "", fmt.Errorf("reading password: %w", err)
		}
		return strings.TrimRight(line, "\r\n"), nil
	}

	if cmd.InOrStdin() != os.Stdin || !isTerminal(os.Stdin) {
		return "", nil
	}
	cmd.PrintErrf("Password for %s: ", username)
	b, err := term.ReadPassword(int(os.Stdin.Fd()))
	cmd.PrintErrln()
	if err != nil {
		return "", fmt.Errorf("reading password: %w", err)
	}
	return string(b), nil
}

// newLogoutCmd creates the logout command.
func newLogoutCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "End the session and forget the saved token",
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := newSession(cmd, opts, opts.settings().Console.LogoutPath)
			if err != nil {
				return err
			}
			defer s.Close()

			ctx := cmd.Context()
			if err := s.svc.Logout(ctx, s.tokens); err != nil {
				// the local session is gone either way
				logger.Warn().Ctx(ctx).Err(err).Msg("logout was not confirmed by the master")
			}
			cmd.Printf("Logged out of %s\n", s.client.BaseURL())
			return nil
		},
	}
}

// newWhoamiCmd creates the whoami command.
func newWhoamiCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in user",
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := newSession(cmd, opts, "/whoami")
			if err != nil {
				return err
			}
			defer s.Close()

			user, err := s.svc.CurrentUser.Fetch(cmd.Context())
			if err != nil {
				return s.report(cmd.Context(), err)
			}
			if opts.output == OutputJSON {
				return renderJSON(cmd.OutOrStdout(), user)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s (id %d, admin: %s) on %s\n",
				user.Name(), user.ID, yesNo(user.Admin), s.client.BaseURL())
			return nil
		},
	}
}
