package cli

import (
	"errors"
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/rshade/detconsole/internal/api"
	"github.com/rshade/detconsole/internal/deterr"
	"github.com/rshade/detconsole/internal/loadable"
	"github.com/rshade/detconsole/internal/tui"
)

// programRef lets the error handler exist before the program it sends to.
type programRef struct {
	p *tea.Program
}

// Send implements tui.Sender. Messages sent before the program is set are dropped.
func (r *programRef) Send(msg tea.Msg) {
	if r.p != nil {
		r.p.Send(msg)
	}
}

// newConsoleCmd creates the console command, the interactive dashboard.
func newConsoleCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "console",
		Short: "Open the interactive cluster dashboard",
		Long: `Shows resource pools, workspaces and users, refreshing every
console.refresh_seconds. Errors appear as toasts; an expired session ends the
dashboard.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.OutOrStdout() == os.Stdout && !isTerminal(os.Stdout) {
				return errors.New("console requires an interactive terminal")
			}

			ref := &programRef{}
			s, err := newConsoleSession(cmd, opts, ref)
			if err != nil {
				return err
			}
			defer s.Close()

			ctx := cmd.Context()
			model := tui.Seed(tui.NewDashboardModel(ctx, s.svc.FetchAll), s.svc)
			p := tea.NewProgram(model,
				tea.WithContext(ctx),
				tea.WithInput(cmd.InOrStdin()),
				tea.WithOutput(cmd.OutOrStdout()),
				tea.WithAltScreen(),
			)
			ref.p = p

			unbind := tui.Bind(p, s.svc)
			defer unbind()
			s.svc.StartRefresh(ctx, s.cfg.RefreshInterval())

			go func() {
				// an expired session is already on its way out
				if _, err := loadable.Await[api.User](ctx, s.svc.CurrentUser.Observe()); err != nil {
					return
				}
				if err := s.svc.CheckVersion(ctx, s.cfg.Master.MinVersion); err != nil {
					_ = s.report(ctx, err)
				}
			}()

			final, err := p.Run()
			if err != nil && !errors.Is(err, tea.ErrProgramKilled) {
				return fmt.Errorf("running dashboard: %w", err)
			}
			if m, ok := final.(tui.DashboardModel); ok && m.ExitMessage() != "" {
				cmd.PrintErrln(m.ExitMessage())
			}
			return nil
		},
	}
}

// newConsoleSession builds a session whose handler talks to the dashboard.
// An auth redirect forgets the saved token before the dashboard quits, so the
// next run asks for a login instead of replaying the expired session.
func newConsoleSession(cmd *cobra.Command, opts *rootOptions, ref tui.Sender) (*session, error) {
	var forget func()
	s, err := newSession(cmd, opts, tui.DashboardPath,
		deterr.WithNotifier(tui.NewNotifier(ref)),
		deterr.WithNavigator(tui.NewNavigator(ref, func(string) {
			if forget != nil {
				forget()
			}
		})),
	)
	if err != nil {
		return nil, err
	}
	master := s.client.BaseURL().String()
	forget = func() { forgetToken(s.tokens, master) }
	return s, nil
}
