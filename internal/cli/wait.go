package cli

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/spf13/cobra"

	"github.com/rshade/detconsole/internal/deterr"
	"github.com/rshade/detconsole/internal/wait"
)

// taskKinds are the task types with an event stream.
var taskKinds = []string{"notebook", "tensorboard", "shell", "command"} //nolint:gochecknoglobals // static list

// newWaitCmd creates the wait command, which blocks until a task is ready
// and prints the URL it is served at.
func newWaitCmd(opts *rootOptions) *cobra.Command {
	var (
		timeout time.Duration
		quiet   bool
	)

	cmd := &cobra.Command{
		Use:       "wait <notebook|tensorboard|shell|command> <id>",
		Short:     "Wait for a task to become ready",
		Long:      "Follows the task's event stream until it is ready or terminated, reconnecting on drops.",
		ValidArgs: taskKinds,
		Args:      cobra.ExactArgs(2), //nolint:mnd // kind and id
		Example: `  # Wait for a notebook and print its URL
  detconsole wait notebook 0f4b5a3c-6d1e-4c6f-9a55-1b0c3f8c2d71

  # Give up after 5 minutes of reconnecting
  detconsole wait tensorboard 7a1e --timeout 5m`,
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, id := args[0], args[1]
			if !slices.Contains(taskKinds, kind) {
				return fmt.Errorf("unknown task kind %q, expected one of %v", kind, taskKinds)
			}

			s, err := newSession(cmd, opts, "/"+kind+"s/"+id)
			if err != nil {
				return err
			}
			defer s.Close()

			master := s.client.BaseURL().String()
			eventURL, err := wait.EventURL(master, kind, id)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			waitOpts := []wait.Option{
				wait.WithToken(s.client.Token()),
				wait.WithMaxElapsed(timeout),
				wait.WithLogger(s.logger),
			}
			if !quiet {
				waitOpts = append(waitOpts, wait.WithOnState(func(snap wait.Snapshot) {
					cmd.PrintErrf("%s %s: %s (ready: %s)\n", kind, id, snap.State, yesNo(snap.IsReady))
				}))
			}

			outcome, err := wait.Watch(ctx, eventURL, waitOpts...)
			if err != nil {
				subject := "Unable to follow " + kind
				if errors.Is(err, wait.ErrTerminated) {
					subject = fmt.Sprintf("The %s terminated before it was ready", kind)
				}
				return s.report(ctx, err, deterr.WithPublicSubject(subject),
					deterr.WithPayload(map[string]any{"kind": kind, "id": id}))
			}
			logger.Info().Ctx(ctx).Str("kind", kind).Str("id", id).Stringer("outcome", outcome).Msg("task ready")

			jump, err := wait.JumpURL(master, id)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), jump)
			return nil
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", wait.DefaultMaxElapsed, "how long to keep reconnecting")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "do not print state changes")

	return cmd
}
