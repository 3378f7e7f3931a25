package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rshade/detconsole/internal/api"
	"github.com/rshade/detconsole/internal/loadable"
)

// newUsersCmd creates the users command.
func newUsersCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "users",
		Short: "List users",
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := newSession(cmd, opts, "/users")
			if err != nil {
				return err
			}
			defer s.Close()

			users, err := s.svc.Users.Fetch(cmd.Context())
			if err != nil {
				return s.report(cmd.Context(), err)
			}

			rows := make([][]string, 0, len(users))
			for _, u := range users {
				rows = append(rows, []string{
					strconv.Itoa(u.ID), u.Username, u.DisplayName, yesNo(u.Admin), yesNo(u.Active),
				})
			}
			return render(cmd.OutOrStdout(), opts.output, users,
				[]string{"ID", "Username", "Display Name", "Admin", "Active"}, rows)
		},
	}
}

// newWorkspacesCmd creates the workspaces command.
func newWorkspacesCmd(opts *rootOptions) *cobra.Command {
	var id int

	cmd := &cobra.Command{
		Use:   "workspaces",
		Short: "List workspaces",
		Example: `  # List unarchived workspaces
  detconsole workspaces

  # Show one workspace
  detconsole workspaces --id 1`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := newSession(cmd, opts, "/workspaces")
			if err != nil {
				return err
			}
			defer s.Close()

			var workspaces []api.Workspace
			if id > 0 {
				ws, fetchErr := s.svc.Workspace.Ensure(cmd.Context(), id)
				if fetchErr != nil {
					return s.report(cmd.Context(), fetchErr)
				}
				workspaces = []api.Workspace{ws}
			} else {
				workspaces, err = s.svc.Workspaces.Fetch(cmd.Context())
				if err != nil {
					return s.report(cmd.Context(), err)
				}
			}

			rows := make([][]string, 0, len(workspaces))
			for _, w := range workspaces {
				rows = append(rows, []string{
					strconv.Itoa(w.ID), w.Name, w.Username,
					strconv.Itoa(w.NumProjects), strconv.Itoa(w.NumExperiments),
				})
			}
			var v any = workspaces
			if id > 0 {
				v = workspaces[0]
			}
			return render(cmd.OutOrStdout(), opts.output, v,
				[]string{"ID", "Name", "Owner", "Projects", "Experiments"}, rows)
		},
	}

	cmd.Flags().IntVar(&id, "id", 0, "show only the workspace with this id")

	return cmd
}

// newPoolsCmd creates the pools command.
func newPoolsCmd(opts *rootOptions) *cobra.Command {
	var name string

	cmd := &cobra.Command{
		Use:   "pools",
		Short: "List resource pools",
		Example: `  # List resource pools
  detconsole pools

  # Show one pool
  detconsole pools --name default`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := newSession(cmd, opts, "/clusters")
			if err != nil {
				return err
			}
			defer s.Close()

			pools, err := s.svc.ResourcePools.Fetch(cmd.Context())
			if err != nil {
				return s.report(cmd.Context(), err)
			}

			var v any = pools
			if name != "" {
				pool, err := loadable.WaitFor(s.svc.PoolByName(name))
				if err != nil {
					return fmt.Errorf("looking up pool %q: %w", name, err)
				}
				if pool == nil {
					return fmt.Errorf("no resource pool named %q", name)
				}
				pools = []api.ResourcePool{*pool}
				v = *pool
			}

			rows := make([][]string, 0, len(pools))
			for _, p := range pools {
				poolName := p.Name
				if p.DefaultComputePool {
					poolName += " *"
				}
				rows = append(rows, []string{
					poolName,
					strings.TrimPrefix(p.Type, "RESOURCE_POOL_TYPE_"),
					strconv.Itoa(p.NumAgents),
					fmt.Sprintf("%d/%d", p.SlotsUsed, p.SlotsAvailable),
					strconv.Itoa(p.SlotsFree()),
				})
			}
			return render(cmd.OutOrStdout(), opts.output, v,
				[]string{"Name", "Type", "Agents", "Slots Used", "Slots Free"}, rows)
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "show only the pool with this name")

	return cmd
}

// newInfoCmd creates the info command, which also checks the master version
// against master.min_version.
func newInfoCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Show master information",
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := newSession(cmd, opts, "/info")
			if err != nil {
				return err
			}
			defer s.Close()

			ctx := cmd.Context()
			info, err := s.svc.Info.Fetch(ctx)
			if err != nil {
				return s.report(ctx, err)
			}
			versionErr := s.report(ctx, s.svc.CheckVersion(ctx, s.cfg.Master.MinVersion))

			if opts.output == OutputJSON {
				if err := renderJSON(cmd.OutOrStdout(), info); err != nil {
					return err
				}
				return versionErr
			}
			rows := [][]string{
				{"Master", s.client.BaseURL().String()},
				{"Version", info.Version},
				{"Cluster", info.ClusterName},
				{"Cluster ID", info.ClusterID},
				{"Master ID", info.MasterID},
				{"RBAC", yesNo(info.RBACEnabled)},
			}
			if err := renderTable(cmd.OutOrStdout(), []string{"Field", "Value"}, rows); err != nil {
				return err
			}
			return versionErr
		},
	}
}
