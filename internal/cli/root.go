package cli

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/rshade/detconsole/internal/config"
	"github.com/rshade/detconsole/internal/logging"
)

// Output formats accepted by --output.
const (
	OutputTable = "table"
	OutputJSON  = "json"
)

// isTerminal checks if the given file is a terminal.
func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// logger is the package-level logger for CLI operations.
var logger zerolog.Logger //nolint:gochecknoglobals // Required for zerolog context integration

// rootOptions holds the persistent flags and what PersistentPreRunE resolved
// from them.
type rootOptions struct {
	configPath string
	projectDir string
	master     string
	user       string
	output     string
	debug      bool

	resolvedProjectDir string
	cfg                *config.Config
}

// NewRootCmd creates the root Cobra command for the detconsole CLI.
// It loads configuration, wires up logging and tracing, and registers the
// session, listing, wait, probe, console and config subcommands.
func NewRootCmd(ver string) *cobra.Command {
	var logResult *logging.LogPathResult
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "detconsole",
		Short:         "Terminal console for a Determined master",
		Long:          "detconsole: inspect and wait on a Determined cluster from the terminal",
		Version:       ver,
		Example:       rootCmdExample,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if opts.output != OutputTable && opts.output != OutputJSON {
				return fmt.Errorf("--output must be %q or %q, got %q", OutputTable, OutputJSON, opts.output)
			}
			if err := opts.loadConfig(cmd); err != nil {
				return err
			}

			result := setupLogging(cmd, opts.debug)
			logResult = &result
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
			return cleanupLogging(cmd, logResult)
		},
	}

	flags := cmd.PersistentFlags()
	flags.BoolVar(&opts.debug, "debug", false, "enable debug logging")
	flags.StringVar(&opts.configPath, "config", "", "configuration file (default ~/.detconsole/config.yaml)")
	flags.StringVar(&opts.projectDir, "project-dir", "", "project directory holding a .detconsole overlay")
	flags.StringVarP(&opts.master, "master", "m", "", "master URL (overrides config and DET_MASTER)")
	flags.StringVarP(&opts.user, "user", "u", "", "username (overrides config and DET_USER)")
	flags.StringVarP(&opts.output, "output", "o", OutputTable, "output format: table or json")

	cmd.AddCommand(
		newLoginCmd(opts), newLogoutCmd(opts), newWhoamiCmd(opts),
		newUsersCmd(opts), newWorkspacesCmd(opts), newPoolsCmd(opts), newInfoCmd(opts),
		newWaitCmd(opts), newProbeCmd(opts), newConsoleCmd(opts),
		newConfigCmd(opts),
	)

	return cmd
}

const rootCmdExample = `  # Sign in to a master
  detconsole login --master https://det.example.com --user admin

  # Show the cluster's resource pools
  detconsole pools

  # List workspaces as JSON
  detconsole workspaces -o json

  # Wait for a notebook to become ready and print its URL
  detconsole wait notebook 0f4b5a3c

  # Check API latency against the p95 threshold
  detconsole probe --iterations 20

  # Open the interactive dashboard
  detconsole console

  # Initialize configuration
  detconsole config init`

// loadConfig resolves the configuration: an explicit --config file, or the
// global file with the project overlay merged on top. Flags win over both.
func (o *rootOptions) loadConfig(cmd *cobra.Command) error {
	ctx := cmd.Context()

	var cfg *config.Config
	if o.configPath != "" {
		loaded, err := config.Load(o.configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	} else {
		cwd, err := os.Getwd()
		if err != nil {
			cwd = "."
		}
		o.resolvedProjectDir = config.ResolveProjectDir(ctx, o.projectDir, cwd)
		cfg = config.NewWithProjectDir(ctx, o.resolvedProjectDir)
	}

	if o.master != "" {
		cfg.Master.URL = o.master
	}
	if o.user != "" {
		cfg.Master.User = o.user
	}

	o.cfg = cfg
	config.SetGlobalConfig(cfg)
	return nil
}

// settings returns the resolved configuration.
func (o *rootOptions) settings() *config.Config {
	if o.cfg == nil {
		o.cfg = config.GetGlobalConfig()
	}
	return o.cfg
}
