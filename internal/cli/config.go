package cli

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/rshade/detconsole/internal/config"
)

// newConfigCmd creates the config command group with configuration subcommands.
func newConfigCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{Use: "config", Short: "Configuration management commands"}
	cmd.AddCommand(
		newConfigInitCmd(opts), newConfigSetCmd(opts), newConfigGetCmd(opts),
		newConfigListCmd(opts), newConfigValidateCmd(opts),
	)
	return cmd
}

// newConfigGetCmd prints one effective setting.
func newConfigGetCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "get <key>",
		Short:   "Print a configuration value",
		Args:    cobra.ExactArgs(1),
		Example: `  detconsole config get master.url`,
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := opts.settings().Get(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), v)
			return nil
		},
	}
}

// newConfigSetCmd writes one setting to the file being edited, without
// baking in environment overrides.
func newConfigSetCmd(opts *rootOptions) *cobra.Command {
	var global bool

	cmd := &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set a configuration value",
		Args:  cobra.ExactArgs(2), //nolint:mnd // key and value
		Example: `  # Point at a master
  detconsole config set master.url https://det.example.com

  # Require a minimum master version
  detconsole config set master.min_version 0.26.0`,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := opts.configPath
			if path == "" && opts.resolvedProjectDir != "" && !global {
				path = filepath.Join(opts.resolvedProjectDir, "config.yaml")
			}

			cfg, err := config.LoadFile(path)
			if err != nil {
				return err
			}
			if err := cfg.Set(args[0], args[1]); err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("configuration validation failed: %w", err)
			}
			if err := cfg.Save(); err != nil {
				return fmt.Errorf("failed to save configuration: %w", err)
			}

			cmd.Printf("Set %s in %s\n", args[0], cfg.ConfigPath())
			return nil
		},
	}

	cmd.Flags().BoolVar(&global, "global", false, "edit the global file even with a project directory")

	return cmd
}

// newConfigListCmd prints every effective setting.
func newConfigListCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List configuration values",
		RunE: func(cmd *cobra.Command, _ []string) error {
			pairs, err := opts.settings().List()
			if err != nil {
				return err
			}
			for _, p := range pairs {
				fmt.Fprintln(cmd.OutOrStdout(), p)
			}
			return nil
		},
	}
}

// newConfigValidateCmd creates the config validate command for validating configuration.
func newConfigValidateCmd(opts *rootOptions) *cobra.Command {
	var verbose bool
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate configuration file",
		Long: `Validates the effective configuration (file, project overlay and
environment) for syntax and semantic correctness.`,
		Example: `  # Validate current configuration
  detconsole config validate

  # Validate and show detailed information
  detconsole config validate --verbose`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runConfigValidate(cmd, opts.settings(), verbose)
		},
	}

	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "show detailed validation information")

	return cmd
}

// runConfigValidate executes the configuration validation logic.
func runConfigValidate(cmd *cobra.Command, cfg *config.Config, verbose bool) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}

	cmd.Printf("Configuration is valid\n")

	if verbose {
		printVerboseDetails(cmd, cfg)
	}

	return nil
}

// printVerboseDetails prints detailed configuration information.
func printVerboseDetails(cmd *cobra.Command, cfg *config.Config) {
	cmd.Println()
	cmd.Println("Configuration details:")
	cmd.Printf("  Config file: %s\n", cfg.ConfigPath())
	cmd.Printf("  Master: %s\n", cfg.Master.URL)
	if cfg.Master.MinVersion != "" {
		cmd.Printf("  Minimum master version: %s\n", cfg.Master.MinVersion)
	}
	cmd.Printf("  Request timeout: %s\n", cfg.RequestTimeout())
	cmd.Printf("  Logging level: %s\n", cfg.Logging.Level)
	cmd.Printf("  Log file: %s\n", cfg.Logging.File)
	if cfg.Storage.Enabled {
		dir, _ := cfg.StorageDir()
		cmd.Printf("  Storage: %s (ttl %ds)\n", dir, cfg.Storage.TTLSeconds)
	} else {
		cmd.Println("  Storage: disabled")
	}
	cmd.Printf("  Console refresh: %s\n", cfg.RefreshInterval())
}
