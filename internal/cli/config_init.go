package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/rshade/detconsole/internal/config"
)

// newConfigInitCmd creates the config init command for initializing configuration.
// With a resolved project directory (and without --global), it creates a
// project-local .detconsole/ directory with config.yaml and .gitignore.
// Otherwise, it creates the global ~/.detconsole/config.yaml.
func newConfigInitCmd(opts *rootOptions) *cobra.Command {
	var (
		force  bool
		global bool
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize configuration file with default values",
		Long: `Creates a new configuration file with default values.

With --project-dir (or DETCONSOLE_PROJECT_DIR), creates project-local
configuration at $PROJECT/.detconsole/config.yaml with a .gitignore to protect
saved sessions. Use --global to force global configuration initialization.`,
		Example: `  # Create global configuration
  detconsole config init

  # Create project-local configuration
  detconsole config init --project-dir .

  # Create configuration, overwriting existing
  detconsole config init --force`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if opts.resolvedProjectDir != "" && !global {
				return initProjectConfig(cmd, opts.resolvedProjectDir, force)
			}

			return initGlobalConfig(cmd, force)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "overwrite existing configuration file")
	cmd.Flags().BoolVar(&global, "global", false, "force global configuration init even with a project directory")

	return cmd
}

// initProjectConfig creates project-local config at projectDir/config.yaml with .gitignore.
func initProjectConfig(cmd *cobra.Command, projectDir string, force bool) error {
	configPath := filepath.Join(projectDir, "config.yaml")

	if err := checkWritable(configPath, force); err != nil {
		return err
	}

	if err := os.MkdirAll(projectDir, 0o750); err != nil {
		return fmt.Errorf("failed to create project config directory: %w", err)
	}

	cfg := config.Default()
	cfg.SetConfigPath(configPath)
	if err := cfg.Save(); err != nil {
		return fmt.Errorf("failed to save configuration: %w", err)
	}

	// Create .gitignore (never overwrites existing)
	created, err := config.EnsureGitignore(projectDir)
	if err != nil {
		return fmt.Errorf("failed to create .gitignore: %w", err)
	}

	cmd.Printf("Configuration initialized at %s\n", configPath)
	if created {
		cmd.Printf("Created .gitignore to protect user-specific data\n")
	}

	return nil
}

// initGlobalConfig creates global config at ~/.detconsole/config.yaml.
func initGlobalConfig(cmd *cobra.Command, force bool) error {
	path, err := config.DefaultConfigPath()
	if err != nil {
		return err
	}
	if err := checkWritable(path, force); err != nil {
		return err
	}

	cfg := config.Default()
	cfg.SetConfigPath(path)
	if err := cfg.Save(); err != nil {
		return fmt.Errorf("failed to save configuration: %w", err)
	}

	cmd.Printf("Configuration initialized successfully\n")
	cmd.Printf("Configuration file: %s\n", path)

	return nil
}

// checkWritable refuses to replace an existing file unless force is set.
func checkWritable(path string, force bool) error {
	if force {
		return nil
	}
	_, err := os.Stat(path)
	if err == nil {
		return errors.New("configuration file already exists, use --force to overwrite")
	}
	if !os.IsNotExist(err) {
		return fmt.Errorf("cannot access config path %s: %w", path, err)
	}
	return nil
}
