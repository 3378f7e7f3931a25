package cli

import (
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/rshade/detconsole/internal/config"
	"github.com/rshade/detconsole/internal/logging"
)

// setupLogging builds the cli logger and puts it, with a trace id, in the
// command context. --debug sends debug output to the terminal; IS_DEV only
// lowers the level.
func setupLogging(cmd *cobra.Command, debug bool) logging.LogPathResult {
	logCfg := devLogging(config.GetLoggingConfig(), debug, config.IsDev())

	if logCfg.File != "" {
		if err := config.EnsureLogDir(); err != nil {
			_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "Warning: could not create log directory: %v\n", err)
		}
	}

	result := logging.NewLoggerWithPath(logCfg.ToLoggingConfig())
	logger = logging.ComponentLogger(result.Logger, "cli")

	switch {
	case result.UsingFile:
		logging.PrintLogPathMessage(cmd.ErrOrStderr(), result.FilePath)
	case result.FallbackUsed:
		logging.PrintFallbackWarning(cmd.ErrOrStderr(), result.FallbackReason)
	}

	ctx := cmd.Context()
	ctx = logging.ContextWithTraceID(ctx, logging.GetOrGenerateTraceID(ctx))
	ctx = logger.WithContext(ctx)
	cmd.SetContext(ctx)

	logger.Info().Ctx(ctx).
		Str("command", cmd.CommandPath()).
		Str("master", config.GetMasterURL()).
		Bool("dev", config.IsDev()).
		Msg("command started")

	return result
}

// devLogging applies --debug and dev mode on top of the configured logging.
func devLogging(cfg config.LoggingConfig, debug, dev bool) config.LoggingConfig {
	switch {
	case debug:
		cfg.Level = zerolog.DebugLevel.String()
		cfg.Format = logging.FormatConsole
		cfg.File = ""
	case dev:
		if lvl, err := zerolog.ParseLevel(cfg.Level); err != nil || lvl > zerolog.DebugLevel {
			cfg.Level = zerolog.DebugLevel.String()
		}
	}
	return cfg
}

// cleanupLogging closes the log file, if one was opened.
func cleanupLogging(_ *cobra.Command, logResult *logging.LogPathResult) error {
	if logResult == nil {
		return nil
	}
	return logResult.Close()
}
