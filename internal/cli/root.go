package cli

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/grovekit/grove/internal/config"
)

// BuildInfo contains version information set at build time via ldflags.
type BuildInfo struct {
	// Version is the semantic version (e.g., "1.0.0").
	Version string
	// Commit is the git commit hash.
	Commit string
	// Date is the build date.
	Date string
}

// globalLogger stores the initialized logger for use by subcommands.
// Set during PersistentPreRun; access via GetLogger.
var (
	globalLogger   zerolog.Logger //nolint:gochecknoglobals // CLI logger requires global access
	globalLoggerMu sync.RWMutex   //nolint:gochecknoglobals // Protects globalLogger
)

// GetLogger returns the logger initialized by the root command. Safe for
// concurrent use; returns a no-op logger before initialization.
func GetLogger() zerolog.Logger {
	globalLoggerMu.RLock()
	defer globalLoggerMu.RUnlock()
	return globalLogger
}

// newRootCmd creates the root command for the grove CLI.
func newRootCmd(flags *GlobalFlags, info BuildInfo) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "grove",
		Short: "Grove - concurrent AI development job orchestrator",
		Long: `Grove runs AI coding agent jobs against configured projects: each job
gets its own git worktree and branch, runs under a hard timeout, and
reports a summary when it finishes. Grove also supervises long-running
auxiliary processes (dev servers, watchers) per project.`,
		Version: formatVersion(info),
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
		PersistentPreRun: func(_ *cobra.Command, _ []string) {
			globalLoggerMu.Lock()
			globalLogger = InitLogger("", flags.Verbose, flags.Quiet)
			globalLoggerMu.Unlock()
		},
		SilenceUsage: true,
	}

	AddGlobalFlags(cmd, flags)

	AddServeCommand(cmd, flags)
	AddRunCommand(cmd, flags)
	AddConfigCommand(cmd, flags)

	return cmd
}

// loadConfig loads configuration honoring the --config flag, with the
// command's logger on the context.
func loadConfig(ctx context.Context, flags *GlobalFlags) (*config.Config, error) {
	logger := GetLogger()
	return config.Load(logger.WithContext(ctx), flags.ConfigPath)
}

// formatVersion creates the version string from build info.
func formatVersion(info BuildInfo) string {
	if info.Version == "" {
		info.Version = "dev"
	}
	if info.Commit == "" {
		info.Commit = "none"
	}
	if info.Date == "" {
		info.Date = "unknown"
	}
	return fmt.Sprintf("%s (commit: %s, built: %s)", info.Version, info.Commit, info.Date)
}

// Execute runs the root command with the provided context and build info.
func Execute(ctx context.Context, info BuildInfo) error {
	flags := &GlobalFlags{}
	cmd := newRootCmd(flags, info)
	defer CloseLogFile()
	return cmd.ExecuteContext(ctx)
}
