// Package cmd provides the CLI commands for splitdex.
package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/splitdex/internal/config"
	serrors "github.com/Aman-CERP/splitdex/internal/errors"
	"github.com/Aman-CERP/splitdex/internal/logging"
	"github.com/Aman-CERP/splitdex/internal/profiling"
	"github.com/Aman-CERP/splitdex/pkg/version"
)

// Exit codes.
const (
	ExitOK      = 0
	ExitAborted = 1
	ExitConfig  = 2
)

// Global flags
var (
	configPath string
	debugMode  bool
	logFile    string
	logLevel   string
	noColor    bool

	loggingCleanup func()
)

// Profiling flags
var (
	profileCPU   string
	profileMem   string
	profileTrace string
	profiler     *profiling.Session
)

// NewRootCmd creates the root command for the splitdex CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "splitdex",
		Short: "Split an Elasticsearch index into date-partitioned indices",
		Long: `splitdex scans a source index, buckets every document by the date in a
configured field and bulk-writes each bucket to <index>-<date>.

Writes are retried with exponential backoff. Batches that still fail are
counted in the final report and the run continues.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.SetVersionTemplate("splitdex version {{.Version}}\n")
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return serrors.ConfigError(err.Error(), err).
			WithSuggestion("Run 'splitdex --help' for usage")
	})

	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultPath, "Path to the INI configuration file")
	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging to ~/.splitdex/logs/")
	cmd.PersistentFlags().StringVar(&logFile, "log-file", "", "Also write JSON logs to this file")
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level: debug, info, warn, error")
	cmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")

	cmd.PersistentFlags().StringVar(&profileCPU, "profile-cpu", "", "Write CPU profile to file")
	cmd.PersistentFlags().StringVar(&profileMem, "profile-mem", "", "Write heap profile to file on exit")
	cmd.PersistentFlags().StringVar(&profileTrace, "profile-trace", "", "Write execution trace to file")

	cmd.PersistentPreRunE = startProfilingAndLogging
	cmd.PersistentPostRunE = stopProfilingAndLogging

	cmd.AddCommand(newRunCmd())
	cmd.AddCommand(newValidateCmd())
	cmd.AddCommand(newPlanCmd())
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// startProfilingAndLogging installs the default logger and starts any
// requested profiles. Records go to stderr as text and, with --log-file or
// --debug, to a rotating JSON file.
func startProfilingAndLogging(cmd *cobra.Command, _ []string) error {
	cfg := logging.DefaultConfig()
	if debugMode {
		cfg = logging.DebugConfig()
	}
	if !debugMode || cmd.Flags().Changed("log-level") {
		cfg.Level = logLevel
	}
	if logFile != "" {
		cfg.FilePath = logFile
	}
	cfg.Stderr = cmd.ErrOrStderr()

	logger, cleanup, err := logging.Setup(cfg)
	if err != nil {
		return fmt.Errorf("failed to setup logging: %w", err)
	}
	loggingCleanup = cleanup
	slog.SetDefault(logger)
	if cfg.FilePath != "" {
		slog.Debug("file logging enabled",
			slog.String("log_file", cfg.FilePath),
			slog.String("version", version.Short()))
	}

	opts := profiling.Options{CPU: profileCPU, Heap: profileMem, Trace: profileTrace}
	if opts.Enabled() {
		session, err := profiling.Start(opts)
		if err != nil {
			return err
		}
		profiler = session
	}
	return nil
}

// stopProfilingAndLogging flushes profiles, then closes the log file.
func stopProfilingAndLogging(_ *cobra.Command, _ []string) error {
	var err error
	if profiler != nil {
		err = profiler.Stop()
		profiler = nil
	}
	if loggingCleanup != nil {
		loggingCleanup()
		loggingCleanup = nil
	}
	return err
}

// Execute runs the root command, prints any error and returns the process
// exit code.
func Execute() int {
	return execute(context.Background(), NewRootCmd(), os.Stderr)
}

func execute(ctx context.Context, root *cobra.Command, stderr io.Writer) int {
	err := root.ExecuteContext(ctx)
	// PersistentPostRunE is skipped when RunE fails.
	if stopErr := stopProfilingAndLogging(root, nil); err == nil {
		err = stopErr
	}
	if err == nil {
		return ExitOK
	}
	_, _ = fmt.Fprint(stderr, serrors.FormatForCLI(err))
	return ExitCode(err)
}

// ExitCode maps a command error to the process exit code: configuration
// problems exit 2, everything else that stopped a run exits 1.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case serrors.GetCategory(err) == serrors.CategoryConfig:
		return ExitConfig
	default:
		return ExitAborted
	}
}
