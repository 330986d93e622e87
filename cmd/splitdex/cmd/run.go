package cmd

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/splitdex/internal/async"
	"github.com/Aman-CERP/splitdex/internal/config"
	"github.com/Aman-CERP/splitdex/internal/engine"
	serrors "github.com/Aman-CERP/splitdex/internal/errors"
	"github.com/Aman-CERP/splitdex/internal/runlock"
	"github.com/Aman-CERP/splitdex/internal/store"
	"github.com/Aman-CERP/splitdex/internal/ui"
	"github.com/Aman-CERP/splitdex/pkg/version"
)

// statusInterval is the live status period on a terminal.
const statusInterval = 2 * time.Second

// lockDir holds one lock file per source index. Tests replace it.
var lockDir = runlock.DefaultDir

// newSearchEngine connects to the configured cluster. Tests replace it.
var newSearchEngine = func(cfg *config.Config, logger *slog.Logger) (store.SearchEngine, error) {
	return store.NewElastic(store.ElasticOptions{
		URL:       cfg.Elastic.URL,
		Username:  cfg.Elastic.Username,
		Password:  cfg.Elastic.Password,
		UserAgent: version.UserAgent(),
		Logger:    logger,
	})
}

func newRunCmd() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Split the source index into dated indices",
		Long: `Scan the source index and write every document to <index>-<date>,
where <date> is the split field rendered with format_date.

Documents keep their source IDs, so running again after an interruption
re-scans from the start and overwrites what was already written.

Exit status is 0 when the source was exhausted, even if some batches
failed, 1 when the run aborted and 2 on configuration errors.`,
		Example: `  # Split using ./config.ini
  splitdex run

  # Machine-readable report
  splitdex run -c prod.ini --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSplit(cmd, format)
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "text", "Report format: text, json, yaml")

	return cmd
}

func runSplit(cmd *cobra.Command, formatFlag string) error {
	format, err := ui.ParseFormat(formatFlag)
	if err != nil {
		return serrors.ConfigError(err.Error(), nil).WithDetail("flag", "format")
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	lock := runlock.New(lockDir(), cfg.Elastic.IndexName)
	if err := lock.Acquire(); err != nil {
		return err
	}
	defer func() { _ = lock.Release() }()

	logger := slog.Default()
	es, err := newSearchEngine(cfg, logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	eng, err := engine.New(cfg, engine.Deps{Engine: es, Logger: logger})
	if err != nil {
		return err
	}

	var status *async.Reporter
	if errOut := cmd.ErrOrStderr(); ui.IsTTY(errOut) {
		renderer := ui.NewStatusRenderer(errOut, noColor || !ui.UseColor(errOut))
		status = async.NewReporter(eng.Progress(), statusInterval, renderer.Render)
		status.Start(ctx)
	}

	report, runErr := eng.Run(ctx)
	if status != nil {
		status.Stop()
	}

	if report != nil {
		out := cmd.OutOrStdout()
		renderer := ui.NewReportRenderer(out, noColor || !ui.UseColor(out))
		if err := renderer.Render(report, format); err != nil {
			return err
		}
	}

	if errors.Is(runErr, context.Canceled) {
		return serrors.New(serrors.ErrCodeScanFailed, "run interrupted", runErr).
			WithSuggestion("Run again to re-scan from the start; documents already written are overwritten in place")
	}
	return runErr
}
