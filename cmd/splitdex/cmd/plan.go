package cmd

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/splitdex/internal/bucket"
	"github.com/Aman-CERP/splitdex/internal/config"
	serrors "github.com/Aman-CERP/splitdex/internal/errors"
	"github.com/Aman-CERP/splitdex/internal/query"
	"github.com/Aman-CERP/splitdex/internal/ui"
)

// now is the clock for plan examples. Tests pin it.
var now = time.Now

func newPlanCmd() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Show the query and destination naming without writing",
		Long: `Print the search request a run would issue and how destination
indices are named. Nothing is read from or written to the cluster.`,
		Example: `  splitdex plan
  splitdex plan --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			f, err := ui.ParseFormat(format)
			if err != nil {
				return serrors.ConfigError(err.Error(), nil).WithDetail("flag", "format")
			}
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			plan, err := buildPlan(cfg)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			return ui.RenderPlan(out, plan, f, noColor || !ui.UseColor(out))
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "text", "Output format: text, json, yaml")

	return cmd
}

func buildPlan(cfg *config.Config) (ui.PlanInfo, error) {
	req, err := query.Build(cfg.Query, cfg.Elastic.Field)
	if err != nil {
		return ui.PlanInfo{}, err
	}
	body, err := req.Body()
	if err != nil {
		return ui.PlanInfo{}, err
	}

	// The lower bound, when set, is the first bucket the run can produce.
	sample := now()
	if cfg.Query != nil && cfg.Query.GTE != "" {
		if t, err := time.ParseInLocation(config.DateLayout, cfg.Query.GTE, cfg.Location()); err == nil {
			sample = t
		}
	}
	key, err := bucket.Bucket(sample, cfg.Engine.FormatDate, cfg.Location())
	if err != nil {
		return ui.PlanInfo{}, err
	}

	plan := ui.PlanInfo{
		SourceIndex:   cfg.Elastic.IndexName,
		Field:         cfg.Elastic.Field,
		FormatDate:    string(cfg.Engine.FormatDate),
		Destination:   cfg.Elastic.IndexName + "-<" + string(cfg.Engine.FormatDate) + ">",
		Example:       cfg.DestinationIndex(key),
		InvalidPolicy: string(cfg.Engine.InvalidPolicy),
		BatchSize:     cfg.Engine.BatchSize,
		Workers:       cfg.Engine.Workers,
		Query:         body,
	}
	if cfg.Engine.InvalidPolicy == config.InvalidFallback {
		plan.InvalidIndex = cfg.DestinationIndex(bucket.Invalid)
	}
	return plan, nil
}
