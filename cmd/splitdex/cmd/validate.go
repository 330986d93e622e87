package cmd

import (
	"github.com/spf13/cobra"

	"github.com/Aman-CERP/splitdex/internal/config"
	"github.com/Aman-CERP/splitdex/internal/output"
)

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check the configuration file",
		Long: `Load and validate the configuration without contacting the cluster.

The first invalid key is reported together with the number of problems found.`,
		Example: `  splitdex validate -c prod.ini`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}

			out := output.New(cmd.OutOrStdout())
			out.Successf("%s is valid", configPath)
			out.Statusf("", "source %s, split on %s as %s",
				cfg.Elastic.IndexName, cfg.Elastic.Field, cfg.Engine.FormatDate)
			return nil
		},
	}
}
