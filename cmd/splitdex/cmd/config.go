package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/splitdex/configs"
	"github.com/Aman-CERP/splitdex/internal/config"
	serrors "github.com/Aman-CERP/splitdex/internal/errors"
	"github.com/Aman-CERP/splitdex/internal/output"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the configuration file",
		Long: `Inspect or create the INI configuration file.

Configuration precedence (lowest to highest):
  1. Built-in defaults
  2. The file given with --config (default ./config.ini)
  3. Environment variables (SPLITDEX_<SECTION>_<KEY>)`,
		Example: `  # Create config.ini from the template
  splitdex config init

  # Show the effective configuration
  splitdex config show -c prod.ini`,
	}

	cmd.AddCommand(newConfigInitCmd())
	cmd.AddCommand(newConfigShowCmd())

	return cmd
}

func newConfigInitCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a configuration file from the template",
		Long: `Write a commented configuration template to the --config path.

Every key is listed with its default. Edit es_url, es_index_name and
es_field before the first run.`,
		Example: `  splitdex config init
  splitdex config init -c prod.ini --force`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runConfigInit(cmd, force)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing file")

	return cmd
}

func runConfigInit(cmd *cobra.Command, force bool) error {
	out := output.New(cmd.OutOrStdout())
	path := configPath

	if _, err := os.Stat(path); err == nil && !force {
		return serrors.ConfigError(fmt.Sprintf("config file '%s' already exists", path), nil).
			WithSuggestion("use --force to overwrite it")
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}
	// 0600: the file may hold es_password.
	if err := os.WriteFile(path, []byte(configs.ConfigTemplate), 0o600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	out.Successf("Created %s", path)
	out.Status("", "Edit [elastic] then run 'splitdex validate'")
	return nil
}

func newConfigShowCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration",
		Long: `Show the configuration after defaults and environment overrides,
as YAML. The password is redacted.`,
		Example: `  splitdex config show
  splitdex config show --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}

			if jsonOutput {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(cfg.View())
			}

			data, err := cfg.YAML()
			if err != nil {
				return fmt.Errorf("failed to render config: %w", err)
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}
