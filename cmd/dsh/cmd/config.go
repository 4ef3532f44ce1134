package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/RuthKerubo/dsh-etl-search-ai-v1/internal/config"
	"github.com/RuthKerubo/dsh-etl-search-ai-v1/internal/output"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
		Long: `Manage the dsh configuration.

Configuration precedence (lowest to highest):
  1. Hardcoded defaults
  2. User config (~/.config/dsh/config.yaml)
  3. Project config (.dsh.yaml)
  4. Environment variables (DSH_*)`,
		Example: `  # Create user config with the defaults
  dsh config init

  # Show effective configuration
  dsh config show

  # Print user config file path
  dsh config path`,
	}

	cmd.AddCommand(newConfigInitCmd())
	cmd.AddCommand(newConfigShowCmd())
	cmd.AddCommand(newConfigPathCmd())

	return cmd
}

func newConfigInitCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create user configuration file",
		Long: `Write the default configuration to ~/.config/dsh/config.yaml
(or $XDG_CONFIG_HOME/dsh/config.yaml if XDG_CONFIG_HOME is set).`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runConfigInit(cmd, force)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite existing configuration")

	return cmd
}

func newConfigShowCmd() *cobra.Command {
	var (
		jsonOutput bool
		source     string
	)

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show effective configuration",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runConfigShow(cmd, jsonOutput, source)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	cmd.Flags().StringVar(&source, "source", "merged", "Config source: merged, defaults")

	return cmd
}

func newConfigPathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print user config file path",
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), config.GetUserConfigPath())
			return err
		},
	}
}

func runConfigInit(cmd *cobra.Command, force bool) error {
	out := output.New(cmd.OutOrStdout(), noColorFlag)
	configPath := config.GetUserConfigPath()

	if _, err := os.Stat(configPath); err == nil && !force {
		out.Warning("User configuration already exists")
		out.KeyValue("Location", configPath)
		out.Status("", "Use --force to overwrite it with the defaults")
		return nil
	}

	if err := config.NewConfig().WriteYAML(configPath); err != nil {
		return err
	}

	out.Success("Created user configuration")
	out.KeyValue("Location", configPath)
	out.Newline()
	out.Status("", "Edit the file, then run 'dsh config show' to verify")
	return nil
}

func runConfigShow(cmd *cobra.Command, jsonOutput bool, source string) error {
	var (
		cfg *config.Config
		err error
	)

	switch source {
	case "merged":
		cfg, err = config.Load(".")
		if err != nil {
			return err
		}
	case "defaults":
		cfg = config.NewConfig()
	default:
		return fmt.Errorf("invalid source: %s (use: merged, defaults)", source)
	}

	if jsonOutput {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(cfg)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	_, err = cmd.OutOrStdout().Write(data)
	return err
}
