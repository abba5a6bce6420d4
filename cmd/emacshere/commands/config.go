package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/bryanchriswhite/emacshere/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage emacshere configuration",
	Long:  `View and manage emacshere configuration settings.`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Long: `Display the effective configuration: defaults, overridden by the config
file, EMACSHERE_* environment variables and command line flags.`,
	Example: `  # Show configuration as YAML (default)
  emacshere config show

  # Show configuration as JSON
  emacshere config show --format json`,
	Args: usageArgs(cobra.NoArgs),
	RunE: runConfigShow,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Show configuration file path",
	Long:  `Display the path to the configuration file.`,
	Args:  usageArgs(cobra.NoArgs),
	RunE:  runConfigPath,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write the default configuration file",
	Long:  `Write the built-in defaults to the configuration file so they can be edited.`,
	Args:  usageArgs(cobra.NoArgs),
	RunE:  runConfigInit,
}

var (
	formatFlag string
	forceFlag  bool
)

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configPathCmd)
	configCmd.AddCommand(configInitCmd)

	configShowCmd.Flags().StringVarP(&formatFlag, "format", "f", "yaml", "output format (yaml or json)")
	configInitCmd.Flags().BoolVar(&forceFlag, "force", false, "overwrite an existing config file")
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	switch formatFlag {
	case "json":
		encoder := json.NewEncoder(out)
		encoder.SetIndent("", "  ")
		return encoder.Encode(cfg)
	case "yaml":
		encoder := yaml.NewEncoder(out)
		encoder.SetIndent(2)
		defer encoder.Close()
		return encoder.Encode(cfg)
	default:
		return &usageError{err: fmt.Errorf("unsupported format: %s (use 'yaml' or 'json')", formatFlag)}
	}
}

func runConfigPath(cmd *cobra.Command, args []string) error {
	fmt.Fprintln(cmd.OutOrStdout(), configMgr.GetConfigPath())
	return nil
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	path := configMgr.GetConfigPath()
	if _, err := os.Stat(path); err == nil && !forceFlag {
		return fmt.Errorf("config file already exists: %s (use --force to overwrite)", path)
	}

	if err := configMgr.Save(config.Defaults()); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
	return nil
}
