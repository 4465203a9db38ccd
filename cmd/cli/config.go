package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/anstrom/hostsweep/internal/config"
	"github.com/anstrom/hostsweep/internal/errors"
)

const redacted = "********"

var configInitForce bool

// configCmd represents the config command.
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect or create the configuration file",
}

// configShowCmd represents the config show command.
var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Long: `Print the configuration after defaults, the config file and HOSTSWEEP_*
environment variables have been merged. The database password is masked.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		return runConfigShow(cfg, cmd.OutOrStdout())
	},
}

// configInitCmd represents the config init command.
var configInitCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write a config file with the default settings",
	Example: `  hostsweep config init
  hostsweep config init /etc/hostsweep/config.yaml --force`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := "config.yaml"
		if len(args) == 1 {
			path = args[0]
		}
		return runConfigInit(path, configInitForce, cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)

	configInitCmd.Flags().BoolVar(&configInitForce, "force", false, "overwrite an existing file")
}

func runConfigShow(cfg *config.Config, out io.Writer) error {
	shown := *cfg
	if shown.Storage.Database.Password != "" {
		shown.Storage.Database.Password = redacted
	}
	enc := yaml.NewEncoder(out)
	enc.SetIndent(2)
	if err := enc.Encode(&shown); err != nil {
		return err
	}
	return enc.Close()
}

func runConfigInit(path string, force bool, out io.Writer) error {
	if _, err := os.Stat(path); err == nil && !force {
		return errors.NewConfigFieldError(errors.CodeConfiguration,
			"config file already exists (use --force to overwrite)", "config", path)
	}
	if err := config.Default().Save(path); err != nil {
		return errors.WrapConfigError(errors.CodeConfiguration, "failed to write config file", err)
	}
	_, err := fmt.Fprintln(out, "Wrote", path)
	return err
}
