package cli

import (
	"io"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/anstrom/hostsweep/internal/config"
	"github.com/anstrom/hostsweep/internal/profiles"
)

// profilesCmd represents the profiles command.
var profilesCmd = &cobra.Command{
	Use:   "profiles",
	Short: "List the scan profiles",
	Long: `Show the scan profiles that can be passed to --profile. The custom
profile takes its ports and extra nmap arguments from the config file or from
--ports and --args.`,
	Example: `  hostsweep profiles
  hostsweep profiles show full`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		return runProfilesList(cfg, cmd.OutOrStdout())
	},
}

// profilesShowCmd represents the profiles show command.
var profilesShowCmd = &cobra.Command{
	Use:   "show <profile-name>",
	Short: "Show one scan profile as YAML",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		return runProfilesShow(cfg, args[0], cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.AddCommand(profilesCmd)
	profilesCmd.AddCommand(profilesShowCmd)
}

func runProfilesList(cfg *config.Config, out io.Writer) error {
	table := tablewriter.NewWriter(out)
	table.Header("Name", "Ports", "Services", "OS", "Timing", "Description")

	for _, name := range profiles.Names() {
		p, err := profiles.Resolve(name, cfg.CustomSpec())
		if err != nil {
			return err
		}
		row := []string{
			p.Name,
			p.Ports,
			yesNo(p.ServiceDetection),
			yesNo(p.OSDetection),
			p.Timing,
			p.Description,
		}
		if len(p.ExtraArgs) > 0 {
			row[len(row)-1] += " (args: " + strings.Join(p.ExtraArgs, " ") + ")"
		}
		if err := table.Append(row); err != nil {
			return err
		}
	}
	return table.Render()
}

func runProfilesShow(cfg *config.Config, name string, out io.Writer) error {
	p, err := profiles.Resolve(name, cfg.CustomSpec())
	if err != nil {
		return err
	}

	enc := yaml.NewEncoder(out)
	enc.SetIndent(2)
	if err := enc.Encode(p); err != nil {
		return err
	}
	return enc.Close()
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
