package cli

import (
	"context"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/anstrom/hostsweep/internal/config"
	"github.com/anstrom/hostsweep/internal/logging"
	"github.com/anstrom/hostsweep/internal/models"
	"github.com/anstrom/hostsweep/internal/reporting"
)

var (
	reportFormat      string
	reportOutputFile  string
	reportNoColor     bool
	reportNoTable     bool
	reportFromHistory bool
)

// reportCmd represents the report command.
var reportCmd = &cobra.Command{
	Use:   "report <file | scan-id>",
	Short: "Render a saved scan result",
	Long: `Load a JSON or XML export written by a previous scan, or with --history a
scan stored in the history database, and render it again in any output
format.`,
	Example: `  hostsweep report scan.json
  hostsweep report scan.xml -o json
  hostsweep report --history 3f2504e0-4f89-41d3-9a0c-0305e82c3301`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		flags := cmd.Flags()
		if flags.Changed("output-file") {
			cfg.Output.File = reportOutputFile
		}
		// The output format of the scan config does not apply here.
		cfg.Output.Format = strings.ToLower(reportFormat)
		if !flags.Changed("format") && cfg.Output.File != "" {
			if guessed := reporting.FormatForPath(cfg.Output.File); guessed != "" {
				cfg.Output.Format = guessed
			}
		}
		if reportNoColor {
			cfg.Output.Color = false
		}
		if reportNoTable {
			cfg.Output.Table = false
		}

		return runReport(cmd.Context(), cfg, args[0], reportFromHistory, cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.AddCommand(reportCmd)

	reportCmd.Flags().StringVarP(&reportFormat, "format", "o", config.FormatConsole, "output format (console, json, xml)")
	reportCmd.Flags().StringVarP(&reportOutputFile, "output-file", "f", "", "write to a file instead of stdout")
	reportCmd.Flags().BoolVar(&reportNoColor, "no-color", false, "disable colored console output")
	reportCmd.Flags().BoolVar(&reportNoTable, "no-table", false, "use plain columns instead of tables")
	reportCmd.Flags().BoolVar(&reportFromHistory, "history", false, "treat the argument as a scan id in the history database")
}

func runReport(ctx context.Context, cfg *config.Config, source string, fromHistory bool, out io.Writer) error {
	r, err := newReporter(cfg)
	if err != nil {
		return err
	}

	var result *models.ScanResult
	if fromHistory {
		result, err = loadFromHistory(ctx, cfg, source)
	} else {
		result, err = reporting.Load(source)
	}
	if err != nil {
		return err
	}

	return writeResult(cfg, r, result, out, logging.Default().WithComponent("cli"))
}

func loadFromHistory(ctx context.Context, cfg *config.Config, scanID string) (*models.ScanResult, error) {
	if err := requireStorage(cfg); err != nil {
		return nil, err
	}
	st, err := openStore(ctx, cfg.Storage.Database)
	if err != nil {
		return nil, err
	}
	defer func() { _ = st.Close() }()

	return st.Get(ctx, scanID)
}
