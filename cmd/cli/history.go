package cli

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/anstrom/hostsweep/internal/config"
	"github.com/anstrom/hostsweep/internal/store"
)

const defaultHistoryLimit = 20

var historyLimit int

// historyCmd represents the history command.
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recent scans from the history database",
	Long: `List the most recent scans recorded with --save (or storage.enabled in the
config file), newest first. Use "hostsweep report --history <scan-id>" to
render one of them again.`,
	Example: `  hostsweep history
  hostsweep history --limit 5`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		return runHistory(cmd.Context(), cfg, historyLimit, cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", defaultHistoryLimit, "number of scans to list")
}

func runHistory(ctx context.Context, cfg *config.Config, limit int, out io.Writer) error {
	if err := requireStorage(cfg); err != nil {
		return err
	}

	st, err := openStore(ctx, cfg.Storage.Database)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	scans, err := st.List(ctx, limit)
	if err != nil {
		return err
	}
	return renderHistory(out, scans)
}

func renderHistory(w io.Writer, scans []store.Summary) error {
	if len(scans) == 0 {
		_, err := fmt.Fprintln(w, "No scans recorded")
		return err
	}

	table := tablewriter.NewWriter(w)
	table.Header("Scan ID", "Target", "Started", "Duration", "Hosts", "Ports")
	for _, s := range scans {
		row := []string{
			s.ScanID,
			s.Target,
			s.StartTime.UTC().Format(time.RFC3339),
			fmt.Sprintf("%.3fs", s.Duration),
			strconv.Itoa(s.TotalHosts),
			strconv.Itoa(s.TotalPorts),
		}
		if err := table.Append(row); err != nil {
			return err
		}
	}
	return table.Render()
}
