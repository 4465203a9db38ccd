package cli

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/anstrom/hostsweep/internal/config"
	"github.com/anstrom/hostsweep/internal/targets"
	"github.com/anstrom/hostsweep/internal/watch"
)

var (
	watchOpts      scanFlags
	watchSchedule  string
	watchImmediate bool
)

// watchCmd represents the watch command.
var watchCmd = &cobra.Command{
	Use:   "watch <target>",
	Short: "Scan a target repeatedly on a schedule",
	Long: `Run the same scan on a cron schedule until interrupted. A tick that
arrives while the previous scan is still running is skipped. Each result is
rendered like a one-off scan, and the metrics endpoint stays up between
scans when enabled.`,
	Example: `  hostsweep watch 192.168.1.0/24 --schedule "@every 10m" --metrics
  hostsweep watch web01.example.com --schedule "0 * * * *" -o json -f last.json`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("schedule") {
			cfg.Watch.Schedule = watchSchedule
		}
		if err := watchOpts.apply(cmd.Flags(), cfg); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return runWatch(ctx, cfg, args[0], watchImmediate, cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.AddCommand(watchCmd)
	bindScanFlags(watchCmd.Flags(), &watchOpts)
	watchCmd.Flags().StringVar(&watchSchedule, "schedule", "", `cron schedule, e.g. "@every 10m" or "*/15 * * * *"`)
	watchCmd.Flags().BoolVar(&watchImmediate, "immediate", true, "scan once at startup instead of waiting for the first tick")
}

// runWatch blocks until ctx is done. Failed scans are logged and the
// schedule continues; a missing engine or a bad target stops it up front.
func runWatch(ctx context.Context, cfg *config.Config, target string, immediately bool, out io.Writer) error {
	if _, err := targets.Parse(target); err != nil {
		return err
	}

	sess, err := newSession(cfg)
	if err != nil {
		return err
	}
	defer sess.Close()

	if err := sess.check(ctx); err != nil {
		return err
	}

	w, err := watch.New(cfg.Watch.Schedule, func(ctx context.Context) error {
		return sess.scanOnce(ctx, target, out)
	}, sess.logger)
	if err != nil {
		return err
	}

	stopMetrics := startMetrics(ctx, cfg, sess.logger)
	defer stopMetrics()

	sess.logger.Info("Watching target", "target", target, "schedule", cfg.Watch.Schedule,
		"profile", sess.profile.Name)
	return w.Run(ctx, immediately)
}
