package cli

import (
	"context"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/anstrom/hostsweep/internal/config"
	"github.com/anstrom/hostsweep/internal/profiles"
	"github.com/anstrom/hostsweep/internal/reporting"
)

// scanFlags are the command-line overrides shared by scan and watch.
type scanFlags struct {
	profile    string
	ports      string
	args       []string
	format     string
	outputFile string
	noColor    bool
	noTable    bool
	metrics    bool
	timeout    time.Duration
	resolve    bool
	save       bool
}

var scanOpts scanFlags

// scanCmd represents the scan command.
var scanCmd = &cobra.Command{
	Use:   "scan <target>",
	Short: "Scan a host or network once",
	Long: `Scan a single IP address, CIDR range or hostname and report the hosts
and ports found. The target is validated before nmap is started, and a
missing nmap binary stops the command with installation instructions.`,
	Example: `  hostsweep scan 192.168.1.10
  hostsweep scan 192.168.1.0/24 --profile full
  hostsweep scan example.com --ports 22,80,443 -o json
  hostsweep scan 10.0.0.0/28 --output-file scan.xml --save`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if err := scanOpts.apply(cmd.Flags(), cfg); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return runScan(ctx, cfg, args[0], cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.AddCommand(scanCmd)
	bindScanFlags(scanCmd.Flags(), &scanOpts)
}

func bindScanFlags(fs *pflag.FlagSet, f *scanFlags) {
	fs.StringVarP(&f.profile, "profile", "p", profiles.Basic,
		"scan profile ("+strings.Join(profiles.Names(), ", ")+")")
	fs.StringVar(&f.ports, "ports", "", "ports for the custom profile, e.g. 22,80,8000-8100 (implies --profile custom)")
	fs.StringSliceVar(&f.args, "args", nil, "extra nmap arguments for the custom profile")
	fs.StringVarP(&f.format, "format", "o", config.FormatConsole, "output format (console, json, xml)")
	fs.StringVarP(&f.outputFile, "output-file", "f", "", "write the result to a file; .json and .xml pick the format")
	fs.BoolVar(&f.noColor, "no-color", false, "disable colored console output")
	fs.BoolVar(&f.noTable, "no-table", false, "use plain columns instead of tables")
	fs.BoolVar(&f.metrics, "metrics", false, "serve Prometheus metrics while scanning")
	fs.DurationVar(&f.timeout, "timeout", 0, "abort the scan after this long (0 keeps the configured limit)")
	fs.BoolVar(&f.resolve, "resolve", false, "resolve hostnames through DNS before scanning")
	fs.BoolVar(&f.save, "save", false, "record the result in the scan history database")
}

// apply overrides cfg with the flags set on the command line and validates
// the merged configuration.
func (f *scanFlags) apply(fs *pflag.FlagSet, cfg *config.Config) error {
	if fs.Changed("profile") {
		cfg.Scanning.DefaultProfile = strings.ToLower(f.profile)
	}
	if fs.Changed("ports") {
		cfg.Scanning.CustomPorts = f.ports
		if !fs.Changed("profile") {
			cfg.Scanning.DefaultProfile = profiles.Custom
		}
	}
	if fs.Changed("args") {
		cfg.Scanning.CustomArguments = f.args
	}
	if fs.Changed("output-file") {
		cfg.Output.File = f.outputFile
	}
	switch {
	case fs.Changed("format"):
		cfg.Output.Format = strings.ToLower(f.format)
	case cfg.Output.File != "":
		if guessed := reporting.FormatForPath(cfg.Output.File); guessed != "" {
			cfg.Output.Format = guessed
		}
	}
	if f.noColor {
		cfg.Output.Color = false
	}
	if f.noTable {
		cfg.Output.Table = false
	}
	if f.metrics {
		cfg.Metrics.Enabled = true
	}
	if fs.Changed("timeout") {
		cfg.Scanning.Timeout = f.timeout
	}
	if fs.Changed("resolve") {
		cfg.Scanning.ResolveHostnames = f.resolve
	}
	if fs.Changed("save") {
		cfg.Storage.Enabled = f.save
	}
	return cfg.Validate()
}

// runScan checks for the engine, scans target once and renders the result.
// Nothing is written when the scan fails.
func runScan(ctx context.Context, cfg *config.Config, target string, out io.Writer) error {
	sess, err := newSession(cfg)
	if err != nil {
		return err
	}
	defer sess.Close()

	if err := sess.check(ctx); err != nil {
		return err
	}

	stopMetrics := startMetrics(ctx, cfg, sess.logger)
	defer stopMetrics()

	return sess.scanOnce(ctx, target, out)
}
