// Package cli implements the hostsweep command line: one-shot scans,
// recurring scans, re-rendering saved results and listing scan history.
package cli

import (
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/anstrom/hostsweep/internal/config"
	"github.com/anstrom/hostsweep/internal/errors"
	"github.com/anstrom/hostsweep/internal/logging"
)

var (
	cfgFile string
	verbose bool

	// configErr holds a failure from reading the config file; it surfaces
	// when a command asks for the configuration.
	configErr error
)

// Build information - these will be set by ldflags during build.
var (
	version   = "dev"
	commit    = "none"
	buildTime = "unknown"
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "hostsweep",
	Short: "Host and port discovery",
	Long: `hostsweep discovers live hosts and open ports on a target by driving nmap,
normalizes what it finds into a scan result and renders it as a console
report, JSON or XML. Scan counters are exported for Prometheus.`,
	Version:       getVersion(),
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command and exits with a code derived from the error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		reportError(os.Stderr, err)
		os.Exit(errors.ExitCode(err))
	}
}

// reportError prints err and, when the error carries one, its remediation.
func reportError(w io.Writer, err error) {
	fmt.Fprintf(w, "Error: %v\n", err)
	if hint := errors.Remediation(err); hint != "" {
		fmt.Fprintln(w, hint)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	if err := viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose")); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to bind verbose flag: %v\n", err)
	}
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName("config")
	}

	// HOSTSWEEP_SCANNING_TIMEOUT overrides scanning.timeout and so on.
	viper.SetEnvPrefix("HOSTSWEEP")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setConfigDefaults()

	configErr = nil
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		// An explicit --config must exist; the implicit ./config.yaml is optional.
		if cfgFile != "" || !stderrors.As(err, &notFound) {
			configErr = errors.WrapConfigError(errors.CodeConfiguration, "failed to read config file", err)
		}
	} else if verbose {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}

	initLogging()
}

// setConfigDefaults mirrors config.Default so that every key is known to
// viper and can be overridden from the environment.
func setConfigDefaults() {
	def := config.Default()

	viper.SetDefault("scanning.nmap_path", "")
	viper.SetDefault("scanning.default_profile", def.Scanning.DefaultProfile)
	viper.SetDefault("scanning.custom_ports", "")
	viper.SetDefault("scanning.custom_arguments", []string{})
	viper.SetDefault("scanning.timeout", def.Scanning.Timeout)
	viper.SetDefault("scanning.resolve_hostnames", false)
	viper.SetDefault("scanning.dns_server", "")

	viper.SetDefault("output.format", def.Output.Format)
	viper.SetDefault("output.file", "")
	viper.SetDefault("output.color", def.Output.Color)
	viper.SetDefault("output.table", def.Output.Table)

	viper.SetDefault("metrics.enabled", false)
	viper.SetDefault("metrics.listen_addr", def.Metrics.ListenAddr)
	viper.SetDefault("metrics.port", def.Metrics.Port)
	viper.SetDefault("metrics.path", def.Metrics.Path)

	viper.SetDefault("logging.level", string(def.Logging.Level))
	viper.SetDefault("logging.format", string(def.Logging.Format))
	viper.SetDefault("logging.output", def.Logging.Output)

	viper.SetDefault("storage.enabled", false)
	viper.SetDefault("storage.database.host", def.Storage.Database.Host)
	viper.SetDefault("storage.database.port", def.Storage.Database.Port)
	viper.SetDefault("storage.database.database", "")
	viper.SetDefault("storage.database.username", "")
	viper.SetDefault("storage.database.password", "")
	viper.SetDefault("storage.database.ssl_mode", def.Storage.Database.SSLMode)

	viper.SetDefault("watch.schedule", def.Watch.Schedule)
}

// loadConfig merges defaults, the config file and HOSTSWEEP_* variables.
func loadConfig() (*config.Config, error) {
	if configErr != nil {
		return nil, configErr
	}

	cfg := config.Default()
	if err := viper.Unmarshal(cfg); err != nil {
		return nil, errors.WrapConfigError(errors.CodeConfiguration, "failed to decode configuration", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// getVersion returns the version string.
func getVersion() string {
	return fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildTime)
}

// SetVersion sets the version information (called from main).
func SetVersion(v, c, bt string) {
	version = v
	commit = c
	buildTime = bt
	rootCmd.Version = getVersion()
}

// initLogging installs the configured logger as the process default.
func initLogging() {
	cfg, err := loadConfig()
	if err != nil {
		logging.SetDefault(logging.NewDefault())
		return
	}

	logCfg := cfg.Logging
	if verbose {
		logCfg.Level = logging.LevelDebug
	}
	logCfg.AddSource = logCfg.AddSource || logCfg.Level == logging.LevelDebug

	logger, err := logging.New(logCfg)
	if err != nil {
		logger = logging.NewDefault()
		fmt.Fprintf(os.Stderr, "Warning: failed to initialize logging: %v\n", err)
	}
	logging.SetDefault(logger)

	if verbose {
		logging.Info("Structured logging initialized", "level", logCfg.Level, "format", logCfg.Format)
	}
}
