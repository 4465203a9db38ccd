// Package config defines the hostsweep configuration file and its defaults.
package config

import (
	stderrors "errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"github.com/anstrom/hostsweep/internal/errors"
	"github.com/anstrom/hostsweep/internal/logging"
	"github.com/anstrom/hostsweep/internal/profiles"
	"github.com/anstrom/hostsweep/internal/store"
)

const (
	configDirPerm  = 0750
	configFilePerm = 0600

	defaultMetricsPort = 9090
	defaultScanTimeout = 30 * time.Minute
)

// Output formats.
const (
	FormatConsole = "console"
	FormatJSON    = "json"
	FormatXML     = "xml"
)

// Config represents the complete hostsweep configuration.
type Config struct {
	Scanning ScanningConfig `yaml:"scanning" json:"scanning" mapstructure:"scanning"`
	Output   OutputConfig   `yaml:"output" json:"output" mapstructure:"output"`
	Metrics  MetricsConfig  `yaml:"metrics" json:"metrics" mapstructure:"metrics"`
	Logging  logging.Config `yaml:"logging" json:"logging" mapstructure:"logging"`
	Storage  StorageConfig  `yaml:"storage" json:"storage" mapstructure:"storage"`
	Watch    WatchConfig    `yaml:"watch" json:"watch" mapstructure:"watch"`
}

// ScanningConfig holds scanning-related settings
type ScanningConfig struct {
	// Path to the nmap binary; empty means look it up in PATH
	NmapPath string `yaml:"nmap_path" json:"nmap_path" mapstructure:"nmap_path"`

	DefaultProfile  string   `yaml:"default_profile" json:"default_profile" mapstructure:"default_profile" validate:"required,oneof=basic full custom"`
	CustomPorts     string   `yaml:"custom_ports" json:"custom_ports" mapstructure:"custom_ports"`
	CustomArguments []string `yaml:"custom_arguments" json:"custom_arguments" mapstructure:"custom_arguments"`

	// Upper bound for one engine run; zero disables the limit
	Timeout time.Duration `yaml:"timeout" json:"timeout" mapstructure:"timeout" validate:"gte=0"`

	ResolveHostnames bool   `yaml:"resolve_hostnames" json:"resolve_hostnames" mapstructure:"resolve_hostnames"`
	DNSServer        string `yaml:"dns_server" json:"dns_server" mapstructure:"dns_server" validate:"omitempty,hostname_port"`
}

// OutputConfig controls how results are rendered.
type OutputConfig struct {
	Format string `yaml:"format" json:"format" mapstructure:"format" validate:"required,oneof=console json xml"`
	File   string `yaml:"file" json:"file" mapstructure:"file"`
	Color  bool   `yaml:"color" json:"color" mapstructure:"color"`
	Table  bool   `yaml:"table" json:"table" mapstructure:"table"`
}

// MetricsConfig holds the Prometheus endpoint settings.
type MetricsConfig struct {
	Enabled    bool   `yaml:"enabled" json:"enabled" mapstructure:"enabled"`
	ListenAddr string `yaml:"listen_addr" json:"listen_addr" mapstructure:"listen_addr"`
	Port       int    `yaml:"port" json:"port" mapstructure:"port" validate:"min=1,max=65535"`
	Path       string `yaml:"path" json:"path" mapstructure:"path" validate:"required,startswith=/"`
}

// StorageConfig enables the optional scan history database.
type StorageConfig struct {
	Enabled  bool         `yaml:"enabled" json:"enabled" mapstructure:"enabled"`
	Database store.Config `yaml:"database" json:"database" mapstructure:"database"`
}

// WatchConfig holds the recurring scan schedule.
type WatchConfig struct {
	Schedule string `yaml:"schedule" json:"schedule" mapstructure:"schedule"`
}

// Default returns a configuration with sensible defaults
func Default() *Config {
	return &Config{
		Scanning: ScanningConfig{
			DefaultProfile:  profiles.Basic,
			CustomArguments: []string{},
			Timeout:         defaultScanTimeout,
		},
		Output: OutputConfig{
			Format: FormatConsole,
			Color:  true,
			Table:  true,
		},
		Metrics: MetricsConfig{
			Enabled:    false,
			ListenAddr: "127.0.0.1",
			Port:       defaultMetricsPort,
			Path:       "/metrics",
		},
		Logging: logging.DefaultConfig(),
		Storage: StorageConfig{
			Database: store.DefaultConfig(),
		},
		Watch: WatchConfig{
			Schedule: "@every 1h",
		},
	}
}

// Load loads configuration from a YAML file on top of the defaults. A missing
// file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		return cfg, nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	data, err := os.ReadFile(path) //nolint:gosec // path comes from the operator
	if err != nil {
		return nil, errors.WrapConfigError(errors.CodeConfiguration, "failed to read config file", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.WrapConfigError(errors.CodeConfiguration, "failed to parse YAML config", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the configuration as YAML.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), configDirPerm); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, configFilePerm); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// Report yaml key names so messages match the config file.
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("yaml"), ",", 2)[0]
		if name == "-" || name == "" {
			return field.Name
		}
		return name
	})
	return v
}

// Validate checks field constraints and cross-field rules.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if stderrors.As(err, &verrs) && len(verrs) > 0 {
			first := verrs[0]
			field := strings.TrimPrefix(first.Namespace(), "Config.")
			return errors.NewConfigFieldError(errors.CodeValidation,
				fmt.Sprintf("Invalid configuration value (rule: %s)", first.Tag()), field, first.Value())
		}
		return errors.WrapConfigError(errors.CodeValidation, "configuration validation failed", err)
	}

	if c.Scanning.DefaultProfile == profiles.Custom || c.Scanning.CustomPorts != "" {
		ports := c.Scanning.CustomPorts
		if ports == "" && c.Scanning.DefaultProfile == profiles.Custom {
			return errors.ErrConfigMissing("scanning.custom_ports")
		}
		if err := profiles.ValidatePorts(ports); err != nil {
			return errors.ErrConfigInvalid("scanning.custom_ports", ports)
		}
	}

	if c.Metrics.ListenAddr != "" && net.ParseIP(c.Metrics.ListenAddr) == nil && c.Metrics.ListenAddr != "localhost" {
		return errors.ErrConfigInvalid("metrics.listen_addr", c.Metrics.ListenAddr)
	}

	if c.Storage.Enabled {
		if c.Storage.Database.Database == "" {
			return errors.ErrConfigMissing("storage.database.database")
		}
		if c.Storage.Database.Username == "" {
			return errors.ErrConfigMissing("storage.database.username")
		}
	}

	if c.Watch.Schedule != "" {
		if _, err := cron.ParseStandard(c.Watch.Schedule); err != nil {
			return errors.ErrConfigInvalid("watch.schedule", c.Watch.Schedule)
		}
	}

	return nil
}

// MetricsAddress returns the host:port the metrics server listens on.
func (c *Config) MetricsAddress() string {
	return net.JoinHostPort(c.Metrics.ListenAddr, fmt.Sprint(c.Metrics.Port))
}

// CustomSpec returns the custom profile settings.
func (c *Config) CustomSpec() profiles.CustomSpec {
	return profiles.CustomSpec{
		Ports:     c.Scanning.CustomPorts,
		Arguments: c.Scanning.CustomArguments,
	}
}
