package cli

import (
	"context"
	"io"

	"github.com/anstrom/hostsweep/internal/config"
	"github.com/anstrom/hostsweep/internal/errors"
	"github.com/anstrom/hostsweep/internal/logging"
	"github.com/anstrom/hostsweep/internal/metrics"
	"github.com/anstrom/hostsweep/internal/models"
	"github.com/anstrom/hostsweep/internal/profiles"
	"github.com/anstrom/hostsweep/internal/reporting"
	"github.com/anstrom/hostsweep/internal/scanning"
	"github.com/anstrom/hostsweep/internal/store"
	"github.com/anstrom/hostsweep/internal/targets"
)

// historyStore is the part of store.Store the commands use.
type historyStore interface {
	Save(ctx context.Context, result *models.ScanResult) error
	List(ctx context.Context, limit int) ([]store.Summary, error)
	Get(ctx context.Context, scanID string) (*models.ScanResult, error)
	Close() error
}

// Test seams.
var (
	newEngine = func(nmapPath string) scanning.Engine {
		return scanning.NewNmapEngine(nmapPath)
	}
	openStore = func(ctx context.Context, cfg store.Config) (historyStore, error) {
		s, err := store.Connect(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
)

// scanSession holds what repeated scans of one target share.
type scanSession struct {
	cfg      *config.Config
	profile  profiles.Profile
	scanner  *scanning.Scanner
	reporter reporting.Reporter
	logger   *logging.Logger
	history  historyStore
}

func newSession(cfg *config.Config) (*scanSession, error) {
	profile, err := profiles.Resolve(cfg.Scanning.DefaultProfile, cfg.CustomSpec())
	if err != nil {
		return nil, err
	}

	reporter, err := newReporter(cfg)
	if err != nil {
		return nil, err
	}

	logger := logging.Default().WithComponent("cli")
	opts := []scanning.Option{
		scanning.WithTimeout(cfg.Scanning.Timeout),
		scanning.WithLogger(logging.Default().WithComponent("scanner")),
	}
	if cfg.Scanning.ResolveHostnames {
		opts = append(opts, scanning.WithResolver(targets.NewDNSResolver(cfg.Scanning.DNSServer)))
	}

	return &scanSession{
		cfg:      cfg,
		profile:  profile,
		scanner:  scanning.NewScanner(newEngine(cfg.Scanning.NmapPath), opts...),
		reporter: reporter,
		logger:   logger,
	}, nil
}

// newReporter builds the reporter for the configured format. Color is never
// written into files.
func newReporter(cfg *config.Config) (reporting.Reporter, error) {
	return reporting.New(cfg.Output.Format, reporting.Options{
		Color: cfg.Output.Color && cfg.Output.File == "",
		Table: cfg.Output.Table,
	})
}

// check fails with a DependencyMissing error when the engine is absent.
func (s *scanSession) check(ctx context.Context) error {
	return s.scanner.Check(ctx)
}

// scanOnce runs one scan, renders it and records it in the history store.
func (s *scanSession) scanOnce(ctx context.Context, target string, out io.Writer) error {
	result, err := s.scanner.Run(ctx, target, s.profile)
	if err != nil {
		s.logger.ErrorScan("Scan failed", target, err, "profile", s.profile.Name)
		return err
	}
	s.logger.InfoScan("Scan complete", target, "scan_id", result.ScanID(),
		"hosts", result.TotalHosts(), "ports", result.TotalPorts())

	if err := writeResult(s.cfg, s.reporter, result, out, s.logger); err != nil {
		return err
	}
	s.save(ctx, result)
	return nil
}

// save stores result when history is enabled. Failures are logged only.
func (s *scanSession) save(ctx context.Context, result *models.ScanResult) {
	if !s.cfg.Storage.Enabled {
		return
	}
	if s.history == nil {
		st, err := openStore(ctx, s.cfg.Storage.Database)
		if err != nil {
			s.logger.ErrorStorage("Scan history unavailable", err, "scan_id", result.ScanID())
			return
		}
		s.history = st
	}
	if err := s.history.Save(ctx, result); err != nil {
		s.logger.ErrorStorage("Failed to save scan", err, "scan_id", result.ScanID())
		return
	}
	s.logger.Debug("Scan saved to history", "scan_id", result.ScanID())
}

func (s *scanSession) Close() {
	if s.history == nil {
		return
	}
	if err := s.history.Close(); err != nil {
		s.logger.ErrorStorage("Failed to close scan history", err)
	}
	s.history = nil
}

// writeResult renders result to the configured file, or to out.
func writeResult(cfg *config.Config, r reporting.Reporter, result *models.ScanResult, out io.Writer, logger *logging.Logger) error {
	if path := cfg.Output.File; path != "" {
		if err := reporting.WriteFile(path, r, result); err != nil {
			return err
		}
		logger.Info("Scan result written", "file", path, "format", cfg.Output.Format, "scan_id", result.ScanID())
		return nil
	}
	return r.Report(out, result)
}

// startMetrics selects the process metrics sink and, when metrics are
// enabled, serves the Prometheus endpoint until the returned stop function is
// called. A server that cannot start only logs a warning.
func startMetrics(ctx context.Context, cfg *config.Config, logger *logging.Logger) (stop func()) {
	if !cfg.Metrics.Enabled {
		metrics.SetDefault(metrics.Discard{})
		return func() {}
	}
	metrics.SetDefault(nil)

	srv := metrics.NewServer(metrics.ServerConfig{
		ListenAddr: cfg.Metrics.ListenAddr,
		Port:       cfg.Metrics.Port,
		Path:       cfg.Metrics.Path,
	}, metrics.GetGlobalMetrics(), logger.Logger)

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := srv.Start(ctx); err != nil {
			logger.WarnDegraded("metrics endpoint", err)
		}
	}()

	return func() {
		cancel()
		<-done
	}
}

func requireStorage(cfg *config.Config) error {
	if cfg.Storage.Enabled {
		return nil
	}
	return errors.NewConfigFieldError(errors.CodeConfiguration,
		"scan history requires storage to be enabled", "storage.enabled", false)
}
