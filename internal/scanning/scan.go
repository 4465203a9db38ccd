package scanning

import (
	"context"
	stderrors "errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/anstrom/hostsweep/internal/errors"
	"github.com/anstrom/hostsweep/internal/logging"
	"github.com/anstrom/hostsweep/internal/metrics"
	"github.com/anstrom/hostsweep/internal/models"
	"github.com/anstrom/hostsweep/internal/profiles"
	"github.com/anstrom/hostsweep/internal/targets"
)

// Error type labels for the scan_errors_total metric.
const (
	errorTypeTarget     = "target_invalid"
	errorTypeDependency = "dependency_missing"
	errorTypeTimeout    = "timeout"
	errorTypeCanceled   = "canceled"
	errorTypeEngine     = "engine_failure"
	errorTypeSeal       = "seal_failed"
)

// Scanner drives one scan at a time from target parsing to a sealed result.
type Scanner struct {
	engine   Engine
	resolver targets.Resolver
	slots    ResourceManager
	timeout  time.Duration
	logger   *logging.Logger
}

// Option configures a Scanner.
type Option func(*Scanner)

// WithResolver resolves hostname targets before the engine runs. A target
// that does not resolve is rejected without invoking the engine.
func WithResolver(r targets.Resolver) Option {
	return func(s *Scanner) { s.resolver = r }
}

// WithTimeout bounds each engine run. Zero means no limit.
func WithTimeout(d time.Duration) Option {
	return func(s *Scanner) { s.timeout = d }
}

// WithLogger sets the logger used for scan events.
func WithLogger(l *logging.Logger) Option {
	return func(s *Scanner) { s.logger = l }
}

// NewScanner creates a scanner around engine.
func NewScanner(engine Engine, opts ...Option) *Scanner {
	s := &Scanner{
		engine: engine,
		slots:  NewFixedResourceManager(1),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logging.Default().WithComponent("scanner")
	}
	return s
}

// Check reports whether the engine is available.
func (s *Scanner) Check(ctx context.Context) error {
	return s.engine.Check(ctx)
}

// Run scans target with profile and returns the sealed result. No result is
// returned when the engine fails.
func (s *Scanner) Run(ctx context.Context, target string, profile profiles.Profile) (*models.ScanResult, error) {
	sink := metrics.Default()
	start := time.Now()
	status := metrics.StatusFailed
	defer func() {
		sink.IncrementScansTotal(profile.Name, status)
	}()

	t, err := targets.Parse(target)
	if err != nil {
		sink.IncrementScanErrors(profile.Name, errorTypeTarget)
		return nil, err
	}
	if s.resolver != nil {
		if _, err := targets.ResolveTarget(ctx, s.resolver, t); err != nil {
			sink.IncrementScanErrors(profile.Name, errorTypeTarget)
			return nil, err
		}
	}

	result := models.NewScanResult(t.Raw)
	log := s.logger.WithScanID(result.ScanID()).WithTarget(t.Raw)
	log.Info("Starting scan", "profile", profile.Name, "ports", profile.Ports, "kind", t.Kind.String())

	if err := s.slots.Acquire(ctx, result.ScanID()); err != nil {
		sink.IncrementScanErrors(profile.Name, errorTypeCanceled)
		return nil, errors.WrapScanErrorWithTarget(errors.CodeCanceled, "scan was canceled before it started", t.Raw, err)
	}
	defer s.slots.Release(result.ScanID())

	runCtx := ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	report, err := s.engine.Scan(runCtx, requestFor(t, profile))
	if err != nil {
		errorType, scanErr := classifyEngineError(runCtx, t.Raw, err)
		sink.IncrementScanErrors(profile.Name, errorType)
		log.Error("Scan failed", "profile", profile.Name, "error_type", errorType, "error", err)
		return nil, scanErr
	}
	for _, w := range report.Warnings {
		log.Warn("Scan engine warning", "warning", w)
	}

	s.populate(log, result, report)

	if err := result.Seal(); err != nil {
		sink.IncrementScanErrors(profile.Name, errorTypeSeal)
		return nil, errors.WrapScanErrorWithTarget(errors.CodeUnknown, "failed to seal scan result", t.Raw, err)
	}

	status = metrics.StatusSuccess
	sink.SetHostsDiscovered(result.TotalHosts())
	sink.RecordScanDuration(profile.Name, time.Since(start))
	log.Info("Scan completed",
		"profile", profile.Name,
		"hosts", result.TotalHosts(),
		"ports", result.TotalPorts(),
		"duration", result.Duration())
	return result, nil
}

func requestFor(t targets.Target, profile profiles.Profile) Request {
	return Request{
		Targets:          []string{t.Raw},
		Ports:            profile.Ports,
		ServiceDetection: profile.ServiceDetection,
		OSDetection:      profile.OSDetection,
		Timing:           profile.Timing,
		ExtraArgs:        append([]string(nil), profile.ExtraArgs...),
	}
}

func classifyEngineError(ctx context.Context, target string, err error) (string, error) {
	switch {
	case errors.IsCode(err, errors.CodeDependencyMissing):
		return errorTypeDependency, err
	case stderrors.Is(err, context.DeadlineExceeded) || stderrors.Is(ctx.Err(), context.DeadlineExceeded):
		return errorTypeTimeout, errors.ErrScanTimeout(target, err)
	case stderrors.Is(err, context.Canceled) || stderrors.Is(ctx.Err(), context.Canceled):
		return errorTypeCanceled, errors.WrapScanErrorWithTarget(errors.CodeCanceled, "scan was canceled", target, err)
	default:
		return errorTypeEngine, errors.ErrEngineFailure(target, err)
	}
}

// populate turns engine hosts into model hosts. Hosts reported twice under
// the same address are merged, and entries the model cannot represent are
// skipped with a warning.
func (s *Scanner) populate(log *logging.Logger, result *models.ScanResult, report *Report) {
	for i := range report.Hosts {
		eh := &report.Hosts[i]

		host, known := result.HostByIP(eh.IP)
		if !known {
			var err error
			host, err = models.NewHost(models.HostInfo{
				IP:       eh.IP,
				MAC:      eh.MAC,
				Hostname: eh.Hostname,
				Status:   hostStatus(eh.State),
				OSGuess:  bestOSGuess(eh.OSGuesses),
			})
			if err != nil {
				log.Warn("Skipping host the engine reported without a usable address", "ip", eh.IP, "error", err)
				continue
			}
		}

		for j := range eh.Ports {
			addPort(log, host, &eh.Ports[j])
		}

		if !known {
			if err := result.AddHost(host); err != nil {
				log.Warn("Failed to add host", "ip", host.IP(), "error", err)
			}
		}
	}
}

func addPort(log *logging.Logger, host *models.Host, ep *EnginePort) {
	protocol := models.Protocol(strings.ToLower(ep.Protocol))
	if protocol != models.ProtocolTCP && protocol != models.ProtocolUDP {
		log.Debug("Skipping port with unsupported protocol", "ip", host.IP(), "port", ep.Number, "protocol", ep.Protocol)
		return
	}
	for _, existing := range host.Ports() {
		if existing.Number() == ep.Number && existing.Protocol() == protocol {
			return
		}
	}

	port, err := models.NewPort(ep.Number, protocol, portState(ep.State), ep.Service,
		versionString(ep.Product, ep.Version, ep.ExtraInfo))
	if err != nil {
		log.Warn("Skipping invalid port", "ip", host.IP(), "port", ep.Number, "error", err)
		return
	}
	if err := host.AddPort(port); err != nil {
		log.Warn("Failed to add port", "ip", host.IP(), "port", ep.Number, "error", err)
	}
}

func hostStatus(state string) models.HostStatus {
	if strings.EqualFold(state, string(models.StatusUp)) {
		return models.StatusUp
	}
	return models.StatusDown
}

// portState folds the engine's compound states onto the model's four.
func portState(state string) models.PortState {
	switch strings.ToLower(state) {
	case "open":
		return models.PortOpen
	case "closed":
		return models.PortClosed
	case "filtered", "open|filtered", "closed|filtered":
		return models.PortFiltered
	default:
		return models.PortUnknown
	}
}

// versionString renders "product version (extra)" leaving out empty parts.
func versionString(product, version, extra string) string {
	var parts []string
	if product != "" {
		parts = append(parts, product)
	}
	if version != "" {
		parts = append(parts, version)
	}
	if extra != "" {
		parts = append(parts, fmt.Sprintf("(%s)", extra))
	}
	return strings.Join(parts, " ")
}

// bestOSGuess picks the most accurate match. A match without a name falls
// back to its class family and generation.
func bestOSGuess(guesses []OSGuess) string {
	if len(guesses) == 0 {
		return ""
	}
	sorted := append([]OSGuess(nil), guesses...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Accuracy > sorted[j].Accuracy })

	best := sorted[0]
	if best.Name != "" {
		return best.Name
	}
	return strings.TrimSpace(best.Family + " " + best.Generation)
}
