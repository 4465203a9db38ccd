package scanning

import (
	"context"
	stderrors "errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/Ullaakut/nmap/v3"

	"github.com/anstrom/hostsweep/internal/errors"
	"github.com/anstrom/hostsweep/internal/profiles"
)

const nmapDependency = "nmap"

// NmapRemediation tells the operator how to get a working nmap.
const NmapRemediation = "Install nmap and make sure it is on PATH:\n" +
	"  Debian/Ubuntu: sudo apt-get install nmap\n" +
	"  Fedora/RHEL:   sudo dnf install nmap\n" +
	"  macOS:         brew install nmap\n" +
	"  Other:         https://nmap.org/download.html\n" +
	"Or point scanning.nmap_path at the binary."

// NmapEngine runs scans through the nmap binary.
type NmapEngine struct {
	binaryPath string
}

// NewNmapEngine creates an engine. An empty binaryPath looks nmap up in PATH.
func NewNmapEngine(binaryPath string) *NmapEngine {
	return &NmapEngine{binaryPath: binaryPath}
}

// Check verifies that the nmap binary can be found.
func (e *NmapEngine) Check(ctx context.Context) error {
	if e.binaryPath != "" {
		if _, err := exec.LookPath(e.binaryPath); err != nil {
			return errors.ErrDependencyMissing(nmapDependency, NmapRemediation, err)
		}
	}
	if _, err := nmap.NewScanner(ctx, e.baseOptions()...); err != nil {
		return e.launchError(err)
	}
	return nil
}

// Scan runs nmap and converts its output.
func (e *NmapEngine) Scan(ctx context.Context, req Request) (*Report, error) {
	scanner, err := nmap.NewScanner(ctx, append(e.baseOptions(), buildScanOptions(req)...)...)
	if err != nil {
		return nil, e.launchError(err)
	}

	run, warnings, err := scanner.Run()
	report := &Report{}
	if warnings != nil {
		report.Warnings = append(report.Warnings, *warnings...)
	}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("nmap run: %w", ctxErr)
		}
		return nil, runError(err, report.Warnings)
	}
	if run == nil {
		return nil, fmt.Errorf("nmap run: no output")
	}

	report.Hosts = convertRun(run)
	return report, nil
}

// runError wraps a failed nmap run, keeping what nmap wrote to stderr in the
// message.
func runError(err error, warnings []string) error {
	var lines []string
	for _, w := range warnings {
		if w = strings.TrimSpace(w); w != "" {
			lines = append(lines, w)
		}
	}
	if len(lines) == 0 {
		return fmt.Errorf("nmap run: %w", err)
	}
	return fmt.Errorf("nmap run: %w: %s", err, strings.Join(lines, "; "))
}

func (e *NmapEngine) baseOptions() []nmap.Option {
	if e.binaryPath == "" {
		return nil
	}
	return []nmap.Option{nmap.WithBinaryPath(e.binaryPath)}
}

func (e *NmapEngine) launchError(err error) error {
	if stderrors.Is(err, nmap.ErrNmapNotInstalled) {
		return errors.ErrDependencyMissing(nmapDependency, NmapRemediation, err)
	}
	return errors.WrapScanError(errors.CodeEngineFailure, "failed to create nmap scanner", err)
}

// buildScanOptions maps a request onto nmap options. Host discovery stays
// on so unresponsive addresses are reported as absent rather than scanned.
func buildScanOptions(req Request) []nmap.Option {
	options := []nmap.Option{
		nmap.WithTargets(req.Targets...),
	}
	if req.Ports != "" {
		options = append(options, nmap.WithPorts(req.Ports))
	}
	if req.ServiceDetection {
		options = append(options, nmap.WithServiceInfo())
	}
	if req.OSDetection {
		options = append(options, nmap.WithOSDetection())
	}

	switch req.Timing {
	case profiles.TimingPolite:
		options = append(options, nmap.WithTimingTemplate(nmap.TimingPolite))
	case profiles.TimingAggressive:
		options = append(options, nmap.WithTimingTemplate(nmap.TimingAggressive))
	default:
		options = append(options, nmap.WithTimingTemplate(nmap.TimingNormal))
	}

	if len(req.ExtraArgs) > 0 {
		options = append(options, nmap.WithCustomArguments(req.ExtraArgs...))
	}
	return options
}

// convertRun translates nmap output into engine hosts, keeping nmap's order.
func convertRun(run *nmap.Run) []EngineHost {
	hosts := make([]EngineHost, 0, len(run.Hosts))
	for i := range run.Hosts {
		hosts = append(hosts, convertNmapHost(&run.Hosts[i]))
	}
	return hosts
}

func convertNmapHost(h *nmap.Host) EngineHost {
	host := EngineHost{
		State: h.Status.State,
		Ports: make([]EnginePort, 0, len(h.Ports)),
	}

	for _, addr := range h.Addresses {
		switch addr.AddrType {
		case "ipv4", "ipv6":
			if host.IP == "" {
				host.IP = addr.Addr
			}
		case "mac":
			host.MAC = addr.Addr
		}
	}
	if len(h.Hostnames) > 0 {
		host.Hostname = h.Hostnames[0].Name
	}

	for _, match := range h.OS.Matches {
		guess := OSGuess{Name: match.Name, Accuracy: match.Accuracy}
		if len(match.Classes) > 0 {
			guess.Family = match.Classes[0].Family
			guess.Generation = match.Classes[0].OSGeneration
		}
		host.OSGuesses = append(host.OSGuesses, guess)
	}

	for j := range h.Ports {
		p := &h.Ports[j]
		host.Ports = append(host.Ports, EnginePort{
			Number:    int(p.ID),
			Protocol:  p.Protocol,
			State:     p.State.State,
			Service:   p.Service.Name,
			Product:   p.Service.Product,
			Version:   p.Service.Version,
			ExtraInfo: p.Service.ExtraInfo,
		})
	}
	return host
}
