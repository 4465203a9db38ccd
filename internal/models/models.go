// Package models defines the scan domain records: Port, Host and ScanResult.
//
// Records are immutable once built. The only sanctioned mutations are
// Host.AddPort and ScanResult.AddHost, and both stop working once the owning
// result has been sealed.
package models

import (
	stderrors "errors"
	"fmt"
	"net/netip"
	"strings"
	"time"

	"github.com/anstrom/hostsweep/internal/errors"
	"github.com/anstrom/hostsweep/internal/metrics"
	"github.com/google/uuid"
)

const (
	minPortNumber  = 1
	maxPortNumber  = 65535
	defaultService = "unknown"
)

// ErrSealed is returned when a sealed record is mutated.
var ErrSealed = stderrors.New("scan result is sealed")

// Protocol is a transport protocol.
type Protocol string

// Supported protocols.
const (
	ProtocolTCP Protocol = "tcp"
	ProtocolUDP Protocol = "udp"
)

// PortState is the observed state of a port.
type PortState string

// Port states.
const (
	PortOpen     PortState = "open"
	PortClosed   PortState = "closed"
	PortFiltered PortState = "filtered"
	PortUnknown  PortState = "unknown"
)

// PortStates lists every port state in report order.
var PortStates = []PortState{PortOpen, PortClosed, PortFiltered, PortUnknown}

// HostStatus is the reachability of a host.
type HostStatus string

// Host statuses.
const (
	StatusUp   HostStatus = "up"
	StatusDown HostStatus = "down"
)

func validProtocol(p Protocol) bool {
	return p == ProtocolTCP || p == ProtocolUDP
}

func validPortState(s PortState) bool {
	switch s {
	case PortOpen, PortClosed, PortFiltered, PortUnknown:
		return true
	}
	return false
}

func validHostStatus(s HostStatus) bool {
	return s == StatusUp || s == StatusDown
}

// Port is one scanned port on a host.
type Port struct {
	number   int
	protocol Protocol
	state    PortState
	service  string
	version  string
}

// NewPort validates and builds a Port. An empty service becomes "unknown".
func NewPort(number int, protocol Protocol, state PortState, service, version string) (Port, error) {
	if number < minPortNumber || number > maxPortNumber {
		return Port{}, errors.NewScanError(errors.CodeValidation,
			fmt.Sprintf("port number %d out of range %d-%d", number, minPortNumber, maxPortNumber))
	}
	if !validProtocol(protocol) {
		return Port{}, errors.NewScanError(errors.CodeValidation,
			fmt.Sprintf("unsupported protocol %q", protocol))
	}
	if !validPortState(state) {
		return Port{}, errors.NewScanError(errors.CodeValidation,
			fmt.Sprintf("invalid port state %q", state))
	}
	if strings.TrimSpace(service) == "" {
		service = defaultService
	}
	return Port{
		number:   number,
		protocol: protocol,
		state:    state,
		service:  service,
		version:  version,
	}, nil
}

// Number returns the port number.
func (p Port) Number() int { return p.number }

// Protocol returns the transport protocol.
func (p Port) Protocol() Protocol { return p.protocol }

// State returns the observed state.
func (p Port) State() PortState { return p.state }

// Service returns the detected service name.
func (p Port) Service() string { return p.service }

// Version returns the detected service version, possibly empty.
func (p Port) Version() string { return p.version }

// String formats the port as number/protocol.
func (p Port) String() string {
	return fmt.Sprintf("%d/%s", p.number, p.protocol)
}

// HostInfo carries the attributes used to build a Host.
type HostInfo struct {
	IP       string
	MAC      string
	Hostname string
	Status   HostStatus
	OSGuess  string
}

// Host is a discovered host and the ports found on it.
type Host struct {
	ip       string
	mac      string
	hostname string
	status   HostStatus
	osGuess  string
	ports    []Port
	sealed   bool
}

// NewHost validates and builds a Host. Status defaults to up.
func NewHost(info HostInfo) (*Host, error) {
	addr, err := netip.ParseAddr(strings.TrimSpace(info.IP))
	if err != nil {
		return nil, errors.WrapScanError(errors.CodeValidation,
			fmt.Sprintf("invalid host address %q", info.IP), err)
	}
	status := info.Status
	if status == "" {
		status = StatusUp
	}
	if !validHostStatus(status) {
		return nil, errors.NewScanError(errors.CodeValidation,
			fmt.Sprintf("invalid host status %q", status))
	}
	return &Host{
		ip:       addr.String(),
		mac:      info.MAC,
		hostname: info.Hostname,
		status:   status,
		osGuess:  info.OSGuess,
		ports:    make([]Port, 0),
	}, nil
}

// IP returns the canonical address string.
func (h *Host) IP() string { return h.ip }

// MAC returns the hardware address, or "" when unknown.
func (h *Host) MAC() string { return h.mac }

// Hostname returns the resolved name, or "" when unknown.
func (h *Host) Hostname() string { return h.hostname }

// Status returns the host status.
func (h *Host) Status() HostStatus { return h.status }

// OSGuess returns the best OS guess, or "" when none was made.
func (h *Host) OSGuess() string { return h.osGuess }

// Ports returns a copy of the host's ports in discovery order.
func (h *Host) Ports() []Port {
	out := make([]Port, len(h.ports))
	copy(out, h.ports)
	return out
}

// PortCount returns the number of ports attached to the host.
func (h *Host) PortCount() int { return len(h.ports) }

// AddPort appends p and counts it in the process-wide ports metric.
func (h *Host) AddPort(p Port) error {
	if h.sealed {
		return ErrSealed
	}
	if p.number == 0 {
		return errors.NewScanError(errors.CodeValidation, "port was not built with NewPort")
	}
	h.ports = append(h.ports, p)
	metrics.Default().IncrementPortsFound()
	return nil
}

// Equal reports whether both hosts have the same address.
func (h *Host) Equal(other *Host) bool {
	if h == nil || other == nil {
		return h == other
	}
	return h.ip == other.ip
}

// timestampPrecision is the clock resolution a result keeps. It matches
// what PostgreSQL stores for TIMESTAMPTZ.
const timestampPrecision = time.Microsecond

// ScanResult is the outcome of one scan invocation.
type ScanResult struct {
	scanID     string
	target     string
	startTime  time.Time
	endTime    time.Time
	duration   float64
	hosts      []*Host
	totalHosts int
	totalPorts int
	sealed     bool
}

// NewScanResult starts an empty result for target, stamped with the current time.
func NewScanResult(target string) *ScanResult {
	return &ScanResult{
		scanID:    uuid.New().String(),
		target:    target,
		startTime: time.Now().UTC().Truncate(timestampPrecision),
		hosts:     make([]*Host, 0),
	}
}

// ScanID returns the result's UUID.
func (r *ScanResult) ScanID() string { return r.scanID }

// Target returns the target as given by the caller.
func (r *ScanResult) Target() string { return r.target }

// StartTime returns when the scan started.
func (r *ScanResult) StartTime() time.Time { return r.startTime }

// EndTime returns when the scan was sealed; zero until then.
func (r *ScanResult) EndTime() time.Time { return r.endTime }

// Duration returns the elapsed scan time in seconds.
func (r *ScanResult) Duration() float64 { return r.duration }

// TotalHosts returns the host count computed at seal time.
func (r *ScanResult) TotalHosts() int { return r.totalHosts }

// TotalPorts returns the port count computed at seal time.
func (r *ScanResult) TotalPorts() int { return r.totalPorts }

// Sealed reports whether the result is complete.
func (r *ScanResult) Sealed() bool { return r.sealed }

// Hosts returns the hosts in discovery order.
func (r *ScanResult) Hosts() []*Host {
	out := make([]*Host, len(r.hosts))
	copy(out, r.hosts)
	return out
}

// HostByIP returns the host with the given address, if present.
func (r *ScanResult) HostByIP(ip string) (*Host, bool) {
	if addr, err := netip.ParseAddr(ip); err == nil {
		ip = addr.String()
	}
	for _, h := range r.hosts {
		if h.ip == ip {
			return h, true
		}
	}
	return nil, false
}

// AddHost appends h. Duplicate detection is left to the caller.
func (r *ScanResult) AddHost(h *Host) error {
	if r.sealed {
		return ErrSealed
	}
	if h == nil {
		return errors.NewScanError(errors.CodeValidation, "cannot add nil host")
	}
	r.hosts = append(r.hosts, h)
	return nil
}

// Seal stamps the end time, computes duration and totals, and freezes the
// result and all of its hosts.
func (r *ScanResult) Seal() error {
	if r.sealed {
		return ErrSealed
	}
	end := time.Now().UTC().Truncate(timestampPrecision)
	if end.Before(r.startTime) {
		end = r.startTime
	}
	r.endTime = end
	r.duration = end.Sub(r.startTime).Seconds()
	r.computeTotals()
	r.sealed = true
	return nil
}

func (r *ScanResult) computeTotals() {
	r.totalHosts = len(r.hosts)
	r.totalPorts = 0
	for _, h := range r.hosts {
		r.totalPorts += len(h.ports)
		h.sealed = true
	}
}

// Equal reports whether both results have the same scan ID.
func (r *ScanResult) Equal(other *ScanResult) bool {
	if r == nil || other == nil {
		return r == other
	}
	return r.scanID == other.scanID
}

// PortStateCounts tallies ports by state across all hosts.
func (r *ScanResult) PortStateCounts() map[PortState]int {
	counts := make(map[PortState]int, len(PortStates))
	for _, s := range PortStates {
		counts[s] = 0
	}
	for _, h := range r.hosts {
		for _, p := range h.ports {
			counts[p.state]++
		}
	}
	return counts
}
