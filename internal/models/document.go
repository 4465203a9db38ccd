package models

import (
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/anstrom/hostsweep/internal/errors"
	"github.com/google/uuid"
)

// durationTolerance absorbs float rounding when checking duration against
// end - start.
const durationTolerance = 1e-6

// PortDoc is the serialized form of a Port.
type PortDoc struct {
	Number   int    `json:"number"`
	Protocol string `json:"protocol"`
	State    string `json:"state"`
	Service  string `json:"service"`
	Version  string `json:"version"`
}

// HostDoc is the serialized form of a Host. Optional fields are null when absent.
type HostDoc struct {
	IP       string    `json:"ip"`
	MAC      *string   `json:"mac"`
	Hostname *string   `json:"hostname"`
	Status   string    `json:"status"`
	Ports    []PortDoc `json:"ports"`
	OSGuess  *string   `json:"os_guess"`
}

// ScanResultDoc is the serialized form of a ScanResult.
type ScanResultDoc struct {
	ScanID     string    `json:"scan_id"`
	Target     string    `json:"target"`
	StartTime  time.Time `json:"start_time"`
	EndTime    time.Time `json:"end_time"`
	Duration   float64   `json:"duration"`
	Hosts      []HostDoc `json:"hosts"`
	TotalHosts int       `json:"total_hosts"`
	TotalPorts int       `json:"total_ports"`
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// Document converts the port to its serialized form.
func (p Port) Document() PortDoc {
	return PortDoc{
		Number:   p.number,
		Protocol: string(p.protocol),
		State:    string(p.state),
		Service:  p.service,
		Version:  p.version,
	}
}

// Document converts the host to its serialized form.
func (h *Host) Document() HostDoc {
	doc := HostDoc{
		IP:       h.ip,
		MAC:      optional(h.mac),
		Hostname: optional(h.hostname),
		Status:   string(h.status),
		Ports:    make([]PortDoc, 0, len(h.ports)),
		OSGuess:  optional(h.osGuess),
	}
	for _, p := range h.ports {
		doc.Ports = append(doc.Ports, p.Document())
	}
	return doc
}

// Document converts the result to its serialized form.
func (r *ScanResult) Document() ScanResultDoc {
	doc := ScanResultDoc{
		ScanID:     r.scanID,
		Target:     r.target,
		StartTime:  r.startTime,
		EndTime:    r.endTime,
		Duration:   r.duration,
		Hosts:      make([]HostDoc, 0, len(r.hosts)),
		TotalHosts: r.totalHosts,
		TotalPorts: r.totalPorts,
	}
	for _, h := range r.hosts {
		doc.Hosts = append(doc.Hosts, h.Document())
	}
	return doc
}

// FromDocument rebuilds a sealed ScanResult and checks every invariant.
// Ports are attached directly and do not touch the ports metric.
func FromDocument(doc ScanResultDoc) (*ScanResult, error) {
	if _, err := uuid.Parse(doc.ScanID); err != nil {
		return nil, errors.WrapScanError(errors.CodeValidation,
			fmt.Sprintf("invalid scan_id %q", doc.ScanID), err)
	}
	if doc.EndTime.Before(doc.StartTime) {
		return nil, errors.NewScanError(errors.CodeValidation, "end_time precedes start_time")
	}
	if want := doc.EndTime.Sub(doc.StartTime).Seconds(); math.Abs(want-doc.Duration) > durationTolerance {
		return nil, errors.NewScanError(errors.CodeValidation,
			fmt.Sprintf("duration %v does not match end_time - start_time (%v)", doc.Duration, want))
	}

	r := &ScanResult{
		scanID:    doc.ScanID,
		target:    doc.Target,
		startTime: doc.StartTime.UTC(),
		endTime:   doc.EndTime.UTC(),
		duration:  doc.Duration,
		hosts:     make([]*Host, 0, len(doc.Hosts)),
	}

	seen := make(map[string]bool, len(doc.Hosts))
	for _, hd := range doc.Hosts {
		h, err := NewHost(HostInfo{
			IP:       hd.IP,
			MAC:      deref(hd.MAC),
			Hostname: deref(hd.Hostname),
			Status:   HostStatus(hd.Status),
			OSGuess:  deref(hd.OSGuess),
		})
		if err != nil {
			return nil, err
		}
		if seen[h.ip] {
			return nil, errors.NewScanError(errors.CodeValidation,
				fmt.Sprintf("duplicate host %s", h.ip))
		}
		seen[h.ip] = true

		for _, pd := range hd.Ports {
			p, err := NewPort(pd.Number, Protocol(pd.Protocol), PortState(pd.State), pd.Service, pd.Version)
			if err != nil {
				return nil, err
			}
			h.ports = append(h.ports, p)
		}
		h.sealed = true
		r.hosts = append(r.hosts, h)
	}

	r.computeTotals()
	r.sealed = true

	if r.totalHosts != doc.TotalHosts {
		return nil, errors.NewScanError(errors.CodeValidation,
			fmt.Sprintf("total_hosts %d does not match %d hosts", doc.TotalHosts, r.totalHosts))
	}
	if r.totalPorts != doc.TotalPorts {
		return nil, errors.NewScanError(errors.CodeValidation,
			fmt.Sprintf("total_ports %d does not match %d ports", doc.TotalPorts, r.totalPorts))
	}
	return r, nil
}

// MarshalJSON implements json.Marshaler.
func (r *ScanResult) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.Document())
}

// UnmarshalJSON implements json.Unmarshaler. The decoded result is sealed.
func (r *ScanResult) UnmarshalJSON(data []byte) error {
	var doc ScanResultDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}
	decoded, err := FromDocument(doc)
	if err != nil {
		return err
	}
	*r = *decoded
	return nil
}

// MarshalJSON implements json.Marshaler.
func (h *Host) MarshalJSON() ([]byte, error) {
	return json.Marshal(h.Document())
}

// MarshalJSON implements json.Marshaler.
func (p Port) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.Document())
}
