package reporting

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/anstrom/hostsweep/internal/errors"
	"github.com/anstrom/hostsweep/internal/models"
)

// ScanXML is the root element for XML serialization of scan results.
type ScanXML struct {
	XMLName    xml.Name  `xml:"scanresult"`
	ScanID     string    `xml:"scan_id,attr"`
	Target     string    `xml:"target,attr"`
	StartTime  string    `xml:"start_time,attr"`
	EndTime    string    `xml:"end_time,attr"`
	Duration   float64   `xml:"duration,attr"`
	TotalHosts int       `xml:"total_hosts,attr"`
	TotalPorts int       `xml:"total_ports,attr"`
	Hosts      []HostXML `xml:"host"`
}

// HostXML represents a scanned host. Optional fields are omitted when absent.
type HostXML struct {
	IP       string    `xml:"ip"`
	MAC      *string   `xml:"mac,omitempty"`
	Hostname *string   `xml:"hostname,omitempty"`
	Status   string    `xml:"status"`
	OSGuess  *string   `xml:"os_guess,omitempty"`
	Ports    []PortXML `xml:"ports>port"`
}

// PortXML represents a scanned port.
type PortXML struct {
	Number   int    `xml:"number,attr"`
	Protocol string `xml:"protocol,attr"`
	State    string `xml:"state"`
	Service  string `xml:"service"`
	Version  string `xml:"version,omitempty"`
}

// XMLReporter writes results as indented XML.
type XMLReporter struct{}

// Report writes result to w.
func (XMLReporter) Report(w io.Writer, result *models.ScanResult) error {
	data, err := MarshalXML(result)
	if err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		return errors.WrapScanError(errors.CodeOutput, "failed to write XML report", err)
	}
	return nil
}

func toXML(doc models.ScanResultDoc) *ScanXML {
	out := &ScanXML{
		ScanID:     doc.ScanID,
		Target:     doc.Target,
		StartTime:  doc.StartTime.Format(time.RFC3339Nano),
		EndTime:    doc.EndTime.Format(time.RFC3339Nano),
		Duration:   doc.Duration,
		TotalHosts: doc.TotalHosts,
		TotalPorts: doc.TotalPorts,
		Hosts:      make([]HostXML, len(doc.Hosts)),
	}
	for i, h := range doc.Hosts {
		host := HostXML{
			IP:       h.IP,
			MAC:      h.MAC,
			Hostname: h.Hostname,
			Status:   h.Status,
			OSGuess:  h.OSGuess,
			Ports:    make([]PortXML, len(h.Ports)),
		}
		for j, p := range h.Ports {
			host.Ports[j] = PortXML(p)
		}
		out.Hosts[i] = host
	}
	return out
}

func fromXML(in *ScanXML) (models.ScanResultDoc, error) {
	start, err := time.Parse(time.RFC3339Nano, in.StartTime)
	if err != nil {
		return models.ScanResultDoc{}, fmt.Errorf("start_time: %w", err)
	}
	end, err := time.Parse(time.RFC3339Nano, in.EndTime)
	if err != nil {
		return models.ScanResultDoc{}, fmt.Errorf("end_time: %w", err)
	}

	doc := models.ScanResultDoc{
		ScanID:     in.ScanID,
		Target:     in.Target,
		StartTime:  start,
		EndTime:    end,
		Duration:   in.Duration,
		TotalHosts: in.TotalHosts,
		TotalPorts: in.TotalPorts,
		Hosts:      make([]models.HostDoc, len(in.Hosts)),
	}
	for i, h := range in.Hosts {
		host := models.HostDoc{
			IP:       h.IP,
			MAC:      h.MAC,
			Hostname: h.Hostname,
			Status:   h.Status,
			OSGuess:  h.OSGuess,
			Ports:    make([]models.PortDoc, len(h.Ports)),
		}
		for j, p := range h.Ports {
			host.Ports[j] = models.PortDoc(p)
		}
		doc.Hosts[i] = host
	}
	return doc, nil
}

// MarshalXML encodes a sealed result with the XML header.
func MarshalXML(result *models.ScanResult) ([]byte, error) {
	if err := requireSealed(result); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	encoder := xml.NewEncoder(&buf)
	encoder.Indent("", "  ")
	if err := encoder.Encode(toXML(result.Document())); err != nil {
		return nil, errors.WrapScanError(errors.CodeOutput, "failed to encode scan result as XML", err)
	}
	buf.WriteString("\n")
	return buf.Bytes(), nil
}

// SaveXML writes result to an XML file at path.
func SaveXML(path string, result *models.ScanResult) error {
	data, err := MarshalXML(result)
	if err != nil {
		return err
	}
	return writeFile(path, data)
}

// ReadXML parses an XML export back into a sealed result.
func ReadXML(r io.Reader) (*models.ScanResult, error) {
	var in ScanXML
	if err := xml.NewDecoder(r).Decode(&in); err != nil {
		return nil, errors.WrapScanError(errors.CodeValidation, "failed to parse XML scan result", err)
	}
	doc, err := fromXML(&in)
	if err != nil {
		return nil, errors.WrapScanError(errors.CodeValidation, "failed to parse XML scan result", err)
	}
	return models.FromDocument(doc)
}

// LoadXML reads an XML export from path.
func LoadXML(path string) (*models.ScanResult, error) {
	f, err := openFile(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	return ReadXML(f)
}

const reportFilePerm = 0o600

func writeFile(path string, data []byte) error {
	if err := validateFilePath(path); err != nil {
		return errors.WrapScanError(errors.CodeValidation, "invalid report path", err)
	}
	if err := os.WriteFile(path, data, reportFilePerm); err != nil {
		return errors.WrapScanError(errors.CodeOutput, fmt.Sprintf("failed to write %s", path), err)
	}
	return nil
}

// validateFilePath rejects paths that climb out of their directory.
func validateFilePath(path string) error {
	if path == "" {
		return fmt.Errorf("path is empty")
	}
	if strings.Contains(filepath.Clean(path), "..") {
		return fmt.Errorf("path contains directory traversal")
	}
	return nil
}
