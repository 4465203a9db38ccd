package reporting

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/anstrom/hostsweep/internal/errors"
	"github.com/anstrom/hostsweep/internal/logging"
	"github.com/anstrom/hostsweep/internal/models"
)

const separatorLength = 60

// ConsoleReporter renders a sealed result as human-readable text.
type ConsoleReporter struct {
	styler Styler
	layout Layout
}

// NewConsoleReporter creates a console reporter. Nil arguments select the
// plain variants.
func NewConsoleReporter(styler Styler, layout Layout) *ConsoleReporter {
	if styler == nil {
		styler = plainStyler{}
	}
	if layout == nil {
		layout = plainLayout{}
	}
	return &ConsoleReporter{styler: styler, layout: layout}
}

// Report writes the rendered result to w.
func (r *ConsoleReporter) Report(w io.Writer, result *models.ScanResult) error {
	data, err := r.Render(result)
	if err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		return errors.WrapScanError(errors.CodeOutput, "failed to write console report", err)
	}
	return nil
}

// Render returns the console text for result. Hosts and ports appear in
// their stored order, so the output for a given result never changes.
func (r *ConsoleReporter) Render(result *models.ScanResult) ([]byte, error) {
	if err := requireSealed(result); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	r.writeHeader(&buf, result)

	for _, host := range result.Hosts() {
		buf.WriteString("\n")
		r.writeHost(&buf, host)
	}

	buf.WriteString("\n")
	r.writeFooter(&buf, result)
	return buf.Bytes(), nil
}

func (r *ConsoleReporter) writeHeader(buf *bytes.Buffer, result *models.ScanResult) {
	st := r.styler
	fmt.Fprintln(buf, st.Title("Scan "+result.ScanID()))
	fmt.Fprintln(buf, strings.Repeat("=", separatorLength))
	fmt.Fprintf(buf, "%s %s\n", st.Label("Target:  "), result.Target())
	fmt.Fprintf(buf, "%s %s\n", st.Label("Started: "), result.StartTime().Format(time.RFC3339))
	fmt.Fprintf(buf, "%s %.3fs\n", st.Label("Duration:"), result.Duration())
	fmt.Fprintf(buf, "%s %d\n", st.Label("Hosts:   "), result.TotalHosts())
	fmt.Fprintf(buf, "%s %d\n", st.Label("Ports:   "), result.TotalPorts())
}

func (r *ConsoleReporter) writeHost(buf *bytes.Buffer, host *models.Host) {
	st := r.styler
	fmt.Fprintln(buf, st.Title("Host "+host.IP()))
	fmt.Fprintln(buf, strings.Repeat("-", separatorLength))
	fmt.Fprintf(buf, "  %s %s\n", st.Label("Hostname:"), valueOrDash(host.Hostname()))
	fmt.Fprintf(buf, "  %s %s\n", st.Label("Status:  "), st.HostStatus(host.Status(), string(host.Status())))
	if host.MAC() != "" {
		fmt.Fprintf(buf, "  %s %s\n", st.Label("MAC:     "), host.MAC())
	}
	if host.OSGuess() != "" {
		fmt.Fprintf(buf, "  %s %s\n", st.Label("OS guess:"), host.OSGuess())
	}

	ports := host.Ports()
	if len(ports) == 0 {
		fmt.Fprintln(buf, "  No ports reported")
		return
	}

	var section bytes.Buffer
	if err := r.layout.Ports(&section, ports, st); err != nil {
		logging.WarnDegraded(r.layout.Name(), errors.ErrRenderDegraded(r.layout.Name(), err.Error()))
		section.Reset()
		_ = plainLayout{}.Ports(&section, ports, st)
	}
	buf.Write(section.Bytes())
}

func (r *ConsoleReporter) writeFooter(buf *bytes.Buffer, result *models.ScanResult) {
	counts := result.PortStateCounts()
	parts := make([]string, 0, len(models.PortStates))
	for _, state := range models.PortStates {
		parts = append(parts, r.styler.State(state, fmt.Sprintf("%s=%d", state, counts[state])))
	}
	fmt.Fprintf(buf, "%s %s\n", r.styler.Label("Port states:"), strings.Join(parts, " "))
}

func valueOrDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func requireSealed(result *models.ScanResult) error {
	if result == nil {
		return errors.NewScanError(errors.CodeOutput, "cannot render a nil scan result")
	}
	if !result.Sealed() {
		return errors.NewScanErrorWithTarget(errors.CodeOutput,
			"cannot render a scan that has not completed", result.Target())
	}
	return nil
}
