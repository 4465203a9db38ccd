package reporting

import (
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/pkg/twwidth"

	"github.com/anstrom/hostsweep/internal/models"
)

const sectionIndent = "  "

var portColumns = []string{"Protocol", "Port", "State", "Service", "Version"}

// Layout renders the port listing of one host.
type Layout interface {
	Name() string
	Ports(w io.Writer, ports []models.Port, st Styler) error
}

// NewLayout returns the bordered table layout when table is true and the
// plain column layout otherwise.
func NewLayout(table bool) Layout {
	if table {
		return tableLayout{}
	}
	return plainLayout{}
}

func portRow(p models.Port) []string {
	return []string{
		string(p.Protocol()),
		strconv.Itoa(p.Number()),
		string(p.State()),
		p.Service(),
		p.Version(),
	}
}

type tableLayout struct{}

func (tableLayout) Name() string { return "table" }

// Ports renders through tablewriter, indented under the host like the plain
// layout. Column widths ignore the escape codes of styled state cells.
func (tableLayout) Ports(w io.Writer, ports []models.Port, st Styler) error {
	var buf bytes.Buffer
	table := tablewriter.NewWriter(&buf)
	table.Header("Protocol", "Port", "State", "Service", "Version")

	for _, p := range ports {
		row := portRow(p)
		row[2] = st.State(p.State(), row[2])
		if err := table.Append(row); err != nil {
			return fmt.Errorf("append table row: %w", err)
		}
	}
	if err := table.Render(); err != nil {
		return fmt.Errorf("render table: %w", err)
	}

	for _, line := range strings.SplitAfter(buf.String(), "\n") {
		if line == "" {
			continue
		}
		if _, err := io.WriteString(w, sectionIndent+line); err != nil {
			return err
		}
	}
	return nil
}

type plainLayout struct{}

func (plainLayout) Name() string { return "plain" }

// Ports writes space-aligned columns sized by display width. The state
// column is styled after padding so escape codes never shift alignment.
func (plainLayout) Ports(w io.Writer, ports []models.Port, st Styler) error {
	rows := make([][]string, 0, len(ports)+1)
	header := make([]string, len(portColumns))
	for i, c := range portColumns {
		header[i] = strings.ToUpper(c)
	}
	rows = append(rows, header)
	for _, p := range ports {
		rows = append(rows, portRow(p))
	}

	widths := make([]int, len(portColumns))
	for _, row := range rows {
		for i, cell := range row {
			widths[i] = max(widths[i], twwidth.Width(cell))
		}
	}

	for r, row := range rows {
		var b strings.Builder
		b.WriteString(sectionIndent)
		for i, cell := range row {
			padded := cell
			if i < len(row)-1 {
				padded = cell + strings.Repeat(" ", widths[i]-twwidth.Width(cell)+2)
			}
			switch {
			case r == 0:
				padded = st.Label(padded)
			case i == 2:
				padded = st.State(ports[r-1].State(), padded)
			}
			b.WriteString(padded)
		}
		if _, err := fmt.Fprintln(w, strings.TrimRight(b.String(), " ")); err != nil {
			return err
		}
	}
	return nil
}
