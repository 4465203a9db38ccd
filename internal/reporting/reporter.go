package reporting

import (
	"bytes"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/anstrom/hostsweep/internal/errors"
	"github.com/anstrom/hostsweep/internal/models"
)

// Output formats.
const (
	FormatConsole = "console"
	FormatJSON    = "json"
	FormatXML     = "xml"
)

// Reporter writes a sealed result to w.
type Reporter interface {
	Report(w io.Writer, result *models.ScanResult) error
}

// Options select the console capabilities.
type Options struct {
	Color bool
	Table bool
}

// New returns the reporter for format.
func New(format string, opts Options) (Reporter, error) {
	switch strings.ToLower(format) {
	case FormatConsole, "":
		return NewConsoleReporter(SelectStyler(opts.Color), NewLayout(opts.Table)), nil
	case FormatJSON:
		return JSONReporter{}, nil
	case FormatXML:
		return XMLReporter{}, nil
	default:
		return nil, errors.NewConfigFieldError(errors.CodeValidation,
			fmt.Sprintf("unsupported output format (valid: %s, %s, %s)", FormatConsole, FormatJSON, FormatXML),
			"output.format", format)
	}
}

// FormatForPath guesses the export format from a file extension. Unknown
// extensions give "".
func FormatForPath(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON
	case ".xml":
		return FormatXML
	case ".txt", ".log":
		return FormatConsole
	default:
		return ""
	}
}

// WriteFile renders result with r and stores it at path.
func WriteFile(path string, r Reporter, result *models.ScanResult) error {
	var buf bytes.Buffer
	if err := r.Report(&buf, result); err != nil {
		return err
	}
	return writeFile(path, buf.Bytes())
}

// Load reads a JSON or XML export, chosen by file extension.
func Load(path string) (*models.ScanResult, error) {
	switch FormatForPath(path) {
	case FormatXML:
		return LoadXML(path)
	case FormatJSON:
		return LoadJSON(path)
	default:
		return nil, errors.NewScanError(errors.CodeValidation,
			fmt.Sprintf("cannot tell the format of %s: use a .json or .xml file", path))
	}
}
