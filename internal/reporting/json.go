package reporting

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/anstrom/hostsweep/internal/errors"
	"github.com/anstrom/hostsweep/internal/models"
)

// JSONReporter writes the full result document as indented JSON.
type JSONReporter struct{}

// Report writes result to w.
func (JSONReporter) Report(w io.Writer, result *models.ScanResult) error {
	return WriteJSON(w, result)
}

// MarshalJSON encodes a sealed result with two-space indentation and a
// trailing newline.
func MarshalJSON(result *models.ScanResult) ([]byte, error) {
	if err := requireSealed(result); err != nil {
		return nil, err
	}
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return nil, errors.WrapScanError(errors.CodeOutput, "failed to encode scan result as JSON", err)
	}
	return append(data, '\n'), nil
}

// WriteJSON writes the JSON document for result to w.
func WriteJSON(w io.Writer, result *models.ScanResult) error {
	data, err := MarshalJSON(result)
	if err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		return errors.WrapScanError(errors.CodeOutput, "failed to write JSON report", err)
	}
	return nil
}

// SaveJSON writes the JSON document for result to path.
func SaveJSON(path string, result *models.ScanResult) error {
	data, err := MarshalJSON(result)
	if err != nil {
		return err
	}
	return writeFile(path, data)
}

// ReadJSON parses a JSON export back into a sealed result.
func ReadJSON(r io.Reader) (*models.ScanResult, error) {
	var result models.ScanResult
	dec := json.NewDecoder(r)
	if err := dec.Decode(&result); err != nil {
		return nil, errors.WrapScanError(errors.CodeValidation, "failed to parse JSON scan result", err)
	}
	return &result, nil
}

// LoadJSON reads a JSON export from path.
func LoadJSON(path string) (*models.ScanResult, error) {
	f, err := openFile(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	return ReadJSON(f)
}

func openFile(path string) (*os.File, error) {
	if err := validateFilePath(path); err != nil {
		return nil, errors.WrapScanError(errors.CodeValidation, "invalid report path", err)
	}
	f, err := os.Open(path) //nolint:gosec // path is validated by validateFilePath
	if err != nil {
		return nil, errors.WrapScanError(errors.CodeOutput, fmt.Sprintf("failed to open %s", path), err)
	}
	return f, nil
}
