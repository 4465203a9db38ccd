package reporting

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anstrom/hostsweep/internal/errors"
)

func TestMarshalXML(t *testing.T) {
	data, err := MarshalXML(fixtureResult(t))
	require.NoError(t, err)
	text := string(data)

	assert.True(t, strings.HasPrefix(text, `<?xml version="1.0" encoding="UTF-8"?>`))
	assert.Contains(t, text, `scan_id="`+fixtureScanID+`"`)
	assert.Contains(t, text, `total_ports="3"`)
	assert.Contains(t, text, `<port number="22" protocol="tcp">`)
	assert.Contains(t, text, `<hostname>web01</hostname>`)
	assert.Less(t, strings.Index(text, "192.168.1.10"), strings.Index(text, "192.168.1.2<"))

	for _, elem := range []string{"<mac>", "<hostname>", "<os_guess>"} {
		assert.Equal(t, 1, strings.Count(text, elem), "%s is omitted for the host without it", elem)
	}
}

func TestXML_RoundTrip(t *testing.T) {
	original := fixtureResult(t)

	var buf bytes.Buffer
	require.NoError(t, XMLReporter{}.Report(&buf, original))

	decoded, err := ReadXML(&buf)
	require.NoError(t, err)
	assert.Equal(t, original.Document(), decoded.Document())
}

func TestSaveAndLoadXML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scan.xml")
	original := emptyResult(t)

	require.NoError(t, SaveXML(path, original))

	loaded, err := LoadXML(path)
	require.NoError(t, err)
	assert.Equal(t, original.Document(), loaded.Document())
}

func TestReadXML_Rejects(t *testing.T) {
	tests := map[string]string{
		"malformed":  `<scanresult`,
		"bad time":   `<scanresult scan_id="3f2504e0-4f89-41d3-9a0c-0305e82c3301" start_time="yesterday" end_time="2026-03-14T09:26:53Z"></scanresult>`,
		"bad totals": `<scanresult scan_id="3f2504e0-4f89-41d3-9a0c-0305e82c3301" start_time="2026-03-14T09:26:53Z" end_time="2026-03-14T09:26:53Z" total_hosts="1"></scanresult>`,
	}

	for name, data := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ReadXML(strings.NewReader(data))
			require.Error(t, err)
			assert.True(t, errors.IsCode(err, errors.CodeValidation))
		})
	}
}
