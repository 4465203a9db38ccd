package reporting

import (
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/anstrom/hostsweep/internal/models"
)

const fixtureScanID = "3f2504e0-4f89-41d3-9a0c-0305e82c3301"

var ansiEscape = regexp.MustCompile(`\x1b\[[0-9;]*m`)

func strPtr(s string) *string { return &s }

// fixtureResult has hosts deliberately out of address order.
func fixtureResult(t *testing.T) *models.ScanResult {
	t.Helper()
	start := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	end := start.Add(2500 * time.Millisecond)

	result, err := models.FromDocument(models.ScanResultDoc{
		ScanID:    fixtureScanID,
		Target:    "192.168.1.0/24",
		StartTime: start,
		EndTime:   end,
		Duration:  2.5,
		Hosts: []models.HostDoc{
			{
				IP:       "192.168.1.10",
				Hostname: strPtr("web01"),
				MAC:      strPtr("00:11:22:33:44:55"),
				Status:   "up",
				OSGuess:  strPtr("Linux 5.0 - 5.14"),
				Ports: []models.PortDoc{
					{Number: 22, Protocol: "tcp", State: "open", Service: "ssh", Version: "OpenSSH 9.6p1"},
					{Number: 80, Protocol: "tcp", State: "closed", Service: "http"},
					{Number: 53, Protocol: "udp", State: "filtered", Service: "domain"},
				},
			},
			{
				IP:     "192.168.1.2",
				Status: "up",
				Ports:  []models.PortDoc{},
			},
		},
		TotalHosts: 2,
		TotalPorts: 3,
	})
	require.NoError(t, err)
	return result
}

func emptyResult(t *testing.T) *models.ScanResult {
	t.Helper()
	start := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	result, err := models.FromDocument(models.ScanResultDoc{
		ScanID:    "9b2c7c4a-1d7e-4b8e-8f4f-6f1f0c2b9a10",
		Target:    "10.0.0.99",
		StartTime: start,
		EndTime:   start,
		Hosts:     []models.HostDoc{},
	})
	require.NoError(t, err)
	return result
}
