package cli

import (
	"bytes"
	"context"
	"io"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/anstrom/hostsweep/internal/config"
	"github.com/anstrom/hostsweep/internal/logging"
	"github.com/anstrom/hostsweep/internal/models"
	"github.com/anstrom/hostsweep/internal/scanning"
	"github.com/anstrom/hostsweep/internal/store"
)

// testConfig returns defaults with plain console output and no timeout.
func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Output.Color = false
	cfg.Output.Table = false
	cfg.Scanning.Timeout = 0
	return cfg
}

func quietLogs(t *testing.T) {
	t.Helper()
	prev := logging.Default()
	logging.SetDefault(logging.NewWithWriter(logging.DefaultConfig(), io.Discard))
	t.Cleanup(func() { logging.SetDefault(prev) })
}

func useEngine(t *testing.T, engine scanning.Engine) {
	t.Helper()
	quietLogs(t)
	prev := newEngine
	newEngine = func(string) scanning.Engine { return engine }
	t.Cleanup(func() { newEngine = prev })
}

func useStore(t *testing.T, st historyStore, err error) {
	t.Helper()
	prev := openStore
	openStore = func(context.Context, store.Config) (historyStore, error) {
		if err != nil {
			return nil, err
		}
		return st, nil
	}
	t.Cleanup(func() { openStore = prev })
}

func sshReport() *scanning.Report {
	return &scanning.Report{
		Hosts: []scanning.EngineHost{{
			IP:       "192.168.1.10",
			Hostname: "web01",
			State:    "up",
			Ports: []scanning.EnginePort{
				{Number: 22, Protocol: "tcp", State: "open", Service: "ssh"},
				{Number: 80, Protocol: "tcp", State: "filtered", Service: "http"},
			},
		}},
	}
}

func sealedResult(t *testing.T) *models.ScanResult {
	t.Helper()
	result := models.NewScanResult("10.0.0.1")
	host, err := models.NewHost(models.HostInfo{IP: "10.0.0.1", Status: models.StatusUp})
	require.NoError(t, err)
	port, err := models.NewPort(443, models.ProtocolTCP, models.PortOpen, "https", "")
	require.NoError(t, err)
	require.NoError(t, host.AddPort(port))
	require.NoError(t, result.AddHost(host))
	require.NoError(t, result.Seal())
	return result
}

type fakeStore struct {
	mu      sync.Mutex
	saved   []*models.ScanResult
	saveErr error
	closed  bool
}

func (f *fakeStore) Save(_ context.Context, result *models.ScanResult) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return f.saveErr
	}
	f.saved = append(f.saved, result)
	return nil
}

func (f *fakeStore) List(_ context.Context, limit int) ([]store.Summary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []store.Summary
	for i := len(f.saved) - 1; i >= 0 && len(out) < limit; i-- {
		r := f.saved[i]
		out = append(out, store.Summary{
			ScanID:     r.ScanID(),
			Target:     r.Target(),
			StartTime:  r.StartTime(),
			Duration:   r.Duration(),
			TotalHosts: r.TotalHosts(),
			TotalPorts: r.TotalPorts(),
		})
	}
	return out, nil
}

func (f *fakeStore) Get(_ context.Context, scanID string) (*models.ScanResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.saved {
		if r.ScanID() == scanID {
			return r, nil
		}
	}
	return nil, store.ErrNotFound
}

func (f *fakeStore) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeStore) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.saved)
}

// syncBuffer is a bytes.Buffer safe for a writer goroutine and a reader.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
