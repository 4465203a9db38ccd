package models

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/anstrom/hostsweep/internal/errors"
	"github.com/anstrom/hostsweep/internal/metrics"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingSink records the port counter so tests can assert on it.
type countingSink struct {
	metrics.Discard
	ports atomic.Int64
}

func (s *countingSink) IncrementPortsFound() { s.ports.Add(1) }

func installSink(t *testing.T) *countingSink {
	t.Helper()
	sink := &countingSink{}
	metrics.SetDefault(sink)
	t.Cleanup(func() { metrics.SetDefault(nil) })
	return sink
}

func mustPort(t *testing.T, number int, proto Protocol, state PortState, service, version string) Port {
	t.Helper()
	p, err := NewPort(number, proto, state, service, version)
	require.NoError(t, err)
	return p
}

func mustHost(t *testing.T, info HostInfo) *Host {
	t.Helper()
	h, err := NewHost(info)
	require.NoError(t, err)
	return h
}

func TestNewPort(t *testing.T) {
	tests := []struct {
		name     string
		number   int
		protocol Protocol
		state    PortState
		service  string
		wantErr  bool
	}{
		{"lowest valid", 1, ProtocolTCP, PortOpen, "tcpmux", false},
		{"highest valid", 65535, ProtocolUDP, PortFiltered, "", false},
		{"zero", 0, ProtocolTCP, PortOpen, "", true},
		{"above range", 65536, ProtocolTCP, PortOpen, "", true},
		{"negative", -1, ProtocolTCP, PortOpen, "", true},
		{"bad protocol", 80, Protocol("sctp"), PortOpen, "http", true},
		{"bad state", 80, ProtocolTCP, PortState("open|filtered"), "http", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := NewPort(tt.number, tt.protocol, tt.state, tt.service, "")
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.IsCode(err, errors.CodeValidation))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.number, p.Number())
		})
	}
}

func TestNewPort_DefaultsServiceToUnknown(t *testing.T) {
	p := mustPort(t, 8080, ProtocolTCP, PortOpen, "  ", "")
	assert.Equal(t, "unknown", p.Service())
	assert.Equal(t, "", p.Version())
	assert.Equal(t, "8080/tcp", p.String())
}

func TestNewHost(t *testing.T) {
	h := mustHost(t, HostInfo{IP: "192.168.1.10"})
	assert.Equal(t, "192.168.1.10", h.IP())
	assert.Equal(t, StatusUp, h.Status(), "status defaults to up")
	assert.Empty(t, h.Ports())
	assert.Empty(t, h.MAC())
	assert.Empty(t, h.Hostname())
	assert.Empty(t, h.OSGuess())

	v6 := mustHost(t, HostInfo{IP: "2001:DB8::1", Status: StatusDown})
	assert.Equal(t, "2001:db8::1", v6.IP(), "addresses are canonicalized")
	assert.Equal(t, StatusDown, v6.Status())

	_, err := NewHost(HostInfo{IP: "999.1.1.1"})
	assert.Error(t, err)

	_, err = NewHost(HostInfo{IP: ""})
	assert.Error(t, err)

	_, err = NewHost(HostInfo{IP: "10.0.0.1", Status: HostStatus("sleeping")})
	assert.Error(t, err)
}

func TestHost_AddPortCountsEachCall(t *testing.T) {
	for _, n := range []int{0, 1, 5} {
		sink := installSink(t)
		h := mustHost(t, HostInfo{IP: "10.0.0.1"})

		for i := 1; i <= n; i++ {
			require.NoError(t, h.AddPort(mustPort(t, i, ProtocolTCP, PortOpen, "", "")))
		}

		assert.Len(t, h.Ports(), n)
		assert.Equal(t, int64(n), sink.ports.Load())
	}
}

func TestHost_AddPortPreservesOrder(t *testing.T) {
	installSink(t)
	h := mustHost(t, HostInfo{IP: "10.0.0.1"})
	for _, n := range []int{443, 22, 80} {
		require.NoError(t, h.AddPort(mustPort(t, n, ProtocolTCP, PortOpen, "", "")))
	}

	var got []int
	for _, p := range h.Ports() {
		got = append(got, p.Number())
	}
	assert.Equal(t, []int{443, 22, 80}, got)
}

func TestHost_AddPortRejectsZeroValue(t *testing.T) {
	sink := installSink(t)
	h := mustHost(t, HostInfo{IP: "10.0.0.1"})

	assert.Error(t, h.AddPort(Port{}))
	assert.Zero(t, sink.ports.Load())
}

func TestHost_PortsReturnsCopy(t *testing.T) {
	installSink(t)
	h := mustHost(t, HostInfo{IP: "10.0.0.1"})
	require.NoError(t, h.AddPort(mustPort(t, 22, ProtocolTCP, PortOpen, "ssh", "")))

	ports := h.Ports()
	ports[0] = mustPort(t, 23, ProtocolTCP, PortOpen, "telnet", "")

	assert.Equal(t, 22, h.Ports()[0].Number())
}

func TestHost_Equal(t *testing.T) {
	a := mustHost(t, HostInfo{IP: "10.0.0.1", Hostname: "a"})
	b := mustHost(t, HostInfo{IP: "10.0.0.1", Hostname: "b"})
	c := mustHost(t, HostInfo{IP: "10.0.0.2"})

	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(c))
	assert.False(t, a.Equal(nil))
}

func TestScanResult_NewIsEmpty(t *testing.T) {
	r := NewScanResult("192.168.1.0/24")

	_, err := uuid.Parse(r.ScanID())
	require.NoError(t, err)
	assert.Equal(t, "192.168.1.0/24", r.Target())
	assert.Equal(t, time.UTC, r.StartTime().Location())
	assert.False(t, r.Sealed())
	assert.Empty(t, r.Hosts())
	assert.True(t, r.EndTime().IsZero())
}

func TestScanResult_SealComputesTotals(t *testing.T) {
	installSink(t)
	r := NewScanResult("10.0.0.0/30")

	h1 := mustHost(t, HostInfo{IP: "10.0.0.1"})
	require.NoError(t, h1.AddPort(mustPort(t, 22, ProtocolTCP, PortOpen, "ssh", "")))
	require.NoError(t, h1.AddPort(mustPort(t, 53, ProtocolUDP, PortOpen, "domain", "")))
	h2 := mustHost(t, HostInfo{IP: "10.0.0.2"})
	require.NoError(t, h2.AddPort(mustPort(t, 80, ProtocolTCP, PortClosed, "http", "")))
	h3 := mustHost(t, HostInfo{IP: "10.0.0.3", Status: StatusDown})

	for _, h := range []*Host{h1, h2, h3} {
		require.NoError(t, r.AddHost(h))
	}
	require.NoError(t, r.Seal())

	assert.True(t, r.Sealed())
	assert.Equal(t, 3, r.TotalHosts())
	assert.Equal(t, len(r.Hosts()), r.TotalHosts())
	assert.Equal(t, 3, r.TotalPorts())
	assert.False(t, r.EndTime().Before(r.StartTime()))
	assert.GreaterOrEqual(t, r.Duration(), 0.0)
	assert.InDelta(t, r.EndTime().Sub(r.StartTime()).Seconds(), r.Duration(), 1e-9)

	counts := r.PortStateCounts()
	assert.Equal(t, 2, counts[PortOpen])
	assert.Equal(t, 1, counts[PortClosed])
	assert.Equal(t, 0, counts[PortFiltered])
	assert.Equal(t, 0, counts[PortUnknown])
}

func TestScanResult_TimesKeepMicroseconds(t *testing.T) {
	r := NewScanResult("10.0.0.1")
	require.NoError(t, r.Seal())

	for _, ts := range []time.Time{r.StartTime(), r.EndTime()} {
		assert.Zero(t, ts.Nanosecond()%int(time.Microsecond), "%s has sub-microsecond digits", ts)
	}

	// A database round trip keeps microseconds only.
	doc := r.Document()
	doc.StartTime = doc.StartTime.Truncate(time.Microsecond)
	doc.EndTime = doc.EndTime.Truncate(time.Microsecond)
	reloaded, err := FromDocument(doc)
	require.NoError(t, err)
	assert.Equal(t, r.Document(), reloaded.Document())
	assert.Equal(t, r.EndTime().Sub(r.StartTime()).Seconds(), reloaded.Duration())
}

func TestScanResult_SealedIsImmutable(t *testing.T) {
	sink := installSink(t)
	r := NewScanResult("10.0.0.1")
	h := mustHost(t, HostInfo{IP: "10.0.0.1"})
	require.NoError(t, r.AddHost(h))
	require.NoError(t, r.Seal())

	assert.ErrorIs(t, r.Seal(), ErrSealed)
	assert.ErrorIs(t, r.AddHost(mustHost(t, HostInfo{IP: "10.0.0.2"})), ErrSealed)
	assert.ErrorIs(t, h.AddPort(mustPort(t, 22, ProtocolTCP, PortOpen, "", "")), ErrSealed)
	assert.Zero(t, sink.ports.Load())
	assert.Equal(t, 1, r.TotalHosts())
}

func TestScanResult_EmptySeal(t *testing.T) {
	r := NewScanResult("10.0.0.99")
	require.NoError(t, r.Seal())

	assert.Equal(t, 0, r.TotalHosts())
	assert.Equal(t, 0, r.TotalPorts())
	assert.NotNil(t, r.Hosts())
}

func TestScanResult_AddHostRejectsNil(t *testing.T) {
	r := NewScanResult("10.0.0.1")
	assert.Error(t, r.AddHost(nil))
}

func TestScanResult_HostByIP(t *testing.T) {
	r := NewScanResult("2001:db8::/120")
	require.NoError(t, r.AddHost(mustHost(t, HostInfo{IP: "2001:db8::1"})))

	h, ok := r.HostByIP("2001:DB8:0::1")
	require.True(t, ok)
	assert.Equal(t, "2001:db8::1", h.IP())

	_, ok = r.HostByIP("2001:db8::2")
	assert.False(t, ok)
}

func TestScanResult_Equal(t *testing.T) {
	a := NewScanResult("10.0.0.1")
	b := NewScanResult("10.0.0.1")

	assert.True(t, a.Equal(a))
	assert.False(t, a.Equal(b), "results with different scan IDs differ even for the same target")
}
