package store

import (
	"context"
	"database/sql/driver"
	stderrors "errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anstrom/hostsweep/internal/errors"
	"github.com/anstrom/hostsweep/internal/metrics"
	"github.com/anstrom/hostsweep/internal/models"
)

const testScanID = "7c9e6679-7425-40de-944b-e07fc1f90ae7"

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return New(sqlx.NewDb(db, "postgres")), mock
}

func sealedResult(t *testing.T) *models.ScanResult {
	t.Helper()
	metrics.SetDefault(metrics.Discard{})
	t.Cleanup(func() { metrics.SetDefault(nil) })

	r := models.NewScanResult("192.168.1.10")
	h, err := models.NewHost(models.HostInfo{IP: "192.168.1.10", Hostname: "web01"})
	require.NoError(t, err)
	for _, spec := range []struct {
		n     int
		state models.PortState
		svc   string
	}{{22, models.PortOpen, "ssh"}, {80, models.PortClosed, "http"}} {
		p, err := models.NewPort(spec.n, models.ProtocolTCP, spec.state, spec.svc, "")
		require.NoError(t, err)
		require.NoError(t, h.AddPort(p))
	}
	require.NoError(t, r.AddHost(h))
	require.NoError(t, r.Seal())
	return r
}

func TestConfig_DSN(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Database = "hostsweep"
	cfg.Username = "scanner"
	cfg.Password = "secret"

	assert.Equal(t, "host=localhost port=5432 dbname=hostsweep user=scanner password=secret sslmode=disable", cfg.DSN())
}

func TestSave_WritesScanHostsAndPortsInOneTransaction(t *testing.T) {
	s, mock := newMockStore(t)
	result := sealedResult(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO scans").
		WithArgs(result.ScanID(), "192.168.1.10", sqlmock.AnyArg(), sqlmock.AnyArg(),
			sqlmock.AnyArg(), 1, 2).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO hosts").
		WithArgs(sqlmock.AnyArg(), result.ScanID(), 0, "192.168.1.10", nil, "web01", "up", nil).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO ports").
		WithArgs(sqlmock.AnyArg(), 0, 22, "tcp", "open", "ssh", "").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO ports").
		WithArgs(sqlmock.AnyArg(), 1, 80, "tcp", "closed", "http", "").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, s.Save(context.Background(), result))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSave_RollsBackOnFailure(t *testing.T) {
	s, mock := newMockStore(t)
	result := sealedResult(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO scans").
		WillReturnError(&pq.Error{Code: "23505", Message: "duplicate key value violates unique constraint"})
	mock.ExpectRollback()

	err := s.Save(context.Background(), result)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeStorage))
	assert.Contains(t, err.Error(), "scan already stored")
	assert.NotContains(t, err.Error(), "duplicate key", "raw database messages stay in the cause")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSave_RejectsUnsealed(t *testing.T) {
	s, mock := newMockStore(t)

	err := s.Save(context.Background(), models.NewScanResult("10.0.0.1"))
	assert.True(t, errors.IsCode(err, errors.CodeStorage))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestList(t *testing.T) {
	s, mock := newMockStore(t)
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	rows := sqlmock.NewRows([]string{"id", "target", "start_time", "duration_seconds", "total_hosts", "total_ports"}).
		AddRow(testScanID, "192.168.1.0/24", start, 12.5, 4, 9).
		AddRow("0f8fad5b-d9cb-469f-a165-70867728950e", "10.0.0.1", start.Add(-time.Hour), 1.0, 1, 0)
	mock.ExpectQuery("SELECT (.+) FROM scans").WithArgs(defaultListLimit).WillReturnRows(rows)

	summaries, err := s.List(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, summaries, 2)
	assert.Equal(t, testScanID, summaries[0].ScanID)
	assert.Equal(t, 12.5, summaries[0].Duration)
	assert.Equal(t, 4, summaries[0].TotalHosts)
	assert.Equal(t, "10.0.0.1", summaries[1].Target)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGet_RebuildsSealedResultInOrder(t *testing.T) {
	s, mock := newMockStore(t)
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	end := start.Add(2 * time.Second)
	hostA := "11111111-1111-4111-8111-111111111111"
	hostB := "22222222-2222-4222-8222-222222222222"

	mock.ExpectQuery("SELECT (.+) FROM scans").WithArgs(testScanID).WillReturnRows(
		sqlmock.NewRows([]string{"id", "target", "start_time", "end_time", "duration_seconds", "total_hosts", "total_ports"}).
			AddRow(testScanID, "192.168.1.0/30", start, end, 2.0, 2, 3))
	mock.ExpectQuery("SELECT (.+) FROM hosts").WithArgs(testScanID).WillReturnRows(
		sqlmock.NewRows([]string{"id", "ip", "mac", "hostname", "status", "os_guess"}).
			AddRow(hostA, "192.168.1.2", nil, "b-host", "up", "Linux 5.X").
			AddRow(hostB, "192.168.1.1", "00:11:22:33:44:55", nil, "up", nil))
	mock.ExpectQuery("SELECT (.+) FROM ports p").WithArgs(testScanID).WillReturnRows(
		sqlmock.NewRows([]string{"host_id", "number", "protocol", "state", "service", "version"}).
			AddRow(hostA, 443, "tcp", "open", "https", "nginx 1.25").
			AddRow(hostA, 22, "tcp", "filtered", "ssh", "").
			AddRow(hostB, 53, "udp", "open", "domain", ""))

	result, err := s.Get(context.Background(), testScanID)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())

	assert.True(t, result.Sealed())
	assert.Equal(t, 2, result.TotalHosts())
	assert.Equal(t, 3, result.TotalPorts())

	hosts := result.Hosts()
	require.Len(t, hosts, 2)
	assert.Equal(t, "192.168.1.2", hosts[0].IP(), "host order follows stored sequence, not address")
	assert.Equal(t, "b-host", hosts[0].Hostname())
	assert.Equal(t, "Linux 5.X", hosts[0].OSGuess())
	assert.Equal(t, "00:11:22:33:44:55", hosts[1].MAC())

	ports := hosts[0].Ports()
	require.Len(t, ports, 2)
	assert.Equal(t, 443, ports[0].Number())
	assert.Equal(t, "nginx 1.25", ports[0].Version())
	assert.Equal(t, 22, ports[1].Number())
	assert.Equal(t, models.ProtocolUDP, hosts[1].Ports()[0].Protocol())
}

func TestGet_NotFound(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery("SELECT (.+) FROM scans").WithArgs(testScanID).WillReturnRows(
		sqlmock.NewRows([]string{"id", "target", "start_time", "end_time", "duration_seconds", "total_hosts", "total_ports"}))

	_, err := s.Get(context.Background(), testScanID)
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGet_InvalidID(t *testing.T) {
	s, mock := newMockStore(t)

	_, err := s.Get(context.Background(), "not-a-uuid")
	assert.True(t, errors.IsCode(err, errors.CodeStorage))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGet_InconsistentTotals(t *testing.T) {
	s, mock := newMockStore(t)
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery("SELECT (.+) FROM scans").WithArgs(testScanID).WillReturnRows(
		sqlmock.NewRows([]string{"id", "target", "start_time", "end_time", "duration_seconds", "total_hosts", "total_ports"}).
			AddRow(testScanID, "10.0.0.1", start, start, 0.0, 1, 0))
	mock.ExpectQuery("SELECT (.+) FROM hosts").WithArgs(testScanID).WillReturnRows(
		sqlmock.NewRows([]string{"id", "ip", "mac", "hostname", "status", "os_guess"}))
	mock.ExpectQuery("SELECT (.+) FROM ports p").WithArgs(testScanID).WillReturnRows(
		sqlmock.NewRows([]string{"host_id", "number", "protocol", "state", "service", "version"}))

	_, err := s.Get(context.Background(), testScanID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "inconsistent")
}

func TestSanitizeDBError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"unique", &pq.Error{Code: "23505"}, "scan already stored"},
		{"check", &pq.Error{Code: "23514"}, "schema constraints"},
		{"canceled", &pq.Error{Code: "57014"}, "canceled"},
		{"connection", &pq.Error{Code: "08006"}, "connection error"},
		{"auth", &pq.Error{Code: "28P01"}, "authentication failed"},
		{"other pq", &pq.Error{Code: "42P01"}, "database operation failed: op"},
		{"driver", driver.ErrBadConn, "database operation failed: op"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := sanitizeDBError("op", tt.err)
			if tt.err == nil {
				assert.NoError(t, got)
				return
			}
			require.Error(t, got)
			assert.Contains(t, got.Error(), tt.want)
			assert.True(t, stderrors.Is(got, tt.err))
		})
	}
}
