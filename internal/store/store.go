// Package store persists sealed scan results in PostgreSQL so that past
// scans can be listed and re-rendered.
package store

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/anstrom/hostsweep/internal/errors"
	"github.com/anstrom/hostsweep/internal/logging"
	"github.com/anstrom/hostsweep/internal/models"
)

const (
	defaultPostgresPort    = 5432
	defaultMaxOpenConns    = 5
	defaultMaxIdleConns    = 2
	defaultConnMaxLifetime = 5 * time.Minute
	defaultListLimit       = 20
)

// ErrNotFound is returned when a scan ID is not in the store.
var ErrNotFound = stderrors.New("scan not found")

// Config holds database configuration.
type Config struct {
	Host            string        `yaml:"host" json:"host" mapstructure:"host"`
	Port            int           `yaml:"port" json:"port" mapstructure:"port" validate:"gte=0,lte=65535"`
	Database        string        `yaml:"database" json:"database" mapstructure:"database"`
	Username        string        `yaml:"username" json:"username" mapstructure:"username"`
	Password        string        `yaml:"password" json:"-" mapstructure:"password"`
	SSLMode         string        `yaml:"ssl_mode" json:"ssl_mode" mapstructure:"ssl_mode" validate:"omitempty,oneof=disable allow prefer require verify-ca verify-full"`
	MaxOpenConns    int           `yaml:"max_open_conns" json:"max_open_conns" mapstructure:"max_open_conns" validate:"gte=0"`
	MaxIdleConns    int           `yaml:"max_idle_conns" json:"max_idle_conns" mapstructure:"max_idle_conns" validate:"gte=0"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" json:"conn_max_lifetime" mapstructure:"conn_max_lifetime"`
}

// DefaultConfig returns the default database configuration.
// Database name and username must be explicitly configured.
func DefaultConfig() Config {
	return Config{
		Host:            "localhost",
		Port:            defaultPostgresPort,
		SSLMode:         "disable",
		MaxOpenConns:    defaultMaxOpenConns,
		MaxIdleConns:    defaultMaxIdleConns,
		ConnMaxLifetime: defaultConnMaxLifetime,
	}
}

// DSN builds a lib/pq key=value connection string.
func (c Config) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		c.Host, c.Port, c.Database, c.Username, c.Password, c.SSLMode,
	)
}

// Store reads and writes scan history.
type Store struct {
	db *sqlx.DB
}

// New wraps an existing connection.
func New(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// Connect opens and verifies a PostgreSQL connection, then applies pending
// migrations. Errors never include the DSN.
func Connect(ctx context.Context, cfg Config) (*Store, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", cfg.DSN())
	if err != nil {
		return nil, sanitizeDBError("connect", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if err := NewMigrator(db).Up(ctx); err != nil {
		_ = db.Close()
		return nil, errors.WrapStorageError("migrate", "failed to apply migrations", err)
	}

	logging.Info("Connected to scan history database",
		"host", cfg.Host, "port", cfg.Port, "database", cfg.Database)
	return New(db), nil
}

// Close closes the underlying connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Summary is one row of the scan history listing.
type Summary struct {
	ScanID     string    `db:"id"`
	Target     string    `db:"target"`
	StartTime  time.Time `db:"start_time"`
	Duration   float64   `db:"duration_seconds"`
	TotalHosts int       `db:"total_hosts"`
	TotalPorts int       `db:"total_ports"`
}

type scanRow struct {
	ID         string    `db:"id"`
	Target     string    `db:"target"`
	StartTime  time.Time `db:"start_time"`
	EndTime    time.Time `db:"end_time"`
	Duration   float64   `db:"duration_seconds"`
	TotalHosts int       `db:"total_hosts"`
	TotalPorts int       `db:"total_ports"`
}

type hostRow struct {
	ID       string  `db:"id"`
	IP       string  `db:"ip"`
	MAC      *string `db:"mac"`
	Hostname *string `db:"hostname"`
	Status   string  `db:"status"`
	OSGuess  *string `db:"os_guess"`
}

type portRow struct {
	HostID   string `db:"host_id"`
	Number   int    `db:"number"`
	Protocol string `db:"protocol"`
	State    string `db:"state"`
	Service  string `db:"service"`
	Version  string `db:"version"`
}

const (
	insertScanQuery = `
		INSERT INTO scans (id, target, start_time, end_time, duration_seconds, total_hosts, total_ports)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	insertHostQuery = `
		INSERT INTO hosts (id, scan_id, seq, ip, mac, hostname, status, os_guess)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	insertPortQuery = `
		INSERT INTO ports (host_id, seq, number, protocol, state, service, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	selectScanQuery = `
		SELECT id, target, start_time, end_time, duration_seconds, total_hosts, total_ports
		FROM scans
		WHERE id = $1`

	selectHostsQuery = `
		SELECT id, host(ip) AS ip, mac, hostname, status, os_guess
		FROM hosts
		WHERE scan_id = $1
		ORDER BY seq`

	selectPortsQuery = `
		SELECT p.host_id, p.number, p.protocol, p.state, p.service, p.version
		FROM ports p
		JOIN hosts h ON h.id = p.host_id
		WHERE h.scan_id = $1
		ORDER BY h.seq, p.seq`

	listScansQuery = `
		SELECT id, target, start_time, duration_seconds, total_hosts, total_ports
		FROM scans
		ORDER BY start_time DESC
		LIMIT $1`
)

// Save writes a sealed result in a single transaction.
func (s *Store) Save(ctx context.Context, result *models.ScanResult) error {
	if result == nil || !result.Sealed() {
		return errors.WrapStorageError("save scan", "only sealed results can be stored", nil)
	}
	doc := result.Document()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return sanitizeDBError("begin transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, insertScanQuery,
		doc.ScanID, doc.Target, doc.StartTime, doc.EndTime,
		doc.Duration, doc.TotalHosts, doc.TotalPorts); err != nil {
		return sanitizeDBError("insert scan", err)
	}

	for hostSeq, h := range doc.Hosts {
		hostID := uuid.New().String()
		if _, err := tx.ExecContext(ctx, insertHostQuery,
			hostID, doc.ScanID, hostSeq, h.IP, h.MAC, h.Hostname, h.Status, h.OSGuess); err != nil {
			return sanitizeDBError("insert host", err)
		}
		for portSeq, p := range h.Ports {
			if _, err := tx.ExecContext(ctx, insertPortQuery,
				hostID, portSeq, p.Number, p.Protocol, p.State, p.Service, p.Version); err != nil {
				return sanitizeDBError("insert port", err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return sanitizeDBError("commit scan", err)
	}
	return nil
}

// List returns the most recent scans, newest first. A non-positive limit
// uses the default of 20.
func (s *Store) List(ctx context.Context, limit int) ([]Summary, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	summaries := make([]Summary, 0, limit)
	if err := s.db.SelectContext(ctx, &summaries, listScansQuery, limit); err != nil {
		return nil, sanitizeDBError("list scans", err)
	}
	return summaries, nil
}

// Get rebuilds a sealed result, preserving host and port order.
func (s *Store) Get(ctx context.Context, scanID string) (*models.ScanResult, error) {
	if _, err := uuid.Parse(scanID); err != nil {
		return nil, errors.WrapStorageError("get scan", fmt.Sprintf("invalid scan ID %q", scanID), err)
	}

	var scan scanRow
	if err := s.db.GetContext(ctx, &scan, selectScanQuery, scanID); err != nil {
		return nil, sanitizeDBError("get scan", err)
	}

	var hosts []hostRow
	if err := s.db.SelectContext(ctx, &hosts, selectHostsQuery, scanID); err != nil {
		return nil, sanitizeDBError("get hosts", err)
	}

	var ports []portRow
	if err := s.db.SelectContext(ctx, &ports, selectPortsQuery, scanID); err != nil {
		return nil, sanitizeDBError("get ports", err)
	}

	doc := models.ScanResultDoc{
		ScanID:     scan.ID,
		Target:     scan.Target,
		StartTime:  scan.StartTime,
		EndTime:    scan.EndTime,
		Duration:   scan.Duration,
		Hosts:      make([]models.HostDoc, 0, len(hosts)),
		TotalHosts: scan.TotalHosts,
		TotalPorts: scan.TotalPorts,
	}

	index := make(map[string]int, len(hosts))
	for i, h := range hosts {
		index[h.ID] = i
		doc.Hosts = append(doc.Hosts, models.HostDoc{
			IP:       h.IP,
			MAC:      h.MAC,
			Hostname: h.Hostname,
			Status:   h.Status,
			Ports:    make([]models.PortDoc, 0),
			OSGuess:  h.OSGuess,
		})
	}
	for _, p := range ports {
		i, ok := index[p.HostID]
		if !ok {
			return nil, errors.WrapStorageError("get ports",
				fmt.Sprintf("port row references unknown host %s", p.HostID), nil)
		}
		doc.Hosts[i].Ports = append(doc.Hosts[i].Ports, models.PortDoc{
			Number:   p.Number,
			Protocol: p.Protocol,
			State:    p.State,
			Service:  p.Service,
			Version:  p.Version,
		})
	}

	result, err := models.FromDocument(doc)
	if err != nil {
		return nil, errors.WrapStorageError("get scan", "stored scan is inconsistent", err)
	}
	return result, nil
}

// sanitizeDBError converts raw database errors into storage errors that do
// not expose SQL or credentials. The original error is kept as the cause.
func sanitizeDBError(operation string, err error) error {
	if err == nil {
		return nil
	}
	if stderrors.Is(err, sql.ErrNoRows) {
		return errors.WrapStorageError(operation, "scan not found", ErrNotFound)
	}

	var pqErr *pq.Error
	if stderrors.As(err, &pqErr) {
		var msg string
		switch pqErr.Code {
		case "23505": // unique_violation
			msg = "scan already stored"
		case "23503", "23502", "23514": // foreign key, not null, check
			msg = "scan data rejected by schema constraints"
		case "57014": // query_canceled
			msg = "database operation was canceled"
		case "57P01", "08000", "08003", "08006":
			msg = "database connection error"
		case "28P01", "28000":
			msg = "database authentication failed"
		default:
			msg = fmt.Sprintf("database operation failed: %s", operation)
		}
		return errors.WrapStorageError(operation, msg, err)
	}

	return errors.WrapStorageError(operation, fmt.Sprintf("database operation failed: %s", operation), err)
}
