package monitor

import (
	"context"
	"database/sql"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/tidemark/tidemark/internal/errors"
	"github.com/tidemark/tidemark/pkg/types"
)

// RecordStore persists monitoring records. Written only by the monitor;
// queried by the HTTP surface and the alert tooling.
type RecordStore interface {
	// SaveObservation persists whatever an observation carries: the health
	// record when present, plus any typed detail record.
	SaveObservation(ctx context.Context, obs Observation) error

	// HealthRecords returns records in [from, to] at or above the minimum
	// severity, newest first.
	HealthRecords(ctx context.Context, from, to int64, min types.Status) ([]types.HealthRecord, error)

	// Gaps returns missing-event records observed in [from, to].
	Gaps(ctx context.Context, from, to int64) ([]types.MissingEventRecord, error)

	// Purge removes records older than their type-specific retention
	// window. Returns the number of rows removed.
	Purge(ctx context.Context, now time.Time, retention Retention) (int64, error)

	// Close closes the underlying database.
	Close() error
}

// Retention holds the per-record-type retention windows.
type Retention struct {
	HealthRecords time.Duration `yaml:"health_records" json:"health_records"`
	SchemaDrift   time.Duration `yaml:"schema_drift" json:"schema_drift"`
	SyncLag       time.Duration `yaml:"sync_lag" json:"sync_lag"`
	MissingEvents time.Duration `yaml:"missing_events" json:"missing_events"`
	Load          time.Duration `yaml:"load" json:"load"`
}

// DefaultRetention returns the default retention windows.
func DefaultRetention() Retention {
	return Retention{
		HealthRecords: 30 * 24 * time.Hour,
		SchemaDrift:   90 * 24 * time.Hour,
		SyncLag:       7 * 24 * time.Hour,
		MissingEvents: 90 * 24 * time.Hour,
		Load:          30 * 24 * time.Hour,
	}
}

// SQLiteRecordStore implements RecordStore on SQLite with a single write
// connection and a read-only pool.
type SQLiteRecordStore struct {
	db     *sql.DB // single writer
	readDB *sql.DB // concurrent readers
	mu     sync.Mutex
}

// NewSQLiteRecordStore opens (creating if needed) the monitoring database.
func NewSQLiteRecordStore(dbPath string) (*SQLiteRecordStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, errors.NewStoreError(errors.CodeStoreUnavailable, "open monitor database", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	readDB, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&mode=ro")
	if err != nil {
		db.Close()
		return nil, errors.NewStoreError(errors.CodeStoreUnavailable, "open monitor read pool", err)
	}
	readDB.SetMaxOpenConns(4)
	readDB.SetMaxIdleConns(4)
	readDB.SetConnMaxLifetime(5 * time.Minute)

	s := &SQLiteRecordStore{db: db, readDB: readDB}
	if err := s.initSchema(); err != nil {
		readDB.Close()
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteRecordStore) initSchema() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, stmt := range recordSchemaSQL() {
		if _, err := s.db.Exec(stmt); err != nil {
			return errors.NewStoreError(errors.CodeStoreUnavailable, "initialize monitor schema", err)
		}
	}
	return nil
}

// SaveObservation persists the health record and any typed detail record the
// observation carries.
func (s *SQLiteRecordStore) SaveObservation(ctx context.Context, obs Observation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if obs.Record.ID != "" {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO health_records
				(id, component, metric, value, status, threshold, detail, alert_level, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			obs.Record.ID, obs.Record.Component, obs.Record.Metric, obs.Record.Value,
			string(obs.Record.Status), obs.Record.Threshold, obs.Record.Detail,
			obs.Record.AlertLevel, obs.Record.CreatedAt)
		if err != nil {
			return errors.NewStoreError(errors.CodeWriteFailed, "insert health record", err)
		}
	}
	if obs.Drift != nil {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO schema_drift
				(observed_at, field_name, observed_type, baseline_type, change_kind, impact)
			VALUES (?, ?, ?, ?, ?, ?)`,
			obs.Drift.ObservedAt, obs.Drift.FieldName, string(obs.Drift.ObservedType),
			string(obs.Drift.BaselineType), obs.Drift.Change, obs.Drift.Impact)
		if err != nil {
			return errors.NewStoreError(errors.CodeWriteFailed, "insert drift record", err)
		}
	}
	if obs.Lag != nil {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO sync_lag (observed_at, source, lag_seconds, status)
			VALUES (?, ?, ?, ?)`,
			obs.Lag.ObservedAt, obs.Lag.Source, obs.Lag.LagSeconds, string(obs.Lag.Status))
		if err != nil {
			return errors.NewStoreError(errors.CodeWriteFailed, "insert sync-lag record", err)
		}
	}
	if obs.Gap != nil {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO missing_events
				(observed_at, gap_start, gap_end, gap_seconds, estimated_missing)
			VALUES (?, ?, ?, ?, ?)`,
			obs.Gap.ObservedAt, obs.Gap.GapStart, obs.Gap.GapEnd,
			obs.Gap.GapSeconds, obs.Gap.EstimatedMissing)
		if err != nil {
			return errors.NewStoreError(errors.CodeWriteFailed, "insert gap record", err)
		}
	}
	if obs.Load != nil {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO load_performance
				(observed_at, bucket_start, processed, rejected, throughput, error_rate, status)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			obs.Load.ObservedAt, obs.Load.BucketStart, obs.Load.Processed,
			obs.Load.Rejected, obs.Load.Throughput, obs.Load.ErrorRate, string(obs.Load.Status))
		if err != nil {
			return errors.NewStoreError(errors.CodeWriteFailed, "insert load record", err)
		}
	}
	return nil
}

// HealthRecords returns records in [from, to] at or above the minimum
// severity, newest first.
func (s *SQLiteRecordStore) HealthRecords(ctx context.Context, from, to int64, min types.Status) ([]types.HealthRecord, error) {
	rows, err := s.readDB.QueryContext(ctx, `
		SELECT id, component, metric, value, status, threshold, detail, alert_level, created_at
		FROM health_records
		WHERE created_at >= ? AND created_at <= ? AND alert_level >= ?
		ORDER BY created_at DESC`,
		from, to, min.AlertLevel())
	if err != nil {
		return nil, errors.NewStoreError(errors.CodeScanFailed, "query health records", err)
	}
	defer rows.Close()

	var out []types.HealthRecord
	for rows.Next() {
		var rec types.HealthRecord
		var status string
		if err := rows.Scan(&rec.ID, &rec.Component, &rec.Metric, &rec.Value, &status,
			&rec.Threshold, &rec.Detail, &rec.AlertLevel, &rec.CreatedAt); err != nil {
			return nil, errors.NewStoreError(errors.CodeScanFailed, "scan health record", err)
		}
		rec.Status = types.Status(status)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Gaps returns missing-event records observed in [from, to].
func (s *SQLiteRecordStore) Gaps(ctx context.Context, from, to int64) ([]types.MissingEventRecord, error) {
	rows, err := s.readDB.QueryContext(ctx, `
		SELECT observed_at, gap_start, gap_end, gap_seconds, estimated_missing
		FROM missing_events
		WHERE observed_at >= ? AND observed_at <= ?
		ORDER BY observed_at DESC`,
		from, to)
	if err != nil {
		return nil, errors.NewStoreError(errors.CodeScanFailed, "query gap records", err)
	}
	defer rows.Close()

	var out []types.MissingEventRecord
	for rows.Next() {
		var rec types.MissingEventRecord
		if err := rows.Scan(&rec.ObservedAt, &rec.GapStart, &rec.GapEnd,
			&rec.GapSeconds, &rec.EstimatedMissing); err != nil {
			return nil, errors.NewStoreError(errors.CodeScanFailed, "scan gap record", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Purge removes records older than their type-specific retention window.
func (s *SQLiteRecordStore) Purge(ctx context.Context, now time.Time, retention Retention) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	purges := []struct {
		table  string
		column string
		window time.Duration
	}{
		{"health_records", "created_at", retention.HealthRecords},
		{"schema_drift", "observed_at", retention.SchemaDrift},
		{"sync_lag", "observed_at", retention.SyncLag},
		{"missing_events", "observed_at", retention.MissingEvents},
		{"load_performance", "observed_at", retention.Load},
	}

	var total int64
	for _, p := range purges {
		if p.window <= 0 {
			continue
		}
		cutoff := now.Add(-p.window).Unix()
		res, err := s.db.ExecContext(ctx,
			"DELETE FROM "+p.table+" WHERE "+p.column+" < ?", cutoff)
		if err != nil {
			return total, errors.NewStoreError(errors.CodeWriteFailed, "purge "+p.table, err)
		}
		if n, err := res.RowsAffected(); err == nil {
			total += n
		}
	}
	return total, nil
}

// Close closes both database handles.
func (s *SQLiteRecordStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rerr := s.readDB.Close()
	werr := s.db.Close()
	if werr != nil {
		return werr
	}
	return rerr
}
