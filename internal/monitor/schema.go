package monitor

// recordSchemaSQL returns the DDL for the monitoring record tables. Each
// table holds one record type, written once per evaluator run and purged by
// the retention job.
func recordSchemaSQL() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS health_records (
			id          TEXT PRIMARY KEY,
			component   TEXT NOT NULL,
			metric      TEXT NOT NULL,
			value       REAL NOT NULL,
			status      TEXT NOT NULL,
			threshold   REAL NOT NULL,
			detail      TEXT NOT NULL DEFAULT '',
			alert_level INTEGER NOT NULL,
			created_at  INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_health_created
			ON health_records(created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_health_component_metric
			ON health_records(component, metric, created_at)`,

		`CREATE TABLE IF NOT EXISTS schema_drift (
			observed_at   INTEGER NOT NULL,
			field_name    TEXT NOT NULL,
			observed_type TEXT NOT NULL,
			baseline_type TEXT NOT NULL DEFAULT '',
			change_kind   TEXT NOT NULL,
			impact        TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_drift_observed
			ON schema_drift(observed_at)`,

		`CREATE TABLE IF NOT EXISTS sync_lag (
			observed_at INTEGER NOT NULL,
			source      TEXT NOT NULL,
			lag_seconds INTEGER NOT NULL,
			status      TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_synclag_observed
			ON sync_lag(observed_at)`,

		`CREATE TABLE IF NOT EXISTS missing_events (
			observed_at       INTEGER NOT NULL,
			gap_start         INTEGER NOT NULL,
			gap_end           INTEGER NOT NULL,
			gap_seconds       INTEGER NOT NULL,
			estimated_missing INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_gaps_observed
			ON missing_events(observed_at)`,

		`CREATE TABLE IF NOT EXISTS load_performance (
			observed_at  INTEGER NOT NULL,
			bucket_start INTEGER NOT NULL,
			processed    INTEGER NOT NULL,
			rejected     INTEGER NOT NULL,
			throughput   REAL NOT NULL,
			error_rate   REAL NOT NULL,
			status       TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_load_observed
			ON load_performance(observed_at)`,
	}
}
