package types

// Status grades a health observation. The values are ordered:
// healthy < warning < critical.
type Status string

const (
	StatusHealthy  Status = "healthy"
	StatusWarning  Status = "warning"
	StatusCritical Status = "critical"
)

// AlertLevel returns the numeric alert level for the status:
// 0 healthy, 1 warning, 2 critical.
func (s Status) AlertLevel() int {
	switch s {
	case StatusWarning:
		return 1
	case StatusCritical:
		return 2
	default:
		return 0
	}
}

// AtLeast reports whether s is at least as severe as other.
func (s Status) AtLeast(other Status) bool {
	return s.AlertLevel() >= other.AlertLevel()
}

// HealthRecord is one graded observation produced by an evaluator run.
// Records are retained for a bounded window and then purged.
type HealthRecord struct {
	// ID uniquely identifies the record
	ID string `json:"id"`

	// Component is the pipeline component observed (e.g., "event_store")
	Component string `json:"component"`

	// Metric is the metric name (e.g., "freshness_seconds")
	Metric string `json:"metric"`

	// Value is the observed value
	Value float64 `json:"value"`

	// Status is the graded classification
	Status Status `json:"status"`

	// Threshold is the threshold the value was graded against
	Threshold float64 `json:"threshold"`

	// Detail is free-text context for operators
	Detail string `json:"detail"`

	// AlertLevel is the numeric level: 0 healthy, 1 warning, 2 critical
	AlertLevel int `json:"alert_level"`

	// CreatedAt is when the evaluator run produced the record (Unix seconds)
	CreatedAt int64 `json:"created_at"`
}

// SchemaDriftRecord is one observed divergence between the incoming event
// field set and the known baseline. Written once per evaluator run, never
// mutated.
type SchemaDriftRecord struct {
	ObservedAt   int64     `json:"observed_at"`
	FieldName    string    `json:"field_name"`
	ObservedType FieldType `json:"observed_type"`
	BaselineType FieldType `json:"baseline_type,omitempty"`

	// Change is "new_field" or "type_changed"
	Change string `json:"change"`

	// Impact is "critical" when the field is part of the identity or
	// grouping-key set, otherwise "low"
	Impact string `json:"impact"`
}

// SyncLagRecord is one observed replication delay for an upstream source.
type SyncLagRecord struct {
	ObservedAt int64  `json:"observed_at"`
	Source     string `json:"source"`
	LagSeconds int64  `json:"lag_seconds"`
	Status     Status `json:"status"`
}

// MissingEventRecord is one detected inter-event gap exceeding the
// configured threshold.
type MissingEventRecord struct {
	ObservedAt int64 `json:"observed_at"`

	// GapStart and GapEnd bound the gap (Unix seconds, event timestamps)
	GapStart int64 `json:"gap_start"`
	GapEnd   int64 `json:"gap_end"`

	GapSeconds int64 `json:"gap_seconds"`

	// EstimatedMissing is the gap duration divided by the expected mean
	// inter-arrival time
	EstimatedMissing int64 `json:"estimated_missing"`
}

// LoadPerformanceRecord is one throughput/error observation for a time
// bucket of the ingestion path.
type LoadPerformanceRecord struct {
	ObservedAt  int64   `json:"observed_at"`
	BucketStart int64   `json:"bucket_start"`
	Processed   int64   `json:"processed"`
	Rejected    int64   `json:"rejected"`
	Throughput  float64 `json:"throughput"`
	ErrorRate   float64 `json:"error_rate"`
	Status      Status  `json:"status"`
}
