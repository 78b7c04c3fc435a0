// Package monitor implements the pipeline health monitor: a set of
// independent periodic evaluators that read the raw and derived stores,
// classify what they measure against declarative threshold ladders, and
// write graded health records. Evaluators share no mutable state; a failing
// evaluator never prevents the others from running.
package monitor

import (
	"context"
	"time"

	"github.com/tidemark/tidemark/pkg/types"
)

// Observation is one evaluator finding: the graded health record plus the
// typed detail record, when the evaluator produces one.
type Observation struct {
	Record types.HealthRecord

	Drift *types.SchemaDriftRecord
	Lag   *types.SyncLagRecord
	Gap   *types.MissingEventRecord
	Load  *types.LoadPerformanceRecord
}

// Evaluator is a single periodic health check. Evaluate must be idempotent
// for a given window: re-running it produces the same observations, no
// hidden counters. It must respect the context deadline.
type Evaluator interface {
	// Name identifies the evaluator in schedules, logs, and records.
	Name() string

	// Evaluate measures and classifies at the given instant.
	Evaluate(ctx context.Context, now time.Time) ([]Observation, error)
}

// observation builds the common health-record shape. The record ID is
// assigned by the monitor when the record is committed.
func observation(component, metric string, value float64, status types.Status, threshold float64, detail string, now time.Time) Observation {
	return Observation{
		Record: types.HealthRecord{
			Component:  component,
			Metric:     metric,
			Value:      value,
			Status:     status,
			Threshold:  threshold,
			Detail:     detail,
			AlertLevel: status.AlertLevel(),
			CreatedAt:  now.Unix(),
		},
	}
}
