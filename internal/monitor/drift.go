package monitor

import (
	"context"
	"fmt"
	"time"

	"github.com/tidemark/tidemark/pkg/types"
)

// DriftEvaluator diffs the observed event field set against the known
// baseline. Every new or type-changed field is recorded; drift on a field in
// the identity or grouping-key set is critical, anything else is low impact.
type DriftEvaluator struct {
	registry *FieldRegistry
	baseline types.FieldSet
}

// NewDriftEvaluator creates a schema-drift evaluator against the baseline
// field set.
func NewDriftEvaluator(registry *FieldRegistry) *DriftEvaluator {
	return &DriftEvaluator{
		registry: registry,
		baseline: types.BaselineFieldSet(),
	}
}

func (e *DriftEvaluator) Name() string { return "schema_drift" }

func (e *DriftEvaluator) Evaluate(ctx context.Context, now time.Time) ([]Observation, error) {
	observed := e.registry.Snapshot()

	var drifts []types.SchemaDriftRecord
	anyCritical := false
	for _, name := range observed.Names() {
		ft := observed[name]
		base, known := e.baseline[name]

		var change string
		switch {
		case !known:
			change = "new_field"
		case base != ft:
			change = "type_changed"
		default:
			continue
		}

		impact := "low"
		if types.IsIdentityField(name) {
			impact = "critical"
			anyCritical = true
		}
		rec := types.SchemaDriftRecord{
			ObservedAt:   now.Unix(),
			FieldName:    name,
			ObservedType: ft,
			Change:       change,
			Impact:       impact,
		}
		if known {
			rec.BaselineType = base
		}
		drifts = append(drifts, rec)
	}

	status := types.StatusHealthy
	detail := "observed fields match baseline"
	switch {
	case anyCritical:
		status = types.StatusCritical
		detail = "drift on identity or grouping-key fields"
	case len(drifts) > 0:
		status = types.StatusWarning
		detail = fmt.Sprintf("%d fields outside baseline", len(drifts))
	}

	out := []Observation{observation("event_store", "schema_drift_fields", float64(len(drifts)), status, 0, detail, now)}
	for i := range drifts {
		rec := drifts[i]
		out = append(out, Observation{Drift: &rec})
	}
	return out, nil
}
