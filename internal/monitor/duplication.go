package monitor

import (
	"context"
	"fmt"
	"time"

	"github.com/tidemark/tidemark/internal/store"
	"github.com/tidemark/tidemark/pkg/types"
)

// DuplicationEvaluator counts identifiers with more than one surviving
// version in the merged view. The merge guarantees zero; any survivor is a
// merge-logic defect, reported and never silently corrected.
type DuplicationEvaluator struct {
	events *store.EventStore
}

// NewDuplicationEvaluator creates a duplication evaluator over the event
// store.
func NewDuplicationEvaluator(events *store.EventStore) *DuplicationEvaluator {
	return &DuplicationEvaluator{events: events}
}

func (e *DuplicationEvaluator) Name() string { return "duplication" }

func (e *DuplicationEvaluator) Evaluate(ctx context.Context, now time.Time) ([]Observation, error) {
	dups := e.events.CountDuplicateSurvivors()

	status := types.StatusHealthy
	detail := "merged view has no duplicate survivors"
	if dups > 0 {
		status = types.StatusWarning
		detail = fmt.Sprintf("%d identifiers survived merge more than once", dups)
	}

	return []Observation{observation("event_store", "duplicate_survivors", float64(dups), status, 0, detail, now)}, nil
}
