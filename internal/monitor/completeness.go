package monitor

import (
	"context"
	"fmt"
	"time"

	"github.com/tidemark/tidemark/internal/store"
	"github.com/tidemark/tidemark/pkg/types"
)

// CompletenessEvaluator grades the fraction of recent events carrying every
// required business field. The structural invariants (identifier, timestamp,
// type) are enforced at the door; this measures the softer fields the
// aggregates depend on.
type CompletenessEvaluator struct {
	events *store.EventStore
	ladder Ladder
	window time.Duration
}

// DefaultCompletenessLadder grades the populated percentage: five nines of a
// percent short of perfect is a warning, below 95% is critical.
func DefaultCompletenessLadder() Ladder {
	return Ladder{
		Grades: []Grade{
			{Threshold: 99.5, Status: types.StatusHealthy},
			{Threshold: 95, Status: types.StatusWarning},
		},
		Direction: AtLeast,
		Fallback:  types.StatusCritical,
	}
}

// NewCompletenessEvaluator creates a completeness evaluator scanning the
// trailing window.
func NewCompletenessEvaluator(events *store.EventStore, ladder Ladder, window time.Duration) *CompletenessEvaluator {
	return &CompletenessEvaluator{events: events, ladder: ladder, window: window}
}

func (e *CompletenessEvaluator) Name() string { return "completeness" }

// complete reports whether every required business field is populated.
func complete(ev *types.Event) bool {
	return ev.SessionID != "" && ev.UserID != 0 && ev.Channel != ""
}

func (e *CompletenessEvaluator) Evaluate(ctx context.Context, now time.Time) ([]Observation, error) {
	from := now.Add(-e.window).Unix()

	var total, populated int64
	err := e.events.Scan(ctx, store.ScanOptions{From: from}, func(ev *types.Event) bool {
		total++
		if complete(ev) {
			populated++
		}
		return true
	})
	if err != nil {
		return nil, err
	}

	pct := 100.0
	if total > 0 {
		pct = float64(populated) / float64(total) * 100
	}
	status, threshold := e.ladder.Classify(pct)

	detail := fmt.Sprintf("%d of %d events complete in trailing %s", populated, total, e.window)
	return []Observation{observation("event_store", "completeness_percent", pct, status, threshold, detail, now)}, nil
}
