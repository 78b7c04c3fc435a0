package monitor

import (
	"context"
	"fmt"
	"time"

	"github.com/tidemark/tidemark/internal/store"
	"github.com/tidemark/tidemark/pkg/types"
)

// FreshnessEvaluator grades the age of the most recent accepted event.
type FreshnessEvaluator struct {
	events *store.EventStore
	ladder Ladder
}

// DefaultFreshnessLadder grades event age in seconds: fresh within five
// minutes, stale past an hour.
func DefaultFreshnessLadder() Ladder {
	return Ladder{
		Grades: []Grade{
			{Threshold: 300, Status: types.StatusHealthy},
			{Threshold: 3600, Status: types.StatusWarning},
		},
		Direction: AtMost,
		Fallback:  types.StatusCritical,
	}
}

// NewFreshnessEvaluator creates a freshness evaluator over the event store.
func NewFreshnessEvaluator(events *store.EventStore, ladder Ladder) *FreshnessEvaluator {
	return &FreshnessEvaluator{events: events, ladder: ladder}
}

func (e *FreshnessEvaluator) Name() string { return "freshness" }

func (e *FreshnessEvaluator) Evaluate(ctx context.Context, now time.Time) ([]Observation, error) {
	stats := e.events.Stats()

	if stats.Accepted == 0 {
		obs := observation("event_store", "freshness_seconds", 0, types.StatusHealthy,
			e.ladder.Grades[0].Threshold, "no events accepted yet", now)
		return []Observation{obs}, nil
	}

	age := float64(now.Unix() - stats.LatestEventTime)
	if age < 0 {
		age = 0
	}
	status, threshold := e.ladder.Classify(age)

	detail := fmt.Sprintf("latest event at %d, age %.0fs", stats.LatestEventTime, age)
	return []Observation{observation("event_store", "freshness_seconds", age, status, threshold, detail, now)}, nil
}
