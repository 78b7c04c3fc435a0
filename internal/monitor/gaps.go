package monitor

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/tidemark/tidemark/internal/store"
	"github.com/tidemark/tidemark/pkg/types"
)

// GapEvaluator scans consecutive event timestamps in a trailing window and
// records every inter-event interval exceeding the gap threshold, with an
// estimated missing count derived from the expected mean inter-arrival time.
// A window holding a single interval still counts; two events two hours
// apart are a gap even when nothing else arrived around them.
type GapEvaluator struct {
	events *store.EventStore

	window       time.Duration
	gapThreshold time.Duration

	// expectedInterArrival is the mean spacing gap sizes are divided by to
	// estimate how many events the gap swallowed.
	expectedInterArrival time.Duration
}

// NewGapEvaluator creates a gap evaluator with the given trailing window,
// gap threshold, and expected mean inter-arrival time.
func NewGapEvaluator(events *store.EventStore, window, gapThreshold, expectedInterArrival time.Duration) *GapEvaluator {
	return &GapEvaluator{
		events:               events,
		window:               window,
		gapThreshold:         gapThreshold,
		expectedInterArrival: expectedInterArrival,
	}
}

func (e *GapEvaluator) Name() string { return "event_gaps" }

func (e *GapEvaluator) Evaluate(ctx context.Context, now time.Time) ([]Observation, error) {
	from := now.Add(-e.window).Unix()
	threshold := int64(e.gapThreshold / time.Second)

	var gaps []types.MissingEventRecord
	var prev int64
	first := true

	err := e.events.Scan(ctx, store.ScanOptions{From: from}, func(ev *types.Event) bool {
		if !first {
			gap := ev.EventTime - prev
			if gap > threshold {
				gaps = append(gaps, types.MissingEventRecord{
					ObservedAt:       now.Unix(),
					GapStart:         prev,
					GapEnd:           ev.EventTime,
					GapSeconds:       gap,
					EstimatedMissing: estimateMissing(gap, e.expectedInterArrival),
				})
			}
		}
		prev = ev.EventTime
		first = false
		return true
	})
	if err != nil {
		return nil, err
	}

	status := types.StatusHealthy
	detail := "no gaps above threshold in trailing window"
	if len(gaps) > 0 {
		status = types.StatusWarning
		detail = fmt.Sprintf("%d gaps above %s", len(gaps), e.gapThreshold)
	}

	out := []Observation{observation("event_store", "event_gaps", float64(len(gaps)),
		status, float64(threshold), detail, now)}
	for i := range gaps {
		rec := gaps[i]
		out = append(out, Observation{Gap: &rec})
	}
	return out, nil
}

// estimateMissing divides the gap by the expected mean inter-arrival time,
// rounding to the nearest whole event.
func estimateMissing(gapSeconds int64, expected time.Duration) int64 {
	sec := float64(expected / time.Second)
	if sec <= 0 {
		return 0
	}
	return int64(math.Round(float64(gapSeconds) / sec))
}
