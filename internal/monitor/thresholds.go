package monitor

import (
	"fmt"

	"github.com/tidemark/tidemark/internal/errors"
	"github.com/tidemark/tidemark/pkg/types"
)

// Grade is one rung of a classification ladder.
type Grade struct {
	Threshold float64
	Status    types.Status
}

// Ladder classifies a measurement by walking an ordered list of
// (threshold, status) pairs top-down. The first rung whose threshold the
// value satisfies wins; a value satisfying no rung falls through to the
// fallback status.
//
// Direction chooses the comparison: AtMost matches value <= threshold
// (ages, lags), AtLeast matches value >= threshold (rates, throughput).
type Ladder struct {
	Grades    []Grade
	Direction Direction
	Fallback  types.Status
}

// Direction is the comparison a ladder applies at each rung.
type Direction int

const (
	// AtMost matches when the value is at or below the rung threshold.
	AtMost Direction = iota

	// AtLeast matches when the value is at or above the rung threshold.
	AtLeast
)

// Classify returns the status for value and the threshold it was graded
// against. For a fallback classification the returned threshold is the last
// rung's, the boundary the value failed.
func (l Ladder) Classify(value float64) (types.Status, float64) {
	for _, g := range l.Grades {
		switch l.Direction {
		case AtMost:
			if value <= g.Threshold {
				return g.Status, g.Threshold
			}
		case AtLeast:
			if value >= g.Threshold {
				return g.Status, g.Threshold
			}
		}
	}
	last := 0.0
	if len(l.Grades) > 0 {
		last = l.Grades[len(l.Grades)-1].Threshold
	}
	return l.Fallback, last
}

// Validate checks that the rungs are strictly ordered in the ladder's
// direction and that every rung is less severe than the fallback. Called at
// startup; a bad ladder is a configuration error, not a runtime condition.
func (l Ladder) Validate(name string) error {
	if len(l.Grades) == 0 {
		return errors.New(errors.ErrCategoryConfig, errors.CodeInvalidThreshold,
			fmt.Sprintf("ladder %s has no rungs", name))
	}
	for i := 1; i < len(l.Grades); i++ {
		prev, cur := l.Grades[i-1].Threshold, l.Grades[i].Threshold
		ordered := prev < cur
		if l.Direction == AtLeast {
			ordered = prev > cur
		}
		if !ordered {
			return errors.New(errors.ErrCategoryConfig, errors.CodeInvalidThreshold,
				fmt.Sprintf("ladder %s rungs out of order at %d: %v then %v", name, i, prev, cur))
		}
		if l.Grades[i-1].Status.AlertLevel() > l.Grades[i].Status.AlertLevel() {
			return errors.New(errors.ErrCategoryConfig, errors.CodeInvalidThreshold,
				fmt.Sprintf("ladder %s severity regresses at rung %d", name, i))
		}
	}
	return nil
}
