package view

import (
	"context"

	"github.com/tidemark/tidemark/internal/store"
	"github.com/tidemark/tidemark/pkg/types"
)

// Maintainer keeps the three derived aggregate stores consistent with the
// event store under continuous appends. It owns and exclusively writes the
// aggregate stores; ingestion hands it each admitted event (plus the
// superseded version on a replace) and it applies the incremental merge.
type Maintainer struct {
	dims     *store.DimensionStore
	progress *store.Progress

	eventTypeDaily *EventTypeDailyStore
	overallDaily   *OverallDailyStore
	sessions       *SessionStore
}

// NewMaintainer creates a maintainer joining against the given dimension
// store. progress may be nil when sync-lag tracking is not wired.
func NewMaintainer(dims *store.DimensionStore, progress *store.Progress) *Maintainer {
	return &Maintainer{
		dims:           dims,
		progress:       progress,
		eventTypeDaily: NewEventTypeDailyStore(),
		overallDaily:   NewOverallDailyStore(),
		sessions:       NewSessionStore(),
	}
}

// ApplyEvent folds a newly inserted event into every aggregate store. An
// event whose subject has no dimension record is still aggregated, under the
// explicit unknown device category; dropping it would corrupt count totals.
func (m *Maintainer) ApplyEvent(ev *types.Event) {
	deviceType := m.dims.DeviceTypeOf(ev.UserID)

	m.eventTypeDaily.Apply(ev)
	m.overallDaily.Apply(ev, deviceType)
	m.sessions.Apply(ev)

	if m.progress != nil {
		m.progress.ObserveApplied(store.SourceAggregation, ev.EventTime)
	}
}

// ReplaceEvent retracts a superseded version and folds in its replacement.
// Accumulators are commutative, so the retract/apply pair lands correctly
// regardless of what folded in between.
func (m *Maintainer) ReplaceEvent(prev, next *types.Event) {
	m.eventTypeDaily.Retract(prev)
	m.overallDaily.Retract(prev)
	m.sessions.Retract(prev)

	m.ApplyEvent(next)
}

// ApplyCommit routes one event-store append result to the right update.
func (m *Maintainer) ApplyCommit(result store.AppendResult, prev, ev *types.Event) {
	switch result {
	case store.AppendInserted:
		m.ApplyEvent(ev)
	case store.AppendReplaced:
		m.ReplaceEvent(prev, ev)
	case store.AppendIgnored:
		// Stale duplicate: nothing to fold.
	}
}

// Rebuild clears every aggregate store and re-derives it by replaying the
// event store's merged view. The result is identical to having folded each
// event incrementally: the maintainer has no hidden state.
func (m *Maintainer) Rebuild(ctx context.Context, events *store.EventStore) error {
	m.eventTypeDaily.Reset()
	m.overallDaily.Reset()
	m.sessions.Reset()

	return events.Scan(ctx, store.ScanOptions{}, func(ev *types.Event) bool {
		m.ApplyEvent(ev)
		return true
	})
}

// EventTypeDaily returns the per-event-type daily store for queries.
func (m *Maintainer) EventTypeDaily() *EventTypeDailyStore {
	return m.eventTypeDaily
}

// OverallDaily returns the overall daily KPI store for queries.
func (m *Maintainer) OverallDaily() *OverallDailyStore {
	return m.overallDaily
}

// Sessions returns the session rollup store for queries.
func (m *Maintainer) Sessions() *SessionStore {
	return m.sessions
}
