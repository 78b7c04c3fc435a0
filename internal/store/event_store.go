// Package store implements the raw state of the pipeline: the append-only
// deduplicating event store and the versioned dimension store. These are the
// only stores written by ingestion; every derived store is re-derivable from
// them by replay.
package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/tidemark/tidemark/internal/errors"
	"github.com/tidemark/tidemark/pkg/types"
)

// AppendResult describes what an Append call did.
type AppendResult int

const (
	// AppendInserted means the event identifier was not present before.
	AppendInserted AppendResult = iota

	// AppendReplaced means an existing record with a lower or equal
	// version was superseded (last write wins on ties).
	AppendReplaced

	// AppendIgnored means a record with a higher version already exists;
	// the delivery was a stale duplicate and had no effect.
	AppendIgnored
)

// ScanOptions bounds a Scan call. Zero values leave a bound open.
type ScanOptions struct {
	// From is the inclusive lower event-time bound (Unix seconds).
	From int64

	// To is the exclusive upper event-time bound (Unix seconds).
	To int64

	// SessionID, when set, restricts the scan to one session.
	SessionID string
}

// EventStoreStats is a point-in-time snapshot of store counters.
type EventStoreStats struct {
	// Accepted is the number of appends that mutated the store.
	Accepted int64

	// Rejected is the number of malformed events refused at the door.
	Rejected int64

	// StaleDuplicates is the number of deliveries ignored as lower-version
	// duplicates.
	StaleDuplicates int64

	// Size is the number of currently visible (merged) events.
	Size int64

	// LatestEventTime is the highest event timestamp accepted so far
	// (Unix seconds); zero when the store is empty.
	LatestEventTime int64

	// LastArrival is the wall-clock time of the most recent accepted
	// append.
	LastArrival time.Time
}

// EventStore is an append-only, deduplicating store of business events keyed
// by event identifier. Duplicate deliveries of the same identifier collapse
// to the highest-version record. Scans observe the merged view ordered by
// (event time, event id).
type EventStore struct {
	mu   sync.RWMutex
	byID map[string]*types.Event

	// ordered is the merged view sorted by (EventTime, EventID). It is
	// rebuilt lazily on the first scan after a mutation.
	ordered []*types.Event
	dirty   bool

	accepted        int64
	rejected        int64
	staleDuplicates int64
	latestEventTime int64
	lastArrival     time.Time
}

// NewEventStore creates an empty event store.
func NewEventStore() *EventStore {
	return &EventStore{
		byID: make(map[string]*types.Event),
	}
}

// Validate checks the structural invariants an event must satisfy before it
// may enter the store.
func Validate(ev *types.Event) error {
	if ev == nil {
		return errors.NewValidationError(errors.CodeMalformedRecord, "nil event")
	}
	if ev.EventID == "" {
		return errors.NewValidationError(errors.CodeMissingIdentifier, "event has no identifier")
	}
	if ev.EventTime == 0 {
		return errors.NewValidationError(errors.CodeMissingTimestamp,
			fmt.Sprintf("event %s has no timestamp", ev.EventID))
	}
	if !ev.EventType.Valid() {
		return errors.NewValidationError(errors.CodeUnknownEventType,
			fmt.Sprintf("event %s has unknown type %q", ev.EventID, ev.EventType))
	}
	return nil
}

// Append inserts or merges an event. On identifier collision the record with
// the higher version survives; ties break toward the later arrival. The
// returned previous event is non-nil only for AppendReplaced, so the caller
// can retract its contribution from derived stores.
//
// Malformed events are rejected with a ValidationError and counted; the
// rejection count feeds the health monitor.
func (s *EventStore) Append(ev *types.Event) (AppendResult, *types.Event, error) {
	if err := Validate(ev); err != nil {
		s.mu.Lock()
		s.rejected++
		s.mu.Unlock()
		return AppendIgnored, nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	prev, exists := s.byID[ev.EventID]
	if exists && ev.Version < prev.Version {
		s.staleDuplicates++
		return AppendIgnored, nil, nil
	}
	if exists && ev.Version == prev.Version && sameDelivery(ev, prev) {
		// Identical redelivery: at-least-once transport noise.
		s.staleDuplicates++
		return AppendIgnored, nil, nil
	}

	cp := *ev
	s.byID[ev.EventID] = &cp
	s.dirty = true
	s.accepted++
	s.lastArrival = time.Now()
	if ev.EventTime > s.latestEventTime {
		s.latestEventTime = ev.EventTime
	}

	if exists {
		return AppendReplaced, prev, nil
	}
	return AppendInserted, nil, nil
}

// sameDelivery reports whether two deliveries carry the same scalar fields.
// Attrs differences on an equal version still count as a replace, which
// keeps the merge conservative.
func sameDelivery(a, b *types.Event) bool {
	return a.EventTime == b.EventTime &&
		a.EventType == b.EventType &&
		a.SessionID == b.SessionID &&
		a.UserID == b.UserID &&
		a.PremiumAmount == b.PremiumAmount &&
		a.Channel == b.Channel &&
		len(a.Attrs) == len(b.Attrs)
}

// Get returns the currently visible record for an identifier.
func (s *EventStore) Get(eventID string) (*types.Event, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ev, ok := s.byID[eventID]
	if !ok {
		return nil, false
	}
	cp := *ev
	return &cp, true
}

// Scan streams the merged view ordered by (event time, event id), bounded by
// opts. The visitor returns false to stop early. Scans are restartable: each
// call observes a consistent snapshot taken at call time.
func (s *EventStore) Scan(ctx context.Context, opts ScanOptions, fn func(*types.Event) bool) error {
	snap := s.snapshot()

	// Binary-search the lower bound; the snapshot is time-ordered.
	start := sort.Search(len(snap), func(i int) bool {
		return snap[i].EventTime >= opts.From
	})

	for i := start; i < len(snap); i++ {
		if i%1024 == 0 && ctx.Err() != nil {
			return errors.Wrap(errors.ErrCategoryStore, errors.CodeScanFailed, "scan cancelled", ctx.Err())
		}
		ev := snap[i]
		if opts.To != 0 && ev.EventTime >= opts.To {
			break
		}
		if opts.SessionID != "" && ev.SessionID != opts.SessionID {
			continue
		}
		if !fn(ev) {
			return nil
		}
	}
	return nil
}

// snapshot returns the ordered merged view, rebuilding it if appends have
// happened since the last scan.
func (s *EventStore) snapshot() []*types.Event {
	s.mu.RLock()
	if !s.dirty {
		snap := s.ordered
		s.mu.RUnlock()
		return snap
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dirty {
		ordered := make([]*types.Event, 0, len(s.byID))
		for _, ev := range s.byID {
			ordered = append(ordered, ev)
		}
		sort.Slice(ordered, func(i, j int) bool {
			if ordered[i].EventTime != ordered[j].EventTime {
				return ordered[i].EventTime < ordered[j].EventTime
			}
			return ordered[i].EventID < ordered[j].EventID
		})
		s.ordered = ordered
		s.dirty = false
	}
	return s.ordered
}

// Sweep removes merged events whose timestamp is older than the horizon.
// It operates on the merged view, so a surviving version is never removed
// ahead of its duplicates. Returns the number of events removed.
func (s *EventStore) Sweep(now time.Time, horizon time.Duration) int {
	cutoff := now.Add(-horizon).Unix()

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, ev := range s.byID {
		if ev.EventTime < cutoff {
			delete(s.byID, id)
			removed++
		}
	}
	if removed > 0 {
		s.dirty = true
	}
	return removed
}

// CountDuplicateSurvivors counts identifiers with more than one surviving
// record in the merged view. By construction this is zero; a nonzero result
// indicates a merge-logic defect and is reported by the duplication
// evaluator, never silently corrected.
func (s *EventStore) CountDuplicateSurvivors() int64 {
	snap := s.snapshot()

	seen := make(map[string]int, len(snap))
	for _, ev := range snap {
		seen[ev.EventID]++
	}
	var dups int64
	for _, n := range seen {
		if n > 1 {
			dups++
		}
	}
	return dups
}

// Stats returns a snapshot of the store counters.
func (s *EventStore) Stats() EventStoreStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return EventStoreStats{
		Accepted:        s.accepted,
		Rejected:        s.rejected,
		StaleDuplicates: s.staleDuplicates,
		Size:            int64(len(s.byID)),
		LatestEventTime: s.latestEventTime,
		LastArrival:     s.lastArrival,
	}
}
