package view

import (
	"sort"
	"sync"

	"github.com/spaolacci/murmur3"
	"github.com/tidemark/tidemark/pkg/types"
)

// SessionRollup is the materialized per-session row. The event-type sequence
// is ordered by event timestamp, not delivery order, so late arrivals slot
// into place.
type SessionRollup struct {
	SessionID          string            `json:"session_id"`
	FirstEventTime     int64             `json:"first_event_time"`
	LastEventTime      int64             `json:"last_event_time"`
	EventCount         int64             `json:"event_count"`
	DistinctEventTypes int64             `json:"distinct_event_types"`
	Converted          bool              `json:"converted"`
	PremiumSum         int64             `json:"premium_sum"`
	Sequence           []types.EventType `json:"sequence"`
	DurationSeconds    int64             `json:"duration_seconds"`
}

// sessionEvent is the per-event state a session keeps. It is exactly the
// subset of the event needed to re-derive the rollup, so the session store
// remains reconstructible from the event store.
type sessionEvent struct {
	ts      int64
	id      string
	etype   types.EventType
	premium int64
}

type sessionState struct {
	// events is sorted by (ts, id); kept ordered under out-of-order
	// delivery so sequence and duration derive correctly.
	events []sessionEvent
}

type sessionShard struct {
	mu       sync.Mutex
	sessions map[string]*sessionState
}

// SessionStore maintains per-session rollups under the replace-then-fold
// discipline: the first event creates the state, every later event folds in
// at its timestamp position.
type SessionStore struct {
	shards [shardCount]sessionShard
}

// NewSessionStore creates an empty store.
func NewSessionStore() *SessionStore {
	s := &SessionStore{}
	for i := range s.shards {
		s.shards[i].sessions = make(map[string]*sessionState)
	}
	return s
}

func (s *SessionStore) shard(sessionID string) *sessionShard {
	return &s.shards[murmur3.Sum64([]byte(sessionID))%shardCount]
}

// Apply folds one event into its session, inserting at the timestamp
// position.
func (s *SessionStore) Apply(ev *types.Event) {
	if ev.SessionID == "" {
		return
	}
	sh := s.shard(ev.SessionID)

	sh.mu.Lock()
	defer sh.mu.Unlock()

	state, ok := sh.sessions[ev.SessionID]
	if !ok {
		state = &sessionState{}
		sh.sessions[ev.SessionID] = state
	}

	se := sessionEvent{ts: ev.EventTime, id: ev.EventID, etype: ev.EventType, premium: ev.PremiumAmount}
	pos := sort.Search(len(state.events), func(i int) bool {
		e := state.events[i]
		if e.ts != se.ts {
			return e.ts > se.ts
		}
		return e.id >= se.id
	})
	state.events = append(state.events, sessionEvent{})
	copy(state.events[pos+1:], state.events[pos:])
	state.events[pos] = se
}

// Retract removes a superseded event version from its session.
func (s *SessionStore) Retract(ev *types.Event) {
	if ev.SessionID == "" {
		return
	}
	sh := s.shard(ev.SessionID)

	sh.mu.Lock()
	defer sh.mu.Unlock()

	state, ok := sh.sessions[ev.SessionID]
	if !ok {
		return
	}
	for i, e := range state.events {
		if e.id == ev.EventID {
			state.events = append(state.events[:i], state.events[i+1:]...)
			break
		}
	}
	if len(state.events) == 0 {
		delete(sh.sessions, ev.SessionID)
	}
}

// Rollup derives the materialized row for one session.
func (s *SessionStore) Rollup(sessionID string) (SessionRollup, bool) {
	sh := s.shard(sessionID)

	sh.mu.Lock()
	defer sh.mu.Unlock()

	state, ok := sh.sessions[sessionID]
	if !ok || len(state.events) == 0 {
		return SessionRollup{}, false
	}
	return deriveRollup(sessionID, state), true
}

// deriveRollup folds the ordered event set into the rollup row. Caller holds
// the shard lock.
func deriveRollup(sessionID string, state *sessionState) SessionRollup {
	first := state.events[0]
	last := state.events[len(state.events)-1]

	roll := SessionRollup{
		SessionID:      sessionID,
		FirstEventTime: first.ts,
		LastEventTime:  last.ts,
		EventCount:     int64(len(state.events)),
		Sequence:       make([]types.EventType, 0, len(state.events)),
	}

	distinct := make(map[types.EventType]bool)
	for _, e := range state.events {
		roll.Sequence = append(roll.Sequence, e.etype)
		roll.PremiumSum += e.premium
		distinct[e.etype] = true
		if e.etype == types.ConversionType {
			roll.Converted = true
		}
	}
	roll.DistinctEventTypes = int64(len(distinct))
	roll.DurationSeconds = last.ts - first.ts
	return roll
}

// Rollups derives the materialized rows for every tracked session, sorted by
// session identifier.
func (s *SessionStore) Rollups() []SessionRollup {
	var out []SessionRollup
	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.Lock()
		for id, state := range sh.sessions {
			if len(state.events) == 0 {
				continue
			}
			out = append(out, deriveRollup(id, state))
		}
		sh.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SessionID < out[j].SessionID })
	return out
}

// Count returns the number of sessions currently tracked.
func (s *SessionStore) Count() int64 {
	var n int64
	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.Lock()
		n += int64(len(sh.sessions))
		sh.mu.Unlock()
	}
	return n
}

// Reset clears the store for a rebuild from replay.
func (s *SessionStore) Reset() {
	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.Lock()
		sh.sessions = make(map[string]*sessionState)
		sh.mu.Unlock()
	}
}
