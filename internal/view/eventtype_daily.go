// Package view maintains the derived aggregate stores incrementally: each
// newly committed event is folded into the rows its grouping keys select,
// without rescanning the event store. Every store is re-derivable from
// scratch by replaying the event store.
package view

import (
	"sort"
	"sync"

	"github.com/spaolacci/murmur3"
	"github.com/tidemark/tidemark/internal/sketch"
	"github.com/tidemark/tidemark/pkg/types"
)

// shardCount partitions each aggregate store by grouping key, so updates for
// different keys never contend while updates for one key are serialized.
const shardCount = 16

// EventTypeDailyKey is the grouping key of the per-event-type daily store.
type EventTypeDailyKey struct {
	Day       types.Day
	EventType types.EventType
	Channel   string
}

func (k EventTypeDailyKey) hash() uint64 {
	return murmur3.Sum64([]byte(string(k.Day) + "|" + string(k.EventType) + "|" + k.Channel))
}

// EventTypeDailyRow is the materialized row for one grouping key.
type EventTypeDailyRow struct {
	Key              EventTypeDailyKey `json:"key"`
	EventCount       int64             `json:"event_count"`
	DistinctUsers    int64             `json:"distinct_users"`
	DistinctSessions int64             `json:"distinct_sessions"`
	PremiumSum       int64             `json:"premium_sum"`
	PremiumMean      float64           `json:"premium_mean"`
}

// eventTypeDailyAgg is the accumulator state behind one row. All fields
// combine by addition or mergeable sketches, so fold order does not matter.
type eventTypeDailyAgg struct {
	count      int64
	premiumSum int64
	users      *sketch.Distinct
	sessions   *sketch.Distinct
}

type eventTypeDailyShard struct {
	mu   sync.Mutex
	rows map[EventTypeDailyKey]*eventTypeDailyAgg
}

// EventTypeDailyStore maintains daily metrics grouped by
// (day, event type, channel) under the accumulator discipline.
type EventTypeDailyStore struct {
	shards [shardCount]eventTypeDailyShard
}

// NewEventTypeDailyStore creates an empty store.
func NewEventTypeDailyStore() *EventTypeDailyStore {
	s := &EventTypeDailyStore{}
	for i := range s.shards {
		s.shards[i].rows = make(map[EventTypeDailyKey]*eventTypeDailyAgg)
	}
	return s
}

func (s *EventTypeDailyStore) shard(k EventTypeDailyKey) *eventTypeDailyShard {
	return &s.shards[k.hash()%shardCount]
}

func keyOfEventTypeDaily(ev *types.Event) EventTypeDailyKey {
	return EventTypeDailyKey{
		Day:       ev.Day(),
		EventType: ev.EventType,
		Channel:   channelOf(ev),
	}
}

// channelOf normalizes an empty channel to the explicit unknown category.
func channelOf(ev *types.Event) string {
	if ev.Channel == "" {
		return types.UnknownCategory
	}
	return ev.Channel
}

// Apply folds one event into its row.
func (s *EventTypeDailyStore) Apply(ev *types.Event) {
	key := keyOfEventTypeDaily(ev)
	sh := s.shard(key)

	sh.mu.Lock()
	defer sh.mu.Unlock()

	agg, ok := sh.rows[key]
	if !ok {
		agg = &eventTypeDailyAgg{
			users:    sketch.NewDistinct(0),
			sessions: sketch.NewDistinct(0),
		}
		sh.rows[key] = agg
	}
	agg.count++
	agg.premiumSum += ev.PremiumAmount
	agg.users.AddInt64(ev.UserID)
	agg.sessions.AddString(ev.SessionID)
}

// Retract removes one event's contribution, used when a higher version
// supersedes a previously aggregated delivery.
func (s *EventTypeDailyStore) Retract(ev *types.Event) {
	key := keyOfEventTypeDaily(ev)
	sh := s.shard(key)

	sh.mu.Lock()
	defer sh.mu.Unlock()

	agg, ok := sh.rows[key]
	if !ok {
		return
	}
	agg.count--
	agg.premiumSum -= ev.PremiumAmount
	agg.users.RemoveInt64(ev.UserID)
	agg.sessions.RemoveString(ev.SessionID)
	if agg.count <= 0 {
		delete(sh.rows, key)
	}
}

// EventTypeDailyFilter narrows a Range query. Zero values match everything.
type EventTypeDailyFilter struct {
	EventType types.EventType
	Channel   string
}

// Range returns materialized rows for days in [from, to], sorted by
// (day, event type, channel). Zero-valued bounds are open.
func (s *EventTypeDailyStore) Range(from, to types.Day, filter EventTypeDailyFilter) []EventTypeDailyRow {
	var out []EventTypeDailyRow
	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.Lock()
		for key, agg := range sh.rows {
			if from != "" && key.Day.Before(from) {
				continue
			}
			if to != "" && to.Before(key.Day) {
				continue
			}
			if filter.EventType != "" && key.EventType != filter.EventType {
				continue
			}
			if filter.Channel != "" && key.Channel != filter.Channel {
				continue
			}
			out = append(out, materializeEventTypeDaily(key, agg))
		}
		sh.mu.Unlock()
	}

	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].Key, out[j].Key
		if a.Day != b.Day {
			return a.Day.Before(b.Day)
		}
		if a.EventType != b.EventType {
			return a.EventType < b.EventType
		}
		return a.Channel < b.Channel
	})
	return out
}

// Get returns the materialized row for one key.
func (s *EventTypeDailyStore) Get(key EventTypeDailyKey) (EventTypeDailyRow, bool) {
	sh := s.shard(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	agg, ok := sh.rows[key]
	if !ok {
		return EventTypeDailyRow{}, false
	}
	return materializeEventTypeDaily(key, agg), true
}

func materializeEventTypeDaily(key EventTypeDailyKey, agg *eventTypeDailyAgg) EventTypeDailyRow {
	row := EventTypeDailyRow{
		Key:              key,
		EventCount:       agg.count,
		DistinctUsers:    agg.users.Estimate(),
		DistinctSessions: agg.sessions.Estimate(),
		PremiumSum:       agg.premiumSum,
	}
	if agg.count > 0 {
		row.PremiumMean = float64(agg.premiumSum) / float64(agg.count)
	}
	return row
}

// Reset clears the store for a rebuild from replay.
func (s *EventTypeDailyStore) Reset() {
	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.Lock()
		sh.rows = make(map[EventTypeDailyKey]*eventTypeDailyAgg)
		sh.mu.Unlock()
	}
}
