package view

import (
	"sort"
	"sync"

	"github.com/spaolacci/murmur3"
	"github.com/tidemark/tidemark/internal/sketch"
	"github.com/tidemark/tidemark/pkg/types"
)

// OverallDailyKey is the grouping key of the overall daily KPI store. The
// device type comes from the user dimension at aggregation time; unknown
// subjects aggregate under the explicit unknown category.
type OverallDailyKey struct {
	Day        types.Day
	Channel    string
	DeviceType string
}

func (k OverallDailyKey) hash() uint64 {
	return murmur3.Sum64([]byte(string(k.Day) + "|" + k.Channel + "|" + k.DeviceType))
}

// OverallDailyRow is the materialized row for one grouping key.
type OverallDailyRow struct {
	Key              OverallDailyKey `json:"key"`
	EventCount       int64           `json:"event_count"`
	DistinctUsers    int64           `json:"distinct_users"`
	DistinctSessions int64           `json:"distinct_sessions"`
	PremiumSum       int64           `json:"premium_sum"`
	ConversionCount  int64           `json:"conversion_count"`
}

type overallDailyAgg struct {
	count       int64
	premiumSum  int64
	conversions int64
	users       *sketch.Distinct
	sessions    *sketch.Distinct
}

type overallDailyShard struct {
	mu   sync.Mutex
	rows map[OverallDailyKey]*overallDailyAgg

	// appliedDevice remembers the device-type category each event was
	// aggregated under, so a superseding version retracts from the same
	// row even if the dimension has changed since.
	appliedDevice map[string]string
}

// OverallDailyStore maintains overall daily KPIs grouped by
// (day, channel, device type) under the accumulator discipline.
type OverallDailyStore struct {
	shards [shardCount]overallDailyShard
}

// NewOverallDailyStore creates an empty store.
func NewOverallDailyStore() *OverallDailyStore {
	s := &OverallDailyStore{}
	for i := range s.shards {
		s.shards[i].rows = make(map[OverallDailyKey]*overallDailyAgg)
		s.shards[i].appliedDevice = make(map[string]string)
	}
	return s
}

// deviceShard routes the per-event device memo by event id, so apply and
// retract for one event id always meet the same shard.
func (s *OverallDailyStore) deviceShard(eventID string) *overallDailyShard {
	return &s.shards[murmur3.Sum64([]byte(eventID))%shardCount]
}

func (s *OverallDailyStore) rowShard(k OverallDailyKey) *overallDailyShard {
	return &s.shards[k.hash()%shardCount]
}

// Apply folds one event into its row using the given device-type category.
func (s *OverallDailyStore) Apply(ev *types.Event, deviceType string) {
	key := OverallDailyKey{Day: ev.Day(), Channel: channelOf(ev), DeviceType: deviceType}

	ds := s.deviceShard(ev.EventID)
	ds.mu.Lock()
	ds.appliedDevice[ev.EventID] = deviceType
	ds.mu.Unlock()

	sh := s.rowShard(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	agg, ok := sh.rows[key]
	if !ok {
		agg = &overallDailyAgg{
			users:    sketch.NewDistinct(0),
			sessions: sketch.NewDistinct(0),
		}
		sh.rows[key] = agg
	}
	agg.count++
	agg.premiumSum += ev.PremiumAmount
	agg.users.AddInt64(ev.UserID)
	agg.sessions.AddString(ev.SessionID)
	if ev.EventType == types.ConversionType {
		agg.conversions++
	}
}

// Retract removes a superseded event's contribution from the row it was
// originally aggregated into.
func (s *OverallDailyStore) Retract(ev *types.Event) {
	ds := s.deviceShard(ev.EventID)
	ds.mu.Lock()
	deviceType, ok := ds.appliedDevice[ev.EventID]
	if ok {
		delete(ds.appliedDevice, ev.EventID)
	}
	ds.mu.Unlock()
	if !ok {
		deviceType = types.UnknownCategory
	}

	key := OverallDailyKey{Day: ev.Day(), Channel: channelOf(ev), DeviceType: deviceType}
	sh := s.rowShard(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	agg, exists := sh.rows[key]
	if !exists {
		return
	}
	agg.count--
	agg.premiumSum -= ev.PremiumAmount
	agg.users.RemoveInt64(ev.UserID)
	agg.sessions.RemoveString(ev.SessionID)
	if ev.EventType == types.ConversionType {
		agg.conversions--
	}
	if agg.count <= 0 {
		delete(sh.rows, key)
	}
}

// OverallDailyFilter narrows a Range query. Zero values match everything.
type OverallDailyFilter struct {
	Channel    string
	DeviceType string
}

// Range returns materialized rows for days in [from, to], sorted by
// (day, channel, device type).
func (s *OverallDailyStore) Range(from, to types.Day, filter OverallDailyFilter) []OverallDailyRow {
	var out []OverallDailyRow
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
			if filter.Channel != "" && key.Channel != filter.Channel {
				continue
			}
			if filter.DeviceType != "" && key.DeviceType != filter.DeviceType {
				continue
			}
			out = append(out, materializeOverallDaily(key, agg))
		}
		sh.mu.Unlock()
	}

	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].Key, out[j].Key
		if a.Day != b.Day {
			return a.Day.Before(b.Day)
		}
		if a.Channel != b.Channel {
			return a.Channel < b.Channel
		}
		return a.DeviceType < b.DeviceType
	})
	return out
}

// Get returns the materialized row for one key.
func (s *OverallDailyStore) Get(key OverallDailyKey) (OverallDailyRow, bool) {
	sh := s.rowShard(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	agg, ok := sh.rows[key]
	if !ok {
		return OverallDailyRow{}, false
	}
	return materializeOverallDaily(key, agg), true
}

func materializeOverallDaily(key OverallDailyKey, agg *overallDailyAgg) OverallDailyRow {
	return OverallDailyRow{
		Key:              key,
		EventCount:       agg.count,
		DistinctUsers:    agg.users.Estimate(),
		DistinctSessions: agg.sessions.Estimate(),
		PremiumSum:       agg.premiumSum,
		ConversionCount:  agg.conversions,
	}
}

// Reset clears the store for a rebuild from replay.
func (s *OverallDailyStore) Reset() {
	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.Lock()
		sh.rows = make(map[OverallDailyKey]*overallDailyAgg)
		sh.appliedDevice = make(map[string]string)
		sh.mu.Unlock()
	}
}
