package store

import (
	"sync"
	"time"

	"github.com/tidemark/tidemark/pkg/types"
)

// DimensionStore holds the current state of the slowly-changing user
// dimension. Upserts apply last-writer-wins by version: an out-of-order
// delivery with a lower version never regresses state. Lookups are O(1) and
// happen once per aggregated event.
type DimensionStore struct {
	mu   sync.RWMutex
	byID map[int64]*types.DimensionRecord

	applied      int64
	staleIgnored int64
	latestUpsert time.Time
}

// NewDimensionStore creates an empty dimension store.
func NewDimensionStore() *DimensionStore {
	return &DimensionStore{
		byID: make(map[int64]*types.DimensionRecord),
	}
}

// Upsert applies rec if its version is newer than any stored version for the
// subject. Older versions are dropped with no effect, making the operation
// idempotent and order-insensitive up to version comparison. Reports whether
// the record was applied.
func (s *DimensionStore) Upsert(rec *types.DimensionRecord) bool {
	if rec == nil || rec.UserID == 0 {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if cur, ok := s.byID[rec.UserID]; ok && rec.Version <= cur.Version {
		s.staleIgnored++
		return false
	}

	cp := *rec
	s.byID[rec.UserID] = &cp
	s.applied++
	s.latestUpsert = time.Now()
	return true
}

// Lookup returns the current attributes for a subject, or ok=false when the
// subject is unknown. Callers aggregate unknown subjects under the explicit
// "unknown" category rather than dropping them.
func (s *DimensionStore) Lookup(userID int64) (*types.DimensionRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.byID[userID]
	if !ok {
		return nil, false
	}
	cp := *rec
	return &cp, true
}

// DeviceTypeOf returns the subject's device type, or the unknown category
// when the subject has no dimension record yet.
func (s *DimensionStore) DeviceTypeOf(userID int64) string {
	if rec, ok := s.Lookup(userID); ok && rec.DeviceType != "" {
		return rec.DeviceType
	}
	return types.UnknownCategory
}

// DimensionStoreStats is a point-in-time snapshot of store counters.
type DimensionStoreStats struct {
	Size         int64
	Applied      int64
	StaleIgnored int64
	LatestUpsert time.Time
}

// Stats returns a snapshot of the store counters.
func (s *DimensionStore) Stats() DimensionStoreStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return DimensionStoreStats{
		Size:         int64(len(s.byID)),
		Applied:      s.applied,
		StaleIgnored: s.staleIgnored,
		LatestUpsert: s.latestUpsert,
	}
}
