package store

import (
	"testing"

	"github.com/tidemark/tidemark/pkg/types"
)

func dim(id, version int64, device string) *types.DimensionRecord {
	return &types.DimensionRecord{
		UserID:     id,
		Version:    version,
		City:       "Tehran",
		DeviceType: device,
		SignupDate: "2024-03-01",
	}
}

func TestUpsertAndLookup(t *testing.T) {
	s := NewDimensionStore()

	if !s.Upsert(dim(7, 1, "ios")) {
		t.Fatal("expected first upsert to apply")
	}

	rec, ok := s.Lookup(7)
	if !ok || rec.DeviceType != "ios" {
		t.Errorf("expected ios record, got %+v ok=%v", rec, ok)
	}
}

func TestUpsertLastWriterWinsByVersion(t *testing.T) {
	s := NewDimensionStore()

	// Deliver v2 before v1: final state must be v2 either way.
	s.Upsert(dim(7, 2, "android"))
	if s.Upsert(dim(7, 1, "ios")) {
		t.Error("expected stale version to be dropped")
	}

	rec, _ := s.Lookup(7)
	if rec.Version != 2 || rec.DeviceType != "android" {
		t.Errorf("expected v2/android to survive, got %+v", rec)
	}

	// Same versions in delivery order: v1 then v2.
	s2 := NewDimensionStore()
	s2.Upsert(dim(7, 1, "ios"))
	s2.Upsert(dim(7, 2, "android"))
	rec2, _ := s2.Lookup(7)
	if rec2.Version != rec.Version || rec2.DeviceType != rec.DeviceType {
		t.Errorf("final state depends on delivery order: %+v vs %+v", rec, rec2)
	}
}

func TestUpsertEqualVersionIgnored(t *testing.T) {
	s := NewDimensionStore()
	s.Upsert(dim(7, 3, "ios"))

	if s.Upsert(dim(7, 3, "desktop")) {
		t.Error("expected equal-version redelivery to be a no-op")
	}
	rec, _ := s.Lookup(7)
	if rec.DeviceType != "ios" {
		t.Errorf("expected original record to survive, got %+v", rec)
	}
}

func TestLookupUnknownSubject(t *testing.T) {
	s := NewDimensionStore()

	if _, ok := s.Lookup(99); ok {
		t.Error("expected unknown subject to report ok=false")
	}
	if got := s.DeviceTypeOf(99); got != types.UnknownCategory {
		t.Errorf("expected %q for unknown subject, got %q", types.UnknownCategory, got)
	}
}

func TestDimensionStats(t *testing.T) {
	s := NewDimensionStore()
	s.Upsert(dim(1, 1, "ios"))
	s.Upsert(dim(1, 2, "ios"))
	s.Upsert(dim(1, 1, "ios")) // stale
	s.Upsert(dim(2, 1, "android"))

	stats := s.Stats()
	if stats.Size != 2 {
		t.Errorf("expected 2 subjects, got %d", stats.Size)
	}
	if stats.Applied != 3 {
		t.Errorf("expected 3 applied upserts, got %d", stats.Applied)
	}
	if stats.StaleIgnored != 1 {
		t.Errorf("expected 1 stale ignored, got %d", stats.StaleIgnored)
	}
}
