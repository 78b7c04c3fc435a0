package sketch

import (
	"fmt"
	"testing"
)

func TestAddAndEstimate(t *testing.T) {
	d := NewDistinct(0)

	d.AddString("sess-1")
	d.AddString("sess-2")
	d.AddString("sess-1")

	if got := d.Estimate(); got != 2 {
		t.Errorf("expected estimate 2, got %d", got)
	}
}

func TestRemoveRefcounted(t *testing.T) {
	d := NewDistinct(0)

	// Two occurrences of the same value: one retraction must not drop it.
	d.AddInt64(42)
	d.AddInt64(42)
	d.RemoveInt64(42)

	if got := d.Estimate(); got != 1 {
		t.Errorf("expected estimate 1 after partial retraction, got %d", got)
	}

	d.RemoveInt64(42)
	if got := d.Estimate(); got != 0 {
		t.Errorf("expected estimate 0 after full retraction, got %d", got)
	}
}

func TestRemoveUnknownValueIsNoop(t *testing.T) {
	d := NewDistinct(0)
	d.AddString("a")
	d.RemoveString("never-added")

	if got := d.Estimate(); got != 1 {
		t.Errorf("expected estimate 1, got %d", got)
	}
}

func TestExactModeDegrades(t *testing.T) {
	d := NewDistinct(8)
	for i := 0; i < 20; i++ {
		d.AddInt64(int64(i))
	}

	if d.Exact() {
		t.Error("expected counter to leave exact mode past the bound")
	}
	if got := d.Estimate(); got != 20 {
		t.Errorf("expected estimate 20, got %d", got)
	}

	// Retraction is a no-op once approximate.
	d.RemoveInt64(3)
	if got := d.Estimate(); got != 20 {
		t.Errorf("expected estimate unchanged after approximate retraction, got %d", got)
	}
}

func TestMergeCommutative(t *testing.T) {
	build := func(vals ...string) *Distinct {
		d := NewDistinct(0)
		for _, v := range vals {
			d.AddString(v)
		}
		return d
	}

	a := build("u1", "u2", "u3")
	b := build("u3", "u4")

	ab := a.Clone()
	ab.Merge(b)
	ba := b.Clone()
	ba.Merge(a)

	if ab.Estimate() != ba.Estimate() {
		t.Errorf("merge not commutative: %d vs %d", ab.Estimate(), ba.Estimate())
	}
	if ab.Estimate() != 4 {
		t.Errorf("expected merged estimate 4, got %d", ab.Estimate())
	}
}

func TestMergePreservesRefcounts(t *testing.T) {
	a := NewDistinct(0)
	a.AddString("x")
	b := NewDistinct(0)
	b.AddString("x")

	a.Merge(b)
	a.RemoveString("x")

	// One of the two merged occurrences remains.
	if got := a.Estimate(); got != 1 {
		t.Errorf("expected estimate 1 after retracting one merged occurrence, got %d", got)
	}
}

func TestLargeCardinality(t *testing.T) {
	d := NewDistinct(0)
	for i := 0; i < 50000; i++ {
		d.AddString(fmt.Sprintf("session-%d", i))
	}
	if got := d.Estimate(); got != 50000 {
		t.Errorf("expected 50000 distinct values, got %d", got)
	}
}
