// Package sketch provides mergeable cardinality structures backing the
// count-distinct fields of the derived aggregate stores.
package sketch

import (
	"encoding/binary"

	"github.com/spaolacci/murmur3"
)

// DefaultMaxExact is the cardinality bound below which a Distinct counter is
// exact and supports retraction.
const DefaultMaxExact = 1 << 16

// Distinct is a mergeable distinct-value counter keyed by 64-bit murmur3
// hashes. Up to its exact bound it keeps per-value reference counts, so a
// superseded event version can retract its contribution. Past the bound the
// counter stays correct for additions but retractions become best-effort,
// which is acceptable for large cardinalities.
type Distinct struct {
	counts   map[uint64]uint32
	maxExact int
	exact    bool
}

// NewDistinct creates a distinct counter with the given exact-mode bound.
// A bound <= 0 uses DefaultMaxExact.
func NewDistinct(maxExact int) *Distinct {
	if maxExact <= 0 {
		maxExact = DefaultMaxExact
	}
	return &Distinct{
		counts:   make(map[uint64]uint32),
		maxExact: maxExact,
		exact:    true,
	}
}

// AddString records one occurrence of s.
func (d *Distinct) AddString(s string) {
	d.add(murmur3.Sum64([]byte(s)))
}

// AddInt64 records one occurrence of v.
func (d *Distinct) AddInt64(v int64) {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(v))
	d.add(murmur3.Sum64(buf[:]))
}

// RemoveString retracts one occurrence of s. Only effective while the
// counter is in exact mode.
func (d *Distinct) RemoveString(s string) {
	d.remove(murmur3.Sum64([]byte(s)))
}

// RemoveInt64 retracts one occurrence of v.
func (d *Distinct) RemoveInt64(v int64) {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(v))
	d.remove(murmur3.Sum64(buf[:]))
}

func (d *Distinct) add(h uint64) {
	d.counts[h]++
	if len(d.counts) > d.maxExact {
		d.exact = false
	}
}

func (d *Distinct) remove(h uint64) {
	if !d.exact {
		return
	}
	c, ok := d.counts[h]
	if !ok {
		return
	}
	if c <= 1 {
		delete(d.counts, h)
		return
	}
	d.counts[h] = c - 1
}

// Estimate returns the current distinct count.
func (d *Distinct) Estimate() int64 {
	return int64(len(d.counts))
}

// Exact reports whether the counter is still in exact (retractable) mode.
func (d *Distinct) Exact() bool {
	return d.exact
}

// Merge folds other into d. Commutative and associative on the estimated
// counts, so merge order does not matter.
func (d *Distinct) Merge(other *Distinct) {
	if other == nil {
		return
	}
	for h, c := range other.counts {
		d.counts[h] += c
	}
	if len(d.counts) > d.maxExact || !other.exact {
		d.exact = false
	}
}

// Clone returns an independent copy of the counter.
func (d *Distinct) Clone() *Distinct {
	cp := &Distinct{
		counts:   make(map[uint64]uint32, len(d.counts)),
		maxExact: d.maxExact,
		exact:    d.exact,
	}
	for h, c := range d.counts {
		cp.counts[h] = c
	}
	return cp
}
