package store

import (
	"sync"
)

// Upstream sources tracked for sync lag.
const (
	SourceEvents      = "event_transport"
	SourceDimensions  = "dimension_feed"
	SourceAggregation = "aggregation"
)

// Progress tracks, per upstream source, the latest source-reported timestamp
// and the latest timestamp the pipeline has applied. The sync-lag evaluator
// reads the difference.
type Progress struct {
	mu      sync.RWMutex
	source  map[string]int64
	applied map[string]int64
}

// NewProgress creates an empty progress tracker.
func NewProgress() *Progress {
	return &Progress{
		source:  make(map[string]int64),
		applied: make(map[string]int64),
	}
}

// ObserveSource records a source-reported timestamp (Unix seconds). The
// tracker keeps the maximum seen.
func (p *Progress) ObserveSource(source string, ts int64) {
	p.mu.Lock()
	if ts > p.source[source] {
		p.source[source] = ts
	}
	p.mu.Unlock()
}

// ObserveApplied records the timestamp of the latest record the pipeline has
// committed for the source. The tracker keeps the maximum seen.
func (p *Progress) ObserveApplied(source string, ts int64) {
	p.mu.Lock()
	if ts > p.applied[source] {
		p.applied[source] = ts
	}
	p.mu.Unlock()
}

// Lag returns source minus applied for the source in seconds, along with
// whether the source has reported at all. A source that never reported has
// no measurable lag.
func (p *Progress) Lag(source string) (int64, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	src, ok := p.source[source]
	if !ok {
		return 0, false
	}
	lag := src - p.applied[source]
	if lag < 0 {
		lag = 0
	}
	return lag, true
}

// Sources returns the names of all sources that have reported.
func (p *Progress) Sources() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]string, 0, len(p.source))
	for s := range p.source {
		out = append(out, s)
	}
	return out
}
