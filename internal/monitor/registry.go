package monitor

import (
	"sync"

	"github.com/tidemark/tidemark/pkg/types"
)

// FieldRegistry accumulates the {field name, field type} pairs observed in
// incoming events. Ingestion feeds it on every accepted event; the
// schema-drift evaluator diffs it against the baseline. A field observed
// under two types keeps the later one, so a type change stays visible.
type FieldRegistry struct {
	mu       sync.RWMutex
	observed types.FieldSet
}

// NewFieldRegistry creates an empty registry.
func NewFieldRegistry() *FieldRegistry {
	return &FieldRegistry{observed: make(types.FieldSet)}
}

// ObserveEvent folds one event's full field set into the registry.
func (r *FieldRegistry) ObserveEvent(ev *types.Event) {
	fs := types.FieldsOf(ev)
	r.mu.Lock()
	for name, ft := range fs {
		r.observed[name] = ft
	}
	r.mu.Unlock()
}

// Snapshot returns a copy of the currently observed field set.
func (r *FieldRegistry) Snapshot() types.FieldSet {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.observed.Clone()
}
