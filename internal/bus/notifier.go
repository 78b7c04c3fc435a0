// Package bus provides an in-process pub/sub fabric carrying health records
// from the monitor to the alert sink and any other observer.
package bus

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/tidemark/tidemark/pkg/types"
)

// Notifier fans health records out to subscribers. Publish is non-blocking:
// a subscriber with a full buffer misses the record, which is acceptable for
// best-effort alert delivery (the monitoring store remains the durable
// record).
type Notifier struct {
	subscribers sync.Map
	bufferSize  int
	dropped     int64
}

// Subscriber is one registered consumer of health records.
type Subscriber struct {
	ID string

	// Components filters delivery to records whose component name starts
	// with one of these prefixes. Empty means all components.
	Components []string

	Ch chan types.HealthRecord
}

// NewNotifier creates a notifier with the given per-subscriber buffer size.
func NewNotifier(bufferSize int) *Notifier {
	if bufferSize <= 0 {
		bufferSize = 64
	}
	return &Notifier{
		bufferSize: bufferSize,
	}
}

// Publish delivers a record to all matching subscribers without blocking.
func (n *Notifier) Publish(rec types.HealthRecord) {
	n.subscribers.Range(func(key, value interface{}) bool {
		sub := value.(*Subscriber)
		if n.matches(sub, rec.Component) {
			select {
			case sub.Ch <- rec:
			default:
				// Channel full - drop, do NOT block the publisher
				atomic.AddInt64(&n.dropped, 1)
			}
		}
		return true
	})
}

// Subscribe registers a consumer with a custom ID and component filters.
func (n *Notifier) Subscribe(id string, components ...string) *Subscriber {
	sub := &Subscriber{
		ID:         id,
		Components: components,
		Ch:         make(chan types.HealthRecord, n.bufferSize),
	}
	n.subscribers.Store(id, sub)
	return sub
}

// SubscribeAutoID registers a consumer with a generated ID and returns its
// channel.
func (n *Notifier) SubscribeAutoID(components ...string) chan types.HealthRecord {
	id := "sub_" + time.Now().Format("20060102150405.000000000")
	return n.Subscribe(id, components...).Ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (n *Notifier) Unsubscribe(id string) {
	if value, ok := n.subscribers.LoadAndDelete(id); ok {
		close(value.(*Subscriber).Ch)
	}
}

// Dropped returns the number of records dropped on full buffers.
func (n *Notifier) Dropped() int64 {
	return atomic.LoadInt64(&n.dropped)
}

// matches checks the subscriber's component prefix filters.
func (n *Notifier) matches(sub *Subscriber, component string) bool {
	if len(sub.Components) == 0 {
		return true
	}
	for _, prefix := range sub.Components {
		if len(prefix) == 0 {
			return true
		}
		if len(component) >= len(prefix) && component[:len(prefix)] == prefix {
			return true
		}
	}
	return false
}
