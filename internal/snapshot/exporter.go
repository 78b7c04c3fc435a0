// Package snapshot periodically serializes the derived aggregate stores to
// compressed objects for BI consumers and cold recovery. Snapshots are
// observational: the aggregate stores remain re-derivable from the event
// store regardless.
package snapshot

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/golang/snappy"

	"github.com/tidemark/tidemark/internal/storage"
	"github.com/tidemark/tidemark/internal/view"
)

// Object path layout: snapshots/<store>/<unix-ts>.json.sz
const (
	prefixEventTypeDaily = "snapshots/event_type_daily/"
	prefixOverallDaily   = "snapshots/overall_daily/"
	prefixSessions       = "snapshots/sessions/"
)

// Exporter writes periodic snapshots of the three aggregate stores.
type Exporter struct {
	maintainer *view.Maintainer
	store      storage.ObjectStore
	interval   time.Duration

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewExporter creates an exporter snapshotting every interval.
func NewExporter(maintainer *view.Maintainer, store storage.ObjectStore, interval time.Duration) *Exporter {
	if interval <= 0 {
		interval = time.Hour
	}
	return &Exporter{
		maintainer: maintainer,
		store:      store,
		interval:   interval,
	}
}

// Start begins the snapshot loop until the context is cancelled or Stop.
func (e *Exporter) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return fmt.Errorf("snapshot: exporter already running")
	}
	ctx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	e.running = true
	e.done = make(chan struct{})
	e.mu.Unlock()

	go e.run(ctx)
	return nil
}

// Stop halts the loop and waits for an in-flight export to finish.
func (e *Exporter) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.running {
		return
	}
	e.cancel()
	<-e.done
	e.running = false
}

func (e *Exporter) run(ctx context.Context) {
	defer close(e.done)

	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := e.ExportOnce(ctx, time.Now()); err != nil {
				log.Printf("snapshot: export failed: %v", err)
			}
		}
	}
}

// ExportOnce writes one snapshot of each aggregate store, stamped with the
// given time.
func (e *Exporter) ExportOnce(ctx context.Context, now time.Time) error {
	ts := now.Unix()

	exports := []struct {
		prefix string
		value  interface{}
	}{
		{prefixEventTypeDaily, e.maintainer.EventTypeDaily().Range("", "", view.EventTypeDailyFilter{})},
		{prefixOverallDaily, e.maintainer.OverallDaily().Range("", "", view.OverallDailyFilter{})},
		{prefixSessions, e.maintainer.Sessions().Rollups()},
	}
	for _, ex := range exports {
		if err := e.write(ctx, ex.prefix, ts, ex.value); err != nil {
			return err
		}
	}
	return nil
}

func (e *Exporter) write(ctx context.Context, prefix string, ts int64, value interface{}) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("snapshot: serialize %s: %w", prefix, err)
	}
	key := fmt.Sprintf("%s%d.json.sz", prefix, ts)
	if err := e.store.Put(ctx, key, snappy.Encode(nil, payload)); err != nil {
		return fmt.Errorf("snapshot: write %s: %w", key, err)
	}
	return nil
}

// Decode decompresses and unmarshals a snapshot object into out.
func Decode(data []byte, out interface{}) error {
	payload, err := snappy.Decode(nil, data)
	if err != nil {
		return fmt.Errorf("snapshot: decompress: %w", err)
	}
	return json.Unmarshal(payload, out)
}
