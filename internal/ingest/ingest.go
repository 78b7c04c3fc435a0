// Package ingest coordinates the write path: journal the batch, merge each
// record into the raw stores, fold accepted events into the aggregates, and
// feed the monitoring surfaces. Rejections are per item and counted; a bad
// record never fails its batch.
package ingest

import (
	"context"
	"time"

	"github.com/tidemark/tidemark/internal/journal"
	"github.com/tidemark/tidemark/internal/monitor"
	"github.com/tidemark/tidemark/internal/store"
	"github.com/tidemark/tidemark/internal/view"
	"github.com/tidemark/tidemark/pkg/types"
)

// Item statuses reported per submitted record.
const (
	StatusInserted = "inserted"
	StatusReplaced = "replaced"
	StatusIgnored  = "ignored"
	StatusRejected = "rejected"
	StatusApplied  = "applied"
)

// ItemResult reports what happened to one record of a batch.
type ItemResult struct {
	Index  int    `json:"index"`
	ID     string `json:"id,omitempty"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// Ingestor is the single write path into the pipeline. The journal, monitor
// feeds, and progress tracker are optional; nil disables them.
type Ingestor struct {
	events     *store.EventStore
	dims       *store.DimensionStore
	maintainer *view.Maintainer

	journal  *journal.Journal
	registry *monitor.FieldRegistry
	recorder *monitor.LoadRecorder
	progress *store.Progress
}

// Config carries the collaborators an Ingestor writes through.
type Config struct {
	Events     *store.EventStore
	Dimensions *store.DimensionStore
	Maintainer *view.Maintainer
	Journal    *journal.Journal
	Registry   *monitor.FieldRegistry
	Recorder   *monitor.LoadRecorder
	Progress   *store.Progress
}

// New creates an ingestor.
func New(cfg Config) *Ingestor {
	return &Ingestor{
		events:     cfg.Events,
		dims:       cfg.Dimensions,
		maintainer: cfg.Maintainer,
		journal:    cfg.Journal,
		registry:   cfg.Registry,
		recorder:   cfg.Recorder,
		progress:   cfg.Progress,
	}
}

// SubmitEvents journals and merges a batch of events. The returned results
// are index-aligned with the batch.
func (in *Ingestor) SubmitEvents(ctx context.Context, events []types.Event) ([]ItemResult, error) {
	if in.journal != nil {
		if _, err := in.journal.AppendEvents(events); err != nil {
			return nil, err
		}
	}

	results := make([]ItemResult, 0, len(events))
	for i := range events {
		results = append(results, in.applyEvent(i, &events[i], true))
	}
	return results, nil
}

// applyEvent merges one event and fans out to the aggregates and monitoring
// feeds. Journal replay passes record=false so recovered history does not
// distort the current load bucket.
func (in *Ingestor) applyEvent(index int, ev *types.Event, record bool) ItemResult {
	now := time.Now()
	if in.progress != nil && ev.EventTime > 0 {
		in.progress.ObserveSource(store.SourceEvents, ev.EventTime)
	}

	result, prev, err := in.events.Append(ev)
	if err != nil {
		if record && in.recorder != nil {
			in.recorder.Record(now, true)
		}
		return ItemResult{Index: index, ID: ev.EventID, Status: StatusRejected, Error: err.Error()}
	}
	if record && in.recorder != nil {
		in.recorder.Record(now, false)
	}

	switch result {
	case store.AppendIgnored:
		return ItemResult{Index: index, ID: ev.EventID, Status: StatusIgnored}
	case store.AppendReplaced:
		in.fold(result, prev, ev)
		return ItemResult{Index: index, ID: ev.EventID, Status: StatusReplaced}
	default:
		in.fold(result, prev, ev)
		return ItemResult{Index: index, ID: ev.EventID, Status: StatusInserted}
	}
}

func (in *Ingestor) fold(result store.AppendResult, prev, ev *types.Event) {
	if in.registry != nil {
		in.registry.ObserveEvent(ev)
	}
	if in.progress != nil {
		in.progress.ObserveApplied(store.SourceEvents, ev.EventTime)
	}
	if in.maintainer != nil {
		in.maintainer.ApplyCommit(result, prev, ev)
	}
}

// SubmitDimensions journals and applies a batch of dimension upserts.
func (in *Ingestor) SubmitDimensions(ctx context.Context, recs []types.DimensionRecord) ([]ItemResult, error) {
	if in.journal != nil {
		if _, err := in.journal.AppendDimensions(recs); err != nil {
			return nil, err
		}
	}

	now := time.Now().Unix()
	results := make([]ItemResult, 0, len(recs))
	for i := range recs {
		rec := &recs[i]
		if in.progress != nil {
			in.progress.ObserveSource(store.SourceDimensions, now)
		}
		if rec.UserID == 0 {
			results = append(results, ItemResult{Index: i, Status: StatusRejected, Error: "user_id is required"})
			continue
		}
		if in.dims.Upsert(rec) {
			if in.progress != nil {
				in.progress.ObserveApplied(store.SourceDimensions, now)
			}
			results = append(results, ItemResult{Index: i, Status: StatusApplied})
		} else {
			if in.progress != nil {
				// A stale version leaves state untouched but is not lag.
				in.progress.ObserveApplied(store.SourceDimensions, now)
			}
			results = append(results, ItemResult{Index: i, Status: StatusIgnored})
		}
	}
	return results, nil
}

// ReplayEntry applies one recovered journal entry without re-journaling it.
// The stores deduplicate, so replay after a partial flush is harmless.
func (in *Ingestor) ReplayEntry(e *journal.Entry) error {
	switch e.Kind {
	case journal.KindEvents:
		for i := range e.Events {
			in.applyEvent(i, &e.Events[i], false)
		}
	case journal.KindDimensions:
		for i := range e.Dimensions {
			rec := &e.Dimensions[i]
			if rec.UserID != 0 {
				in.dims.Upsert(rec)
			}
		}
	}
	return nil
}
