package ingest

import (
	"context"
	"testing"

	"github.com/tidemark/tidemark/internal/journal"
	"github.com/tidemark/tidemark/internal/monitor"
	"github.com/tidemark/tidemark/internal/store"
	"github.com/tidemark/tidemark/internal/view"
	"github.com/tidemark/tidemark/pkg/types"
)

func newTestIngestor(t *testing.T, withJournal bool) (*Ingestor, *store.EventStore, *view.Maintainer, string) {
	t.Helper()

	events := store.NewEventStore()
	dims := store.NewDimensionStore()
	m := view.NewMaintainer(dims, nil)

	var jrnl *journal.Journal
	dir := ""
	if withJournal {
		dir = t.TempDir()
		var err error
		jrnl, err = journal.Open(dir, 0)
		if err != nil {
			t.Fatalf("open journal: %v", err)
		}
		t.Cleanup(func() { jrnl.Close() })
	}

	in := New(Config{
		Events:     events,
		Dimensions: dims,
		Maintainer: m,
		Journal:    jrnl,
		Registry:   monitor.NewFieldRegistry(),
		Recorder:   monitor.NewLoadRecorder(),
		Progress:   store.NewProgress(),
	})
	return in, events, m, dir
}

func ev(id string, version, ts int64, etype types.EventType) types.Event {
	return types.Event{
		EventID:   id,
		Version:   version,
		EventTime: ts,
		EventType: etype,
		SessionID: "s-1",
		UserID:    1,
		Channel:   "web",
	}
}

func TestSubmitEventsPerItemResults(t *testing.T) {
	in, events, _, _ := newTestIngestor(t, false)

	batch := []types.Event{
		ev("ev-1", 1, 1000, types.EventSignup),
		ev("ev-1", 2, 1000, types.EventSignup), // replace
		ev("ev-1", 1, 1000, types.EventSignup), // stale
		{EventID: "", Version: 1, EventTime: 1000, EventType: types.EventLogin}, // rejected
	}
	results, err := in.SubmitEvents(context.Background(), batch)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	want := []string{StatusInserted, StatusReplaced, StatusIgnored, StatusRejected}
	for i, w := range want {
		if results[i].Status != w {
			t.Errorf("item %d status = %s, want %s", i, results[i].Status, w)
		}
	}
	if results[3].Error == "" {
		t.Error("rejected item should carry an error message")
	}

	stats := events.Stats()
	if stats.Size != 1 || stats.Rejected != 1 || stats.StaleDuplicates != 1 {
		t.Errorf("store stats = %+v", stats)
	}
}

func TestSubmitEventsFoldsIntoAggregates(t *testing.T) {
	in, _, m, _ := newTestIngestor(t, false)

	_, err := in.SubmitEvents(context.Background(), []types.Event{
		ev("ev-1", 1, 1000, types.EventSignup),
		ev("ev-2", 1, 1120, types.EventPurchase),
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	rows := m.OverallDaily().Range("", "", view.OverallDailyFilter{})
	if len(rows) != 1 || rows[0].EventCount != 2 || rows[0].ConversionCount != 1 {
		t.Errorf("rows = %+v", rows)
	}
}

func TestSubmitDimensionsLastWriterWins(t *testing.T) {
	in, _, _, _ := newTestIngestor(t, false)

	results, err := in.SubmitDimensions(context.Background(), []types.DimensionRecord{
		{UserID: 1, Version: 2, City: "Oslo", DeviceType: "ios"},
		{UserID: 1, Version: 1, City: "Bergen", DeviceType: "android"}, // stale
		{UserID: 0, Version: 1},                                       // rejected
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	want := []string{StatusApplied, StatusIgnored, StatusRejected}
	for i, w := range want {
		if results[i].Status != w {
			t.Errorf("item %d status = %s, want %s", i, results[i].Status, w)
		}
	}
}

func TestJournalReplayRestoresState(t *testing.T) {
	in, _, _, dir := newTestIngestor(t, true)

	_, err := in.SubmitEvents(context.Background(), []types.Event{
		ev("ev-1", 1, 1000, types.EventSignup),
		ev("ev-2", 1, 1120, types.EventPurchase),
	})
	if err != nil {
		t.Fatalf("submit events: %v", err)
	}
	_, err = in.SubmitDimensions(context.Background(), []types.DimensionRecord{
		{UserID: 1, Version: 1, City: "Oslo", DeviceType: "ios"},
	})
	if err != nil {
		t.Fatalf("submit dimensions: %v", err)
	}

	// A fresh process recovers from the journal alone.
	fresh, freshEvents, freshView, _ := newTestIngestor(t, false)
	err = journal.Replay(dir, fresh.ReplayEntry)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}

	if freshEvents.Stats().Size != 2 {
		t.Errorf("recovered store size = %d, want 2", freshEvents.Stats().Size)
	}
	rows := freshView.OverallDaily().Range("", "", view.OverallDailyFilter{})
	if len(rows) != 1 || rows[0].ConversionCount != 1 {
		t.Errorf("recovered rows = %+v", rows)
	}

	// Replaying twice changes nothing: the stores deduplicate.
	if err := journal.Replay(dir, fresh.ReplayEntry); err != nil {
		t.Fatalf("second replay: %v", err)
	}
	if freshEvents.Stats().Size != 2 {
		t.Errorf("size after double replay = %d", freshEvents.Stats().Size)
	}
	rows = freshView.OverallDaily().Range("", "", view.OverallDailyFilter{})
	if len(rows) != 1 || rows[0].EventCount != 2 {
		t.Errorf("rows after double replay = %+v", rows)
	}
}
