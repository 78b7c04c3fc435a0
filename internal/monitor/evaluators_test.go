package monitor

import (
	"context"
	"testing"
	"time"

	"github.com/tidemark/tidemark/internal/store"
	"github.com/tidemark/tidemark/pkg/types"
)

func mustAppend(t *testing.T, s *store.EventStore, ev *types.Event) {
	t.Helper()
	if _, _, err := s.Append(ev); err != nil {
		t.Fatalf("append %s: %v", ev.EventID, err)
	}
}

func event(id string, ts int64) *types.Event {
	return &types.Event{
		EventID:   id,
		Version:   1,
		EventTime: ts,
		EventType: types.EventLogin,
		SessionID: "s-1",
		UserID:    1,
		Channel:   "web",
	}
}

func TestFreshnessClassification(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)

	cases := []struct {
		age  int64
		want types.Status
	}{
		{100, types.StatusHealthy},
		{600, types.StatusWarning},
		{4000, types.StatusCritical},
	}
	for _, c := range cases {
		events := store.NewEventStore()
		mustAppend(t, events, event("ev-1", now.Unix()-c.age))

		eval := NewFreshnessEvaluator(events, DefaultFreshnessLadder())
		obs, err := eval.Evaluate(context.Background(), now)
		if err != nil {
			t.Fatalf("evaluate: %v", err)
		}
		if len(obs) != 1 {
			t.Fatalf("expected one observation, got %d", len(obs))
		}
		if obs[0].Record.Status != c.want {
			t.Errorf("age %ds: status = %s, want %s", c.age, obs[0].Record.Status, c.want)
		}
		if obs[0].Record.Value != float64(c.age) {
			t.Errorf("age %ds: value = %v", c.age, obs[0].Record.Value)
		}
	}
}

func TestFreshnessEmptyStoreIsHealthy(t *testing.T) {
	eval := NewFreshnessEvaluator(store.NewEventStore(), DefaultFreshnessLadder())
	obs, err := eval.Evaluate(context.Background(), time.Now())
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if obs[0].Record.Status != types.StatusHealthy {
		t.Errorf("empty store should grade healthy, got %s", obs[0].Record.Status)
	}
}

func TestGapDetectionTwoHourGap(t *testing.T) {
	events := store.NewEventStore()
	mustAppend(t, events, event("ev-1", 1))
	mustAppend(t, events, event("ev-2", 7201))

	now := time.Unix(7300, 0)
	eval := NewGapEvaluator(events, 24*time.Hour, time.Hour, time.Hour)
	obs, err := eval.Evaluate(context.Background(), now)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}

	var gaps []*types.MissingEventRecord
	for _, o := range obs {
		if o.Gap != nil {
			gaps = append(gaps, o.Gap)
		}
	}
	if len(gaps) != 1 {
		t.Fatalf("expected exactly one gap record, got %d", len(gaps))
	}
	g := gaps[0]
	if g.GapStart != 1 || g.GapEnd != 7201 {
		t.Errorf("gap bounds [%d, %d], want [1, 7201]", g.GapStart, g.GapEnd)
	}
	if g.EstimatedMissing != 2 {
		t.Errorf("estimated missing = %d, want 2", g.EstimatedMissing)
	}
	if obs[0].Record.Status != types.StatusWarning {
		t.Errorf("gap run should grade warning, got %s", obs[0].Record.Status)
	}
}

func TestGapDetectionNoGapBelowThreshold(t *testing.T) {
	events := store.NewEventStore()
	mustAppend(t, events, event("ev-1", 1000))
	mustAppend(t, events, event("ev-2", 2000))
	mustAppend(t, events, event("ev-3", 4000))

	eval := NewGapEvaluator(events, 24*time.Hour, time.Hour, time.Hour)
	obs, err := eval.Evaluate(context.Background(), time.Unix(5000, 0))
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	for _, o := range obs {
		if o.Gap != nil {
			t.Errorf("unexpected gap record [%d, %d]", o.Gap.GapStart, o.Gap.GapEnd)
		}
	}
	if obs[0].Record.Status != types.StatusHealthy {
		t.Errorf("status = %s, want healthy", obs[0].Record.Status)
	}
}

func TestCompletenessGradesMissingFields(t *testing.T) {
	events := store.NewEventStore()
	now := time.Unix(1_700_000_000, 0)

	// 9 complete, 1 missing its session: 90% < 95% is critical.
	for i := 0; i < 9; i++ {
		mustAppend(t, events, event(eventID(i), now.Unix()-int64(i)))
	}
	incomplete := event("ev-bad", now.Unix()-20)
	incomplete.SessionID = ""
	mustAppend(t, events, incomplete)

	eval := NewCompletenessEvaluator(events, DefaultCompletenessLadder(), time.Hour)
	obs, err := eval.Evaluate(context.Background(), now)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if obs[0].Record.Status != types.StatusCritical {
		t.Errorf("status = %s, want critical", obs[0].Record.Status)
	}
	if obs[0].Record.Value != 90 {
		t.Errorf("value = %v, want 90", obs[0].Record.Value)
	}
}

func eventID(i int) string {
	return "ev-" + string(rune('a'+i))
}

func TestDuplicationHealthyByConstruction(t *testing.T) {
	events := store.NewEventStore()
	mustAppend(t, events, event("ev-1", 1000))
	mustAppend(t, events, event("ev-1", 1000)) // redelivery

	eval := NewDuplicationEvaluator(events)
	obs, err := eval.Evaluate(context.Background(), time.Now())
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if obs[0].Record.Status != types.StatusHealthy {
		t.Errorf("status = %s, want healthy", obs[0].Record.Status)
	}
	if obs[0].Record.Value != 0 {
		t.Errorf("value = %v, want 0", obs[0].Record.Value)
	}
}

func TestSyncLagGradedPerSource(t *testing.T) {
	progress := store.NewProgress()
	progress.ObserveSource(store.SourceDimensions, 2000)
	progress.ObserveApplied(store.SourceDimensions, 1900) // 100s: warning for dims
	progress.ObserveSource(store.SourceEvents, 2000)
	progress.ObserveApplied(store.SourceEvents, 1900) // 100s: healthy for events

	eval := NewSyncLagEvaluator(progress, DefaultSyncLagLadders())
	obs, err := eval.Evaluate(context.Background(), time.Unix(2000, 0))
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}

	bySource := map[string]Observation{}
	for _, o := range obs {
		if o.Lag == nil {
			t.Fatalf("sync-lag observation missing typed record")
		}
		bySource[o.Lag.Source] = o
	}
	if got := bySource[store.SourceDimensions].Record.Status; got != types.StatusWarning {
		t.Errorf("dimension lag status = %s, want warning", got)
	}
	if got := bySource[store.SourceEvents].Record.Status; got != types.StatusHealthy {
		t.Errorf("event lag status = %s, want healthy", got)
	}
}

func TestDriftDetectsNewAndChangedFields(t *testing.T) {
	registry := NewFieldRegistry()
	registry.ObserveEvent(&types.Event{
		EventID: "ev-1", Version: 1, EventTime: 1000, EventType: types.EventLogin,
		Attrs: map[string]interface{}{
			"campaign": "spring",       // new field, low impact
			"user_id":  "shadow-typed", // identity field re-typed: critical
		},
	})

	eval := NewDriftEvaluator(registry)
	obs, err := eval.Evaluate(context.Background(), time.Unix(2000, 0))
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}

	if obs[0].Record.Status != types.StatusCritical {
		t.Errorf("status = %s, want critical", obs[0].Record.Status)
	}

	drifts := map[string]*types.SchemaDriftRecord{}
	for _, o := range obs {
		if o.Drift != nil {
			drifts[o.Drift.FieldName] = o.Drift
		}
	}
	if d := drifts["campaign"]; d == nil || d.Change != "new_field" || d.Impact != "low" {
		t.Errorf("campaign drift = %+v", d)
	}
	if d := drifts["user_id"]; d == nil || d.Change != "type_changed" || d.Impact != "critical" {
		t.Errorf("user_id drift = %+v", d)
	}
}

func TestDriftCleanBaselineIsHealthy(t *testing.T) {
	registry := NewFieldRegistry()
	registry.ObserveEvent(event("ev-1", 1000))

	eval := NewDriftEvaluator(registry)
	obs, err := eval.Evaluate(context.Background(), time.Now())
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if len(obs) != 1 || obs[0].Record.Status != types.StatusHealthy {
		t.Errorf("clean baseline should yield one healthy record, got %+v", obs)
	}
}

func TestLoadEvaluatorGradesPreviousBucket(t *testing.T) {
	recorder := NewLoadRecorder()
	now := time.Date(2026, 8, 31, 12, 30, 0, 0, time.UTC)
	prevBucket := now.Add(-time.Hour)

	for i := 0; i < 7200; i++ {
		recorder.Record(prevBucket, false)
	}
	for i := 0; i < 10; i++ {
		recorder.Record(prevBucket, true)
	}

	eval := NewLoadEvaluator(recorder, DefaultThroughputLadder(), DefaultErrorRateLadder())
	obs, err := eval.Evaluate(context.Background(), now)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	load := obs[0].Load
	if load == nil {
		t.Fatal("missing load record")
	}
	if load.Processed != 7200 || load.Rejected != 10 {
		t.Errorf("bucket counts = %d/%d", load.Processed, load.Rejected)
	}
	if obs[0].Record.Status != types.StatusHealthy {
		t.Errorf("status = %s, want healthy (2 ev/s, 0.14%% errors)", obs[0].Record.Status)
	}
}

func TestLoadEvaluatorHighErrorRate(t *testing.T) {
	recorder := NewLoadRecorder()
	now := time.Date(2026, 8, 31, 12, 30, 0, 0, time.UTC)
	prevBucket := now.Add(-time.Hour)

	for i := 0; i < 9000; i++ {
		recorder.Record(prevBucket, false)
	}
	for i := 0; i < 1000; i++ {
		recorder.Record(prevBucket, true)
	}

	eval := NewLoadEvaluator(recorder, DefaultThroughputLadder(), DefaultErrorRateLadder())
	obs, err := eval.Evaluate(context.Background(), now)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	// 10% errors exceeds the 5% warning ceiling.
	if obs[0].Record.Status != types.StatusCritical {
		t.Errorf("status = %s, want critical", obs[0].Record.Status)
	}
}
