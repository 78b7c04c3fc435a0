package store

import (
	"context"
	"testing"
	"time"

	"github.com/tidemark/tidemark/internal/errors"
	"github.com/tidemark/tidemark/pkg/types"
)

func makeEvent(id string, version, ts int64) *types.Event {
	return &types.Event{
		EventID:       id,
		Version:       version,
		EventTime:     ts,
		EventType:     types.EventQuote,
		SessionID:     "sess-" + id,
		UserID:        1,
		PremiumAmount: 100,
		Channel:       "web",
	}
}

func TestAppendInsert(t *testing.T) {
	s := NewEventStore()

	res, prev, err := s.Append(makeEvent("e1", 1, 1000))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res != AppendInserted || prev != nil {
		t.Errorf("expected insert with no previous, got %v / %v", res, prev)
	}

	if got := s.Stats().Size; got != 1 {
		t.Errorf("expected size 1, got %d", got)
	}
}

func TestAppendHigherVersionWins(t *testing.T) {
	s := NewEventStore()
	s.Append(makeEvent("e1", 1, 1000))

	newer := makeEvent("e1", 2, 1000)
	newer.PremiumAmount = 250
	res, prev, err := s.Append(newer)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res != AppendReplaced {
		t.Fatalf("expected replace, got %v", res)
	}
	if prev == nil || prev.Version != 1 {
		t.Errorf("expected previous version 1, got %+v", prev)
	}

	cur, _ := s.Get("e1")
	if cur.PremiumAmount != 250 {
		t.Errorf("expected surviving premium 250, got %d", cur.PremiumAmount)
	}
}

func TestAppendLowerVersionIgnored(t *testing.T) {
	s := NewEventStore()
	s.Append(makeEvent("e1", 5, 1000))

	res, _, err := s.Append(makeEvent("e1", 3, 1000))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res != AppendIgnored {
		t.Errorf("expected stale duplicate to be ignored, got %v", res)
	}

	cur, _ := s.Get("e1")
	if cur.Version != 5 {
		t.Errorf("expected version 5 to survive, got %d", cur.Version)
	}
}

func TestIdenticalRedeliveryIsIdempotent(t *testing.T) {
	s := NewEventStore()
	ev := makeEvent("e2", 1, 2000)
	s.Append(ev)
	before := s.Stats()

	res, _, err := s.Append(makeEvent("e2", 1, 2000))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res != AppendIgnored {
		t.Errorf("expected identical redelivery to be ignored, got %v", res)
	}

	after := s.Stats()
	if after.Size != before.Size || after.Accepted != before.Accepted {
		t.Errorf("store changed on redelivery: before=%+v after=%+v", before, after)
	}
	if after.StaleDuplicates != before.StaleDuplicates+1 {
		t.Error("expected redelivery to be counted as a stale duplicate")
	}
}

func TestRejectMalformed(t *testing.T) {
	s := NewEventStore()

	cases := []*types.Event{
		{Version: 1, EventTime: 1000, EventType: types.EventLogin},                            // no id
		{EventID: "x", Version: 1, EventType: types.EventLogin},                               // no timestamp
		{EventID: "y", Version: 1, EventTime: 1000, EventType: types.EventType("refund")},     // unknown type
	}

	for i, ev := range cases {
		_, _, err := s.Append(ev)
		if err == nil {
			t.Errorf("case %d: expected validation error", i)
			continue
		}
		if !errors.IsValidation(err) {
			t.Errorf("case %d: expected VALIDATION category, got %v", i, err)
		}
	}

	stats := s.Stats()
	if stats.Rejected != int64(len(cases)) {
		t.Errorf("expected %d rejections counted, got %d", len(cases), stats.Rejected)
	}
	if stats.Size != 0 {
		t.Errorf("malformed events must not enter the store, size=%d", stats.Size)
	}
}

func TestScanOrderedByTimestamp(t *testing.T) {
	s := NewEventStore()

	// Out-of-order delivery.
	s.Append(makeEvent("c", 1, 3000))
	s.Append(makeEvent("a", 1, 1000))
	s.Append(makeEvent("b", 1, 2000))

	var times []int64
	err := s.Scan(context.Background(), ScanOptions{}, func(ev *types.Event) bool {
		times = append(times, ev.EventTime)
		return true
	})
	if err != nil {
		t.Fatalf("scan failed: %v", err)
	}

	want := []int64{1000, 2000, 3000}
	if len(times) != len(want) {
		t.Fatalf("expected %d events, got %d", len(want), len(times))
	}
	for i := range want {
		if times[i] != want[i] {
			t.Errorf("position %d: expected %d, got %d", i, want[i], times[i])
		}
	}
}

func TestScanBoundsAndSessionFilter(t *testing.T) {
	s := NewEventStore()
	for i := int64(0); i < 10; i++ {
		s.Append(makeEvent(string(rune('a'+i)), 1, 1000+i*100))
	}

	var count int
	s.Scan(context.Background(), ScanOptions{From: 1200, To: 1500}, func(ev *types.Event) bool {
		if ev.EventTime < 1200 || ev.EventTime >= 1500 {
			t.Errorf("event outside window: %d", ev.EventTime)
		}
		count++
		return true
	})
	if count != 3 {
		t.Errorf("expected 3 events in [1200,1500), got %d", count)
	}

	var sessCount int
	s.Scan(context.Background(), ScanOptions{SessionID: "sess-c"}, func(ev *types.Event) bool {
		sessCount++
		return true
	})
	if sessCount != 1 {
		t.Errorf("expected 1 event for session, got %d", sessCount)
	}
}

func TestScanEarlyStop(t *testing.T) {
	s := NewEventStore()
	for i := int64(0); i < 5; i++ {
		s.Append(makeEvent(string(rune('a'+i)), 1, 1000+i))
	}

	var seen int
	s.Scan(context.Background(), ScanOptions{}, func(ev *types.Event) bool {
		seen++
		return seen < 2
	})
	if seen != 2 {
		t.Errorf("expected visitor to stop after 2, saw %d", seen)
	}
}

func TestSweepRemovesOldEvents(t *testing.T) {
	s := NewEventStore()
	now := time.Now()

	old := makeEvent("old", 1, now.Add(-400*24*time.Hour).Unix())
	recent := makeEvent("recent", 1, now.Add(-time.Hour).Unix())
	s.Append(old)
	s.Append(recent)

	removed := s.Sweep(now, 365*24*time.Hour)
	if removed != 1 {
		t.Errorf("expected 1 event swept, got %d", removed)
	}
	if _, ok := s.Get("old"); ok {
		t.Error("expected old event to be removed")
	}
	if _, ok := s.Get("recent"); !ok {
		t.Error("expected recent event to survive")
	}
}

func TestCountDuplicateSurvivors(t *testing.T) {
	s := NewEventStore()
	s.Append(makeEvent("e1", 1, 1000))
	s.Append(makeEvent("e1", 2, 1000))
	s.Append(makeEvent("e2", 1, 2000))

	if got := s.CountDuplicateSurvivors(); got != 0 {
		t.Errorf("merge must leave zero duplicate survivors, got %d", got)
	}
}

func TestConcurrentAppendAndScan(t *testing.T) {
	s := NewEventStore()
	done := make(chan bool)

	for w := 0; w < 4; w++ {
		go func(w int) {
			for i := 0; i < 200; i++ {
				ev := makeEvent(string(rune('a'+w))+"-"+string(rune('0'+i%10)), int64(i), int64(1000+i))
				s.Append(ev)
			}
			done <- true
		}(w)
	}
	go func() {
		for i := 0; i < 50; i++ {
			s.Scan(context.Background(), ScanOptions{}, func(ev *types.Event) bool { return true })
		}
		done <- true
	}()

	for i := 0; i < 5; i++ {
		<-done
	}

	if s.CountDuplicateSurvivors() != 0 {
		t.Error("concurrent appends produced duplicate survivors")
	}
}
