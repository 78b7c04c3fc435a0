package alert

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/tidemark/tidemark/internal/bus"
	"github.com/tidemark/tidemark/pkg/types"
)

func jsonDecode(r *http.Request, v interface{}) error {
	return json.NewDecoder(r.Body).Decode(v)
}

type captureForwarder struct {
	mu     sync.Mutex
	alerts []Alert
}

func (c *captureForwarder) Forward(_ context.Context, a Alert) error {
	c.mu.Lock()
	c.alerts = append(c.alerts, a)
	c.mu.Unlock()
	return nil
}

func (c *captureForwarder) all() []Alert {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Alert{}, c.alerts...)
}

func rec(component, metric string, status types.Status) types.HealthRecord {
	return types.HealthRecord{
		ID:         "r-1",
		Component:  component,
		Metric:     metric,
		Status:     status,
		AlertLevel: status.AlertLevel(),
	}
}

func newTestSink(fwd Forwarder) *Sink {
	return NewSink(Config{}, bus.NewNotifier(4), fwd)
}

func TestHealthyRecordsAreNotForwarded(t *testing.T) {
	fwd := &captureForwarder{}
	s := newTestSink(fwd)

	s.Consume(context.Background(), rec("event_store", "freshness_seconds", types.StatusHealthy), time.Now())

	if len(fwd.all()) != 0 {
		t.Error("healthy record should not be forwarded")
	}
}

func TestCooldownSuppressesRepeat(t *testing.T) {
	fwd := &captureForwarder{}
	s := newTestSink(fwd)
	ctx := context.Background()

	now := time.Unix(1000, 0)
	critical := rec("event_store", "freshness_seconds", types.StatusCritical)

	s.Consume(ctx, critical, now)
	s.Consume(ctx, critical, now.Add(time.Minute))   // inside 5m cool-down
	s.Consume(ctx, critical, now.Add(6*time.Minute)) // outside

	alerts := fwd.all()
	if len(alerts) != 2 {
		t.Fatalf("expected 2 forwards, got %d", len(alerts))
	}
	if alerts[0].ID == alerts[1].ID {
		t.Error("each forward should carry a distinct alert ID")
	}
}

func TestWarningCooldownIsLonger(t *testing.T) {
	fwd := &captureForwarder{}
	s := newTestSink(fwd)
	ctx := context.Background()

	now := time.Unix(1000, 0)
	warning := rec("event_store", "completeness_percent", types.StatusWarning)

	s.Consume(ctx, warning, now)
	s.Consume(ctx, warning, now.Add(30*time.Minute)) // inside 1h cool-down
	s.Consume(ctx, warning, now.Add(61*time.Minute))

	if got := len(fwd.all()); got != 2 {
		t.Errorf("expected 2 forwards, got %d", got)
	}
}

func TestDistinctLevelsDedupedSeparately(t *testing.T) {
	fwd := &captureForwarder{}
	s := newTestSink(fwd)
	ctx := context.Background()
	now := time.Unix(1000, 0)

	s.Consume(ctx, rec("event_store", "freshness_seconds", types.StatusWarning), now)
	s.Consume(ctx, rec("event_store", "freshness_seconds", types.StatusCritical), now.Add(time.Second))

	if got := len(fwd.all()); got != 2 {
		t.Errorf("warning and critical are separate alerts, got %d forwards", got)
	}
}

func TestHealthyResolvesActiveAlert(t *testing.T) {
	fwd := &captureForwarder{}
	s := newTestSink(fwd)
	ctx := context.Background()
	now := time.Unix(1000, 0)

	critical := rec("event_store", "freshness_seconds", types.StatusCritical)
	s.Consume(ctx, critical, now)
	if s.ActiveCount() != 1 {
		t.Fatalf("active = %d, want 1", s.ActiveCount())
	}

	s.Consume(ctx, rec("event_store", "freshness_seconds", types.StatusHealthy), now.Add(time.Minute))
	if s.ActiveCount() != 0 {
		t.Errorf("healthy record should resolve, active = %d", s.ActiveCount())
	}

	// A new degradation after resolution forwards immediately.
	s.Consume(ctx, critical, now.Add(2*time.Minute))
	if got := len(fwd.all()); got != 2 {
		t.Errorf("expected forward after resolution, got %d total", got)
	}
}

func TestEscalationAfterUnresolvedWindow(t *testing.T) {
	fwd := &captureForwarder{}
	s := newTestSink(fwd)
	ctx := context.Background()
	now := time.Unix(1000, 0)

	s.Consume(ctx, rec("event_store", "freshness_seconds", types.StatusCritical), now)

	s.Escalate(ctx, now.Add(10*time.Minute)) // before the 15m window
	s.Escalate(ctx, now.Add(16*time.Minute))
	s.Escalate(ctx, now.Add(20*time.Minute)) // escalates only once

	alerts := fwd.all()
	if len(alerts) != 2 {
		t.Fatalf("expected initial + one escalation, got %d", len(alerts))
	}
	if alerts[0].Escalated || !alerts[1].Escalated {
		t.Errorf("escalation flags wrong: %v, %v", alerts[0].Escalated, alerts[1].Escalated)
	}
}

func TestWarningsDoNotEscalate(t *testing.T) {
	fwd := &captureForwarder{}
	s := newTestSink(fwd)
	ctx := context.Background()
	now := time.Unix(1000, 0)

	s.Consume(ctx, rec("event_store", "completeness_percent", types.StatusWarning), now)
	s.Escalate(ctx, now.Add(time.Hour))

	if got := len(fwd.all()); got != 1 {
		t.Errorf("warnings never escalate, got %d forwards", got)
	}
}

func TestSinkConsumesFromBus(t *testing.T) {
	fwd := &captureForwarder{}
	notifier := bus.NewNotifier(4)
	s := NewSink(Config{}, notifier, fwd)
	s.Start()
	defer s.Stop()

	notifier.Publish(rec("event_store", "freshness_seconds", types.StatusCritical))

	deadline := time.After(2 * time.Second)
	for {
		if len(fwd.all()) == 1 {
			return
		}
		select {
		case <-deadline:
			t.Fatal("alert never arrived from the bus")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestWebhookForwarderPosts(t *testing.T) {
	var got Alert
	done := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("content type = %s", ct)
		}
		if err := jsonDecode(r, &got); err != nil {
			t.Errorf("decode: %v", err)
		}
		close(done)
	}))
	defer srv.Close()

	f := NewWebhookForwarder(srv.URL, time.Second)
	a := Alert{ID: "a-1", Record: rec("event_store", "freshness_seconds", types.StatusCritical)}
	if err := f.Forward(context.Background(), a); err != nil {
		t.Fatalf("forward: %v", err)
	}

	<-done
	if got.ID != "a-1" {
		t.Errorf("delivered alert ID = %s", got.ID)
	}
}
