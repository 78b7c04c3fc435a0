package monitor

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/tidemark/tidemark/internal/bus"
	"github.com/tidemark/tidemark/internal/errors"
	"github.com/tidemark/tidemark/pkg/types"
)

// DefaultEvaluatorDeadline bounds a single evaluator run.
const DefaultEvaluatorDeadline = 30 * time.Second

// DefaultSchedules maps evaluator names to cron specs. Freshness and lag run
// tight; structural checks are cheap but change slowly.
func DefaultSchedules() map[string]string {
	return map[string]string{
		"freshness":        "@every 1m",
		"completeness":     "@every 5m",
		"duplication":      "@every 5m",
		"sync_lag":         "@every 1m",
		"schema_drift":     "@daily",
		"event_gaps":       "@every 5m",
		"load_performance": "@hourly",
	}
}

// Monitor schedules the evaluators, commits their observations to the record
// store, and publishes graded records on the bus for the alert sink.
// Evaluator runs are isolated: a panic or deadline in one run produces a
// record and never touches another evaluator.
type Monitor struct {
	records   RecordStore
	notifier  *bus.Notifier
	deadline  time.Duration
	retention Retention

	cron *cron.Cron

	mu      sync.Mutex
	running bool
}

// New creates a monitor committing to records and publishing to notifier.
// notifier may be nil when no alert sink is wired.
func New(records RecordStore, notifier *bus.Notifier, deadline time.Duration, retention Retention) *Monitor {
	if deadline <= 0 {
		deadline = DefaultEvaluatorDeadline
	}
	return &Monitor{
		records:   records,
		notifier:  notifier,
		deadline:  deadline,
		retention: retention,
		cron:      cron.New(),
	}
}

// Register schedules an evaluator. The spec is a cron expression or a
// descriptor like "@every 1m".
func (m *Monitor) Register(spec string, ev Evaluator) error {
	_, err := m.cron.AddFunc(spec, func() {
		m.RunOnce(ev, time.Now())
	})
	if err != nil {
		return errors.NewConfigError(errors.CodeInvalidConfig,
			fmt.Sprintf("bad schedule %q for evaluator %s: %v", spec, ev.Name(), err))
	}
	return nil
}

// Start begins the evaluator schedules and the daily retention purge.
func (m *Monitor) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return fmt.Errorf("monitor: already running")
	}
	if _, err := m.cron.AddFunc("@daily", m.runPurge); err != nil {
		return err
	}
	m.cron.Start()
	m.running = true
	return nil
}

// Stop halts the schedules and waits for in-flight runs to finish.
func (m *Monitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.running {
		return
	}
	<-m.cron.Stop().Done()
	m.running = false
}

// RunOnce executes one evaluator run at the given instant, with deadline and
// panic isolation. Exceeding the deadline cancels the run and commits a
// gave-up record; the next scheduled run is the retry.
func (m *Monitor) RunOnce(ev Evaluator, now time.Time) {
	ctx, cancel := context.WithTimeout(context.Background(), m.deadline)
	defer cancel()

	type outcome struct {
		obs []Observation
		err error
	}
	done := make(chan outcome, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: errors.NewMonitorError(errors.CodeEvaluatorPanic,
					fmt.Sprintf("evaluator %s panicked: %v", ev.Name(), r), nil)}
			}
		}()
		obs, err := ev.Evaluate(ctx, now)
		done <- outcome{obs: obs, err: err}
	}()

	select {
	case <-ctx.Done():
		log.Printf("monitor: %s gave up: deadline %s exceeded", ev.Name(), m.deadline)
		m.commit(observation("monitor", ev.Name(), m.deadline.Seconds(), types.StatusWarning,
			m.deadline.Seconds(), "monitor gave up: evaluator run exceeded deadline", now))
		return

	case out := <-done:
		if out.err != nil {
			if errors.IsRetryable(out.err) {
				// Transient store trouble is not a data-quality failure;
				// skip this run and let the schedule retry.
				log.Printf("monitor: %s skipped: %v", ev.Name(), out.err)
				return
			}
			log.Printf("monitor: %s failed: %v", ev.Name(), out.err)
			m.commit(observation("monitor", ev.Name(), 0, types.StatusCritical, 0,
				out.err.Error(), now))
			return
		}
		for _, obs := range out.obs {
			m.commit(obs)
		}
	}
}

// commit assigns the record its identifier, persists the observation, and
// publishes the health record for alerting.
func (m *Monitor) commit(obs Observation) {
	if obs.Record.Component != "" && obs.Record.ID == "" {
		obs.Record.ID = uuid.NewString()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := m.records.SaveObservation(ctx, obs); err != nil {
		log.Printf("monitor: persist observation for %s/%s: %v",
			obs.Record.Component, obs.Record.Metric, err)
	}

	if m.notifier != nil && obs.Record.Component != "" {
		m.notifier.Publish(obs.Record)
	}
}

// runPurge applies the retention windows to the record store.
func (m *Monitor) runPurge() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	n, err := m.records.Purge(ctx, time.Now(), m.retention)
	if err != nil {
		log.Printf("monitor: retention purge: %v", err)
		return
	}
	if n > 0 {
		log.Printf("monitor: retention purge removed %d records", n)
	}
}
