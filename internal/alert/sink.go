// Package alert consumes graded health records and forwards the ones worth
// waking someone for. Delivery is deduplicated per (component, metric, level)
// under a cool-down, unresolved criticals escalate, and a healthy record for
// the same component and metric resolves the alert.
package alert

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tidemark/tidemark/internal/bus"
	"github.com/tidemark/tidemark/pkg/types"
)

// Default dedup and escalation windows.
const (
	DefaultCriticalCooldown = 5 * time.Minute
	DefaultWarningCooldown  = time.Hour
	DefaultEscalateAfter    = 15 * time.Minute
)

// Alert is one notification handed to the forwarders.
type Alert struct {
	ID        string             `json:"id"`
	Record    types.HealthRecord `json:"record"`
	Escalated bool               `json:"escalated"`
	FirstSeen int64              `json:"first_seen"`
}

// Forwarder delivers an alert to an external notification boundary.
type Forwarder interface {
	Forward(ctx context.Context, a Alert) error
}

type alertKey struct {
	component string
	metric    string
	level     int
}

type activeAlert struct {
	firstSeen     time.Time
	lastForwarded time.Time
	escalated     bool
	record        types.HealthRecord
}

// Config tunes the sink's dedup and escalation behavior. Zero values take
// the defaults.
type Config struct {
	CriticalCooldown time.Duration `yaml:"critical_cooldown" json:"critical_cooldown"`
	WarningCooldown  time.Duration `yaml:"warning_cooldown" json:"warning_cooldown"`
	EscalateAfter    time.Duration `yaml:"escalate_after" json:"escalate_after"`
}

func (c *Config) withDefaults() Config {
	out := *c
	if out.CriticalCooldown <= 0 {
		out.CriticalCooldown = DefaultCriticalCooldown
	}
	if out.WarningCooldown <= 0 {
		out.WarningCooldown = DefaultWarningCooldown
	}
	if out.EscalateAfter <= 0 {
		out.EscalateAfter = DefaultEscalateAfter
	}
	return out
}

// Sink subscribes to the health-record bus and drives the forwarders.
type Sink struct {
	cfg        Config
	notifier   *bus.Notifier
	forwarders []Forwarder

	mu     sync.Mutex
	active map[alertKey]*activeAlert

	cancel context.CancelFunc
	done   chan struct{}
}

// NewSink creates a sink delivering through the given forwarders.
func NewSink(cfg Config, notifier *bus.Notifier, forwarders ...Forwarder) *Sink {
	return &Sink{
		cfg:        cfg.withDefaults(),
		notifier:   notifier,
		forwarders: forwarders,
		active:     make(map[alertKey]*activeAlert),
	}
}

// Start subscribes to the bus and runs the delivery loop until Stop.
func (s *Sink) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})

	sub := s.notifier.Subscribe("alert-sink")
	go s.run(ctx, sub.Ch)
}

// Stop unsubscribes and waits for the loop to drain.
func (s *Sink) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	s.notifier.Unsubscribe("alert-sink")
	<-s.done
}

func (s *Sink) run(ctx context.Context, ch <-chan types.HealthRecord) {
	defer close(s.done)

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case rec, ok := <-ch:
			if !ok {
				return
			}
			s.Consume(ctx, rec, time.Now())
		case <-ticker.C:
			s.Escalate(ctx, time.Now())
		}
	}
}

// Consume processes one health record at the given instant: resolving on
// healthy, forwarding on level >= 1 outside the cool-down.
func (s *Sink) Consume(ctx context.Context, rec types.HealthRecord, now time.Time) {
	if rec.AlertLevel == 0 {
		s.resolve(rec)
		return
	}

	key := alertKey{component: rec.Component, metric: rec.Metric, level: rec.AlertLevel}

	s.mu.Lock()
	state, exists := s.active[key]
	if exists && now.Sub(state.lastForwarded) < s.cooldown(rec.AlertLevel) {
		state.record = rec
		s.mu.Unlock()
		return
	}
	if !exists {
		state = &activeAlert{firstSeen: now}
		s.active[key] = state
	}
	state.lastForwarded = now
	state.record = rec
	firstSeen := state.firstSeen
	s.mu.Unlock()

	s.forward(ctx, Alert{
		ID:        uuid.NewString(),
		Record:    rec,
		FirstSeen: firstSeen.Unix(),
	})
}

// resolve clears active alerts for the record's component and metric at
// every level.
func (s *Sink) resolve(rec types.HealthRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for level := 1; level <= 2; level++ {
		key := alertKey{component: rec.Component, metric: rec.Metric, level: level}
		if _, ok := s.active[key]; ok {
			delete(s.active, key)
			log.Printf("alert: resolved %s/%s level %d", rec.Component, rec.Metric, level)
		}
	}
}

// Escalate re-forwards critical alerts that stayed unresolved past the
// escalation window, once, at higher urgency.
func (s *Sink) Escalate(ctx context.Context, now time.Time) {
	var due []Alert

	s.mu.Lock()
	for key, state := range s.active {
		if key.level < 2 || state.escalated {
			continue
		}
		if now.Sub(state.firstSeen) < s.cfg.EscalateAfter {
			continue
		}
		state.escalated = true
		state.lastForwarded = now
		due = append(due, Alert{
			ID:        uuid.NewString(),
			Record:    state.record,
			Escalated: true,
			FirstSeen: state.firstSeen.Unix(),
		})
	}
	s.mu.Unlock()

	for _, a := range due {
		s.forward(ctx, a)
	}
}

// ActiveCount returns the number of currently active alerts.
func (s *Sink) ActiveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.active)
}

func (s *Sink) cooldown(level int) time.Duration {
	if level >= 2 {
		return s.cfg.CriticalCooldown
	}
	return s.cfg.WarningCooldown
}

func (s *Sink) forward(ctx context.Context, a Alert) {
	for _, f := range s.forwarders {
		if err := f.Forward(ctx, a); err != nil {
			log.Printf("alert: forward %s/%s: %v", a.Record.Component, a.Record.Metric, err)
		}
	}
}
