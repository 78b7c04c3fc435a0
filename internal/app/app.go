// Package app provides the unified application lifecycle management for Tidemark.
package app

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/tidemark/tidemark/internal/alert"
	httpapi "github.com/tidemark/tidemark/internal/api/http"
	"github.com/tidemark/tidemark/internal/bus"
	"github.com/tidemark/tidemark/internal/config"
	"github.com/tidemark/tidemark/internal/ingest"
	"github.com/tidemark/tidemark/internal/journal"
	"github.com/tidemark/tidemark/internal/monitor"
	"github.com/tidemark/tidemark/internal/server"
	"github.com/tidemark/tidemark/internal/snapshot"
	"github.com/tidemark/tidemark/internal/storage"
	"github.com/tidemark/tidemark/internal/store"
	"github.com/tidemark/tidemark/internal/view"
)

// notifierBuffer sizes the alert bus; monitor runs are low-rate.
const notifierBuffer = 256

// App manages all Tidemark service lifecycles.
type App struct {
	cfg *config.Config

	// Shared state
	events     *store.EventStore
	dims       *store.DimensionStore
	progress   *store.Progress
	maintainer *view.Maintainer
	journal    *journal.Journal
	registry   *monitor.FieldRegistry
	recorder   *monitor.LoadRecorder
	ingestor   *ingest.Ingestor
	notifier   *bus.Notifier
	records    monitor.RecordStore
	shutdown   *server.ShutdownManager

	// Service components
	httpServer *http.Server
	monitor    *monitor.Monitor
	alertSink  *alert.Sink
	exporter   *snapshot.Exporter

	// Lifecycle
	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New creates a new App with the given configuration.
func New(cfg *config.Config) (*App, error) {
	cfg.Resolve()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("failed to create directories: %w", err)
	}

	return &App{cfg: cfg}, nil
}

// Start initializes shared resources and starts all configured services.
func (a *App) Start(ctx context.Context) error {
	a.mu.Lock()
	if a.running {
		a.mu.Unlock()
		return fmt.Errorf("app is already running")
	}
	a.running = true
	a.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	if err := a.initSharedResources(ctx); err != nil {
		a.cleanup()
		return fmt.Errorf("failed to initialize shared resources: %w", err)
	}

	if a.cfg.ShouldRunMonitor() {
		if err := a.startMonitorService(); err != nil {
			a.cleanup()
			return fmt.Errorf("failed to start monitor service: %w", err)
		}
	}

	if err := a.startHTTPServer(); err != nil {
		a.cleanup()
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	if a.cfg.ShouldRunIngest() {
		a.startRetentionSweep(ctx)
		if a.cfg.Snapshot.Enabled {
			if err := a.startSnapshotExporter(ctx); err != nil {
				a.cleanup()
				return fmt.Errorf("failed to start snapshot exporter: %w", err)
			}
		}
	}

	log.Printf("Tidemark started in %s mode", a.cfg.Mode)
	return nil
}

// initSharedResources builds the stores, replays the journal, and opens the
// monitoring database.
func (a *App) initSharedResources(ctx context.Context) error {
	a.events = store.NewEventStore()
	a.dims = store.NewDimensionStore()
	a.progress = store.NewProgress()
	a.maintainer = view.NewMaintainer(a.dims, a.progress)
	a.registry = monitor.NewFieldRegistry()
	a.recorder = monitor.NewLoadRecorder()
	a.notifier = bus.NewNotifier(notifierBuffer)

	jrnl, err := journal.Open(a.cfg.Journal.Dir, a.cfg.Journal.MaxSegmentSize)
	if err != nil {
		return fmt.Errorf("failed to open journal: %w", err)
	}
	a.journal = jrnl

	a.ingestor = ingest.New(ingest.Config{
		Events:     a.events,
		Dimensions: a.dims,
		Maintainer: a.maintainer,
		Journal:    a.journal,
		Registry:   a.registry,
		Recorder:   a.recorder,
		Progress:   a.progress,
	})

	// Recover state before serving traffic.
	start := time.Now()
	if err := journal.Replay(a.cfg.Journal.Dir, a.ingestor.ReplayEntry); err != nil {
		return fmt.Errorf("failed to replay journal: %w", err)
	}
	stats := a.events.Stats()
	log.Printf("Journal replayed: %d events restored in %s", stats.Size, time.Since(start).Round(time.Millisecond))

	if a.cfg.ShouldRunMonitor() {
		records, err := monitor.NewSQLiteRecordStore(a.cfg.Monitor.DBPath)
		if err != nil {
			return fmt.Errorf("failed to open monitor database: %w", err)
		}
		a.records = records
		log.Printf("Monitor database opened: %s", a.cfg.Monitor.DBPath)
	}

	a.shutdown = server.NewShutdownManager(server.DefaultShutdownConfig())
	return nil
}

// startMonitorService registers the evaluators and starts the scheduler and
// the alert sink.
func (a *App) startMonitorService() error {
	a.monitor = monitor.New(a.records, a.notifier, a.cfg.Monitor.EvaluatorDeadline, a.cfg.Monitor.Records)

	evaluators := []monitor.Evaluator{
		monitor.NewFreshnessEvaluator(a.events, monitor.DefaultFreshnessLadder()),
		monitor.NewCompletenessEvaluator(a.events, monitor.DefaultCompletenessLadder(), a.cfg.Monitor.CompletenessWindow),
		monitor.NewDuplicationEvaluator(a.events),
		monitor.NewSyncLagEvaluator(a.progress, monitor.DefaultSyncLagLadders()),
		monitor.NewDriftEvaluator(a.registry),
		monitor.NewGapEvaluator(a.events, a.cfg.Monitor.GapWindow, a.cfg.Monitor.GapThreshold, a.cfg.Monitor.ExpectedInterArrival),
		monitor.NewLoadEvaluator(a.recorder, monitor.DefaultThroughputLadder(), monitor.DefaultErrorRateLadder()),
	}

	schedules := monitor.DefaultSchedules()
	for name, spec := range a.cfg.Monitor.Schedules {
		schedules[name] = spec
	}
	for _, ev := range evaluators {
		spec, ok := schedules[ev.Name()]
		if !ok {
			return fmt.Errorf("no schedule for evaluator %s", ev.Name())
		}
		if err := a.monitor.Register(spec, ev); err != nil {
			return err
		}
	}
	if err := a.monitor.Start(); err != nil {
		return err
	}
	log.Printf("Monitor started: %d evaluators", len(evaluators))

	forwarders := []alert.Forwarder{alert.NewLogForwarder()}
	if a.cfg.Alert.WebhookURL != "" {
		forwarders = append(forwarders, alert.NewWebhookForwarder(a.cfg.Alert.WebhookURL, 10*time.Second))
		log.Printf("Alert webhook forwarder enabled: %s", a.cfg.Alert.WebhookURL)
	}
	a.alertSink = alert.NewSink(a.cfg.AlertSinkConfig(), a.notifier, forwarders...)
	a.alertSink.Start()
	log.Printf("Alert sink started")

	return nil
}

// startHTTPServer wires the API routes for the active mode.
func (a *App) startHTTPServer() error {
	mux := http.NewServeMux()
	middleware := httpapi.ChainMiddleware(
		server.ShutdownMiddleware(a.shutdown),
		httpapi.RecoveryMiddleware,
		httpapi.RequestIDMiddleware,
		httpapi.ContentTypeMiddleware,
	)

	if a.cfg.ShouldRunIngest() {
		mux.Handle("/v1/events", middleware(httpapi.NewEventsHandler(a.ingestor)))
		mux.Handle("/v1/dimensions", middleware(httpapi.NewDimensionsHandler(a.ingestor)))
	}

	mux.Handle("/v1/aggregates/event-type-daily", middleware(httpapi.NewEventTypeDailyHandler(a.maintainer)))
	mux.Handle("/v1/aggregates/overall-daily", middleware(httpapi.NewOverallDailyHandler(a.maintainer)))
	mux.Handle("/v1/sessions/", middleware(httpapi.NewSessionHandler(a.maintainer)))
	mux.Handle("/v1/dimensions/", middleware(httpapi.NewDimensionLookupHandler(a.dims)))

	if a.records != nil {
		mux.Handle("/v1/monitor/records", middleware(httpapi.NewMonitorRecordsHandler(a.records)))
		mux.Handle("/v1/monitor/gaps", middleware(httpapi.NewMonitorGapsHandler(a.records)))
	}

	mux.Handle("/health", httpapi.NewHealthHandler(a.events, a.dims, a.maintainer))

	a.httpServer = &http.Server{
		Addr:         a.cfg.HTTP.Addr,
		Handler:      mux,
		ReadTimeout:  a.cfg.HTTP.ReadTimeout,
		WriteTimeout: a.cfg.HTTP.WriteTimeout,
		IdleTimeout:  a.cfg.HTTP.IdleTimeout,
	}

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		log.Printf("HTTP server listening on %s", a.cfg.HTTP.Addr)
		if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("HTTP server error: %v", err)
		}
	}()

	return nil
}

// startRetentionSweep periodically drops events and journal segments past the
// retention horizon.
func (a *App) startRetentionSweep(ctx context.Context) {
	horizon := time.Duration(a.cfg.Retention.EventHorizonDays) * 24 * time.Hour
	interval := a.cfg.Retention.SweepInterval
	if interval <= 0 {
		interval = time.Hour
	}

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				now := time.Now()
				swept := a.events.Sweep(now, horizon)
				removed, err := a.journal.PurgeBefore(now.Add(-horizon).Unix())
				if err != nil {
					log.Printf("Retention sweep: journal purge failed: %v", err)
				}
				if swept > 0 || removed > 0 {
					log.Printf("Retention sweep: %d events dropped, %d journal segments removed", swept, removed)
				}
			}
		}
	}()
}

// startSnapshotExporter builds the object store and starts the export loop.
func (a *App) startSnapshotExporter(ctx context.Context) error {
	var (
		objStore storage.ObjectStore
		err      error
	)
	switch a.cfg.Storage.Type {
	case "local":
		objStore, err = storage.NewLocalStore(a.cfg.Storage.Path)
	case "s3":
		objStore, err = storage.NewS3Store(ctx, a.cfg.Storage.Bucket, a.cfg.Storage.S3)
	default:
		return fmt.Errorf("unsupported storage type: %s", a.cfg.Storage.Type)
	}
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	log.Printf("Snapshot storage initialized: type=%s", a.cfg.Storage.Type)

	a.exporter = snapshot.NewExporter(a.maintainer, objStore, a.cfg.Snapshot.Interval)
	if err := a.exporter.Start(ctx); err != nil {
		return err
	}
	log.Printf("Snapshot exporter started: interval=%s", a.cfg.Snapshot.Interval)
	return nil
}

// Stop gracefully stops all services and releases resources.
func (a *App) Stop(ctx context.Context) error {
	a.mu.Lock()
	if !a.running {
		a.mu.Unlock()
		return nil
	}
	a.running = false
	a.mu.Unlock()

	log.Printf("Initiating graceful shutdown...")

	if a.cancel != nil {
		a.cancel()
	}

	// Stop producers before consumers: exporter and monitor first, then the
	// sink draining the bus.
	if a.exporter != nil {
		a.exporter.Stop()
	}
	if a.monitor != nil {
		a.monitor.Stop()
	}
	if a.alertSink != nil {
		a.alertSink.Stop()
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if a.httpServer != nil {
		if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
		}
	}

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		// All goroutines finished
	case <-shutdownCtx.Done():
		log.Printf("Shutdown timeout, some goroutines may not have finished")
	}

	a.cleanup()

	log.Printf("Tidemark stopped")
	return nil
}

// cleanup releases all shared resources.
func (a *App) cleanup() {
	if a.journal != nil {
		if err := a.journal.Close(); err != nil {
			log.Printf("Journal close error: %v", err)
		}
	}
	if a.records != nil {
		if err := a.records.Close(); err != nil {
			log.Printf("Monitor database close error: %v", err)
		}
	}
}

// WaitForShutdown blocks until a shutdown signal is received.
func (a *App) WaitForShutdown(ctx context.Context) error {
	return a.shutdown.ListenForSignals(ctx)
}
