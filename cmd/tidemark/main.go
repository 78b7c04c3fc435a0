// Package main implements the unified tidemark binary.
// This binary can run the full pipeline or individual services based on the
// --mode flag.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/tidemark/tidemark/internal/app"
	"github.com/tidemark/tidemark/internal/config"
)

var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	var (
		configFile  string
		dataDir     string
		mode        string
		httpAddr    string
		showVersion bool
		showHelp    bool
	)

	flag.StringVar(&configFile, "config", "", "Path to configuration file (YAML or JSON)")
	flag.StringVar(&dataDir, "data-dir", "", "Base directory for all data files")
	flag.StringVar(&mode, "mode", "", "Service mode: all, ingest, monitor")
	flag.StringVar(&httpAddr, "http-addr", "", "HTTP listen address")
	flag.BoolVar(&showVersion, "version", false, "Show version information")
	flag.BoolVar(&showHelp, "help", false, "Show help message")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Tidemark - Incremental Insurance Event Analytics\n\n")
		fmt.Fprintf(os.Stderr, "Usage: tidemark [options]\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  tidemark --data-dir /data/tidemark\n")
		fmt.Fprintf(os.Stderr, "  tidemark --mode monitor --config /etc/tidemark/config.yaml\n")
		fmt.Fprintf(os.Stderr, "\nEnvironment Variables:\n")
		fmt.Fprintf(os.Stderr, "  TIDEMARK_MODE               Service mode (all, ingest, monitor)\n")
		fmt.Fprintf(os.Stderr, "  TIDEMARK_DATA_DIR           Base directory for data files\n")
		fmt.Fprintf(os.Stderr, "  TIDEMARK_HTTP_ADDR          HTTP listen address\n")
		fmt.Fprintf(os.Stderr, "  TIDEMARK_STORAGE_TYPE       Snapshot storage type (local, s3)\n")
		fmt.Fprintf(os.Stderr, "  TIDEMARK_ALERT_WEBHOOK_URL  Webhook URL for alert delivery\n")
	}

	flag.Parse()

	if showHelp {
		flag.Usage()
		os.Exit(0)
	}

	if showVersion {
		fmt.Printf("tidemark version %s (commit: %s)\n", version, commit)
		os.Exit(0)
	}

	// A local .env is optional; environment always wins over file config.
	if err := godotenv.Load(); err == nil {
		log.Printf("Loaded environment from .env")
	}

	cfg, err := loadConfig(configFile, dataDir, mode, httpAddr)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	printBanner(cfg)

	application, err := app.New(cfg)
	if err != nil {
		log.Fatalf("Failed to create application: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := application.Start(ctx); err != nil {
		log.Fatalf("Failed to start application: %v", err)
	}

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	sig := <-sigCh
	log.Printf("Received signal: %v", sig)

	if err := application.Stop(context.Background()); err != nil {
		log.Printf("Shutdown error: %v", err)
		os.Exit(1)
	}
}

// loadConfig loads configuration from file, environment, and command line flags.
func loadConfig(configFile, dataDir, mode, httpAddr string) (*config.Config, error) {
	var cfg *config.Config
	var err error

	// Start with defaults or load from file
	if configFile != "" {
		cfg, err = config.LoadFromFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	} else {
		cfg = config.DefaultConfig()
	}

	// Apply environment variables
	config.LoadFromEnv(cfg)

	// Apply command line flags (highest priority)
	if dataDir != "" {
		cfg.DataDir = dataDir
	}
	if mode != "" {
		cfg.Mode = config.Mode(mode)
	}
	if httpAddr != "" {
		cfg.HTTP.Addr = httpAddr
	}

	// Resolve derived paths so the banner shows the effective layout.
	cfg.Resolve()

	return cfg, nil
}

// printBanner prints the startup banner with configuration summary.
func printBanner(cfg *config.Config) {
	log.Printf("╔═══════════════════════════════════════════════════════════╗")
	log.Printf("║                       TIDEMARK                            ║")
	log.Printf("║       Incremental Insurance Event Analytics Pipeline      ║")
	log.Printf("╚═══════════════════════════════════════════════════════════╝")
	log.Printf("")
	log.Printf("Configuration:")
	log.Printf("  Mode:     %s", cfg.Mode)
	log.Printf("  Data Dir: %s", cfg.DataDir)
	log.Printf("  HTTP:     %s", cfg.HTTP.Addr)
	log.Printf("")

	if cfg.ShouldRunIngest() {
		log.Printf("Ingest Service:")
		log.Printf("  Journal: %s", cfg.Journal.Dir)
		log.Printf("  Event Retention: %d days", cfg.Retention.EventHorizonDays)
		if cfg.Snapshot.Enabled {
			log.Printf("  Snapshots: every %v to %s storage", cfg.Snapshot.Interval, cfg.Storage.Type)
		}
	}

	if cfg.ShouldRunMonitor() {
		log.Printf("Monitor Service:")
		log.Printf("  Database: %s", cfg.Monitor.DBPath)
		log.Printf("  Evaluator Deadline: %v", cfg.Monitor.EvaluatorDeadline)
	}

	log.Printf("")
}
