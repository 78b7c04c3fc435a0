// Package config provides unified configuration for all Tidemark services.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/tidemark/tidemark/internal/alert"
	"github.com/tidemark/tidemark/internal/monitor"
	"github.com/tidemark/tidemark/internal/storage"
)

// Mode represents the service mode to run.
type Mode string

const (
	ModeAll     Mode = "all"
	ModeIngest  Mode = "ingest"
	ModeMonitor Mode = "monitor"
)

// Config holds the unified configuration for all Tidemark services.
type Config struct {
	// Mode specifies which services to run: all, ingest, monitor
	Mode Mode `json:"mode" yaml:"mode"`

	// DataDir is the base directory for all data files
	DataDir string `json:"data_dir" yaml:"data_dir"`

	// HTTP configuration
	HTTP HTTPConfig `json:"http" yaml:"http"`

	// Journal configuration
	Journal JournalConfig `json:"journal" yaml:"journal"`

	// Retention configuration for the raw event store
	Retention RetentionConfig `json:"retention" yaml:"retention"`

	// Monitor configuration
	Monitor MonitorConfig `json:"monitor" yaml:"monitor"`

	// Alert configuration
	Alert AlertConfig `json:"alert" yaml:"alert"`

	// Snapshot configuration
	Snapshot SnapshotConfig `json:"snapshot" yaml:"snapshot"`

	// Storage configuration for snapshot objects
	Storage StorageConfig `json:"storage" yaml:"storage"`
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	// Addr is the HTTP listen address
	Addr string `json:"addr" yaml:"addr"`

	// ReadTimeout is the HTTP read timeout
	ReadTimeout time.Duration `json:"read_timeout" yaml:"read_timeout"`

	// WriteTimeout is the HTTP write timeout
	WriteTimeout time.Duration `json:"write_timeout" yaml:"write_timeout"`

	// IdleTimeout is the HTTP idle timeout
	IdleTimeout time.Duration `json:"idle_timeout" yaml:"idle_timeout"`
}

// JournalConfig holds ingest journal configuration.
type JournalConfig struct {
	// Dir is the journal segment directory
	Dir string `json:"dir" yaml:"dir"`

	// MaxSegmentSize is the segment rotation threshold in bytes
	MaxSegmentSize int64 `json:"max_segment_size" yaml:"max_segment_size"`
}

// RetentionConfig bounds how long raw events are kept.
type RetentionConfig struct {
	// EventHorizonDays is the age in days beyond which events are swept
	EventHorizonDays int `json:"event_horizon_days" yaml:"event_horizon_days"`

	// SweepInterval is how often the sweep runs
	SweepInterval time.Duration `json:"sweep_interval" yaml:"sweep_interval"`
}

// MonitorConfig holds health monitor configuration.
type MonitorConfig struct {
	// DBPath is the SQLite monitoring database path
	DBPath string `json:"db_path" yaml:"db_path"`

	// EvaluatorDeadline bounds one evaluator run
	EvaluatorDeadline time.Duration `json:"evaluator_deadline" yaml:"evaluator_deadline"`

	// Records holds per-record-type retention windows
	Records monitor.Retention `json:"records" yaml:"records"`

	// CompletenessWindow is the trailing window graded for completeness
	CompletenessWindow time.Duration `json:"completeness_window" yaml:"completeness_window"`

	// GapWindow is the trailing window scanned for inter-event gaps
	GapWindow time.Duration `json:"gap_window" yaml:"gap_window"`

	// GapThreshold is the inter-event silence that counts as a gap
	GapThreshold time.Duration `json:"gap_threshold" yaml:"gap_threshold"`

	// ExpectedInterArrival is the mean inter-event spacing used to estimate
	// how many events a gap swallowed
	ExpectedInterArrival time.Duration `json:"expected_inter_arrival" yaml:"expected_inter_arrival"`

	// Schedules maps evaluator name to cron spec; unset entries use defaults
	Schedules map[string]string `json:"schedules" yaml:"schedules"`
}

// AlertConfig holds alert sink configuration.
type AlertConfig struct {
	// CriticalCooldown suppresses repeat critical alerts within the window
	CriticalCooldown time.Duration `json:"critical_cooldown" yaml:"critical_cooldown"`

	// WarningCooldown suppresses repeat warning alerts within the window
	WarningCooldown time.Duration `json:"warning_cooldown" yaml:"warning_cooldown"`

	// EscalateAfter re-forwards a critical alert unresolved past the window
	EscalateAfter time.Duration `json:"escalate_after" yaml:"escalate_after"`

	// WebhookURL, when set, adds a webhook forwarder next to the log forwarder
	WebhookURL string `json:"webhook_url" yaml:"webhook_url"`
}

// SnapshotConfig holds aggregate snapshot export configuration.
type SnapshotConfig struct {
	// Enabled controls whether periodic snapshot export runs
	Enabled bool `json:"enabled" yaml:"enabled"`

	// Interval is the time between exports
	Interval time.Duration `json:"interval" yaml:"interval"`
}

// StorageConfig holds object storage configuration.
type StorageConfig struct {
	// Type is the storage type: local, s3
	Type string `json:"type" yaml:"type"`

	// Path is the local storage path (for local type)
	Path string `json:"path" yaml:"path"`

	// Bucket is the S3 bucket name (for s3 type)
	Bucket string `json:"bucket" yaml:"bucket"`

	// S3 holds the S3 client settings (for s3 type)
	S3 storage.S3Config `json:"s3" yaml:"s3"`
}

// DefaultConfig returns the default configuration for local development.
func DefaultConfig() *Config {
	return &Config{
		Mode:    ModeAll,
		DataDir: "./data/tidemark",
		HTTP: HTTPConfig{
			Addr:         ":8080",
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 60 * time.Second,
			IdleTimeout:  120 * time.Second,
		},
		Journal: JournalConfig{
			Dir:            "",
			MaxSegmentSize: 64 * 1024 * 1024,
		},
		Retention: RetentionConfig{
			EventHorizonDays: 365,
			SweepInterval:    time.Hour,
		},
		Monitor: MonitorConfig{
			DBPath:               "",
			EvaluatorDeadline:    30 * time.Second,
			Records:              monitor.DefaultRetention(),
			CompletenessWindow:   24 * time.Hour,
			GapWindow:            24 * time.Hour,
			GapThreshold:         time.Hour,
			ExpectedInterArrival: time.Hour,
		},
		Alert: AlertConfig{
			CriticalCooldown: alert.DefaultCriticalCooldown,
			WarningCooldown:  alert.DefaultWarningCooldown,
			EscalateAfter:    alert.DefaultEscalateAfter,
		},
		Snapshot: SnapshotConfig{
			Enabled:  true,
			Interval: time.Hour,
		},
		Storage: StorageConfig{
			Type: "local",
			Path: "",
		},
	}
}

// Resolve resolves relative paths and sets defaults based on DataDir.
func (c *Config) Resolve() {
	if c.DataDir == "" {
		c.DataDir = "./data/tidemark"
	}

	if c.Journal.Dir == "" {
		c.Journal.Dir = filepath.Join(c.DataDir, "journal")
	}
	if c.Monitor.DBPath == "" {
		c.Monitor.DBPath = filepath.Join(c.DataDir, "monitor.db")
	}
	if c.Storage.Path == "" {
		c.Storage.Path = filepath.Join(c.DataDir, "snapshots")
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	switch c.Mode {
	case ModeAll, ModeIngest, ModeMonitor:
		// Valid modes
	default:
		return fmt.Errorf("invalid mode: %s (must be all, ingest, or monitor)", c.Mode)
	}

	if c.DataDir == "" {
		return fmt.Errorf("data_dir is required")
	}

	if c.Storage.Type != "local" && c.Storage.Type != "s3" {
		return fmt.Errorf("invalid storage type: %s (must be local or s3)", c.Storage.Type)
	}
	if c.Storage.Type == "s3" && c.Storage.Bucket == "" {
		return fmt.Errorf("storage.bucket is required when storage type is s3")
	}

	if c.Retention.EventHorizonDays <= 0 {
		return fmt.Errorf("retention.event_horizon_days must be positive, got %d", c.Retention.EventHorizonDays)
	}
	if c.Monitor.GapThreshold <= 0 {
		return fmt.Errorf("monitor.gap_threshold must be positive")
	}
	if c.Monitor.ExpectedInterArrival <= 0 {
		return fmt.Errorf("monitor.expected_inter_arrival must be positive")
	}

	for name, spec := range c.Monitor.Schedules {
		if spec == "" {
			return fmt.Errorf("monitor.schedules.%s must not be empty", name)
		}
	}

	return nil
}

// AlertSinkConfig converts the alert section to the sink's config.
func (c *Config) AlertSinkConfig() alert.Config {
	return alert.Config{
		CriticalCooldown: c.Alert.CriticalCooldown,
		WarningCooldown:  c.Alert.WarningCooldown,
		EscalateAfter:    c.Alert.EscalateAfter,
	}
}

// ShouldRunIngest returns true if the ingest surface should run.
func (c *Config) ShouldRunIngest() bool {
	return c.Mode == ModeAll || c.Mode == ModeIngest
}

// ShouldRunMonitor returns true if the health monitor should run.
func (c *Config) ShouldRunMonitor() bool {
	return c.Mode == ModeAll || c.Mode == ModeMonitor
}

// LoadFromFile loads configuration from a YAML or JSON file.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse JSON config: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config file format: %s", ext)
	}

	return cfg, nil
}

// LoadFromEnv loads configuration from environment variables.
// Environment variables use the TIDEMARK_ prefix.
func LoadFromEnv(cfg *Config) {
	if v := os.Getenv("TIDEMARK_MODE"); v != "" {
		cfg.Mode = Mode(v)
	}
	if v := os.Getenv("TIDEMARK_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}

	// HTTP configuration
	if v := os.Getenv("TIDEMARK_HTTP_ADDR"); v != "" {
		cfg.HTTP.Addr = v
	}

	// Retention configuration
	if v := os.Getenv("TIDEMARK_RETENTION_EVENT_HORIZON_DAYS"); v != "" {
		fmt.Sscanf(v, "%d", &cfg.Retention.EventHorizonDays)
	}

	// Monitor configuration
	if v := os.Getenv("TIDEMARK_MONITOR_DB_PATH"); v != "" {
		cfg.Monitor.DBPath = v
	}
	if v := os.Getenv("TIDEMARK_MONITOR_GAP_THRESHOLD"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Monitor.GapThreshold = d
		}
	}

	// Alert configuration
	if v := os.Getenv("TIDEMARK_ALERT_WEBHOOK_URL"); v != "" {
		cfg.Alert.WebhookURL = v
	}

	// Snapshot configuration
	if v := os.Getenv("TIDEMARK_SNAPSHOT_ENABLED"); v != "" {
		cfg.Snapshot.Enabled = v == "true" || v == "1"
	}
	if v := os.Getenv("TIDEMARK_SNAPSHOT_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Snapshot.Interval = d
		}
	}

	// Storage configuration
	if v := os.Getenv("TIDEMARK_STORAGE_TYPE"); v != "" {
		cfg.Storage.Type = v
	}
	if v := os.Getenv("TIDEMARK_STORAGE_PATH"); v != "" {
		cfg.Storage.Path = v
	}
	if v := os.Getenv("TIDEMARK_S3_BUCKET"); v != "" {
		cfg.Storage.Bucket = v
	}
	if v := os.Getenv("TIDEMARK_S3_REGION"); v != "" {
		cfg.Storage.S3.Region = v
	}
	if v := os.Getenv("TIDEMARK_S3_ENDPOINT"); v != "" {
		cfg.Storage.S3.Endpoint = v
	}
}

// EnsureDirectories creates all required directories.
func (c *Config) EnsureDirectories() error {
	dirs := []string{
		c.DataDir,
		c.Journal.Dir,
	}
	if c.Storage.Type == "local" {
		dirs = append(dirs, c.Storage.Path)
	}

	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return nil
}
