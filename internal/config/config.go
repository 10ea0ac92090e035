// Package config loads this client's YAML configuration, with optional
// hot-reload via fsnotify.
package config

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// BackendConfig configures the S3-compatible backend cmd/mirror republishes
// decoded depot chunks into.
type BackendConfig struct {
	Provider  string `yaml:"provider"`
	Region    string `yaml:"region"`
	Endpoint  string `yaml:"endpoint"`
	Bucket    string `yaml:"bucket"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
}

// SinkConfig configures where audit events are written.
type SinkConfig struct {
	Type          string            `yaml:"type"` // "stdout", "file", "http"
	Endpoint      string            `yaml:"endpoint"`
	Headers       map[string]string `yaml:"headers"`
	FilePath      string            `yaml:"file_path"`
	BatchSize     int               `yaml:"batch_size"`
	FlushInterval time.Duration     `yaml:"flush_interval"`
	RetryCount    int               `yaml:"retry_count"`
	RetryBackoff  time.Duration     `yaml:"retry_backoff"`
}

// AuditConfig configures the audit trail for control-plane and edge calls.
type AuditConfig struct {
	Enabled            bool       `yaml:"enabled"`
	MaxEvents          int        `yaml:"max_events"`
	RedactMetadataKeys []string   `yaml:"redact_metadata_keys"`
	Sink               SinkConfig `yaml:"sink"`
}

// CacheConfig selects and configures the ephemeral control-plane cache.
type CacheConfig struct {
	Type      string        `yaml:"type"` // "memory" or "redis"
	RedisAddr string        `yaml:"redis_addr"`
	KeyPrefix string        `yaml:"key_prefix"`
	TTL       time.Duration `yaml:"ttl"`
}

// TracingConfig selects the OpenTelemetry exporter used by internal/tracing.
type TracingConfig struct {
	Enabled        bool   `yaml:"enabled"`
	ServiceName    string `yaml:"service_name"`
	Exporter       string `yaml:"exporter"` // "stdout", "otlp", "jaeger", "none"
	OTLPEndpoint   string `yaml:"otlp_endpoint"`
	JaegerEndpoint string `yaml:"jaeger_endpoint"`
}

// MetricsConfig configures the Prometheus metrics surface.
type MetricsConfig struct {
	Enabled    bool   `yaml:"enabled"`
	ListenAddr string `yaml:"listen_addr"`
}

// Config is the top-level configuration for the CDN client and its cmd/
// tools.
type Config struct {
	CellID          uint32        `yaml:"cell_id"`
	ControlPlaneURL string        `yaml:"control_plane_url"`
	LogLevel        string        `yaml:"log_level"`
	Backend         BackendConfig `yaml:"backend"`
	Audit           AuditConfig   `yaml:"audit"`
	Cache           CacheConfig   `yaml:"cache"`
	Tracing         TracingConfig `yaml:"tracing"`
	Metrics         MetricsConfig `yaml:"metrics"`
}

// Default returns a Config with the defaults this client falls back to when
// no file is present.
func Default() *Config {
	return &Config{
		ControlPlaneURL: "https://api.steampowered.com",
		LogLevel:        "info",
		Cache:           CacheConfig{Type: "memory", TTL: 60 * time.Second},
		Tracing:         TracingConfig{Exporter: "none", ServiceName: "steam-cdn-client"},
		Metrics:         MetricsConfig{Enabled: true, ListenAddr: ":9090"},
		Audit:           AuditConfig{MaxEvents: 1000, Sink: SinkConfig{Type: "stdout"}},
	}
}

// Load reads and parses a YAML config file at path, filling unset fields
// from Default().
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	return cfg, nil
}

// Watcher reloads a Config from disk whenever the underlying file changes,
// invoking onChange with the freshly parsed Config. Parse errors on reload
// are dropped (the previous config keeps serving) rather than propagated,
// since there is no caller on the other end of a background fsnotify event
// to hand the error to.
type Watcher struct {
	mu     sync.RWMutex
	path   string
	cfg    *Config
	fsw    *fsnotify.Watcher
	closed chan struct{}
}

// Watch loads path once, then starts watching it for changes.
func Watch(path string, onChange func(*Config)) (*Watcher, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("config: creating watcher: %w", err)
	}
	if err := fsw.Add(path); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("config: watching %s: %w", path, err)
	}

	w := &Watcher{path: path, cfg: cfg, fsw: fsw, closed: make(chan struct{})}
	go w.run(onChange)
	return w, nil
}

func (w *Watcher) run(onChange func(*Config)) {
	for {
		select {
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			cfg, err := Load(w.path)
			if err != nil {
				continue
			}
			w.mu.Lock()
			w.cfg = cfg
			w.mu.Unlock()
			if onChange != nil {
				onChange(cfg)
			}
		case _, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
		case <-w.closed:
			return
		}
	}
}

// Current returns the most recently loaded Config.
func (w *Watcher) Current() *Config {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.cfg
}

// Close stops watching and releases the underlying fsnotify watcher.
func (w *Watcher) Close() error {
	close(w.closed)
	return w.fsw.Close()
}
