package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_DefaultsAndOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := `
cell_id: 7
backend:
  provider: minio
  bucket: depot-mirror
audit:
  enabled: true
  sink:
    type: file
    file_path: /tmp/audit.log
`
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.CellID != 7 {
		t.Errorf("CellID = %d, want 7", cfg.CellID)
	}
	if cfg.Backend.Provider != "minio" || cfg.Backend.Bucket != "depot-mirror" {
		t.Errorf("Backend = %+v, want provider=minio bucket=depot-mirror", cfg.Backend)
	}
	if cfg.Audit.Sink.Type != "file" || cfg.Audit.Sink.FilePath != "/tmp/audit.log" {
		t.Errorf("Audit.Sink = %+v", cfg.Audit.Sink)
	}
	// Unset fields keep Default()'s values.
	if cfg.ControlPlaneURL != "https://api.steampowered.com" {
		t.Errorf("ControlPlaneURL = %q, want default preserved", cfg.ControlPlaneURL)
	}
	if cfg.Cache.Type != "memory" || cfg.Cache.TTL != 60*time.Second {
		t.Errorf("Cache = %+v, want default memory/60s", cfg.Cache)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestWatch_ReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("cell_id: 1\n"), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	reloaded := make(chan *Config, 1)
	w, err := Watch(path, func(cfg *Config) {
		select {
		case reloaded <- cfg:
		default:
		}
	})
	if err != nil {
		t.Fatalf("Watch: %v", err)
	}
	defer w.Close()

	if w.Current().CellID != 1 {
		t.Fatalf("Current().CellID = %d, want 1", w.Current().CellID)
	}

	if err := os.WriteFile(path, []byte("cell_id: 2\n"), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	select {
	case cfg := <-reloaded:
		if cfg.CellID != 2 {
			t.Errorf("reloaded CellID = %d, want 2", cfg.CellID)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for reload")
	}
}
