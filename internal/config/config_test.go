package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("SCANHOUND_CONFIG", filepath.Join(t.TempDir(), "absent.yaml"))

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if cfg.Web.ListenAddr != ":8081" {
		t.Errorf("Expected default listen addr :8081, got %s", cfg.Web.ListenAddr)
	}
	if cfg.Scan.HeartbeatInterval != 10*time.Second {
		t.Errorf("Expected default heartbeat 10s, got %v", cfg.Scan.HeartbeatInterval)
	}
}

func TestLoadEnvAndOverlay(t *testing.T) {
	dir := t.TempDir()
	overlay := filepath.Join(dir, "scanhound.yaml")
	if err := os.WriteFile(overlay, []byte("scan:\n  probe_timeout: 5s\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("SCANHOUND_CONFIG", overlay)
	t.Setenv("WEB_LISTEN_ADDR", ":9999")
	t.Setenv("PROBE_TIMEOUT", "20s")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if cfg.Web.ListenAddr != ":9999" {
		t.Errorf("Expected env listen addr to survive, got %s", cfg.Web.ListenAddr)
	}
	if cfg.Scan.ProbeTimeout != 5*time.Second {
		t.Errorf("Expected yaml overlay to win for probe timeout, got %v", cfg.Scan.ProbeTimeout)
	}
}
