package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadFirstRunCreatesDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conf", "eventboard.yaml")

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Listen != "127.0.0.1:8080" {
		t.Errorf("Listen = %q", cfg.Listen)
	}
	if cfg.RefreshCron != "* * * * *" {
		t.Errorf("RefreshCron = %q", cfg.RefreshCron)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("default config file not written: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("perm = %o, want 0600", perm)
	}
}

func TestLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "eventboard.yaml")

	in := DefaultConfig()
	in.Listen = "0.0.0.0:9090"
	in.HorizonDays = 14
	in.Sources = []SourceConfig{{ID: "team", Location: "https://example.com/team.ics"}}
	in.BasicAuth = &BasicAuthConfig{Username: "board", Password: "secret"}
	if err := Save(path, in); err != nil {
		t.Fatal(err)
	}

	out, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if out.Listen != in.Listen || out.HorizonDays != in.HorizonDays {
		t.Errorf("round trip mismatch: %+v", out)
	}
	if len(out.Sources) != 1 || out.Sources[0].ID != "team" {
		t.Errorf("sources lost: %+v", out.Sources)
	}
	if out.BasicAuth == nil || out.BasicAuth.Username != "board" {
		t.Errorf("basic auth lost: %+v", out.BasicAuth)
	}
}

func TestNormalizeFillsZeroValues(t *testing.T) {
	var cfg Config
	cfg.Normalize()

	if cfg.Listen == "" || cfg.RefreshCron == "" || cfg.StateDir == "" || cfg.CacheDir == "" {
		t.Errorf("normalize left empties: %+v", cfg)
	}
	if cfg.HorizonDays <= 0 {
		t.Errorf("HorizonDays = %d", cfg.HorizonDays)
	}
	if cfg.Capture.Width <= 0 || cfg.Capture.Height <= 0 || cfg.Capture.TimeoutSeconds <= 0 {
		t.Errorf("capture defaults missing: %+v", cfg.Capture)
	}
	if cfg.Sources == nil {
		t.Error("Sources must normalize to an empty slice")
	}
}

func TestLoadRejectsEmptyPath(t *testing.T) {
	if _, err := Load(""); err == nil {
		t.Fatal("empty path must error")
	}
}

func TestLoadMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "eventboard.yaml")
	if err := os.WriteFile(path, []byte("listen: [unterminated"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("malformed yaml must error")
	}
}
