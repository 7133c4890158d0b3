package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestParseDefaults(t *testing.T) {
	cfg, helpOrVersion, err := Parse(nil)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if helpOrVersion {
		t.Fatal("Parse(nil) reported helpOrVersion")
	}
	if cfg.HTTPAddr != ":8080" {
		t.Errorf("HTTPAddr = %q, want \":8080\"", cfg.HTTPAddr)
	}
	if cfg.MaxWorkers != 8 {
		t.Errorf("MaxWorkers = %d, want 8", cfg.MaxWorkers)
	}
	if cfg.ShutdownTimeout != 5*time.Second {
		t.Errorf("ShutdownTimeout = %v, want 5s", cfg.ShutdownTimeout)
	}
}

func TestParseFlagsOverrideDefaults(t *testing.T) {
	cfg, _, err := Parse([]string{"-H", ":9090", "-l", "/tmp/nxweb.err", "-d"})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.HTTPAddr != ":9090" {
		t.Errorf("HTTPAddr = %q, want \":9090\"", cfg.HTTPAddr)
	}
	if cfg.ErrorLog != "/tmp/nxweb.err" {
		t.Errorf("ErrorLog = %q, want /tmp/nxweb.err", cfg.ErrorLog)
	}
	if !cfg.Daemonize {
		t.Error("Daemonize = false, want true")
	}
}

func TestParseHelpAndVersionShortCircuit(t *testing.T) {
	for _, args := range [][]string{{"-h"}, {"--help"}, {"-v"}, {"--version"}} {
		_, helpOrVersion, err := Parse(args)
		if err != nil {
			t.Fatalf("Parse(%v): %v", args, err)
		}
		if !helpOrVersion {
			t.Errorf("Parse(%v) helpOrVersion = false, want true", args)
		}
	}
}

func TestParseConfigFileOverridesMatchingFlag(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nxweb.json")
	if err := os.WriteFile(path, []byte(`{"http": ":7070", "max_workers": 32}`), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, _, err := Parse([]string{"-c", path})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.HTTPAddr != ":7070" {
		t.Errorf("HTTPAddr = %q, want :7070 from config file", cfg.HTTPAddr)
	}
	if cfg.MaxWorkers != 32 {
		t.Errorf("MaxWorkers = %d, want 32 from config file", cfg.MaxWorkers)
	}
}

func TestParseConfigTargetMergesOnlySubtree(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nxweb.json")
	body := `{"production": {"http": ":80"}, "staging": {"http": ":8081"}}`
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, _, err := Parse([]string{"-c", path, "-T", "staging"})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.HTTPAddr != ":8081" {
		t.Errorf("HTTPAddr = %q, want :8081 from the staging sub-tree", cfg.HTTPAddr)
	}
}

func TestWatchNoConfigFileIsNoop(t *testing.T) {
	stop, err := Watch("", "", func(*Config) {})
	if err != nil {
		t.Fatalf("Watch: %v", err)
	}
	stop()
}
