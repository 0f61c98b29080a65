// pkg/config/config_test.go
package config

import (
	"os"
	"path/filepath"
	"testing"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"LUNARIS_PORT", "LUNARIS_DATA_DIR"} {
		old, had := os.LookupEnv(k)
		os.Unsetenv(k)
		t.Cleanup(func() {
			if had {
				os.Setenv(k, old)
			}
		})
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != DefaultPort {
		t.Fatalf("Port = %d, want %d", cfg.Port, DefaultPort)
	}
	home, _ := os.UserHomeDir()
	want := filepath.Join(home, ".lunaris")
	if cfg.DataDir != want {
		t.Fatalf("DataDir = %q, want %q", cfg.DataDir, want)
	}
	if cfg.DatabasePath() != filepath.Join(want, "lunaris.db") {
		t.Fatalf("DatabasePath = %q", cfg.DatabasePath())
	}
}

func TestLoadOverrides(t *testing.T) {
	clearEnv(t)
	os.Setenv("LUNARIS_PORT", "9000")
	os.Setenv("LUNARIS_DATA_DIR", "/tmp/lunaris-test-data")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != 9000 {
		t.Fatalf("Port = %d, want 9000", cfg.Port)
	}
	if cfg.DataDir != "/tmp/lunaris-test-data" {
		t.Fatalf("DataDir = %q", cfg.DataDir)
	}
	if cfg.DatabasePath() != "/tmp/lunaris-test-data/lunaris.db" {
		t.Fatalf("DatabasePath = %q", cfg.DatabasePath())
	}
}

func TestLoadRejectsInvalidPort(t *testing.T) {
	clearEnv(t)
	os.Setenv("LUNARIS_PORT", "not-a-number")
	if _, err := Load(); err == nil {
		t.Fatalf("expected error for invalid LUNARIS_PORT")
	}
}

func TestLoadRejectsOutOfRangePort(t *testing.T) {
	clearEnv(t)
	os.Setenv("LUNARIS_PORT", "99999")
	if _, err := Load(); err == nil {
		t.Fatalf("expected error for out-of-range LUNARIS_PORT")
	}
}

func TestEnsureDataDirCreatesDirectory(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	sub := filepath.Join(dir, "nested", "lunaris")
	os.Setenv("LUNARIS_DATA_DIR", sub)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := cfg.EnsureDataDir(); err != nil {
		t.Fatalf("EnsureDataDir: %v", err)
	}
	info, err := os.Stat(sub)
	if err != nil || !info.IsDir() {
		t.Fatalf("EnsureDataDir did not create %q: %v", sub, err)
	}
}
