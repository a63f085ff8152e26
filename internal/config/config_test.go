package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/i474232898/load-profile-aggregation/internal/loadprofile"
)

func TestLoadDefaults(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv(ConfigPathEnvVar, "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.CacheDir != "__dlpcache__" {
		t.Errorf("CacheDir = %q", cfg.CacheDir)
	}
	if cfg.BaseURL != loadprofile.DefaultBaseURL {
		t.Errorf("BaseURL = %q", cfg.BaseURL)
	}
	if cfg.HTTPTimeout != 30*time.Second {
		t.Errorf("HTTPTimeout = %v", cfg.HTTPTimeout)
	}
	if cfg.Mode() != loadprofile.LabelIntervalStart {
		t.Errorf("Mode = %q", cfg.Mode())
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv(ConfigPathEnvVar, "")
	t.Setenv("DLP_CACHE_DIR", "/tmp/dlp")
	t.Setenv("DLP_WORKERS", "4")
	t.Setenv("DLP_LABEL_MODE", "end")
	t.Setenv("DLP_HTTP_TIMEOUT", "5s")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.CacheDir != "/tmp/dlp" {
		t.Errorf("CacheDir = %q", cfg.CacheDir)
	}
	if cfg.Workers != 4 {
		t.Errorf("Workers = %d", cfg.Workers)
	}
	if cfg.Mode() != loadprofile.LabelIntervalEnd {
		t.Errorf("Mode = %q", cfg.Mode())
	}
	if cfg.HTTPTimeout != 5*time.Second {
		t.Errorf("HTTPTimeout = %v", cfg.HTTPTimeout)
	}
}

func TestLoadYAMLFile(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	path := filepath.Join(dir, "dlp.yaml")
	if err := os.WriteFile(path, []byte("cache_dir: /var/cache/dlp\nmax_range_days: 31\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv(ConfigPathEnvVar, path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.CacheDir != "/var/cache/dlp" || cfg.MaxRangeDays != 31 {
		t.Errorf("yaml values not applied: %+v", cfg)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv(ConfigPathEnvVar, "")
	t.Setenv("DLP_LABEL_MODE", "middle")

	if _, err := Load(); err == nil {
		t.Fatal("expected validation error for unknown label mode")
	}
}

// chdir changes the working directory for the duration of the test
// (equivalent of testing.T.Chdir, which needs Go 1.24).
func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	t.Cleanup(func() {
		if err := os.Chdir(prev); err != nil {
			t.Errorf("restore working directory: %v", err)
		}
	})
}
