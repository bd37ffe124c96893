package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"xaio/internal/config"
)

func TestLoadDefaultsWhenMissing(t *testing.T) {
	cfg, _, exists, err := config.Load(filepath.Join(t.TempDir(), "missing.toml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if exists {
		t.Fatal("expected exists=false for missing file")
	}
	if cfg.Pipeline.BatchSize != 10 || cfg.Pipeline.MaxAttempts != 3 {
		t.Fatalf("unexpected pipeline defaults: %+v", cfg.Pipeline)
	}
	if cfg.Logging.Format != "console" {
		t.Fatalf("unexpected logging default: %q", cfg.Logging.Format)
	}
}

func TestLoadParsesAndNormalizes(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := strings.Join([]string{
		"[paths]",
		`data_dir = "` + filepath.Join(dir, "data") + `"`,
		`log_dir = "` + filepath.Join(dir, "logs") + `"`,
		"[pipeline]",
		"batch_size = 25",
		"[intake.columns]",
		`url = "a"`,
		`status = "q"`,
		`publish_id = "v"`,
		`error = "w"`,
		"[logging]",
		`format = "JSON"`,
	}, "\n")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !exists || resolved != path {
		t.Fatalf("unexpected resolution: exists=%v path=%s", exists, resolved)
	}
	if cfg.Pipeline.BatchSize != 25 {
		t.Fatalf("batch_size = %d, want 25", cfg.Pipeline.BatchSize)
	}
	if cfg.Intake.Columns.URL != "A" {
		t.Fatalf("column letters should be uppercased, got %q", cfg.Intake.Columns.URL)
	}
	if cfg.Logging.Format != "json" {
		t.Fatalf("logging format should normalize to json, got %q", cfg.Logging.Format)
	}
}

func TestValidateRejectsBadColumnMap(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{"not a letter", func(c *config.Config) { c.Intake.Columns.URL = "12" }},
		{"empty", func(c *config.Config) { c.Intake.Columns.Status = "" }},
		{"duplicate", func(c *config.Config) { c.Intake.Columns.Error = c.Intake.Columns.URL }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := config.Default()
			tc.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestCreateSample(t *testing.T) {
	target := filepath.Join(t.TempDir(), "nested", "config.toml")
	if err := config.CreateSample(target); err != nil {
		t.Fatalf("CreateSample failed: %v", err)
	}
	data, err := os.ReadFile(target)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}
	if !strings.Contains(string(data), "[pipeline]") {
		t.Fatal("sample config missing pipeline section")
	}
}
