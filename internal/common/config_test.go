package common

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadPrecedence(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "plansets.yaml")
	yaml := `
dataset:
  work_dir: /data/work
  raw_pdf_roots: [/data/pdfs]
  train_split: 0.8
  val_split: 0.1
  test_split: 0.1
rendering:
  dpi: 150
  max_pages_per_doc: 5
extraction:
  checkpoint_interval: 10
  rate_limit_delay: 2s
`
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("PLANSETS_DPI", "200")
	t.Setenv("PLANSETS_PDF_ROOTS", "/a, /b")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Render.DPI != 200 {
		t.Errorf("expected env to win for dpi, got %d", cfg.Render.DPI)
	}
	if cfg.Render.MaxPages != 5 {
		t.Errorf("expected max pages 5 from file, got %d", cfg.Render.MaxPages)
	}
	if len(cfg.Dataset.PDFRoots) != 2 || cfg.Dataset.PDFRoots[1] != "/b" {
		t.Errorf("expected env roots, got %v", cfg.Dataset.PDFRoots)
	}
	if cfg.Dataset.TrainRatio != 0.8 {
		t.Errorf("expected train split 0.8, got %g", cfg.Dataset.TrainRatio)
	}
	if cfg.Extract.CheckpointInterval != 10 || cfg.Extract.RateLimitDelay != 2*time.Second {
		t.Errorf("unexpected extraction config %+v", cfg.Extract)
	}
	if cfg.Extract.MaxRetries != 3 {
		t.Errorf("expected default max retries 3, got %d", cfg.Extract.MaxRetries)
	}
	if want := filepath.Join("/data/work", "extraction", "checkpoints"); cfg.Store.CheckpointDir != want {
		t.Errorf("expected checkpoint dir %s, got %s", want, cfg.Store.CheckpointDir)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("expected valid config, got %v", err)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	var appErr *AppError
	if !errors.As(err, &appErr) || appErr.Code != "CONFIG_ERROR" {
		t.Fatalf("expected CONFIG_ERROR, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{"defaults with roots", func(c *Config) {}, true},
		{"no roots", func(c *Config) { c.Dataset.PDFRoots = nil }, false},
		{"ratios over one", func(c *Config) { c.Dataset.TrainRatio = 0.8 }, false},
		{"ratios within epsilon", func(c *Config) { c.Dataset.TrainRatio = 0.7 + 1e-9 }, true},
		{"negative ratio", func(c *Config) { c.Dataset.TrainRatio, c.Dataset.ValRatio = 1.1, -0.2 }, false},
		{"zero dpi", func(c *Config) { c.Render.DPI = 0 }, false},
		{"max pages zero", func(c *Config) { c.Render.MaxPages = 0 }, false},
		{"max pages below -1", func(c *Config) { c.Render.MaxPages = -2 }, false},
		{"checkpoint interval zero", func(c *Config) { c.Extract.CheckpointInterval = 0 }, false},
		{"no retries", func(c *Config) { c.Extract.MaxRetries = 0 }, false},
		{"no in-flight", func(c *Config) { c.Extract.MaxInFlight = 0 }, false},
		{"negative delay", func(c *Config) { c.Extract.RateLimitDelay = -time.Second }, false},
		{"redis without addr", func(c *Config) { c.Store.CheckpointBackend = "redis" }, false},
		{"redis with addr", func(c *Config) { c.Store.CheckpointBackend, c.Store.RedisAddr = "redis", "localhost:6379" }, true},
		{"unknown backend", func(c *Config) { c.Store.CheckpointBackend = "s3" }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Dataset.PDFRoots = []string{"/pdfs"}
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.ok && err != nil {
				t.Errorf("expected valid, got %v", err)
			}
			if !tt.ok {
				if err == nil {
					t.Fatal("expected an error")
				}
				if !errors.Is(err, ErrInvalidInput) || !IsStructural(err) {
					t.Errorf("expected a structural invalid-input error, got %v", err)
				}
			}
		})
	}
}
