package config

import (
	"os"
	"strings"
	"testing"
	"time"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.Engine.RetryAttempts != 3 || cfg.Engine.PersistenceTimeout.Duration != 5*time.Second {
		t.Fatalf("unexpected engine defaults %+v", cfg.Engine)
	}
	if cfg.Grid.MaxDays != 93 || cfg.Server.BasePath != "/v0" {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
}

func TestFromYAMLOverlaysDefaults(t *testing.T) {
	cfg, err := FromYAML([]byte(`engine:
  persistence_timeout: 250ms
webhooks:
  - url: https://hooks.example.com/shiftline
    secret: s3cret
    operations: [payment.finalize]
`))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Engine.PersistenceTimeout.Duration != 250*time.Millisecond {
		t.Fatalf("timeout not parsed: %v", cfg.Engine.PersistenceTimeout)
	}
	if cfg.Engine.RetryAttempts != 3 {
		t.Fatalf("missing key lost its default: %d", cfg.Engine.RetryAttempts)
	}
	if len(cfg.Webhooks) != 1 || cfg.Webhooks[0].Operations[0] != "payment.finalize" {
		t.Fatalf("unexpected webhooks %+v", cfg.Webhooks)
	}
}

func TestFromYAMLRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"retry":    "engine:\n  retry_attempts: 0\n",
		"duration": "engine:\n  persistence_timeout: soon\n",
		"grid":     "grid:\n  max_days: 0\n",
		"burst":    "server:\n  rate_limit:\n    per_second: 5\n",
		"webhook":  "webhooks:\n  - url: /relative\n",
	}
	for name, data := range cases {
		if _, err := FromYAML([]byte(data)); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestLoadOptional(t *testing.T) {
	dir := t.TempDir()
	cfg, err := LoadOptional(dir)
	if err != nil || cfg.Grid.PageSize != 50 {
		t.Fatalf("expected defaults, got %+v %v", cfg, err)
	}
	if _, err := Load(dir); err == nil || !strings.Contains(err.Error(), "not found") {
		t.Fatalf("expected not found error, got %v", err)
	}
	if err := os.WriteFile(Path(dir), []byte("grid:\n  page_size: 7\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err = Load(dir)
	if err != nil || cfg.Grid.PageSize != 7 {
		t.Fatalf("expected page size 7, got %+v %v", cfg, err)
	}
}
