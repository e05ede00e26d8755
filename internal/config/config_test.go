package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadOverlaysDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")
	body := `
app:
  port: 9000
pull:
  default_years: 10
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.App.Port != 9000 {
		t.Errorf("port = %d, want 9000", cfg.App.Port)
	}
	if cfg.Pull.DefaultYears != 10 {
		t.Errorf("default_years = %d, want 10", cfg.Pull.DefaultYears)
	}
	// Untouched sections keep their defaults.
	if cfg.Worker.PollSeconds != 5 || cfg.Pull.BatchSize != 1000 {
		t.Errorf("defaults lost: poll=%d batch=%d", cfg.Worker.PollSeconds, cfg.Pull.BatchSize)
	}
	if cfg.Accela.BaseURL == "" {
		t.Error("accela defaults lost")
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*Config)
		wantErr string // empty means valid
	}{
		{name: "defaults are valid", mutate: func(*Config) {}},
		{
			name:    "bad port",
			mutate:  func(c *Config) { c.App.Port = 0 },
			wantErr: "app.port",
		},
		{
			name:    "threshold out of range",
			mutate:  func(c *Config) { c.Accela.RateThreshold = 1.5 },
			wantErr: "accela.rate_threshold",
		},
		{
			name:    "batch above upstream page cap",
			mutate:  func(c *Config) { c.Pull.BatchSize = 5000 },
			wantErr: "pull.batch_size",
		},
		{
			name:    "crm enabled needs location",
			mutate:  func(c *Config) { c.CRM.Enabled = true },
			wantErr: "crm.location_id",
		},
		{
			name:    "scheduler cadence",
			mutate:  func(c *Config) { c.Scheduler.CheckMinutes = 0 },
			wantErr: "scheduler.check_minutes",
		},
		{
			name:    "scheduler off skips its checks",
			mutate:  func(c *Config) { c.Scheduler.Enabled = false; c.Scheduler.CheckMinutes = 0 },
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Defaults()
			tc.mutate(&cfg)
			err := Validate(cfg)
			if tc.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("err = %v, want mention of %s", err, tc.wantErr)
			}
		})
	}
}

func TestSaveAtomic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")

	cfg := Defaults()
	cfg.App.Port = 40000
	if err := SaveAtomic(path, cfg); err != nil {
		t.Fatalf("SaveAtomic: %v", err)
	}

	got, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if got.App.Port != 40000 {
		t.Errorf("round-tripped port = %d, want 40000", got.App.Port)
	}

	// Invalid config never reaches disk.
	bad := Defaults()
	bad.App.Port = -1
	if err := SaveAtomic(path, bad); err == nil {
		t.Fatal("SaveAtomic accepted an invalid config")
	}
	got, _ = Load(path)
	if got.App.Port != 40000 {
		t.Errorf("file overwritten by invalid config: port = %d", got.App.Port)
	}
}

func TestEnsureUserConfig(t *testing.T) {
	dataDir := t.TempDir()

	// No shipped default: built-in defaults are written.
	path, err := EnsureUserConfig(dataDir, filepath.Join(dataDir, "missing.yml"))
	if err != nil {
		t.Fatalf("EnsureUserConfig: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.App.Port != Defaults().App.Port {
		t.Errorf("bootstrapped port = %d", cfg.App.Port)
	}

	// A user edit survives later calls.
	cfg.App.Port = 41000
	if err := SaveAtomic(path, cfg); err != nil {
		t.Fatal(err)
	}
	again, err := EnsureUserConfig(dataDir, filepath.Join(dataDir, "missing.yml"))
	if err != nil {
		t.Fatal(err)
	}
	if again != path {
		t.Fatalf("path changed: %s vs %s", again, path)
	}
	cfg, _ = Load(path)
	if cfg.App.Port != 41000 {
		t.Errorf("user config overwritten: port = %d", cfg.App.Port)
	}

	// A shipped default file is copied verbatim on first run.
	shipped := filepath.Join(t.TempDir(), "config.yml")
	if err := os.WriteFile(shipped, []byte("app:\n  port: 42000\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	freshDir := t.TempDir()
	path, err = EnsureUserConfig(freshDir, shipped)
	if err != nil {
		t.Fatal(err)
	}
	cfg, err = Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.App.Port != 42000 {
		t.Errorf("shipped config not copied: port = %d", cfg.App.Port)
	}
}
