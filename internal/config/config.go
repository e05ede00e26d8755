package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	App struct {
		Port    int    `yaml:"port"`
		DataDir string `yaml:"data_dir"`
	} `yaml:"app"`

	Worker struct {
		PollSeconds          int `yaml:"poll_seconds"`
		ProgressEveryRecords int `yaml:"progress_every_records"`
		ProgressEverySeconds int `yaml:"progress_every_seconds"`
		StaleResetMinutes    int `yaml:"stale_reset_minutes"`
		MaxRetries           int `yaml:"max_retries"`
	} `yaml:"worker"`

	Pull struct {
		DefaultYears        int    `yaml:"default_years"`
		IncrementalDaysBack int    `yaml:"incremental_days_back"`
		BatchSize           int    `yaml:"batch_size"`
		PermitType          string `yaml:"permit_type"`
	} `yaml:"pull"`

	Accela struct {
		BaseURL               string  `yaml:"base_url"`
		AuthURL               string  `yaml:"auth_url"`
		ClientID              string  `yaml:"client_id"`
		Environment           string  `yaml:"environment"`
		RequestTimeoutSeconds int     `yaml:"request_timeout_seconds"`
		MaxRetries            int     `yaml:"max_retries"`
		RateThreshold         float64 `yaml:"rate_threshold"`
		PaginationPerSec      float64 `yaml:"pagination_fallback_per_sec"`
		EnrichmentPerSec      float64 `yaml:"enrichment_fallback_per_sec"`
	} `yaml:"accela"`

	CRM struct {
		Enabled    bool   `yaml:"enabled"`
		BaseURL    string `yaml:"base_url"`
		LocationID string `yaml:"location_id"`
	} `yaml:"crm"`

	Scheduler struct {
		Enabled            bool `yaml:"enabled"`
		CheckMinutes       int  `yaml:"check_minutes"`
		PullIntervalDays   int  `yaml:"pull_interval_days"`
		StaggerWindowHours int  `yaml:"stagger_window_hours"`
	} `yaml:"scheduler"`
}

func Load(path string) (Config, error) {
	cfg := Defaults()
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Defaults mirrors the shipped config/config.yml so a sparse user file
// still yields a runnable engine.
func Defaults() Config {
	var cfg Config
	cfg.App.Port = 38471
	cfg.Worker.PollSeconds = 5
	cfg.Worker.ProgressEveryRecords = 250
	cfg.Worker.ProgressEverySeconds = 10
	cfg.Worker.StaleResetMinutes = 10
	cfg.Worker.MaxRetries = 3
	cfg.Pull.DefaultYears = 30
	cfg.Pull.IncrementalDaysBack = 2
	cfg.Pull.BatchSize = 1000
	cfg.Pull.PermitType = "Building/Residential/Trade/Mechanical"
	cfg.Accela.BaseURL = "https://apis.accela.com"
	cfg.Accela.AuthURL = "https://auth.accela.com"
	cfg.Accela.Environment = "PROD"
	cfg.Accela.RequestTimeoutSeconds = 30
	cfg.Accela.MaxRetries = 3
	cfg.Accela.RateThreshold = 0.10
	cfg.Accela.PaginationPerSec = 5
	cfg.Accela.EnrichmentPerSec = 20
	cfg.CRM.BaseURL = "https://services.leadconnectorhq.com"
	cfg.Scheduler.Enabled = true
	cfg.Scheduler.CheckMinutes = 60
	cfg.Scheduler.PullIntervalDays = 7
	cfg.Scheduler.StaggerWindowHours = 6
	return cfg
}

func (c Config) PollInterval() time.Duration {
	return time.Duration(c.Worker.PollSeconds) * time.Second
}

func (c Config) ProgressInterval() time.Duration {
	return time.Duration(c.Worker.ProgressEverySeconds) * time.Second
}

func (c Config) StaleThreshold() time.Duration {
	return time.Duration(c.Worker.StaleResetMinutes) * time.Minute
}

func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.Accela.RequestTimeoutSeconds) * time.Second
}

func SaveAtomic(path string, cfg Config) error {
	if err := Validate(cfg); err != nil {
		return err
	}
	b, err := yaml.Marshal(&cfg)
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
