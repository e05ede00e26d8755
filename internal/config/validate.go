package config

import (
	"errors"
	"strings"
)

func Validate(cfg Config) error {
	var errs []string

	if cfg.App.Port <= 0 || cfg.App.Port > 65535 {
		errs = append(errs, "app.port must be 1..65535")
	}
	if cfg.Worker.PollSeconds <= 0 {
		errs = append(errs, "worker.poll_seconds must be > 0")
	}
	if cfg.Worker.ProgressEveryRecords <= 0 {
		errs = append(errs, "worker.progress_every_records must be > 0")
	}
	if cfg.Worker.ProgressEverySeconds <= 0 {
		errs = append(errs, "worker.progress_every_seconds must be > 0")
	}
	if cfg.Worker.StaleResetMinutes <= 0 {
		errs = append(errs, "worker.stale_reset_minutes must be > 0")
	}
	if cfg.Worker.MaxRetries < 0 {
		errs = append(errs, "worker.max_retries must be >= 0")
	}
	if cfg.Pull.DefaultYears <= 0 || cfg.Pull.DefaultYears > 100 {
		errs = append(errs, "pull.default_years must be 1..100")
	}
	if cfg.Pull.IncrementalDaysBack <= 0 {
		errs = append(errs, "pull.incremental_days_back must be > 0")
	}
	if cfg.Pull.BatchSize <= 0 || cfg.Pull.BatchSize > 1000 {
		errs = append(errs, "pull.batch_size must be 1..1000 (upstream page cap)")
	}
	if strings.TrimSpace(cfg.Pull.PermitType) == "" {
		errs = append(errs, "pull.permit_type is required")
	}
	if strings.TrimSpace(cfg.Accela.BaseURL) == "" {
		errs = append(errs, "accela.base_url is required")
	}
	if strings.TrimSpace(cfg.Accela.AuthURL) == "" {
		errs = append(errs, "accela.auth_url is required")
	}
	if cfg.Accela.RateThreshold <= 0 || cfg.Accela.RateThreshold >= 1 {
		errs = append(errs, "accela.rate_threshold must be in (0,1)")
	}
	if cfg.Accela.RequestTimeoutSeconds <= 0 {
		errs = append(errs, "accela.request_timeout_seconds must be > 0")
	}
	if cfg.Accela.PaginationPerSec <= 0 {
		errs = append(errs, "accela.pagination_fallback_per_sec must be > 0")
	}
	if cfg.Accela.EnrichmentPerSec <= 0 {
		errs = append(errs, "accela.enrichment_fallback_per_sec must be > 0")
	}
	if cfg.CRM.Enabled {
		if strings.TrimSpace(cfg.CRM.BaseURL) == "" {
			errs = append(errs, "crm.base_url is required when crm.enabled=true")
		}
		if strings.TrimSpace(cfg.CRM.LocationID) == "" {
			errs = append(errs, "crm.location_id is required when crm.enabled=true")
		}
	}
	if cfg.Scheduler.Enabled {
		if cfg.Scheduler.CheckMinutes <= 0 {
			errs = append(errs, "scheduler.check_minutes must be > 0")
		}
		if cfg.Scheduler.PullIntervalDays <= 0 {
			errs = append(errs, "scheduler.pull_interval_days must be > 0")
		}
	}

	if len(errs) > 0 {
		return errors.New("config validation failed:\n- " + strings.Join(errs, "\n- "))
	}
	return nil
}
