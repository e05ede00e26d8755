package main

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gofrs/flock"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"permitpulse-engine/internal/accela"
	"permitpulse-engine/internal/aggregate"
	"permitpulse-engine/internal/config"
	"permitpulse-engine/internal/crm"
	"permitpulse-engine/internal/domain"
	"permitpulse-engine/internal/events"
	"permitpulse-engine/internal/health"
	"permitpulse-engine/internal/httpapi"
	"permitpulse-engine/internal/scheduler"
	"permitpulse-engine/internal/secrets"
	"permitpulse-engine/internal/store"
	"permitpulse-engine/internal/worker"
)

func main() {
	_ = godotenv.Load()

	dataDir := os.Getenv("PERMITPULSE_DATA_DIR")
	if dataDir == "" {
		dataDir = "."
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		log.Fatal(err)
	}

	// One engine per data dir; a second copy would fight over the job
	// queue and the sqlite writer.
	lock := flock.New(filepath.Join(dataDir, "engine.lock"))
	locked, err := lock.TryLock()
	if err != nil {
		log.Fatalf("instance lock: %v", err)
	}
	if !locked {
		log.Fatalf("another engine is already running in %s", dataDir)
	}
	defer func() { _ = lock.Unlock() }()

	defaultCfgPath := filepath.Join("config", "config.yml")
	userCfgPath, err := config.EnsureUserConfig(dataDir, defaultCfgPath)
	if err != nil {
		log.Fatalf("config bootstrap failed: %v", err)
	}

	var cfgVal atomic.Value // stores config.Config
	loadCfg := func() (config.Config, error) {
		return config.Load(userCfgPath)
	}
	cfg, err := loadCfg()
	if err != nil {
		log.Fatalf("config load failed (%s): %v", userCfgPath, err)
	}
	if err := config.Validate(cfg); err != nil {
		log.Fatalf("config invalid (%s): %v", userCfgPath, err)
	}
	cfgVal.Store(cfg)

	dbPath := filepath.Join(dataDir, "permitpulse.db")
	st, err := store.Open(dbPath)
	if err != nil {
		log.Fatalf("open db %s: %v", dbPath, err)
	}
	defer st.Close()

	hub := events.NewHub()
	agg := aggregate.New(st)

	clientFactory := func(ctx context.Context, tenant domain.Tenant) (worker.Client, error) {
		return buildClient(ctx, cfgVal.Load().(config.Config), tenant)
	}

	proc := worker.New(st, clientFactory, agg, hub, &cfgVal)

	reporter := health.NewReporter()
	reporter.Register("database", func(ctx context.Context) (string, error) {
		return "", st.Ping(ctx)
	})
	reporter.Register("worker", func(ctx context.Context) (string, error) {
		if proc.Busy() {
			return "job running", nil
		}
		return "", nil
	})
	reporter.Register("crm", func(ctx context.Context) (string, error) {
		if !cfgVal.Load().(config.Config).CRM.Enabled {
			return "disabled", nil
		}
		if _, err := secrets.CRMToken(); err != nil {
			return "", err
		}
		return "", nil
	})

	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := proc.Start(rootCtx); err != nil {
		log.Fatalf("worker start: %v", err)
	}

	autopull := scheduler.NewAutoPull(st, hub, &cfgVal)
	go scheduler.Every(rootCtx, 30*time.Second, "health", reporter.Run)
	if cfg.Scheduler.Enabled {
		interval := time.Duration(cfg.Scheduler.CheckMinutes) * time.Minute
		go scheduler.Every(rootCtx, interval, "scheduler", autopull.Sweep)
	}

	deps := httpapi.Deps{
		Store:       st,
		Hub:         hub,
		Health:      reporter,
		CfgVal:      &cfgVal,
		UserCfgPath: userCfgPath,
		LoadCfg:     loadCfg,

		AuthorizeURL: func(cfg config.Config, agency, redirectURI, state string) string {
			return accela.AuthorizeURL(cfg.Accela.AuthURL, cfg.Accela.ClientID,
				redirectURI, agency, cfg.Accela.Environment, state)
		},
		ExchangeCode: func(ctx context.Context, tenantID, agency, code, redirectURI string) (time.Time, error) {
			tm, err := tokenManagerFor(cfgVal.Load().(config.Config), tenantID, agency)
			if err != nil {
				return time.Time{}, err
			}
			if err := tm.ExchangeCode(ctx, code, redirectURI); err != nil {
				return time.Time{}, err
			}
			return tm.ExpiresAt(), nil
		},
		PasswordAuth: func(ctx context.Context, tenantID, agency, username, password string) (time.Time, error) {
			tm, err := tokenManagerFor(cfgVal.Load().(config.Config), tenantID, agency)
			if err != nil {
				return time.Time{}, err
			}
			if err := tm.PasswordGrant(ctx, username, password, ""); err != nil {
				return time.Time{}, err
			}
			return tm.ExpiresAt(), nil
		},
		TestConnection: func(ctx context.Context, tenantID string) error {
			tenant, err := st.Tenant(ctx, tenantID)
			if err != nil {
				return err
			}
			c, err := buildAccelaClient(ctx, cfgVal.Load().(config.Config), tenant)
			if err != nil {
				return err
			}
			return c.TestConnection(ctx)
		},
		SyncLeads: func(ctx context.Context, tenantID string, limit int) (crm.SyncResult, error) {
			cfg := cfgVal.Load().(config.Config)
			if !cfg.CRM.Enabled {
				return crm.SyncResult{}, errors.New("crm sync is disabled in config")
			}
			token, err := secrets.CRMToken()
			if err != nil {
				return crm.SyncResult{}, err
			}
			client, err := crm.NewClient(crm.Config{
				BaseURL:    cfg.CRM.BaseURL,
				Token:      token,
				LocationID: cfg.CRM.LocationID,
			})
			if err != nil {
				return crm.SyncResult{}, err
			}
			return crm.NewSyncer(st, client, hub).SyncPending(ctx, tenantID, limit)
		},
	}

	mux := httpapi.NewMux(deps)

	addr := net.JoinHostPort("127.0.0.1", strconv.Itoa(cfg.App.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		log.Fatal(err)
	}
	log.Printf("engine listening on http://%s (db=%s)", addr, dbPath)

	srv := &http.Server{
		Handler:           httpapi.Chain(mux, httpapi.Recover, httpapi.RequestID, httpapi.AccessLog, httpapi.Cors),
		ReadHeaderTimeout: 5 * time.Second,
	}

	var g errgroup.Group
	g.Go(func() error {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-rootCtx.Done()
		log.Printf("shutting down")
		proc.Stop()
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(sctx)
	})

	if err := g.Wait(); err != nil {
		log.Fatal(err)
	}
}
