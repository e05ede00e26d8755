package httpapi

import "net/http"

// NewMux wires the REST surface. Paths with a tenant or job id use the
// trailing-segment convention: /tenants/{id}/..., /jobs/{id}/... .
func NewMux(d Deps) *http.ServeMux {
	mux := http.NewServeMux()

	// Tenants and OAuth
	th := TenantsHandler{Deps: d}
	mux.HandleFunc("/tenants", methodMux(map[string]http.HandlerFunc{
		http.MethodGet:  th.List,
		http.MethodPost: th.Create,
	}))
	mux.HandleFunc("/tenants/", th.ByPath)

	// Jobs
	jh := JobsHandler{Store: d.Store, Hub: d.Hub, CfgVal: d.CfgVal}
	mux.HandleFunc("/jobs", methodMux(map[string]http.HandlerFunc{
		http.MethodGet:  jh.List,
		http.MethodPost: jh.Create,
	}))
	mux.HandleFunc("/jobs/", jh.ByPath)

	// Read-side collections
	ph := PermitsHandler{Store: d.Store}
	mux.HandleFunc("/permits", methodMux(map[string]http.HandlerFunc{
		http.MethodGet: ph.List,
	}))
	prh := PropertiesHandler{Store: d.Store}
	mux.HandleFunc("/properties", methodMux(map[string]http.HandlerFunc{
		http.MethodGet: prh.List,
	}))
	mux.HandleFunc("/properties/summary", methodMux(map[string]http.HandlerFunc{
		http.MethodGet: prh.Summary,
	}))
	lh := LeadsHandler{Store: d.Store, SyncLeads: d.SyncLeads}
	mux.HandleFunc("/leads", methodMux(map[string]http.HandlerFunc{
		http.MethodGet: lh.List,
	}))
	mux.HandleFunc("/leads/sync", methodMux(map[string]http.HandlerFunc{
		http.MethodPost: lh.Sync,
	}))
	mux.HandleFunc("/leads/", lh.ByPath)

	// Config
	ch := ConfigHandler{CfgVal: d.CfgVal, UserCfgPath: d.UserCfgPath, LoadCfg: d.LoadCfg}
	mux.HandleFunc("/config", methodMux(map[string]http.HandlerFunc{
		http.MethodGet: ch.Get,
		http.MethodPut: ch.Put,
	}))
	mux.HandleFunc("/config/path", methodMux(map[string]http.HandlerFunc{
		http.MethodGet: ch.Path,
	}))

	// Secrets
	sh := SecretsHandler{}
	mux.HandleFunc("/secrets/client-secret", methodMux(map[string]http.HandlerFunc{
		http.MethodPost: sh.SetClientSecret,
	}))
	mux.HandleFunc("/secrets/crm-token", methodMux(map[string]http.HandlerFunc{
		http.MethodPost: sh.SetCRMToken,
	}))

	// Health
	hh := HealthHandler{Reporter: d.Health, Ping: d.Store.Ping}
	mux.HandleFunc("/health", methodMux(map[string]http.HandlerFunc{
		http.MethodGet: hh.Get,
	}))
	mux.HandleFunc("/health/full", methodMux(map[string]http.HandlerFunc{
		http.MethodGet: hh.Full,
	}))

	// SSE events
	eh := EventsHandler{Hub: d.Hub}
	mux.HandleFunc("/events", methodMux(map[string]http.HandlerFunc{
		http.MethodGet: eh.ServeSSE,
	}))

	return mux
}
