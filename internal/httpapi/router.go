package httpapi

import (
	"net/http"
	"time"

	"go.uber.org/zap"
)

// NewMux returns the raw mux so main() can attach extra routes.
func NewMux(d Deps) *http.ServeMux {
	mux := http.NewServeMux()

	// Search
	sh := SearchHandler{Deps: d}
	mux.HandleFunc("/api/search", methodMux(map[string]http.HandlerFunc{
		http.MethodPost: sh.Search,
	}))

	src := SourcesHandler{Sources: d.Sources, Breakers: d.Breakers}
	mux.HandleFunc("/api/sources", methodMux(map[string]http.HandlerFunc{
		http.MethodGet: src.List,
	}))

	// Cache
	ch := CacheHandler{Deps: d}
	mux.HandleFunc("/api/cache", methodMux(map[string]http.HandlerFunc{
		http.MethodDelete: ch.Invalidate,
	}))
	mux.HandleFunc("/api/cache/stats", methodMux(map[string]http.HandlerFunc{
		http.MethodGet: ch.Stats,
	}))

	ah := AlertsHandler{Alerts: d.Alerts}
	mux.HandleFunc("/api/alerts/status", methodMux(map[string]http.HandlerFunc{
		http.MethodGet: ah.Status,
	}))

	// Config
	cfh := ConfigHandler{Deps: d}
	mux.HandleFunc("/config", methodMux(map[string]http.HandlerFunc{
		http.MethodGet: cfh.Get,
		http.MethodPut: cfh.Put,
	}))
	mux.HandleFunc("/config/path", methodMux(map[string]http.HandlerFunc{
		http.MethodGet: cfh.Path,
	}))
	mux.HandleFunc("/config/validate", methodMux(map[string]http.HandlerFunc{
		http.MethodGet: cfh.Validate,
	}))

	// Secrets
	sec := SecretsHandler{SetAdzunaKey: d.SetAdzunaKey, Log: d.Log}
	mux.HandleFunc("/api/secrets/adzuna", methodMux(map[string]http.HandlerFunc{
		http.MethodPost: sec.SetAdzuna,
	}))

	// SSE events
	eh := EventsHandler{Hub: d.Hub}
	mux.HandleFunc("/events", methodMux(map[string]http.HandlerFunc{
		http.MethodGet: eh.ServeSSE,
	}))

	hh := HealthHandler{Hub: d.Hub, Started: time.Now()}
	mux.HandleFunc("/health", methodMux(map[string]http.HandlerFunc{
		http.MethodGet: hh.Health,
	}))

	return mux
}

// NewHandler wraps h in the standard middleware chain.
func NewHandler(h http.Handler, log *zap.Logger, rl RateLimitConfig) http.Handler {
	if log == nil {
		log = zap.NewNop()
	}
	if len(rl.Paths) == 0 {
		rl.Paths = []string{"/api/search"}
	}
	return Chain(h,
		RequestID,
		Recover(log),
		AccessLog(log),
		Cors,
		ClientRateLimit(rl),
	)
}
