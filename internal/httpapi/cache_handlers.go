package httpapi

import (
	"net/http"

	"jobagg-engine/internal/domain"
	"jobagg-engine/internal/events"
)

type CacheHandler struct {
	Deps Deps
}

func (h CacheHandler) Stats(w http.ResponseWriter, r *http.Request) {
	st, ok := h.Deps.Cache.Stats()
	if !ok {
		WriteError(w, r, http.StatusNotImplemented, "stats_unsupported", "cache backend does not report stats")
		return
	}
	writeJSON(w, st)
}

// Invalidate drops one fingerprint, built from the same query params a
// search would send.
func (h CacheHandler) Invalidate(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req, err := domain.NewSearchRequest(q.Get("query"), q.Get("location"), splitList(q["sources"]), 0, h.Deps.budget())
	if err != nil {
		WriteDomainError(w, r, h.Deps.Log, err)
		return
	}
	fp := req.Fingerprint()
	if err := h.Deps.Cache.Invalidate(r.Context(), fp); err != nil {
		WriteDomainError(w, r, h.Deps.Log, err)
		return
	}
	if h.Deps.Hub != nil {
		h.Deps.Hub.Emit(events.New(events.TypeCacheCleared, nil).ForSearch(RequestIDFrom(r.Context()), string(fp)))
	}
	writeJSON(w, map[string]any{"invalidated": fp})
}
