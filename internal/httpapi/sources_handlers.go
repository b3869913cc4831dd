package httpapi

import (
	"net/http"

	"jobagg-engine/internal/breaker"
	"jobagg-engine/internal/scrape/types"
)

type SourcesHandler struct {
	Sources  SourceLister
	Breakers *breaker.Set
}

type sourceView struct {
	types.SourceStatus
	Breaker *breaker.Stats `json:"breaker,omitempty"`
}

func (h SourcesHandler) List(w http.ResponseWriter, r *http.Request) {
	stats := h.Breakers.Stats()
	out := []sourceView{}
	for _, s := range h.Sources.Statuses() {
		v := sourceView{SourceStatus: s}
		if st, ok := stats[s.ID]; ok {
			v.Breaker = &st
		}
		out = append(out, v)
	}
	writeJSON(w, map[string]any{"sources": out})
}
