package httpapi

import (
	"net/http"
	"time"

	"jobagg-engine/internal/domain"

	"go.uber.org/zap"
)

type SearchHandler struct {
	Deps Deps
}

type searchReq struct {
	Query      string   `json:"query"`
	Location   string   `json:"location"`
	Sources    []string `json:"sources"`
	PageBudget int      `json:"pageBudget,omitempty"`
}

// SearchResponse is the body of a successful search. Source ids are
// case-insensitive; SourceCounts is keyed by the lower-case id whatever
// spelling the caller sent.
type SearchResponse struct {
	Success           bool                    `json:"success"`
	Postings          []domain.Posting        `json:"postings"`
	Count             int                     `json:"count"`
	TotalCount        int                     `json:"totalCount"`
	DuplicatesRemoved int                     `json:"duplicatesRemoved"`
	SourceCounts      map[domain.SourceID]int `json:"sourceCounts"`
	Errors            []string                `json:"errors,omitempty"`
	Cached            bool                    `json:"cached"`
	CacheAge          domain.CacheAge         `json:"cacheAge,omitempty"`
	Degraded          bool                    `json:"degraded,omitempty"`
	IsSynthetic       bool                    `json:"isSynthetic,omitempty"`
	FallbackStrategy  string                  `json:"fallbackStrategy,omitempty"`
	Fingerprint       domain.Fingerprint      `json:"fingerprint"`
	FetchedAt         time.Time               `json:"fetchedAt"`
}

func toResponse(res domain.AggregateResult) SearchResponse {
	postings := res.Postings
	if postings == nil {
		postings = []domain.Posting{}
	}
	return SearchResponse{
		Success:           true,
		Postings:          postings,
		Count:             len(postings),
		TotalCount:        res.TotalCount,
		DuplicatesRemoved: res.DuplicatesRemoved,
		SourceCounts:      res.SourceCounts,
		Errors:            res.Errors,
		Cached:            res.ServedFromCache,
		CacheAge:          res.CacheAge,
		Degraded:          res.Degraded,
		IsSynthetic:       res.IsSynthetic,
		FallbackStrategy:  res.FallbackStrategy,
		Fingerprint:       res.Fingerprint,
		FetchedAt:         res.FetchedAt,
	}
}

func (h SearchHandler) Search(w http.ResponseWriter, r *http.Request) {
	var body searchReq
	if err := decodeStrict(r, &body); err != nil {
		WriteError(w, r, http.StatusBadRequest, "invalid_json", "invalid JSON: "+err.Error())
		return
	}

	req, err := domain.NewSearchRequest(body.Query, body.Location, body.Sources, body.PageBudget, h.Deps.budget())
	if err != nil {
		WriteDomainError(w, r, h.Deps.Log, err)
		return
	}

	res, err := h.Deps.Search.Aggregate(r.Context(), req)
	if err != nil {
		if h.Deps.Log != nil {
			h.Deps.Log.Warn("search failed", zap.String("request_id", RequestIDFrom(r.Context())), zap.String("fingerprint", string(req.Fingerprint())), zap.Error(err))
		}
		WriteDomainError(w, r, h.Deps.Log, err)
		return
	}
	writeJSON(w, toResponse(res))
}
