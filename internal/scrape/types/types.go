package types

import (
	"context"
	"time"

	"jobagg-engine/internal/domain"
)

// Query is what an adapter is asked for. Pages is the page budget: adapters
// fetch at most that many pages and stop early when a page comes back empty.
type Query struct {
	Query    string
	Location string
	Pages    int
}

func QueryFor(req domain.SearchRequest) Query {
	return Query{Query: req.Query, Location: req.Location, Pages: req.PageBudget}
}

type Cost string

const (
	CostAPI     Cost = "api"
	CostScrape  Cost = "scrape"
	CostBrowser Cost = "browser"
)

// DefaultTimeout is used when a source has no timeout configured.
func (c Cost) DefaultTimeout() time.Duration {
	switch c {
	case CostAPI:
		return 30 * time.Second
	case CostBrowser:
		return 180 * time.Second
	default:
		return 90 * time.Second
	}
}

// Adapter fetches postings from one external board. Fetch must not panic or
// return Go errors: every failure is a SourceResult with Success=false. It
// checks ctx between pages and, when cancelled, returns what it already
// normalized with Partial set.
type Adapter interface {
	ID() domain.SourceID
	Cost() Cost
	Fetch(ctx context.Context, q Query) domain.SourceResult
}

type SourceStatus struct {
	ID      domain.SourceID `json:"id"`
	Cost    Cost            `json:"cost"`
	Timeout string          `json:"timeout"`
	Enabled bool            `json:"enabled"`
}
