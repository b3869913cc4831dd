package httpapi

import (
	"context"
	"sync/atomic"

	"jobagg-engine/internal/alerts"
	"jobagg-engine/internal/breaker"
	"jobagg-engine/internal/cache"
	"jobagg-engine/internal/config"
	"jobagg-engine/internal/domain"
	"jobagg-engine/internal/events"
	"jobagg-engine/internal/scrape/types"

	"go.uber.org/zap"
)

type Searcher interface {
	Aggregate(ctx context.Context, req domain.SearchRequest) (domain.AggregateResult, error)
}

type SourceLister interface {
	Statuses() []types.SourceStatus
}

type CacheAdmin interface {
	Invalidate(ctx context.Context, fp domain.Fingerprint) error
	Stats() (cache.Stats, bool)
}

type AlertStatuser interface {
	Statuses() []alerts.Status
}

type Deps struct {
	Log *zap.Logger
	Hub *events.Hub

	// Atomic stores
	CfgVal *atomic.Value // stores config.Config

	// Config persistence
	UserCfgPath string
	LoadCfg     func() (config.Config, error)

	Search   Searcher
	Sources  SourceLister
	Breakers *breaker.Set
	Cache    CacheAdmin
	Alerts   AlertStatuser

	// SetAdzunaKey stores the key in the OS keychain (inject for testability).
	SetAdzunaKey func(key string) error
}

func (d Deps) cfg() config.Config {
	if d.CfgVal == nil {
		return config.Default()
	}
	if c, ok := d.CfgVal.Load().(config.Config); ok {
		return c
	}
	return config.Default()
}

func (d Deps) budget() domain.Budget {
	c := d.cfg()
	return domain.Budget{Default: c.Search.DefaultPageBudget, Max: c.Search.MaxPageBudget}
}
