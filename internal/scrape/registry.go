package scrape

import (
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"jobagg-engine/internal/config"
	"jobagg-engine/internal/domain"
	"jobagg-engine/internal/scrape/adzuna"
	"jobagg-engine/internal/scrape/careerjunction"
	"jobagg-engine/internal/scrape/pnet"
	"jobagg-engine/internal/scrape/types"
	"jobagg-engine/internal/scrape/util"

	"go.uber.org/zap"
)

// Registry holds the primary adapters in declared priority order.
type Registry struct {
	mu       sync.RWMutex
	order    []domain.SourceID
	adapters map[domain.SourceID]types.Adapter
	timeouts map[domain.SourceID]time.Duration
}

func NewRegistry() *Registry {
	return &Registry{
		adapters: map[domain.SourceID]types.Adapter{},
		timeouts: map[domain.SourceID]time.Duration{},
	}
}

// Register appends a; a zero timeout means the adapter's cost default.
// Registering an id twice replaces the adapter but keeps its position.
func (r *Registry) Register(a types.Adapter, timeout time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := a.ID()
	if _, ok := r.adapters[id]; !ok {
		r.order = append(r.order, id)
	}
	r.adapters[id] = a
	r.timeouts[id] = timeout
}

func (r *Registry) Get(id domain.SourceID) (types.Adapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[id]
	return a, ok
}

func (r *Registry) Timeout(id domain.SourceID) time.Duration {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if t := r.timeouts[id]; t > 0 {
		return t
	}
	if a, ok := r.adapters[id]; ok {
		return a.Cost().DefaultTimeout()
	}
	return types.CostScrape.DefaultTimeout()
}

// Ordered returns ids sorted by priority. Ids not registered keep their
// request order after the known ones.
func (r *Registry) Ordered(ids []domain.SourceID) []domain.SourceID {
	r.mu.RLock()
	defer r.mu.RUnlock()

	want := make(map[domain.SourceID]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	out := make([]domain.SourceID, 0, len(ids))
	for _, id := range r.order {
		if want[id] {
			out = append(out, id)
			delete(want, id)
		}
	}
	for _, id := range ids {
		if want[id] {
			out = append(out, id)
			delete(want, id)
		}
	}
	return out
}

func (r *Registry) IDs() []domain.SourceID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]domain.SourceID(nil), r.order...)
}

func (r *Registry) Statuses() []types.SourceStatus {
	ids := r.IDs()
	out := make([]types.SourceStatus, 0, len(ids))
	for _, id := range ids {
		a, _ := r.Get(id)
		out = append(out, types.SourceStatus{
			ID:      id,
			Cost:    a.Cost(),
			Timeout: r.Timeout(id).String(),
			Enabled: true,
		})
	}
	return out
}

// Deps are shared by every adapter built from config.
type Deps struct {
	HTTP      *http.Client
	Limiter   *util.HostLimiter
	Log       *zap.Logger
	AdzunaKey func(cfgKey string) func() (string, error)
}

// NewAdapter builds the adapter for one configured source and applies its
// per-host rate.
func NewAdapter(src config.Source, d Deps) (types.Adapter, error) {
	var (
		a    types.Adapter
		base string
	)
	switch domain.SourceID(src.ID) {
	case pnet.ID:
		base = orDefault(src.BaseURL, pnet.DefaultBaseURL)
		a = pnet.New(base, d.HTTP, d.Limiter, d.Log)
	case careerjunction.ID:
		base = orDefault(src.BaseURL, careerjunction.DefaultBaseURL)
		a = careerjunction.New(base, d.HTTP, d.Limiter, d.Log)
	case adzuna.ID:
		base = orDefault(src.BaseURL, adzuna.DefaultBaseURL)
		var key func() (string, error)
		if d.AdzunaKey != nil {
			key = d.AdzunaKey(src.AppKey)
		}
		a = adzuna.New(adzuna.Config{
			BaseURL: base,
			Country: src.Country,
			AppID:   src.AppID,
			AppKey:  key,
		}, d.HTTP, d.Limiter, d.Log)
	default:
		return nil, fmt.Errorf("unknown source %q", src.ID)
	}

	if d.Limiter != nil && src.RPS > 0 {
		if u, err := url.Parse(base); err == nil && u.Hostname() != "" {
			d.Limiter.SetHostRate(u.Hostname(), src.RPS, src.Burst)
		}
	}
	return a, nil
}

// Build registers every enabled source in cfg, in file order.
func Build(cfg config.Config, d Deps) (*Registry, error) {
	r := NewRegistry()
	for _, src := range cfg.Sources {
		if !src.Enabled {
			continue
		}
		a, err := NewAdapter(src, d)
		if err != nil {
			return nil, err
		}
		r.Register(a, src.Timeout)
	}
	return r, nil
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
