// Package alerts re-runs saved searches on a schedule through the same
// orchestrator interactive searches use.
package alerts

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"jobagg-engine/internal/config"
	"jobagg-engine/internal/domain"
	apperr "jobagg-engine/internal/errors"
	"jobagg-engine/internal/events"
	"jobagg-engine/internal/scheduler"

	"go.uber.org/zap"
)

type Searcher interface {
	Aggregate(ctx context.Context, req domain.SearchRequest) (domain.AggregateResult, error)
}

type Status struct {
	Name        string             `json:"name"`
	Fingerprint domain.Fingerprint `json:"fingerprint"`
	Every       string             `json:"every"`
	Running     bool               `json:"running"`
	LastRunAt   string             `json:"lastRunAt,omitempty"`
	LastOkAt    string             `json:"lastOkAt,omitempty"`
	LastError   string             `json:"lastError,omitempty"`
	LastCount   int                `json:"lastCount"`
	LastCached  bool               `json:"lastCached"`
	Degraded    bool               `json:"degraded"`
}

type alert struct {
	name  string
	req   domain.SearchRequest
	every time.Duration
}

type Runner struct {
	search Searcher
	hub    *events.Hub
	log    *zap.Logger
	now    func() time.Time

	alerts []alert

	mu     sync.Mutex
	status map[string]Status
}

// NewRunner validates every alert up front. Requests are built the same way
// as interactive ones so they share cache entries and guard slots.
func NewRunner(s Searcher, list []config.Alert, budget domain.Budget, hub *events.Hub, log *zap.Logger) (*Runner, error) {
	if log == nil {
		log = zap.NewNop()
	}
	r := &Runner{
		search: s,
		hub:    hub,
		log:    log.Named("alerts"),
		now:    time.Now,
		status: map[string]Status{},
	}
	for _, a := range list {
		req, err := domain.NewSearchRequest(a.Query, a.Location, a.Sources, a.PageBudget, budget)
		if err != nil {
			return nil, fmt.Errorf("alert %q: %w", a.Name, err)
		}
		if a.Every <= 0 {
			return nil, apperr.InvalidInput(fmt.Sprintf("alert %q: every must be positive", a.Name), nil)
		}
		r.alerts = append(r.alerts, alert{name: a.Name, req: req, every: a.Every})
		r.status[a.Name] = Status{Name: a.Name, Fingerprint: req.Fingerprint(), Every: a.Every.String()}
	}
	return r, nil
}

// Start schedules every alert in its own goroutine until ctx is done.
func (r *Runner) Start(ctx context.Context) {
	for _, a := range r.alerts {
		go scheduler.Every(ctx, a.every, "alert:"+a.name, r.log, func(ctx context.Context) error {
			return r.run(ctx, a)
		})
	}
	if len(r.alerts) > 0 {
		r.log.Info("alerts scheduled", zap.Int("count", len(r.alerts)))
	}
}

// RunOnce runs the named alert immediately.
func (r *Runner) RunOnce(ctx context.Context, name string) error {
	for _, a := range r.alerts {
		if a.name == name {
			return r.run(ctx, a)
		}
	}
	return apperr.NotFound(fmt.Sprintf("alert %q not found", name), nil)
}

func (r *Runner) run(ctx context.Context, a alert) error {
	r.update(a.name, func(st *Status) {
		st.Running = true
		st.LastRunAt = r.now().Format(time.RFC3339)
	})

	res, err := r.search.Aggregate(ctx, a.req)

	if apperr.Is(err, apperr.ErrTypeOverloaded) {
		r.log.Info("alert skipped, search already in flight", zap.String("alert", a.name))
		r.update(a.name, func(st *Status) { st.Running = false })
		return nil
	}

	r.update(a.name, func(st *Status) {
		st.Running = false
		if err != nil {
			st.LastError = err.Error()
			return
		}
		st.LastError = ""
		st.LastOkAt = r.now().Format(time.RFC3339)
		st.LastCount = len(res.Postings)
		st.LastCached = res.ServedFromCache
		st.Degraded = res.Degraded
	})
	if err != nil {
		return err
	}

	r.log.Info("alert ok", zap.String("alert", a.name), zap.Int("postings", len(res.Postings)), zap.Bool("cached", res.ServedFromCache))
	if r.hub != nil {
		r.hub.Emit(events.New(events.TypeAlertRun, r.Status(a.name)).ForSearch("", string(res.Fingerprint)))
	}
	return nil
}

func (r *Runner) update(name string, fn func(*Status)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	st := r.status[name]
	fn(&st)
	r.status[name] = st
}

func (r *Runner) Status(name string) Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status[name]
}

// Statuses returns a snapshot sorted by alert name.
func (r *Runner) Statuses() []Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Status, 0, len(r.status))
	for _, st := range r.status {
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
