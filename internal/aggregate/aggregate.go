// Package aggregate runs a search across the requested sources and merges
// their postings into one deduplicated result.
package aggregate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"jobagg-engine/internal/breaker"
	"jobagg-engine/internal/cache"
	"jobagg-engine/internal/dedupe"
	"jobagg-engine/internal/domain"
	"jobagg-engine/internal/guard"
	"jobagg-engine/internal/scrape/types"
	"jobagg-engine/internal/telemetry"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultGlobalDeadline = 300 * time.Second
	DefaultCancelGrace    = 2 * time.Second

	NoJobsFound = "no jobs found, try different search terms or location"
)

// Sources resolves requested ids to adapters. *scrape.Registry implements it.
type Sources interface {
	Get(id domain.SourceID) (types.Adapter, bool)
	Timeout(id domain.SourceID) time.Duration
	Ordered(ids []domain.SourceID) []domain.SourceID
}

// Resolver produces the degraded answer once every source has failed.
// *fallback.Chain implements it.
type Resolver interface {
	Resolve(ctx context.Context, req domain.SearchRequest, fp domain.Fingerprint) (domain.AggregateResult, error)
}

type Options struct {
	Sources  Sources
	Cache    cache.Cache
	Guard    *guard.Guard
	Breakers *breaker.Set
	Fallback Resolver
	Sink     telemetry.Sink
	Log      *zap.Logger

	TTL            time.Duration
	GlobalDeadline time.Duration
	CancelGrace    time.Duration

	// RequestID pulls the caller's request id out of ctx for metrics.
	RequestID func(context.Context) string
	Now       func() time.Time
}

type Orchestrator struct {
	sources  Sources
	cache    cache.Cache
	guard    *guard.Guard
	breakers *breaker.Set
	fallback Resolver
	sink     telemetry.Sink
	log      *zap.Logger
	tracer   trace.Tracer

	ttl            time.Duration
	globalDeadline time.Duration
	cancelGrace    time.Duration
	requestID      func(context.Context) string
	now            func() time.Time
}

func New(o Options) *Orchestrator {
	if o.Log == nil {
		o.Log = zap.NewNop()
	}
	if o.Sink == nil {
		o.Sink = telemetry.Nop{}
	}
	if o.Guard == nil {
		o.Guard = guard.New(guard.DefaultLimit)
	}
	if o.TTL <= 0 {
		o.TTL = cache.DefaultTTL
	}
	if o.GlobalDeadline <= 0 {
		o.GlobalDeadline = DefaultGlobalDeadline
	}
	if o.CancelGrace <= 0 {
		o.CancelGrace = DefaultCancelGrace
	}
	if o.RequestID == nil {
		o.RequestID = func(context.Context) string { return "" }
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return &Orchestrator{
		sources:        o.Sources,
		cache:          o.Cache,
		guard:          o.Guard,
		breakers:       o.Breakers,
		fallback:       o.Fallback,
		sink:           o.Sink,
		log:            o.Log.Named("aggregate"),
		tracer:         telemetry.GetTracer("jobagg-engine/aggregate"),
		ttl:            o.TTL,
		globalDeadline: o.GlobalDeadline,
		cancelGrace:    o.CancelGrace,
		requestID:      o.RequestID,
		now:            o.Now,
	}
}

// Aggregate answers req from cache when possible, otherwise fans out to
// every requested source and merges what comes back. It returns OVERLOADED
// when too many searches for the same fingerprint are in flight.
func (o *Orchestrator) Aggregate(ctx context.Context, req domain.SearchRequest) (domain.AggregateResult, error) {
	start := o.now()
	fp := req.Fingerprint()
	reqID := o.requestID(ctx)

	ctx, span := o.tracer.Start(ctx, "Aggregate", trace.WithAttributes(
		telemetry.String("fingerprint", string(fp)),
		telemetry.Int("sources", len(req.Sources)),
		telemetry.Int("page_budget", req.PageBudget),
	))
	defer span.End()

	tok, err := o.guard.TryAcquire(fp)
	if err != nil {
		o.log.Warn("search rejected", zap.String("request_id", reqID), zap.String("fingerprint", string(fp)), zap.Int("in_flight", o.guard.InFlight(fp)))
		span.RecordError(err)
		span.SetStatus(codes.Error, "overloaded")
		return domain.AggregateResult{}, err
	}
	defer o.guard.Release(tok)

	if res, ok := o.lookup(ctx, fp); ok {
		span.SetAttributes(telemetry.Bool("cache_hit", true))
		o.record(reqID, start, res, 0)
		return res, nil
	}

	results := o.fanOut(ctx, req, fp)
	if err := ctx.Err(); errors.Is(err, context.Canceled) {
		return domain.AggregateResult{}, err
	}

	res, failed := merge(fp, results, o.now())
	span.SetAttributes(
		telemetry.Int("postings", len(res.Postings)),
		telemetry.Int("failed_sources", failed),
	)

	switch {
	case len(res.Postings) > 0:
		if o.cache != nil {
			if err := o.cache.Set(ctx, fp, res, o.ttl); err != nil {
				o.log.Warn("cache write failed", zap.String("fingerprint", string(fp)), zap.Error(err))
			}
		}
	case failed == len(results) && o.fallback != nil:
		// the global deadline may already have fired
		fbCtx := context.WithoutCancel(ctx)
		fb, err := o.fallback.Resolve(fbCtx, req, fp)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "fallback exhausted")
			o.log.Error("fallback exhausted", zap.String("request_id", reqID), zap.String("fingerprint", string(fp)), zap.Error(err))
			return domain.AggregateResult{}, err
		}
		fb.Errors = append(append([]string(nil), res.Errors...), fb.Errors...)
		res = fb
		span.SetAttributes(telemetry.String("fallback", res.FallbackStrategy))
	case failed < len(results):
		res.Errors = append(res.Errors, NoJobsFound)
	}

	o.record(reqID, start, res, failed)
	return res, nil
}

func (o *Orchestrator) lookup(ctx context.Context, fp domain.Fingerprint) (domain.AggregateResult, bool) {
	if o.cache == nil {
		return domain.AggregateResult{}, false
	}
	entry, ok, err := o.cache.Get(ctx, fp)
	if err != nil {
		o.log.Warn("cache read failed, treating as miss", zap.String("fingerprint", string(fp)), zap.Error(err))
		return domain.AggregateResult{}, false
	}
	if !ok {
		return domain.AggregateResult{}, false
	}
	return entry.Result.WithCacheHit(entry.Freshness(o.now())), true
}

// fanOut returns one result per requested source, in priority order.
func (o *Orchestrator) fanOut(ctx context.Context, req domain.SearchRequest, fp domain.Fingerprint) []domain.SourceResult {
	ids := o.sources.Ordered(req.Sources)
	results := make([]domain.SourceResult, len(ids))

	gctx, cancel := context.WithTimeout(ctx, o.globalDeadline)
	defer cancel()

	q := types.QueryFor(req)
	var g errgroup.Group
	for i, id := range ids {
		g.Go(func() error {
			r := o.runSource(gctx, ctx, id, q)
			results[i] = r
			o.breakers.Record(r)
			o.sink.RecordSource(telemetry.FromSourceResult(fp, r, o.now()))
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (o *Orchestrator) runSource(gctx, parent context.Context, id domain.SourceID, q types.Query) domain.SourceResult {
	started := o.now()
	a, ok := o.sources.Get(id)
	if !ok {
		return domain.Failed(id, domain.ErrKindUnknownSource, fmt.Sprintf("unknown source %q", id), nil, 0)
	}
	if err := o.breakers.Allow(id); err != nil {
		return domain.Failed(id, domain.ErrKindCircuitOpen, err.Error(), nil, 0)
	}

	sctx, span := o.tracer.Start(gctx, "source.fetch", trace.WithAttributes(telemetry.String("source", string(id))))
	defer span.End()
	sctx, cancel := context.WithTimeout(sctx, o.sources.Timeout(id))
	defer cancel()

	done := make(chan domain.SourceResult, 1)
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				o.log.Error("adapter panicked", zap.String("source", string(id)), zap.Any("panic", rec))
				done <- domain.Failed(id, domain.ErrKindPanic, fmt.Sprintf("panic: %v", rec), nil, o.now().Sub(started))
			}
		}()
		done <- a.Fetch(sctx, q)
	}()

	var r domain.SourceResult
	select {
	case r = <-done:
	case <-sctx.Done():
		grace := time.NewTimer(o.cancelGrace)
		defer grace.Stop()
		select {
		case r = <-done:
		case <-grace.C:
			kind := domain.ErrKindTimeout
			if errors.Is(parent.Err(), context.Canceled) {
				kind = domain.ErrKindCancelled
			}
			o.log.Warn("adapter ignored cancellation", zap.String("source", string(id)), zap.Duration("grace", o.cancelGrace))
			r = domain.Failed(id, kind, "source did not stop after its deadline", nil, o.now().Sub(started))
		}
	}
	r.SourceID = id

	span.SetAttributes(
		telemetry.Bool("success", r.Success),
		telemetry.Int("postings", len(r.Postings)),
	)
	if !r.Success {
		span.SetAttributes(telemetry.String("error_kind", string(r.ErrorKind)))
		span.SetStatus(codes.Error, r.Error)
	}
	return r
}

// merge concatenates postings in the order of results, which is priority
// order, and dedupes them.
func merge(fp domain.Fingerprint, results []domain.SourceResult, now time.Time) (domain.AggregateResult, int) {
	var all []domain.Posting
	var diags []string
	counts := make(map[domain.SourceID]int, len(results))
	failed := 0
	for _, r := range results {
		counts[r.SourceID] = len(r.Postings)
		all = append(all, r.Postings...)
		if !r.Success {
			failed++
			diags = append(diags, fmt.Sprintf("%s: %s", r.SourceID, r.Error))
		}
	}
	unique, st := dedupe.WithStats(all)
	if unique == nil {
		unique = []domain.Posting{}
	}
	return domain.AggregateResult{
		Fingerprint:       fp,
		Postings:          unique,
		SourceCounts:      counts,
		Errors:            diags,
		FetchedAt:         now,
		TotalCount:        len(unique),
		DuplicatesRemoved: st.Removed,
	}, failed
}

func (o *Orchestrator) record(reqID string, start time.Time, res domain.AggregateResult, failed int) {
	o.sink.RecordAggregate(telemetry.AggregateMetric{
		At:               o.now(),
		RequestID:        reqID,
		Fingerprint:      string(res.Fingerprint),
		Postings:         len(res.Postings),
		Duplicates:       res.DuplicatesRemoved,
		Sources:          len(res.SourceCounts),
		FailedSources:    failed,
		CacheHit:         res.ServedFromCache,
		Degraded:         res.Degraded,
		FallbackStrategy: res.FallbackStrategy,
		ElapsedMs:        o.now().Sub(start).Milliseconds(),
	})
	o.log.Info("search done",
		zap.String("request_id", reqID),
		zap.String("fingerprint", string(res.Fingerprint)),
		zap.Int("postings", len(res.Postings)),
		zap.Int("failed_sources", failed),
		zap.Bool("cached", res.ServedFromCache),
		zap.Bool("degraded", res.Degraded),
	)
}
