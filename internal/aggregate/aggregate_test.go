package aggregate

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"jobagg-engine/internal/breaker"
	"jobagg-engine/internal/cache"
	"jobagg-engine/internal/domain"
	apperr "jobagg-engine/internal/errors"
	"jobagg-engine/internal/fallback"
	"jobagg-engine/internal/guard"
	"jobagg-engine/internal/scrape"
	"jobagg-engine/internal/scrape/types"
	"jobagg-engine/internal/telemetry"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAdapter struct {
	id    domain.SourceID
	calls atomic.Int32
	fetch func(ctx context.Context, q types.Query) domain.SourceResult
}

func (f *fakeAdapter) ID() domain.SourceID { return f.id }
func (f *fakeAdapter) Cost() types.Cost    { return types.CostScrape }
func (f *fakeAdapter) Fetch(ctx context.Context, q types.Query) domain.SourceResult {
	f.calls.Add(1)
	return f.fetch(ctx, q)
}

func returns(id domain.SourceID, postings ...domain.Posting) *fakeAdapter {
	return &fakeAdapter{id: id, fetch: func(context.Context, types.Query) domain.SourceResult {
		return domain.Succeeded(id, postings, time.Millisecond)
	}}
}

func fails(id domain.SourceID, kind domain.ErrorKind) *fakeAdapter {
	return &fakeAdapter{id: id, fetch: func(context.Context, types.Query) domain.SourceResult {
		return domain.Failed(id, kind, "boom", nil, time.Millisecond)
	}}
}

type recordingSink struct {
	mu   sync.Mutex
	srcs []telemetry.SourceMetric
	aggs []telemetry.AggregateMetric
}

func (s *recordingSink) RecordSource(m telemetry.SourceMetric) {
	s.mu.Lock()
	s.srcs = append(s.srcs, m)
	s.mu.Unlock()
}

func (s *recordingSink) RecordAggregate(m telemetry.AggregateMetric) {
	s.mu.Lock()
	s.aggs = append(s.aggs, m)
	s.mu.Unlock()
}

type fixture struct {
	reg   *scrape.Registry
	cache *cache.Memory
	sink  *recordingSink
	opts  Options
}

func newFixture(adapters ...*fakeAdapter) *fixture {
	reg := scrape.NewRegistry()
	for _, a := range adapters {
		reg.Register(a, time.Second)
	}
	mem := cache.NewMemory(cache.MemoryOptions{MaxEntries: 100})
	sink := &recordingSink{}
	return &fixture{
		reg:   reg,
		cache: mem,
		sink:  sink,
		opts: Options{
			Sources:     reg,
			Cache:       cache.NewGuarded(mem, nil),
			Fallback:    fallback.NewChain(nil, fallback.NewSynthetic(10)),
			Sink:        sink,
			CancelGrace: 50 * time.Millisecond,
		},
	}
}

func (f *fixture) orchestrator() *Orchestrator { return New(f.opts) }

func request(t *testing.T, sources ...string) domain.SearchRequest {
	t.Helper()
	req, err := domain.NewSearchRequest("software developer", "Cape Town", sources, 1, domain.Budget{Default: 1, Max: 5})
	require.NoError(t, err)
	return req
}

func TestAggregate_CapeTownScenario(t *testing.T) {
	a := returns("a", domain.Posting{Title: "Dev", Company: "X", SourceURL: "u1", SourceID: "a"})
	b := returns("b",
		domain.Posting{Title: "Dev", Company: "X", SourceURL: "u1", SourceID: "b"},
		domain.Posting{Title: "Designer", Company: "Y", SourceURL: "u2", SourceID: "b"},
	)
	f := newFixture(a, b)

	res, err := f.orchestrator().Aggregate(context.Background(), request(t, "A", "B"))
	require.NoError(t, err)

	require.Len(t, res.Postings, 2)
	assert.Equal(t, "u1", res.Postings[0].SourceURL)
	assert.Equal(t, "u2", res.Postings[1].SourceURL)
	// source ids are case-insensitive and reported in lower case
	assert.Equal(t, map[domain.SourceID]int{"a": 1, "b": 2}, res.SourceCounts)
	assert.Equal(t, 1, res.DuplicatesRemoved)
	assert.Equal(t, 2, res.TotalCount)
	assert.False(t, res.ServedFromCache)
	assert.Empty(t, res.Errors)
}

func TestAggregate_SourceStampedIDsDoNotCollapseJobs(t *testing.T) {
	a := returns("a",
		domain.Posting{CanonicalID: "same", Title: "Dev", Company: "X", SourceURL: "https://a.example/1"},
		domain.Posting{CanonicalID: "same", Title: "Designer", Company: "Y", SourceURL: "https://a.example/2"},
	)
	f := newFixture(a)

	res, err := f.orchestrator().Aggregate(context.Background(), request(t, "a"))
	require.NoError(t, err)
	require.Len(t, res.Postings, 2)
	assert.Equal(t, 0, res.DuplicatesRemoved)
	assert.NotEqual(t, "same", res.Postings[0].CanonicalID)
}

func TestAggregate_MergesInPriorityOrder(t *testing.T) {
	slow := &fakeAdapter{id: "a", fetch: func(context.Context, types.Query) domain.SourceResult {
		time.Sleep(50 * time.Millisecond)
		return domain.Succeeded("a", []domain.Posting{{Title: "Slow", Company: "A", SourceURL: "https://a/1"}}, 0)
	}}
	fast := returns("b", domain.Posting{Title: "Fast", Company: "B", SourceURL: "https://b/1"})
	f := newFixture(slow, fast)

	res, err := f.orchestrator().Aggregate(context.Background(), request(t, "b", "a"))
	require.NoError(t, err)
	require.Len(t, res.Postings, 2)
	assert.Equal(t, "Slow", res.Postings[0].Title)
	assert.Equal(t, "Fast", res.Postings[1].Title)
}

func TestAggregate_PartialFailureTolerance(t *testing.T) {
	good := returns("a", domain.Posting{Title: "Dev", Company: "X", SourceURL: "https://a/1"})
	bad := fails("b", domain.ErrKindNetwork)
	f := newFixture(good, bad)

	res, err := f.orchestrator().Aggregate(context.Background(), request(t, "a", "b"))
	require.NoError(t, err)

	require.Len(t, res.Postings, 1)
	assert.False(t, res.Degraded)
	assert.Equal(t, []string{"b: boom"}, res.Errors)

	_, ok, _ := f.cache.Get(context.Background(), res.Fingerprint)
	assert.True(t, ok, "non-empty result should be cached")
}

func TestAggregate_PartialPostingsFromFailedSourceAreKept(t *testing.T) {
	p := domain.Posting{Title: "Dev", Company: "X", SourceURL: "https://a/1"}
	a := &fakeAdapter{id: "a", fetch: func(context.Context, types.Query) domain.SourceResult {
		return domain.Failed("a", domain.ErrKindTimeout, "deadline", []domain.Posting{p}, 0)
	}}
	f := newFixture(a)

	res, err := f.orchestrator().Aggregate(context.Background(), request(t, "a"))
	require.NoError(t, err)
	require.Len(t, res.Postings, 1)
	assert.False(t, res.Degraded)
	assert.Equal(t, 1, res.SourceCounts["a"])
}

func TestAggregate_TimeoutIsolation(t *testing.T) {
	block := make(chan struct{})
	defer close(block)
	stuck := &fakeAdapter{id: "a", fetch: func(context.Context, types.Query) domain.SourceResult {
		<-block // ignores its context
		return domain.Succeeded("a", nil, 0)
	}}
	good := returns("b", domain.Posting{Title: "Dev", Company: "X", SourceURL: "https://b/1"})
	f := newFixture(stuck, good)
	f.opts.GlobalDeadline = 100 * time.Millisecond

	start := time.Now()
	res, err := f.orchestrator().Aggregate(context.Background(), request(t, "a", "b"))
	elapsed := time.Since(start)
	require.NoError(t, err)

	assert.Less(t, elapsed, time.Second)
	require.Len(t, res.Postings, 1)
	assert.Equal(t, []string{"a: source did not stop after its deadline"}, res.Errors)

	f.sink.mu.Lock()
	defer f.sink.mu.Unlock()
	var kinds []domain.ErrorKind
	for _, m := range f.sink.srcs {
		kinds = append(kinds, m.ErrorKind)
	}
	assert.ElementsMatch(t, []domain.ErrorKind{domain.ErrKindTimeout, domain.ErrKindNone}, kinds)
}

func TestAggregate_CacheHitMakesNoAdapterCalls(t *testing.T) {
	a := returns("a", domain.Posting{Title: "Dev", Company: "X", SourceURL: "https://a/1"})
	f := newFixture(a)
	o := f.orchestrator()

	first, err := o.Aggregate(context.Background(), request(t, "a"))
	require.NoError(t, err)
	second, err := o.Aggregate(context.Background(), request(t, "a"))
	require.NoError(t, err)

	assert.Equal(t, int32(1), a.calls.Load())
	assert.False(t, first.ServedFromCache)
	assert.True(t, second.ServedFromCache)
	assert.Equal(t, domain.CacheAgeFresh, second.CacheAge)
	assert.Equal(t, first.Postings, second.Postings)
}

func TestAggregate_FallbackWhenAllSourcesFail(t *testing.T) {
	a := fails("a", domain.ErrKindBlocked)
	b := fails("b", domain.ErrKindNetwork)
	f := newFixture(a, b)
	o := f.orchestrator()

	res, err := o.Aggregate(context.Background(), request(t, "a", "b"))
	require.NoError(t, err)

	assert.True(t, res.Degraded)
	assert.True(t, res.IsSynthetic)
	assert.Equal(t, "synthetic", res.FallbackStrategy)
	assert.Len(t, res.Postings, 10)
	assert.Contains(t, res.Errors, "a: boom")
	assert.Contains(t, res.Errors, "b: boom")

	// degraded answers are never cached
	_, ok, _ := f.cache.Get(context.Background(), res.Fingerprint)
	assert.False(t, ok)
	_, err = o.Aggregate(context.Background(), request(t, "a", "b"))
	require.NoError(t, err)
	assert.Equal(t, int32(2), a.calls.Load())
}

func TestAggregate_SecondaryBeforeSynthetic(t *testing.T) {
	secondary := returns("adzuna", domain.Posting{Title: "Dev", Company: "X", SourceURL: "https://adzuna/1", SourceID: "adzuna"})
	f := newFixture(fails("a", domain.ErrKindBlocked))
	f.opts.Fallback = fallback.NewChain(nil, fallback.NewSecondary(secondary, time.Second), fallback.NewSynthetic(10))

	res, err := f.orchestrator().Aggregate(context.Background(), request(t, "a"))
	require.NoError(t, err)
	assert.True(t, res.Degraded)
	assert.False(t, res.IsSynthetic)
	assert.Equal(t, "secondary:adzuna", res.FallbackStrategy)
	require.Len(t, res.Postings, 1)
}

func TestAggregate_FallbackExhausted(t *testing.T) {
	f := newFixture(fails("a", domain.ErrKindBlocked))
	f.opts.Fallback = fallback.NewChain(nil)

	_, err := f.orchestrator().Aggregate(context.Background(), request(t, "a"))
	assert.True(t, apperr.Is(err, apperr.ErrTypeFallbackExhausted))
}

func TestAggregate_EmptySuccessIsNotCached(t *testing.T) {
	a := returns("a")
	f := newFixture(a)

	res, err := f.orchestrator().Aggregate(context.Background(), request(t, "a"))
	require.NoError(t, err)

	assert.Empty(t, res.Postings)
	assert.NotNil(t, res.Postings)
	assert.False(t, res.Degraded)
	assert.Equal(t, []string{NoJobsFound}, res.Errors)
	_, ok, _ := f.cache.Get(context.Background(), res.Fingerprint)
	assert.False(t, ok)
}

func TestAggregate_UnknownSource(t *testing.T) {
	good := returns("a", domain.Posting{Title: "Dev", Company: "X", SourceURL: "https://a/1"})
	f := newFixture(good)

	res, err := f.orchestrator().Aggregate(context.Background(), request(t, "a", "monster"))
	require.NoError(t, err)
	require.Len(t, res.Postings, 1)
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0], "monster")

	f.sink.mu.Lock()
	defer f.sink.mu.Unlock()
	var found bool
	for _, m := range f.sink.srcs {
		if m.Source == "monster" {
			found = true
			assert.Equal(t, domain.ErrKindUnknownSource, m.ErrorKind)
		}
	}
	assert.True(t, found)
}

func TestAggregate_PanicBecomesFailure(t *testing.T) {
	bad := &fakeAdapter{id: "a", fetch: func(context.Context, types.Query) domain.SourceResult {
		panic("selector exploded")
	}}
	good := returns("b", domain.Posting{Title: "Dev", Company: "X", SourceURL: "https://b/1"})
	f := newFixture(bad, good)

	res, err := f.orchestrator().Aggregate(context.Background(), request(t, "a", "b"))
	require.NoError(t, err)
	require.Len(t, res.Postings, 1)
	assert.Equal(t, []string{"a: panic: selector exploded"}, res.Errors)
}

func TestAggregate_OverloadedWhenGuardFull(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{}, 1)
	a := &fakeAdapter{id: "a", fetch: func(context.Context, types.Query) domain.SourceResult {
		started <- struct{}{}
		<-release
		return domain.Succeeded("a", []domain.Posting{{Title: "Dev", Company: "X", SourceURL: "https://a/1"}}, 0)
	}}
	f := newFixture(a)
	f.opts.Guard = guard.New(1)
	o := f.orchestrator()
	req := request(t, "a")

	done := make(chan error, 1)
	go func() {
		_, err := o.Aggregate(context.Background(), req)
		done <- err
	}()
	<-started

	_, err := o.Aggregate(context.Background(), req)
	assert.True(t, apperr.Is(err, apperr.ErrTypeOverloaded))

	close(release)
	require.NoError(t, <-done)
	assert.Equal(t, 0, f.opts.Guard.InFlight(req.Fingerprint()))
}

func TestAggregate_OpenCircuitSkipsAdapter(t *testing.T) {
	a := fails("a", domain.ErrKindBlocked)
	f := newFixture(a)
	f.opts.Breakers = breaker.NewSet(breaker.Config{FailureThreshold: 1, ResetTimeout: time.Hour})
	o := f.orchestrator()

	_, err := o.Aggregate(context.Background(), request(t, "a"))
	require.NoError(t, err)
	res, err := o.Aggregate(context.Background(), request(t, "a"))
	require.NoError(t, err)

	assert.Equal(t, int32(1), a.calls.Load())
	assert.True(t, res.Degraded)
	require.NotEmpty(t, res.Errors)
	assert.Contains(t, res.Errors[0], "a: ")
}

func TestAggregate_CallerCancellation(t *testing.T) {
	a := &fakeAdapter{id: "a", fetch: func(ctx context.Context, _ types.Query) domain.SourceResult {
		<-ctx.Done()
		return domain.Failed("a", domain.ErrKindCancelled, ctx.Err().Error(), nil, 0)
	}}
	f := newFixture(a)
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := f.orchestrator().Aggregate(ctx, request(t, "a"))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestAggregate_EmitsAggregateMetric(t *testing.T) {
	f := newFixture(returns("a", domain.Posting{Title: "Dev", Company: "X", SourceURL: "https://a/1"}))
	f.opts.RequestID = func(context.Context) string { return "req-1" }

	_, err := f.orchestrator().Aggregate(context.Background(), request(t, "a"))
	require.NoError(t, err)

	f.sink.mu.Lock()
	defer f.sink.mu.Unlock()
	require.Len(t, f.sink.aggs, 1)
	assert.Equal(t, "req-1", f.sink.aggs[0].RequestID)
	assert.Equal(t, 1, f.sink.aggs[0].Postings)
	assert.False(t, f.sink.aggs[0].CacheHit)
}
