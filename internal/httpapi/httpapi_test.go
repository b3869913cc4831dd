package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"jobagg-engine/internal/alerts"
	"jobagg-engine/internal/cache"
	"jobagg-engine/internal/config"
	"jobagg-engine/internal/domain"
	apperr "jobagg-engine/internal/errors"
	"jobagg-engine/internal/events"
	"jobagg-engine/internal/scrape/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSearch struct {
	got domain.SearchRequest
	res domain.AggregateResult
	err error
}

func (f *fakeSearch) Aggregate(_ context.Context, req domain.SearchRequest) (domain.AggregateResult, error) {
	f.got = req
	return f.res, f.err
}

type fakeSources struct{}

func (fakeSources) Statuses() []types.SourceStatus {
	return []types.SourceStatus{{ID: "pnet", Cost: types.CostScrape, Timeout: "3m0s", Enabled: true}}
}

type fakeCache struct {
	invalidated []domain.Fingerprint
	stats       bool
}

func (f *fakeCache) Invalidate(_ context.Context, fp domain.Fingerprint) error {
	f.invalidated = append(f.invalidated, fp)
	return nil
}

func (f *fakeCache) Stats() (cache.Stats, bool) {
	return cache.Stats{Backend: "memory", Size: 1}, f.stats
}

type fakeAlerts struct{}

func (fakeAlerts) Statuses() []alerts.Status { return []alerts.Status{{Name: "dev-ct", LastCount: 3}} }

func newDeps(s *fakeSearch, c *fakeCache) Deps {
	var cfgVal atomic.Value
	cfg := config.Default()
	cfg.Sources = append(cfg.Sources, config.Source{ID: "adzuna", Enabled: true, AppID: "id", AppKey: "secret"})
	cfgVal.Store(cfg)
	return Deps{
		Hub:     events.NewHub(),
		CfgVal:  &cfgVal,
		Search:  s,
		Sources: fakeSources{},
		Cache:   c,
		Alerts:  fakeAlerts{},
	}
}

func newServer(t *testing.T, d Deps) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(NewHandler(NewMux(d), nil, RateLimitConfig{PerMinute: 5, Burst: 5}))
	t.Cleanup(srv.Close)
	return srv
}

func postSearch(t *testing.T, srv *httptest.Server, body string, headers map[string]string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, srv.URL+"/api/search", strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeError(t *testing.T, resp *http.Response) APIError {
	t.Helper()
	var e APIError
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&e))
	return e
}

const devSearch = `{"query":"software developer","location":"Cape Town","sources":["pnet","careerjunction"]}`

func TestSearch_ReturnsAggregate(t *testing.T) {
	s := &fakeSearch{res: domain.AggregateResult{
		Fingerprint:  "fp",
		Postings:     []domain.Posting{{Title: "Dev", Company: "X", SourceURL: "u1"}},
		SourceCounts: map[domain.SourceID]int{"pnet": 1, "careerjunction": 0},
		TotalCount:   1,
		FetchedAt:    time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC),
	}}
	srv := newServer(t, newDeps(s, &fakeCache{}))

	resp := postSearch(t, srv, devSearch, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, true, body["success"])
	assert.Equal(t, float64(1), body["count"])
	assert.Equal(t, false, body["cached"])
	assert.Equal(t, "fp", body["fingerprint"])
	assert.NotContains(t, body, "degraded")
	assert.NotContains(t, body, "errors")

	assert.Equal(t, []domain.SourceID{"pnet", "careerjunction"}, s.got.Sources)
	assert.Equal(t, 1, s.got.PageBudget)
}

func TestSearch_SourceIDsReportedLowerCase(t *testing.T) {
	s := &fakeSearch{res: domain.AggregateResult{SourceCounts: map[domain.SourceID]int{"pnet": 2}}}
	srv := newServer(t, newDeps(s, &fakeCache{}))

	resp := postSearch(t, srv, `{"query":"dev","location":"Durban","sources":["PNet","pnet"]}`, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []domain.SourceID{"pnet"}, s.got.Sources)

	var body SearchResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, map[domain.SourceID]int{"pnet": 2}, body.SourceCounts)
}

func TestSearch_ClampsPageBudget(t *testing.T) {
	s := &fakeSearch{}
	srv := newServer(t, newDeps(s, &fakeCache{}))

	resp := postSearch(t, srv, `{"query":"dev","location":"Durban","sources":["pnet"],"pageBudget":50}`, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 5, s.got.PageBudget)
}

func TestSearch_InvalidInput(t *testing.T) {
	srv := newServer(t, newDeps(&fakeSearch{}, &fakeCache{}))

	resp := postSearch(t, srv, `{"query":"","location":"Cape Town","sources":["pnet"]}`, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "invalid_input", decodeError(t, resp).Error.Code)

	resp = postSearch(t, srv, `{"query":"dev","bogus":1}`, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "invalid_json", decodeError(t, resp).Error.Code)
}

func TestSearch_Overloaded(t *testing.T) {
	s := &fakeSearch{err: apperr.Overloaded("too many concurrent searches", nil)}
	srv := newServer(t, newDeps(s, &fakeCache{}))

	resp := postSearch(t, srv, devSearch, map[string]string{"X-Request-ID": "req-42"})
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	e := decodeError(t, resp)
	assert.Equal(t, "too_many_concurrent_searches", e.Error.Code)
	assert.Equal(t, "req-42", e.Error.RequestID)
}

func TestSearch_FallbackExhausted(t *testing.T) {
	s := &fakeSearch{err: apperr.FallbackExhausted("all strategies failed", nil)}
	srv := newServer(t, newDeps(s, &fakeCache{}))

	resp := postSearch(t, srv, devSearch, nil)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, "fallback_exhausted", decodeError(t, resp).Error.Code)
}

func TestSearch_ClientRateLimit(t *testing.T) {
	srv := newServer(t, newDeps(&fakeSearch{}, &fakeCache{}))
	alice := map[string]string{"X-User-ID": "alice"}

	for i := 0; i < 5; i++ {
		resp := postSearch(t, srv, devSearch, alice)
		require.Equal(t, http.StatusOK, resp.StatusCode, "request %d", i)
	}
	resp := postSearch(t, srv, devSearch, alice)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "60", resp.Header.Get("Retry-After"))
	assert.Equal(t, "rate_limited", decodeError(t, resp).Error.Code)

	resp = postSearch(t, srv, devSearch, map[string]string{"X-User-ID": "bob"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// other routes are not limited
	for i := 0; i < 7; i++ {
		r, err := http.Get(srv.URL + "/health")
		require.NoError(t, err)
		r.Body.Close()
		assert.Equal(t, http.StatusOK, r.StatusCode)
	}
}

func TestClientKey(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "10.0.0.1:5555"
	assert.Equal(t, "ip:10.0.0.1", ClientKey(r))

	r.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	assert.Equal(t, "ip:203.0.113.9", ClientKey(r))

	r.Header.Set("X-User-ID", "u-1")
	assert.Equal(t, "user:u-1", ClientKey(r))
}

func TestSources_List(t *testing.T) {
	srv := newServer(t, newDeps(&fakeSearch{}, &fakeCache{}))
	resp, err := http.Get(srv.URL + "/api/sources")
	require.NoError(t, err)
	defer resp.Body.Close()

	var body struct {
		Sources []types.SourceStatus `json:"sources"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Len(t, body.Sources, 1)
	assert.Equal(t, domain.SourceID("pnet"), body.Sources[0].ID)
}

func TestCache_InvalidateUsesSearchFingerprint(t *testing.T) {
	c := &fakeCache{}
	d := newDeps(&fakeSearch{}, c)
	ch := d.Hub.Subscribe()
	defer d.Hub.Unsubscribe(ch)
	srv := newServer(t, d)

	req, _ := http.NewRequest(http.MethodDelete, srv.URL+"/api/cache?query=Software+Developer&location=Cape+Town&sources=careerjunction,pnet", nil)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	want := domain.FingerprintOf("Software Developer", "Cape Town", []domain.SourceID{"pnet", "careerjunction"})
	assert.Equal(t, []domain.Fingerprint{want}, c.invalidated)
	var e events.Event
	require.NoError(t, json.Unmarshal([]byte(<-ch), &e))
	assert.Equal(t, events.TypeCacheCleared, e.Type)
	assert.Equal(t, string(want), e.Fingerprint)
}

func TestCache_Stats(t *testing.T) {
	srv := newServer(t, newDeps(&fakeSearch{}, &fakeCache{}))
	resp, err := http.Get(srv.URL + "/api/cache/stats")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotImplemented, resp.StatusCode)

	srv = newServer(t, newDeps(&fakeSearch{}, &fakeCache{stats: true}))
	resp, err = http.Get(srv.URL + "/api/cache/stats")
	require.NoError(t, err)
	defer resp.Body.Close()
	var st cache.Stats
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&st))
	assert.Equal(t, "memory", st.Backend)
}

func TestConfig_GetRedactsSecrets(t *testing.T) {
	srv := newServer(t, newDeps(&fakeSearch{}, &fakeCache{}))
	resp, err := http.Get(srv.URL + "/config")
	require.NoError(t, err)
	defer resp.Body.Close()

	var raw strings.Builder
	_, _ = io.Copy(&raw, resp.Body)
	assert.NotContains(t, raw.String(), "secret")
}

func TestSecrets_SetAdzuna(t *testing.T) {
	var stored string
	d := newDeps(&fakeSearch{}, &fakeCache{})
	d.SetAdzunaKey = func(k string) error { stored = k; return nil }
	srv := newServer(t, d)

	resp, err := http.Post(srv.URL+"/api/secrets/adzuna", "application/json", strings.NewReader(`{"appKey":"k-123"}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "k-123", stored)
}

func TestAlerts_Status(t *testing.T) {
	srv := newServer(t, newDeps(&fakeSearch{}, &fakeCache{}))
	resp, err := http.Get(srv.URL + "/api/alerts/status")
	require.NoError(t, err)
	defer resp.Body.Close()

	var body struct {
		Alerts []alerts.Status `json:"alerts"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Len(t, body.Alerts, 1)
	assert.Equal(t, 3, body.Alerts[0].LastCount)
}

func TestRecover_ReturnsEnvelope(t *testing.T) {
	h := NewHandler(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { panic("boom") }), nil, RateLimitConfig{})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	var e APIError
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &e))
	assert.Equal(t, "internal_error", e.Error.Code)
	assert.NotEmpty(t, e.Error.RequestID)
}

func TestMethodNotAllowed(t *testing.T) {
	srv := newServer(t, newDeps(&fakeSearch{}, &fakeCache{}))
	resp, err := http.Get(srv.URL + "/api/search")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}
