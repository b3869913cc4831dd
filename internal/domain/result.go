package domain

import "time"

type ErrorKind string

const (
	ErrKindNone          ErrorKind = ""
	ErrKindTimeout       ErrorKind = "timeout"
	ErrKindCancelled     ErrorKind = "cancelled"
	ErrKindNetwork       ErrorKind = "network"
	ErrKindBlocked       ErrorKind = "blocked"
	ErrKindHTTPStatus    ErrorKind = "http_status"
	ErrKindParse         ErrorKind = "parse"
	ErrKindUnknownSource ErrorKind = "unknown_source"
	ErrKindCircuitOpen   ErrorKind = "circuit_open"
	ErrKindPanic         ErrorKind = "panic"
	ErrKindNotConfigured ErrorKind = "not_configured"
)

// SourceResult is the outcome of one adapter invocation. Success is the
// discriminant: a failed result may still carry the postings normalized
// before the failure, flagged Partial.
type SourceResult struct {
	SourceID  SourceID  `json:"source"`
	Postings  []Posting `json:"postings"`
	Success   bool      `json:"success"`
	ErrorKind ErrorKind `json:"errorKind,omitempty"`
	Error     string    `json:"error,omitempty"`
	ElapsedMs int64     `json:"elapsedMs"`
	Partial   bool      `json:"partial,omitempty"`
}

func Succeeded(id SourceID, postings []Posting, elapsed time.Duration) SourceResult {
	return SourceResult{
		SourceID:  id,
		Postings:  postings,
		Success:   true,
		ElapsedMs: elapsed.Milliseconds(),
	}
}

func Failed(id SourceID, kind ErrorKind, msg string, partial []Posting, elapsed time.Duration) SourceResult {
	return SourceResult{
		SourceID:  id,
		Postings:  partial,
		Success:   false,
		ErrorKind: kind,
		Error:     msg,
		ElapsedMs: elapsed.Milliseconds(),
		Partial:   len(partial) > 0,
	}
}

type CacheAge string

const (
	CacheAgeFresh CacheAge = "fresh"
	CacheAgeStale CacheAge = "stale"
)

type AggregateResult struct {
	Fingerprint       Fingerprint      `json:"fingerprint"`
	Postings          []Posting        `json:"postings"`
	SourceCounts      map[SourceID]int `json:"sourceCounts"`
	Errors            []string         `json:"errors,omitempty"`
	ServedFromCache   bool             `json:"cached"`
	CacheAge          CacheAge         `json:"cacheAge,omitempty"`
	FetchedAt         time.Time        `json:"fetchedAt"`
	Degraded          bool             `json:"degraded,omitempty"`
	IsSynthetic       bool             `json:"isSynthetic,omitempty"`
	FallbackStrategy  string           `json:"fallbackStrategy,omitempty"`
	TotalCount        int              `json:"totalCount"`
	DuplicatesRemoved int              `json:"duplicatesRemoved"`
}

// WithCacheHit returns a copy marked as served from cache. Slices and maps
// are copied so the caller cannot reach into a stored entry.
func (r AggregateResult) WithCacheHit(age CacheAge) AggregateResult {
	out := r.Clone()
	out.ServedFromCache = true
	out.CacheAge = age
	return out
}

func (r AggregateResult) Clone() AggregateResult {
	out := r
	if r.Postings != nil {
		out.Postings = append([]Posting(nil), r.Postings...)
	}
	if r.Errors != nil {
		out.Errors = append([]string(nil), r.Errors...)
	}
	if r.SourceCounts != nil {
		out.SourceCounts = make(map[SourceID]int, len(r.SourceCounts))
		for k, v := range r.SourceCounts {
			out.SourceCounts[k] = v
		}
	}
	return out
}

// Cacheable is the write invariant of the aggregation cache.
func (r AggregateResult) Cacheable() bool {
	return len(r.Postings) > 0 && !r.Degraded && !r.IsSynthetic
}

type CacheEntry struct {
	Fingerprint Fingerprint     `json:"fingerprint"`
	Result      AggregateResult `json:"result"`
	StoredAt    time.Time       `json:"storedAt"`
	ExpiresAt   time.Time       `json:"expiresAt"`
}

func (e CacheEntry) Expired(now time.Time) bool {
	return !now.Before(e.ExpiresAt)
}

// Freshness is "fresh" for the first half of the entry's TTL.
func (e CacheEntry) Freshness(now time.Time) CacheAge {
	ttl := e.ExpiresAt.Sub(e.StoredAt)
	if now.Sub(e.StoredAt) < ttl/2 {
		return CacheAgeFresh
	}
	return CacheAgeStale
}
