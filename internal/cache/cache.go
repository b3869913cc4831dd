// Package cache stores aggregate results by search fingerprint.
package cache

import (
	"context"
	"time"

	"jobagg-engine/internal/domain"
)

const DefaultTTL = 10 * time.Minute

// Cache is implemented by every backend. Get reports a miss for expired
// entries; backends never hand out an entry past its ExpiresAt.
type Cache interface {
	Get(ctx context.Context, fp domain.Fingerprint) (domain.CacheEntry, bool, error)
	Set(ctx context.Context, fp domain.Fingerprint, result domain.AggregateResult, ttl time.Duration) error
	Invalidate(ctx context.Context, fp domain.Fingerprint) error
}

type EntryStat struct {
	Key   string `json:"key"`
	Count int    `json:"count"`
	AgeMs int64  `json:"ageMs"`
}

type Stats struct {
	Backend string      `json:"backend"`
	Size    int         `json:"size"`
	Entries []EntryStat `json:"entries,omitempty"`
}

// StatsReporter is implemented by backends that can list their contents.
type StatsReporter interface {
	Stats() Stats
}

func newEntry(fp domain.Fingerprint, r domain.AggregateResult, now time.Time, ttl time.Duration) domain.CacheEntry {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return domain.CacheEntry{
		Fingerprint: fp,
		Result:      r.Clone(),
		StoredAt:    now,
		ExpiresAt:   now.Add(ttl),
	}
}
