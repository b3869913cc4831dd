package cache

import (
	"context"
	"time"

	"jobagg-engine/internal/domain"

	"go.uber.org/zap"
)

// Guarded refuses to store results that must never be served from cache:
// empty, degraded or synthetic ones. Such writes are dropped silently.
type Guarded struct {
	Cache
	log *zap.Logger
}

func NewGuarded(c Cache, log *zap.Logger) *Guarded {
	if log == nil {
		log = zap.NewNop()
	}
	return &Guarded{Cache: c, log: log.Named("cache")}
}

func (g *Guarded) Set(ctx context.Context, fp domain.Fingerprint, r domain.AggregateResult, ttl time.Duration) error {
	if !r.Cacheable() {
		g.log.Debug("refusing to cache result",
			zap.String("fingerprint", string(fp)),
			zap.Int("postings", len(r.Postings)),
			zap.Bool("degraded", r.Degraded),
		)
		return nil
	}
	return g.Cache.Set(ctx, fp, r, ttl)
}

// Stats forwards to the wrapped backend when it can report.
func (g *Guarded) Stats() (Stats, bool) {
	if sr, ok := g.Cache.(StatsReporter); ok {
		return sr.Stats(), true
	}
	return Stats{}, false
}
