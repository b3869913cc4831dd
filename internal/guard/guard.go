// Package guard caps how many identical searches may run at once.
package guard

import (
	"fmt"
	"sync"

	"jobagg-engine/internal/domain"
	apperr "jobagg-engine/internal/errors"
	"jobagg-engine/internal/scrape/util"
)

const DefaultLimit = 3

type shard struct {
	mu     sync.Mutex
	counts map[domain.Fingerprint]int
}

// Guard counts in-flight searches per fingerprint. TryAcquire never blocks:
// at the limit it fails with an OVERLOADED error.
type Guard struct {
	limit  int
	shards []*shard
}

type Token struct {
	fp   domain.Fingerprint
	g    *Guard
	once sync.Once
}

func New(limit int) *Guard {
	if limit <= 0 {
		limit = DefaultLimit
	}
	g := &Guard{limit: limit, shards: make([]*shard, 16)}
	for i := range g.shards {
		g.shards[i] = &shard{counts: map[domain.Fingerprint]int{}}
	}
	return g
}

func (g *Guard) shardFor(fp domain.Fingerprint) *shard {
	return g.shards[util.Hash32(string(fp))%uint32(len(g.shards))]
}

func (g *Guard) TryAcquire(fp domain.Fingerprint) (*Token, error) {
	s := g.shardFor(fp)
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.counts[fp] >= g.limit {
		return nil, apperr.Overloaded(fmt.Sprintf("too many concurrent searches for this query (limit %d)", g.limit), nil)
	}
	s.counts[fp]++
	return &Token{fp: fp, g: g}, nil
}

// Release is safe to call more than once and on a nil token.
func (g *Guard) Release(t *Token) {
	if t == nil {
		return
	}
	t.once.Do(func() {
		s := g.shardFor(t.fp)
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.counts[t.fp] <= 1 {
			delete(s.counts, t.fp)
			return
		}
		s.counts[t.fp]--
	})
}

func (g *Guard) InFlight(fp domain.Fingerprint) int {
	s := g.shardFor(fp)
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counts[fp]
}

func (g *Guard) Limit() int { return g.limit }
