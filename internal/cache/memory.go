package cache

import (
	"context"
	"sort"
	"sync"
	"time"

	"jobagg-engine/internal/domain"
	"jobagg-engine/internal/scrape/util"

	"go.uber.org/zap"
)

type shard struct {
	mu    sync.RWMutex
	items map[domain.Fingerprint]domain.CacheEntry
}

// Memory is an in-process cache split into shards by FNV hash of the
// fingerprint, each with its own lock.
type Memory struct {
	shards      []*shard
	maxPerShard int
	now         func() time.Time
	log         *zap.Logger
}

type MemoryOptions struct {
	Shards     int
	MaxEntries int // 0 means unbounded
	Now        func() time.Time
	Log        *zap.Logger
}

func NewMemory(opts MemoryOptions) *Memory {
	if opts.Shards <= 0 {
		opts.Shards = 16
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Log == nil {
		opts.Log = zap.NewNop()
	}
	m := &Memory{
		shards: make([]*shard, opts.Shards),
		now:    opts.Now,
		log:    opts.Log.Named("cache"),
	}
	if opts.MaxEntries > 0 {
		m.maxPerShard = (opts.MaxEntries + opts.Shards - 1) / opts.Shards
	}
	for i := range m.shards {
		m.shards[i] = &shard{items: map[domain.Fingerprint]domain.CacheEntry{}}
	}
	return m
}

func (m *Memory) shardFor(fp domain.Fingerprint) *shard {
	return m.shards[int(util.Hash32(string(fp))%uint32(len(m.shards)))]
}

func (m *Memory) Get(_ context.Context, fp domain.Fingerprint) (domain.CacheEntry, bool, error) {
	s := m.shardFor(fp)
	s.mu.RLock()
	e, ok := s.items[fp]
	s.mu.RUnlock()
	if !ok || e.Expired(m.now()) {
		return domain.CacheEntry{}, false, nil
	}
	e.Result = e.Result.Clone()
	return e, true, nil
}

func (m *Memory) Set(_ context.Context, fp domain.Fingerprint, r domain.AggregateResult, ttl time.Duration) error {
	now := m.now()
	s := m.shardFor(fp)
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.items[fp]; !exists && m.maxPerShard > 0 && len(s.items) >= m.maxPerShard {
		m.evictOldestLocked(s, now)
	}
	s.items[fp] = newEntry(fp, r, now, ttl)
	return nil
}

// evictOldestLocked drops expired entries, then the oldest one if the shard
// is still full.
func (m *Memory) evictOldestLocked(s *shard, now time.Time) {
	var (
		oldest   domain.Fingerprint
		oldestAt time.Time
		found    bool
	)
	for fp, e := range s.items {
		if e.Expired(now) {
			delete(s.items, fp)
			continue
		}
		if !found || e.StoredAt.Before(oldestAt) {
			oldest, oldestAt, found = fp, e.StoredAt, true
		}
	}
	if found && len(s.items) >= m.maxPerShard {
		delete(s.items, oldest)
		m.log.Debug("evicted oldest entry", zap.String("fingerprint", string(oldest)))
	}
}

func (m *Memory) Invalidate(_ context.Context, fp domain.Fingerprint) error {
	s := m.shardFor(fp)
	s.mu.Lock()
	delete(s.items, fp)
	s.mu.Unlock()
	return nil
}

// Cleanup removes expired entries and returns how many were dropped.
func (m *Memory) Cleanup() int {
	now := m.now()
	removed := 0
	for _, s := range m.shards {
		s.mu.Lock()
		for fp, e := range s.items {
			if e.Expired(now) {
				delete(s.items, fp)
				removed++
			}
		}
		s.mu.Unlock()
	}
	return removed
}

// StartJanitor runs Cleanup every interval until ctx is done.
func (m *Memory) StartJanitor(ctx context.Context, every time.Duration) {
	if every <= 0 {
		return
	}
	go func() {
		t := time.NewTicker(every)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				if n := m.Cleanup(); n > 0 {
					m.log.Info("cache cleanup", zap.Int("removed", n))
				}
			}
		}
	}()
}

func (m *Memory) Stats() Stats {
	now := m.now()
	st := Stats{Backend: "memory"}
	for _, s := range m.shards {
		s.mu.RLock()
		for fp, e := range s.items {
			if e.Expired(now) {
				continue
			}
			st.Entries = append(st.Entries, EntryStat{
				Key:   string(fp),
				Count: len(e.Result.Postings),
				AgeMs: now.Sub(e.StoredAt).Milliseconds(),
			})
		}
		s.mu.RUnlock()
	}
	sort.Slice(st.Entries, func(i, j int) bool { return st.Entries[i].Key < st.Entries[j].Key })
	st.Size = len(st.Entries)
	return st
}
