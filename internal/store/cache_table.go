package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"jobagg-engine/internal/cache"
	"jobagg-engine/internal/domain"
)

// CacheTable is a cache backend that survives restarts. Times are stored as
// unix milliseconds.
type CacheTable struct {
	db  *sql.DB
	now func() time.Time
}

func NewCacheTable(db *DB, now func() time.Time) *CacheTable {
	if now == nil {
		now = time.Now
	}
	return &CacheTable{db: db.Pool, now: now}
}

func (c *CacheTable) Get(ctx context.Context, fp domain.Fingerprint) (domain.CacheEntry, bool, error) {
	var (
		raw                 string
		storedAt, expiresAt int64
	)
	err := c.db.QueryRowContext(ctx, `
SELECT result, stored_at, expires_at FROM agg_cache WHERE fingerprint = ?;`, string(fp)).
		Scan(&raw, &storedAt, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.CacheEntry{}, false, nil
	}
	if err != nil {
		return domain.CacheEntry{}, false, err
	}

	e := domain.CacheEntry{
		Fingerprint: fp,
		StoredAt:    time.UnixMilli(storedAt).UTC(),
		ExpiresAt:   time.UnixMilli(expiresAt).UTC(),
	}
	if e.Expired(c.now()) {
		_, _ = c.db.ExecContext(ctx, `DELETE FROM agg_cache WHERE fingerprint = ?;`, string(fp))
		return domain.CacheEntry{}, false, nil
	}
	if err := json.Unmarshal([]byte(raw), &e.Result); err != nil {
		return domain.CacheEntry{}, false, err
	}
	return e, true, nil
}

func (c *CacheTable) Set(ctx context.Context, fp domain.Fingerprint, r domain.AggregateResult, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = cache.DefaultTTL
	}
	b, err := json.Marshal(r)
	if err != nil {
		return err
	}
	now := c.now()
	_, err = c.db.ExecContext(ctx, `
INSERT INTO agg_cache(fingerprint, result, postings, stored_at, expires_at)
VALUES(?,?,?,?,?)
ON CONFLICT(fingerprint) DO UPDATE SET
  result = excluded.result,
  postings = excluded.postings,
  stored_at = excluded.stored_at,
  expires_at = excluded.expires_at;`,
		string(fp), string(b), len(r.Postings), now.UnixMilli(), now.Add(ttl).UnixMilli(),
	)
	return err
}

func (c *CacheTable) Invalidate(ctx context.Context, fp domain.Fingerprint) error {
	_, err := c.db.ExecContext(ctx, `DELETE FROM agg_cache WHERE fingerprint = ?;`, string(fp))
	return err
}

// Cleanup deletes expired rows.
func (c *CacheTable) Cleanup(ctx context.Context) (int64, error) {
	res, err := c.db.ExecContext(ctx, `DELETE FROM agg_cache WHERE expires_at <= ?;`, c.now().UnixMilli())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (c *CacheTable) Stats() cache.Stats {
	st := cache.Stats{Backend: "sqlite"}
	now := c.now()
	rows, err := c.db.Query(`
SELECT fingerprint, postings, stored_at FROM agg_cache
WHERE expires_at > ?
ORDER BY fingerprint;`, now.UnixMilli())
	if err != nil {
		return st
	}
	defer rows.Close()
	for rows.Next() {
		var (
			es       cache.EntryStat
			storedAt int64
		)
		if err := rows.Scan(&es.Key, &es.Count, &storedAt); err != nil {
			continue
		}
		es.AgeMs = now.UnixMilli() - storedAt
		st.Entries = append(st.Entries, es)
	}
	st.Size = len(st.Entries)
	return st
}
