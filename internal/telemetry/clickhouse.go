package telemetry

import (
	"context"
	"time"

	apperr "jobagg-engine/internal/errors"

	"github.com/ClickHouse/clickhouse-go/v2"
	"go.uber.org/zap"
)

type ClickHouseOptions struct {
	Addr     string
	Database string
	Username string
	Password string
}

// ClickHouseSink stores metrics for historical analysis of source health.
type ClickHouseSink struct {
	conn clickhouse.Conn
	log  *zap.Logger
}

const createSourceMetrics = `
CREATE TABLE IF NOT EXISTS source_metrics (
  at          DateTime64(3),
  fingerprint String,
  source      LowCardinality(String),
  success     UInt8,
  error_kind  LowCardinality(String),
  postings    UInt32,
  partial     UInt8,
  elapsed_ms  Int64
) ENGINE = MergeTree ORDER BY (source, at)`

const createAggregateMetrics = `
CREATE TABLE IF NOT EXISTS aggregate_metrics (
  at             DateTime64(3),
  fingerprint    String,
  postings       UInt32,
  duplicates     UInt32,
  failed_sources UInt16,
  cache_hit      UInt8,
  degraded       UInt8,
  fallback       LowCardinality(String),
  elapsed_ms     Int64
) ENGINE = MergeTree ORDER BY at`

func NewClickHouseSink(ctx context.Context, opts ClickHouseOptions, log *zap.Logger) (*ClickHouseSink, error) {
	if opts.Database == "" {
		opts.Database = "default"
	}
	conn, err := clickhouse.Open(&clickhouse.Options{
		Protocol: clickhouse.Native,
		Addr:     []string{opts.Addr},
		Auth: clickhouse.Auth{
			Database: opts.Database,
			Username: opts.Username,
			Password: opts.Password,
		},
		DialTimeout:     10 * time.Second,
		MaxOpenConns:    4,
		MaxIdleConns:    2,
		ConnMaxLifetime: time.Hour,
	})
	if err != nil {
		return nil, apperr.Unavailable("opening clickhouse", err)
	}
	if err := conn.Ping(ctx); err != nil {
		return nil, apperr.Unavailable("pinging clickhouse", err)
	}
	for _, ddl := range []string{createSourceMetrics, createAggregateMetrics} {
		if err := conn.Exec(ctx, ddl); err != nil {
			return nil, apperr.Internal("creating metrics tables", err)
		}
	}
	return &ClickHouseSink{conn: conn, log: log.Named("clickhouse")}, nil
}

func (s *ClickHouseSink) RecordSource(m SourceMetric) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := s.conn.Exec(ctx, `
INSERT INTO source_metrics (at, fingerprint, source, success, error_kind, postings, partial, elapsed_ms)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		m.At, m.Fingerprint, string(m.Source), boolToUint8(m.Success), string(m.ErrorKind),
		uint32(m.Postings), boolToUint8(m.Partial), m.ElapsedMs,
	)
	if err != nil {
		s.log.Warn("insert source metric", zap.Error(err))
	}
}

func (s *ClickHouseSink) RecordAggregate(m AggregateMetric) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := s.conn.Exec(ctx, `
INSERT INTO aggregate_metrics (at, fingerprint, postings, duplicates, failed_sources, cache_hit, degraded, fallback, elapsed_ms)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.At, m.Fingerprint, uint32(m.Postings), uint32(m.Duplicates), uint16(m.FailedSources),
		boolToUint8(m.CacheHit), boolToUint8(m.Degraded), m.FallbackStrategy, m.ElapsedMs,
	)
	if err != nil {
		s.log.Warn("insert aggregate metric", zap.Error(err))
	}
}

func (s *ClickHouseSink) Close() error {
	return s.conn.Close()
}

func boolToUint8(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}
