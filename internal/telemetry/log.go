package telemetry

import "go.uber.org/zap"

type LogSink struct {
	log *zap.Logger
}

func NewLogSink(log *zap.Logger) *LogSink {
	return &LogSink{log: log.Named("metrics")}
}

func (s *LogSink) RecordSource(m SourceMetric) {
	s.log.Info("source",
		zap.String("fingerprint", m.Fingerprint),
		zap.String("source", string(m.Source)),
		zap.Bool("success", m.Success),
		zap.String("error_kind", string(m.ErrorKind)),
		zap.Int("postings", m.Postings),
		zap.Int64("elapsed_ms", m.ElapsedMs),
	)
}

func (s *LogSink) RecordAggregate(m AggregateMetric) {
	s.log.Info("aggregate",
		zap.String("request_id", m.RequestID),
		zap.String("fingerprint", m.Fingerprint),
		zap.Int("postings", m.Postings),
		zap.Int("duplicates", m.Duplicates),
		zap.Int("failed_sources", m.FailedSources),
		zap.Bool("cache_hit", m.CacheHit),
		zap.Bool("degraded", m.Degraded),
		zap.String("fallback", m.FallbackStrategy),
		zap.Int64("elapsed_ms", m.ElapsedMs),
	)
}
