package telemetry

import (
	"encoding/json"
	"time"

	apperr "jobagg-engine/internal/errors"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

const (
	SubjectSource    = "jobagg.metrics.source"
	SubjectAggregate = "jobagg.metrics.aggregate"
)

// NATSSink publishes metrics as JSON for downstream consumers.
type NATSSink struct {
	conn *nats.Conn
	log  *zap.Logger
}

func NewNATSSink(url string, log *zap.Logger) (*NATSSink, error) {
	opts := []nats.Option{
		nats.Name("jobagg-engine"),
		nats.Timeout(5 * time.Second),
		nats.ReconnectWait(time.Second),
		nats.MaxReconnects(-1),
	}
	conn, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, apperr.Unavailable("connecting to NATS", err)
	}
	return &NATSSink{conn: conn, log: log.Named("nats")}, nil
}

func (s *NATSSink) RecordSource(m SourceMetric) { s.publish(SubjectSource, m) }

func (s *NATSSink) RecordAggregate(m AggregateMetric) { s.publish(SubjectAggregate, m) }

func (s *NATSSink) publish(subject string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		s.log.Error("marshal metric", zap.Error(err))
		return
	}
	if err := s.conn.Publish(subject, data); err != nil {
		s.log.Warn("publish metric", zap.String("subject", subject), zap.Error(err))
	}
}

func (s *NATSSink) Close() {
	if s.conn != nil {
		_ = s.conn.Drain()
	}
}
