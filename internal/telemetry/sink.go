// Package telemetry records per-source and per-search metrics. Recording
// never blocks the aggregation path.
package telemetry

import (
	"time"

	"jobagg-engine/internal/domain"
)

type SourceMetric struct {
	At          time.Time        `json:"at"`
	Fingerprint string           `json:"fingerprint"`
	Source      domain.SourceID  `json:"source"`
	Success     bool             `json:"success"`
	ErrorKind   domain.ErrorKind `json:"errorKind,omitempty"`
	Postings    int              `json:"postings"`
	Partial     bool             `json:"partial,omitempty"`
	ElapsedMs   int64            `json:"elapsedMs"`
}

type AggregateMetric struct {
	At               time.Time `json:"at"`
	RequestID        string    `json:"requestId,omitempty"`
	Fingerprint      string    `json:"fingerprint"`
	Postings         int       `json:"postings"`
	Duplicates       int       `json:"duplicates"`
	Sources          int       `json:"sources"`
	FailedSources    int       `json:"failedSources"`
	CacheHit         bool      `json:"cacheHit"`
	Degraded         bool      `json:"degraded"`
	FallbackStrategy string    `json:"fallbackStrategy,omitempty"`
	ElapsedMs        int64     `json:"elapsedMs"`
}

type Sink interface {
	RecordSource(SourceMetric)
	RecordAggregate(AggregateMetric)
}

func FromSourceResult(fp domain.Fingerprint, r domain.SourceResult, at time.Time) SourceMetric {
	return SourceMetric{
		At:          at,
		Fingerprint: string(fp),
		Source:      r.SourceID,
		Success:     r.Success,
		ErrorKind:   r.ErrorKind,
		Postings:    len(r.Postings),
		Partial:     r.Partial,
		ElapsedMs:   r.ElapsedMs,
	}
}

// Nop discards everything.
type Nop struct{}

func (Nop) RecordSource(SourceMetric)       {}
func (Nop) RecordAggregate(AggregateMetric) {}
