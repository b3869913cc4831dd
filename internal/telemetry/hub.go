package telemetry

import "jobagg-engine/internal/events"

// HubSink streams metrics to SSE subscribers.
type HubSink struct {
	hub *events.Hub
}

func NewHubSink(h *events.Hub) *HubSink {
	return &HubSink{hub: h}
}

func (s *HubSink) RecordSource(m SourceMetric) {
	s.hub.Emit(events.New(events.TypeSourceDone, m).ForSearch("", m.Fingerprint).ForSource(string(m.Source)))
}

func (s *HubSink) RecordAggregate(m AggregateMetric) {
	s.hub.Emit(events.New(events.TypeSearchDone, m).ForSearch(m.RequestID, m.Fingerprint))
}
