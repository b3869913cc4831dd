package events

import (
	"encoding/json"
	"time"
)

const (
	TypePing          = "ping"
	TypeSourceDone    = "source_done"
	TypeSearchDone    = "search_done"
	TypeAlertRun      = "alert_run"
	TypeCacheCleared  = "cache_cleared"
	TypeConfigChanged = "config_changed"
)

// version of the envelope below; bump when a field changes meaning.
const version = 1

// Event is the SSE envelope. Fingerprint and Source let a dashboard group
// source and search events belonging to one aggregation without decoding
// Data.
type Event struct {
	Type        string          `json:"type"`
	Version     int             `json:"v"`
	At          time.Time       `json:"at"`
	RequestID   string          `json:"request_id,omitempty"`
	Fingerprint string          `json:"fingerprint,omitempty"`
	Source      string          `json:"source,omitempty"`
	Data        json.RawMessage `json:"data,omitempty"`
}

func New(typ string, data any) Event {
	e := Event{Type: typ, Version: version, At: time.Now().UTC()}
	if data != nil {
		if b, err := json.Marshal(data); err == nil {
			e.Data = b
		}
	}
	return e
}

// ForSearch ties the event to a request and the fingerprint it aggregated.
func (e Event) ForSearch(reqID, fingerprint string) Event {
	e.RequestID = reqID
	e.Fingerprint = fingerprint
	return e
}

func (e Event) ForSource(id string) Event {
	e.Source = id
	return e
}

func (e Event) Encode() string {
	b, _ := json.Marshal(e)
	return string(b)
}

// Ping is the SSE keepalive payload.
func Ping(reqID string) string {
	return New(TypePing, nil).ForSearch(reqID, "").Encode()
}
