package httpapi

import (
	"net/http"
	"time"

	"jobagg-engine/internal/events"
)

type HealthHandler struct {
	Hub     *events.Hub
	Started time.Time
}

func (h HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{"ok": true}
	if !h.Started.IsZero() {
		body["uptime"] = time.Since(h.Started).Round(time.Second).String()
	}
	if h.Hub != nil {
		body["sse_clients"] = h.Hub.Clients()
	}
	writeJSON(w, body)
}
