package httpapi

import "net/http"

type AlertsHandler struct {
	Alerts AlertStatuser
}

func (h AlertsHandler) Status(w http.ResponseWriter, r *http.Request) {
	if h.Alerts == nil {
		writeJSON(w, map[string]any{"alerts": []any{}})
		return
	}
	writeJSON(w, map[string]any{"alerts": h.Alerts.Statuses()})
}
