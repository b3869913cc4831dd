package httpapi

import (
	"encoding/json"
	"net/http"
	"path/filepath"

	"jobagg-engine/internal/config"
	"jobagg-engine/internal/events"

	"go.uber.org/zap"
)

// ConfigHandler serves the config with secrets masked. Changes to sources,
// cache and telemetry take effect on restart; search budgets apply
// immediately.
type ConfigHandler struct {
	Deps Deps
}

func (h ConfigHandler) Get(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.Deps.cfg().Redacted())
}

func (h ConfigHandler) Put(w http.ResponseWriter, r *http.Request) {
	var incoming config.Config
	if err := decodeStrict(r, &incoming); err != nil {
		WriteError(w, r, http.StatusBadRequest, "invalid_json", "invalid JSON: "+err.Error())
		return
	}
	incoming = config.RestoreSecrets(incoming, h.Deps.cfg())

	normalized, vr := config.NormalizeAndValidate(incoming)
	if !vr.OK() {
		WriteJSON(w, http.StatusBadRequest, vr)
		return
	}

	if err := config.SaveAtomic(h.Deps.UserCfgPath, normalized); err != nil {
		WriteError(w, r, http.StatusBadRequest, "save_failed", err.Error())
		return
	}

	saved, err := h.Deps.LoadCfg()
	if err != nil {
		WriteError(w, r, http.StatusInternalServerError, "reload_failed", "saved but reload failed: "+err.Error())
		return
	}
	h.Deps.CfgVal.Store(saved)
	if h.Deps.Log != nil {
		h.Deps.Log.Info("config updated", zap.String("path", h.Deps.UserCfgPath), zap.Strings("warnings", vr.Warnings))
	}
	if h.Deps.Hub != nil {
		h.Deps.Hub.Emit(events.New(events.TypeConfigChanged, nil).ForSearch(RequestIDFrom(r.Context()), ""))
	}
	writeJSON(w, saved.Redacted())
}

func (h ConfigHandler) Path(w http.ResponseWriter, r *http.Request) {
	abs, _ := filepath.Abs(h.Deps.UserCfgPath)
	writeJSON(w, map[string]any{"path": abs})
}

func (h ConfigHandler) Validate(w http.ResponseWriter, r *http.Request) {
	_, vr := config.NormalizeAndValidate(h.Deps.cfg())

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(vr)
}
