package httpapi

import (
	"net/http"

	"go.uber.org/zap"
)

type SecretsHandler struct {
	SetAdzunaKey func(key string) error
	Log          *zap.Logger
}

type setAdzunaKeyReq struct {
	AppKey string `json:"appKey"`
}

func (h SecretsHandler) SetAdzuna(w http.ResponseWriter, r *http.Request) {
	var req setAdzunaKeyReq
	if err := decodeStrict(r, &req); err != nil {
		WriteError(w, r, http.StatusBadRequest, "invalid_json", "invalid json")
		return
	}
	if err := h.SetAdzunaKey(req.AppKey); err != nil {
		WriteDomainError(w, r, h.Log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
