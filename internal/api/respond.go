package api

import (
	"encoding/json"
	"net/http"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/Spok95/classtrack-portal/internal/apperr"
	"github.com/Spok95/classtrack-portal/internal/observability"
)

// errorBody is what every failed request answers with.
type errorBody struct {
	Detail string              `json:"detail"`
	Kind   string              `json:"kind"`
	Fields []apperr.FieldError `json:"fields,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := apperr.Status(err)
	body := errorBody{Detail: apperr.Message(err), Kind: apperr.KindOf(err).String()}
	var ae *apperr.Error
	if errors.As(err, &ae) {
		body.Fields = ae.Fields
	}
	if status >= http.StatusInternalServerError {
		h.log.Error("request failed",
			zap.String("path", r.URL.Path),
			zap.Int("status", status),
			zap.NamedError("cause", errors.Cause(err)),
		)
		observability.CaptureCtx(r.Context(), err)
	}
	writeJSON(w, status, body)
}

func badRequest(field, msg string) error {
	return apperr.Validation("invalid request", apperr.FieldError{Field: field, Error: msg})
}
