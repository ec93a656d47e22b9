package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/foodloop/foodloop/pkg/apperrors"
	"github.com/sirupsen/logrus"
)

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		json.NewEncoder(w).Encode(payload)
	}
}

// writeError maps the typed error kinds onto HTTP statuses. Storage
// failures are transient by contract and advertised as such.
func writeError(w http.ResponseWriter, err error) {
	kind := apperrors.KindOf(err)

	var status int
	switch kind {
	case apperrors.KindInvalidInput:
		status = http.StatusBadRequest
	case apperrors.KindNotFound:
		status = http.StatusNotFound
	case apperrors.KindConflict, apperrors.KindSelfClaim:
		status = http.StatusConflict
	case apperrors.KindForbidden:
		status = http.StatusForbidden
	case apperrors.KindStorage:
		status = http.StatusServiceUnavailable
	default:
		logrus.WithError(err).Error("Unclassified error in handler")
		status = http.StatusInternalServerError
	}

	writeJSON(w, status, map[string]string{
		"error": err.Error(),
		"kind":  kind.String(),
	})
}
