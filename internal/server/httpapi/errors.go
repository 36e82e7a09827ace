package httpapi

import (
	"errors"
	"net/http"

	"github.com/dmitrijs2005/authkeeper/internal/common"
)

type errorClass struct {
	status  int
	code    string
	message string
}

var (
	classValidation   = errorClass{http.StatusBadRequest, "bad_request", "invalid request"}
	classUnauthorized = errorClass{http.StatusUnauthorized, "unauthorized", "invalid or expired credentials"}
	classNotFound     = errorClass{http.StatusNotFound, "not_found", "not found"}
	classDelivery     = errorClass{http.StatusBadGateway, "delivery_failed", "could not send email, please try again"}
	classInternal     = errorClass{http.StatusInternalServerError, "internal", "internal error"}
)

func classify(err error) errorClass {
	switch {
	case errors.Is(err, common.ErrorValidation):
		return classValidation
	case errors.Is(err, common.ErrorUnauthorized):
		return classUnauthorized
	case errors.Is(err, common.ErrorNotFound):
		return classNotFound
	case errors.Is(err, common.ErrorDelivery):
		return classDelivery
	}
	return classInternal
}

// fail logs err with its cause and writes a response that reveals only the
// error class.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	c := classify(err)
	log := h.logger(r.Context())
	args := []any{"error", err.Error(), "cause", common.CauseOf(err), "status", c.status}
	if c.status >= http.StatusInternalServerError {
		log.Error(r.Context(), "request failed", args...)
	} else {
		log.Warn(r.Context(), "request rejected", args...)
	}
	writeError(w, c.status, c.code, c.message)
}

func badRequest(w http.ResponseWriter, fields validationErrors) {
	writeJSON(w, http.StatusBadRequest, struct {
		Error  apiError          `json:"error"`
		Fields validationErrors `json:"fields,omitempty"`
	}{
		Error:  apiError{Code: classValidation.code, Message: classValidation.message},
		Fields: fields,
	})
}
