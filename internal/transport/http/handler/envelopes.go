package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-account-link/internal/domain"
)

// MessageEnvelope is the generic response wrapper.
type MessageEnvelope struct {
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// TokenEnvelope wraps operator login responses.
type TokenEnvelope struct {
	Bearer string `json:"Bearer"`
}

// ReplyEnvelope wraps webhook responses: the text the bot should send
// back to the external account.
type ReplyEnvelope struct {
	Reply string `json:"reply"`
}

// AuditEnvelope wraps audit query responses.
type AuditEnvelope struct {
	Entries []domain.AuditEntry `json:"entries"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, MessageEnvelope{Error: msg})
}

// httpError maps domain sentinel errors to HTTP status codes.
func httpError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrConflict):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrUnauthorized):
		writeError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, domain.ErrForbidden):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, domain.ErrBadRequest):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrPersistenceUnavailable):
		writeError(w, http.StatusServiceUnavailable, "storage is temporarily unavailable")
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// outcomeStatus maps a coordinator outcome to an HTTP status code.
func outcomeStatus(k domain.OutcomeKind) int {
	switch k {
	case domain.OutcomeCodeIssued:
		return http.StatusCreated
	case domain.OutcomeCodePending, domain.OutcomeBound, domain.OutcomeUpdated, domain.OutcomeUnbound:
		return http.StatusOK
	case domain.OutcomeInvalidFormat:
		return http.StatusBadRequest
	case domain.OutcomeRequestNotFound, domain.OutcomeNotBound:
		return http.StatusNotFound
	case domain.OutcomeCodeExpired:
		return http.StatusGone
	case domain.OutcomeLocalAlreadyBound, domain.OutcomeExternalAlreadyBound, domain.OutcomeConflict:
		return http.StatusConflict
	case domain.OutcomePersistenceUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
