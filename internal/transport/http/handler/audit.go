package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/go-account-link/internal/domain"
)

// AuditQuerier is the minimal interface the audit handlers require from
// the audit log store.
type AuditQuerier interface {
	QueryByLocal(ctx context.Context, localID string, limit int32) ([]domain.AuditEntry, error)
	QueryByExternal(ctx context.Context, externalID int64, limit int32) ([]domain.AuditEntry, error)
	QueryByTimeRange(ctx context.Context, from, to time.Time, limit int32) ([]domain.AuditEntry, error)
}

const (
	defaultAuditLimit = 50
	maxAuditLimit     = 500
)

// AuditHandler serves the operator-facing audit query surface.
type AuditHandler struct {
	repo AuditQuerier
}

func NewAuditHandler(repo AuditQuerier) *AuditHandler {
	return &AuditHandler{repo: repo}
}

// ByLocal returns the newest audit entries for a local account.
func (h *AuditHandler) ByLocal(w http.ResponseWriter, r *http.Request) {
	entries, err := h.repo.QueryByLocal(r.Context(), chi.URLParam(r, "localID"), auditLimit(r))
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, AuditEnvelope{Entries: entries})
}

// ByExternal returns the newest audit entries for an external account.
func (h *AuditHandler) ByExternal(w http.ResponseWriter, r *http.Request) {
	externalID, err := strconv.ParseInt(chi.URLParam(r, "externalID"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "external id must be an integer")
		return
	}
	entries, err := h.repo.QueryByExternal(r.Context(), externalID, auditLimit(r))
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, AuditEnvelope{Entries: entries})
}

// ByTimeRange returns the newest audit entries inside [from, to], both
// RFC3339 query parameters.
func (h *AuditHandler) ByTimeRange(w http.ResponseWriter, r *http.Request) {
	from, err := time.Parse(time.RFC3339, r.URL.Query().Get("from"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "from must be an RFC3339 timestamp")
		return
	}
	to, err := time.Parse(time.RFC3339, r.URL.Query().Get("to"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "to must be an RFC3339 timestamp")
		return
	}
	if to.Before(from) {
		writeError(w, http.StatusBadRequest, "to must not precede from")
		return
	}
	entries, err := h.repo.QueryByTimeRange(r.Context(), from, to, auditLimit(r))
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, AuditEnvelope{Entries: entries})
}

func auditLimit(r *http.Request) int32 {
	n, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || n <= 0 {
		return defaultAuditLimit
	}
	if n > maxAuditLimit {
		return maxAuditLimit
	}
	return int32(n)
}
