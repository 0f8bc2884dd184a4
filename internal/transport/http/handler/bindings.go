package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/go-account-link/internal/application/binding"
	"github.com/go-account-link/internal/domain"
	"github.com/go-account-link/internal/pkg/validate"
	"github.com/go-account-link/internal/transport/http/middleware"
)

// BindingService is the minimal interface the binding handlers require
// from the coordinator.
type BindingService interface {
	StartBind(ctx context.Context, localID, displayName string) binding.StartResult
	CompleteBindByCode(ctx context.Context, code string, externalID int64, externalName string) domain.Outcome
	CompleteUnbindByExternal(ctx context.Context, externalID int64, externalName string) domain.Outcome
	UnbindLocal(ctx context.Context, localID, operator string) domain.Outcome
	QueryInfoByLocal(ctx context.Context, localID string) domain.Outcome
	QueryInfoByExternal(ctx context.Context, externalID int64) domain.Outcome
	PendingRequest(localID string) (*domain.VerificationRequest, bool)
	CancelBind(localID string) bool
	Status(ctx context.Context) binding.Status
}

// BindingHandler serves the local-side command surface: issuing and
// cancelling verification codes, lookups, and operator unbind.
type BindingHandler struct {
	svc BindingService
}

func NewBindingHandler(svc BindingService) *BindingHandler {
	return &BindingHandler{svc: svc}
}

type startBindRequest struct {
	LocalID     string `json:"local_id" validate:"required,localid"`
	DisplayName string `json:"display_name"`
}

// StartBind begins the handshake for a local account and returns the
// verification code to present to the user.
func (h *BindingHandler) StartBind(w http.ResponseWriter, r *http.Request) {
	var req startBindRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	res := h.svc.StartBind(r.Context(), req.LocalID, req.DisplayName)
	writeJSON(w, outcomeStatus(res.Outcome.Kind), res)
}

// GetPending returns the live verification request for a local account.
func (h *BindingHandler) GetPending(w http.ResponseWriter, r *http.Request) {
	localID := chi.URLParam(r, "localID")
	req, ok := h.svc.PendingRequest(localID)
	if !ok {
		writeError(w, http.StatusNotFound, "no pending verification request")
		return
	}
	writeJSON(w, http.StatusOK, req)
}

// CancelPending abandons the verification request for a local account.
func (h *BindingHandler) CancelPending(w http.ResponseWriter, r *http.Request) {
	localID := chi.URLParam(r, "localID")
	if !h.svc.CancelBind(localID) {
		writeError(w, http.StatusNotFound, "no pending verification request")
		return
	}
	writeJSON(w, http.StatusOK, MessageEnvelope{Message: "verification request cancelled"})
}

// GetByLocal returns the binding for a local account.
func (h *BindingHandler) GetByLocal(w http.ResponseWriter, r *http.Request) {
	out := h.svc.QueryInfoByLocal(r.Context(), chi.URLParam(r, "localID"))
	writeJSON(w, outcomeStatus(out.Kind), out)
}

// GetByExternal returns the binding for an external account.
func (h *BindingHandler) GetByExternal(w http.ResponseWriter, r *http.Request) {
	externalID, err := strconv.ParseInt(chi.URLParam(r, "externalID"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "external id must be an integer")
		return
	}
	out := h.svc.QueryInfoByExternal(r.Context(), externalID)
	writeJSON(w, outcomeStatus(out.Kind), out)
}

// Unbind removes the binding for a local account. The acting operator is
// taken from the verified token claims.
func (h *BindingHandler) Unbind(w http.ResponseWriter, r *http.Request) {
	operator := domain.OperatorSystem
	if claims, ok := middleware.ClaimsFromContext(r.Context()); ok {
		operator = claims.Subject
	}
	out := h.svc.UnbindLocal(r.Context(), chi.URLParam(r, "localID"), operator)
	writeJSON(w, outcomeStatus(out.Kind), out)
}

// Status reports handshake-machinery health.
func (h *BindingHandler) Status(w http.ResponseWriter, r *http.Request) {
	st := h.svc.Status(r.Context())
	code := http.StatusOK
	if !st.PersistenceOK {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, st)
}
