package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-account-link/internal/pkg/validate"
)

// OperatorService is the minimal interface the operator handler requires.
type OperatorService interface {
	Login(name, password string) (string, error)
}

// OperatorHandler serves operator authentication.
type OperatorHandler struct {
	svc OperatorService
}

func NewOperatorHandler(svc OperatorService) *OperatorHandler {
	return &OperatorHandler{svc: svc}
}

type loginRequest struct {
	Name     string `json:"name" validate:"required"`
	Password string `json:"password" validate:"required"`
}

func (h *OperatorHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	token, err := h.svc.Login(req.Name, req.Password)
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, TokenEnvelope{Bearer: token})
}
