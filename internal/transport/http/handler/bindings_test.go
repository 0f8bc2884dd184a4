package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-account-link/internal/application/binding"
	"github.com/go-account-link/internal/domain"
)

func newBindingRouter(svc BindingService) http.Handler {
	h := NewBindingHandler(svc)
	r := chi.NewRouter()
	r.Post("/bindings/requests", h.StartBind)
	r.Get("/bindings/requests/{localID}", h.GetPending)
	r.Delete("/bindings/requests/{localID}", h.CancelPending)
	r.Get("/bindings/local/{localID}", h.GetByLocal)
	r.Get("/bindings/external/{externalID}", h.GetByExternal)
	r.Delete("/bindings/{localID}", h.Unbind)
	r.Get("/status", h.Status)
	return r
}

func TestStartBind_CodeIssued(t *testing.T) {
	svc := &stubBindingService{startResult: binding.StartResult{
		Outcome: domain.Outcome{Kind: domain.OutcomeCodeIssued},
		Request: &domain.VerificationRequest{LocalID: "p1", Code: "123456"},
	}}
	r := newBindingRouter(svc)

	body := []byte(`{"local_id":"p1","display_name":"Alice"}`)
	req := httptest.NewRequest(http.MethodPost, "/bindings/requests", bytes.NewReader(body))
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusCreated, rr.Code)
	assert.Equal(t, "p1", svc.gotLocalID)

	var res binding.StartResult
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &res))
	assert.Equal(t, domain.OutcomeCodeIssued, res.Outcome.Kind)
	assert.Equal(t, "123456", res.Request.Code)
}

func TestStartBind_AlreadyBoundIsConflict(t *testing.T) {
	svc := &stubBindingService{startResult: binding.StartResult{
		Outcome: domain.Outcome{Kind: domain.OutcomeLocalAlreadyBound},
	}}
	r := newBindingRouter(svc)

	req := httptest.NewRequest(http.MethodPost, "/bindings/requests", bytes.NewReader([]byte(`{"local_id":"p1"}`)))
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusConflict, rr.Code)
}

func TestStartBind_InvalidLocalID(t *testing.T) {
	r := newBindingRouter(&stubBindingService{})

	for _, body := range []string{`{}`, `{"local_id":"has space"}`} {
		req := httptest.NewRequest(http.MethodPost, "/bindings/requests", bytes.NewReader([]byte(body)))
		rr := httptest.NewRecorder()
		r.ServeHTTP(rr, req)
		assert.Equal(t, http.StatusBadRequest, rr.Code, "body %s", body)
	}
}

func TestGetPending(t *testing.T) {
	svc := &stubBindingService{pending: &domain.VerificationRequest{
		LocalID:   "p1",
		Code:      "123456",
		ExpiresAt: time.Now().Add(time.Minute),
	}}
	r := newBindingRouter(svc)

	req := httptest.NewRequest(http.MethodGet, "/bindings/requests/p1", nil)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)

	req = httptest.NewRequest(http.MethodGet, "/bindings/requests/p2", nil)
	rr = httptest.NewRecorder()
	newBindingRouter(&stubBindingService{}).ServeHTTP(rr, req)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestCancelPending(t *testing.T) {
	r := newBindingRouter(&stubBindingService{cancelled: true})
	req := httptest.NewRequest(http.MethodDelete, "/bindings/requests/p1", nil)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)

	r = newBindingRouter(&stubBindingService{cancelled: false})
	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodDelete, "/bindings/requests/p1", nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestGetByExternal_BadID(t *testing.T) {
	r := newBindingRouter(&stubBindingService{})
	req := httptest.NewRequest(http.MethodGet, "/bindings/external/abc", nil)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestGetByExternal(t *testing.T) {
	svc := &stubBindingService{otherOutcome: domain.Outcome{
		Kind:    domain.OutcomeBound,
		Binding: &domain.Binding{LocalID: "p1", ExternalID: 42},
	}}
	r := newBindingRouter(svc)

	req := httptest.NewRequest(http.MethodGet, "/bindings/external/42", nil)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, int64(42), svc.gotExternalID)
}

func TestUnbind_DefaultsToSystemOperator(t *testing.T) {
	svc := &stubBindingService{otherOutcome: domain.Outcome{Kind: domain.OutcomeUnbound}}
	r := newBindingRouter(svc)

	req := httptest.NewRequest(http.MethodDelete, "/bindings/p1", nil)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "p1", svc.gotLocalID)
	assert.Equal(t, domain.OperatorSystem, svc.gotOperator)
}

func TestStatus_DegradedIs503(t *testing.T) {
	svc := &stubBindingService{status: binding.Status{PersistenceOK: false, PersistenceErr: "down"}}
	r := newBindingRouter(svc)

	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)

	svc.status = binding.Status{PersistenceOK: true, JanitorRunning: true}
	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/status", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
}
