package binding

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-account-link/internal/application/verification"
	"github.com/go-account-link/internal/domain"
	"github.com/go-account-link/internal/infrastructure/presence"
)

// fakeStore is an in-memory BindingStore with the same bijection
// semantics the DynamoDB transaction enforces, so coordinator tests can
// run full handshakes without a database.
type fakeStore struct {
	mu      sync.Mutex
	byLocal map[string]*domain.Binding
	byExt   map[int64]string
	err     error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		byLocal: make(map[string]*domain.Binding),
		byExt:   make(map[int64]string),
	}
}

func (f *fakeStore) Bind(_ context.Context, localID string, externalID int64, displayName, operator string, now time.Time) (*domain.BindResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	cur := f.byLocal[localID]
	owner, claimed := f.byExt[externalID]
	switch {
	case cur != nil && cur.ExternalID == externalID:
		cur.UpdatedAt = now
		cur.UpdatedBy = operator
		cp := *cur
		return &domain.BindResult{Status: domain.BindStatusUpdated, Binding: &cp}, nil
	case cur != nil:
		return &domain.BindResult{
			Status:   domain.BindStatusConflict,
			Conflict: domain.OutcomeLocalAlreadyBound,
			Reason:   "local account already bound",
		}, nil
	case claimed:
		return &domain.BindResult{
			Status:   domain.BindStatusConflict,
			Conflict: domain.OutcomeExternalAlreadyBound,
			Reason:   "external account already bound to local account " + owner,
		}, nil
	default:
		b := &domain.Binding{
			LocalID:     localID,
			ExternalID:  externalID,
			DisplayName: displayName,
			CreatedAt:   now,
			UpdatedAt:   now,
			CreatedBy:   operator,
			UpdatedBy:   operator,
		}
		f.byLocal[localID] = b
		f.byExt[externalID] = localID
		cp := *b
		return &domain.BindResult{Status: domain.BindStatusBound, Binding: &cp}, nil
	}
}

func (f *fakeStore) Unbind(_ context.Context, localID string) (*domain.Binding, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	b := f.byLocal[localID]
	if b == nil {
		return nil, nil
	}
	delete(f.byLocal, localID)
	delete(f.byExt, b.ExternalID)
	return b, nil
}

func (f *fakeStore) GetByLocal(_ context.Context, localID string) (*domain.Binding, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	b := f.byLocal[localID]
	if b == nil {
		return nil, domain.ErrNotFound
	}
	cp := *b
	return &cp, nil
}

func (f *fakeStore) GetByExternal(_ context.Context, externalID int64) (*domain.Binding, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	localID, ok := f.byExt[externalID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *f.byLocal[localID]
	return &cp, nil
}

func (f *fakeStore) Ping(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err
}

// fakeSession records messages delivered to a local account.
type fakeSession struct{ messages []string }

func (s *fakeSession) SendText(_ context.Context, message string) error {
	s.messages = append(s.messages, message)
	return nil
}

// fakeBot records messages relayed to external accounts.
type fakeBot struct{ sent map[int64][]string }

func newFakeBot() *fakeBot { return &fakeBot{sent: make(map[int64][]string)} }

func (b *fakeBot) SendText(_ context.Context, externalID int64, message string) error {
	b.sent[externalID] = append(b.sent[externalID], message)
	return nil
}

type harness struct {
	coord    *Coordinator
	store    *fakeStore
	requests *verification.Store
	sessions *presence.Registry
	bot      *fakeBot
	clock    *fakeClock
	audit    *auditRecorder
}

func newHarness() *harness {
	clock := &fakeClock{t: time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)}
	store := newFakeStore()
	audit := &auditRecorder{}
	requests := verification.NewStoreWithClock(clock.now)
	sessions := presence.NewRegistry()
	bot := newFakeBot()
	reg := NewRegistryWithClock(store, audit, clock.now)
	janitor := verification.NewJanitor(requests, time.Minute)
	return &harness{
		coord:    NewCoordinator(reg, requests, janitor, sessions, bot, 6, 5*time.Minute),
		store:    store,
		requests: requests,
		sessions: sessions,
		bot:      bot,
		clock:    clock,
		audit:    audit,
	}
}

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func TestHandshake_HappyPath(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	sess := &fakeSession{}
	h.sessions.Register("p1", sess)

	start := h.coord.StartBind(ctx, "p1", "Alice")
	require.Equal(t, domain.OutcomeCodeIssued, start.Outcome.Kind)
	require.NotNil(t, start.Request)
	assert.Len(t, start.Request.Code, 6)

	out := h.coord.CompleteBindByCode(ctx, start.Request.Code, 42, "bob")
	require.Equal(t, domain.OutcomeBound, out.Kind)
	require.NotNil(t, out.Binding)
	assert.Equal(t, "p1", out.Binding.LocalID)
	assert.Equal(t, int64(42), out.Binding.ExternalID)
	assert.Equal(t, "Alice", out.Binding.DisplayName)

	// The code is consumed and the local side was told.
	_, pending := h.coord.PendingRequest("p1")
	assert.False(t, pending)
	require.Len(t, sess.messages, 1)
	assert.Contains(t, sess.messages[0], "bob")

	info := h.coord.QueryInfoByExternal(ctx, 42)
	require.Equal(t, domain.OutcomeBound, info.Kind)
	assert.Equal(t, "p1", info.Binding.LocalID)
}

func TestStartBind_AlreadyBound(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	_, err := h.store.Bind(ctx, "p1", 42, "Alice", "system", h.clock.now())
	require.NoError(t, err)

	start := h.coord.StartBind(ctx, "p1", "Alice")
	assert.Equal(t, domain.OutcomeLocalAlreadyBound, start.Outcome.Kind)
	assert.Nil(t, start.Request)
	// No code was minted for the rejected start.
	assert.Equal(t, 0, h.requests.PendingCount())
}

func TestStartBind_PendingRequestIsReused(t *testing.T) {
	h := newHarness()
	ctx := context.Background()

	first := h.coord.StartBind(ctx, "p1", "Alice")
	require.Equal(t, domain.OutcomeCodeIssued, first.Outcome.Kind)

	second := h.coord.StartBind(ctx, "p1", "Alice")
	assert.Equal(t, domain.OutcomeCodePending, second.Outcome.Kind)
	require.NotNil(t, second.Request)
	assert.Equal(t, first.Request.Code, second.Request.Code)
	assert.Equal(t, 1, h.requests.PendingCount())
}

func TestCompleteBind_InvalidFormat(t *testing.T) {
	h := newHarness()
	ctx := context.Background()

	for _, code := range []string{"", "12345", "1234567", "12a456", "12 456"} {
		out := h.coord.CompleteBindByCode(ctx, code, 42, "bob")
		assert.Equal(t, domain.OutcomeInvalidFormat, out.Kind, "code %q", code)
	}
}

func TestCompleteBind_UnknownCode(t *testing.T) {
	h := newHarness()
	out := h.coord.CompleteBindByCode(context.Background(), "123456", 42, "bob")
	assert.Equal(t, domain.OutcomeRequestNotFound, out.Kind)
}

func TestCompleteBind_ExpiredCode(t *testing.T) {
	h := newHarness()
	ctx := context.Background()

	start := h.coord.StartBind(ctx, "p1", "Alice")
	require.Equal(t, domain.OutcomeCodeIssued, start.Outcome.Kind)

	h.clock.advance(6 * time.Minute)

	out := h.coord.CompleteBindByCode(ctx, start.Request.Code, 42, "bob")
	assert.Equal(t, domain.OutcomeRequestNotFound, out.Kind)
	// Nothing was bound.
	info := h.coord.QueryInfoByLocal(ctx, "p1")
	assert.Equal(t, domain.OutcomeNotBound, info.Kind)
}

func TestCompleteBind_ExternalAlreadyBound(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	_, err := h.store.Bind(ctx, "p1", 42, "Alice", "system", h.clock.now())
	require.NoError(t, err)

	start := h.coord.StartBind(ctx, "p2", "Carol")
	require.Equal(t, domain.OutcomeCodeIssued, start.Outcome.Kind)

	out := h.coord.CompleteBindByCode(ctx, start.Request.Code, 42, "bob")
	assert.Equal(t, domain.OutcomeExternalAlreadyBound, out.Kind)
	assert.Contains(t, out.Reason, "p1")

	// The conflicting attempt does not consume the code.
	_, pending := h.coord.PendingRequest("p2")
	assert.True(t, pending)
}

func TestCompleteBind_SamePairIsRefreshed(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	_, err := h.store.Bind(ctx, "p1", 42, "Alice", "system", h.clock.now())
	require.NoError(t, err)

	// A code minted out of band for an already-bound pair.
	req, err := h.requests.StartRequest("p1", "Alice", 6, 5*time.Minute)
	require.NoError(t, err)

	h.clock.advance(time.Minute)
	out := h.coord.CompleteBindByCode(ctx, req.Code, 42, "bob")
	require.Equal(t, domain.OutcomeUpdated, out.Kind)
	assert.Equal(t, h.clock.now(), out.Binding.UpdatedAt)
}

func TestCompleteBind_PersistenceDown(t *testing.T) {
	h := newHarness()
	ctx := context.Background()

	start := h.coord.StartBind(ctx, "p1", "Alice")
	require.Equal(t, domain.OutcomeCodeIssued, start.Outcome.Kind)

	h.store.err = errors.New("dynamodb down")
	out := h.coord.CompleteBindByCode(ctx, start.Request.Code, 42, "bob")
	assert.Equal(t, domain.OutcomePersistenceUnavailable, out.Kind)

	// Recovery: the code is still live once the store comes back.
	h.store.err = nil
	out = h.coord.CompleteBindByCode(ctx, start.Request.Code, 42, "bob")
	assert.Equal(t, domain.OutcomeBound, out.Kind)
}

func TestCompleteUnbindByExternal(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	sess := &fakeSession{}
	h.sessions.Register("p1", sess)
	_, err := h.store.Bind(ctx, "p1", 42, "Alice", "system", h.clock.now())
	require.NoError(t, err)

	out := h.coord.CompleteUnbindByExternal(ctx, 42, "bob")
	require.Equal(t, domain.OutcomeUnbound, out.Kind)
	assert.Equal(t, "p1", out.Binding.LocalID)
	require.Len(t, sess.messages, 1)

	out = h.coord.CompleteUnbindByExternal(ctx, 42, "bob")
	assert.Equal(t, domain.OutcomeNotBound, out.Kind)
}

func TestUnbindLocal_CancelsPendingAndNotifiesExternal(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	_, err := h.store.Bind(ctx, "p1", 42, "Alice", "system", h.clock.now())
	require.NoError(t, err)
	_, err = h.requests.StartRequest("p1", "Alice", 6, 5*time.Minute)
	require.NoError(t, err)

	out := h.coord.UnbindLocal(ctx, "p1", "admin")
	require.Equal(t, domain.OutcomeUnbound, out.Kind)

	assert.Equal(t, 0, h.requests.PendingCount())
	require.Len(t, h.bot.sent[42], 1)
	assert.Contains(t, h.bot.sent[42][0], "admin")
}

func TestUnbindLocal_NotBound(t *testing.T) {
	h := newHarness()
	out := h.coord.UnbindLocal(context.Background(), "p1", "admin")
	assert.Equal(t, domain.OutcomeNotBound, out.Kind)
}

func TestCancelBind(t *testing.T) {
	h := newHarness()
	ctx := context.Background()

	start := h.coord.StartBind(ctx, "p1", "Alice")
	require.Equal(t, domain.OutcomeCodeIssued, start.Outcome.Kind)

	assert.True(t, h.coord.CancelBind("p1"))
	assert.False(t, h.coord.CancelBind("p1"))

	out := h.coord.CompleteBindByCode(ctx, start.Request.Code, 42, "bob")
	assert.Equal(t, domain.OutcomeRequestNotFound, out.Kind)
}

func TestStatus(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	_, err := h.requests.StartRequest("p1", "Alice", 6, 5*time.Minute)
	require.NoError(t, err)

	st := h.coord.Status(ctx)
	assert.True(t, st.PersistenceOK)
	assert.Equal(t, 1, st.PendingRequests)
	assert.False(t, st.JanitorRunning)

	h.store.err = errors.New("dynamodb down")
	st = h.coord.Status(ctx)
	assert.False(t, st.PersistenceOK)
	assert.Contains(t, st.PersistenceErr, "dynamodb down")
}

func TestAuditTrail_OneEntryPerAttempt(t *testing.T) {
	h := newHarness()
	ctx := context.Background()

	start := h.coord.StartBind(ctx, "p1", "Alice")
	require.Equal(t, domain.OutcomeCodeIssued, start.Outcome.Kind)

	h.coord.CompleteBindByCode(ctx, start.Request.Code, 42, "bob")
	h.coord.UnbindLocal(ctx, "p1", "admin")
	h.coord.UnbindLocal(ctx, "p1", "admin")

	// bind, unbind, and the unbind of an absent binding.
	require.Len(t, h.audit.entries, 3)
	assert.Equal(t, domain.AuditActionBind, h.audit.entries[0].Action)
	assert.True(t, h.audit.entries[0].Success)
	assert.Equal(t, domain.AuditActionUnbind, h.audit.entries[1].Action)
	assert.True(t, h.audit.entries[1].Success)
	assert.Equal(t, domain.AuditActionUnbind, h.audit.entries[2].Action)
	assert.False(t, h.audit.entries[2].Success)
}
