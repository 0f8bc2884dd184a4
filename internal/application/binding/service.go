package binding

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/go-account-link/internal/application/verification"
	"github.com/go-account-link/internal/domain"
	"github.com/go-account-link/internal/infrastructure/presence"
	"github.com/go-account-link/internal/infrastructure/sns"
)

// persistTimeout bounds every registry round-trip started by the
// coordinator, so a stalled store turns into a clean outcome instead of
// a hung handler.
const persistTimeout = 10 * time.Second

// SessionResolver locates a reachable session for a local account.
type SessionResolver interface {
	Resolve(ctx context.Context, localID string) (presence.Session, bool)
}

// Coordinator drives the binding handshake end to end: issuing codes on
// the local side, completing them from the external side, and keeping
// the verification store and registry consistent with each other. All
// expected failures come back as outcomes; an error never crosses this
// boundary.
type Coordinator struct {
	registry *Registry
	requests *verification.Store
	janitor  *verification.Janitor
	sessions SessionResolver
	bot      sns.BotSender
	codeLen  int
	codeTTL  time.Duration
}

func NewCoordinator(registry *Registry, requests *verification.Store, janitor *verification.Janitor, sessions SessionResolver, bot sns.BotSender, codeLen int, codeTTL time.Duration) *Coordinator {
	return &Coordinator{
		registry: registry,
		requests: requests,
		janitor:  janitor,
		sessions: sessions,
		bot:      bot,
		codeLen:  codeLen,
		codeTTL:  codeTTL,
	}
}

// StartResult is the outcome of StartBind plus the verification request
// the caller should present to the user, when one exists.
type StartResult struct {
	Outcome domain.Outcome              `json:"outcome"`
	Request *domain.VerificationRequest `json:"request,omitempty"`
}

// StartBind begins the handshake for a local account. An account that is
// already bound gets no code; an account with a live pending request gets
// the existing request back rather than a fresh code.
func (c *Coordinator) StartBind(ctx context.Context, localID, displayName string) StartResult {
	ctx, cancel := context.WithTimeout(ctx, persistTimeout)
	defer cancel()

	bound, err := c.registry.LookupByLocal(ctx, localID)
	if err != nil {
		return StartResult{Outcome: unavailable(err)}
	}
	if bound != nil {
		return StartResult{Outcome: domain.Outcome{
			Kind:    domain.OutcomeLocalAlreadyBound,
			Reason:  fmt.Sprintf("local account already bound to external account %d", bound.ExternalID),
			Binding: bound,
		}}
	}

	if pending, ok := c.requests.Get(localID); ok {
		return StartResult{
			Outcome: domain.Outcome{
				Kind:   domain.OutcomeCodePending,
				Reason: "verification already in progress, use the existing code",
			},
			Request: pending,
		}
	}

	req, err := c.requests.StartRequest(localID, displayName, c.codeLen, c.codeTTL)
	if err != nil {
		slog.Error("failed to generate verification code", "local_id", localID, "err", err)
		return StartResult{Outcome: domain.Outcome{
			Kind:   domain.OutcomeInternal,
			Reason: "could not generate a verification code",
		}}
	}
	return StartResult{
		Outcome: domain.Outcome{Kind: domain.OutcomeCodeIssued},
		Request: req,
	}
}

// CompleteBindByCode finishes the handshake from the external side. The
// code is resolved to its local account, re-validated against the clock,
// and the pair is handed to the registry, whose atomic decision is
// authoritative. The pending request is consumed only on success, so a
// conflicting attempt does not burn the code.
func (c *Coordinator) CompleteBindByCode(ctx context.Context, code string, externalID int64, externalName string) domain.Outcome {
	if !validCode(code, c.codeLen) {
		return domain.Outcome{
			Kind:   domain.OutcomeInvalidFormat,
			Reason: fmt.Sprintf("verification code must be %d digits", c.codeLen),
		}
	}

	req, ok := c.requests.FindByCode(code)
	if !ok {
		return domain.Outcome{
			Kind:   domain.OutcomeRequestNotFound,
			Reason: "unknown verification code, request a new one",
		}
	}
	// Re-read by owner: the request found by code may have been
	// superseded or expired between the scan and now.
	live, ok := c.requests.Get(req.LocalID)
	if !ok || live.Code != code {
		return domain.Outcome{
			Kind:   domain.OutcomeCodeExpired,
			Reason: "verification code expired, request a new one",
		}
	}

	ctx, cancel := context.WithTimeout(ctx, persistTimeout)
	defer cancel()

	// Advisory pre-check for a friendlier message; the registry still
	// decides atomically, so a miss here is harmless.
	if prior, err := c.registry.LookupByExternal(ctx, externalID); err != nil {
		slog.Warn("pre-bind lookup failed, deferring to registry", "external_id", externalID, "err", err)
	} else if prior != nil && prior.LocalID != req.LocalID {
		return domain.Outcome{
			Kind:   domain.OutcomeExternalAlreadyBound,
			Reason: fmt.Sprintf("external account already bound to local account %s", prior.LocalID),
		}
	}

	res, err := c.registry.Bind(ctx, req.LocalID, externalID, req.DisplayName, externalOperator(externalID, externalName))
	if err != nil {
		return unavailable(err)
	}
	if res.Status == domain.BindStatusConflict {
		return domain.Outcome{Kind: res.Conflict, Reason: res.Reason}
	}

	c.requests.Cancel(req.LocalID)
	c.notifyLocal(ctx, req.LocalID, fmt.Sprintf("Your account is now linked to %s.", externalName))

	kind := domain.OutcomeBound
	reason := "binding created"
	if res.Status == domain.BindStatusUpdated {
		kind = domain.OutcomeUpdated
		reason = "binding refreshed"
	}
	return domain.Outcome{Kind: kind, Reason: reason, Binding: res.Binding}
}

// CompleteUnbindByExternal removes the binding owned by an external
// account, for the bot-side unbind command.
func (c *Coordinator) CompleteUnbindByExternal(ctx context.Context, externalID int64, externalName string) domain.Outcome {
	ctx, cancel := context.WithTimeout(ctx, persistTimeout)
	defer cancel()

	bound, err := c.registry.LookupByExternal(ctx, externalID)
	if err != nil {
		return unavailable(err)
	}
	if bound == nil {
		return domain.Outcome{
			Kind:   domain.OutcomeNotBound,
			Reason: "external account is not bound",
		}
	}

	removed, err := c.registry.Unbind(ctx, bound.LocalID, externalOperator(externalID, externalName))
	if err != nil {
		if errors.Is(err, domain.ErrConflict) {
			return domain.Outcome{Kind: domain.OutcomeConflict, Reason: "binding changed concurrently, try again"}
		}
		return unavailable(err)
	}
	if removed == nil {
		// Raced with another unbind; same end state for the caller.
		return domain.Outcome{Kind: domain.OutcomeNotBound, Reason: "external account is not bound"}
	}

	c.notifyLocal(ctx, removed.LocalID, "Your account link has been removed.")
	return domain.Outcome{Kind: domain.OutcomeUnbound, Reason: "binding removed", Binding: removed}
}

// UnbindLocal removes the binding for a local account, for the operator
// and service surfaces. Any pending verification request is cancelled
// alongside, and the previously bound external account is told.
func (c *Coordinator) UnbindLocal(ctx context.Context, localID, operator string) domain.Outcome {
	ctx, cancel := context.WithTimeout(ctx, persistTimeout)
	defer cancel()

	c.requests.Cancel(localID)

	removed, err := c.registry.Unbind(ctx, localID, operator)
	if err != nil {
		if errors.Is(err, domain.ErrConflict) {
			return domain.Outcome{Kind: domain.OutcomeConflict, Reason: "binding changed concurrently, try again"}
		}
		return unavailable(err)
	}
	if removed == nil {
		return domain.Outcome{Kind: domain.OutcomeNotBound, Reason: "local account is not bound"}
	}

	c.notifyExternal(ctx, removed.ExternalID, fmt.Sprintf("Your link to account %s was removed by %s.", removed.LocalID, operator))
	return domain.Outcome{Kind: domain.OutcomeUnbound, Reason: "binding removed", Binding: removed}
}

// QueryInfoByLocal reports the binding for a local account.
func (c *Coordinator) QueryInfoByLocal(ctx context.Context, localID string) domain.Outcome {
	ctx, cancel := context.WithTimeout(ctx, persistTimeout)
	defer cancel()

	b, err := c.registry.LookupByLocal(ctx, localID)
	if err != nil {
		return unavailable(err)
	}
	if b == nil {
		return domain.Outcome{Kind: domain.OutcomeNotBound, Reason: "local account is not bound"}
	}
	return domain.Outcome{Kind: domain.OutcomeBound, Binding: b}
}

// QueryInfoByExternal reports the binding for an external account.
func (c *Coordinator) QueryInfoByExternal(ctx context.Context, externalID int64) domain.Outcome {
	ctx, cancel := context.WithTimeout(ctx, persistTimeout)
	defer cancel()

	b, err := c.registry.LookupByExternal(ctx, externalID)
	if err != nil {
		return unavailable(err)
	}
	if b == nil {
		return domain.Outcome{Kind: domain.OutcomeNotBound, Reason: "external account is not bound"}
	}
	return domain.Outcome{Kind: domain.OutcomeBound, Binding: b}
}

// PendingRequest returns the live verification request for a local
// account, if any.
func (c *Coordinator) PendingRequest(localID string) (*domain.VerificationRequest, bool) {
	return c.requests.Get(localID)
}

// CancelBind abandons the pending verification request for a local
// account, reporting whether one existed.
func (c *Coordinator) CancelBind(localID string) bool {
	return c.requests.Cancel(localID)
}

// Status is a point-in-time health snapshot of the handshake machinery.
type Status struct {
	PersistenceOK   bool   `json:"persistence_ok"`
	PersistenceErr  string `json:"persistence_error,omitempty"`
	PendingRequests int    `json:"pending_requests"`
	JanitorRunning  bool   `json:"janitor_running"`
}

func (c *Coordinator) Status(ctx context.Context) Status {
	ctx, cancel := context.WithTimeout(ctx, persistTimeout)
	defer cancel()

	st := Status{
		PersistenceOK:   true,
		PendingRequests: c.requests.PendingCount(),
		JanitorRunning:  c.janitor.Running(),
	}
	if err := c.registry.Ping(ctx); err != nil {
		st.PersistenceOK = false
		st.PersistenceErr = err.Error()
	}
	return st
}

// notifyLocal delivers a confirmation to the local account's session, if
// one is reachable. Delivery failures never affect the operation that
// triggered them.
func (c *Coordinator) notifyLocal(ctx context.Context, localID, message string) {
	if c.sessions == nil {
		return
	}
	sess, ok := c.sessions.Resolve(ctx, localID)
	if !ok {
		return
	}
	if err := sess.SendText(ctx, message); err != nil {
		slog.Warn("failed to notify local session", "local_id", localID, "err", err)
	}
}

// notifyExternal delivers a message to an external account through the
// bot relay, best-effort.
func (c *Coordinator) notifyExternal(ctx context.Context, externalID int64, message string) {
	if c.bot == nil {
		return
	}
	if err := c.bot.SendText(ctx, externalID, message); err != nil {
		slog.Warn("failed to notify external account", "external_id", externalID, "err", err)
	}
}

func validCode(code string, length int) bool {
	if len(code) != length {
		return false
	}
	for _, r := range code {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// externalOperator is the audit identity of a bot-side actor.
func externalOperator(externalID int64, name string) string {
	if name != "" {
		return name + "#" + strconv.FormatInt(externalID, 10)
	}
	return "external#" + strconv.FormatInt(externalID, 10)
}

func unavailable(err error) domain.Outcome {
	slog.Error("persistence unavailable", "err", err)
	return domain.Outcome{
		Kind:   domain.OutcomePersistenceUnavailable,
		Reason: "storage is temporarily unavailable, try again later",
	}
}
