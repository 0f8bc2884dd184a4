package binding

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-account-link/internal/domain"
	"github.com/go-account-link/internal/pkg/id"
)

// BindingStore is the persistence seam the registry requires. The atomic
// conflict decision lives behind Bind: implementations must resolve
// insert-vs-update-vs-conflict in a single atomic unit.
type BindingStore interface {
	Bind(ctx context.Context, localID string, externalID int64, displayName, operator string, now time.Time) (*domain.BindResult, error)
	Unbind(ctx context.Context, localID string) (*domain.Binding, error)
	GetByLocal(ctx context.Context, localID string) (*domain.Binding, error)
	GetByExternal(ctx context.Context, externalID int64) (*domain.Binding, error)
	Ping(ctx context.Context) error
}

// AuditStore is the append-only audit sink.
type AuditStore interface {
	Append(ctx context.Context, e *domain.AuditEntry) error
}

// Registry is the authoritative binding store. Every bind/unbind attempt,
// regardless of outcome, produces exactly one audit entry. Audit writes
// are best-effort: a failed append is logged and never fails or blocks
// the mutation it describes.
type Registry struct {
	store BindingStore
	audit AuditStore
	now   func() time.Time
}

func NewRegistry(store BindingStore, audit AuditStore) *Registry {
	return NewRegistryWithClock(store, audit, time.Now)
}

// NewRegistryWithClock injects the clock, used by tests to pin timestamps.
func NewRegistryWithClock(store BindingStore, audit AuditStore, now func() time.Time) *Registry {
	return &Registry{store: store, audit: audit, now: now}
}

// Bind inserts, refreshes or rejects the pair. Conflicts are data, not
// errors; an error return means the store itself was unreachable.
func (r *Registry) Bind(ctx context.Context, localID string, externalID int64, displayName, operator string) (*domain.BindResult, error) {
	res, err := r.store.Bind(ctx, localID, externalID, displayName, operator, r.now().UTC())
	if err != nil {
		r.logAudit(ctx, localID, externalID, domain.AuditActionBind, false, "store failure: "+err.Error(), operator)
		return nil, fmt.Errorf("bind %s: %v: %w", localID, err, domain.ErrPersistenceUnavailable)
	}
	switch res.Status {
	case domain.BindStatusBound:
		r.logAudit(ctx, localID, externalID, domain.AuditActionBind, true, "created new binding", operator)
	case domain.BindStatusUpdated:
		r.logAudit(ctx, localID, externalID, domain.AuditActionUpdate, true, "refreshed existing binding", operator)
	case domain.BindStatusConflict:
		r.logAudit(ctx, localID, externalID, domain.AuditActionBind, false, res.Reason, operator)
	}
	return res, nil
}

// Unbind removes the binding for a local account. Returns the removed
// binding, or nil when none existed.
func (r *Registry) Unbind(ctx context.Context, localID string, operator string) (*domain.Binding, error) {
	removed, err := r.store.Unbind(ctx, localID)
	if err != nil {
		if errors.Is(err, domain.ErrConflict) {
			r.logAudit(ctx, localID, 0, domain.AuditActionUnbind, false, "binding changed concurrently", operator)
			return nil, err
		}
		r.logAudit(ctx, localID, 0, domain.AuditActionUnbind, false, "store failure: "+err.Error(), operator)
		return nil, fmt.Errorf("unbind %s: %v: %w", localID, err, domain.ErrPersistenceUnavailable)
	}
	if removed == nil {
		r.logAudit(ctx, localID, 0, domain.AuditActionUnbind, false, "local account not bound", operator)
		return nil, nil
	}
	r.logAudit(ctx, localID, removed.ExternalID, domain.AuditActionUnbind, true, "removed binding", operator)
	return removed, nil
}

// LookupByLocal returns the binding for a local account, or nil when absent.
func (r *Registry) LookupByLocal(ctx context.Context, localID string) (*domain.Binding, error) {
	b, err := r.store.GetByLocal(ctx, localID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("lookup by local %s: %v: %w", localID, err, domain.ErrPersistenceUnavailable)
	}
	return b, nil
}

// LookupByExternal returns the binding for an external account, or nil when absent.
func (r *Registry) LookupByExternal(ctx context.Context, externalID int64) (*domain.Binding, error) {
	b, err := r.store.GetByExternal(ctx, externalID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("lookup by external %d: %v: %w", externalID, err, domain.ErrPersistenceUnavailable)
	}
	return b, nil
}

// Ping reports store reachability for the status endpoint.
func (r *Registry) Ping(ctx context.Context) error {
	return r.store.Ping(ctx)
}

func (r *Registry) logAudit(ctx context.Context, localID string, externalID int64, action domain.AuditAction, success bool, reason, operator string) {
	entry := &domain.AuditEntry{
		EntryID:    id.New(),
		LocalID:    localID,
		ExternalID: externalID,
		Action:     action,
		Success:    success,
		Reason:     reason,
		Operator:   operator,
		Timestamp:  r.now().UTC(),
	}
	if err := r.audit.Append(ctx, entry); err != nil {
		slog.Error("failed to append audit entry",
			"local_id", localID, "external_id", externalID,
			"action", action, "success", success, "err", err)
	}
}
