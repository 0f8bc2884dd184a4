package domain

// OutcomeKind is the typed result of a coordinator operation. Outcomes
// are returned, never thrown across the coordinator boundary.
type OutcomeKind string

const (
	OutcomeCodeIssued             OutcomeKind = "code_issued"
	OutcomeCodePending            OutcomeKind = "code_pending"
	OutcomeBound                  OutcomeKind = "bound"
	OutcomeUpdated                OutcomeKind = "updated"
	OutcomeUnbound                OutcomeKind = "unbound"
	OutcomeInvalidFormat          OutcomeKind = "invalid_format"
	OutcomeRequestNotFound        OutcomeKind = "request_not_found"
	OutcomeCodeExpired            OutcomeKind = "code_expired"
	OutcomeExternalAlreadyBound   OutcomeKind = "external_already_bound"
	OutcomeLocalAlreadyBound      OutcomeKind = "local_already_bound"
	OutcomeConflict               OutcomeKind = "conflict"
	OutcomeNotBound               OutcomeKind = "not_bound"
	OutcomePersistenceUnavailable OutcomeKind = "persistence_unavailable"
	OutcomeInternal               OutcomeKind = "internal"
)

// Outcome is a coordinator result: a kind plus a short human-readable
// reason a user can act on. Binding is set on successful bind/update and
// on info queries.
type Outcome struct {
	Kind    OutcomeKind `json:"kind"`
	Reason  string      `json:"reason,omitempty"`
	Binding *Binding    `json:"binding,omitempty"`
}

// OK reports whether the outcome is a success kind.
func (o Outcome) OK() bool {
	switch o.Kind {
	case OutcomeBound, OutcomeUpdated, OutcomeUnbound:
		return true
	}
	return false
}
