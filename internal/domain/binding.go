package domain

import "time"

// OperatorSystem is the attribution recorded when no human operator
// initiated a mutation.
const OperatorSystem = "system"

// Binding is the confirmed pairing of a local account and an external
// account. LocalID is the primary key; ExternalID is unique across all
// bindings (the registry enforces the bijection at the persistence layer).
type Binding struct {
	LocalID     string    `json:"local_id" dynamodbav:"local_id"`
	ExternalID  int64     `json:"external_id" dynamodbav:"external_id"`
	DisplayName string    `json:"display_name" dynamodbav:"display_name"`
	CreatedAt   time.Time `json:"created" dynamodbav:"created_at"`
	UpdatedAt   time.Time `json:"updated" dynamodbav:"updated_at"`
	CreatedBy   string    `json:"created_by" dynamodbav:"created_by"`
	UpdatedBy   string    `json:"updated_by" dynamodbav:"updated_by"`
}

// BindStatus reports how an atomic bind resolved.
type BindStatus int

const (
	// BindStatusBound means a new binding was inserted.
	BindStatusBound BindStatus = iota
	// BindStatusUpdated means the exact pair already existed and only
	// updated_at/updated_by were refreshed.
	BindStatusUpdated
	// BindStatusConflict means one side is already bound to a different
	// counterpart; Reason names which.
	BindStatusConflict
)

// BindResult is the outcome of BindingRegistry.Bind. Conflict is set to
// the specific outcome kind (local side, external side, or generic)
// when Status is BindStatusConflict.
type BindResult struct {
	Status   BindStatus
	Binding  *Binding
	Reason   string
	Conflict OutcomeKind
}
