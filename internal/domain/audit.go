package domain

import "time"

// AuditAction classifies a binding mutation attempt.
type AuditAction string

const (
	AuditActionBind   AuditAction = "BIND"
	AuditActionUnbind AuditAction = "UNBIND"
	AuditActionUpdate AuditAction = "UPDATE"
)

// AuditEntry records one attempted binding mutation, success or failure.
// Entries are append-only and never mutated or deleted.
// EntryID is a ULID so entries sort by insertion time.
type AuditEntry struct {
	EntryID    string      `json:"id" dynamodbav:"entry_id"`
	LocalID    string      `json:"local_id" dynamodbav:"local_id"`
	ExternalID int64       `json:"external_id" dynamodbav:"external_id"`
	Action     AuditAction `json:"action" dynamodbav:"action"`
	Success    bool        `json:"success" dynamodbav:"success"`
	Reason     string      `json:"reason,omitempty" dynamodbav:"reason,omitempty"`
	Operator   string      `json:"operator" dynamodbav:"operator"`
	Timestamp  time.Time   `json:"timestamp" dynamodbav:"timestamp"`
}
