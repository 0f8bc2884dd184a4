package domain

import "time"

// VerificationRequest is a short-lived, single-use numeric code proving
// control of a local account during the binding handshake. At most one
// live request exists per LocalID; an expired request is treated as
// absent by every reader, not only by the janitor.
type VerificationRequest struct {
	LocalID     string    `json:"local_id"`
	DisplayName string    `json:"display_name"`
	Code        string    `json:"code"`
	CreatedAt   time.Time `json:"created"`
	ExpiresAt   time.Time `json:"expires"`
}

// Remaining returns the time left before expiry, clamped at zero.
func (r *VerificationRequest) Remaining(now time.Time) time.Duration {
	if d := r.ExpiresAt.Sub(now); d > 0 {
		return d
	}
	return 0
}
