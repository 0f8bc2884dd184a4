package verification

import (
	"crypto/rand"
	"math/big"
	"sync"
	"time"

	"github.com/go-account-link/internal/domain"
)

// Store holds in-flight verification requests, keyed by local account.
// It is mutated concurrently by command handlers, the webhook path and
// the janitor, so every operation takes the store lock. Expired requests
// are invisible to every reader: each read path purges them lazily, the
// janitor only reclaims the leftovers.
type Store struct {
	mu       sync.Mutex
	requests map[string]domain.VerificationRequest
	now      func() time.Time
}

func NewStore() *Store {
	return NewStoreWithClock(time.Now)
}

// NewStoreWithClock injects the clock, used by tests to drive expiry.
func NewStoreWithClock(now func() time.Time) *Store {
	return &Store{
		requests: make(map[string]domain.VerificationRequest),
		now:      now,
	}
}

// StartRequest generates a fresh random numeric code and stores a request
// expiring after ttl. Any prior request for the same local account is
// superseded.
func (s *Store) StartRequest(localID, displayName string, codeLength int, ttl time.Duration) (*domain.VerificationRequest, error) {
	code, err := generateCode(codeLength)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	req := domain.VerificationRequest{
		LocalID:     localID,
		DisplayName: displayName,
		Code:        code,
		CreatedAt:   now,
		ExpiresAt:   now.Add(ttl),
	}
	s.requests[localID] = req
	return &req, nil
}

// Get returns the live request for a local account. An expired request
// is purged and reported as absent.
func (s *Store) Get(localID string) (*domain.VerificationRequest, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.requests[localID]
	if !ok {
		return nil, false
	}
	if s.now().After(req.ExpiresAt) {
		delete(s.requests, localID)
		return nil, false
	}
	return &req, true
}

// FindByCode scans live requests for a matching code. Identical codes can
// only coexist under adversarial collision; the first live match wins,
// which is safe because codes are single-use and deleted by local id.
func (s *Store) FindByCode(code string) (*domain.VerificationRequest, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	for _, req := range s.requests {
		if req.Code == code && !now.After(req.ExpiresAt) {
			return &req, true
		}
	}
	return nil, false
}

// Cancel removes the request for a local account, reporting whether one
// was present (expired or not).
func (s *Store) Cancel(localID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.requests[localID]
	delete(s.requests, localID)
	return ok
}

// PendingCount returns the number of live requests.
func (s *Store) PendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	n := 0
	for _, req := range s.requests {
		if !now.After(req.ExpiresAt) {
			n++
		}
	}
	return n
}

// SweepExpired removes all expired requests and returns how many were
// reclaimed. Called by the janitor.
func (s *Store) SweepExpired() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	removed := 0
	for localID, req := range s.requests {
		if now.After(req.ExpiresAt) {
			delete(s.requests, localID)
			removed++
		}
	}
	return removed
}

// generateCode draws each digit independently from crypto/rand, so codes
// are uniform over the full length including leading zeros.
func generateCode(length int) (string, error) {
	digits := make([]byte, length)
	for i := range digits {
		n, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			return "", err
		}
		digits[i] = byte('0' + n.Int64())
	}
	return string(digits), nil
}
