// Package operator authenticates the config-provisioned admin account
// that guards the unbind and audit-query surface.
package operator

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"github.com/go-account-link/internal/config"
	"github.com/go-account-link/internal/domain"
	jwtinfra "github.com/go-account-link/internal/infrastructure/jwt"
)

// TokenSigner issues role-scoped access tokens.
type TokenSigner interface {
	Sign(subject, role string) (string, error)
}

type Service struct {
	name   string
	hash   string
	signer TokenSigner
}

func NewService(cfg *config.Config, signer TokenSigner) *Service {
	return &Service{
		name:   cfg.OperatorName,
		hash:   cfg.OperatorPasswordHash,
		signer: signer,
	}
}

// Login checks credentials against the provisioned operator account and
// returns a signed operator token. An empty configured hash disables the
// account entirely.
func (s *Service) Login(name, password string) (string, error) {
	if s.hash == "" {
		return "", fmt.Errorf("operator login disabled: %w", domain.ErrForbidden)
	}
	if name != s.name {
		return "", fmt.Errorf("unknown operator: %w", domain.ErrUnauthorized)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(s.hash), []byte(password)); err != nil {
		return "", fmt.Errorf("invalid credentials: %w", domain.ErrUnauthorized)
	}
	token, err := s.signer.Sign(name, jwtinfra.RoleOperator)
	if err != nil {
		return "", fmt.Errorf("sign operator token: %w", err)
	}
	return token, nil
}
