package http

import (
	"github.com/go-account-link/internal/application/binding"
	"github.com/go-account-link/internal/application/operator"
	"github.com/go-account-link/internal/infrastructure/dynamo"
	jwtinfra "github.com/go-account-link/internal/infrastructure/jwt"
)

// Deps holds all infrastructure dependencies for the router.
type Deps struct {
	Coordinator *binding.Coordinator
	AuditRepo   *dynamo.AuditRepo
	OperatorSvc *operator.Service
	JWTProvider *jwtinfra.Provider
}
