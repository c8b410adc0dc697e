// Package identity provides the users, agencies and channel settings
// bounded context.
package identity

import (
	apphttp "leadflow_backend/internal/http"
	"leadflow_backend/internal/identity/credcrypto"
	"leadflow_backend/internal/identity/handler"
	"leadflow_backend/internal/identity/service"
	"leadflow_backend/platform/logger"
	"leadflow_backend/platform/validator"
)

// Module is the identity bounded context module implementing http.Module.
type Module struct {
	handler *handler.Handler
	service *service.Service
}

// NewModule wires the identity service over the given storage.
func NewModule(repo service.Repository, sealer *credcrypto.Sealer, val *validator.Validator, log *logger.Logger) *Module {
	svc := service.New(repo, sealer, log)
	return &Module{
		handler: handler.New(svc, val),
		service: svc,
	}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "identity"
}

// Service exposes the identity service to the lead engine.
func (m *Module) Service() *service.Service {
	return m.service
}

// RegisterRoutes mounts identity routes on the protected group.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	m.handler.RegisterRoutes(ctx.Protected)
}

var _ apphttp.Module = (*Module)(nil)
