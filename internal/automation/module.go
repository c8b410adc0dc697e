// Package automation provides the follow-up rule settings module.
package automation

import (
	"leadflow_backend/internal/automation/handler"
	"leadflow_backend/internal/automation/service"
	apphttp "leadflow_backend/internal/http"
	"leadflow_backend/platform/validator"
)

type Module struct {
	handler *handler.Handler
	service *service.Service
}

func NewModule(repo service.Repository, val *validator.Validator) *Module {
	svc := service.New(repo)
	return &Module{handler: handler.New(svc, val), service: svc}
}

func (m *Module) Name() string {
	return "automation"
}

// Service exposes the rule service, used by the import command.
func (m *Module) Service() *service.Service {
	return m.service
}

func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	m.handler.RegisterRoutes(ctx.Protected)
}

var _ apphttp.Module = (*Module)(nil)
