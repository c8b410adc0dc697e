// Package visits provides the site-visit booking module.
package visits

import (
	apphttp "leadflow_backend/internal/http"
	"leadflow_backend/internal/leads/ports"
	"leadflow_backend/internal/visits/handler"
	"leadflow_backend/internal/visits/service"
	"leadflow_backend/platform/validator"
)

// Identity resolves the acting user and their agency.
type Identity interface {
	handler.Users
	ports.AgencyProvider
}

type Deps struct {
	Repo      service.Repository
	Leads     service.Leads
	Identity  Identity
	Facts     ports.FactRecorder
	Validator *validator.Validator
}

type Module struct {
	handler *handler.Handler
	service *service.Service
}

func NewModule(d Deps) *Module {
	svc := service.New(service.Deps{
		Repo:     d.Repo,
		Leads:    d.Leads,
		Agencies: d.Identity,
		Facts:    d.Facts,
	})
	return &Module{handler: handler.New(svc, d.Identity, d.Validator), service: svc}
}

func (m *Module) Name() string {
	return "visits"
}

func (m *Module) Service() *service.Service {
	return m.service
}

func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	m.handler.RegisterRoutes(ctx.Protected)
}

var _ apphttp.Module = (*Module)(nil)
