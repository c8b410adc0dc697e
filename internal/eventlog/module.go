package eventlog

import (
	"leadflow_backend/internal/eventlog/handler"
	"leadflow_backend/internal/eventlog/reporting"
	apphttp "leadflow_backend/internal/http"
)

// FactStore is everything the module reads from the fact log.
type FactStore interface {
	reporting.FactReader
	handler.LeadFacts
}

// Module serves the analytics endpoints.
type Module struct {
	handler *handler.Handler
}

func NewModule(leads reporting.LeadStats, facts FactStore, agencies handler.AgencyResolver) *Module {
	return &Module{handler: handler.New(reporting.New(leads, facts), facts, agencies)}
}

func (m *Module) Name() string {
	return "eventlog"
}

func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	m.handler.RegisterRoutes(ctx.Protected)
}

var _ apphttp.Module = (*Module)(nil)
