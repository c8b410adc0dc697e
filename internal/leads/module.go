// Package leads provides the lead lifecycle bounded context: resolution of
// inbound contacts, classification, the sales pipeline and agent actions.
package leads

import (
	"context"

	"leadflow_backend/internal/events"
	apphttp "leadflow_backend/internal/http"
	identityrepo "leadflow_backend/internal/identity/repository"
	"leadflow_backend/internal/leads/assignment"
	"leadflow_backend/internal/leads/handler"
	"leadflow_backend/internal/leads/intake"
	"leadflow_backend/internal/leads/lock"
	"leadflow_backend/internal/leads/pipeline"
	"leadflow_backend/internal/leads/ports"
	"leadflow_backend/internal/leads/repository"
	"leadflow_backend/internal/leads/resolver"
	"leadflow_backend/internal/leads/service"
	"leadflow_backend/internal/metrics"
	"leadflow_backend/platform/logger"
	"leadflow_backend/platform/validator"

	"github.com/google/uuid"
)

// Identity is what the lead engine needs from the identity context.
type Identity interface {
	ports.AgencyProvider
	ports.CredentialsProvider
	GetUser(ctx context.Context, id uuid.UUID) (identityrepo.User, error)
}

type Deps struct {
	Store    repository.LeadRepository
	Identity Identity
	// Agents is the user storage behind round-robin assignment.
	Agents     assignment.Users
	Locker     lock.Locker
	Facts      ports.FactRecorder
	FollowUps  ports.FollowUpScheduler
	Classifier ports.Classifier
	Responder  ports.Responder
	Coach      ports.Coach
	Speaker    ports.Speaker
	Messenger  ports.Messenger
	AutoReply  bool
	Bus        events.Bus
	Metrics    *metrics.Metrics
	Validator  *validator.Validator
	Log        *logger.Logger
}

// Module is the leads bounded context module implementing http.Module.
type Module struct {
	handler *handler.Handler
	service *service.Service
	intake  *intake.Service
}

// NewModule wires the lead engine. Classifier, responder, coach, speaker
// and messenger may be nil; the matching steps are then skipped.
func NewModule(d Deps) *Module {
	pipe := pipeline.New(d.Store, d.Locker, d.Facts, d.Bus, d.Metrics)
	assigner := assignment.New(d.Agents, d.Store, d.Locker, d.Facts, d.Bus, nil)

	res := resolver.New(resolver.Deps{
		Store:     d.Store,
		Agencies:  d.Identity,
		Locker:    d.Locker,
		Facts:     d.Facts,
		FollowUps: d.FollowUps,
		Assigner:  assigner,
		Bus:       d.Bus,
		Log:       d.Log,
	})

	in := intake.New(intake.Deps{
		Resolver:     res,
		Pipeline:     pipe,
		Conversation: d.Store,
		Facts:        d.Facts,
		Classifier:   d.Classifier,
		Responder:    d.Responder,
		Speaker:      d.Speaker,
		Messenger:    d.Messenger,
		Credentials:  d.Identity,
		AutoReply:    d.AutoReply,
		Bus:          d.Bus,
		Metrics:      d.Metrics,
		Log:          d.Log,
	})

	svc := service.New(service.Deps{
		Store:       d.Store,
		Pipeline:    pipe,
		Assigner:    assigner,
		Agencies:    d.Identity,
		Facts:       d.Facts,
		Messenger:   d.Messenger,
		Credentials: d.Identity,
		Coach:       d.Coach,
		Metrics:     d.Metrics,
		Log:         d.Log,
	})

	if d.Bus != nil {
		subscribe(d.Bus, d.Log)
	}

	return &Module{
		handler: handler.New(svc, in, d.Identity, d.Validator),
		service: svc,
		intake:  in,
	}
}

// subscribe logs lifecycle events so stage movement is visible in the
// service logs next to the audit facts.
func subscribe(bus events.Bus, log *logger.Logger) {
	bus.Subscribe(events.LeadStageChanged{}.EventName(), events.HandlerFunc(func(ctx context.Context, event events.Event) error {
		e, ok := event.(events.LeadStageChanged)
		if !ok {
			return nil
		}
		log.Info("lead stage changed", "lead_id", e.LeadID, "from", e.FromStage, "to", e.ToStage, "cause", e.Cause)
		return nil
	}))
	bus.Subscribe(events.LeadAssigned{}.EventName(), events.HandlerFunc(func(ctx context.Context, event events.Event) error {
		e, ok := event.(events.LeadAssigned)
		if !ok {
			return nil
		}
		log.Info("lead assigned", "lead_id", e.LeadID, "agent_id", e.AgentID, "auto", e.Auto)
		return nil
	}))
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "leads"
}

// Intake exposes inbound message handling to the webhook.
func (m *Module) Intake() *intake.Service {
	return m.intake
}

// Service returns the agent action service.
func (m *Module) Service() *service.Service {
	return m.service
}

// RegisterRoutes mounts lead and pipeline routes on the protected group.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	m.handler.RegisterRoutes(ctx.Protected)
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
