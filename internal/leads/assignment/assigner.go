// Package assignment distributes new leads over an agency's agents in
// round-robin order.
package assignment

import (
	"context"
	"fmt"
	"time"

	eventrepo "leadflow_backend/internal/eventlog/repository"
	"leadflow_backend/internal/events"
	identityrepo "leadflow_backend/internal/identity/repository"
	"leadflow_backend/internal/leads/domain"
	"leadflow_backend/internal/leads/lock"
	"leadflow_backend/internal/leads/ports"

	"github.com/google/uuid"
)

// Users is the agent storage the assigner needs.
type Users interface {
	ListAssignableAgents(ctx context.Context, agencyID uuid.UUID) ([]identityrepo.User, error)
	TouchLastAssigned(ctx context.Context, userID uuid.UUID, at time.Time) error
}

// Leads persists assignments.
type Leads interface {
	Assign(ctx context.Context, id uuid.UUID, agentID uuid.UUID) error
}

type Assigner struct {
	users  Users
	leads  Leads
	locker lock.Locker
	facts  ports.FactRecorder
	bus    events.Bus
	now    func() time.Time
}

func New(users Users, leads Leads, locker lock.Locker, facts ports.FactRecorder, bus events.Bus, now func() time.Time) *Assigner {
	if now == nil {
		now = time.Now
	}
	return &Assigner{users: users, leads: leads, locker: locker, facts: facts, bus: bus, now: now}
}

// AutoAssign gives the lead to the agent that waited longest for one. It
// returns nil without error when the lead has no agency or nobody is
// eligible.
func (a *Assigner) AutoAssign(ctx context.Context, lead domain.Lead, actor identityrepo.User) (*uuid.UUID, error) {
	if lead.AgencyID == uuid.Nil {
		return nil, nil
	}

	unlock, err := a.locker.Lock(ctx, lock.AgencyKey(lead.AgencyID))
	if err != nil {
		return nil, fmt.Errorf("lock agency: %w", err)
	}
	defer unlock()

	agents, err := a.users.ListAssignableAgents(ctx, lead.AgencyID)
	if err != nil {
		return nil, fmt.Errorf("list agents: %w", err)
	}
	if len(agents) == 0 {
		return nil, nil
	}
	chosen := agents[0]

	if err := a.leads.Assign(ctx, lead.ID, chosen.ID); err != nil {
		return nil, fmt.Errorf("assign lead: %w", err)
	}
	if err := a.users.TouchLastAssigned(ctx, chosen.ID, a.now()); err != nil {
		return nil, fmt.Errorf("advance cursor: %w", err)
	}

	a.record(ctx, lead, chosen.ID, &actor.ID, true)
	return &chosen.ID, nil
}

// AssignTo assigns the lead to a specific agent without moving the
// round-robin cursor.
func (a *Assigner) AssignTo(ctx context.Context, lead domain.Lead, agentID uuid.UUID) error {
	if err := a.leads.Assign(ctx, lead.ID, agentID); err != nil {
		return err
	}
	a.record(ctx, lead, agentID, &agentID, false)
	return nil
}

func (a *Assigner) record(ctx context.Context, lead domain.Lead, agentID uuid.UUID, userID *uuid.UUID, auto bool) {
	source := eventrepo.SourceAgent
	if auto {
		source = eventrepo.SourceSystem
	}
	a.facts.Record(ctx, eventrepo.Fact{
		AgencyID: lead.AgencyID,
		UserID:   userID,
		LeadID:   &lead.ID,
		Type:     eventrepo.TypeLeadAssigned,
		Source:   source,
		Payload:  eventrepo.Payload{Extra: map[string]any{"agentId": agentID.String(), "auto": auto}},
	})
	if a.bus != nil {
		a.bus.Publish(ctx, events.LeadAssigned{
			BaseEvent: events.NewBaseEventAt(a.now()),
			LeadID:    lead.ID,
			AgencyID:  lead.AgencyID,
			AgentID:   agentID,
			Auto:      auto,
		})
	}
}
