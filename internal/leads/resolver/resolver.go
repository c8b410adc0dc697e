// Package resolver maps an inbound message to the canonical lead of its
// sender, creating the lead on first contact.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	eventrepo "leadflow_backend/internal/eventlog/repository"
	"leadflow_backend/internal/events"
	identityrepo "leadflow_backend/internal/identity/repository"
	"leadflow_backend/internal/leads/domain"
	"leadflow_backend/internal/leads/lock"
	"leadflow_backend/internal/leads/ports"
	leadrepo "leadflow_backend/internal/leads/repository"
	"leadflow_backend/platform/logger"
	"leadflow_backend/platform/phone"

	"github.com/google/uuid"
)

// Store is the lead storage the resolver needs.
type Store interface {
	FindLatestByPhone(ctx context.Context, agencyID uuid.UUID, phoneKey string) (domain.Lead, error)
	Create(ctx context.Context, lead domain.Lead, first *domain.Message) error
	AppendMessage(ctx context.Context, msg domain.Message) error
	FillContact(ctx context.Context, id uuid.UUID, name, email *string) error
}

// Input describes one inbound contact.
type Input struct {
	Actor    identityrepo.User
	RawPhone string
	Name     *string
	Email    *string
	Text     string
	// Source is recorded on newly created leads.
	Source string
	// FactSource is the source of the lead_created fact.
	FactSource string
}

// Result is the resolved lead. Message is nil when the input had no text.
type Result struct {
	Lead    domain.Lead
	Created bool
	Message *domain.Message
}

type Resolver struct {
	store     Store
	agencies  ports.AgencyProvider
	locker    lock.Locker
	facts     ports.FactRecorder
	followUps ports.FollowUpScheduler
	assigner  ports.LeadAssigner
	bus       events.Bus
	log       *logger.Logger
	now       func() time.Time
}

type Deps struct {
	Store     Store
	Agencies  ports.AgencyProvider
	Locker    lock.Locker
	Facts     ports.FactRecorder
	FollowUps ports.FollowUpScheduler
	Assigner  ports.LeadAssigner
	Bus       events.Bus
	Log       *logger.Logger
}

func New(d Deps) *Resolver {
	return &Resolver{
		store:     d.Store,
		agencies:  d.Agencies,
		locker:    d.Locker,
		facts:     d.Facts,
		followUps: d.FollowUps,
		assigner:  d.Assigner,
		bus:       d.Bus,
		log:       d.Log,
		now:       time.Now,
	}
}

// SetClock overrides the time source.
func (r *Resolver) SetClock(now func() time.Time) {
	r.now = now
}

// Resolve finds or creates the lead for the input. When a lead was created
// but scheduling or assignment failed, the lead is returned together with
// the joined collaborator errors.
func (r *Resolver) Resolve(ctx context.Context, in Input) (Result, error) {
	agency, err := r.agencies.EnsureAgency(ctx, in.Actor)
	if err != nil {
		return Result{}, fmt.Errorf("ensure agency: %w", err)
	}

	key := phone.Normalize(in.RawPhone)
	if key == "" {
		return r.create(ctx, agency.ID, in, nil)
	}

	unlock, err := r.locker.Lock(ctx, lock.ResolveKey(agency.ID, key))
	if err != nil {
		return Result{}, fmt.Errorf("lock resolution: %w", err)
	}
	defer unlock()

	existing, err := r.store.FindLatestByPhone(ctx, agency.ID, key)
	switch {
	case err == nil:
		return r.merge(ctx, existing, in)
	case errors.Is(err, leadrepo.ErrNotFound):
		return r.create(ctx, agency.ID, in, &key)
	default:
		return Result{}, fmt.Errorf("find lead by phone: %w", err)
	}
}

func (r *Resolver) merge(ctx context.Context, lead domain.Lead, in Input) (Result, error) {
	res := Result{Lead: lead}

	if msg := r.inboundMessage(lead.ID, in.Text); msg != nil {
		if err := r.store.AppendMessage(ctx, *msg); err != nil {
			return Result{}, fmt.Errorf("append message: %w", err)
		}
		res.Message = msg
		res.Lead.LastMessage = &msg.Body
	}

	name, email := missing(lead.Name, in.Name), missing(lead.Email, in.Email)
	if name != nil || email != nil {
		if err := r.store.FillContact(ctx, lead.ID, name, email); err != nil {
			return Result{}, fmt.Errorf("fill contact: %w", err)
		}
		if name != nil {
			res.Lead.Name = name
		}
		if email != nil {
			res.Lead.Email = email
		}
	}
	return res, nil
}

func (r *Resolver) create(ctx context.Context, agencyID uuid.UUID, in Input, key *string) (Result, error) {
	source := in.Source
	if source == "" {
		source = domain.SourceManual
	}

	lead := domain.NewLead(agencyID, in.Actor.ID, key, source, r.now())
	lead.Name = clean(in.Name)
	lead.Email = clean(in.Email)

	msg := r.inboundMessage(lead.ID, in.Text)
	if msg != nil {
		lead.LastMessage = &msg.Body
	}
	if err := r.store.Create(ctx, lead, msg); err != nil {
		return Result{}, fmt.Errorf("create lead: %w", err)
	}

	actorID := in.Actor.ID
	r.facts.Record(ctx, createdFact(lead, &actorID, in))
	if r.bus != nil {
		r.bus.Publish(ctx, events.LeadCreated{
			BaseEvent: events.NewBaseEventAt(lead.CreatedAt),
			LeadID:    lead.ID,
			AgencyID:  agencyID,
			UserID:    in.Actor.ID,
			Source:    source,
		})
	}

	var errs []error
	if r.followUps != nil {
		if _, err := r.followUps.ScheduleForLead(ctx, in.Actor.ID, lead); err != nil {
			errs = append(errs, fmt.Errorf("schedule follow-ups: %w", err))
		}
	}
	if r.assigner != nil {
		agentID, err := r.assigner.AutoAssign(ctx, lead, in.Actor)
		if err != nil {
			errs = append(errs, fmt.Errorf("auto assign: %w", err))
		} else if agentID != nil {
			lead.AssignedTo = agentID
		}
	}

	return Result{Lead: lead, Created: true, Message: msg}, errors.Join(errs...)
}

func (r *Resolver) inboundMessage(leadID uuid.UUID, text string) *domain.Message {
	body := strings.TrimSpace(text)
	if body == "" {
		return nil
	}
	return &domain.Message{
		ID:        uuid.New(),
		LeadID:    leadID,
		Origin:    domain.OriginLead,
		Body:      body,
		CreatedAt: r.now(),
	}
}

func createdFact(lead domain.Lead, userID *uuid.UUID, in Input) eventrepo.Fact {
	source := in.FactSource
	if source == "" {
		source = eventrepo.SourceSystem
	}
	return eventrepo.Fact{
		AgencyID: lead.AgencyID,
		UserID:   userID,
		LeadID:   &lead.ID,
		Type:     eventrepo.TypeLeadCreated,
		Source:   source,
		Payload: eventrepo.Payload{
			ToStage:        string(lead.Stage),
			MessageSnippet: in.Text,
			Extra:          map[string]any{"source": lead.Source},
		},
	}
}

// missing returns the trimmed candidate when current is empty.
func missing(current, candidate *string) *string {
	if current != nil && strings.TrimSpace(*current) != "" {
		return nil
	}
	return clean(candidate)
}

func clean(v *string) *string {
	if v == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*v)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
