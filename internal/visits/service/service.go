// Package service books site visits for leads and tracks their status.
// Visits are scoped to the acting user's agency through the lead they
// belong to.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	eventrepo "leadflow_backend/internal/eventlog/repository"
	identityrepo "leadflow_backend/internal/identity/repository"
	"leadflow_backend/internal/leads/domain"
	"leadflow_backend/internal/leads/ports"
	leadrepo "leadflow_backend/internal/leads/repository"
	"leadflow_backend/internal/visits/repository"
	"leadflow_backend/platform/apperr"

	"github.com/google/uuid"
)

// DefaultSource is recorded when a booking names no source.
const DefaultSource = "whatsapp"

const maxNotesRunes = 1000

// Repository is the visit storage.
type Repository interface {
	Create(ctx context.Context, v repository.Visit) error
	GetByID(ctx context.Context, id uuid.UUID) (repository.Visit, error)
	ListByLead(ctx context.Context, leadID uuid.UUID) ([]repository.Visit, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status repository.Status, at time.Time) error
}

// Leads reads the lead a visit is booked for.
type Leads interface {
	GetByID(ctx context.Context, id uuid.UUID) (domain.Lead, error)
}

type Deps struct {
	Repo     Repository
	Leads    Leads
	Agencies ports.AgencyProvider
	Facts    ports.FactRecorder
}

type Service struct {
	repo     Repository
	leads    Leads
	agencies ports.AgencyProvider
	facts    ports.FactRecorder
	now      func() time.Time
}

func New(d Deps) *Service {
	return &Service{repo: d.Repo, leads: d.Leads, agencies: d.Agencies, facts: d.Facts, now: time.Now}
}

func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// BookInput is a visit request.
type BookInput struct {
	Date           time.Time
	TimeSlot       string
	FamilyComing   bool
	PickupRequired bool
	Notes          string
	Source         string
}

// Book schedules a pending visit for the lead, assigned to the lead's
// current agent.
func (s *Service) Book(ctx context.Context, actor identityrepo.User, leadID uuid.UUID, in BookInput) (repository.Visit, error) {
	slot, ok := parseSlot(in.TimeSlot)
	if !ok {
		return repository.Visit{}, apperr.Validation("timeSlot must be morning, afternoon or evening")
	}
	if in.Date.IsZero() {
		return repository.Visit{}, apperr.Validation("date is required")
	}
	notes := strings.TrimSpace(in.Notes)
	if len([]rune(notes)) > maxNotesRunes {
		return repository.Visit{}, apperr.Validation("notes too long")
	}
	source := strings.ToLower(strings.TrimSpace(in.Source))
	if source == "" {
		source = DefaultSource
	}

	lead, err := s.lead(ctx, actor, leadID)
	if err != nil {
		return repository.Visit{}, err
	}

	now := s.now().UTC()
	y, m, d := in.Date.Date()
	v := repository.Visit{
		ID:              uuid.New(),
		LeadID:          lead.ID,
		AgencyID:        lead.AgencyID,
		AssignedAgentID: lead.AssignedTo,
		BookedBy:        actor.ID,
		Date:            time.Date(y, m, d, 0, 0, 0, 0, time.UTC),
		TimeSlot:        slot,
		Status:          repository.StatusPending,
		FamilyComing:    in.FamilyComing,
		PickupRequired:  in.PickupRequired,
		Notes:           notes,
		Source:          source,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.repo.Create(ctx, v); err != nil {
		return repository.Visit{}, fmt.Errorf("book visit: %w", err)
	}

	s.record(ctx, actor, v, eventrepo.TypeVisitBooked, map[string]any{
		"visitId":  v.ID.String(),
		"date":     v.Date.Format(time.DateOnly),
		"timeSlot": string(v.TimeSlot),
	})
	return v, nil
}

// ListByLead returns the lead's visits, latest date first.
func (s *Service) ListByLead(ctx context.Context, actor identityrepo.User, leadID uuid.UUID) ([]repository.Visit, error) {
	lead, err := s.lead(ctx, actor, leadID)
	if err != nil {
		return nil, err
	}
	return s.repo.ListByLead(ctx, lead.ID)
}

// UpdateStatus moves a visit forward. Completed and cancelled visits are
// final.
func (s *Service) UpdateStatus(ctx context.Context, actor identityrepo.User, visitID uuid.UUID, status string) (repository.Visit, error) {
	to, ok := parseStatus(status)
	if !ok {
		return repository.Visit{}, apperr.Validation("unknown visit status")
	}

	v, err := s.repo.GetByID(ctx, visitID)
	if errors.Is(err, repository.ErrNotFound) {
		return repository.Visit{}, apperr.NotFound("visit not found")
	}
	if err != nil {
		return repository.Visit{}, fmt.Errorf("get visit: %w", err)
	}
	agencyID, err := s.agencyOf(ctx, actor)
	if err != nil {
		return repository.Visit{}, err
	}
	if v.AgencyID != agencyID {
		return repository.Visit{}, apperr.NotFound("visit not found")
	}
	if v.Status == to {
		return v, nil
	}
	if v.Status.IsFinal() || to == repository.StatusPending {
		return repository.Visit{}, apperr.Conflict(fmt.Sprintf("visit cannot move from %s to %s", v.Status, to))
	}

	at := s.now().UTC()
	if err := s.repo.UpdateStatus(ctx, v.ID, to, at); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return repository.Visit{}, apperr.Conflict("visit was closed concurrently")
		}
		return repository.Visit{}, fmt.Errorf("update visit: %w", err)
	}
	from := v.Status
	v.Status = to
	v.UpdatedAt = at

	s.record(ctx, actor, v, eventrepo.TypeVisitUpdated, map[string]any{
		"visitId": v.ID.String(),
		"from":    string(from),
		"to":      string(to),
	})
	return v, nil
}

func (s *Service) lead(ctx context.Context, actor identityrepo.User, leadID uuid.UUID) (domain.Lead, error) {
	agencyID, err := s.agencyOf(ctx, actor)
	if err != nil {
		return domain.Lead{}, err
	}
	lead, err := s.leads.GetByID(ctx, leadID)
	if errors.Is(err, leadrepo.ErrNotFound) || (err == nil && lead.AgencyID != agencyID) {
		return domain.Lead{}, apperr.NotFound("lead not found")
	}
	if err != nil {
		return domain.Lead{}, fmt.Errorf("get lead: %w", err)
	}
	return lead, nil
}

func (s *Service) agencyOf(ctx context.Context, actor identityrepo.User) (uuid.UUID, error) {
	agency, err := s.agencies.EnsureAgency(ctx, actor)
	if err != nil {
		return uuid.Nil, err
	}
	return agency.ID, nil
}

func (s *Service) record(ctx context.Context, actor identityrepo.User, v repository.Visit, t eventrepo.Type, extra map[string]any) {
	userID := actor.ID
	leadID := v.LeadID
	s.facts.Record(ctx, eventrepo.Fact{
		AgencyID: v.AgencyID,
		UserID:   &userID,
		LeadID:   &leadID,
		Type:     t,
		Source:   eventrepo.SourceAgent,
		Payload:  eventrepo.Payload{Notes: v.Notes, Extra: extra},
	})
}

func parseSlot(s string) (repository.TimeSlot, bool) {
	switch slot := repository.TimeSlot(strings.ToLower(strings.TrimSpace(s))); slot {
	case repository.SlotMorning, repository.SlotAfternoon, repository.SlotEvening:
		return slot, true
	}
	return "", false
}

func parseStatus(s string) (repository.Status, bool) {
	switch st := repository.Status(strings.ToLower(strings.TrimSpace(s))); st {
	case repository.StatusPending, repository.StatusConfirmed, repository.StatusCompleted, repository.StatusCancelled:
		return st, true
	}
	return "", false
}
