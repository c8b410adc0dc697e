// Package pipeline applies stage rules to stored leads: classifier
// verdicts, manual board moves and outbound replies. Every write goes
// through the lead lock and the version check of the lead row.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	eventrepo "leadflow_backend/internal/eventlog/repository"
	"leadflow_backend/internal/events"
	"leadflow_backend/internal/leads/domain"
	"leadflow_backend/internal/leads/lock"
	"leadflow_backend/internal/leads/ports"
	leadrepo "leadflow_backend/internal/leads/repository"
	"leadflow_backend/internal/metrics"
	"leadflow_backend/platform/apperr"

	"github.com/google/uuid"
)

// maxAttempts bounds retries after a version conflict.
const maxAttempts = 3

// Store is the lead storage the pipeline needs.
type Store interface {
	GetByID(ctx context.Context, id uuid.UUID) (domain.Lead, error)
	SavePipeline(ctx context.Context, lead domain.Lead) (int, error)
}

// Actor identifies who caused a change, for the audit trail.
type Actor struct {
	UserID *uuid.UUID
	Source string
}

type Service struct {
	store   Store
	locker  lock.Locker
	facts   ports.FactRecorder
	bus     events.Bus
	metrics *metrics.Metrics
	now     func() time.Time
}

func New(store Store, locker lock.Locker, facts ports.FactRecorder, bus events.Bus, m *metrics.Metrics) *Service {
	return &Service{store: store, locker: locker, facts: facts, bus: bus, metrics: m, now: time.Now}
}

// SetClock overrides the time source.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// mutation changes lead in place and reports whether anything changed and
// which stage transition happened.
type mutation func(lead *domain.Lead) (changed bool, change *domain.StageChange, err error)

// update loads, mutates and saves a lead under its lock, retrying when a
// concurrent writer bumped the version in between.
func (s *Service) update(ctx context.Context, leadID uuid.UUID, fn mutation) (domain.Lead, *domain.StageChange, bool, error) {
	unlock, err := s.locker.Lock(ctx, lock.LeadKey(leadID))
	if err != nil {
		return domain.Lead{}, nil, false, fmt.Errorf("lock lead: %w", err)
	}
	defer unlock()

	for attempt := 1; ; attempt++ {
		lead, err := s.store.GetByID(ctx, leadID)
		if errors.Is(err, leadrepo.ErrNotFound) {
			return domain.Lead{}, nil, false, apperr.NotFound("lead not found")
		}
		if err != nil {
			return domain.Lead{}, nil, false, err
		}

		changed, change, err := fn(&lead)
		if err != nil || !changed {
			return lead, nil, false, err
		}

		version, err := s.store.SavePipeline(ctx, lead)
		if errors.Is(err, leadrepo.ErrVersionConflict) && attempt < maxAttempts {
			continue
		}
		if errors.Is(err, leadrepo.ErrVersionConflict) {
			return domain.Lead{}, nil, false, apperr.Conflict("lead was modified concurrently")
		}
		if err != nil {
			return domain.Lead{}, nil, false, fmt.Errorf("save lead: %w", err)
		}
		lead.Version = version
		return lead, change, true, nil
	}
}

// ApplyVerdict merges a classifier verdict into the lead and applies the
// classification stage rules.
func (s *Service) ApplyVerdict(ctx context.Context, leadID uuid.UUID, v domain.Verdict, actor Actor) (domain.Lead, domain.VerdictOutcome, error) {
	var outcome domain.VerdictOutcome
	lead, change, changed, err := s.update(ctx, leadID, func(l *domain.Lead) (bool, *domain.StageChange, error) {
		outcome = domain.ApplyVerdict(l, v)
		return outcome.Changed(), outcome.StageChange, nil
	})
	if err != nil || !changed {
		return lead, domain.VerdictOutcome{}, err
	}

	if len(outcome.UpdatedFields) > 0 {
		s.record(ctx, lead, eventrepo.TypeLeadUpdated, actor, eventrepo.Payload{
			Extra: map[string]any{"fields": outcome.UpdatedFields},
		})
	}
	s.stageChanged(ctx, lead, change, actor)
	if outcome.MarkedLost {
		notes := ""
		if lead.FakeReason != nil {
			notes = *lead.FakeReason
		}
		s.record(ctx, lead, eventrepo.TypeLeadLost, actor, eventrepo.Payload{Notes: notes})
	}
	return lead, outcome, nil
}

// Move drags a lead to a stage on the board.
func (s *Service) Move(ctx context.Context, leadID uuid.UUID, to domain.Stage, actor Actor) (domain.Lead, error) {
	lead, change, _, err := s.update(ctx, leadID, func(l *domain.Lead) (bool, *domain.StageChange, error) {
		change, err := domain.ApplyManualMove(l, to, s.now())
		if errors.Is(err, domain.ErrTransitionNotAllowed) {
			return false, nil, apperr.Validation(fmt.Sprintf("cannot move lead from %s to %s", l.Stage, to))
		}
		return change != nil, change, err
	})
	if err != nil {
		return domain.Lead{}, err
	}
	s.stageChanged(ctx, lead, change, actor)
	s.terminalFacts(ctx, lead, change, actor)
	return lead, nil
}

// Convert closes the lead as won from any stage, lost included.
func (s *Service) Convert(ctx context.Context, leadID uuid.UUID, actor Actor) (domain.Lead, error) {
	lead, change, _, err := s.update(ctx, leadID, func(l *domain.Lead) (bool, *domain.StageChange, error) {
		wasConverted := l.IsConverted && l.ConvertedAt != nil
		change := domain.Convert(l, s.now())
		return change != nil || !wasConverted, change, nil
	})
	if err != nil {
		return domain.Lead{}, err
	}
	s.stageChanged(ctx, lead, change, actor)
	s.terminalFacts(ctx, lead, change, actor)
	return lead, nil
}

// MarkLost ends the lead as lost, also from closed.
func (s *Service) MarkLost(ctx context.Context, leadID uuid.UUID, actor Actor) (domain.Lead, error) {
	lead, change, _, err := s.update(ctx, leadID, func(l *domain.Lead) (bool, *domain.StageChange, error) {
		wasConverted := l.IsConverted
		change := domain.MarkLost(l)
		return change != nil || wasConverted, change, nil
	})
	if err != nil {
		return domain.Lead{}, err
	}
	s.stageChanged(ctx, lead, change, actor)
	s.terminalFacts(ctx, lead, change, actor)
	return lead, nil
}

// RecordOutboundReply applies the first-contact rule after a successful
// outbound message.
func (s *Service) RecordOutboundReply(ctx context.Context, leadID uuid.UUID, actor Actor) (domain.Lead, error) {
	lead, change, _, err := s.update(ctx, leadID, func(l *domain.Lead) (bool, *domain.StageChange, error) {
		change := domain.RecordOutboundReply(l)
		return change != nil, change, nil
	})
	if err != nil {
		return domain.Lead{}, err
	}
	s.stageChanged(ctx, lead, change, actor)
	return lead, nil
}

func (s *Service) stageChanged(ctx context.Context, lead domain.Lead, change *domain.StageChange, actor Actor) {
	if change == nil {
		return
	}
	s.metrics.StageTransition(string(change.To), string(change.Cause))
	s.record(ctx, lead, eventrepo.TypeStageChanged, actor, eventrepo.Payload{
		FromStage: string(change.From),
		ToStage:   string(change.To),
		Extra:     map[string]any{"cause": string(change.Cause)},
	})
	if s.bus != nil {
		s.bus.Publish(ctx, events.LeadStageChanged{
			BaseEvent: events.NewBaseEventAt(s.now()),
			LeadID:    lead.ID,
			AgencyID:  lead.AgencyID,
			FromStage: string(change.From),
			ToStage:   string(change.To),
			Cause:     string(change.Cause),
		})
	}
}

func (s *Service) terminalFacts(ctx context.Context, lead domain.Lead, change *domain.StageChange, actor Actor) {
	switch {
	case change != nil && change.To == domain.StageClosed:
		s.record(ctx, lead, eventrepo.TypeLeadConverted, actor, eventrepo.Payload{})
	case change != nil && change.To == domain.StageLost:
		s.record(ctx, lead, eventrepo.TypeLeadLost, actor, eventrepo.Payload{})
	}
}

func (s *Service) record(ctx context.Context, lead domain.Lead, t eventrepo.Type, actor Actor, payload eventrepo.Payload) {
	s.facts.Record(ctx, eventrepo.Fact{
		AgencyID: lead.AgencyID,
		UserID:   actor.UserID,
		LeadID:   &lead.ID,
		Type:     t,
		Source:   actor.Source,
		Payload:  payload,
	})
}
