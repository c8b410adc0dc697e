// Package service implements the agent-facing lead actions: reading leads
// and conversations, replying, and moving leads through the pipeline.
// Every action is scoped to the acting user's agency.
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	eventrepo "leadflow_backend/internal/eventlog/repository"
	identityrepo "leadflow_backend/internal/identity/repository"
	"leadflow_backend/internal/leads/domain"
	"leadflow_backend/internal/leads/pipeline"
	"leadflow_backend/internal/leads/ports"
	leadrepo "leadflow_backend/internal/leads/repository"
	"leadflow_backend/internal/metrics"
	"leadflow_backend/internal/whatsapp"
	"leadflow_backend/platform/apperr"
	"leadflow_backend/platform/logger"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// boardColumnLimit caps the leads shown per pipeline column.
const boardColumnLimit = 200

const voiceNoteBody = "[voice note]"

// Store is the lead storage behind agent actions.
type Store interface {
	GetByID(ctx context.Context, id uuid.UUID) (domain.Lead, error)
	List(ctx context.Context, params leadrepo.ListParams) ([]domain.Lead, int, error)
	AppendMessage(ctx context.Context, msg domain.Message) error
	ListMessages(ctx context.Context, leadID uuid.UUID) ([]domain.Message, error)
}

// Pipeline performs stage changes.
type Pipeline interface {
	Move(ctx context.Context, leadID uuid.UUID, to domain.Stage, actor pipeline.Actor) (domain.Lead, error)
	Convert(ctx context.Context, leadID uuid.UUID, actor pipeline.Actor) (domain.Lead, error)
	MarkLost(ctx context.Context, leadID uuid.UUID, actor pipeline.Actor) (domain.Lead, error)
	RecordOutboundReply(ctx context.Context, leadID uuid.UUID, actor pipeline.Actor) (domain.Lead, error)
}

// Assigner hands a lead to a specific agent.
type Assigner interface {
	AssignTo(ctx context.Context, lead domain.Lead, agentID uuid.UUID) error
}

type Deps struct {
	Store       Store
	Pipeline    Pipeline
	Assigner    Assigner
	Agencies    ports.AgencyProvider
	Facts       ports.FactRecorder
	Messenger   ports.Messenger
	Credentials ports.CredentialsProvider
	// Coach may be nil when no model is configured.
	Coach   ports.Coach
	Metrics *metrics.Metrics
	Log     *logger.Logger
}

type Service struct {
	store       Store
	pipeline    Pipeline
	assigner    Assigner
	agencies    ports.AgencyProvider
	facts       ports.FactRecorder
	messenger   ports.Messenger
	credentials ports.CredentialsProvider
	coach       ports.Coach
	metrics     *metrics.Metrics
	log         *logger.Logger
	now         func() time.Time
}

func New(d Deps) *Service {
	return &Service{
		store:       d.Store,
		pipeline:    d.Pipeline,
		assigner:    d.Assigner,
		agencies:    d.Agencies,
		facts:       d.Facts,
		messenger:   d.Messenger,
		credentials: d.Credentials,
		coach:       d.Coach,
		metrics:     d.Metrics,
		log:         d.Log,
		now:         time.Now,
	}
}

func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// ListFilter narrows a lead listing.
type ListFilter struct {
	AssignedOnly bool
	Stage        *domain.Stage
	Limit        int
	Offset       int
}

// List returns the agency's leads, newest first.
func (s *Service) List(ctx context.Context, actor identityrepo.User, f ListFilter) ([]domain.Lead, int, error) {
	agencyID, err := s.agencyOf(ctx, actor)
	if err != nil {
		return nil, 0, err
	}
	params := leadrepo.ListParams{AgencyID: agencyID, Stage: f.Stage, Limit: f.Limit, Offset: f.Offset}
	if f.AssignedOnly {
		params.AssignedTo = &actor.ID
	}
	return s.store.List(ctx, params)
}

// Get loads a lead of the actor's agency.
func (s *Service) Get(ctx context.Context, actor identityrepo.User, id uuid.UUID) (domain.Lead, error) {
	agencyID, err := s.agencyOf(ctx, actor)
	if err != nil {
		return domain.Lead{}, err
	}
	lead, err := s.store.GetByID(ctx, id)
	if errors.Is(err, leadrepo.ErrNotFound) || (err == nil && lead.AgencyID != agencyID) {
		return domain.Lead{}, apperr.NotFound("lead not found")
	}
	if err != nil {
		return domain.Lead{}, fmt.Errorf("get lead: %w", err)
	}
	return lead, nil
}

// Conversation returns the lead with its messages, oldest first.
func (s *Service) Conversation(ctx context.Context, actor identityrepo.User, id uuid.UUID) (domain.Lead, []domain.Message, error) {
	lead, err := s.Get(ctx, actor, id)
	if err != nil {
		return domain.Lead{}, nil, err
	}
	msgs, err := s.store.ListMessages(ctx, id)
	if err != nil {
		return domain.Lead{}, nil, fmt.Errorf("list messages: %w", err)
	}
	return lead, msgs, nil
}

// Coach returns next-step advice for a lead of the actor's agency. A nil
// advice means coaching is not available right now.
func (s *Service) Coach(ctx context.Context, actor identityrepo.User, id uuid.UUID) (*domain.Advice, error) {
	lead, err := s.Get(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if s.coach == nil {
		return nil, nil
	}
	advice, err := s.coach.Advise(ctx, lead)
	if err != nil {
		s.log.CollaboratorFailure("coach", "advise", err)
		return nil, nil
	}
	return &advice, nil
}

// Reply sends an agent's text message to the lead over WhatsApp. A failed
// send stores nothing and leaves the stage untouched.
func (s *Service) Reply(ctx context.Context, actor identityrepo.User, id uuid.UUID, text string) (domain.Lead, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return domain.Lead{}, apperr.Validation("message is empty")
	}
	lead, creds, err := s.prepareSend(ctx, actor, id)
	if err != nil {
		return domain.Lead{}, err
	}

	result := s.messenger.SendText(ctx, creds, *lead.Phone, text)
	s.metrics.OutboundMessage("agent", result.OK)
	if !result.OK {
		return domain.Lead{}, apperr.Unavailable("whatsapp send failed").WithDetails(result.Error)
	}
	return s.afterSend(ctx, actor, lead, text, "")
}

// SendVoice uploads an audio note and sends it to the lead.
func (s *Service) SendVoice(ctx context.Context, actor identityrepo.User, id uuid.UUID, audio io.Reader, filename, mimeType string) (domain.Lead, error) {
	lead, creds, err := s.prepareSend(ctx, actor, id)
	if err != nil {
		return domain.Lead{}, err
	}

	mediaID, err := s.messenger.UploadAudio(ctx, creds, audio, filename, mimeType)
	if err != nil {
		s.metrics.OutboundMessage("voice", false)
		return domain.Lead{}, apperr.Unavailable("audio upload failed").WithDetails(err.Error())
	}
	result := s.messenger.SendAudio(ctx, creds, *lead.Phone, mediaID)
	s.metrics.OutboundMessage("voice", result.OK)
	if !result.OK {
		return domain.Lead{}, apperr.Unavailable("whatsapp send failed").WithDetails(result.Error)
	}
	return s.afterSend(ctx, actor, lead, voiceNoteBody, "voice")
}

func (s *Service) prepareSend(ctx context.Context, actor identityrepo.User, id uuid.UUID) (domain.Lead, whatsapp.Credentials, error) {
	lead, err := s.Get(ctx, actor, id)
	if err != nil {
		return domain.Lead{}, whatsapp.Credentials{}, err
	}
	if !lead.HasPhone() {
		return domain.Lead{}, whatsapp.Credentials{}, apperr.Validation("lead has no phone number")
	}
	creds, ok := s.credentials.WhatsAppCredentials(actor)
	if !ok {
		return domain.Lead{}, whatsapp.Credentials{}, apperr.BadRequest("whatsapp is not connected")
	}
	return lead, creds, nil
}

func (s *Service) afterSend(ctx context.Context, actor identityrepo.User, lead domain.Lead, body, notes string) (domain.Lead, error) {
	msg := domain.Message{
		ID:        uuid.New(),
		LeadID:    lead.ID,
		Origin:    domain.OriginAgent,
		Body:      body,
		CreatedAt: s.now(),
	}
	if err := s.store.AppendMessage(ctx, msg); err != nil {
		s.log.DatabaseError("append_agent_message", err)
	}

	s.facts.Record(ctx, eventrepo.Fact{
		AgencyID: lead.AgencyID,
		UserID:   &actor.ID,
		LeadID:   &lead.ID,
		Type:     eventrepo.TypeWhatsAppOutAgent,
		Source:   eventrepo.SourceAgent,
		Payload: eventrepo.Payload{
			Channel:        "whatsapp",
			Direction:      eventrepo.DirectionOutbound,
			MessageSnippet: body,
			Notes:          notes,
		},
	})
	return s.pipeline.RecordOutboundReply(ctx, lead.ID, s.actor(actor))
}

// Convert marks the lead as won.
func (s *Service) Convert(ctx context.Context, actor identityrepo.User, id uuid.UUID) (domain.Lead, error) {
	if _, err := s.Get(ctx, actor, id); err != nil {
		return domain.Lead{}, err
	}
	return s.pipeline.Convert(ctx, id, s.actor(actor))
}

// MarkLost marks the lead as lost.
func (s *Service) MarkLost(ctx context.Context, actor identityrepo.User, id uuid.UUID) (domain.Lead, error) {
	if _, err := s.Get(ctx, actor, id); err != nil {
		return domain.Lead{}, err
	}
	return s.pipeline.MarkLost(ctx, id, s.actor(actor))
}

// Move places the lead in a pipeline column.
func (s *Service) Move(ctx context.Context, actor identityrepo.User, id uuid.UUID, to domain.Stage) (domain.Lead, error) {
	if _, err := s.Get(ctx, actor, id); err != nil {
		return domain.Lead{}, err
	}
	return s.pipeline.Move(ctx, id, to, s.actor(actor))
}

// AssignSelf assigns the lead to the acting user.
func (s *Service) AssignSelf(ctx context.Context, actor identityrepo.User, id uuid.UUID) (domain.Lead, error) {
	lead, err := s.Get(ctx, actor, id)
	if err != nil {
		return domain.Lead{}, err
	}
	if actor.Role != identityrepo.RoleOwner && actor.Role != identityrepo.RoleAgent {
		return domain.Lead{}, apperr.Forbidden("only owners and agents can take leads")
	}
	if err := s.assigner.AssignTo(ctx, lead, actor.ID); err != nil {
		return domain.Lead{}, fmt.Errorf("assign lead: %w", err)
	}
	lead.AssignedTo = &actor.ID
	return lead, nil
}

// Column is one stage of the pipeline board.
type Column struct {
	Stage domain.Stage
	Leads []domain.Lead
	Total int
}

// Board returns the agency's leads grouped by stage in pipeline order.
func (s *Service) Board(ctx context.Context, actor identityrepo.User) ([]Column, error) {
	agencyID, err := s.agencyOf(ctx, actor)
	if err != nil {
		return nil, err
	}

	columns := make([]Column, len(domain.PipelineStages))
	g, gctx := errgroup.WithContext(ctx)
	for i, stage := range domain.PipelineStages {
		g.Go(func() error {
			leads, total, err := s.store.List(gctx, leadrepo.ListParams{AgencyID: agencyID, Stage: &stage, Limit: boardColumnLimit})
			if err != nil {
				return fmt.Errorf("list %s leads: %w", stage, err)
			}
			columns[i] = Column{Stage: stage, Leads: leads, Total: total}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return columns, nil
}

func (s *Service) agencyOf(ctx context.Context, actor identityrepo.User) (uuid.UUID, error) {
	agency, err := s.agencies.EnsureAgency(ctx, actor)
	if err != nil {
		return uuid.Nil, err
	}
	return agency.ID, nil
}

func (s *Service) actor(u identityrepo.User) pipeline.Actor {
	id := u.ID
	return pipeline.Actor{UserID: &id, Source: eventrepo.SourceAgent}
}
