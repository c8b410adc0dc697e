// Package intake orchestrates what happens when a lead reaches out: the
// message is resolved to a lead, classified, and optionally answered.
package intake

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	eventrepo "leadflow_backend/internal/eventlog/repository"
	"leadflow_backend/internal/events"
	identityrepo "leadflow_backend/internal/identity/repository"
	"leadflow_backend/internal/leads/domain"
	"leadflow_backend/internal/leads/pipeline"
	"leadflow_backend/internal/leads/ports"
	"leadflow_backend/internal/leads/resolver"
	"leadflow_backend/internal/metrics"
	"leadflow_backend/internal/whatsapp"
	"leadflow_backend/platform/logger"

	"github.com/google/uuid"
)

const channelWhatsApp = "whatsapp"

// Resolver maps an inbound contact to its lead.
type Resolver interface {
	Resolve(ctx context.Context, in resolver.Input) (resolver.Result, error)
}

// Pipeline applies stage rules to stored leads.
type Pipeline interface {
	ApplyVerdict(ctx context.Context, leadID uuid.UUID, v domain.Verdict, actor pipeline.Actor) (domain.Lead, domain.VerdictOutcome, error)
	RecordOutboundReply(ctx context.Context, leadID uuid.UUID, actor pipeline.Actor) (domain.Lead, error)
}

// Conversation appends to and reads a lead's messages.
type Conversation interface {
	AppendMessage(ctx context.Context, msg domain.Message) error
	ListMessages(ctx context.Context, leadID uuid.UUID) ([]domain.Message, error)
}

type Deps struct {
	Resolver     Resolver
	Pipeline     Pipeline
	Conversation Conversation
	Facts        ports.FactRecorder
	Classifier   ports.Classifier
	Responder    ports.Responder
	// Speaker, when set, follows AI replies to hot leads with a voice note.
	Speaker     ports.Speaker
	Messenger   ports.Messenger
	Credentials ports.CredentialsProvider
	// AutoReply enables AI replies to inbound WhatsApp messages.
	AutoReply bool
	Bus       events.Bus
	Metrics   *metrics.Metrics
	Log       *logger.Logger
}

type Service struct {
	resolver     Resolver
	pipeline     Pipeline
	conversation Conversation
	facts        ports.FactRecorder
	classifier   ports.Classifier
	responder    ports.Responder
	speaker      ports.Speaker
	messenger    ports.Messenger
	credentials  ports.CredentialsProvider
	autoReply    bool
	bus          events.Bus
	metrics      *metrics.Metrics
	log          *logger.Logger
	now          func() time.Time
}

func New(d Deps) *Service {
	return &Service{
		resolver:     d.Resolver,
		pipeline:     d.Pipeline,
		conversation: d.Conversation,
		facts:        d.Facts,
		classifier:   d.Classifier,
		responder:    d.Responder,
		speaker:      d.Speaker,
		messenger:    d.Messenger,
		credentials:  d.Credentials,
		autoReply:    d.AutoReply,
		bus:          d.Bus,
		metrics:      d.Metrics,
		log:          d.Log,
		now:          time.Now,
	}
}

func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// Outcome reports what intake did with one contact.
type Outcome struct {
	Lead    domain.Lead     `json:"lead"`
	Created bool            `json:"created"`
	Verdict *domain.Verdict `json:"-"`
	Replied bool            `json:"replied"`
	// VoiceSent reports a voice note following the AI reply.
	VoiceSent bool `json:"voiceSent"`
}

// HandleInbound processes a WhatsApp text message received on owner's
// business number.
func (s *Service) HandleInbound(ctx context.Context, owner identityrepo.User, msg whatsapp.InboundMessage) (Outcome, error) {
	var name *string
	if n := strings.TrimSpace(msg.ProfileName); n != "" {
		name = &n
	}

	res, err := s.resolve(ctx, resolver.Input{
		Actor:      owner,
		RawPhone:   msg.From,
		Name:       name,
		Text:       msg.Text,
		Source:     domain.SourceWhatsApp,
		FactSource: eventrepo.SourceWebhook,
	})
	if err != nil {
		s.metrics.InboundMessage("error")
		return Outcome{}, err
	}
	if res.Created {
		s.metrics.InboundMessage("created")
	} else {
		s.metrics.InboundMessage("merged")
	}

	out := Outcome{Lead: res.Lead, Created: res.Created}
	s.recordMessage(ctx, res.Lead, &owner.ID, eventrepo.TypeWhatsAppIn, eventrepo.DirectionInbound, eventrepo.SourceWebhook, msg.Text, "")
	if s.bus != nil {
		s.bus.Publish(ctx, events.LeadMessageReceived{
			BaseEvent: events.NewBaseEventAt(s.now()),
			LeadID:    res.Lead.ID,
			AgencyID:  res.Lead.AgencyID,
			Channel:   channelWhatsApp,
		})
	}

	if err := s.classify(ctx, &out, msg.Text, eventrepo.SourceWebhook); err != nil {
		return out, err
	}

	if s.autoReply && s.responder != nil && canAutoReply(out.Lead) {
		out.Replied = s.autoRespond(ctx, owner, &out)
	}
	return out, nil
}

// ContactForm is a lead captured through the contact form.
type ContactForm struct {
	Name    string
	Email   string
	Phone   string
	Message string
}

// SubmitContact records a contact form submission for owner and sends the
// lead a WhatsApp welcome message.
func (s *Service) SubmitContact(ctx context.Context, owner identityrepo.User, form ContactForm) (Outcome, error) {
	res, err := s.resolve(ctx, resolver.Input{
		Actor:      owner,
		RawPhone:   form.Phone,
		Name:       optional(form.Name),
		Email:      optional(form.Email),
		Text:       form.Message,
		Source:     domain.SourceContactForm,
		FactSource: eventrepo.SourceWebForm,
	})
	if err != nil {
		return Outcome{}, err
	}

	out := Outcome{Lead: res.Lead, Created: res.Created}
	if err := s.classify(ctx, &out, form.Message, eventrepo.SourceWebForm); err != nil {
		return out, err
	}

	if out.Lead.HasPhone() {
		out.Replied = s.sendAutomated(ctx, owner, &out, welcomeText(form.Name, owner.Name), "welcome")
	}
	return out, nil
}

// resolve tolerates collaborator failures that happen after the lead was
// created: they are logged and the lead is returned.
func (s *Service) resolve(ctx context.Context, in resolver.Input) (resolver.Result, error) {
	res, err := s.resolver.Resolve(ctx, in)
	if err == nil {
		return res, nil
	}
	if res.Lead.ID == uuid.Nil {
		return resolver.Result{}, fmt.Errorf("resolve lead: %w", err)
	}
	s.log.CollaboratorFailure("resolver", "post_create", err)
	return res, nil
}

func (s *Service) classify(ctx context.Context, out *Outcome, text, source string) error {
	if s.classifier == nil || strings.TrimSpace(text) == "" {
		return nil
	}

	verdict, err := s.classifier.Analyze(ctx, text)
	if err != nil {
		s.metrics.Error("classifier")
		s.log.CollaboratorFailure("classifier", "analyze", err)
		return nil
	}
	if verdict == nil {
		return nil
	}
	out.Verdict = verdict

	lead, _, err := s.pipeline.ApplyVerdict(ctx, out.Lead.ID, *verdict, pipeline.Actor{Source: source})
	if err != nil {
		return fmt.Errorf("apply verdict: %w", err)
	}
	out.Lead = lead
	return nil
}

// canAutoReply excludes leads that are closed, lost or flagged fake.
func canAutoReply(lead domain.Lead) bool {
	return lead.HasPhone() && !lead.Stage.IsTerminal() && !lead.IsFake
}

func (s *Service) autoRespond(ctx context.Context, owner identityrepo.User, out *Outcome) bool {
	history, err := s.conversation.ListMessages(ctx, out.Lead.ID)
	if err != nil {
		s.log.DatabaseError("list_messages", err)
		return false
	}
	reply, err := s.responder.Reply(ctx, out.Lead, history)
	if err != nil || strings.TrimSpace(reply) == "" {
		if err != nil {
			s.log.CollaboratorFailure("responder", "reply", err)
		}
		return false
	}
	if !s.sendAutomated(ctx, owner, out, reply, "ai") {
		return false
	}
	if s.speaker != nil && wantsVoiceNote(out.Lead) {
		out.VoiceSent = s.sendVoiceNote(ctx, owner, out, reply)
	}
	return true
}

// wantsVoiceNote selects hot leads and leads the classifier marked urgent.
func wantsVoiceNote(lead domain.Lead) bool {
	if lead.QualificationLevel == domain.QualificationHot || lead.Stage == domain.StageHot {
		return true
	}
	return lead.AIUrgency != nil && strings.EqualFold(*lead.AIUrgency, "high")
}

// sendVoiceNote speaks text and sends it as a WhatsApp audio message. It is
// best effort: the text reply already went out.
func (s *Service) sendVoiceNote(ctx context.Context, owner identityrepo.User, out *Outcome, text string) bool {
	creds, ok := s.credentials.WhatsAppCredentials(owner)
	if !ok {
		return false
	}

	audio, err := s.speaker.Speak(ctx, text)
	if err != nil {
		s.metrics.OutboundMessage("voice_ai", false)
		s.log.CollaboratorFailure("speaker", "speak", err)
		return false
	}
	mediaID, err := s.messenger.UploadAudio(ctx, creds, bytes.NewReader(audio.Data), audio.Filename, audio.MIMEType)
	if err != nil {
		s.metrics.OutboundMessage("voice_ai", false)
		s.log.CollaboratorFailure("messenger", "upload_voice_ai", err)
		return false
	}
	result := s.messenger.SendAudio(ctx, creds, *out.Lead.Phone, mediaID)
	s.metrics.OutboundMessage("voice_ai", result.OK)
	if !result.OK {
		s.log.CollaboratorFailure("messenger", "send_voice_ai", fmt.Errorf("%s", result.Error))
		return false
	}

	s.recordMessage(ctx, out.Lead, &owner.ID, eventrepo.TypeWhatsAppOutAI, eventrepo.DirectionOutbound, eventrepo.SourceSystem, text, "voice")
	return true
}

// sendAutomated sends a system-authored WhatsApp message. Only a confirmed
// send is stored as a bot message and moves a new lead to contacted.
func (s *Service) sendAutomated(ctx context.Context, owner identityrepo.User, out *Outcome, text, kind string) bool {
	if s.messenger == nil || s.credentials == nil {
		return false
	}
	creds, ok := s.credentials.WhatsAppCredentials(owner)
	if !ok {
		return false
	}

	result := s.messenger.SendText(ctx, creds, *out.Lead.Phone, text)
	s.metrics.OutboundMessage(kind, result.OK)
	if !result.OK {
		s.log.CollaboratorFailure("messenger", "send_"+kind, fmt.Errorf("%s", result.Error))
		return false
	}

	msg := domain.Message{
		ID:        uuid.New(),
		LeadID:    out.Lead.ID,
		Origin:    domain.OriginBot,
		Body:      text,
		CreatedAt: s.now(),
	}
	if err := s.conversation.AppendMessage(ctx, msg); err != nil {
		s.log.DatabaseError("append_bot_message", err)
	} else {
		out.Lead.LastMessage = &msg.Body
	}

	s.recordMessage(ctx, out.Lead, &owner.ID, eventrepo.TypeWhatsAppOutAI, eventrepo.DirectionOutbound, eventrepo.SourceSystem, text, kind)

	lead, err := s.pipeline.RecordOutboundReply(ctx, out.Lead.ID, pipeline.Actor{Source: eventrepo.SourceSystem})
	if err != nil {
		s.log.DatabaseError("record_outbound_reply", err)
	} else {
		out.Lead = lead
	}
	return true
}

func (s *Service) recordMessage(ctx context.Context, lead domain.Lead, userID *uuid.UUID, t eventrepo.Type, direction, source, text, notes string) {
	leadID := lead.ID
	s.facts.Record(ctx, eventrepo.Fact{
		AgencyID: lead.AgencyID,
		UserID:   userID,
		LeadID:   &leadID,
		Type:     t,
		Source:   source,
		Payload: eventrepo.Payload{
			Channel:        channelWhatsApp,
			Direction:      direction,
			MessageSnippet: text,
			Notes:          notes,
		},
	})
}

func welcomeText(leadName, ownerName string) string {
	greeting := "Hi!"
	if n := strings.TrimSpace(leadName); n != "" {
		greeting = "Hi " + n + "!"
	}
	text := greeting + " Thanks for reaching out.\n\nWe've received your details and will get back to you shortly."
	if n := strings.TrimSpace(ownerName); n != "" {
		text += "\n\n- " + n
	}
	return text
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
