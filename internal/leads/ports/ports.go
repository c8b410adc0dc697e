// Package ports defines consumer-driven interfaces for the collaborators of
// the lead engine. They are declared here, by what the leads domain needs,
// and implemented by identity, eventlog, followup, classifier and whatsapp.
package ports

import (
	"context"
	"io"

	eventrepo "leadflow_backend/internal/eventlog/repository"
	identityrepo "leadflow_backend/internal/identity/repository"
	"leadflow_backend/internal/leads/domain"
	"leadflow_backend/internal/whatsapp"

	"github.com/google/uuid"
)

// AgencyProvider lazily creates the acting user's agency.
type AgencyProvider interface {
	EnsureAgency(ctx context.Context, user identityrepo.User) (identityrepo.Agency, error)
}

// FactRecorder appends audit facts. It never fails the caller.
type FactRecorder interface {
	Record(ctx context.Context, fact eventrepo.Fact) *eventrepo.Fact
}

// FollowUpScheduler creates the follow-up jobs of a new lead and returns
// how many were created.
type FollowUpScheduler interface {
	ScheduleForLead(ctx context.Context, userID uuid.UUID, lead domain.Lead) (int, error)
}

// LeadAssigner picks an agent for a new lead. A nil id means nobody was
// eligible.
type LeadAssigner interface {
	AutoAssign(ctx context.Context, lead domain.Lead, actor identityrepo.User) (*uuid.UUID, error)
}

// Classifier turns a message into a verdict. A nil verdict means the model
// had nothing to say.
type Classifier interface {
	Analyze(ctx context.Context, text string) (*domain.Verdict, error)
}

// Responder drafts an automatic reply to a lead.
type Responder interface {
	Reply(ctx context.Context, lead domain.Lead, history []domain.Message) (string, error)
}

// Coach suggests the agent's next step on a lead.
type Coach interface {
	Advise(ctx context.Context, lead domain.Lead) (domain.Advice, error)
}

// Audio is an encoded voice note ready for upload.
type Audio struct {
	Data     []byte
	MIMEType string
	Filename string
}

// Speaker renders text as a voice note.
type Speaker interface {
	Speak(ctx context.Context, text string) (Audio, error)
}

// Messenger sends messages over the WhatsApp channel.
type Messenger interface {
	SendText(ctx context.Context, creds whatsapp.Credentials, to, body string) whatsapp.Result
	SendAudio(ctx context.Context, creds whatsapp.Credentials, to, mediaID string) whatsapp.Result
	UploadAudio(ctx context.Context, creds whatsapp.Credentials, r io.Reader, filename, mimeType string) (string, error)
}

// CredentialsProvider unseals a user's channel credentials.
type CredentialsProvider interface {
	WhatsAppCredentials(user identityrepo.User) (whatsapp.Credentials, bool)
}
