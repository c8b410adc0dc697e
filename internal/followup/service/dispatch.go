package service

import (
	"context"
	"strings"

	automation "leadflow_backend/internal/automation/repository"
	"leadflow_backend/internal/followup/repository"
	identityrepo "leadflow_backend/internal/identity/repository"
	"leadflow_backend/internal/leads/domain"
	"leadflow_backend/internal/whatsapp"
)

// Delivery is everything a dispatcher needs to send one job.
type Delivery struct {
	Job  repository.Job
	Lead domain.Lead
	User identityrepo.User
}

// Result is the tri-state outcome of a dispatch attempt. Detail explains a
// skip or failure.
type Result struct {
	Outcome repository.Outcome
	Detail  string
}

func delivered() Result { return Result{Outcome: repository.OutcomeDelivered} }

func skipped(detail string) Result {
	return Result{Outcome: repository.OutcomeSkipped, Detail: detail}
}

func failed(detail string) Result {
	return Result{Outcome: repository.OutcomeFailed, Detail: detail}
}

// Dispatcher sends a job over one channel.
type Dispatcher interface {
	Channel() automation.Channel
	Dispatch(ctx context.Context, d Delivery) Result
}

// TextSender is the messaging transport.
type TextSender interface {
	SendText(ctx context.Context, creds whatsapp.Credentials, to, body string) whatsapp.Result
}

// CredentialSource unseals a user's messaging credentials.
type CredentialSource interface {
	WhatsAppCredentials(user identityrepo.User) (whatsapp.Credentials, bool)
}

// MessagingDispatcher sends follow-ups as WhatsApp text messages from the
// job owner's business number.
type MessagingDispatcher struct {
	sender TextSender
	creds  CredentialSource
}

func NewMessagingDispatcher(sender TextSender, creds CredentialSource) *MessagingDispatcher {
	return &MessagingDispatcher{sender: sender, creds: creds}
}

func (d *MessagingDispatcher) Channel() automation.Channel { return automation.ChannelMessaging }

func (d *MessagingDispatcher) Dispatch(ctx context.Context, del Delivery) Result {
	if !del.Lead.HasPhone() {
		return skipped("lead has no phone")
	}
	creds, ok := d.creds.WhatsAppCredentials(del.User)
	if !ok {
		return skipped(whatsapp.ErrNotConnected)
	}
	res := d.sender.SendText(ctx, creds, *del.Lead.Phone, del.Job.Message)
	if !res.OK {
		return failed(res.Error)
	}
	return delivered()
}

// Mailer sends a plain text email.
type Mailer interface {
	SendText(ctx context.Context, to, subject, body string) error
}

// EmailDispatcher sends follow-ups by email. Without a mailer every email
// job is skipped.
type EmailDispatcher struct {
	mailer Mailer
}

func NewEmailDispatcher(mailer Mailer) *EmailDispatcher {
	return &EmailDispatcher{mailer: mailer}
}

func (d *EmailDispatcher) Channel() automation.Channel { return automation.ChannelEmail }

func (d *EmailDispatcher) Dispatch(ctx context.Context, del Delivery) Result {
	if d.mailer == nil {
		return skipped("email not configured")
	}
	if !del.Lead.HasEmail() {
		return skipped("lead has no email")
	}
	if err := d.mailer.SendText(ctx, *del.Lead.Email, subjectFor(del.User), del.Job.Message); err != nil {
		return failed(err.Error())
	}
	return delivered()
}

func subjectFor(user identityrepo.User) string {
	name := strings.TrimSpace(user.Name)
	if name == "" {
		return "Following up"
	}
	return "Following up from " + name
}
