package webhook

import (
	"context"
	"errors"
	"fmt"

	identityrepo "leadflow_backend/internal/identity/repository"
	"leadflow_backend/internal/leads/intake"
	"leadflow_backend/internal/metrics"
	"leadflow_backend/internal/whatsapp"
	"leadflow_backend/platform/apperr"
	"leadflow_backend/platform/logger"

	"golang.org/x/sync/singleflight"
)

// Owners maps a business phone number id to the user who connected it.
type Owners interface {
	UserByPhoneNumberID(ctx context.Context, phoneNumberID string) (identityrepo.User, error)
}

// Inbound handles one text message addressed to an owner.
type Inbound interface {
	HandleInbound(ctx context.Context, owner identityrepo.User, msg whatsapp.InboundMessage) (intake.Outcome, error)
}

// Summary counts what happened to the messages of one delivery.
type Summary struct {
	Received  int `json:"received"`
	Processed int `json:"processed"`
	Unrouted  int `json:"unrouted"`
	Duplicate int `json:"duplicate"`
	Failed    int `json:"failed"`
}

// Service routes webhook messages to the lead engine.
type Service struct {
	owners  Owners
	inbound Inbound
	metrics *metrics.Metrics
	log     *logger.Logger
	flight  singleflight.Group
}

func NewService(owners Owners, inbound Inbound, m *metrics.Metrics, log *logger.Logger) *Service {
	return &Service{owners: owners, inbound: inbound, metrics: m, log: log}
}

var errUnrouted = errors.New("no owner for phone number id")

// Process handles every text message in the payload in order. Meta
// redelivers a message when an acknowledgement is slow, so concurrent
// deliveries of the same message id share a single run. Failures are
// logged and counted; the webhook is always acknowledged.
func (s *Service) Process(ctx context.Context, payload whatsapp.WebhookPayload) Summary {
	messages := payload.InboundMessages()
	sum := Summary{Received: len(messages)}

	for _, msg := range messages {
		key := msg.PhoneNumberID + ":" + msg.ID
		ran := false
		_, err, _ := s.flight.Do(key, func() (any, error) {
			ran = true
			return nil, s.handle(ctx, msg)
		})
		switch {
		case !ran:
			sum.Duplicate++
		case errors.Is(err, errUnrouted):
			sum.Unrouted++
		case err != nil:
			sum.Failed++
		default:
			sum.Processed++
		}
	}
	return sum
}

func (s *Service) handle(ctx context.Context, msg whatsapp.InboundMessage) error {
	owner, err := s.owners.UserByPhoneNumberID(ctx, msg.PhoneNumberID)
	if apperr.Is(err, apperr.KindNotFound) {
		s.metrics.InboundMessage("unrouted")
		s.log.Warn("webhook message for unknown number", "phone_number_id", msg.PhoneNumberID, "message_id", msg.ID)
		return errUnrouted
	}
	if err != nil {
		s.metrics.Error("webhook")
		s.log.DatabaseError("user_by_phone_number_id", err)
		return fmt.Errorf("resolve owner: %w", err)
	}

	out, err := s.inbound.HandleInbound(ctx, owner, msg)
	if err != nil {
		s.metrics.Error("webhook")
		s.log.Error("inbound message failed", "message_id", msg.ID, "owner_id", owner.ID, "error", err)
		return err
	}
	s.log.Info("inbound message handled",
		"message_id", msg.ID,
		"lead_id", out.Lead.ID,
		"created", out.Created,
		"stage", out.Lead.Stage,
		"replied", out.Replied,
	)
	return nil
}
