// Package service manages per-user follow-up automation rules.
package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"leadflow_backend/internal/automation/repository"
	"leadflow_backend/platform/apperr"

	"github.com/google/uuid"
)

const (
	MaxRules        = 20
	MaxDelayHours   = 24 * 90
	MaxMessageRunes = 1000
)

// Repository is the storage contract of the automation service.
type Repository interface {
	Get(ctx context.Context, userID uuid.UUID) (repository.RuleSet, error)
	Replace(ctx context.Context, set repository.RuleSet) error
}

// RuleInput is an unvalidated rule as received from clients.
type RuleInput struct {
	DelayHours float64
	Message    string
	Channel    string
}

type Service struct {
	repo Repository
	now  func() time.Time
}

func New(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// Get returns the user's rule set; a user without settings gets a disabled
// empty set.
func (s *Service) Get(ctx context.Context, userID uuid.UUID) (repository.RuleSet, error) {
	set, err := s.repo.Get(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return repository.RuleSet{UserID: userID, FollowUps: []repository.Rule{}}, nil
	}
	if err != nil {
		return repository.RuleSet{}, err
	}
	if set.FollowUps == nil {
		set.FollowUps = []repository.Rule{}
	}
	return set, nil
}

// Replace validates the rules and overwrites the stored rule set.
func (s *Service) Replace(ctx context.Context, userID uuid.UUID, enabled bool, inputs []RuleInput) (repository.RuleSet, error) {
	rules, err := BuildRules(inputs)
	if err != nil {
		return repository.RuleSet{}, err
	}

	set := repository.RuleSet{
		UserID:    userID,
		Enabled:   enabled,
		FollowUps: rules,
		UpdatedAt: s.now(),
	}
	if err := s.repo.Replace(ctx, set); err != nil {
		return repository.RuleSet{}, err
	}
	return set, nil
}

// BuildRules normalizes client rules and reports the first invalid one.
func BuildRules(inputs []RuleInput) ([]repository.Rule, error) {
	if len(inputs) > MaxRules {
		return nil, apperr.Validation("too many follow-up rules")
	}

	rules := make([]repository.Rule, 0, len(inputs))
	for i, in := range inputs {
		channel, ok := repository.ParseChannel(in.Channel)
		if !ok {
			return nil, apperr.Validation("unknown channel").WithDetails(map[string]any{"index": i, "channel": in.Channel})
		}
		if in.DelayHours < 0 || in.DelayHours > MaxDelayHours {
			return nil, apperr.Validation("delayHours out of range").WithDetails(map[string]any{"index": i})
		}
		message := strings.TrimSpace(in.Message)
		if message == "" {
			return nil, apperr.Validation("message is required").WithDetails(map[string]any{"index": i})
		}
		if len([]rune(message)) > MaxMessageRunes {
			return nil, apperr.Validation("message too long").WithDetails(map[string]any{"index": i})
		}
		rules = append(rules, repository.Rule{DelayHours: in.DelayHours, Message: message, Channel: channel})
	}
	return rules, nil
}
