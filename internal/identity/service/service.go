// Package service holds the identity use cases the lead engine needs:
// resolving users, lazily creating agencies, managing agents and
// storing sealed WhatsApp credentials.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"leadflow_backend/internal/identity/credcrypto"
	"leadflow_backend/internal/identity/repository"
	"leadflow_backend/internal/whatsapp"
	"leadflow_backend/platform/apperr"
	"leadflow_backend/platform/logger"

	"github.com/google/uuid"
)

// Repository is the storage contract of the identity service.
type Repository interface {
	GetUser(ctx context.Context, id uuid.UUID) (repository.User, error)
	GetUserByPhoneNumberID(ctx context.Context, phoneNumberID string) (repository.User, error)
	CreateUser(ctx context.Context, u repository.User) error
	EnsureAgency(ctx context.Context, userID uuid.UUID, name string, now time.Time) (repository.Agency, error)
	ListAgencyUsers(ctx context.Context, agencyID uuid.UUID) ([]repository.User, error)
	SaveWhatsAppCredentials(ctx context.Context, userID uuid.UUID, phoneNumberID, sealedToken string) error
}

type Service struct {
	repo   Repository
	sealer *credcrypto.Sealer
	log    *logger.Logger
	now    func() time.Time
}

func New(repo Repository, sealer *credcrypto.Sealer, log *logger.Logger) *Service {
	return &Service{repo: repo, sealer: sealer, log: log, now: time.Now}
}

// GetUser loads a user or returns a NotFound error.
func (s *Service) GetUser(ctx context.Context, id uuid.UUID) (repository.User, error) {
	user, err := s.repo.GetUser(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return repository.User{}, apperr.NotFound("user not found")
	}
	return user, err
}

// UserByPhoneNumberID resolves the owner of a business number.
func (s *Service) UserByPhoneNumberID(ctx context.Context, phoneNumberID string) (repository.User, error) {
	user, err := s.repo.GetUserByPhoneNumberID(ctx, phoneNumberID)
	if errors.Is(err, repository.ErrNotFound) {
		return repository.User{}, apperr.NotFound("no user owns this phone number id")
	}
	return user, err
}

// EnsureAgency returns the user's agency, creating "<name>'s Agency" on
// first use.
func (s *Service) EnsureAgency(ctx context.Context, user repository.User) (repository.Agency, error) {
	name := strings.TrimSpace(user.Name)
	if name == "" {
		name = "My"
	}
	agency, err := s.repo.EnsureAgency(ctx, user.ID, name+"'s Agency", s.now())
	if err != nil {
		return repository.Agency{}, fmt.Errorf("ensure agency: %w", err)
	}
	return agency, nil
}

// WhatsAppCredentials unseals the user's channel credentials. The second
// return value is false when the user never connected WhatsApp.
func (s *Service) WhatsAppCredentials(user repository.User) (whatsapp.Credentials, bool) {
	if user.WhatsAppPhoneNumberID == nil || user.WhatsAppAccessToken == nil {
		return whatsapp.Credentials{}, false
	}
	token, err := s.sealer.Open(*user.WhatsAppAccessToken, user.ID.String())
	if err != nil {
		s.log.Warn("whatsapp credentials unreadable", "user_id", user.ID, "error", err)
		return whatsapp.Credentials{}, false
	}
	creds := whatsapp.Credentials{PhoneNumberID: *user.WhatsAppPhoneNumberID, AccessToken: token}
	return creds, creds.Valid()
}

// ConnectWhatsApp stores the business number id and seals the access token.
func (s *Service) ConnectWhatsApp(ctx context.Context, userID uuid.UUID, phoneNumberID, accessToken string) error {
	sealed, err := s.sealer.Seal(strings.TrimSpace(accessToken), userID.String())
	if err != nil {
		return fmt.Errorf("seal token: %w", err)
	}
	err = s.repo.SaveWhatsAppCredentials(ctx, userID, strings.TrimSpace(phoneNumberID), sealed)
	if errors.Is(err, repository.ErrNotFound) {
		return apperr.NotFound("user not found")
	}
	return err
}

// CreateAgent adds a user to the acting user's agency.
func (s *Service) CreateAgent(ctx context.Context, actor repository.User, name, email string, role repository.Role) (repository.User, error) {
	if actor.Role != repository.RoleOwner && actor.Role != repository.RoleAdmin {
		return repository.User{}, apperr.Forbidden("only owners and admins can add agents")
	}
	if role != repository.RoleAgent && role != repository.RoleAdmin {
		return repository.User{}, apperr.Validation("role must be agent or admin")
	}
	agency, err := s.EnsureAgency(ctx, actor)
	if err != nil {
		return repository.User{}, err
	}

	agent := repository.User{
		ID:        uuid.New(),
		AgencyID:  &agency.ID,
		Name:      strings.TrimSpace(name),
		Email:     strings.ToLower(strings.TrimSpace(email)),
		Role:      role,
		IsActive:  true,
		CreatedAt: s.now(),
	}
	if err := s.repo.CreateUser(ctx, agent); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return repository.User{}, apperr.Conflict("a user with this email already exists")
		}
		return repository.User{}, err
	}
	return agent, nil
}

// ListAgents returns the users of the actor's agency.
func (s *Service) ListAgents(ctx context.Context, actor repository.User) ([]repository.User, error) {
	if actor.AgencyID == nil {
		return []repository.User{}, nil
	}
	return s.repo.ListAgencyUsers(ctx, *actor.AgencyID)
}

// AgencyFor returns the agency the user acts in, creating it on first use.
func (s *Service) AgencyFor(ctx context.Context, userID uuid.UUID) (uuid.UUID, error) {
	user, err := s.GetUser(ctx, userID)
	if err != nil {
		return uuid.Nil, err
	}
	agency, err := s.EnsureAgency(ctx, user)
	if err != nil {
		return uuid.Nil, err
	}
	return agency.ID, nil
}
