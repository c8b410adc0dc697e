package service

import (
	"context"

	"leadflow_backend/internal/followup/repository"

	"github.com/google/uuid"
)

const (
	defaultListLimit = 100
	maxListLimit     = 500
)

// Maintenance is the storage used by the follow-up maintenance endpoints.
type Maintenance interface {
	ListForUser(ctx context.Context, userID uuid.UUID, limit int) ([]repository.Job, error)
	DeletePendingForUser(ctx context.Context, userID uuid.UUID) (int, error)
}

// Service exposes a user's follow-up jobs.
type Service struct {
	repo Maintenance
}

func New(repo Maintenance) *Service {
	return &Service{repo: repo}
}

// List returns the user's jobs, latest run time first.
func (s *Service) List(ctx context.Context, userID uuid.UUID, limit int) ([]repository.Job, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	return s.repo.ListForUser(ctx, userID, limit)
}

// DeletePending removes the user's jobs that have not been dispatched yet.
// Jobs currently claimed by a processor are left alone.
func (s *Service) DeletePending(ctx context.Context, userID uuid.UUID) (int, error) {
	return s.repo.DeletePendingForUser(ctx, userID)
}
