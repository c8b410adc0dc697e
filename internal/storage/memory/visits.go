package memory

import (
	"context"
	"sort"
	"time"

	visit "leadflow_backend/internal/visits/repository"

	"github.com/google/uuid"
)

// Visits implements the visit repository.
type Visits struct {
	s *Store
}

func (r *Visits) Create(_ context.Context, v visit.Visit) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.visits[v.ID] = v
	return nil
}

func (r *Visits) GetByID(_ context.Context, id uuid.UUID) (visit.Visit, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	v, ok := r.s.visits[id]
	if !ok {
		return visit.Visit{}, visit.ErrNotFound
	}
	return v, nil
}

func (r *Visits) ListByLead(_ context.Context, leadID uuid.UUID) ([]visit.Visit, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]visit.Visit, 0)
	for _, v := range r.s.visits {
		if v.LeadID == leadID {
			out = append(out, v)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.After(out[j].Date)
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (r *Visits) UpdateStatus(_ context.Context, id uuid.UUID, status visit.Status, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	v, ok := r.s.visits[id]
	if !ok || v.Status.IsFinal() {
		return visit.ErrNotFound
	}
	v.Status = status
	v.UpdatedAt = at
	r.s.visits[id] = v
	return nil
}
