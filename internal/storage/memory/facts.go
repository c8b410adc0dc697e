package memory

import (
	"context"
	"sort"
	"time"

	eventrepo "leadflow_backend/internal/eventlog/repository"

	"github.com/google/uuid"
)

// Facts implements the append-only fact log.
type Facts struct {
	s *Store
}

func (r *Facts) Insert(_ context.Context, fact eventrepo.Fact) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.facts = append(r.s.facts, fact)
	return nil
}

func (r *Facts) ListRecent(_ context.Context, agencyID uuid.UUID, since time.Time, limit int) ([]eventrepo.Fact, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]eventrepo.Fact, 0)
	for i := len(r.s.facts) - 1; i >= 0; i-- {
		f := r.s.facts[i]
		if f.AgencyID == agencyID && !f.CreatedAt.Before(since) {
			out = append(out, f)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *Facts) ListForLead(_ context.Context, leadID uuid.UUID, limit int) ([]eventrepo.Fact, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]eventrepo.Fact, 0)
	for _, f := range r.s.facts {
		if f.LeadID != nil && *f.LeadID == leadID {
			out = append(out, f)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *Facts) CountByType(_ context.Context, agencyID uuid.UUID, since time.Time) (map[eventrepo.Type]int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	counts := make(map[eventrepo.Type]int)
	for _, f := range r.s.facts {
		if f.AgencyID == agencyID && !f.CreatedAt.Before(since) {
			counts[f.Type]++
		}
	}
	return counts, nil
}

// All returns every stored fact in insertion order.
func (r *Facts) All() []eventrepo.Fact {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return append([]eventrepo.Fact{}, r.s.facts...)
}

// OfType returns the stored facts of one type in insertion order.
func (r *Facts) OfType(t eventrepo.Type) []eventrepo.Fact {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]eventrepo.Fact, 0)
	for _, f := range r.s.facts {
		if f.Type == t {
			out = append(out, f)
		}
	}
	return out
}
