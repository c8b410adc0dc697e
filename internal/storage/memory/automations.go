package memory

import (
	"context"

	automation "leadflow_backend/internal/automation/repository"

	"github.com/google/uuid"
)

// Automations implements the automation repository.
type Automations struct {
	s *Store
}

func (r *Automations) Get(_ context.Context, userID uuid.UUID) (automation.RuleSet, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	set, ok := r.s.automations[userID]
	if !ok {
		return automation.RuleSet{}, automation.ErrNotFound
	}
	set.FollowUps = append([]automation.Rule{}, set.FollowUps...)
	return set, nil
}

func (r *Automations) Replace(_ context.Context, set automation.RuleSet) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	set.FollowUps = append([]automation.Rule{}, set.FollowUps...)
	r.s.automations[set.UserID] = set
	return nil
}
