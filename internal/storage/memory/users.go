package memory

import (
	"context"
	"sort"
	"strings"
	"time"

	identity "leadflow_backend/internal/identity/repository"

	"github.com/google/uuid"
)

// Users implements the identity repository.
type Users struct {
	s *Store
}

func (r *Users) GetUser(_ context.Context, id uuid.UUID) (identity.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[id]
	if !ok {
		return identity.User{}, identity.ErrNotFound
	}
	return u, nil
}

func (r *Users) GetUserByPhoneNumberID(_ context.Context, phoneNumberID string) (identity.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, u := range r.s.users {
		if u.WhatsAppPhoneNumberID != nil && *u.WhatsAppPhoneNumberID == phoneNumberID {
			return u, nil
		}
	}
	return identity.User{}, identity.ErrNotFound
}

func (r *Users) CreateUser(_ context.Context, u identity.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.users {
		if existing.ID == u.ID || strings.EqualFold(existing.Email, u.Email) {
			return identity.ErrDuplicate
		}
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now()
	}
	r.s.users[u.ID] = u
	return nil
}

func (r *Users) EnsureAgency(_ context.Context, userID uuid.UUID, name string, now time.Time) (identity.Agency, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[userID]
	if !ok {
		return identity.Agency{}, identity.ErrNotFound
	}
	if u.AgencyID != nil {
		return r.s.agencies[*u.AgencyID], nil
	}

	agency := identity.Agency{ID: uuid.New(), Name: name, OwnerID: userID, CreatedAt: now}
	r.s.agencies[agency.ID] = agency
	u.AgencyID = &agency.ID
	r.s.users[userID] = u
	return agency, nil
}

func (r *Users) ListAssignableAgents(_ context.Context, agencyID uuid.UUID) ([]identity.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]identity.User, 0)
	for _, u := range r.s.users {
		if u.AgencyID != nil && *u.AgencyID == agencyID && u.IsActive && u.Role.IsAssignable() {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		switch {
		case a.LastAssignedAt == nil && b.LastAssignedAt != nil:
			return true
		case a.LastAssignedAt != nil && b.LastAssignedAt == nil:
			return false
		case a.LastAssignedAt != nil && !a.LastAssignedAt.Equal(*b.LastAssignedAt):
			return a.LastAssignedAt.Before(*b.LastAssignedAt)
		case !a.CreatedAt.Equal(b.CreatedAt):
			return a.CreatedAt.Before(b.CreatedAt)
		default:
			return a.ID.String() < b.ID.String()
		}
	})
	return out, nil
}

func (r *Users) ListAgencyUsers(_ context.Context, agencyID uuid.UUID) ([]identity.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]identity.User, 0)
	for _, u := range r.s.users {
		if u.AgencyID != nil && *u.AgencyID == agencyID {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name == out[j].Name {
			return out[i].ID.String() < out[j].ID.String()
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

func (r *Users) TouchLastAssigned(_ context.Context, userID uuid.UUID, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[userID]
	if !ok {
		return identity.ErrNotFound
	}
	u.LastAssignedAt = ptrTime(at)
	r.s.users[userID] = u
	return nil
}

func (r *Users) SaveWhatsAppCredentials(_ context.Context, userID uuid.UUID, phoneNumberID, sealedToken string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[userID]
	if !ok {
		return identity.ErrNotFound
	}
	u.WhatsAppPhoneNumberID = &phoneNumberID
	u.WhatsAppAccessToken = &sealedToken
	r.s.users[userID] = u
	return nil
}
