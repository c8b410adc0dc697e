// Package memory implements every repository of the lead engine in process
// memory. It backs STORAGE_DRIVER=memory and the service tests.
package memory

import (
	"context"
	"sync"
	"time"

	automation "leadflow_backend/internal/automation/repository"
	eventrepo "leadflow_backend/internal/eventlog/repository"
	followup "leadflow_backend/internal/followup/repository"
	identity "leadflow_backend/internal/identity/repository"
	"leadflow_backend/internal/leads/domain"
	visit "leadflow_backend/internal/visits/repository"

	"github.com/google/uuid"
)

// Store holds all tables behind one mutex.
type Store struct {
	mu          sync.Mutex
	agencies    map[uuid.UUID]identity.Agency
	users       map[uuid.UUID]identity.User
	leads       map[uuid.UUID]domain.Lead
	messages    map[uuid.UUID][]domain.Message
	automations map[uuid.UUID]automation.RuleSet
	jobs        map[uuid.UUID]followup.Job
	visits      map[uuid.UUID]visit.Visit
	facts       []eventrepo.Fact
}

func New() *Store {
	return &Store{
		agencies:    make(map[uuid.UUID]identity.Agency),
		users:       make(map[uuid.UUID]identity.User),
		leads:       make(map[uuid.UUID]domain.Lead),
		messages:    make(map[uuid.UUID][]domain.Message),
		automations: make(map[uuid.UUID]automation.RuleSet),
		jobs:        make(map[uuid.UUID]followup.Job),
		visits:      make(map[uuid.UUID]visit.Visit),
	}
}

func (s *Store) Leads() *Leads             { return &Leads{s: s} }
func (s *Store) Users() *Users             { return &Users{s: s} }
func (s *Store) Automations() *Automations { return &Automations{s: s} }
func (s *Store) FollowUps() *FollowUps     { return &FollowUps{s: s} }
func (s *Store) Facts() *Facts             { return &Facts{s: s} }
func (s *Store) Visits() *Visits           { return &Visits{s: s} }

// Ping satisfies the readiness check.
func (s *Store) Ping(context.Context) error { return nil }

func copyLead(l domain.Lead) domain.Lead {
	if l.AITags != nil {
		l.AITags = append([]string(nil), l.AITags...)
	}
	return l
}

func ptrTime(t time.Time) *time.Time { return &t }
