package repository

import (
	"context"
	"time"

	"leadflow_backend/internal/leads/domain"

	"github.com/google/uuid"
)

// =====================================
// Segregated Interfaces (Interface Segregation Principle)
// =====================================

// LeadReader provides read-only access to lead data.
type LeadReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (domain.Lead, error)
	FindLatestByPhone(ctx context.Context, agencyID uuid.UUID, phoneKey string) (domain.Lead, error)
	List(ctx context.Context, params ListParams) ([]domain.Lead, int, error)
}

// LeadWriter creates leads and persists their mutable state.
type LeadWriter interface {
	Create(ctx context.Context, lead domain.Lead, first *domain.Message) error
	FillContact(ctx context.Context, id uuid.UUID, name, email *string) error
	// SavePipeline writes stage and classification fields when the stored
	// version still equals lead.Version and returns the new version.
	SavePipeline(ctx context.Context, lead domain.Lead) (int, error)
	Assign(ctx context.Context, id uuid.UUID, agentID uuid.UUID) error
}

// MessageStore appends to and reads a lead's conversation.
type MessageStore interface {
	AppendMessage(ctx context.Context, msg domain.Message) error
	ListMessages(ctx context.Context, leadID uuid.UUID) ([]domain.Message, error)
}

// StatsReader provides the aggregates behind reporting.
type StatsReader interface {
	CountLeads(ctx context.Context, agencyID uuid.UUID) (LeadCounts, error)
	DailyLeadCounts(ctx context.Context, agencyID uuid.UUID, since time.Time) ([]DailyCount, error)
	AgentLeadStats(ctx context.Context, agencyID uuid.UUID) ([]AgentStat, error)
}

// LeadRepository is the full lead storage contract.
type LeadRepository interface {
	LeadReader
	LeadWriter
	MessageStore
	StatsReader
}

// ListParams filters lead listings.
type ListParams struct {
	AgencyID   uuid.UUID
	AssignedTo *uuid.UUID
	Stage      *domain.Stage
	Limit      int
	Offset     int
}

// LeadCounts holds agency-wide lead totals.
type LeadCounts struct {
	Total     int `json:"total"`
	Hot       int `json:"hot"`
	Warm      int `json:"warm"`
	Cold      int `json:"cold"`
	Fake      int `json:"fake"`
	Converted int `json:"converted"`
}

// DailyCount buckets lead creation and conversion per UTC day.
type DailyCount struct {
	Day       time.Time `json:"day"`
	Created   int       `json:"created"`
	Converted int       `json:"converted"`
}

// AgentStat summarizes the leads assigned to one agent.
type AgentStat struct {
	AgentID  uuid.UUID `json:"agentId"`
	Name     string    `json:"name"`
	Assigned int       `json:"assigned"`
	Hot      int       `json:"hot"`
	Closed   int       `json:"closed"`
}

// Compile-time check that Repository implements LeadRepository.
var _ LeadRepository = (*Repository)(nil)
