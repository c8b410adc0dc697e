// Package repository persists follow-up jobs and implements the claim
// protocol used by the job processor.
package repository

import (
	"time"

	automation "leadflow_backend/internal/automation/repository"

	"github.com/google/uuid"
)

// Status is the lifecycle position of a job.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusSent       Status = "sent"
)

// Outcome records how a terminal job ended.
type Outcome string

const (
	OutcomeDelivered Outcome = "delivered"
	OutcomeSkipped   Outcome = "skipped"
	OutcomeFailed    Outcome = "failed"
)

// Job is a scheduled follow-up. Once Sent is true the job is terminal and
// is never dispatched again.
type Job struct {
	ID        uuid.UUID          `json:"id"`
	UserID    uuid.UUID          `json:"userId"`
	AgencyID  uuid.UUID          `json:"agencyId"`
	LeadID    uuid.UUID          `json:"leadId"`
	Channel   automation.Channel `json:"channel"`
	Message   string             `json:"message"`
	RunAt     time.Time          `json:"runAt"`
	Status    Status             `json:"status"`
	Outcome   *Outcome           `json:"outcome,omitempty"`
	Attempts  int                `json:"attempts"`
	LastError *string            `json:"lastError,omitempty"`
	ClaimedAt *time.Time         `json:"claimedAt,omitempty"`
	Sent      bool               `json:"sent"`
	SentAt    *time.Time         `json:"sentAt,omitempty"`
	CreatedAt time.Time          `json:"createdAt"`
}

// FinishParams marks a claimed job terminal.
type FinishParams struct {
	ID        uuid.UUID
	Outcome   Outcome
	Attempts  int
	LastError *string
	SentAt    time.Time
}

// RescheduleParams returns a claimed job to pending for a later attempt.
type RescheduleParams struct {
	ID        uuid.UUID
	Attempts  int
	RunAt     time.Time
	LastError string
}
