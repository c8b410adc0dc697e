// Package events provides domain event definitions for decoupled,
// event-driven communication between modules.
// Infrastructure (Bus, Handler) is in platform/events.
package events

import (
	"time"

	"leadflow_backend/platform/events"

	"github.com/google/uuid"
)

// Re-export platform types for convenience
type (
	Event       = events.Event
	Bus         = events.Bus
	Handler     = events.Handler
	HandlerFunc = events.HandlerFunc
	BaseEvent   = events.BaseEvent
)

// Re-export platform functions
var NewBaseEvent = events.NewBaseEvent

// =============================================================================
// Leads Domain Events
// =============================================================================

// LeadCreated is published when the resolver creates a new lead.
type LeadCreated struct {
	BaseEvent
	LeadID   uuid.UUID `json:"leadId"`
	AgencyID uuid.UUID `json:"agencyId"`
	UserID   uuid.UUID `json:"userId"`
	Source   string    `json:"source"`
}

func (e LeadCreated) EventName() string { return "leads.lead.created" }

// LeadMessageReceived is published when an inbound message is appended to a lead.
type LeadMessageReceived struct {
	BaseEvent
	LeadID   uuid.UUID `json:"leadId"`
	AgencyID uuid.UUID `json:"agencyId"`
	Channel  string    `json:"channel"`
}

func (e LeadMessageReceived) EventName() string { return "leads.message.received" }

// LeadStageChanged is published after a stage transition is persisted.
type LeadStageChanged struct {
	BaseEvent
	LeadID    uuid.UUID `json:"leadId"`
	AgencyID  uuid.UUID `json:"agencyId"`
	FromStage string    `json:"fromStage"`
	ToStage   string    `json:"toStage"`
	Cause     string    `json:"cause"`
}

func (e LeadStageChanged) EventName() string { return "leads.stage.changed" }

// LeadAssigned is published when a lead gets an assignee.
type LeadAssigned struct {
	BaseEvent
	LeadID   uuid.UUID `json:"leadId"`
	AgencyID uuid.UUID `json:"agencyId"`
	AgentID  uuid.UUID `json:"agentId"`
	Auto     bool      `json:"auto"`
}

func (e LeadAssigned) EventName() string { return "leads.lead.assigned" }

// =============================================================================
// Follow-up Domain Events
// =============================================================================

// FollowUpProcessed is published once a follow-up job reaches a decision.
type FollowUpProcessed struct {
	BaseEvent
	JobID    uuid.UUID `json:"jobId"`
	LeadID   uuid.UUID `json:"leadId"`
	Channel  string    `json:"channel"`
	Outcome  string    `json:"outcome"`
	Attempts int       `json:"attempts"`
}

func (e FollowUpProcessed) EventName() string { return "followups.job.processed" }

// NewBaseEventAt creates a base event stamped with the given instant.
func NewBaseEventAt(t time.Time) BaseEvent {
	return BaseEvent{Timestamp: t}
}
