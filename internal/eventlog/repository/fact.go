// Package repository stores the append-only lead fact log.
package repository

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

// Type is one of the closed set of fact types.
type Type string

const (
	TypeLeadCreated       Type = "lead_created"
	TypeLeadUpdated       Type = "lead_updated"
	TypeStageChanged      Type = "stage_changed"
	TypeWhatsAppIn        Type = "whatsapp_in"
	TypeWhatsAppOutAI     Type = "whatsapp_out_ai"
	TypeWhatsAppOutAgent  Type = "whatsapp_out_agent"
	TypeFollowUpScheduled Type = "followup_scheduled"
	TypeFollowUpSent      Type = "followup_sent"
	TypeFollowUpFailed    Type = "followup_failed"
	TypeLeadAssigned      Type = "lead_assigned"
	TypeLeadConverted     Type = "lead_converted"
	TypeLeadLost          Type = "lead_lost"
	TypeVisitBooked       Type = "visit_booked"
	TypeVisitUpdated      Type = "visit_updated"
)

// Fact sources.
const (
	SourceSystem  = "system"
	SourceWebhook = "webhook"
	SourceAgent   = "agent"
	SourceSweep   = "followup_sweep"
	SourceWebForm = "contact_form"
)

// Directions recorded on message facts.
const (
	DirectionInbound  = "inbound"
	DirectionOutbound = "outbound"
)

// SnippetMaxLen bounds message snippets stored in fact payloads.
const SnippetMaxLen = 120

// Payload carries the optional details of a fact.
type Payload struct {
	FromStage      string         `json:"fromStage,omitempty"`
	ToStage        string         `json:"toStage,omitempty"`
	Channel        string         `json:"channel,omitempty"`
	Direction      string         `json:"direction,omitempty"`
	MessageSnippet string         `json:"messageSnippet,omitempty"`
	Notes          string         `json:"notes,omitempty"`
	Extra          map[string]any `json:"extra,omitempty"`
}

// Fact is an immutable audit record about a lead.
type Fact struct {
	ID        uuid.UUID  `json:"id"`
	AgencyID  uuid.UUID  `json:"agencyId"`
	UserID    *uuid.UUID `json:"userId,omitempty"`
	LeadID    *uuid.UUID `json:"leadId,omitempty"`
	Type      Type       `json:"type"`
	Payload   Payload    `json:"payload"`
	Source    string     `json:"source"`
	CreatedAt time.Time  `json:"createdAt"`
}

// Snippet trims text and cuts it to SnippetMaxLen runes.
func Snippet(text string) string {
	trimmed := strings.TrimSpace(text)
	if utf8.RuneCountInString(trimmed) <= SnippetMaxLen {
		return trimmed
	}
	runes := []rune(trimmed)
	return string(runes[:SnippetMaxLen])
}
