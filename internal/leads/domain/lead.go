// Package domain holds the lead entity and the pure rules of the sales
// pipeline. Nothing here performs I/O.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// QualificationLevel is the classifier's temperature for a lead.
type QualificationLevel string

const (
	QualificationNew  QualificationLevel = "new"
	QualificationCold QualificationLevel = "cold"
	QualificationWarm QualificationLevel = "warm"
	QualificationHot  QualificationLevel = "hot"
)

// Priority ranks how urgently an agent should pick up a lead.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// MessageOrigin identifies who authored a lead message.
type MessageOrigin string

const (
	OriginLead  MessageOrigin = "lead"
	OriginBot   MessageOrigin = "bot"
	OriginAgent MessageOrigin = "agent"
)

// Lead sources recorded at creation.
const (
	SourceWhatsApp    = "whatsapp_inbound"
	SourceContactForm = "contact_form"
	SourceManual      = "manual"
)

// Lead is a prospective customer tracked through the pipeline.
type Lead struct {
	ID       uuid.UUID
	AgencyID uuid.UUID
	UserID   uuid.UUID
	// Phone is the canonical phone key; nil for web-only leads.
	Phone  *string
	Name   *string
	Email  *string
	Source string

	Stage              Stage
	QualificationLevel QualificationLevel

	Budget           *string
	Timeline         *string
	UseCase          *string
	AINotes          *string
	AIIntent         *string
	AIUrgency        *string
	AITags           []string
	Score            *int
	WillRespondScore *int
	WillBuyScore     *int
	PriorityLevel    *Priority
	EngagementNotes  *string
	IsFake           bool
	FakeReason       *string

	LastMessage *string
	AssignedTo  *uuid.UUID
	IsConverted bool
	ConvertedAt *time.Time

	Version   int
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Message is one entry of a lead's conversation.
type Message struct {
	ID        uuid.UUID
	LeadID    uuid.UUID
	Origin    MessageOrigin
	Body      string
	CreatedAt time.Time
}

// NewLead builds a lead in its initial state.
func NewLead(agencyID, userID uuid.UUID, phoneKey *string, source string, now time.Time) Lead {
	return Lead{
		ID:                 uuid.New(),
		AgencyID:           agencyID,
		UserID:             userID,
		Phone:              phoneKey,
		Source:             source,
		Stage:              StageNew,
		QualificationLevel: QualificationNew,
		AITags:             []string{},
		Version:            1,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
}

// HasPhone reports whether the lead can be reached on the messaging channel.
func (l Lead) HasPhone() bool {
	return l.Phone != nil && *l.Phone != ""
}

// HasEmail reports whether the lead can be reached by email.
func (l Lead) HasEmail() bool {
	return l.Email != nil && *l.Email != ""
}

// DisplayName returns the lead's name or a placeholder.
func (l Lead) DisplayName() string {
	if l.Name != nil && *l.Name != "" {
		return *l.Name
	}
	return "there"
}
