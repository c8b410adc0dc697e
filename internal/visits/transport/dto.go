package transport

import (
	"time"

	"leadflow_backend/internal/visits/repository"

	"github.com/google/uuid"
)

// Request DTOs
type BookVisitRequest struct {
	Date           string `json:"date" validate:"required,datetime=2006-01-02"`
	TimeSlot       string `json:"timeSlot" validate:"required,oneof=morning afternoon evening"`
	FamilyComing   bool   `json:"familyComing"`
	PickupRequired bool   `json:"pickupRequired"`
	Notes          string `json:"notes" validate:"max=1000"`
	Source         string `json:"source" validate:"max=40"`
}

type UpdateVisitStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=pending confirmed completed cancelled"`
}

// Response DTOs
type VisitResponse struct {
	ID              uuid.UUID  `json:"id"`
	LeadID          uuid.UUID  `json:"leadId"`
	AssignedAgentID *uuid.UUID `json:"assignedAgentId,omitempty"`
	Date            string     `json:"date"`
	TimeSlot        string     `json:"timeSlot"`
	Status          string     `json:"visitStatus"`
	FamilyComing    bool       `json:"familyComing"`
	PickupRequired  bool       `json:"pickupRequired"`
	Notes           string     `json:"notes,omitempty"`
	Source          string     `json:"source"`
	CreatedAt       time.Time  `json:"createdAt"`
	UpdatedAt       time.Time  `json:"updatedAt"`
}

type VisitListResponse struct {
	Visits []VisitResponse `json:"visits"`
}

func ToVisitResponse(v repository.Visit) VisitResponse {
	return VisitResponse{
		ID:              v.ID,
		LeadID:          v.LeadID,
		AssignedAgentID: v.AssignedAgentID,
		Date:            v.Date.Format(time.DateOnly),
		TimeSlot:        string(v.TimeSlot),
		Status:          string(v.Status),
		FamilyComing:    v.FamilyComing,
		PickupRequired:  v.PickupRequired,
		Notes:           v.Notes,
		Source:          v.Source,
		CreatedAt:       v.CreatedAt,
		UpdatedAt:       v.UpdatedAt,
	}
}

func ToVisitListResponse(visits []repository.Visit) VisitListResponse {
	out := make([]VisitResponse, 0, len(visits))
	for _, v := range visits {
		out = append(out, ToVisitResponse(v))
	}
	return VisitListResponse{Visits: out}
}
