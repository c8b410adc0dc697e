package transport

import (
	"time"

	"leadflow_backend/internal/identity/repository"

	"github.com/google/uuid"
)

type ConnectWhatsAppRequest struct {
	PhoneNumberID string `json:"phoneNumberId" validate:"required,max=64"`
	AccessToken   string `json:"accessToken" validate:"required,max=1024"`
}

type WhatsAppStatusResponse struct {
	Connected     bool   `json:"connected"`
	PhoneNumberID string `json:"phoneNumberId,omitempty"`
}

type CreateAgentRequest struct {
	Name  string `json:"name" validate:"required,max=120"`
	Email string `json:"email" validate:"required,email"`
	Role  string `json:"role" validate:"omitempty,oneof=agent admin"`
}

type AgentResponse struct {
	ID             uuid.UUID  `json:"id"`
	Name           string     `json:"name"`
	Email          string     `json:"email"`
	Role           string     `json:"role"`
	IsActive       bool       `json:"isActive"`
	LastAssignedAt *time.Time `json:"lastAssignedAt,omitempty"`
}

type AgentListResponse struct {
	Items []AgentResponse `json:"items"`
}

func ToAgentResponse(u repository.User) AgentResponse {
	return AgentResponse{
		ID:             u.ID,
		Name:           u.Name,
		Email:          u.Email,
		Role:           string(u.Role),
		IsActive:       u.IsActive,
		LastAssignedAt: u.LastAssignedAt,
	}
}
