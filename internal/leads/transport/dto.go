package transport

import (
	"time"

	"leadflow_backend/internal/leads/domain"
	"leadflow_backend/internal/leads/service"

	"github.com/google/uuid"
)

// Request DTOs
type ListLeadsRequest struct {
	AssignedOnly bool   `form:"assignedOnly"`
	Stage        string `form:"stage" validate:"omitempty,oneof=new contacted qualified hot closed lost"`
	Page         int    `form:"page" validate:"omitempty,min=1"`
	PageSize     int    `form:"pageSize" validate:"omitempty,min=1,max=200"`
}

type ReplyRequest struct {
	Message string `json:"message" validate:"required,max=4096"`
}

type MoveRequest struct {
	LeadID uuid.UUID `json:"leadId" validate:"required"`
	Stage  string    `json:"stage" validate:"required,oneof=new contacted qualified hot closed lost"`
}

type ContactRequest struct {
	Name    string `json:"name" validate:"required,max=120"`
	Email   string `json:"email" validate:"omitempty,email,max=254"`
	Phone   string `json:"phone" validate:"omitempty,min=5,max=32"`
	Message string `json:"message" validate:"max=4096"`
}

// Response DTOs
type LeadResponse struct {
	ID                 uuid.UUID  `json:"id"`
	Name               *string    `json:"name,omitempty"`
	Phone              *string    `json:"phone,omitempty"`
	Email              *string    `json:"email,omitempty"`
	Source             string     `json:"source"`
	Stage              string     `json:"stage"`
	QualificationLevel string     `json:"qualificationLevel"`
	Budget             *string    `json:"budget,omitempty"`
	Timeline           *string    `json:"timeline,omitempty"`
	UseCase            *string    `json:"useCase,omitempty"`
	AINotes            *string    `json:"aiNotes,omitempty"`
	AIIntent           *string    `json:"aiIntent,omitempty"`
	AIUrgency          *string    `json:"aiUrgency,omitempty"`
	AITags             []string   `json:"aiTags"`
	Score              *int       `json:"score,omitempty"`
	WillRespondScore   *int       `json:"willRespondScore,omitempty"`
	WillBuyScore       *int       `json:"willBuyScore,omitempty"`
	PriorityLevel      *string    `json:"priorityLevel,omitempty"`
	EngagementNotes    *string    `json:"engagementNotes,omitempty"`
	IsFake             bool       `json:"isFake"`
	FakeReason         *string    `json:"fakeReason,omitempty"`
	LastMessage        *string    `json:"lastMessage,omitempty"`
	AssignedTo         *uuid.UUID `json:"assignedTo,omitempty"`
	IsConverted        bool       `json:"isConverted"`
	ConvertedAt        *time.Time `json:"convertedAt,omitempty"`
	CreatedAt          time.Time  `json:"createdAt"`
	UpdatedAt          time.Time  `json:"updatedAt"`
}

type LeadListResponse struct {
	Items      []LeadResponse `json:"items"`
	Total      int            `json:"total"`
	Page       int            `json:"page"`
	PageSize   int            `json:"pageSize"`
	TotalPages int            `json:"totalPages"`
}

type MessageResponse struct {
	ID   uuid.UUID `json:"id"`
	From string    `json:"from"`
	Text string    `json:"text"`
	At   time.Time `json:"at"`
}

type ConversationResponse struct {
	Lead     LeadResponse      `json:"lead"`
	Messages []MessageResponse `json:"messages"`
}

type ColumnResponse struct {
	Stage string         `json:"stage"`
	Leads []LeadResponse `json:"leads"`
	Total int            `json:"total"`
}

type BoardResponse struct {
	Columns []ColumnResponse `json:"columns"`
}

type ContactResponse struct {
	Lead    LeadResponse `json:"lead"`
	Created bool         `json:"created"`
	Welcome bool         `json:"welcomeSent"`
}

type ObjectionResponse struct {
	Label string `json:"label"`
	Reply string `json:"reply"`
}

type AdviceResponse struct {
	SuggestedReply    string              `json:"suggestedReply"`
	ClosingTip        string              `json:"closingTip"`
	ObjectionHandling []ObjectionResponse `json:"objectionHandling"`
	HotAlert          *string             `json:"hotAlert"`
	FakeAlert         *string             `json:"fakeAlert"`
}

type CoachResponse struct {
	Available bool            `json:"available"`
	Advice    *AdviceResponse `json:"advice,omitempty"`
	Message   string          `json:"message,omitempty"`
}

func ToCoachResponse(a *domain.Advice) CoachResponse {
	if a == nil {
		return CoachResponse{Message: "AI coach not available"}
	}
	objections := make([]ObjectionResponse, 0, len(a.Objections))
	for _, o := range a.Objections {
		objections = append(objections, ObjectionResponse{Label: o.Label, Reply: o.Reply})
	}
	return CoachResponse{
		Available: true,
		Advice: &AdviceResponse{
			SuggestedReply:    a.SuggestedReply,
			ClosingTip:        a.ClosingTip,
			ObjectionHandling: objections,
			HotAlert:          a.HotAlert,
			FakeAlert:         a.FakeAlert,
		},
	}
}

func ToLeadResponse(l domain.Lead) LeadResponse {
	resp := LeadResponse{
		ID:                 l.ID,
		Name:               l.Name,
		Phone:              l.Phone,
		Email:              l.Email,
		Source:             l.Source,
		Stage:              string(l.Stage),
		QualificationLevel: string(l.QualificationLevel),
		Budget:             l.Budget,
		Timeline:           l.Timeline,
		UseCase:            l.UseCase,
		AINotes:            l.AINotes,
		AIIntent:           l.AIIntent,
		AIUrgency:          l.AIUrgency,
		AITags:             l.AITags,
		Score:              l.Score,
		WillRespondScore:   l.WillRespondScore,
		WillBuyScore:       l.WillBuyScore,
		EngagementNotes:    l.EngagementNotes,
		IsFake:             l.IsFake,
		FakeReason:         l.FakeReason,
		LastMessage:        l.LastMessage,
		AssignedTo:         l.AssignedTo,
		IsConverted:        l.IsConverted,
		ConvertedAt:        l.ConvertedAt,
		CreatedAt:          l.CreatedAt,
		UpdatedAt:          l.UpdatedAt,
	}
	if resp.AITags == nil {
		resp.AITags = []string{}
	}
	if l.PriorityLevel != nil {
		p := string(*l.PriorityLevel)
		resp.PriorityLevel = &p
	}
	return resp
}

func ToLeadResponses(leads []domain.Lead) []LeadResponse {
	out := make([]LeadResponse, 0, len(leads))
	for _, l := range leads {
		out = append(out, ToLeadResponse(l))
	}
	return out
}

func ToConversationResponse(l domain.Lead, msgs []domain.Message) ConversationResponse {
	items := make([]MessageResponse, 0, len(msgs))
	for _, m := range msgs {
		items = append(items, MessageResponse{ID: m.ID, From: string(m.Origin), Text: m.Body, At: m.CreatedAt})
	}
	return ConversationResponse{Lead: ToLeadResponse(l), Messages: items}
}

func ToBoardResponse(columns []service.Column) BoardResponse {
	out := make([]ColumnResponse, 0, len(columns))
	for _, c := range columns {
		out = append(out, ColumnResponse{Stage: string(c.Stage), Leads: ToLeadResponses(c.Leads), Total: c.Total})
	}
	return BoardResponse{Columns: out}
}
