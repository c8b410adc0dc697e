package handler

import (
	"net/http"

	"leadflow_backend/internal/automation/service"
	"leadflow_backend/platform/httpkit"
	"leadflow_backend/platform/validator"

	"github.com/gin-gonic/gin"
)

const (
	msgInvalidRequest   = "invalid request"
	msgValidationFailed = "validation failed"
)

type RuleRequest struct {
	DelayHours float64 `json:"delayHours" validate:"gte=0"`
	Message    string  `json:"message" validate:"required"`
	Channel    string  `json:"channel" validate:"omitempty,oneof=messaging whatsapp email"`
}

type UpdateRequest struct {
	Enabled   bool          `json:"enabled"`
	FollowUps []RuleRequest `json:"followUps" validate:"dive"`
}

type Handler struct {
	svc *service.Service
	val *validator.Validator
}

func New(svc *service.Service, val *validator.Validator) *Handler {
	return &Handler{svc: svc, val: val}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/automation", h.Get)
	rg.PUT("/automation", h.Update)
}

func (h *Handler) Get(c *gin.Context) {
	id := httpkit.MustGetIdentity(c)
	if id == nil {
		return
	}
	set, err := h.svc.Get(c.Request.Context(), id.UserID())
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, set)
}

func (h *Handler) Update(c *gin.Context) {
	id := httpkit.MustGetIdentity(c)
	if id == nil {
		return
	}
	var req UpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, validator.Fields(err))
		return
	}

	inputs := make([]service.RuleInput, 0, len(req.FollowUps))
	for _, r := range req.FollowUps {
		inputs = append(inputs, service.RuleInput{DelayHours: r.DelayHours, Message: r.Message, Channel: r.Channel})
	}
	set, err := h.svc.Replace(c.Request.Context(), id.UserID(), req.Enabled, inputs)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, set)
}
