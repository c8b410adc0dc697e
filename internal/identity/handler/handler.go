package handler

import (
	"net/http"

	"leadflow_backend/internal/identity/repository"
	"leadflow_backend/internal/identity/service"
	"leadflow_backend/internal/identity/transport"
	"leadflow_backend/platform/httpkit"
	"leadflow_backend/platform/validator"

	"github.com/gin-gonic/gin"
)

const (
	msgInvalidRequest   = "invalid request"
	msgValidationFailed = "validation failed"
)

type Handler struct {
	svc *service.Service
	val *validator.Validator
}

func New(svc *service.Service, val *validator.Validator) *Handler {
	return &Handler{svc: svc, val: val}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/settings/whatsapp", h.WhatsAppStatus)
	rg.PUT("/settings/whatsapp", h.ConnectWhatsApp)
	rg.GET("/agents", h.ListAgents)
	rg.POST("/agents", h.CreateAgent)
}

func (h *Handler) WhatsAppStatus(c *gin.Context) {
	id := httpkit.MustGetIdentity(c)
	if id == nil {
		return
	}
	user, err := h.svc.GetUser(c.Request.Context(), id.UserID())
	if httpkit.HandleError(c, err) {
		return
	}
	resp := transport.WhatsAppStatusResponse{}
	if creds, ok := h.svc.WhatsAppCredentials(user); ok {
		resp.Connected = true
		resp.PhoneNumberID = creds.PhoneNumberID
	}
	httpkit.OK(c, resp)
}

func (h *Handler) ConnectWhatsApp(c *gin.Context) {
	id := httpkit.MustGetIdentity(c)
	if id == nil {
		return
	}
	var req transport.ConnectWhatsAppRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, validator.Fields(err))
		return
	}

	if httpkit.HandleError(c, h.svc.ConnectWhatsApp(c.Request.Context(), id.UserID(), req.PhoneNumberID, req.AccessToken)) {
		return
	}
	httpkit.OK(c, transport.WhatsAppStatusResponse{Connected: true, PhoneNumberID: req.PhoneNumberID})
}

func (h *Handler) ListAgents(c *gin.Context) {
	id := httpkit.MustGetIdentity(c)
	if id == nil {
		return
	}
	actor, err := h.svc.GetUser(c.Request.Context(), id.UserID())
	if httpkit.HandleError(c, err) {
		return
	}
	users, err := h.svc.ListAgents(c.Request.Context(), actor)
	if httpkit.HandleError(c, err) {
		return
	}

	items := make([]transport.AgentResponse, 0, len(users))
	for _, u := range users {
		items = append(items, transport.ToAgentResponse(u))
	}
	httpkit.OK(c, transport.AgentListResponse{Items: items})
}

func (h *Handler) CreateAgent(c *gin.Context) {
	id := httpkit.MustGetIdentity(c)
	if id == nil {
		return
	}
	var req transport.CreateAgentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, validator.Fields(err))
		return
	}
	role := repository.RoleAgent
	if req.Role != "" {
		role = repository.Role(req.Role)
	}

	actor, err := h.svc.GetUser(c.Request.Context(), id.UserID())
	if httpkit.HandleError(c, err) {
		return
	}
	agent, err := h.svc.CreateAgent(c.Request.Context(), actor, req.Name, req.Email, role)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.JSON(c, http.StatusCreated, transport.ToAgentResponse(agent))
}
