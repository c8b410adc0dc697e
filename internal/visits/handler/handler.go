package handler

import (
	"context"
	"net/http"
	"time"

	identityrepo "leadflow_backend/internal/identity/repository"
	"leadflow_backend/internal/visits/service"
	"leadflow_backend/internal/visits/transport"
	"leadflow_backend/platform/httpkit"
	"leadflow_backend/platform/validator"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	msgInvalidRequest   = "invalid request"
	msgValidationFailed = "validation failed"
	msgInvalidLeadID    = "invalid lead id"
	msgInvalidVisitID   = "invalid visit id"
)

// Users loads the acting user.
type Users interface {
	GetUser(ctx context.Context, id uuid.UUID) (identityrepo.User, error)
}

type Handler struct {
	svc   *service.Service
	users Users
	val   *validator.Validator
}

func New(svc *service.Service, users Users, val *validator.Validator) *Handler {
	return &Handler{svc: svc, users: users, val: val}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/leads/:id/visits", h.Book)
	rg.GET("/leads/:id/visits", h.ListByLead)
	rg.PATCH("/visits/:id/status", h.UpdateStatus)
}

func (h *Handler) actor(c *gin.Context) (identityrepo.User, bool) {
	id := httpkit.MustGetIdentity(c)
	if id == nil {
		return identityrepo.User{}, false
	}
	user, err := h.users.GetUser(c.Request.Context(), id.UserID())
	if httpkit.HandleError(c, err) {
		return identityrepo.User{}, false
	}
	return user, true
}

func pathID(c *gin.Context, msg string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msg, nil)
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) Book(c *gin.Context) {
	leadID, ok := pathID(c, msgInvalidLeadID)
	if !ok {
		return
	}
	var req transport.BookVisitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, validator.Fields(err))
		return
	}
	date, err := time.Parse(time.DateOnly, req.Date)
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, map[string]string{"date": "datetime"})
		return
	}
	user, ok := h.actor(c)
	if !ok {
		return
	}

	visit, err := h.svc.Book(c.Request.Context(), user, leadID, service.BookInput{
		Date:           date,
		TimeSlot:       req.TimeSlot,
		FamilyComing:   req.FamilyComing,
		PickupRequired: req.PickupRequired,
		Notes:          req.Notes,
		Source:         req.Source,
	})
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.JSON(c, http.StatusCreated, transport.ToVisitResponse(visit))
}

func (h *Handler) ListByLead(c *gin.Context) {
	leadID, ok := pathID(c, msgInvalidLeadID)
	if !ok {
		return
	}
	user, ok := h.actor(c)
	if !ok {
		return
	}
	visits, err := h.svc.ListByLead(c.Request.Context(), user, leadID)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.ToVisitListResponse(visits))
}

func (h *Handler) UpdateStatus(c *gin.Context) {
	visitID, ok := pathID(c, msgInvalidVisitID)
	if !ok {
		return
	}
	var req transport.UpdateVisitStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, validator.Fields(err))
		return
	}
	user, ok := h.actor(c)
	if !ok {
		return
	}
	visit, err := h.svc.UpdateStatus(c.Request.Context(), user, visitID, req.Status)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.ToVisitResponse(visit))
}
