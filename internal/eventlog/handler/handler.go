package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"leadflow_backend/internal/eventlog/reporting"
	"leadflow_backend/internal/eventlog/repository"
	"leadflow_backend/platform/httpkit"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// AgencyResolver maps the authenticated user to their agency.
type AgencyResolver interface {
	AgencyFor(ctx context.Context, userID uuid.UUID) (uuid.UUID, error)
}

// LeadFacts reads the timeline of one lead.
type LeadFacts interface {
	ListForLead(ctx context.Context, leadID uuid.UUID, limit int) ([]repository.Fact, error)
}

const maxTimeline = 500

type Handler struct {
	reports  *reporting.Service
	facts    LeadFacts
	agencies AgencyResolver
}

func New(reports *reporting.Service, facts LeadFacts, agencies AgencyResolver) *Handler {
	return &Handler{reports: reports, facts: facts, agencies: agencies}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/analytics/summary", h.Summary)
	rg.GET("/analytics/agents", h.Agents)
	rg.GET("/analytics/activity", h.Activity)
}

func (h *Handler) agency(c *gin.Context) (uuid.UUID, bool) {
	id := httpkit.MustGetIdentity(c)
	if id == nil {
		return uuid.Nil, false
	}
	agencyID, err := h.agencies.AgencyFor(c.Request.Context(), id.UserID())
	if httpkit.HandleError(c, err) {
		return uuid.Nil, false
	}
	return agencyID, true
}

func (h *Handler) Summary(c *gin.Context) {
	agencyID, ok := h.agency(c)
	if !ok {
		return
	}
	sum, err := h.reports.Summary(c.Request.Context(), agencyID)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, sum)
}

func (h *Handler) Agents(c *gin.Context) {
	agencyID, ok := h.agency(c)
	if !ok {
		return
	}
	stats, err := h.reports.Agents(c.Request.Context(), agencyID)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, gin.H{"items": stats})
}

// Activity returns the timeline of a single lead given as ?leadId=.
func (h *Handler) Activity(c *gin.Context) {
	agencyID, ok := h.agency(c)
	if !ok {
		return
	}
	leadID, err := uuid.Parse(c.Query("leadId"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, "leadId is required", nil)
		return
	}
	limit := maxTimeline
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n < maxTimeline {
			limit = n
		}
	}
	facts, err := h.facts.ListForLead(c.Request.Context(), leadID, limit)
	if httpkit.HandleError(c, err) {
		return
	}
	items := make([]repository.Fact, 0, len(facts))
	for _, f := range facts {
		if f.AgencyID == agencyID {
			items = append(items, f)
		}
	}
	httpkit.OK(c, gin.H{"items": items, "generatedAt": time.Now().UTC()})
}
