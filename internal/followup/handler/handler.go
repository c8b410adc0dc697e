package handler

import (
	"strconv"

	"leadflow_backend/internal/followup/repository"
	"leadflow_backend/internal/followup/service"
	"leadflow_backend/platform/httpkit"

	"github.com/gin-gonic/gin"
)

type ListResponse struct {
	Items []repository.Job `json:"items"`
}

type DeleteResponse struct {
	Deleted int `json:"deleted"`
}

type Handler struct {
	svc *service.Service
}

func New(svc *service.Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/followups", h.List)
	rg.DELETE("/followups", h.DeletePending)
}

func (h *Handler) List(c *gin.Context) {
	id := httpkit.MustGetIdentity(c)
	if id == nil {
		return
	}
	limit, _ := strconv.Atoi(c.Query("limit"))
	jobs, err := h.svc.List(c.Request.Context(), id.UserID(), limit)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, ListResponse{Items: jobs})
}

func (h *Handler) DeletePending(c *gin.Context) {
	id := httpkit.MustGetIdentity(c)
	if id == nil {
		return
	}
	n, err := h.svc.DeletePending(c.Request.Context(), id.UserID())
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, DeleteResponse{Deleted: n})
}
