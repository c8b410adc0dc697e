package handler

import (
	"context"
	"net/http"
	"path/filepath"
	"strings"

	identityrepo "leadflow_backend/internal/identity/repository"
	"leadflow_backend/internal/leads/domain"
	"leadflow_backend/internal/leads/intake"
	"leadflow_backend/internal/leads/service"
	"leadflow_backend/internal/leads/transport"
	"leadflow_backend/platform/httpkit"
	"leadflow_backend/platform/validator"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	msgInvalidRequest   = "invalid request"
	msgValidationFailed = "validation failed"
	msgInvalidLeadID    = "invalid lead id"
)

// maxVoiceBytes bounds uploaded voice notes; WhatsApp rejects audio above 16 MB.
const maxVoiceBytes = 16 << 20

// Users loads the acting user.
type Users interface {
	GetUser(ctx context.Context, id uuid.UUID) (identityrepo.User, error)
}

type Handler struct {
	svc    *service.Service
	intake *intake.Service
	users  Users
	val    *validator.Validator
}

func New(svc *service.Service, in *intake.Service, users Users, val *validator.Validator) *Handler {
	return &Handler{svc: svc, intake: in, users: users, val: val}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	leads := rg.Group("/leads")
	leads.GET("", h.List)
	leads.POST("/contact", h.SubmitContact)
	leads.GET("/:id", h.GetByID)
	leads.GET("/:id/messages", h.Messages)
	leads.GET("/:id/coach", h.Coach)
	leads.POST("/:id/reply", h.Reply)
	leads.POST("/:id/voice", h.SendVoice)
	leads.POST("/:id/convert", h.Convert)
	leads.POST("/:id/lost", h.MarkLost)
	leads.POST("/:id/assign-self", h.AssignSelf)

	rg.GET("/pipeline", h.Board)
	rg.POST("/pipeline/move", h.Move)
}

// actor resolves the authenticated user. It writes the error response and
// returns false when the request cannot continue.
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

func leadID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidLeadID, nil)
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) List(c *gin.Context) {
	var req transport.ListLeadsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, validator.Fields(err))
		return
	}
	actor, ok := h.actor(c)
	if !ok {
		return
	}

	if req.Page == 0 {
		req.Page = 1
	}
	if req.PageSize == 0 {
		req.PageSize = 50
	}
	filter := service.ListFilter{
		AssignedOnly: req.AssignedOnly,
		Limit:        req.PageSize,
		Offset:       (req.Page - 1) * req.PageSize,
	}
	if req.Stage != "" {
		stage := domain.Stage(req.Stage)
		filter.Stage = &stage
	}

	leads, total, err := h.svc.List(c.Request.Context(), actor, filter)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.LeadListResponse{
		Items:      transport.ToLeadResponses(leads),
		Total:      total,
		Page:       req.Page,
		PageSize:   req.PageSize,
		TotalPages: (total + req.PageSize - 1) / req.PageSize,
	})
}

func (h *Handler) GetByID(c *gin.Context) {
	id, ok := leadID(c)
	if !ok {
		return
	}
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	lead, err := h.svc.Get(c.Request.Context(), actor, id)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.ToLeadResponse(lead))
}

func (h *Handler) Messages(c *gin.Context) {
	id, ok := leadID(c)
	if !ok {
		return
	}
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	lead, msgs, err := h.svc.Conversation(c.Request.Context(), actor, id)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.ToConversationResponse(lead, msgs))
}

// Coach answers 200 either way; Available is false when the model could
// not produce advice.
func (h *Handler) Coach(c *gin.Context) {
	id, ok := leadID(c)
	if !ok {
		return
	}
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	advice, err := h.svc.Coach(c.Request.Context(), actor, id)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.ToCoachResponse(advice))
}

func (h *Handler) Reply(c *gin.Context) {
	id, ok := leadID(c)
	if !ok {
		return
	}
	var req transport.ReplyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, validator.Fields(err))
		return
	}
	actor, ok := h.actor(c)
	if !ok {
		return
	}

	lead, err := h.svc.Reply(c.Request.Context(), actor, id, req.Message)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.ToLeadResponse(lead))
}

func (h *Handler) SendVoice(c *gin.Context) {
	id, ok := leadID(c)
	if !ok {
		return
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxVoiceBytes+1<<20)
	header, err := c.FormFile("audio")
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, "audio file is required", nil)
		return
	}
	if header.Size > maxVoiceBytes {
		httpkit.Error(c, http.StatusRequestEntityTooLarge, "audio file is too large", nil)
		return
	}
	mimeType := header.Header.Get("Content-Type")
	if !strings.HasPrefix(mimeType, "audio/") {
		httpkit.Error(c, http.StatusBadRequest, "file must be audio", nil)
		return
	}
	actor, ok := h.actor(c)
	if !ok {
		return
	}

	file, err := header.Open()
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	defer file.Close()

	lead, err := h.svc.SendVoice(c.Request.Context(), actor, id, file, filepath.Base(header.Filename), mimeType)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.ToLeadResponse(lead))
}

func (h *Handler) Convert(c *gin.Context) {
	h.stageAction(c, h.svc.Convert)
}

func (h *Handler) MarkLost(c *gin.Context) {
	h.stageAction(c, h.svc.MarkLost)
}

func (h *Handler) AssignSelf(c *gin.Context) {
	h.stageAction(c, h.svc.AssignSelf)
}

type leadAction func(ctx context.Context, actor identityrepo.User, id uuid.UUID) (domain.Lead, error)

func (h *Handler) stageAction(c *gin.Context, action leadAction) {
	id, ok := leadID(c)
	if !ok {
		return
	}
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	lead, err := action(c.Request.Context(), actor, id)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.ToLeadResponse(lead))
}

func (h *Handler) Board(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	columns, err := h.svc.Board(c.Request.Context(), actor)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.ToBoardResponse(columns))
}

func (h *Handler) Move(c *gin.Context) {
	var req transport.MoveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, validator.Fields(err))
		return
	}
	actor, ok := h.actor(c)
	if !ok {
		return
	}

	lead, err := h.svc.Move(c.Request.Context(), actor, req.LeadID, domain.Stage(req.Stage))
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.ToLeadResponse(lead))
}

func (h *Handler) SubmitContact(c *gin.Context) {
	var req transport.ContactRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, validator.Fields(err))
		return
	}
	if strings.TrimSpace(req.Phone) == "" && strings.TrimSpace(req.Email) == "" {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, map[string]string{"phone": "required_without=email"})
		return
	}
	actor, ok := h.actor(c)
	if !ok {
		return
	}

	out, err := h.intake.SubmitContact(c.Request.Context(), actor, intake.ContactForm{
		Name:    req.Name,
		Email:   req.Email,
		Phone:   req.Phone,
		Message: req.Message,
	})
	if httpkit.HandleError(c, err) {
		return
	}
	status := http.StatusOK
	if out.Created {
		status = http.StatusCreated
	}
	httpkit.JSON(c, status, transport.ContactResponse{
		Lead:    transport.ToLeadResponse(out.Lead),
		Created: out.Created,
		Welcome: out.Replied,
	})
}
