package webhook

import (
	"context"
	"net/http"

	"leadflow_backend/internal/whatsapp"
	"leadflow_backend/platform/logger"

	"github.com/gin-gonic/gin"
)

const objectWhatsAppBusiness = "whatsapp_business_account"

// Handler serves the WhatsApp Cloud API webhook.
type Handler struct {
	service     *Service
	verifyToken string
	log         *logger.Logger
}

func NewHandler(service *Service, verifyToken string, log *logger.Logger) *Handler {
	return &Handler{service: service, verifyToken: verifyToken, log: log}
}

// Verify answers Meta's subscription handshake.
// GET /webhooks/whatsapp?hub.mode=subscribe&hub.verify_token=...&hub.challenge=...
func (h *Handler) Verify(c *gin.Context) {
	mode := c.Query("hub.mode")
	token := c.Query("hub.verify_token")
	challenge := c.Query("hub.challenge")

	if mode != "subscribe" || h.verifyToken == "" || token != h.verifyToken {
		h.log.Warn("webhook verification rejected", "mode", mode, "ip", c.ClientIP())
		c.Status(http.StatusForbidden)
		return
	}
	c.String(http.StatusOK, challenge)
}

// Receive handles message notifications. Malformed or foreign payloads
// are acknowledged so Meta does not keep redelivering them.
// POST /webhooks/whatsapp
func (h *Handler) Receive(c *gin.Context) {
	var payload whatsapp.WebhookPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		h.log.Warn("webhook payload unreadable", "error", err)
		c.String(http.StatusOK, "IGNORED")
		return
	}
	if payload.Object != objectWhatsAppBusiness {
		c.String(http.StatusOK, "IGNORED")
		return
	}

	sum := h.service.Process(context.WithoutCancel(c.Request.Context()), payload)
	if sum.Received > 0 {
		h.log.Info("webhook processed",
			"received", sum.Received,
			"processed", sum.Processed,
			"unrouted", sum.Unrouted,
			"duplicate", sum.Duplicate,
			"failed", sum.Failed,
		)
	}
	c.String(http.StatusOK, "EVENT_RECEIVED")
}
