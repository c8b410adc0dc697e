// Package webhook receives WhatsApp Cloud API notifications and hands text
// messages to the lead engine.
package webhook

import (
	apphttp "leadflow_backend/internal/http"
	"leadflow_backend/internal/metrics"
	"leadflow_backend/platform/config"
	"leadflow_backend/platform/logger"
)

// Module is the webhook bounded context module implementing http.Module.
type Module struct {
	handler   *Handler
	appSecret string
	log       *logger.Logger
}

// NewModule creates the webhook module.
func NewModule(cfg config.WhatsAppConfig, owners Owners, inbound Inbound, m *metrics.Metrics, log *logger.Logger) *Module {
	if cfg.GetWhatsAppAppSecret() == "" {
		log.Warn("WHATSAPP_APP_SECRET not configured; webhook signatures are not verified")
	}
	service := NewService(owners, inbound, m, log)
	return &Module{
		handler:   NewHandler(service, cfg.GetWhatsAppVerifyToken(), log),
		appSecret: cfg.GetWhatsAppAppSecret(),
		log:       log,
	}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "webhook"
}

// RegisterRoutes mounts the webhook outside /api/v1, where Meta is
// configured to call it.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	group := ctx.Engine.Group("/webhooks/whatsapp")
	if ctx.PublicRateLimiter != nil {
		group.GET("", ctx.PublicRateLimiter.RateLimit(), m.handler.Verify)
	} else {
		group.GET("", m.handler.Verify)
	}
	group.POST("", SignatureMiddleware(m.appSecret, m.log), m.handler.Receive)
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
