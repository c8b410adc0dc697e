package webhook

import (
	"bytes"
	"io"
	"net/http"

	"leadflow_backend/internal/whatsapp"
	"leadflow_backend/platform/logger"

	"github.com/gin-gonic/gin"
)

// maxPayloadBytes bounds webhook bodies; Meta batches stay far below this.
const maxPayloadBytes = 1 << 20

const signatureHeader = "X-Hub-Signature-256"

// SignatureMiddleware verifies the X-Hub-Signature-256 header against the
// raw body and restores the body for the handler. Verification is skipped
// when no app secret is configured.
func SignatureMiddleware(appSecret string, log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxPayloadBytes+1))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
			return
		}
		if len(body) > maxPayloadBytes {
			c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, gin.H{"error": "payload too large"})
			return
		}

		if appSecret != "" && !whatsapp.VerifySignature(appSecret, body, c.GetHeader(signatureHeader)) {
			log.Warn("webhook signature mismatch", "ip", c.ClientIP())
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid signature"})
			return
		}

		c.Request.Body = io.NopCloser(bytes.NewReader(body))
		c.Next()
	}
}
