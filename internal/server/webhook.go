package server

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	webhookdomain "github.com/smallbiznis/cabinet/internal/webhook/domain"
)

const headerStripeSignature = "Stripe-Signature"

// HandleWebhook acknowledges every delivery the gateway does not ask to be
// retried. Bad signatures answer 400 and handler failures 500.
func (s *Server) HandleWebhook(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.cfg.WebhookMaxBodyBytes)
	payload, err := io.ReadAll(c.Request.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "payload too large"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
		return
	}

	outcome, err := s.gateway.Ingest(c.Request.Context(), payload, c.GetHeader(headerStripeSignature))
	c.Set("webhook_outcome", string(outcome))
	switch {
	case errors.Is(err, webhookdomain.ErrInvalidSignature):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid signature"})
	case err != nil:
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "webhook handler failed"})
	default:
		c.JSON(http.StatusOK, gin.H{"received": true})
	}
}
