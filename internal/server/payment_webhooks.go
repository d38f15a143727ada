package server

import (
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	paymentdomain "github.com/smallbiznis/paysync/internal/payment/domain"
)

// maxWebhookBodyBytes bounds a single gateway delivery.
const maxWebhookBodyBytes = 1 << 20

// HandlePaymentWebhook passes the untouched request body to the webhook
// service; the signature is computed over these exact bytes.
func (s *Server) HandlePaymentWebhook(c *gin.Context) {
	provider := strings.TrimSpace(c.Param("provider"))
	payload, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBodyBytes))
	if err != nil || len(payload) == 0 {
		AbortWithError(c, invalidRequestError())
		return
	}

	result, err := s.webhookSvc.IngestWebhook(c.Request.Context(), provider, payload, c.Request.Header)
	if err != nil {
		c.Set("webhook_outcome", paymentdomain.OutcomeError)
		AbortWithError(c, err)
		return
	}

	c.Set("webhook_outcome", result.Outcome())
	c.JSON(http.StatusOK, result)
}
