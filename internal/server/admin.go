package server

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	paymentdomain "github.com/smallbiznis/paysync/internal/payment/domain"
	"github.com/smallbiznis/paysync/pkg/db/pagination"
)

// AdminTokenRequired authenticates operator requests with the static bearer
// token from ADMIN_API_TOKEN. An unset token closes the admin surface.
func (s *Server) AdminTokenRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		expected := strings.TrimSpace(s.cfg.AdminAPIToken)
		if expected == "" {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		header := strings.TrimSpace(c.GetHeader("Authorization"))
		parts := strings.Fields(header)
		if len(parts) != 2 || parts[0] != "Bearer" || strings.TrimSpace(parts[1]) == "" {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		if subtle.ConstantTimeCompare([]byte(parts[1]), []byte(expected)) != 1 {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		c.Next()
	}
}

type listWebhookEventsQuery struct {
	pagination.Pagination
	Provider string `form:"provider"`
	OrderID  string `form:"order_id"`
}

// ListWebhookEvents pages through the delivery log, newest first.
func (s *Server) ListWebhookEvents(c *gin.Context) {
	var query listWebhookEventsQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if query.PageSize < 0 {
		AbortWithError(c, newValidationError("page_size", "invalid_page_size", "page_size must be positive"))
		return
	}

	resp, err := s.webhookSvc.ListEvents(c.Request.Context(), paymentdomain.ListEventsFilter{
		Provider: strings.TrimSpace(query.Provider),
		OrderID:  strings.TrimSpace(query.OrderID),
	}, query.Pagination)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}
