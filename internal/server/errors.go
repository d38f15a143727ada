package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	commercedomain "github.com/smallbiznis/paysync/internal/commerce/domain"
	paymentdomain "github.com/smallbiznis/paysync/internal/payment/domain"
	"github.com/smallbiznis/paysync/pkg/db/pagination"
	"gorm.io/gorm"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type    string            `json:"type"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrConflict           = errors.New("conflict")
	ErrNotFound           = errors.New("not_found")
	ErrInvalidRequest     = errors.New("invalid_request")
	ErrRateLimited        = errors.New("rate_limited")
	ErrServiceUnavailable = errors.New("service_unavailable")
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{
			{
				Field:   field,
				Code:    code,
				Message: message,
			},
		},
	}
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}

	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	// Signature failures share the 400 status with payload errors.
	if errors.Is(err, paymentdomain.ErrInvalidSignature) {
		return http.StatusBadRequest, errorPayload{
			Type:    "invalid_signature",
			Message: "webhook signature verification failed",
		}
	}

	if isValidationError(err) {
		code := validationErrorCode(err)
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors: []ValidationError{
				{
					Field:   validationErrorField(code),
					Code:    code,
					Message: validationErrorMessage(code),
				},
			},
		}
	}

	switch {
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized, errorPayload{
			Type:    "unauthorized",
			Message: "unauthorized",
		}
	case errors.Is(err, paymentdomain.ErrOrderNotFound):
		return http.StatusNotFound, errorPayload{
			Type:    "order_not_found",
			Message: "order not found",
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	case errors.Is(err, ErrConflict),
		errors.Is(err, paymentdomain.ErrEventInProgress):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: "event is already being processed",
		}
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests, errorPayload{
			Type:    "rate_limited",
			Message: "too many requests",
		}
	case errors.Is(err, paymentdomain.ErrTransactionFailed):
		return http.StatusBadGateway, errorPayload{
			Type:    "transaction_registration_failed",
			Message: "commerce transaction registration failed",
		}
	case errors.Is(err, paymentdomain.ErrSyncFailed):
		return http.StatusBadGateway, errorPayload{
			Type:    "order_sync_failed",
			Message: "commerce order sync failed after capture",
		}
	case isUpstreamError(err):
		return http.StatusBadGateway, errorPayload{
			Type:    "upstream_error",
			Message: "commerce backend error",
		}
	case errors.Is(err, ErrServiceUnavailable):
		return http.StatusServiceUnavailable, errorPayload{
			Type:    "service_unavailable",
			Message: "service unavailable",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

// classifyErrorForLog reports the error type and code for request logs.
func classifyErrorForLog(err error) (string, string) {
	if err == nil {
		return "", ""
	}
	_, payload := mapError(err)
	code := payload.Type
	if len(payload.Errors) > 0 {
		code = payload.Errors[0].Code
	}
	return payload.Type, code
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

func isValidationError(err error) bool {
	switch {
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, pagination.ErrInvalidPageToken),
		errors.Is(err, paymentdomain.ErrInvalidProvider),
		errors.Is(err, paymentdomain.ErrInvalidPayload),
		errors.Is(err, paymentdomain.ErrUnknownPayloadShape),
		errors.Is(err, paymentdomain.ErrInvalidEvent),
		errors.Is(err, paymentdomain.ErrMissingCorrelationID),
		errors.Is(err, paymentdomain.ErrMissingPaymentID),
		errors.Is(err, paymentdomain.ErrInvalidCurrency),
		errors.Is(err, paymentdomain.ErrCurrencyMismatch),
		errors.Is(err, paymentdomain.ErrMissingAmount):
		return true
	default:
		return false
	}
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, paymentdomain.ErrProviderNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}

func isUpstreamError(err error) bool {
	var statusErr *commercedomain.StatusError
	if errors.As(err, &statusErr) {
		return true
	}
	return errors.Is(err, commercedomain.ErrInvalidResponse)
}

func validationErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrInvalidRequest):
		return "invalid_request"
	case errors.Is(err, pagination.ErrInvalidPageToken):
		return pagination.ErrInvalidPageToken.Error()
	default:
		for _, target := range paymentValidationErrors {
			if errors.Is(err, target) {
				return target.Error()
			}
		}
		return err.Error()
	}
}

var paymentValidationErrors = []error{
	paymentdomain.ErrInvalidProvider,
	paymentdomain.ErrInvalidPayload,
	paymentdomain.ErrUnknownPayloadShape,
	paymentdomain.ErrInvalidEvent,
	paymentdomain.ErrMissingCorrelationID,
	paymentdomain.ErrMissingPaymentID,
	paymentdomain.ErrInvalidCurrency,
	paymentdomain.ErrCurrencyMismatch,
	paymentdomain.ErrMissingAmount,
}

func validationErrorField(code string) string {
	switch code {
	case "invalid_request":
		return "request"
	case "missing_correlation_id":
		return "notes"
	case "missing_payment_id":
		return "payment_id"
	case "missing_amount":
		return "amount"
	case "currency_mismatch":
		return "currency"
	case "unknown_payload_shape", "invalid_event":
		return "payload"
	}
	if strings.HasPrefix(code, "invalid_") {
		return strings.TrimPrefix(code, "invalid_")
	}
	return ""
}

func validationErrorMessage(code string) string {
	switch code {
	case "invalid_request":
		return "invalid request"
	case "missing_correlation_id":
		return "payment is not linked to a commerce order"
	case "missing_amount":
		return "amount must be positive"
	case "currency_mismatch":
		return "event currency does not match order currency"
	case "unknown_payload_shape":
		return "payment entity not found in payload"
	default:
		return "invalid value"
	}
}
