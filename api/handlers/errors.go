package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/davibasa/Enter-Fellowship-sub001/internal/service/document"
	"github.com/davibasa/Enter-Fellowship-sub001/internal/service/extraction"
	"github.com/davibasa/Enter-Fellowship-sub001/internal/utils/validator"
	"github.com/davibasa/Enter-Fellowship-sub001/pkg/logger"
)

// StatusClientClosedRequest is the nginx convention for a caller that went away.
const StatusClientClosedRequest = 499

type ErrorResponse struct {
	Error   string                      `json:"error"`
	Message string                      `json:"message"`
	Details []validator.ValidationError `json:"details,omitempty"`
	TraceID string                      `json:"traceId,omitempty"`
}

func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, extraction.ErrInvalidRequest):
		return http.StatusBadRequest, "invalid_request"
	case errors.Is(err, extraction.ErrUpstreamUnavailable), errors.Is(err, document.ErrUnavailable):
		return http.StatusServiceUnavailable, "unavailable"
	case errors.Is(err, context.Canceled):
		return StatusClientClosedRequest, "canceled"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "timeout"
	case errors.Is(err, document.ErrNotFound):
		return http.StatusNotFound, "not_found"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

// handleError maps err to a status. Internal errors are logged with their
// cause and answered with a generic message.
func handleError(c *gin.Context, log logger.Logger, message string, err error) {
	status, code := statusFor(err)
	ctx := c.Request.Context()
	l := logger.FromContext(ctx, log).With(logger.String("path", c.Request.URL.Path))

	resp := ErrorResponse{Error: code, Message: message, TraceID: logger.TraceIDFromContext(ctx)}
	if status == http.StatusInternalServerError {
		l.Error(message, logger.Error(err))
	} else {
		l.Warn(message, logger.Error(err))
		resp.Message = err.Error()
	}

	var reqErr *validator.RequestError
	if errors.As(err, &reqErr) {
		resp.Details = reqErr.Errors
	}
	c.AbortWithStatusJSON(status, resp)
}

func badRequest(c *gin.Context, log logger.Logger, code, message string) {
	handleError(c, log, message, &validator.RequestError{
		Errors: []validator.ValidationError{{Code: code, Message: message}},
	})
}
