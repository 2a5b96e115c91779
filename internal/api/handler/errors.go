package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/AddiPii/AddiPi-Queue-Service/internal/admin"
	"github.com/AddiPii/AddiPi-Queue-Service/internal/api/dto"
	"github.com/AddiPii/AddiPi-Queue-Service/internal/domain"
	"github.com/AddiPii/AddiPi-Queue-Service/internal/scheduler"
)

// statusFor maps a collaborator error onto an HTTP status and the message
// returned to the client. The message is the error text itself; none of the
// collaborator errors carry stack traces. fallback covers an empty message.
func statusFor(err error, fallback string) (int, string) {
	msg := err.Error()
	if msg == "" {
		msg = fallback
	}

	var verr *scheduler.ValidationError
	switch {
	case errors.As(err, &verr):
		return http.StatusBadRequest, msg
	case domain.IsUnavailable(err), errors.Is(err, admin.ErrUnavailable):
		return http.StatusServiceUnavailable, msg
	default:
		return http.StatusInternalServerError, msg
	}
}

// respondError logs err and writes the mapped error response
func respondError(c *gin.Context, logger *slog.Logger, err error, fallback string) {
	code, msg := statusFor(err, fallback)

	attrs := []any{
		slog.String("path", c.Request.URL.Path),
		slog.Int("status", code),
		slog.Any("error", err),
	}
	if code >= http.StatusInternalServerError {
		logger.Error(fallback, attrs...)
	} else {
		logger.Warn(fallback, attrs...)
	}

	_ = c.Error(err)
	c.JSON(code, dto.ErrorResponse{Error: msg})
}
