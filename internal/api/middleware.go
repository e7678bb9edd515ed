// Package api exposes the generation cache, mastery model and study
// planner over HTTP.
package api

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/example/mindmentor/internal/ai"
	"github.com/example/mindmentor/pkg/models"
)

// RequestLogger logs one line per request with slog
func RequestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		attrs := []any{
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"latency", time.Since(start),
			"client_ip", c.ClientIP(),
		}
		if last := c.Errors.Last(); last != nil {
			attrs = append(attrs, "error", last.Error())
		}
		switch {
		case c.Writer.Status() >= http.StatusInternalServerError:
			logger.Error("request", attrs...)
		case c.Writer.Status() >= http.StatusBadRequest:
			logger.Warn("request", attrs...)
		default:
			logger.Info("request", attrs...)
		}
	}
}

// statusFor maps domain errors onto HTTP status codes
func statusFor(err error) int {
	var pe *ai.ProviderError
	var ge *ai.GenerationError
	switch {
	case errors.Is(err, models.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrKeyConflict), errors.Is(err, models.ErrDuplicateReview):
		return http.StatusConflict
	case errors.As(err, &pe):
		if pe.Kind == ai.ProviderTimeout {
			return http.StatusGatewayTimeout
		}
		return http.StatusBadGateway
	case errors.As(err, &ge):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// abortWithError records err on the context and writes the JSON error body
func abortWithError(c *gin.Context, err error) {
	status := statusFor(err)
	_ = c.Error(err)
	body := gin.H{"error": err.Error()}
	var ge *ai.GenerationError
	if errors.As(err, &ge) {
		body["reason"] = ge.Reason
	}
	c.AbortWithStatusJSON(status, body)
}
