package httpapi

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// correlationIDHeader and correlationIDKey name the request-correlation
// identifier used to tie an admin HTTP request's log lines together,
// adapted from the teacher's internal/common.CorrelationMiddleware.
const (
	correlationIDHeader = "X-Correlation-ID"
	correlationIDKey    = "correlation_id"
)

// correlationMiddleware returns a gin middleware that assigns or propagates
// a correlation ID, stamps it on the request context and response header,
// and logs the request's start and completion under it.
func correlationMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		correlationID := c.GetHeader(correlationIDHeader)
		if correlationID == "" {
			correlationID = uuid.New().String()
		}

		c.Header(correlationIDHeader, correlationID)
		c.Set(correlationIDKey, correlationID)
		c.Request = c.Request.WithContext(context.WithValue(c.Request.Context(), correlationIDKey, correlationID))

		logger.Debug("admin request started",
			zap.String("correlation_id", correlationID),
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path))

		c.Next()

		logger.Debug("admin request completed",
			zap.String("correlation_id", correlationID),
			zap.Int("status", c.Writer.Status()))
	}
}
