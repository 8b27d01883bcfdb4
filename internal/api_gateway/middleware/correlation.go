package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	// CorrelationIDHeader carries the correlation ID between services
	CorrelationIDHeader = "X-Correlation-ID"

	// CorrelationIDKey stores the correlation ID in the gin context
	CorrelationIDKey = "correlation_id"

	// maxCorrelationIDLength bounds inbound values; the ID is copied into
	// outbox rows and ledger entries, so an oversized one is replaced
	maxCorrelationIDLength = 128
)

// CorrelationID tags every request with an identifier that follows the
// settlement through the saga, the outbox and the ledger. An inbound header
// value is reused so callers can correlate across retries.
func CorrelationID() gin.HandlerFunc {
	return func(c *gin.Context) {
		correlationID := c.GetHeader(CorrelationIDHeader)
		if correlationID == "" || len(correlationID) > maxCorrelationIDLength {
			correlationID = uuid.New().String()
		}

		c.Header(CorrelationIDHeader, correlationID)
		c.Set(CorrelationIDKey, correlationID)

		c.Next()
	}
}

// GetCorrelationID retrieves the correlation ID from the gin context if present
func GetCorrelationID(c *gin.Context) string {
	if id, exists := c.Get(CorrelationIDKey); exists {
		if correlationID, ok := id.(string); ok {
			return correlationID
		}
	}
	return ""
}
