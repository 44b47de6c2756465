package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	// RequestIDHeader is the HTTP header used to propagate the request identifier.
	RequestIDHeader = "X-Request-ID"

	// RequestIDKey is the gin.Context key holding the request ID.
	RequestIDKey = "request_id"
)

// maxRequestIDLength bounds caller-supplied IDs before they reach logs and audit metadata.
const maxRequestIDLength = 128

// RequestIDMiddleware ensures every request carries an X-Request-ID. An inbound header set by
// a load balancer or caller is reused; otherwise a UUID v4 is generated. The ID is stored under
// RequestIDKey and echoed in the response so clients can correlate with server logs.
//
// Register it before MetricsMiddleware and LoggerMiddleware so every log line carries the ID.
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" || len(id) > maxRequestIDLength {
			id = uuid.New().String()
		}

		c.Set(RequestIDKey, id)
		c.Header(RequestIDHeader, id)

		c.Next()
	}
}

// RequestID returns the ID assigned by RequestIDMiddleware, or "".
func RequestID(c *gin.Context) string {
	return c.GetString(RequestIDKey)
}
