package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/ErlanBelekov/newsletter/internal/requestid"
)

const requestIDHeader = "X-Request-ID"

// RequestID attaches a correlation id to the request context and echoes it
// in the response. An incoming X-Request-ID is kept only if requestid.Valid
// accepts it, so proxies can correlate but clients cannot inject log content.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if !requestid.Valid(id) {
			id = requestid.New()
		}

		c.Request = c.Request.WithContext(requestid.WithRequestID(c.Request.Context(), id))
		c.Header(requestIDHeader, id)
		c.Next()
	}
}
