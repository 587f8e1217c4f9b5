// README: Access log with a per-request id propagated through the request context.
package middleware

import (
	"log"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"dropoff/internal/obs"
)

const RequestIDHeader = "X-Request-ID"

func Logging() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		rid := c.GetHeader(RequestIDHeader)
		if rid == "" {
			rid = uuid.NewString()
		}
		c.Request = c.Request.WithContext(obs.WithRequestID(c.Request.Context(), rid))
		c.Header(RequestIDHeader, rid)

		c.Next()

		log.Printf("request_id=%s %s %s status=%d dur=%s", rid, c.Request.Method, c.FullPath(), c.Writer.Status(), time.Since(start))
	}
}
