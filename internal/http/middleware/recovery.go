package middleware

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"dropoff/internal/obs"
)

func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if v := recover(); v != nil {
				log.Printf("request_id=%s panic: %v", obs.RequestID(c.Request.Context()), v)
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			}
		}()
		c.Next()
	}
}
