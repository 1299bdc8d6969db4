package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// Timeout returns a Gin middleware that attaches a deadline to the request
// context. The deadline flows into the outbound Directions call, which is
// aborted when it fires. The handler chain runs synchronously, so gin.Context
// access stays single-threaded.
//
// If the deadline fired and the handler wrote nothing, a 504 is sent.
// A handler blocked on something that ignores its context cannot be
// interrupted.
func Timeout(d time.Duration, log logrus.FieldLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), d)
		defer cancel()

		c.Request = c.Request.WithContext(ctx)

		c.Next()

		if ctx.Err() != nil && !c.Writer.Written() {
			log.WithFields(logrus.Fields{
				"request_id": c.GetString(RequestIDKey),
				"path":       c.Request.URL.Path,
				"timeout":    d.String(),
			}).Warn("request timed out")
			c.AbortWithStatusJSON(http.StatusGatewayTimeout, gin.H{
				"error": "request timed out",
			})
		}
	}
}
