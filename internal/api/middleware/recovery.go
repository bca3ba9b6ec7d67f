package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/helion-os/helion/internal/kernel/kerr"
)

// Recovery converts panics into 500 responses. A kerr.InvariantViolation
// panic means kernel state is corrupt; the response names the subsystem so
// the failure is diagnosable from the client side, and the logger records
// the full detail.
func Recovery(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			r := recover()
			if r == nil {
				return
			}
			if v, ok := r.(kerr.InvariantViolation); ok {
				log.Error("kernel invariant violation",
					zap.String("subsystem", v.Subsystem),
					zap.String("detail", v.Detail),
					zap.String("path", c.Request.URL.Path),
				)
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
					"error":     "kernel invariant violation",
					"subsystem": v.Subsystem,
				})
				return
			}
			log.Error("panic recovered",
				zap.Any("panic", r),
				zap.String("path", c.Request.URL.Path),
			)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"error": "internal server error",
			})
		}()
		c.Next()
	}
}
