package tracing

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// HeaderTraceID is the propagation header, honored inbound and always set
// on responses.
const HeaderTraceID = "X-Trace-ID"

// HTTPMiddleware tags every request with a trace identifier and logs its
// outcome. Callers that supply their own X-Trace-ID keep it end to end.
func HTTPMiddleware(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := TraceID(c.GetHeader(HeaderTraceID))
		if id == "" {
			id = NewTraceID()
		}

		c.Request = c.Request.WithContext(WithTraceID(c.Request.Context(), id))
		c.Header(HeaderTraceID, string(id))

		start := time.Now()
		c.Next()

		log.Debug("request",
			zap.String("trace_id", string(id)),
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(start)),
		)
	}
}
