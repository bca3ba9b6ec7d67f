package monitoring

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

// Middleware creates a Gin middleware for metrics collection.
func Middleware(metrics *Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		method := c.Request.Method

		c.Next()

		duration := time.Since(start)
		status := strconv.Itoa(c.Writer.Status())
		metrics.RecordHTTPRequest(method, path, status, duration)
	}
}

// SyscallTimer measures one syscall dispatch.
type SyscallTimer struct {
	start   time.Time
	metrics *Metrics
	name    string
}

// NewSyscallTimer starts timing a named syscall.
func NewSyscallTimer(metrics *Metrics, name string) *SyscallTimer {
	return &SyscallTimer{start: time.Now(), metrics: metrics, name: name}
}

// Stop records the elapsed time with the outcome status.
func (t *SyscallTimer) Stop(status string) {
	t.metrics.RecordSyscall(t.name, status, time.Since(t.start))
}
