package monitoring

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

// Middleware creates a Gin middleware for metrics collection
func Middleware(metrics *Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}

		c.Next()

		status := strconv.Itoa(c.Writer.Status())
		metrics.RecordHTTPRequest(c.Request.Method, path, status, time.Since(start))
	}
}

// Timer measures a kernel's compute time
type Timer struct {
	start   time.Time
	metrics *Metrics
	kernel  string
}

// NewTimer creates a new timer
func NewTimer(metrics *Metrics, kernel string) *Timer {
	return &Timer{
		start:   time.Now(),
		metrics: metrics,
		kernel:  kernel,
	}
}

// Stop stops the timer and records the duration
func (t *Timer) Stop() time.Duration {
	d := time.Since(t.start)
	if t.metrics != nil {
		t.metrics.RecordKernel(t.kernel, d)
	}
	return d
}
