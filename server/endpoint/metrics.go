package endpoint

import (
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/kbukum/whisper-gateway/resilience"
)

// GateReporter returns the current model gate occupancy.
type GateReporter func() resilience.Stats

const mib = 1 << 20

// Metrics reports process memory, goroutines and, when gate is set, the
// model gate occupancy. It is a quick look for operators without an OTLP
// collector.
func Metrics(gate GateReporter) gin.HandlerFunc {
	return func(c *gin.Context) {
		var m runtime.MemStats
		runtime.ReadMemStats(&m)

		body := gin.H{
			"timestamp":  time.Now().UTC().Format(time.RFC3339),
			"uptime":     time.Since(startTime).Round(time.Second).String(),
			"goroutines": runtime.NumGoroutine(),
			"memory": gin.H{
				"heap_alloc_mb": m.HeapAlloc / mib,
				"sys_mb":        m.Sys / mib,
				"gc_runs":       m.NumGC,
			},
		}
		if gate != nil {
			body["gate"] = gate()
		}
		c.JSON(http.StatusOK, body)
	}
}
