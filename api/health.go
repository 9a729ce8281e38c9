package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kbukum/whisper-gateway/resilience"
)

// Health statuses.
const (
	StatusOK      = "ok"
	StatusLoading = "loading"
)

// HealthResponse is the /v1/health body. AcceleratorVersion is null when
// no accelerator runtime was found.
type HealthResponse struct {
	Status               string            `json:"status"`
	Device               string            `json:"device,omitempty"`
	Model                string            `json:"model,omitempty"`
	ComputeType          string            `json:"compute_type,omitempty"`
	AcceleratorAvailable bool              `json:"accelerator_available"`
	AcceleratorVersion   *string           `json:"accelerator_version"`
	FallbackReason       string            `json:"fallback_reason,omitempty"`
	Gate                 *resilience.Stats `json:"gate,omitempty"`
}

// Health handles GET /v1/health: 200 once the model is loaded, 503 with
// status "loading" before.
func (h *Handler) Health(c *gin.Context) {
	handle, probe := h.current()
	if handle == nil {
		c.JSON(http.StatusServiceUnavailable, HealthResponse{Status: StatusLoading})
		return
	}

	profile := handle.Profile()
	stats := h.gate.Stats()
	resp := HealthResponse{
		Status:               StatusOK,
		Device:               string(profile.Backend),
		Model:                handle.Model(),
		ComputeType:          string(profile.Precision),
		AcceleratorAvailable: probe.Present,
		FallbackReason:       profile.Reason,
		Gate:                 &stats,
	}
	if probe.Runtime != "" {
		v := probe.Runtime
		resp.AcceleratorVersion = &v
	}
	c.JSON(http.StatusOK, resp)
}
