package health

import (
	"net/http"
	"sync/atomic"
	"time"

	"github.com/oakline/atrium/internal/infrastructure/json"
)

var (
	startTime       = time.Now()
	healthy   int32 = 1 // 1 = healthy, 0 = unhealthy
)

type Handler struct{}

func NewHandler() *Handler {
	return &Handler{}
}

func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	resp := healthResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Uptime:    time.Since(startTime).Round(time.Second).String(),
	}

	if atomic.LoadInt32(&healthy) == 0 {
		status = http.StatusServiceUnavailable
		resp.Status = "unhealthy"
	}

	json.Write(w, status, resp)
}

// SetUnhealthy flips readiness, used while draining during shutdown.
func SetUnhealthy() {
	atomic.StoreInt32(&healthy, 0)
}
