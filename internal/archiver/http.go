package archiver

import (
	"context"
	"time"

	"github.com/danielgtaylor/huma/v2"
)

// Handlers exposes the Archiver's health check endpoint.
type Handlers struct {
	queue     *Queue
	startTime time.Time
}

// NewHandlers returns Handlers bound to queue.
func NewHandlers(queue *Queue) *Handlers {
	return &Handlers{queue: queue, startTime: time.Now()}
}

// Register wires the health endpoint onto api.
func (h *Handlers) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "getArchiverHealth",
		Method:      "GET",
		Path:        "/healthz",
		Summary:     "Health check",
		Description: "Reports queue depth and process uptime",
		Tags:        []string{"System"},
	}, h.getHealth)
}

// HealthInput is the input for the health check endpoint.
type HealthInput struct{}

// HealthOutput is the output for the health check endpoint.
type HealthOutput struct {
	Body struct {
		Status        string  `json:"status"`
		UptimeSeconds float64 `json:"uptime_seconds"`
		QueueDepth    int     `json:"queue_depth"`
	}
}

func (h *Handlers) getHealth(_ context.Context, _ *HealthInput) (*HealthOutput, error) {
	out := &HealthOutput{}
	out.Body.Status = "healthy"
	out.Body.UptimeSeconds = time.Since(h.startTime).Seconds()
	out.Body.QueueDepth = h.queue.Len()
	return out, nil
}
