package api

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/reachby3c/engagement-agent/internal/crawl"
	"github.com/reachby3c/engagement-agent/internal/posting"
)

// HealthHandler backs the liveness/readiness routes.
// /health/live only proves the process is scheduling goroutines at all;
// /health/ready additionally proves the posting queue and crawl scheduler
// are both up, since those are the two background loops a load balancer
// should stop sending traffic for if either has wedged.
type HealthHandler struct {
	queue     *posting.Queue
	scheduler *crawl.Scheduler
}

func NewHealthHandler(queue *posting.Queue, scheduler *crawl.Scheduler) *HealthHandler {
	return &HealthHandler{queue: queue, scheduler: scheduler}
}

func (h *HealthHandler) RegisterRoutes(r chi.Router) {
	r.Get("/health", h.Health)
	r.Get("/health/live", h.Live)
	r.Get("/health/ready", h.Ready)
}

func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}

func (h *HealthHandler) Live(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"live"}`))
}

func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	stats := h.queue.Stats()
	jobs := h.scheduler.GetStatus()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `{"status":"ready","queue_depth":%d,"crawl_jobs":%d}`, stats.Queued, len(jobs))
}
