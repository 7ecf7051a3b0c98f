package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/reachby3c/engagement-agent/internal/crawl"
	"github.com/reachby3c/engagement-agent/pkg/response"
)

// CrawlHandler fronts the Crawl Scheduler: ad-hoc search/monitor, run-now,
// status, health, and the privileged control routes.
type CrawlHandler struct {
	scheduler *crawl.Scheduler
	validate  *validator.Validate
}

func NewCrawlHandler(scheduler *crawl.Scheduler) *CrawlHandler {
	return &CrawlHandler{scheduler: scheduler, validate: validator.New()}
}

// RegisterRoutes adds the read-only/run routes. Privileged scheduler
// control routes are registered separately via RegisterPrivilegedRoutes so
// the caller can wrap them in RequirePrivileged.
func (h *CrawlHandler) RegisterRoutes(r chi.Router) {
	r.Get("/crawlers/status", h.Status)
	r.Get("/crawlers/health/{platform}", h.Health)
	r.Post("/crawlers/run/{config_name}", h.RunNow)
	r.Post("/crawlers/{platform}/search", h.Search)
	r.Post("/crawlers/{platform}/monitor", h.Monitor)
}

func (h *CrawlHandler) RegisterPrivilegedRoutes(r chi.Router) {
	r.Post("/crawlers/schedule", h.Schedule)
	r.Post("/crawlers/scheduler/start", h.notSupported)
	r.Post("/crawlers/scheduler/stop", h.Stop)
	r.Post("/crawlers/scheduler/pause", h.Pause)
	r.Post("/crawlers/scheduler/resume", h.Resume)
}

type searchRequest struct {
	Keywords []string `json:"keywords"`
	Sources  []string `json:"sources"`
	Limit    int      `json:"limit"`
}

// Search runs a one-off keyword search against a platform's crawler,
// outside the scheduler's job table.
func (h *CrawlHandler) Search(w http.ResponseWriter, r *http.Request) {
	platform := chi.URLParam(r, "platform")
	crawler, ok := h.scheduler.CrawlerFor(platform)
	if !ok {
		response.Error(w, http.StatusNotFound, "no crawler registered for platform", nil)
		return
	}

	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if len(req.Keywords) == 0 {
		response.Error(w, http.StatusBadRequest, "keywords are required", nil)
		return
	}
	if req.Limit <= 0 {
		req.Limit = 25
	}

	if err := crawler.Initialize(r.Context()); err != nil {
		response.Error(w, http.StatusServiceUnavailable, "crawler initialization failed", err)
		return
	}
	result, err := crawler.Search(r.Context(), req.Keywords, req.Sources, req.Limit, nil)
	if err != nil {
		response.Error(w, http.StatusInternalServerError, "crawl search failed", err)
		return
	}
	response.Success(w, result)
}

// Monitor fetches the most recent content from a platform's sources
// without a keyword filter.
func (h *CrawlHandler) Monitor(w http.ResponseWriter, r *http.Request) {
	platform := chi.URLParam(r, "platform")
	crawler, ok := h.scheduler.CrawlerFor(platform)
	if !ok {
		response.Error(w, http.StatusNotFound, "no crawler registered for platform", nil)
		return
	}

	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if req.Limit <= 0 {
		req.Limit = 25
	}

	if err := crawler.Initialize(r.Context()); err != nil {
		response.Error(w, http.StatusServiceUnavailable, "crawler initialization failed", err)
		return
	}
	result, err := crawler.GetRecent(r.Context(), req.Sources, req.Limit, nil)
	if err != nil {
		response.Error(w, http.StatusInternalServerError, "crawl monitor failed", err)
		return
	}
	response.Success(w, result)
}

type scheduleRequest struct {
	Name      string   `json:"name" validate:"required"`
	Platform  string   `json:"platform" validate:"required"`
	Keywords  []string `json:"keywords" validate:"required,min=1"`
	Sources   []string `json:"sources"`
	Frequency string   `json:"frequency" validate:"required"`
	Limit     int      `json:"limit"`
	Enabled   bool     `json:"enabled"`
}

// Schedule registers a new named crawl config with the scheduler.
func (h *CrawlHandler) Schedule(w http.ResponseWriter, r *http.Request) {
	var req scheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		response.Error(w, http.StatusBadRequest, "validation failed", err)
		return
	}
	if req.Limit <= 0 {
		req.Limit = 25
	}

	err := h.scheduler.AddConfig(crawl.CrawlConfig{
		Name:      req.Name,
		Platform:  req.Platform,
		Keywords:  req.Keywords,
		Sources:   req.Sources,
		Frequency: crawl.Frequency(req.Frequency),
		Limit:     req.Limit,
		Enabled:   req.Enabled,
	})
	if err != nil {
		response.Error(w, http.StatusConflict, "could not register crawl config", err)
		return
	}

	status, _ := h.scheduler.GetJobStatus(req.Name)
	response.JSON(w, http.StatusCreated, status)
}

// notSupported answers scheduler/start: the scheduler is started once at
// process boot (cmd/agent/main.go) and tied to the process's own context,
// so a second start over HTTP has no well-defined semantics; pause/resume
// are the supported way to gate triggering without tearing down the loop.
func (h *CrawlHandler) notSupported(w http.ResponseWriter, r *http.Request) {
	response.Error(w, http.StatusConflict, "scheduler is already started by the host process; use pause/resume", nil)
}

func (h *CrawlHandler) Stop(w http.ResponseWriter, r *http.Request) {
	h.scheduler.Stop()
	response.Success(w, map[string]string{"status": "stopped"})
}

func (h *CrawlHandler) Pause(w http.ResponseWriter, r *http.Request) {
	h.scheduler.Pause()
	response.Success(w, map[string]string{"status": "paused"})
}

func (h *CrawlHandler) Resume(w http.ResponseWriter, r *http.Request) {
	h.scheduler.Resume()
	response.Success(w, map[string]string{"status": "running"})
}

func (h *CrawlHandler) Status(w http.ResponseWriter, r *http.Request) {
	jobs := h.scheduler.GetStatus()
	out := make(map[string]any, len(jobs))
	for name, j := range jobs {
		out[name] = map[string]any{
			"platform":        j.Config.Platform,
			"enabled":         j.Config.Enabled,
			"frequency":       j.Config.Frequency,
			"next_run_at":     j.NextRunAt,
			"last_run_at":     j.LastRunAt,
			"total_runs":      j.TotalRuns,
			"successful_runs": j.SuccessfulRuns,
			"failed_runs":     j.FailedRuns,
			"last_status":     j.LastStatus,
			"last_error":      j.LastError,
		}
	}
	response.Success(w, out)
}

func (h *CrawlHandler) Health(w http.ResponseWriter, r *http.Request) {
	platform := chi.URLParam(r, "platform")
	if err := h.scheduler.HealthCheck(r.Context(), platform); err != nil {
		response.JSON(w, http.StatusServiceUnavailable, map[string]any{
			"platform": platform, "healthy": false, "error": err.Error(),
		})
		return
	}
	response.Success(w, map[string]any{"platform": platform, "healthy": true})
}

func (h *CrawlHandler) RunNow(w http.ResponseWriter, r *http.Request) {
	configName := chi.URLParam(r, "config_name")
	result, err := h.scheduler.RunNow(r.Context(), configName)
	if err != nil {
		response.Error(w, http.StatusNotFound, "crawl config not found", err)
		return
	}
	response.Success(w, result)
}
