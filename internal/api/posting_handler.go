package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/reachby3c/engagement-agent/internal/automation"
	"github.com/reachby3c/engagement-agent/internal/domain/organization"
	"github.com/reachby3c/engagement-agent/internal/pipeline"
	"github.com/reachby3c/engagement-agent/internal/platform/apperrors"
	"github.com/reachby3c/engagement-agent/internal/posting"
	"github.com/reachby3c/engagement-agent/pkg/response"
)

// PostingHandler fronts the Posting Queue, the Org Rate-Limit Manager, the
// Eligibility Checker, and the Auto-Post Worker's periodic task runner.
type PostingHandler struct {
	queue    *posting.Queue
	limiter  *automation.OrgLimitManager
	checker  *automation.Checker
	runner   *automation.TaskRunner
	validate *validator.Validate
}

func NewPostingHandler(queue *posting.Queue, limiter *automation.OrgLimitManager, checker *automation.Checker, runner *automation.TaskRunner) *PostingHandler {
	return &PostingHandler{queue: queue, limiter: limiter, checker: checker, runner: runner, validate: validator.New()}
}

func (h *PostingHandler) RegisterRoutes(r chi.Router) {
	r.Post("/posting/post", h.enqueueAt(100))
	r.Post("/posting/queue", h.enqueueAt(0))
	r.Delete("/posting/queue/{item_id}", h.Cancel)
	r.Get("/posting/queue/stats", h.Stats)
	r.Get("/posting/status/{response_id}", h.StatusByResponse)
	r.Post("/posting/automation/eligibility", h.Eligibility)
	r.Get("/posting/automation/status/{organization_id}", h.AutomationStatus)
}

func (h *PostingHandler) RegisterPrivilegedRoutes(r chi.Router) {
	r.Put("/posting/automation/limits/{organization_id}", h.UpdateLimits)
	r.Post("/posting/automation/enable", h.setAutomation(true))
	r.Post("/posting/automation/disable", h.setAutomation(false))
	r.Post("/posting/automation/trigger", h.Trigger)
}

type enqueueRequest struct {
	ResponseID     string `json:"response_id" validate:"required"`
	OrganizationID string `json:"organization_id" validate:"required"`
	Platform       string `json:"platform" validate:"required"`
	Target         string `json:"target"`
	TargetURL      string `json:"target_url" validate:"required"`
	ResponseText   string `json:"response_text" validate:"required"`
	Priority       int    `json:"priority"`
}

// enqueueAt returns a handler that enqueues the decoded request, overriding
// priority with floor when the request did not set one (POST /posting/post
// enqueues at the highest priority band, matching its "post this now"
// intent; POST /posting/queue keeps whatever priority the caller supplied).
func (h *PostingHandler) enqueueAt(floor int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req enqueueRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "invalid request body", err)
			return
		}
		if err := h.validate.Struct(req); err != nil {
			response.Error(w, http.StatusBadRequest, "validation failed", err)
			return
		}

		priority := req.Priority
		if priority <= 0 {
			priority = floor
		}

		item, err := h.queue.Enqueue(posting.EnqueueRequest{
			ResponseID:     req.ResponseID,
			OrganizationID: req.OrganizationID,
			Platform:       req.Platform,
			Target:         req.Target,
			TargetURL:      req.TargetURL,
			ResponseText:   req.ResponseText,
			Priority:       priority,
		})
		if err != nil {
			response.Error(w, http.StatusTooManyRequests, "posting queue is full", err)
			return
		}
		response.JSON(w, http.StatusAccepted, item)
	}
}

func (h *PostingHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	itemID := chi.URLParam(r, "item_id")
	if err := h.queue.Cancel(itemID); err != nil {
		switch {
		case errors.Is(err, apperrors.ErrNotFound):
			response.Error(w, http.StatusNotFound, "queue item not found", err)
		default:
			response.Error(w, http.StatusConflict, "queue item cannot be cancelled", err)
		}
		return
	}
	response.Success(w, map[string]string{"status": "cancelled"})
}

func (h *PostingHandler) Stats(w http.ResponseWriter, r *http.Request) {
	response.Success(w, h.queue.Stats())
}

// StatusByResponse looks up the live queue item for an upstream response
// ID. Terminal items leave the queue, so a 404 here means either "never
// queued" or "already finished".
func (h *PostingHandler) StatusByResponse(w http.ResponseWriter, r *http.Request) {
	responseID := chi.URLParam(r, "response_id")
	item, ok := h.queue.FindByResponseID(responseID)
	if !ok {
		response.Error(w, http.StatusNotFound, "no live queue item for response", nil)
		return
	}
	response.Success(w, item)
}

type eligibilityRequest struct {
	ResponseID     string  `json:"response_id"`
	OrganizationID string  `json:"organization_id" validate:"required"`
	Platform       string  `json:"platform" validate:"required"`
	Target         string  `json:"target"`
	Status         string  `json:"status"`
	CTSScore       float64 `json:"cts_score"`
	RiskLevel      string  `json:"risk_level"`
	CTALevel       int     `json:"cta_level"`
	CanAutoPost    bool    `json:"can_auto_post"`
}

func (h *PostingHandler) Eligibility(w http.ResponseWriter, r *http.Request) {
	var req eligibilityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		response.Error(w, http.StatusBadRequest, "validation failed", err)
		return
	}

	limits, ok := h.limiter.GetLimits(req.OrganizationID)
	if !ok {
		response.Error(w, http.StatusNotFound, "organization has no configured limits", nil)
		return
	}

	result := h.checker.Check(automation.ResponseData{
		ID: req.ResponseID, OrgID: req.OrganizationID, Platform: req.Platform, Target: req.Target,
		Status:      automation.ResponseStatus(req.Status),
		CTSScore:    req.CTSScore,
		RiskLevel:   pipeline.RiskLevel(req.RiskLevel),
		CTALevel:    req.CTALevel,
		CanAutoPost: req.CanAutoPost,
	}, limits)
	response.Success(w, result)
}

func (h *PostingHandler) AutomationStatus(w http.ResponseWriter, r *http.Request) {
	orgID := chi.URLParam(r, "organization_id")
	limits, ok := h.limiter.GetLimits(orgID)
	if !ok {
		response.Error(w, http.StatusNotFound, "organization has no configured limits", nil)
		return
	}
	response.Success(w, map[string]any{
		"organization_id":   orgID,
		"auto_post_enabled": limits.AutoPostEnabled,
		"limits":            limits,
	})
}

func (h *PostingHandler) UpdateLimits(w http.ResponseWriter, r *http.Request) {
	orgID := chi.URLParam(r, "organization_id")
	var limits organization.Limits
	if err := json.NewDecoder(r.Body).Decode(&limits); err != nil {
		response.Error(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	h.limiter.SetLimits(orgID, limits)
	response.Success(w, map[string]any{"organization_id": orgID, "limits": limits})
}

// setAutomation returns a handler that flips AutoPostEnabled for the
// organization named in the request body, leaving every other limit as-is.
func (h *PostingHandler) setAutomation(enabled bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			OrganizationID string `json:"organization_id" validate:"required"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "invalid request body", err)
			return
		}
		limits, ok := h.limiter.GetLimits(req.OrganizationID)
		if !ok {
			response.Error(w, http.StatusNotFound, "organization has no configured limits", nil)
			return
		}
		limits.AutoPostEnabled = enabled
		h.limiter.SetLimits(req.OrganizationID, limits)
		response.Success(w, map[string]any{"organization_id": req.OrganizationID, "auto_post_enabled": enabled})
	}
}

// Trigger fires the auto-post worker's periodic task immediately, backing
// POST /posting/automation/trigger.
func (h *PostingHandler) Trigger(w http.ResponseWriter, r *http.Request) {
	if err := h.runner.TriggerNow(r.Context(), "auto_post_worker"); err != nil {
		response.Error(w, http.StatusInternalServerError, "trigger failed", err)
		return
	}
	response.Success(w, map[string]string{"status": "triggered"})
}
