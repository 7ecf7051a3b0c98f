package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/reachby3c/engagement-agent/internal/pipeline"
	"github.com/reachby3c/engagement-agent/pkg/response"
)

// PipelineHandler backs POST /pipeline/analyze: the one full-run entry
// point into the Analysis Pipeline's six-node state graph.
type PipelineHandler struct {
	driver   *pipeline.Driver
	validate *validator.Validate
}

func NewPipelineHandler(driver *pipeline.Driver) *PipelineHandler {
	return &PipelineHandler{driver: driver, validate: validator.New()}
}

func (h *PipelineHandler) RegisterRoutes(r chi.Router) {
	r.Post("/pipeline/analyze", h.Analyze)
}

type analyzeRequest struct {
	Text          string         `json:"text" validate:"required"`
	Platform      string         `json:"platform" validate:"required,oneof=reddit twitter quora"`
	TenantContext map[string]any `json:"tenant_context"`
}

// analyzeResponse carries every stage output as optional (nil once the run
// terminates early), plus the terminal blocked/error flags.
type analyzeResponse struct {
	Signal    *pipeline.Signal    `json:"signal,omitempty"`
	Risk      *pipeline.Risk      `json:"risk,omitempty"`
	Responses *pipeline.Responses `json:"responses,omitempty"`
	CTA       *pipeline.CTA       `json:"cta,omitempty"`
	CTS       *pipeline.CTS       `json:"cts,omitempty"`
	Blocked   bool                `json:"blocked"`
	Error     string              `json:"error,omitempty"`
}

func (h *PipelineHandler) Analyze(w http.ResponseWriter, r *http.Request) {
	var req analyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		response.Error(w, http.StatusBadRequest, "validation failed", err)
		return
	}

	state := h.driver.Run(r.Context(), req.Text, req.Platform, req.TenantContext)

	status := http.StatusOK
	response.JSON(w, status, analyzeResponse{
		Signal:    state.Signal,
		Risk:      state.Risk,
		Responses: state.Responses,
		CTA:       state.CTA,
		CTS:       state.CTS,
		Blocked:   state.Blocked,
		Error:     state.Error,
	})
}
