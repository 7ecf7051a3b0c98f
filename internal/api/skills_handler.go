package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/reachby3c/engagement-agent/internal/pipeline"
	"github.com/reachby3c/engagement-agent/pkg/response"
)

// SkillsHandler backs POST /skills/{skill}: each pipeline stage exposed as
// its own endpoint, taking whatever upstream state that stage reads and
// returning the stage's own output.
type SkillsHandler struct {
	skills *pipeline.Skills
}

func NewSkillsHandler(skills *pipeline.Skills) *SkillsHandler {
	return &SkillsHandler{skills: skills}
}

func (h *SkillsHandler) RegisterRoutes(r chi.Router) {
	r.Post("/skills/{skill}", h.Run)
}

var skillNodes = map[string]pipeline.NodeName{
	"signal-detection":    pipeline.NodeSignalDetection,
	"risk-scoring":        pipeline.NodeRiskScoring,
	"response-generation": pipeline.NodeResponseGeneration,
	"cta-classifier":      pipeline.NodeCTAClassifier,
	"cts-decision":        pipeline.NodeCTSDecision,
}

type skillRequest struct {
	Text          string              `json:"text"`
	Platform      string              `json:"platform"`
	TenantContext map[string]any      `json:"tenant_context"`
	Signal        *pipeline.Signal    `json:"signal"`
	Risk          *pipeline.Risk      `json:"risk"`
	Responses     *pipeline.Responses `json:"responses"`
	CTA           *pipeline.CTA       `json:"cta"`
}

func (h *SkillsHandler) Run(w http.ResponseWriter, r *http.Request) {
	skill := chi.URLParam(r, "skill")
	node, ok := skillNodes[skill]
	if !ok {
		response.Error(w, http.StatusNotFound, "unknown skill", nil)
		return
	}

	var req skillRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	state := pipeline.State{
		Text:          req.Text,
		Platform:      req.Platform,
		TenantContext: req.TenantContext,
		Signal:        req.Signal,
		Risk:          req.Risk,
		Responses:     req.Responses,
		CTA:           req.CTA,
	}

	next, ok := h.skills.RunNode(r.Context(), node, state)
	if !ok {
		response.JSON(w, http.StatusOK, analyzeResponse{Error: next.Error, Blocked: next.Blocked})
		return
	}
	response.JSON(w, http.StatusOK, analyzeResponse{
		Signal:    next.Signal,
		Risk:      next.Risk,
		Responses: next.Responses,
		CTA:       next.CTA,
		CTS:       next.CTS,
		Blocked:   next.Blocked,
		Error:     next.Error,
	})
}
