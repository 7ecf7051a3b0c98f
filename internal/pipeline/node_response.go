package pipeline

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/reachby3c/engagement-agent/internal/llm"
)

const responseGenerationSystemPrompt = `You write three variants of an empathetic, non-promotional reply to a social media post: a pure-value reply, a soft-CTA reply, and a fully contextual reply. Respond with ONLY valid JSON.`

type responseLLMOutput struct {
	ValueFirst string `json:"value_first"`
	SoftCTA    string `json:"soft_cta"`
	Contextual string `json:"contextual"`
}

// responseGeneration is node 4. This node is never reached when
// risk.risk_level == blocked (the driver routes to handle_blocked first),
// so the risk level is used exactly as scored.
func (s *Skills) responseGeneration(ctx context.Context, state State) (State, decision) {
	if state.Risk == nil {
		state.Error = "response_generation: missing risk"
		return state, decisionErr
	}

	prompt := fmt.Sprintf(
		"Post:\n---\n%s\n---\nProblem category: %s\nRisk level: %s\nWrite value_first, soft_cta, and contextual reply variants as JSON: {\"value_first\":\"...\",\"soft_cta\":\"...\",\"contextual\":\"...\"}",
		state.Text, signalCategoryOrEmpty(state), state.Risk.RiskLevel,
	)

	raw, err := s.LLM.ChatJSON(ctx, llm.ChatRequest{
		Model:       s.Model,
		Temperature: s.Temp,
		MaxTokens:   s.MaxToken,
		Messages: []llm.Message{
			{Role: "system", Content: responseGenerationSystemPrompt},
			{Role: "user", Content: prompt},
		},
	})
	if err != nil {
		state.Error = "response_generation: " + err.Error()
		return state, decisionErr
	}

	var out responseLLMOutput
	if jsonErr := json.Unmarshal([]byte(raw), &out); jsonErr != nil {
		state.Error = "response_generation: decode: " + jsonErr.Error()
		return state, decisionErr
	}

	resp := &Responses{
		ValueFirst: out.ValueFirst,
		SoftCTA:    out.SoftCTA,
		Contextual: out.Contextual,
	}
	resp.SelectedResponse, resp.SelectedType = selectResponse(state.Risk.RiskLevel, resp)
	state.Responses = resp
	return state, decisionOK
}

// selectResponse implements the invariant: selected_type is determined
// solely by the incoming risk_level.
func selectResponse(level RiskLevel, r *Responses) (string, string) {
	switch level {
	case RiskHigh:
		return r.ValueFirst, "value_first"
	case RiskMedium:
		return r.SoftCTA, "soft_cta"
	default:
		return r.Contextual, "contextual"
	}
}

func signalCategoryOrEmpty(state State) ProblemCategory {
	if state.Signal == nil {
		return CategoryOther
	}
	return state.Signal.ProblemCategory
}
