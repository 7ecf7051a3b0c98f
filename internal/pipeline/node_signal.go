package pipeline

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/reachby3c/engagement-agent/internal/llm"
)

const signalDetectionSystemPrompt = `You are an expert analyst specializing in identifying emotional signals and problem categories in social media posts. Your task is to analyze text content and extract structured information about the underlying problems or concerns expressed.

You must always respond with valid JSON in the exact format specified. Be accurate, objective, and consistent in your analysis.`

type signalLLMOutput struct {
	ProblemCategory    string   `json:"problem_category"`
	EmotionalIntensity float64  `json:"emotional_intensity"`
	Keywords           []string `json:"keywords"`
	Confidence         float64  `json:"confidence"`
	Reasoning          string   `json:"reasoning"`
}

// signalDetection is node 1: an LLM call producing Signal. Failure
// sets state.Error and terminates the run.
func (s *Skills) signalDetection(ctx context.Context, state State) (State, decision) {
	prompt := fmt.Sprintf(
		"Analyze the following social media post from %s and classify its problem category, emotional intensity, keywords, and confidence.\n\nPOST CONTENT:\n---\n%s\n---\n\nRespond with ONLY valid JSON: {\"problem_category\":\"...\",\"emotional_intensity\":0.0,\"keywords\":[],\"confidence\":0.0,\"reasoning\":\"...\"}",
		state.Platform, state.Text,
	)

	raw, err := s.LLM.ChatJSON(ctx, llm.ChatRequest{
		Model:       s.Model,
		Temperature: s.Temp,
		MaxTokens:   s.MaxToken,
		Messages: []llm.Message{
			{Role: "system", Content: signalDetectionSystemPrompt},
			{Role: "user", Content: prompt},
		},
	})
	if err != nil {
		state.Error = "signal_detection: " + err.Error()
		return state, decisionErr
	}

	var out signalLLMOutput
	if jsonErr := json.Unmarshal([]byte(raw), &out); jsonErr != nil {
		state.Error = "signal_detection: decode: " + jsonErr.Error()
		return state, decisionErr
	}

	category := ProblemCategory(out.ProblemCategory)
	if !ValidProblemCategories[category] {
		category = CategoryOther
	}

	state.Signal = &Signal{
		ProblemCategory:    category,
		EmotionalIntensity: clamp01(out.EmotionalIntensity),
		Keywords:           out.Keywords,
		Confidence:         clamp01(out.Confidence),
	}
	return state, decisionOK
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
