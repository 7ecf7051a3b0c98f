package pipeline

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/reachby3c/engagement-agent/internal/llm"
)

const riskScoringSystemPrompt = `You are a risk assessment specialist for a content engagement platform. Evaluate the emotional and situational risk of engaging with this post. Respond with ONLY valid JSON.`

var recommendedActions = map[RiskLevel]string{
	RiskBlocked: "DO NOT ENGAGE. Crisis content detected. Route to crisis intervention protocol.",
	RiskHigh:    "Requires manual review before any engagement. Escalate to senior moderator.",
	RiskMedium:  "Queue for review. Consider tone adjustment before engagement.",
	RiskLow:     "Safe for automated engagement with standard brand voice.",
}

// categoryFallbackWeight biases the fallback heuristic toward emotionally
// loaded categories when the risk-scoring LLM call fails. Keyed by the
// ProblemCategory enum signal detection actually emits.
var categoryFallbackWeight = map[ProblemCategory]float64{
	CategoryMentalHealthAnxiety:       0.2,
	CategoryMentalHealthDepression:    0.2,
	CategoryMentalHealthStress:        0.15,
	CategoryRelationshipCommunication: 0.1,
	CategoryRelationshipTrust:         0.1,
	CategoryRelationshipBoundaries:    0.1,
	CategoryFamilyConflict:            0.1,
	CategoryFamilyDynamics:            0.05,
	CategoryWorkplaceConflict:         0.1,
	CategoryWorkplaceCareer:           0.05,
	CategoryWorkplaceManagement:       0.05,
	CategoryFinancialStress:           0.15,
	CategoryFinancialPlanning:         0.05,
	CategorySocialIsolation:           0.1,
	CategorySocialConfidence:          0.05,
	CategoryParentingDiscipline:       0.05,
	CategoryParentingDevelopment:      0.05,
	CategoryHealthChronic:             0.1,
	CategoryHealthLifestyle:           0.05,
	CategoryPersonalGrowth:            0.0,
	CategoryDecisionMaking:            0.0,
	CategoryOther:                     0.0,
}

func determineRiskLevel(score float64) RiskLevel {
	switch {
	case score >= 0.7:
		return RiskHigh
	case score >= 0.3:
		return RiskMedium
	default:
		return RiskLow
	}
}

type riskLLMOutput struct {
	RiskScore    float64  `json:"risk_score"`
	RiskFactors  []string `json:"risk_factors"`
	ContextFlags []string `json:"context_flags"`
	Sentiment    string   `json:"sentiment"`
}

// riskScoring is node 2: crisis detector runs first; a match sets
// risk.risk_level=blocked directly without an LLM call. Otherwise an LLM
// call produces Risk; on failure a heuristic fallback is used instead of
// failing the run.
func (s *Skills) riskScoring(ctx context.Context, state State) (State, decision) {
	crisisResult := s.Crisis.Detect(state.Text)
	if crisisResult.IsCrisis {
		state.Risk = &Risk{
			RiskLevel:         RiskBlocked,
			RiskScore:         1.0,
			RiskFactors:       crisisResult.MatchedPatterns,
			ContextFlags:      []string{string(crisisResult.CrisisCategory)},
			RecommendedAction: recommendedActions[RiskBlocked],
		}
		state.Blocked = true
		return state, decisionBlocked
	}

	if state.Signal == nil {
		state.Error = "risk_scoring: missing signal"
		return state, decisionErr
	}

	prompt := fmt.Sprintf(
		"Problem category: %s\nEmotional intensity: %.2f\nText:\n---\n%s\n---\nRespond with ONLY valid JSON: {\"risk_score\":0.0,\"risk_factors\":[],\"context_flags\":[],\"sentiment\":\"...\"}",
		state.Signal.ProblemCategory, state.Signal.EmotionalIntensity, state.Text,
	)

	raw, err := s.LLM.ChatJSON(ctx, llm.ChatRequest{
		Model:       s.Model,
		Temperature: s.Temp,
		MaxTokens:   s.MaxToken,
		Messages: []llm.Message{
			{Role: "system", Content: riskScoringSystemPrompt},
			{Role: "user", Content: prompt},
		},
	})
	if err != nil {
		state.Risk = s.fallbackRisk(state, err.Error())
		return state, decisionOK
	}

	var out riskLLMOutput
	if jsonErr := json.Unmarshal([]byte(raw), &out); jsonErr != nil {
		state.Risk = s.fallbackRisk(state, jsonErr.Error())
		return state, decisionOK
	}

	level := determineRiskLevel(clamp01(out.RiskScore))
	state.Risk = &Risk{
		RiskLevel:         level,
		RiskScore:         clamp01(out.RiskScore),
		RiskFactors:       out.RiskFactors,
		ContextFlags:      out.ContextFlags,
		RecommendedAction: recommendedActions[level],
	}
	return state, decisionOK
}

// fallbackRisk is the heuristic used when the risk-scoring LLM call
// fails: emotional intensity plus a per-category bonus, capped below 1.0.
func (s *Skills) fallbackRisk(state State, reason string) *Risk {
	base := state.Signal.EmotionalIntensity
	bonus := categoryFallbackWeight[state.Signal.ProblemCategory]
	score := base + bonus
	if score > 0.99 {
		score = 0.99
	}
	level := determineRiskLevel(score)

	return &Risk{
		RiskLevel: level,
		RiskScore: round2(score),
		RiskFactors: []string{
			fmt.Sprintf("Emotional intensity: %.2f", state.Signal.EmotionalIntensity),
			fmt.Sprintf("Problem category: %s", state.Signal.ProblemCategory),
			"LLM analysis unavailable - using heuristic assessment",
		},
		ContextFlags:      []string{string(state.Signal.ProblemCategory)},
		RecommendedAction: "Review recommended. " + recommendedActions[level],
	}
}

func round2(v float64) float64 {
	return float64(int(v*100+0.5)) / 100
}
