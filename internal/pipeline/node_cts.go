package pipeline

import (
	"context"
	"fmt"
	"math"
)

const (
	signalWeight = 0.4
	riskWeight   = 0.3
	ctaWeight    = 0.3

	ctsAutoPostThreshold = 0.7
	maxCTALevelForAuto   = 1
)

// CalculateCTS is the pure arithmetic of node 6: cts_score is the
// weighted sum of signal confidence, inverse risk, and inverse CTA level,
// rounded to 4 decimals internally. Exported so the Eligibility Checker and
// Crawl Processor can recompute priority without re-running the pipeline.
func CalculateCTS(signalConfidence, riskScore float64, ctaLevel int) (float64, CTSBreakdown) {
	signalComponent := round4(signalConfidence * signalWeight)
	riskComponent := round4((1 - riskScore) * riskWeight)
	ctaComponent := round4((1 - float64(ctaLevel)/3) * ctaWeight)

	score := round4(signalComponent + riskComponent + ctaComponent)
	return score, CTSBreakdown{
		SignalComponent: signalComponent,
		RiskComponent:   riskComponent,
		CTAComponent:    ctaComponent,
	}
}

// DetermineAutoPostEligibility applies the auto-post gate: CTS
// score at least the threshold, risk level low, and CTA level at most 1.
func DetermineAutoPostEligibility(ctsScore float64, riskLevel RiskLevel, ctaLevel int) (bool, string) {
	var reasons []string

	if ctsScore < ctsAutoPostThreshold {
		reasons = append(reasons, fmt.Sprintf("CTS score (%.2f) below %.1f threshold", ctsScore, ctsAutoPostThreshold))
	}
	if riskLevel != RiskLow {
		reasons = append(reasons, fmt.Sprintf("Risk level is '%s' (must be 'low')", riskLevel))
	}
	if ctaLevel > maxCTALevelForAuto {
		reasons = append(reasons, fmt.Sprintf("CTA level (%d) exceeds maximum (%d)", ctaLevel, maxCTALevelForAuto))
	}

	if len(reasons) == 0 {
		return true, fmt.Sprintf("CTS score (%.2f) meets threshold, risk is low, and CTA level (%d) is acceptable.", ctsScore, ctaLevel)
	}

	reason := reasons[0]
	for _, r := range reasons[1:] {
		reason += "; " + r
	}
	return false, reason + "."
}

// ctsDecision is node 6: pure arithmetic, no suspension point.
func (s *Skills) ctsDecision(_ context.Context, state State) (State, decision) {
	if state.Signal == nil || state.Risk == nil || state.CTA == nil {
		state.Error = "cts_decision: missing upstream stage output"
		return state, decisionErr
	}

	score, breakdown := CalculateCTS(state.Signal.Confidence, state.Risk.RiskScore, state.CTA.CTALevel)
	final := round2(score)
	canAutoPost, reason := DetermineAutoPostEligibility(final, state.Risk.RiskLevel, state.CTA.CTALevel)

	state.CTS = &CTS{
		CTSScore:       final,
		CanAutoPost:    canAutoPost,
		AutoPostReason: reason,
		Breakdown:      breakdown,
	}
	return state, decisionOK
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}
