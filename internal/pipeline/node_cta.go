package pipeline

import (
	"context"
	"regexp"
)

// CTA pattern tables, checked in tier order: direct, then medium, then
// soft; the first tier with any match wins.
var directCTAPatterns = compileAll(
	`sign\s*up`,
	`get\s*started`,
	`try\s*(it\s*)?free`,
	`click\s*here`,
	`use\s*code`,
	`%\s*off`,
	`discount`,
	`https?://`,
	`www\.`,
	`\.com/`,
	`\[link\]`,
	`register\s*(now|today|here)`,
)

var mediumCTAPatterns = compileAll(
	`i\s*(built|created|made|developed)`,
	`check\s*(out|it out)`,
	`my\s*(app|tool|product|service|team)`,
	`our\s*(app|tool|product|service)`,
	`called\s+\w+`,
	`named\s+\w+`,
)

var softCTAPatterns = compileAll(
	`there\s*are\s*(some\s*)?(apps?|tools?|solutions?)`,
	`(apps?|tools?)\s*(that\s*)?(can|could|might)\s*help`,
	`some\s*people\s*(use|find|try)`,
	`you\s*could\s*try\s*(using|some)`,
	`(journaling|meditation|tracking)\s*(apps?|tools?)`,
)

func compileAll(exprs ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(exprs))
	for i, e := range exprs {
		out[i] = regexp.MustCompile(`(?i)` + e)
	}
	return out
}

func anyMatch(text string, patterns []*regexp.Regexp) bool {
	for _, p := range patterns {
		if p.MatchString(text) {
			return true
		}
	}
	return false
}

// ctaClassifier is node 5: rule-based by default, analyzing the
// selected response variant against the three pattern tiers.
func (s *Skills) ctaClassifier(_ context.Context, state State) (State, decision) {
	if state.Responses == nil {
		state.Error = "cta_classifier: missing responses"
		return state, decisionErr
	}

	text := state.Responses.SelectedResponse
	var level int
	switch {
	case anyMatch(text, directCTAPatterns):
		level = 3
	case anyMatch(text, mediumCTAPatterns):
		level = 2
	case anyMatch(text, softCTAPatterns):
		level = 1
	default:
		level = 0
	}

	state.CTA = &CTA{CTALevel: level, CTAType: CTATypeForLevel(level)}
	return state, decisionOK
}
