// Package crisis is the compiled regex pre-filter that short-circuits the
// analysis pipeline for dangerous content. It runs before any LLM
// call and must be the first gate in risk scoring.
package crisis

import (
	"regexp"
	"strings"
)

type compiledPattern struct {
	re          *regexp.Regexp
	category    Category
	severity    float64
	description string
}

// Detector holds the compiled pattern set. Build once with New and reuse;
// it has no mutable state so it is safe for concurrent use.
type Detector struct {
	patterns []compiledPattern
}

func New() *Detector {
	d := &Detector{}
	for _, group := range [][]patternDef{selfHarmPatterns, violencePatterns, mentalHealthPatterns} {
		for _, p := range group {
			d.patterns = append(d.patterns, compiledPattern{
				re:          regexp.MustCompile(`(?i)` + p.expr),
				category:    p.category,
				severity:    p.severity,
				description: p.description,
			})
		}
	}
	return d
}

// Result is the outcome of a Detect call.
type Result struct {
	IsCrisis        bool
	MatchedPatterns []string
	CrisisCategory  Category
	Confidence      float64
}

// Detect normalizes text and matches it against every compiled pattern,
// returning the category whose matched pattern carries the highest
// severity when more than one category matches.
func (d *Detector) Detect(text string) Result {
	if strings.TrimSpace(text) == "" {
		return Result{}
	}

	normalized := normalize(text)

	var matched []string
	bestByCategory := make(map[Category]float64)

	for _, p := range d.patterns {
		if p.re.MatchString(normalized) {
			matched = append(matched, string(p.category)+": "+p.description)
			if p.severity > bestByCategory[p.category] {
				bestByCategory[p.category] = p.severity
			}
		}
	}

	if len(matched) == 0 {
		return Result{}
	}

	var primary Category
	var confidence float64
	for cat, sev := range bestByCategory {
		if sev > confidence {
			confidence = sev
			primary = cat
		}
	}

	return Result{
		IsCrisis:        true,
		MatchedPatterns: matched,
		CrisisCategory:  primary,
		Confidence:      confidence,
	}
}

// IsSafe is a boolean-only convenience wrapper over Detect.
func (d *Detector) IsSafe(text string) bool {
	return !d.Detect(text).IsCrisis
}

var leetspeak = strings.NewReplacer(
	"0", "o",
	"1", "i",
	"3", "e",
	"4", "a",
	"5", "s",
	"7", "t",
	"@", "a",
	"$", "s",
)

// normalize case-folds, applies leetspeak substitution, and collapses
// whitespace-separated single-letter sequences ("k i l l" -> "kill") so
// simple obfuscation doesn't evade the patterns above.
func normalize(text string) string {
	lowered := strings.ToLower(text)
	substituted := leetspeak.Replace(lowered)

	words := strings.Fields(substituted)
	var cleaned []string
	inRun := false
	for _, w := range words {
		if isSingleLetter(w) {
			if inRun {
				cleaned[len(cleaned)-1] += w
			} else {
				cleaned = append(cleaned, w)
				inRun = true
			}
			continue
		}
		cleaned = append(cleaned, w)
		inRun = false
	}
	return strings.Join(cleaned, " ")
}

func isSingleLetter(w string) bool {
	if len(w) != 1 {
		return false
	}
	c := w[0]
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}
