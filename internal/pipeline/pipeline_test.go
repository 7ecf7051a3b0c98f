package pipeline

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reachby3c/engagement-agent/internal/crisis"
)

func TestCalculateCTS_MatchesFormula(t *testing.T) {
	// cts_score equals round(0.4*sc + 0.3*(1-rs) + 0.3*(1-cl/3), 4)
	cases := []struct {
		sc, rs float64
		cl     int
	}{
		{0.9, 0.1, 0},
		{0.5, 0.5, 2},
		{0.0, 1.0, 3},
		{1.0, 0.0, 0},
	}
	for _, c := range cases {
		score, _ := CalculateCTS(c.sc, c.rs, c.cl)
		expected := math.Round((0.4*c.sc+0.3*(1-c.rs)+0.3*(1-float64(c.cl)/3))*10000) / 10000
		assert.InDelta(t, expected, score, 1e-9)
	}
}

func TestDetermineAutoPostEligibility(t *testing.T) {
	ok, _ := DetermineAutoPostEligibility(0.85, RiskLow, 1)
	assert.True(t, ok)

	ok, reason := DetermineAutoPostEligibility(0.5, RiskLow, 1)
	assert.False(t, ok)
	assert.Contains(t, reason, "threshold")

	ok, reason = DetermineAutoPostEligibility(0.9, RiskMedium, 0)
	assert.False(t, ok)
	assert.Contains(t, reason, "Risk level")

	ok, reason = DetermineAutoPostEligibility(0.9, RiskLow, 2)
	assert.False(t, ok)
	assert.Contains(t, reason, "CTA level")
}

// a signal/risk/response/cta stub driver, used to test the driver's edge
// table and the crisis-first invariant without a real LLM.
func stubDriver() *Driver {
	signal := func(_ context.Context, s State) (State, decision) {
		s.Signal = &Signal{ProblemCategory: CategoryPersonalGrowth, EmotionalIntensity: 0.3, Confidence: 0.9}
		return s, decisionOK
	}

	detector := crisis.New()
	risk := func(_ context.Context, s State) (State, decision) {
		result := detector.Detect(s.Text)
		if result.IsCrisis {
			s.Risk = &Risk{RiskLevel: RiskBlocked, RiskScore: 1.0, RecommendedAction: "Do not engage — crisis"}
			s.Blocked = true
			return s, decisionBlocked
		}
		s.Risk = &Risk{RiskLevel: RiskLow, RiskScore: 0.1}
		return s, decisionOK
	}

	response := func(_ context.Context, s State) (State, decision) {
		r := &Responses{ValueFirst: "v", SoftCTA: "s", Contextual: "c"}
		r.SelectedResponse, r.SelectedType = selectResponse(s.Risk.RiskLevel, r)
		s.Responses = r
		return s, decisionOK
	}

	cta := func(_ context.Context, s State) (State, decision) {
		s.CTA = &CTA{CTALevel: 0, CTAType: CTANone}
		return s, decisionOK
	}

	cts := func(_ context.Context, s State) (State, decision) {
		score, breakdown := CalculateCTS(s.Signal.Confidence, s.Risk.RiskScore, s.CTA.CTALevel)
		canAutoPost, reason := DetermineAutoPostEligibility(score, s.Risk.RiskLevel, s.CTA.CTALevel)
		s.CTS = &CTS{CTSScore: score, CanAutoPost: canAutoPost, AutoPostReason: reason, Breakdown: breakdown}
		return s, decisionOK
	}

	return NewDriver(signal, risk, response, cta, cts)
}

func TestPipeline_CrisisFirst(t *testing.T) {
	// crisis text yields blocked, no responses/cta, cts.can_auto_post=false
	d := stubDriver()
	final := d.Run(context.Background(), "I don't want to be alive anymore", "reddit", nil)

	require.NotNil(t, final.Risk)
	assert.Equal(t, RiskBlocked, final.Risk.RiskLevel)
	assert.True(t, final.Blocked)
	assert.Nil(t, final.Responses)
	assert.Nil(t, final.CTA)
	require.NotNil(t, final.CTS)
	assert.False(t, final.CTS.CanAutoPost)
}

func TestPipeline_SafeTextReachesCTSDecision(t *testing.T) {
	d := stubDriver()
	final := d.Run(context.Background(), "I've been struggling with staying organized and managing my time", "reddit", nil)

	require.NotNil(t, final.Risk)
	assert.Equal(t, RiskLow, final.Risk.RiskLevel)
	require.NotNil(t, final.Responses)
	require.NotNil(t, final.CTA)
	require.NotNil(t, final.CTS)
	assert.True(t, final.CTS.CanAutoPost)
}

func TestCTAClassifier_TierOrder(t *testing.T) {
	s := &Skills{}
	state := State{Responses: &Responses{SelectedResponse: "check out my app, sign up at https://example.com"}}
	next, dec := s.ctaClassifier(context.Background(), state)
	assert.Equal(t, decisionOK, dec)
	assert.Equal(t, 3, next.CTA.CTALevel) // direct wins over medium when both match

	state = State{Responses: &Responses{SelectedResponse: "I built an app called Foo"}}
	next, _ = s.ctaClassifier(context.Background(), state)
	assert.Equal(t, 2, next.CTA.CTALevel)

	state = State{Responses: &Responses{SelectedResponse: "there are some apps that can help"}}
	next, _ = s.ctaClassifier(context.Background(), state)
	assert.Equal(t, 1, next.CTA.CTALevel)

	state = State{Responses: &Responses{SelectedResponse: "that sounds really hard, I'm sorry you're going through it"}}
	next, _ = s.ctaClassifier(context.Background(), state)
	assert.Equal(t, 0, next.CTA.CTALevel)
}

func TestSelectResponse_RiskLevelRule(t *testing.T) {
	r := &Responses{ValueFirst: "vf", SoftCTA: "sc", Contextual: "ctx"}

	text, kind := selectResponse(RiskHigh, r)
	assert.Equal(t, "vf", text)
	assert.Equal(t, "value_first", kind)

	text, kind = selectResponse(RiskMedium, r)
	assert.Equal(t, "sc", text)
	assert.Equal(t, "soft_cta", kind)

	text, kind = selectResponse(RiskLow, r)
	assert.Equal(t, "ctx", text)
	assert.Equal(t, "contextual", kind)
}
