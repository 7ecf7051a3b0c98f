package automation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reachby3c/engagement-agent/internal/domain/organization"
	"github.com/reachby3c/engagement-agent/internal/pipeline"
)

func eligibleResponse() ResponseData {
	return ResponseData{
		ID:           "resp-1",
		OrgID:        "org",
		Platform:     "reddit",
		Target:       "golang",
		TargetURL:    "https://reddit.com/r/golang/comments/abc",
		ResponseText: "a helpful reply",
		Status:       ResponsePending,
		CTSScore:     0.85,
		RiskLevel:    pipeline.RiskLow,
		CTALevel:     1,
		CanAutoPost:  true,
		CreatedAt:    time.Now().UTC(),
	}
}

func newTestChecker() (*Checker, *OrgLimitManager) {
	m := NewOrgLimitManager()
	m.SetLimits("org", permissiveLimits())
	return NewChecker(m), m
}

func TestCheck_AllPassing(t *testing.T) {
	checker, _ := newTestChecker()
	result := checker.Check(eligibleResponse(), permissiveLimits())

	assert.True(t, result.Eligible)
	assert.Equal(t, "auto_post", result.SuggestedAction)
	assert.Len(t, result.ChecksPassed, 8)
	assert.Empty(t, result.ChecksFailed)
}

func TestCheck_IsDeterministic(t *testing.T) {
	checker, _ := newTestChecker()
	resp := eligibleResponse()
	limits := permissiveLimits()

	first := checker.Check(resp, limits)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, checker.Check(resp, limits))
	}
}

func TestCheck_AccumulatesAllFailures(t *testing.T) {
	checker, _ := newTestChecker()
	resp := eligibleResponse()
	resp.CTSScore = 0.2
	resp.RiskLevel = pipeline.RiskHigh
	resp.CTALevel = 3
	resp.CanAutoPost = false

	limits := permissiveLimits()
	result := checker.Check(resp, limits)

	require.False(t, result.Eligible)
	assert.Contains(t, result.ChecksFailed, "pipeline_can_auto_post")
	assert.Contains(t, result.ChecksFailed, "cts_score")
	assert.Contains(t, result.ChecksFailed, "risk_level")
	assert.Contains(t, result.ChecksFailed, "cta_level")
	// The reason reports the first failing check, not the last.
	assert.Contains(t, result.Reason, "auto-postable")
}

func TestCheck_SemanticFailureRequiresReview(t *testing.T) {
	checker, _ := newTestChecker()
	resp := eligibleResponse()
	resp.CTSScore = 0.5

	result := checker.Check(resp, permissiveLimits())
	require.False(t, result.Eligible)
	assert.True(t, result.RequiresReview)
	assert.Equal(t, "manual_review", result.SuggestedAction)
}

func TestCheck_RateLimitFailureIsRetryLater(t *testing.T) {
	checker, m := newTestChecker()
	limits := permissiveLimits()
	limits.MaxHourlyAutoPosts = 1
	m.SetLimits("org", limits)
	m.RecordPost("org", "reddit", "golang")

	result := checker.Check(eligibleResponse(), limits)
	require.False(t, result.Eligible)
	assert.False(t, result.RequiresReview)
	assert.Equal(t, "retry_later", result.SuggestedAction)
	assert.Contains(t, result.Metadata, "retry_after_seconds")
}

func TestCheck_AutoPostDisabled(t *testing.T) {
	checker, _ := newTestChecker()
	limits := permissiveLimits()
	limits.AutoPostEnabled = false

	result := checker.Check(eligibleResponse(), limits)
	require.False(t, result.Eligible)
	assert.Contains(t, result.ChecksFailed, "auto_post_enabled")
}

func TestCheck_RejectedStatusFails(t *testing.T) {
	checker, _ := newTestChecker()
	resp := eligibleResponse()
	resp.Status = ResponseRejected

	result := checker.Check(resp, permissiveLimits())
	require.False(t, result.Eligible)
	assert.Contains(t, result.ChecksFailed, "response_status")
}

func TestCheck_BlacklistedSubreddit(t *testing.T) {
	checker, _ := newTestChecker()
	resp := eligibleResponse()
	resp.Target = "antiMLM"

	result := checker.Check(resp, permissiveLimits())
	require.False(t, result.Eligible)
	assert.Contains(t, result.ChecksFailed, "subreddit_blacklist")
	assert.False(t, result.RequiresReview, "a blacklist failure cannot be reviewed away")
}

func TestCheck_MediumRiskAllowedWhenPolicyPermits(t *testing.T) {
	checker, _ := newTestChecker()
	resp := eligibleResponse()
	resp.RiskLevel = pipeline.RiskMedium

	limits := permissiveLimits()
	limits.AllowedRiskLevels[organization.RiskMedium] = true

	result := checker.Check(resp, limits)
	assert.True(t, result.Eligible)
}

func TestAutoPostPriority(t *testing.T) {
	resp := eligibleResponse() // cts=0.85, cta=1, fresh
	// 50 + floor(0.85*20)=17 + (3-1)*5=10 + 10 recency = 87
	assert.Equal(t, 87, autoPostPriority(resp))

	resp.CreatedAt = time.Now().UTC().Add(-3 * time.Hour)
	assert.Equal(t, 82, autoPostPriority(resp))

	resp.CreatedAt = time.Now().UTC().Add(-48 * time.Hour)
	assert.Equal(t, 77, autoPostPriority(resp))

	resp.CTSScore = 1
	resp.CTALevel = 0
	resp.CreatedAt = time.Now().UTC()
	// 50+20+15+10 = 95
	assert.Equal(t, 95, autoPostPriority(resp))
}
