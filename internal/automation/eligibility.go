package automation

import (
	"fmt"
	"time"

	"github.com/reachby3c/engagement-agent/internal/domain/organization"
	"github.com/reachby3c/engagement-agent/internal/pipeline"
)

// ResponseStatus is the closed set of states a generated response moves
// through on its way to (or away from) auto-posting.
type ResponseStatus string

const (
	ResponsePending  ResponseStatus = "pending"
	ResponseApproved ResponseStatus = "approved"
	ResponsePosting  ResponseStatus = "posting"
	ResponsePosted   ResponseStatus = "posted"
	ResponseFailed   ResponseStatus = "failed"
	ResponseRejected ResponseStatus = "rejected"
)

// ResponseData is the minimal view of one pipeline result the Eligibility
// Checker needs: enough to re-derive every check without re-running the
// pipeline.
type ResponseData struct {
	ID           string
	OrgID        string
	Platform     string
	Target       string // subreddit or equivalent posting target
	TargetURL    string // permalink/tweet URL the poster replies to
	ResponseText string
	Status       ResponseStatus
	CTSScore     float64
	RiskLevel    pipeline.RiskLevel
	CTALevel     int
	CanAutoPost  bool
	CreatedAt    time.Time
}

// EligibilityResult is the full accounting of one Check call: which
// checks passed, which failed, and whether a human could still approve
// despite the failures.
type EligibilityResult struct {
	Eligible        bool
	Reason          string
	ChecksPassed    []string
	ChecksFailed    []string
	RequiresReview  bool
	SuggestedAction string
	Metadata        map[string]any
}

// semantic checks are the ones a human reviewer could override; a
// rate-limit or blacklist failure cannot be reviewed away.
var semanticChecks = map[string]bool{
	"pipeline_can_auto_post": true,
	"cts_score":              true,
	"cta_level":              true,
}

// Checker evaluates a ResponseData against an organization's limits.
type Checker struct {
	limiter *OrgLimitManager
}

func NewChecker(limiter *OrgLimitManager) *Checker {
	return &Checker{limiter: limiter}
}

// Check runs all eight checks in fixed order, never short-circuiting after
// the first two hard gates, so the result always reports every failure.
func (c *Checker) Check(resp ResponseData, limits organization.Limits) EligibilityResult {
	result := EligibilityResult{Metadata: map[string]any{}}

	record := func(name string, pass bool, detail string) {
		if pass {
			result.ChecksPassed = append(result.ChecksPassed, name)
			return
		}
		result.ChecksFailed = append(result.ChecksFailed, name)
		if result.Reason == "" {
			result.Reason = detail
		}
	}

	record("auto_post_enabled", limits.AutoPostEnabled, "auto-post is disabled for this organization")

	statusOK := resp.Status == ResponsePending || resp.Status == ResponseApproved
	record("response_status", statusOK, fmt.Sprintf("response status %q is not pending/approved", resp.Status))

	record("pipeline_can_auto_post", resp.CanAutoPost, "pipeline did not mark this response auto-postable")

	ctsOK := resp.CTSScore >= limits.MinCTSScore
	record("cts_score", ctsOK, fmt.Sprintf("CTS score (%.2f) below organization minimum (%.2f)", resp.CTSScore, limits.MinCTSScore))

	riskOK := limits.AllowedRiskLevels[organization.RiskLevel(resp.RiskLevel)]
	record("risk_level", riskOK, fmt.Sprintf("risk level %q is not in the organization's allowed set", resp.RiskLevel))

	ctaOK := resp.CTALevel <= limits.MaxCTALevel
	record("cta_level", ctaOK, fmt.Sprintf("CTA level (%d) exceeds organization maximum (%d)", resp.CTALevel, limits.MaxCTALevel))

	allowed, rateReason := c.limiter.CheckLimits(resp.OrgID, resp.Platform, resp.Target)
	record("rate_limit", allowed, rateReason)
	if !allowed {
		result.Metadata["retry_after_seconds"] = c.limiter.TimeUntilAllowed(resp.OrgID, resp.Platform, resp.Target).Seconds()
	}

	blacklisted := resp.Platform == "reddit" && limits.BlacklistedSubreddits[resp.Target]
	record("subreddit_blacklist", !blacklisted, fmt.Sprintf("%q is a blacklisted subreddit", resp.Target))

	result.Eligible = len(result.ChecksFailed) == 0
	if result.Eligible {
		result.Reason = "all eligibility checks passed"
		result.SuggestedAction = "auto_post"
		return result
	}

	for _, failed := range result.ChecksFailed {
		if semanticChecks[failed] {
			result.RequiresReview = true
			break
		}
	}

	if result.RequiresReview {
		result.SuggestedAction = "manual_review"
	} else {
		result.SuggestedAction = "retry_later"
	}
	return result
}
