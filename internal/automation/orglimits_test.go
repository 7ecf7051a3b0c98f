package automation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reachby3c/engagement-agent/internal/domain/organization"
)

// recordAt backdates an entry so window tests don't have to sleep.
func recordAt(m *OrgLimitManager, orgID, platform, target string, at time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.log[orgID] = append(m.log[orgID], postEntry{platform: platform, target: target, at: at})
}

func permissiveLimits() organization.Limits {
	limits := organization.DefaultLimits()
	limits.MaxHourlyAutoPosts = 100
	limits.MaxDailyAutoPosts = 1000
	reddit := limits.PlatformLimits["reddit"]
	reddit.PostsPerHour = 100
	reddit.PostsPerDay = 1000
	reddit.MinGapSeconds = 0
	limits.PlatformLimits["reddit"] = reddit
	return limits
}

func TestCheckLimits_UnknownOrgRefused(t *testing.T) {
	m := NewOrgLimitManager()
	allowed, reason := m.CheckLimits("ghost", "reddit", "golang")
	assert.False(t, allowed)
	assert.Contains(t, reason, "no configured limits")
}

func TestCheckLimits_AutoPostDisabledOverridesEverything(t *testing.T) {
	m := NewOrgLimitManager()
	limits := permissiveLimits()
	limits.AutoPostEnabled = false
	m.SetLimits("org", limits)

	allowed, reason := m.CheckLimits("org", "reddit", "golang")
	assert.False(t, allowed)
	assert.Contains(t, reason, "disabled")
}

func TestCheckLimits_UnknownPlatformRefused(t *testing.T) {
	m := NewOrgLimitManager()
	m.SetLimits("org", permissiveLimits())

	allowed, reason := m.CheckLimits("org", "quora", "")
	assert.False(t, allowed)
	assert.Contains(t, reason, "quora")
}

func TestCheckLimits_HourlyCap(t *testing.T) {
	m := NewOrgLimitManager()
	limits := permissiveLimits()
	limits.MaxHourlyAutoPosts = 5
	m.SetLimits("org", limits)

	now := time.Now().UTC()
	for i := 0; i < 5; i++ {
		recordAt(m, "org", "reddit", "golang", now.Add(-time.Duration(i+1)*time.Minute))
	}

	allowed, reason := m.CheckLimits("org", "reddit", "anything")
	assert.False(t, allowed)
	assert.Contains(t, reason, "hourly")

	wait := m.TimeUntilAllowed("org", "reddit", "anything")
	// Oldest entry is 5 minutes old, so the hourly window frees up in ~55m.
	assert.InDelta(t, (55 * time.Minute).Seconds(), wait.Seconds(), 5)
}

func TestCheckLimits_AllowedAgainAfterWindowAges(t *testing.T) {
	m := NewOrgLimitManager()
	limits := permissiveLimits()
	limits.MaxHourlyAutoPosts = 2
	m.SetLimits("org", limits)

	now := time.Now().UTC()
	recordAt(m, "org", "reddit", "golang", now.Add(-2*time.Hour))
	recordAt(m, "org", "reddit", "golang", now.Add(-90*time.Minute))
	recordAt(m, "org", "reddit", "golang", now.Add(-30*time.Minute))

	allowed, _ := m.CheckLimits("org", "reddit", "golang")
	assert.True(t, allowed, "only one entry remains inside the hourly window")
}

func TestCheckLimits_SubredditGap(t *testing.T) {
	m := NewOrgLimitManager()
	m.SetLimits("org", permissiveLimits()) // subreddit_gap_seconds=300

	now := time.Now().UTC()
	recordAt(m, "org", "reddit", "python", now.Add(-60*time.Second))

	allowed, reason := m.CheckLimits("org", "reddit", "python")
	assert.False(t, allowed)
	assert.Contains(t, reason, "python")

	allowed, _ = m.CheckLimits("org", "reddit", "golang")
	assert.True(t, allowed, "a different subreddit is only subject to min_gap, which is zero here")

	wait := m.TimeUntilAllowed("org", "reddit", "python")
	assert.InDelta(t, 240, wait.Seconds(), 5)
}

func TestCheckLimits_MinGapAppliesAcrossTargets(t *testing.T) {
	m := NewOrgLimitManager()
	limits := permissiveLimits()
	reddit := limits.PlatformLimits["reddit"]
	reddit.MinGapSeconds = 120
	limits.PlatformLimits["reddit"] = reddit
	m.SetLimits("org", limits)

	recordAt(m, "org", "reddit", "python", time.Now().UTC().Add(-30*time.Second))

	allowed, reason := m.CheckLimits("org", "reddit", "golang")
	assert.False(t, allowed)
	assert.Contains(t, reason, "min gap")
}

func TestCheckLimits_Blacklist(t *testing.T) {
	m := NewOrgLimitManager()
	m.SetLimits("org", permissiveLimits())

	allowed, reason := m.CheckLimits("org", "reddit", "antiMLM")
	assert.False(t, allowed)
	assert.Contains(t, reason, "blacklisted")
}

func TestRecordPost_GarbageCollectsOldEntries(t *testing.T) {
	m := NewOrgLimitManager()
	m.SetLimits("org", permissiveLimits())

	recordAt(m, "org", "reddit", "golang", time.Now().UTC().Add(-25*time.Hour))
	m.RecordPost("org", "reddit", "golang")

	m.mu.Lock()
	defer m.mu.Unlock()
	require.Len(t, m.log["org"], 1)
	assert.True(t, m.log["org"][0].at.After(time.Now().UTC().Add(-time.Minute)))
}

func TestTimeUntilAllowed_ZeroWhenUnconstrained(t *testing.T) {
	m := NewOrgLimitManager()
	m.SetLimits("org", permissiveLimits())
	assert.Zero(t, m.TimeUntilAllowed("org", "reddit", "golang"))
}
