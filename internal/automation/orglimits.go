// Package automation holds the organization-level guardrails and workers
// that sit between the analysis pipeline's output and the posting queue:
// the per-org rate-limit manager, the eligibility checker, and the
// periodic auto-post worker.
package automation

import (
	"fmt"
	"sync"
	"time"

	"github.com/reachby3c/engagement-agent/internal/domain/organization"
)

// postEntry is one recorded post, kept only long enough to answer
// window/gap questions; anything older than the log retention is
// garbage-collected on the next mutation.
type postEntry struct {
	platform string
	target   string
	at       time.Time
}

const requestLogRetention = 24 * time.Hour

// OrgLimitManager holds each organization's OrgLimits and its rolling
// request log, and answers whether a candidate post may proceed.
type OrgLimitManager struct {
	mu    sync.Mutex
	limit map[string]organization.Limits
	log   map[string][]postEntry // orgID -> chronological entries, oldest first
}

func NewOrgLimitManager() *OrgLimitManager {
	return &OrgLimitManager{
		limit: make(map[string]organization.Limits),
		log:   make(map[string][]postEntry),
	}
}

// SetLimits registers or replaces an organization's limits.
func (m *OrgLimitManager) SetLimits(orgID string, limits organization.Limits) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.limit[orgID] = limits
}

// GetLimits returns an organization's currently registered limits, backing
// the automation status/limits read endpoints.
func (m *OrgLimitManager) GetLimits(orgID string) (organization.Limits, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	limits, ok := m.limit[orgID]
	return limits, ok
}

// CheckLimits evaluates, in the fixed documented order, whether orgID may
// post to platform/target right now. The first failing check wins; its
// reason names the check and the observed-vs-limit values.
func (m *OrgLimitManager) CheckLimits(orgID, platform, target string) (allowed bool, reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	limits, ok := m.limit[orgID]
	if !ok {
		return false, "organization has no configured limits"
	}
	m.gcLocked(orgID)

	// (1) auto-post disabled
	if !limits.AutoPostEnabled {
		return false, "auto-post is disabled for this organization"
	}

	// (2) platform disabled
	platLimits, hasPlatform := limits.PlatformLimits[platform]
	if !hasPlatform || !platLimits.Enabled {
		return false, fmt.Sprintf("platform %q is disabled for this organization", platform)
	}

	entries := m.log[orgID]
	now := time.Now().UTC()

	// (3) org hourly cap
	orgHour := countSince(entries, now.Add(-time.Hour), "")
	if orgHour >= limits.MaxHourlyAutoPosts {
		return false, fmt.Sprintf("org hourly cap reached (%d/%d)", orgHour, limits.MaxHourlyAutoPosts)
	}

	// (4) org daily cap
	orgDay := countSince(entries, now.Add(-24*time.Hour), "")
	if orgDay >= limits.MaxDailyAutoPosts {
		return false, fmt.Sprintf("org daily cap reached (%d/%d)", orgDay, limits.MaxDailyAutoPosts)
	}

	// (5) platform hourly cap
	platHour := countSince(entries, now.Add(-time.Hour), platform)
	if platHour >= platLimits.PostsPerHour {
		return false, fmt.Sprintf("platform %q hourly cap reached (%d/%d)", platform, platHour, platLimits.PostsPerHour)
	}

	// (6) platform daily cap
	platDay := countSince(entries, now.Add(-24*time.Hour), platform)
	if platDay >= platLimits.PostsPerDay {
		return false, fmt.Sprintf("platform %q daily cap reached (%d/%d)", platform, platDay, platLimits.PostsPerDay)
	}

	// (7) min_gap_seconds since last post on this platform
	if last, ok := lastPostOn(entries, platform, ""); ok {
		gap := now.Sub(last)
		minGap := time.Duration(platLimits.MinGapSeconds) * time.Second
		if gap < minGap {
			return false, fmt.Sprintf("platform %q min gap not satisfied (%.0fs elapsed, need %ds)", platform, gap.Seconds(), platLimits.MinGapSeconds)
		}
	}

	// (8) subreddit_gap_seconds for Reddit+target
	if platform == "reddit" && target != "" {
		if last, ok := lastPostOn(entries, platform, target); ok {
			gap := now.Sub(last)
			subGap := time.Duration(platLimits.SubredditGapSeconds) * time.Second
			if gap < subGap {
				return false, fmt.Sprintf("subreddit %q gap not satisfied (%.0fs elapsed, need %ds)", target, gap.Seconds(), platLimits.SubredditGapSeconds)
			}
		}
	}

	// (9) target in blacklisted_subreddits
	if platform == "reddit" && limits.BlacklistedSubreddits[target] {
		return false, fmt.Sprintf("%q is a blacklisted subreddit", target)
	}

	return true, ""
}

// RecordPost appends a post event and garbage-collects entries older than
// the retention window.
func (m *OrgLimitManager) RecordPost(orgID, platform, target string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.log[orgID] = append(m.log[orgID], postEntry{platform: platform, target: target, at: time.Now().UTC()})
	m.gcLocked(orgID)
}

func (m *OrgLimitManager) gcLocked(orgID string) {
	entries := m.log[orgID]
	if len(entries) == 0 {
		return
	}
	cutoff := time.Now().UTC().Add(-requestLogRetention)
	i := 0
	for i < len(entries) && entries[i].at.Before(cutoff) {
		i++
	}
	if i > 0 {
		m.log[orgID] = entries[i:]
	}
}

// TimeUntilAllowed returns the smallest future wait among the active gap
// and window-reset constraints for platform/target, or zero if posting is
// already allowed.
func (m *OrgLimitManager) TimeUntilAllowed(orgID, platform, target string) time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()

	limits, ok := m.limit[orgID]
	if !ok {
		return 0
	}
	platLimits, hasPlatform := limits.PlatformLimits[platform]
	if !hasPlatform {
		return 0
	}

	entries := m.log[orgID]
	now := time.Now().UTC()
	var waits []time.Duration

	if last, ok := lastPostOn(entries, platform, ""); ok {
		minGap := time.Duration(platLimits.MinGapSeconds) * time.Second
		if wait := minGap - now.Sub(last); wait > 0 {
			waits = append(waits, wait)
		}
	}
	if platform == "reddit" && target != "" {
		if last, ok := lastPostOn(entries, platform, target); ok {
			subGap := time.Duration(platLimits.SubredditGapSeconds) * time.Second
			if wait := subGap - now.Sub(last); wait > 0 {
				waits = append(waits, wait)
			}
		}
	}
	if oldest, ok := oldestWithin(entries, now.Add(-time.Hour), platform); ok {
		if countSince(entries, now.Add(-time.Hour), platform) >= platLimits.PostsPerHour {
			waits = append(waits, oldest.Add(time.Hour).Sub(now))
		}
	}
	if oldest, ok := oldestWithin(entries, now.Add(-24*time.Hour), platform); ok {
		if countSince(entries, now.Add(-24*time.Hour), platform) >= platLimits.PostsPerDay {
			waits = append(waits, oldest.Add(24*time.Hour).Sub(now))
		}
	}
	if oldest, ok := oldestWithin(entries, now.Add(-time.Hour), ""); ok {
		if countSince(entries, now.Add(-time.Hour), "") >= limits.MaxHourlyAutoPosts {
			waits = append(waits, oldest.Add(time.Hour).Sub(now))
		}
	}
	if oldest, ok := oldestWithin(entries, now.Add(-24*time.Hour), ""); ok {
		if countSince(entries, now.Add(-24*time.Hour), "") >= limits.MaxDailyAutoPosts {
			waits = append(waits, oldest.Add(24*time.Hour).Sub(now))
		}
	}

	min := time.Duration(0)
	for _, w := range waits {
		if min == 0 || w < min {
			min = w
		}
	}
	return min
}

// countSince counts log entries at/after `since`; platform == "" counts
// across all platforms (used for the org-wide caps).
func countSince(entries []postEntry, since time.Time, platform string) int {
	n := 0
	for _, e := range entries {
		if e.at.Before(since) {
			continue
		}
		if platform != "" && e.platform != platform {
			continue
		}
		n++
	}
	return n
}

// lastPostOn returns the most recent entry matching platform (and target,
// when target != "").
func lastPostOn(entries []postEntry, platform, target string) (time.Time, bool) {
	var last time.Time
	found := false
	for _, e := range entries {
		if e.platform != platform {
			continue
		}
		if target != "" && e.target != target {
			continue
		}
		if !found || e.at.After(last) {
			last = e.at
			found = true
		}
	}
	return last, found
}

// oldestWithin returns the oldest entry at/after `since` matching platform
// (platform == "" matches any platform, used for the org-wide caps), used to
// compute when a capped window next has room.
func oldestWithin(entries []postEntry, since time.Time, platform string) (time.Time, bool) {
	var oldest time.Time
	found := false
	for _, e := range entries {
		if e.at.Before(since) {
			continue
		}
		if platform != "" && e.platform != platform {
			continue
		}
		if !found || e.at.Before(oldest) {
			oldest = e.at
			found = true
		}
	}
	return oldest, found
}
