package crawl

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reachby3c/engagement-agent/internal/platform/logging"
)

type fakeCrawler struct {
	platform string
	result   *CrawlResult
	err      error

	mu          sync.Mutex
	searches    int
	initialized bool
}

func (c *fakeCrawler) Initialize(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.initialized = true
	return nil
}

func (c *fakeCrawler) Close(context.Context) error { return nil }

func (c *fakeCrawler) Search(context.Context, []string, []string, int, SearchOptions) (*CrawlResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.searches++
	return c.result, c.err
}

func (c *fakeCrawler) GetRecent(context.Context, []string, int, SearchOptions) (*CrawlResult, error) {
	return c.result, c.err
}

func (c *fakeCrawler) HealthCheck(context.Context) error { return c.err }
func (c *fakeCrawler) Platform() string                  { return c.platform }

func TestAddConfig_RejectsDuplicatesAndMissingName(t *testing.T) {
	s := NewScheduler(logging.Nop(), nil)
	require.NoError(t, s.AddConfig(CrawlConfig{Name: "a", Platform: "reddit", Frequency: FrequencyHourly}))
	assert.Error(t, s.AddConfig(CrawlConfig{Name: "a", Platform: "reddit", Frequency: FrequencyHourly}))
	assert.Error(t, s.AddConfig(CrawlConfig{Platform: "reddit"}))
}

func TestNextRunAt_IntervalFrequencies(t *testing.T) {
	from := time.Date(2025, 6, 1, 10, 30, 0, 0, time.UTC)
	assert.Equal(t, from.Add(time.Hour), nextRunAt(FrequencyHourly, from))
	assert.Equal(t, from.Add(6*time.Hour), nextRunAt(FrequencyEvery6Hours, from))
	assert.Equal(t, from.Add(12*time.Hour), nextRunAt(FrequencyTwiceDaily, from))
	assert.Equal(t, from.Add(24*time.Hour), nextRunAt(FrequencyDaily, from))
	assert.Equal(t, from.Add(7*24*time.Hour), nextRunAt(FrequencyWeekly, from))
}

func TestNextRunAt_FourTimesDailyUsesFixedUTCTimes(t *testing.T) {
	from := time.Date(2025, 6, 1, 10, 30, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC), nextRunAt(FrequencyFourTimesDaily, from))

	// After the last slot of the day, it wraps to midnight tomorrow.
	late := time.Date(2025, 6, 1, 19, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC), nextRunAt(FrequencyFourTimesDaily, late))

	// Exactly on a slot boundary moves to the next slot, not the same one.
	onSlot := time.Date(2025, 6, 1, 6, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC), nextRunAt(FrequencyFourTimesDaily, onSlot))
}

func TestRunNow_InvokesCallbackAndCountsSuccess(t *testing.T) {
	crawler := &fakeCrawler{platform: "reddit", result: &CrawlResult{
		Platform: "reddit",
		Posts:    []CrawledPost{{ExternalURL: "https://reddit.com/x", Content: "text"}},
	}}

	var gotConfig string
	var gotResult *CrawlResult
	s := NewScheduler(logging.Nop(), func(name string, result *CrawlResult) {
		gotConfig = name
		gotResult = result
	})
	s.RegisterCrawler(crawler)
	require.NoError(t, s.AddConfig(CrawlConfig{Name: "cfg", Platform: "reddit", Frequency: FrequencyHourly, Enabled: true}))

	result, err := s.RunNow(context.Background(), "cfg")
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, "cfg", gotConfig)
	assert.Same(t, result, gotResult)
	assert.True(t, crawler.initialized)

	status, ok := s.GetJobStatus("cfg")
	require.True(t, ok)
	assert.Equal(t, int64(1), status.TotalRuns)
	assert.Equal(t, int64(1), status.SuccessfulRuns)
	assert.Equal(t, JobStatusSuccess, status.LastStatus)
}

func TestRunNow_PartialWhenPostsAndErrors(t *testing.T) {
	crawler := &fakeCrawler{platform: "reddit", result: &CrawlResult{
		Platform: "reddit",
		Posts:    []CrawledPost{{ExternalURL: "https://reddit.com/x", Content: "text"}},
		Errors:   []string{"one item failed to parse"},
	}}
	s := NewScheduler(logging.Nop(), nil)
	s.RegisterCrawler(crawler)
	require.NoError(t, s.AddConfig(CrawlConfig{Name: "cfg", Platform: "reddit", Frequency: FrequencyHourly, Enabled: true}))

	_, err := s.RunNow(context.Background(), "cfg")
	require.NoError(t, err)

	status, _ := s.GetJobStatus("cfg")
	assert.Equal(t, JobStatusPartial, status.LastStatus)
	assert.Equal(t, int64(1), status.SuccessfulRuns)
}

func TestRunNow_FailedWhenOnlyErrors(t *testing.T) {
	crawler := &fakeCrawler{platform: "reddit", result: &CrawlResult{
		Platform: "reddit",
		Errors:   []string{"upstream 500"},
	}}
	s := NewScheduler(logging.Nop(), nil)
	s.RegisterCrawler(crawler)
	require.NoError(t, s.AddConfig(CrawlConfig{Name: "cfg", Platform: "reddit", Frequency: FrequencyHourly, Enabled: true}))

	_, err := s.RunNow(context.Background(), "cfg")
	require.NoError(t, err)

	status, _ := s.GetJobStatus("cfg")
	assert.Equal(t, JobStatusFailed, status.LastStatus)
	assert.Equal(t, int64(1), status.FailedRuns)
	assert.Contains(t, status.LastError, "upstream 500")
}

func TestRunNow_CrawlerErrorDoesNotKillScheduler(t *testing.T) {
	crawler := &fakeCrawler{platform: "reddit", err: errors.New("auth expired")}
	s := NewScheduler(logging.Nop(), nil)
	s.RegisterCrawler(crawler)
	require.NoError(t, s.AddConfig(CrawlConfig{Name: "cfg", Platform: "reddit", Frequency: FrequencyHourly, Enabled: true}))

	_, err := s.RunNow(context.Background(), "cfg")
	require.NoError(t, err, "job errors are recorded, not propagated")

	status, _ := s.GetJobStatus("cfg")
	assert.Equal(t, JobStatusError, status.LastStatus)
	assert.Equal(t, int64(1), status.FailedRuns)

	// A later run still works.
	crawler.err = nil
	crawler.result = &CrawlResult{Platform: "reddit"}
	_, err = s.RunNow(context.Background(), "cfg")
	require.NoError(t, err)
	status, _ = s.GetJobStatus("cfg")
	assert.Equal(t, int64(2), status.TotalRuns)
}

func TestRunNow_UnknownConfig(t *testing.T) {
	s := NewScheduler(logging.Nop(), nil)
	_, err := s.RunNow(context.Background(), "missing")
	assert.Error(t, err)
}

func TestFireDue_SkipsDisabledAndPaused(t *testing.T) {
	crawler := &fakeCrawler{platform: "reddit", result: &CrawlResult{Platform: "reddit"}}
	s := NewScheduler(logging.Nop(), nil)
	s.RegisterCrawler(crawler)
	require.NoError(t, s.AddConfig(CrawlConfig{Name: "off", Platform: "reddit", Frequency: FrequencyHourly, Enabled: false}))
	require.NoError(t, s.AddConfig(CrawlConfig{Name: "on", Platform: "reddit", Frequency: FrequencyHourly, Enabled: true}))

	// Force both due.
	s.mu.Lock()
	for _, j := range s.jobs {
		j.NextRunAt = time.Now().UTC().Add(-time.Minute)
	}
	s.mu.Unlock()

	s.Pause()
	s.fireDue(context.Background())
	s.wg.Wait()
	crawler.mu.Lock()
	assert.Zero(t, crawler.searches, "paused scheduler must not trigger")
	crawler.mu.Unlock()

	s.Resume()
	s.fireDue(context.Background())
	s.wg.Wait()
	crawler.mu.Lock()
	assert.Equal(t, 1, crawler.searches, "only the enabled config fires")
	crawler.mu.Unlock()
}
