package crawl

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reachby3c/engagement-agent/internal/pipeline"
	"github.com/reachby3c/engagement-agent/internal/platform/logging"
)

type fakeStore struct {
	existing map[string]bool
	saved    []savedPost
	failURL  string
}

type savedPost struct {
	post     CrawledPost
	state    pipeline.State
	priority int
}

func (s *fakeStore) ExternalURLExists(_ context.Context, url string) (bool, error) {
	return s.existing[url], nil
}

func (s *fakeStore) SavePost(_ context.Context, post CrawledPost, state pipeline.State, priority int) error {
	if s.failURL != "" && post.ExternalURL == s.failURL {
		return errors.New("write failed")
	}
	s.saved = append(s.saved, savedPost{post: post, state: state, priority: priority})
	return nil
}

type analyzerFunc func(ctx context.Context, text, platform string, tenantContext map[string]any) pipeline.State

func (f analyzerFunc) Run(ctx context.Context, text, platform string, tenantContext map[string]any) pipeline.State {
	return f(ctx, text, platform, tenantContext)
}

func passingAnalyzer(ctsScore float64) Analyzer {
	return analyzerFunc(func(_ context.Context, text, platform string, _ map[string]any) pipeline.State {
		return pipeline.State{
			Text:     text,
			Platform: platform,
			CTS:      &pipeline.CTS{CTSScore: ctsScore, CanAutoPost: true},
		}
	})
}

func post(url, content string) CrawledPost {
	return CrawledPost{ExternalURL: url, Content: content, Platform: "reddit"}
}

func TestProcess_SkipsEmptyAndDedupes(t *testing.T) {
	store := &fakeStore{existing: map[string]bool{"https://reddit.com/seen": true}}
	p := NewProcessor(store, passingAnalyzer(0.9), nil, logging.Nop())

	stats := p.Process(context.Background(), "cfg", &CrawlResult{Posts: []CrawledPost{
		post("", "has content but no url"),
		post("https://reddit.com/nocontent", "   "),
		post("https://reddit.com/seen", "already persisted"),
		post("https://reddit.com/new", "fresh content"),
	}})

	assert.Equal(t, 2, stats.Errors)
	assert.Equal(t, 1, stats.Duplicates)
	assert.Equal(t, 1, stats.NewPosts)
	assert.Equal(t, 1, stats.Queued)
	require.Len(t, store.saved, 1)
	assert.Equal(t, "https://reddit.com/new", store.saved[0].post.ExternalURL)
}

func TestProcess_PriorityBands(t *testing.T) {
	cases := []struct {
		cts      float64
		priority int
	}{
		{0.9, 1},
		{0.8, 1},
		{0.65, 2},
		{0.45, 3},
		{0.25, 4},
		{0.1, 5},
	}
	for _, c := range cases {
		store := &fakeStore{}
		p := NewProcessor(store, passingAnalyzer(c.cts), nil, logging.Nop())
		p.Process(context.Background(), "cfg", &CrawlResult{Posts: []CrawledPost{post("https://reddit.com/x", "text")}})
		require.Len(t, store.saved, 1)
		assert.Equal(t, c.priority, store.saved[0].priority, "cts=%v", c.cts)
	}
}

func TestProcess_BlockedPersistedButNotQueued(t *testing.T) {
	blocked := analyzerFunc(func(_ context.Context, text, platform string, _ map[string]any) pipeline.State {
		return pipeline.State{
			Text: text, Platform: platform, Blocked: true,
			Risk: &pipeline.Risk{RiskLevel: pipeline.RiskBlocked, RiskScore: 1.0},
			CTS:  &pipeline.CTS{CTSScore: 0, CanAutoPost: false},
		}
	})

	store := &fakeStore{}
	clusterCalls := 0
	sink := clusterSinkFunc(func(context.Context, CrawledPost, float64) { clusterCalls++ })
	p := NewProcessor(store, blocked, sink, logging.Nop())

	stats := p.Process(context.Background(), "cfg", &CrawlResult{Posts: []CrawledPost{post("https://reddit.com/crisis", "text")}})

	assert.Equal(t, 1, stats.Processed)
	assert.Zero(t, stats.Queued)
	require.Len(t, store.saved, 1)
	assert.Zero(t, store.saved[0].priority)
	assert.Zero(t, clusterCalls)
}

type clusterSinkFunc func(ctx context.Context, post CrawledPost, ctsScore float64)

func (f clusterSinkFunc) NotifyCandidate(ctx context.Context, post CrawledPost, ctsScore float64) {
	f(ctx, post, ctsScore)
}

func TestProcess_PipelineErrorCounted(t *testing.T) {
	failing := analyzerFunc(func(_ context.Context, text, platform string, _ map[string]any) pipeline.State {
		return pipeline.State{Text: text, Platform: platform, Error: "provider timeout"}
	})
	store := &fakeStore{}
	p := NewProcessor(store, failing, nil, logging.Nop())

	stats := p.Process(context.Background(), "cfg", &CrawlResult{Posts: []CrawledPost{post("https://reddit.com/x", "text")}})
	assert.Equal(t, 1, stats.Errors)
	assert.Zero(t, stats.Queued)
	assert.Empty(t, store.saved)
}

func TestPlatformFromURL(t *testing.T) {
	assert.Equal(t, "reddit", platformFromURL("https://www.reddit.com/r/golang/comments/x"))
	assert.Equal(t, "twitter", platformFromURL("https://x.com/someone/status/123"))
	assert.Equal(t, "quora", platformFromURL("https://www.quora.com/some-question"))
	assert.Equal(t, "unknown", platformFromURL("https://example.com"))
}
