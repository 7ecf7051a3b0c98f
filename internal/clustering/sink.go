// Package clustering is a narrow touchpoint for a downstream
// related-discoveries grouping pass (embedding similarity over crawled
// posts to surface duplicate campaigns across subreddits). That pass
// lives elsewhere; the crawl processor only needs somewhere to hand off
// every non-blocked post it persists, so a later pass can be added
// without reopening the processor.
package clustering

import (
	"context"

	"github.com/reachby3c/engagement-agent/internal/crawl"
	"github.com/reachby3c/engagement-agent/internal/platform/logging"
)

// Sink receives a marker for each post the Processor considered a
// candidate for clustering (non-duplicate, non-blocked, persisted).
type Sink interface {
	NotifyCandidate(ctx context.Context, post crawl.CrawledPost, ctsScore float64)
}

// NopSink discards every marker. It satisfies crawl.ClusterSink so the
// Processor can always be given a non-nil sink.
type NopSink struct {
	logger logging.Logger
}

func NewNopSink(logger logging.Logger) *NopSink {
	return &NopSink{logger: logger}
}

func (s *NopSink) NotifyCandidate(_ context.Context, post crawl.CrawledPost, ctsScore float64) {
	s.logger.Debug("cluster candidate", "external_url", post.ExternalURL, "cts_score", ctsScore)
}
