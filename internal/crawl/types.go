// Package crawl defines the uniform content-discovery contract: the
// CrawledPost/CrawlResult data shapes, the Crawler interface every platform
// adapter implements, and the scheduler that drives them.
package crawl

import (
	"time"

	"github.com/google/uuid"
)

// ContentType is a closed enum of the shapes of content a Crawler returns.
type ContentType string

const (
	ContentPost        ContentType = "post"
	ContentComment     ContentType = "comment"
	ContentReply       ContentType = "reply"
	ContentThread      ContentType = "thread"
	ContentQuestion    ContentType = "question"
	ContentAnswer      ContentType = "answer"
	ContentTweet       ContentType = "tweet"
	ContentRetweet     ContentType = "retweet"
	ContentSearchResult ContentType = "search_result"
)

// CrawledPost is discovered content, normalized from whatever shape the
// source platform used. Once persisted it is immutable; the Processor
// dedupes on ExternalURL before that happens.
type CrawledPost struct {
	ID                uuid.UUID
	ExternalID        string // unique per Platform+ExternalID
	ExternalURL       string
	Content           string
	ContentType       ContentType
	AuthorHandle      string
	AuthorDisplayName string
	PlatformMetadata  map[string]any
	ExternalCreatedAt *time.Time // unknown on some sources
	CrawledAt         time.Time
	Platform          string
	KeywordsMatched   []string
	EngagementMetrics map[string]int64
	ParentID          *uuid.UUID
}

// CrawlResult is the outcome of one Crawler.Search or Crawler.GetRecent call.
// Partial success is allowed: Errors may be non-empty alongside a non-empty
// Posts slice.
type CrawlResult struct {
	Platform    string
	Posts       []CrawledPost
	TotalFound  int
	CrawlTime   time.Duration
	Errors      []string
	RateLimited bool
	NextCursor  string // opaque pagination token, empty when absent
}

// Partial reports whether this result carries both successes and failures,
// which the Scheduler counts as a partial-success run.
func (r CrawlResult) Partial() bool {
	return len(r.Errors) > 0 && len(r.Posts) > 0
}
