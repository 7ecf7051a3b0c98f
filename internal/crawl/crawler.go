package crawl

import "context"

// SearchOptions carries the opaque, per-platform knobs a Crawler.Search or
// Crawler.GetRecent call may need (e.g. sort order, time window).
type SearchOptions map[string]any

// Crawler is the uniform per-platform discovery contract. Every
// adapter owns its own rate limiter tuned to that platform's API and
// normalizes native responses into CrawledPost values. Errors observed
// while crawling are non-fatal: they accumulate into CrawlResult.Errors
// rather than being returned from Search/GetRecent, so a partial page of
// results is never discarded because one item failed to parse.
type Crawler interface {
	// Initialize prepares the adapter (auth handshake, client setup). It
	// must be safe to call more than once; a repeated call does no work
	// unless the adapter's auth has expired.
	Initialize(ctx context.Context) error

	// Close releases any held resources (HTTP clients, sessions).
	Close(ctx context.Context) error

	// Search looks for content matching keywords, optionally restricted to
	// sources (e.g. subreddit names), returning at most limit posts.
	Search(ctx context.Context, keywords []string, sources []string, limit int, options SearchOptions) (*CrawlResult, error)

	// GetRecent fetches the most recent content from sources without a
	// keyword filter.
	GetRecent(ctx context.Context, sources []string, limit int, options SearchOptions) (*CrawlResult, error)

	// HealthCheck reports whether the adapter can currently reach its
	// platform (auth still valid, endpoint reachable).
	HealthCheck(ctx context.Context) error

	// Platform returns the platform tag this adapter serves (e.g. "reddit").
	Platform() string
}
