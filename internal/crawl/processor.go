package crawl

import (
	"context"
	"strings"

	"github.com/reachby3c/engagement-agent/internal/pipeline"
	"github.com/reachby3c/engagement-agent/internal/platform/logging"
)

// Store is the persistence seam the Processor needs: a duplicate check on
// external_url and an atomic write of the post plus its pipeline analysis.
// The concrete implementation (storage.PostStore, hand-written SQL over
// database/sql) lives outside this
// package; the Processor only depends on this narrow interface so it can
// be tested without a database.
type Store interface {
	// ExternalURLExists reports whether a post with this external_url has
	// already been persisted.
	ExternalURLExists(ctx context.Context, externalURL string) (bool, error)

	// SavePost persists the crawled post together with its pipeline
	// analysis and resulting queue row, atomically. priority is the
	// Processor-derived queue priority (1 highest .. 5 lowest).
	SavePost(ctx context.Context, post CrawledPost, result pipeline.State, priority int) error
}

// ProcessStats reports one callback invocation's outcome.
type ProcessStats struct {
	NewPosts   int
	Duplicates int
	Processed  int
	Queued     int
	Errors     int
}

// Analyzer is the slice of the analysis pipeline the Processor needs;
// pipeline.Driver satisfies it.
type Analyzer interface {
	Run(ctx context.Context, text, platform string, tenantContext map[string]any) pipeline.State
}

// Processor is the Scheduler's result callback target: it dedupes,
// analyzes, and persists each crawled post, deriving a posting-queue
// priority from the pipeline's CTS score.
type Processor struct {
	store    Store
	pipeline Analyzer
	cluster  ClusterSink
	logger   logging.Logger
}

// ClusterSink receives a marker for every non-blocked, persisted post so a
// downstream clustering pass can later group related discoveries. Kept
// deliberately narrow: the Processor has no opinion on how clustering
// consumes these markers.
type ClusterSink interface {
	NotifyCandidate(ctx context.Context, post CrawledPost, ctsScore float64)
}

func NewProcessor(store Store, analyzer Analyzer, cluster ClusterSink, logger logging.Logger) *Processor {
	return &Processor{store: store, pipeline: analyzer, cluster: cluster, logger: logger}
}

// Callback adapts Process to the Scheduler's ResultCallback shape (which
// carries no context, matching the Scheduler's own trigger signature).
func (p *Processor) Callback() ResultCallback {
	return func(configName string, result *CrawlResult) {
		p.Process(context.Background(), configName, result)
	}
}

// Process dedupes, analyzes, and persists one crawl batch, returning
// summary stats. Exposed directly (in addition to Callback) so synchronous
// callers (e.g. an operator CLI's run-now) can inspect the outcome.
func (p *Processor) Process(ctx context.Context, configName string, result *CrawlResult) ProcessStats {
	stats := ProcessStats{}

	for _, post := range result.Posts {
		if post.ExternalURL == "" || strings.TrimSpace(post.Content) == "" {
			stats.Errors++
			continue
		}

		exists, err := p.store.ExternalURLExists(ctx, post.ExternalURL)
		if err != nil {
			p.logger.Error("crawl processor dedupe check failed", "config", configName, "url", post.ExternalURL, "error", err)
			stats.Errors++
			continue
		}
		if exists {
			stats.Duplicates++
			continue
		}
		stats.NewPosts++

		platform := post.Platform
		if platform == "" {
			platform = platformFromURL(post.ExternalURL)
		}

		state := p.pipeline.Run(ctx, post.Content, platform, nil)
		if state.Error != "" {
			p.logger.Warn("crawl processor pipeline error", "config", configName, "url", post.ExternalURL, "error", state.Error)
			stats.Errors++
			continue
		}
		stats.Processed++

		if state.Blocked {
			// A blocked analysis is still persisted (for audit) but never
			// queued for auto-posting or clustering.
			if err := p.store.SavePost(ctx, post, state, 0); err != nil {
				p.logger.Error("crawl processor save (blocked) failed", "url", post.ExternalURL, "error", err)
				stats.Errors++
			}
			continue
		}

		priority := queuePriorityFor(state)
		if err := p.store.SavePost(ctx, post, state, priority); err != nil {
			p.logger.Error("crawl processor save failed", "url", post.ExternalURL, "error", err)
			stats.Errors++
			continue
		}
		stats.Queued++

		if p.cluster != nil && state.CTS != nil {
			p.cluster.NotifyCandidate(ctx, post, state.CTS.CTSScore)
		}
	}

	p.logger.Info("crawl batch processed", "config", configName,
		"new_posts", stats.NewPosts, "duplicates", stats.Duplicates,
		"processed", stats.Processed, "queued", stats.Queued, "errors", stats.Errors)
	return stats
}

// queuePriorityFor derives the posting-queue priority band from the
// pipeline's CTS score: higher scores get the lowest (most urgent) number.
func queuePriorityFor(state pipeline.State) int {
	if state.CTS == nil {
		return 5
	}
	score := state.CTS.CTSScore
	switch {
	case score >= 0.8:
		return 1
	case score >= 0.6:
		return 2
	case score >= 0.4:
		return 3
	case score >= 0.2:
		return 4
	default:
		return 5
	}
}

// platformFromURL is the fallback platform detector used when a
// CrawledPost arrives without its Platform field populated.
func platformFromURL(url string) string {
	switch {
	case strings.Contains(url, "reddit.com"):
		return "reddit"
	case strings.Contains(url, "twitter.com"), strings.Contains(url, "x.com"):
		return "twitter"
	case strings.Contains(url, "quora.com"):
		return "quora"
	default:
		return "unknown"
	}
}
