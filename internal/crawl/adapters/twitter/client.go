// Package twitter implements the Twitter/X crawl adapter against the v2
// recent-search endpoint, tuned to the v2 free tier's ~4 req/min budget via
// internal/ratelimit.
package twitter

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"github.com/reachby3c/engagement-agent/internal/crawl"
	"github.com/reachby3c/engagement-agent/internal/metrics"
	"github.com/reachby3c/engagement-agent/internal/ratelimit"
)

const searchRecentURL = "https://api.twitter.com/2/tweets/search/recent"

type Config struct {
	BearerToken string
}

type Adapter struct {
	cfg        Config
	httpClient *http.Client
	limiter    *ratelimit.Limiter
	throttle   *crawl.Throttle
	breaker    *gobreaker.CircuitBreaker
}

func New(cfg Config) *Adapter {
	return &Adapter{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		limiter: ratelimit.New(ratelimit.Config{
			PerMinute: 4, PerHour: 180, PerDay: 2000,
			MinDelay: 2 * time.Second, BackoffBase: 5 * time.Second, BackoffMult: 2, MaxBackoff: 10 * time.Minute,
		}),
		throttle: crawl.NewThrottle(0.1, 1),
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name: "twitter-crawler", Timeout: time.Minute,
			ReadyToTrip: func(c gobreaker.Counts) bool { return c.ConsecutiveFailures >= 5 },
		}),
	}
}

func (a *Adapter) Platform() string { return "twitter" }

func (a *Adapter) Initialize(ctx context.Context) error { return nil }
func (a *Adapter) Close(ctx context.Context) error      { return nil }

func (a *Adapter) HealthCheck(ctx context.Context) error {
	if a.cfg.BearerToken == "" {
		return fmt.Errorf("twitter adapter missing bearer token")
	}
	return nil
}

func (a *Adapter) Search(ctx context.Context, keywords []string, sources []string, limit int, options crawl.SearchOptions) (*crawl.CrawlResult, error) {
	result := &crawl.CrawlResult{Platform: "twitter"}
	start := time.Now()
	defer func() { result.CrawlTime = time.Since(start) }()

	query := strings.Join(keywords, " OR ")
	if query == "" {
		result.Errors = append(result.Errors, "twitter search requires at least one keyword")
		return result, nil
	}
	query += " -is:retweet lang:en"

	waitStart := time.Now()
	if err := a.limiter.Acquire(ctx); err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("rate limiter: %v", err))
		return result, nil
	}
	metrics.RateLimiterWaitSeconds.WithLabelValues("twitter").Observe(time.Since(waitStart).Seconds())
	if err := a.throttle.Wait(ctx, "twitter:search"); err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("throttle: %v", err))
		return result, nil
	}

	tweets, rateLimited, err := a.searchRecent(ctx, query, limit)
	if err != nil {
		a.limiter.RecordFailure()
		result.Errors = append(result.Errors, err.Error())
		return result, nil
	}
	if rateLimited {
		a.limiter.RecordRateLimitHit()
		result.RateLimited = true
		return result, nil
	}
	a.limiter.RecordSuccess()

	result.Posts = tweets
	result.TotalFound = len(tweets)
	return result, nil
}

// GetRecent has no keyword-free recent-search equivalent on the free tier;
// it searches for tweets from the given handles ("from:" filters) instead.
func (a *Adapter) GetRecent(ctx context.Context, sources []string, limit int, options crawl.SearchOptions) (*crawl.CrawlResult, error) {
	keywords := make([]string, 0, len(sources))
	for _, handle := range sources {
		keywords = append(keywords, "from:"+strings.TrimPrefix(handle, "@"))
	}
	return a.Search(ctx, keywords, nil, limit, options)
}

func (a *Adapter) searchRecent(ctx context.Context, query string, limit int) ([]crawl.CrawledPost, bool, error) {
	if limit < 10 {
		limit = 10
	}
	if limit > 100 {
		limit = 100
	}

	q := url.Values{}
	q.Set("query", query)
	q.Set("max_results", strconv.Itoa(limit))
	q.Set("tweet.fields", "created_at,public_metrics,author_id")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, searchRecentURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, false, err
	}
	req.Header.Set("Authorization", "Bearer "+a.cfg.BearerToken)

	out, err := a.breaker.Execute(func() (any, error) {
		resp, err := a.httpClient.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusTooManyRequests {
			return searchResponse{rateLimited: true}, nil
		}
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("twitter search: status %d", resp.StatusCode)
		}

		var sr searchResponse
		if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
			return nil, err
		}
		return sr, nil
	})
	if err != nil {
		return nil, false, err
	}

	sr, ok := out.(searchResponse)
	if !ok {
		return nil, false, nil
	}
	if sr.rateLimited {
		return nil, true, nil
	}

	posts := make([]crawl.CrawledPost, 0, len(sr.Data))
	for _, t := range sr.Data {
		posts = append(posts, normalizeTweet(t))
	}
	return posts, false, nil
}

type tweet struct {
	ID            string `json:"id"`
	Text          string `json:"text"`
	AuthorID      string `json:"author_id"`
	CreatedAt     string `json:"created_at"`
	PublicMetrics struct {
		LikeCount   int64 `json:"like_count"`
		ReplyCount  int64 `json:"reply_count"`
		RetweetCount int64 `json:"retweet_count"`
	} `json:"public_metrics"`
}

type searchResponse struct {
	Data        []tweet `json:"data"`
	rateLimited bool
}

func normalizeTweet(t tweet) crawl.CrawledPost {
	var created *time.Time
	if parsed, err := time.Parse(time.RFC3339, t.CreatedAt); err == nil {
		created = &parsed
	}
	return crawl.CrawledPost{
		ExternalID:        t.ID,
		ExternalURL:       fmt.Sprintf("https://twitter.com/i/web/status/%s", t.ID),
		Content:           t.Text,
		ContentType:       crawl.ContentTweet,
		AuthorHandle:      t.AuthorID,
		ExternalCreatedAt: created,
		CrawledAt:         time.Now().UTC(),
		Platform:          "twitter",
		EngagementMetrics: map[string]int64{
			"likes": t.PublicMetrics.LikeCount, "replies": t.PublicMetrics.ReplyCount, "retweets": t.PublicMetrics.RetweetCount,
		},
	}
}
