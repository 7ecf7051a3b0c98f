// Package serpapi implements a Google-search crawl adapter via the SerpAPI
// proxy, used to discover unindexed-by-our-other-adapters mentions (forum
// posts, blog comments) via web search rather than a platform-native API.
package serpapi

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

const searchURL = "https://serpapi.com/search"

type Config struct {
	APIKey string
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
			PerMinute: 10, PerHour: 300, PerDay: 2000,
			MinDelay: time.Second, BackoffBase: 2 * time.Second, BackoffMult: 2, MaxBackoff: 5 * time.Minute,
		}),
		throttle: crawl.NewThrottle(1.0/6.0, 1),
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name: "serpapi-crawler", Timeout: 30 * time.Second,
			ReadyToTrip: func(c gobreaker.Counts) bool { return c.ConsecutiveFailures >= 5 },
		}),
	}
}

func (a *Adapter) Platform() string { return "google" }

func (a *Adapter) Initialize(ctx context.Context) error { return nil }
func (a *Adapter) Close(ctx context.Context) error      { return nil }

func (a *Adapter) HealthCheck(ctx context.Context) error {
	if a.cfg.APIKey == "" {
		return fmt.Errorf("serpapi adapter missing api key")
	}
	return nil
}

func (a *Adapter) Search(ctx context.Context, keywords []string, sources []string, limit int, options crawl.SearchOptions) (*crawl.CrawlResult, error) {
	result := &crawl.CrawlResult{Platform: "google"}
	start := time.Now()
	defer func() { result.CrawlTime = time.Since(start) }()

	query := strings.Join(keywords, " ")
	if len(sources) > 0 {
		query += " site:" + strings.Join(sources, " OR site:")
	}
	if query == "" {
		result.Errors = append(result.Errors, "serpapi search requires at least one keyword")
		return result, nil
	}

	waitStart := time.Now()
	if err := a.limiter.Acquire(ctx); err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("rate limiter: %v", err))
		return result, nil
	}
	metrics.RateLimiterWaitSeconds.WithLabelValues("google").Observe(time.Since(waitStart).Seconds())
	if err := a.throttle.Wait(ctx, "google:search"); err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("throttle: %v", err))
		return result, nil
	}

	posts, rateLimited, err := a.runSearch(ctx, query, limit)
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

	result.Posts = posts
	result.TotalFound = len(posts)
	return result, nil
}

// GetRecent has no meaning for a web-search proxy; it is a thin alias of
// Search with the sources used as site: filters and no keyword narrowing.
func (a *Adapter) GetRecent(ctx context.Context, sources []string, limit int, options crawl.SearchOptions) (*crawl.CrawlResult, error) {
	return a.Search(ctx, []string{"*"}, sources, limit, options)
}

func (a *Adapter) runSearch(ctx context.Context, query string, limit int) ([]crawl.CrawledPost, bool, error) {
	q := url.Values{}
	q.Set("engine", "google")
	q.Set("q", query)
	q.Set("api_key", a.cfg.APIKey)
	q.Set("num", strconv.Itoa(limit))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, searchURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, false, err
	}

	out, err := a.breaker.Execute(func() (any, error) {
		resp, err := a.httpClient.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusTooManyRequests {
			return serpResponse{rateLimited: true}, nil
		}
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("serpapi search: status %d", resp.StatusCode)
		}

		var sr serpResponse
		if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
			return nil, err
		}
		return sr, nil
	})
	if err != nil {
		return nil, false, err
	}

	sr, ok := out.(serpResponse)
	if !ok {
		return nil, false, nil
	}
	if sr.rateLimited {
		return nil, true, nil
	}

	posts := make([]crawl.CrawledPost, 0, len(sr.OrganicResults))
	for _, r := range sr.OrganicResults {
		if len(posts) >= limit && limit > 0 {
			break
		}
		posts = append(posts, crawl.CrawledPost{
			ExternalID:  r.Link,
			ExternalURL: r.Link,
			Content:     r.Title + "\n\n" + r.Snippet,
			ContentType: crawl.ContentSearchResult,
			CrawledAt:   time.Now().UTC(),
			Platform:    "google",
		})
	}
	return posts, false, nil
}

type organicResult struct {
	Title   string `json:"title"`
	Link    string `json:"link"`
	Snippet string `json:"snippet"`
}

type serpResponse struct {
	OrganicResults []organicResult `json:"organic_results"`
	rateLimited    bool
}
