// Package quora scrapes Quora's public search results page with goquery,
// since Quora has no public content API. Tuned conservatively (~10 req/min
// with a 3s floor) since scraping is more fragile than a real API
// and more likely to trip anti-bot defenses under load.
package quora

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/sony/gobreaker"

	"github.com/reachby3c/engagement-agent/internal/crawl"
	"github.com/reachby3c/engagement-agent/internal/metrics"
	"github.com/reachby3c/engagement-agent/internal/ratelimit"
)

const searchURL = "https://www.quora.com/search"

// userAgents is rotated per request so the scraper's traffic doesn't
// present a single fingerprint.
var userAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4 Safari/605.1.15",
	"Mozilla/5.0 (X11; Linux x86_64; rv:125.0) Gecko/20100101 Firefox/125.0",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:125.0) Gecko/20100101 Firefox/125.0",
}

type Config struct {
	UserAgent string // fixed override; empty rotates through userAgents
}

type Adapter struct {
	cfg        Config
	httpClient *http.Client
	limiter    *ratelimit.Limiter
	throttle   *crawl.Throttle
	breaker    *gobreaker.CircuitBreaker

	mu      sync.Mutex
	uaIndex int
}

func (a *Adapter) userAgent() string {
	if a.cfg.UserAgent != "" {
		return a.cfg.UserAgent
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	ua := userAgents[a.uaIndex%len(userAgents)]
	a.uaIndex++
	return ua
}

func New(cfg Config) *Adapter {
	return &Adapter{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 20 * time.Second},
		limiter: ratelimit.New(ratelimit.Config{
			PerMinute: 10, PerHour: 300, PerDay: 3000,
			MinDelay: 3 * time.Second, BackoffBase: 5 * time.Second, BackoffMult: 2, MaxBackoff: 10 * time.Minute,
		}),
		throttle: crawl.NewThrottle(1.0/3.0, 1),
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name: "quora-crawler", Timeout: time.Minute,
			ReadyToTrip: func(c gobreaker.Counts) bool { return c.ConsecutiveFailures >= 3 },
		}),
	}
}

func (a *Adapter) Platform() string { return "quora" }

func (a *Adapter) Initialize(ctx context.Context) error { return nil }
func (a *Adapter) Close(ctx context.Context) error      { return nil }

func (a *Adapter) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "https://www.quora.com", nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", a.userAgent())
	resp, err := a.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("quora health check: status %d", resp.StatusCode)
	}
	return nil
}

func (a *Adapter) Search(ctx context.Context, keywords []string, sources []string, limit int, options crawl.SearchOptions) (*crawl.CrawlResult, error) {
	result := &crawl.CrawlResult{Platform: "quora"}
	start := time.Now()
	defer func() { result.CrawlTime = time.Since(start) }()

	query := strings.Join(keywords, " ")
	if query == "" {
		result.Errors = append(result.Errors, "quora search requires at least one keyword")
		return result, nil
	}

	waitStart := time.Now()
	if err := a.limiter.Acquire(ctx); err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("rate limiter: %v", err))
		return result, nil
	}
	metrics.RateLimiterWaitSeconds.WithLabelValues("quora").Observe(time.Since(waitStart).Seconds())
	if err := a.throttle.Wait(ctx, "quora:search"); err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("throttle: %v", err))
		return result, nil
	}

	posts, rateLimited, err := a.searchPage(ctx, query, limit)
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

// GetRecent has no unauthenticated "recent questions for topic" surface on
// Quora; it falls back to treating sources as search terms.
func (a *Adapter) GetRecent(ctx context.Context, sources []string, limit int, options crawl.SearchOptions) (*crawl.CrawlResult, error) {
	return a.Search(ctx, sources, nil, limit, options)
}

func (a *Adapter) searchPage(ctx context.Context, query string, limit int) ([]crawl.CrawledPost, bool, error) {
	q := url.Values{}
	q.Set("q", query)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, searchURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, false, err
	}
	req.Header.Set("User-Agent", a.userAgent())

	out, err := a.breaker.Execute(func() (any, error) {
		resp, err := a.httpClient.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusTooManyRequests {
			return nil, errRateLimited
		}
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("quora search: status %d", resp.StatusCode)
		}
		return goquery.NewDocumentFromReader(resp.Body)
	})
	if err == errRateLimited {
		return nil, true, nil
	}
	if err != nil {
		return nil, false, err
	}

	doc, ok := out.(*goquery.Document)
	if !ok {
		return nil, false, fmt.Errorf("quora search: unexpected document type")
	}

	posts := make([]crawl.CrawledPost, 0, limit)
	doc.Find("a.question_link").Each(func(_ int, s *goquery.Selection) {
		if len(posts) >= limit {
			return
		}
		href, exists := s.Attr("href")
		if !exists || href == "" {
			return
		}
		title := strings.TrimSpace(s.Text())
		if title == "" {
			return
		}
		posts = append(posts, crawl.CrawledPost{
			ExternalID:  href,
			ExternalURL: absoluteQuoraURL(href),
			Content:     title,
			ContentType: crawl.ContentQuestion,
			CrawledAt:   time.Now().UTC(),
			Platform:    "quora",
		})
	})

	return posts, false, nil
}

var errRateLimited = fmt.Errorf("quora responded 429")

func absoluteQuoraURL(href string) string {
	if strings.HasPrefix(href, "http") {
		return href
	}
	return "https://www.quora.com" + href
}
