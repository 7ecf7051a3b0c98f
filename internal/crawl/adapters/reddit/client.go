// Package reddit implements the Reddit crawl adapter: OAuth-authenticated
// search over the reddit.com JSON API, with a dedicated ratelimit.Limiter
// tuned to Reddit's ~30 req/min OAuth budget and a crawl.Throttle burst
// guard on top.
package reddit

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
	"github.com/reachby3c/engagement-agent/internal/platform/apperrors"
	"github.com/reachby3c/engagement-agent/internal/ratelimit"
)

const (
	authURL   = "https://www.reddit.com/api/v1/access_token"
	searchURL = "https://oauth.reddit.com/search"
	baseAPI   = "https://oauth.reddit.com"
)

// Config carries the OAuth app credentials Reddit requires for its
// script-app grant.
type Config struct {
	ClientID     string
	ClientSecret string
	Username     string
	Password     string
	UserAgent    string
}

// Adapter implements crawl.Crawler for Reddit.
type Adapter struct {
	cfg        Config
	httpClient *http.Client
	limiter    *ratelimit.Limiter
	throttle   *crawl.Throttle
	breaker    *gobreaker.CircuitBreaker

	accessToken string
	tokenExpiry time.Time
}

func New(cfg Config) *Adapter {
	return &Adapter{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		limiter: ratelimit.New(ratelimit.Config{
			PerMinute: 30, PerHour: 1000, PerDay: 10000,
			MinDelay: 200 * time.Millisecond, BackoffBase: time.Second, BackoffMult: 2, MaxBackoff: 5 * time.Minute,
		}),
		throttle: crawl.NewThrottle(0.5, 2),
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name: "reddit-crawler", Timeout: 30 * time.Second,
			ReadyToTrip: func(c gobreaker.Counts) bool { return c.ConsecutiveFailures >= 5 },
		}),
	}
}

func (a *Adapter) Platform() string { return "reddit" }

// Initialize performs the password-grant OAuth handshake; safe to call
// repeatedly, it only re-authenticates once the cached token has expired.
func (a *Adapter) Initialize(ctx context.Context) error {
	if a.accessToken != "" && time.Now().Before(a.tokenExpiry) {
		return nil
	}

	form := url.Values{}
	form.Set("grant_type", "password")
	form.Set("username", a.cfg.Username)
	form.Set("password", a.cfg.Password)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, authURL, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.SetBasicAuth(a.cfg.ClientID, a.cfg.ClientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", a.cfg.UserAgent)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return apperrors.Newf(apperrors.KindTargetUnavailable, "reddit auth request: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return apperrors.Newf(apperrors.KindProviderAuth, "reddit auth failed: status %d", resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return apperrors.Newf(apperrors.KindTargetUnavailable, "reddit auth failed: status %d", resp.StatusCode)
	}

	var tok struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
		return err
	}
	a.accessToken = tok.AccessToken
	a.tokenExpiry = time.Now().Add(time.Duration(tok.ExpiresIn-30) * time.Second)
	return nil
}

func (a *Adapter) Close(ctx context.Context) error { return nil }

func (a *Adapter) HealthCheck(ctx context.Context) error {
	return a.Initialize(ctx)
}

// Search queries reddit.com/search (or per-subreddit search when sources
// names subreddits) for keywords, returning up to limit normalized posts.
func (a *Adapter) Search(ctx context.Context, keywords []string, sources []string, limit int, options crawl.SearchOptions) (*crawl.CrawlResult, error) {
	result := &crawl.CrawlResult{Platform: "reddit"}
	start := time.Now()
	defer func() { result.CrawlTime = time.Since(start) }()

	query := strings.Join(keywords, " OR ")
	if query == "" {
		result.Errors = append(result.Errors, "reddit search requires at least one keyword")
		return result, nil
	}

	if len(sources) == 0 {
		sources = []string{""}
	}

	for _, subreddit := range sources {
		if err := a.limiter.Acquire(ctx); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("rate limiter: %v", err))
			continue
		}
		if err := a.throttle.Wait(ctx, "reddit:"+a.cfg.Username); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("throttle: %v", err))
			continue
		}

		posts, rateLimited, err := a.searchOne(ctx, query, subreddit, limit)
		if err != nil {
			a.limiter.RecordFailure()
			result.Errors = append(result.Errors, err.Error())
			continue
		}
		if rateLimited {
			a.limiter.RecordRateLimitHit()
			result.RateLimited = true
			continue
		}
		a.limiter.RecordSuccess()
		result.Posts = append(result.Posts, posts...)
	}

	result.TotalFound = len(result.Posts)
	if len(result.Posts) > limit && limit > 0 {
		result.Posts = result.Posts[:limit]
	}
	return result, nil
}

// GetRecent fetches each source's newest posts without a keyword filter.
func (a *Adapter) GetRecent(ctx context.Context, sources []string, limit int, options crawl.SearchOptions) (*crawl.CrawlResult, error) {
	return a.Search(ctx, []string{"*"}, sources, limit, options)
}

func (a *Adapter) searchOne(ctx context.Context, query, subreddit string, limit int) ([]crawl.CrawledPost, bool, error) {
	u := searchURL
	if subreddit != "" {
		u = fmt.Sprintf("%s/r/%s/search", baseAPI, subreddit)
	}

	q := url.Values{}
	q.Set("q", query)
	q.Set("limit", strconv.Itoa(limit))
	q.Set("sort", "new")
	if subreddit != "" {
		q.Set("restrict_sr", "1")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u+"?"+q.Encode(), nil)
	if err != nil {
		return nil, false, err
	}
	req.Header.Set("Authorization", "Bearer "+a.accessToken)
	req.Header.Set("User-Agent", a.cfg.UserAgent)

	out, err := a.breaker.Execute(func() (any, error) {
		resp, err := a.httpClient.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusTooManyRequests {
			return listing{rateLimited: true}, nil
		}
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("reddit search: status %d", resp.StatusCode)
		}

		var l listing
		if err := json.NewDecoder(resp.Body).Decode(&l); err != nil {
			return nil, err
		}
		return l, nil
	})
	if err != nil {
		return nil, false, err
	}

	l, ok := out.(listing)
	if !ok || len(l.Data.Children) == 0 {
		return nil, len(l.Data.Children) == 0 && ok && l.rateLimited, nil
	}

	posts := make([]crawl.CrawledPost, 0, len(l.Data.Children))
	for _, c := range l.Data.Children {
		posts = append(posts, normalizePost(c.Data))
	}
	return posts, false, nil
}

type listing struct {
	Data struct {
		Children []struct {
			Data redditPost `json:"data"`
		} `json:"children"`
	} `json:"data"`
	rateLimited bool
}

type redditPost struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Title       string  `json:"title"`
	Selftext    string  `json:"selftext"`
	Author      string  `json:"author"`
	Permalink   string  `json:"permalink"`
	CreatedUTC  float64 `json:"created_utc"`
	Subreddit   string  `json:"subreddit"`
	Score       int64   `json:"score"`
	NumComments int64   `json:"num_comments"`
}

func normalizePost(p redditPost) crawl.CrawledPost {
	created := time.Unix(int64(p.CreatedUTC), 0).UTC()
	content := p.Title
	if p.Selftext != "" {
		content = p.Title + "\n\n" + p.Selftext
	}
	return crawl.CrawledPost{
		ExternalID:        p.Name,
		ExternalURL:       "https://www.reddit.com" + p.Permalink,
		Content:           content,
		ContentType:       crawl.ContentPost,
		AuthorHandle:      p.Author,
		ExternalCreatedAt: &created,
		CrawledAt:         time.Now().UTC(),
		Platform:          "reddit",
		PlatformMetadata:  map[string]any{"subreddit": p.Subreddit},
		EngagementMetrics: map[string]int64{"score": p.Score, "comments": p.NumComments},
	}
}
