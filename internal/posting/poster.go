package posting

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/sony/gobreaker"

	"github.com/reachby3c/engagement-agent/internal/platform/apperrors"
)

// Error codes a Poster can report. RATELIMIT is retryable; the others named
// here are not. The 5xx/network/timeout family is also retryable and is not
// named here; the adapter reports it directly on PostResult.
const (
	ErrCodeRateLimit        = "RATELIMIT"
	ErrCodeDeletedComment   = "DELETED_COMMENT"
	ErrCodeThreadLocked     = "THREAD_LOCKED"
	ErrCodeDuplicateTweet   = "DUPLICATE_TWEET"
	ErrCodeAuthFailed       = "AUTH_FAILED"
	ErrCodeMissingCreds     = "MISSING_CREDENTIALS"
	ErrCodeBlockedSubreddit = "BLOCKED_SUBREDDIT"
)

var disablingErrorCodes = map[string]bool{
	ErrCodeAuthFailed:   true,
	ErrCodeMissingCreds: true,
}

// PostOptions carries per-post knobs a Poster may honor (e.g. a subreddit
// flair or a tweet's reply-settings override); left opaque to the queue.
type PostOptions map[string]any

// Poster is the uniform per-platform posting contract every adapter
// implements. Each adapter parses the target URL itself to identify what it
// is replying to (post vs. comment on Reddit; tweet on Twitter).
type Poster interface {
	Initialize(ctx context.Context) error
	Close(ctx context.Context) error
	Post(ctx context.Context, responseText, targetURL string, applyDelay bool, originalTextLength int, opts PostOptions) (PostResult, error)
	VerifyPosted(ctx context.Context, externalID string) (bool, error)
	HealthCheck(ctx context.Context) error
}

// BreakerPoster wraps a Poster in a circuit breaker that trips open on
// repeated auth or transient provider failures, matching the same breaker
// pattern the LLM client uses. Once auth or missing-credentials errors
// surface, the underlying adapter is also marked disabled so future calls
// fail fast without even reaching the breaker.
type BreakerPoster struct {
	inner    Poster
	breaker  *gobreaker.CircuitBreaker
	disabled atomic.Bool
}

func NewBreakerPoster(name string, inner Poster) *BreakerPoster {
	st := gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
	}
	return &BreakerPoster{inner: inner, breaker: gobreaker.NewCircuitBreaker(st)}
}

func (b *BreakerPoster) Initialize(ctx context.Context) error { return b.inner.Initialize(ctx) }
func (b *BreakerPoster) Close(ctx context.Context) error      { return b.inner.Close(ctx) }

func (b *BreakerPoster) Post(ctx context.Context, responseText, targetURL string, applyDelay bool, originalTextLength int, opts PostOptions) (PostResult, error) {
	if b.disabled.Load() {
		return PostResult{Success: false, ErrorCode: ErrCodeMissingCreds, Retryable: false},
			apperrors.Newf(apperrors.KindTargetUnavailable, "poster disabled after auth failure")
	}

	out, err := b.breaker.Execute(func() (any, error) {
		result, innerErr := b.inner.Post(ctx, responseText, targetURL, applyDelay, originalTextLength, opts)
		if innerErr != nil {
			return result, innerErr
		}
		if !result.Success && disablingErrorCodes[result.ErrorCode] {
			return result, errors.New("disabling poster error: " + result.ErrorCode)
		}
		return result, nil
	})

	result, _ := out.(PostResult)
	if result.ErrorCode != "" && disablingErrorCodes[result.ErrorCode] {
		b.disabled.Store(true)
	}
	if err != nil && result.ErrorCode == "" {
		return PostResult{Success: false, ErrorCode: "BREAKER_OPEN", Retryable: true}, err
	}
	return result, nil
}

func (b *BreakerPoster) VerifyPosted(ctx context.Context, externalID string) (bool, error) {
	return b.inner.VerifyPosted(ctx, externalID)
}

func (b *BreakerPoster) HealthCheck(ctx context.Context) error {
	if b.disabled.Load() {
		return apperrors.Newf(apperrors.KindTargetUnavailable, "poster disabled")
	}
	return b.inner.HealthCheck(ctx)
}

// BlockedSubreddits is the bounded set of community names where
// self-promotion is prohibited; Reddit adapters consult it before posting.
var BlockedSubreddits = map[string]bool{
	"antiMLM":       true,
	"HailCorporate": true,
	"Scams":         true,
}

// ClassifyHTTPStatus maps a poster transport's HTTP status code to an error
// code and retryability, for adapters built on plain net/http calls.
func ClassifyHTTPStatus(status int) (code string, retryable bool) {
	switch {
	case status == 429:
		return ErrCodeRateLimit, true
	case status == 401 || status == 403:
		return ErrCodeAuthFailed, false
	case status >= 500:
		return "UPSTREAM_5XX", true
	default:
		return "UNKNOWN", false
	}
}
