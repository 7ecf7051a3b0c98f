// Package twitter implements the Twitter/X Poster: bearer-token
// POST /2/tweets replies.
package twitter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/reachby3c/engagement-agent/internal/platform/credentials"
	"github.com/reachby3c/engagement-agent/internal/posting"
)

const postURL = "https://api.twitter.com/2/tweets"

type Config struct {
	EncryptedBearerToken string
}

type Poster struct {
	cfg  Config
	box  *credentials.Box
	http *http.Client
}

func New(cfg Config, box *credentials.Box) *Poster {
	return &Poster{cfg: cfg, box: box, http: &http.Client{Timeout: 15 * time.Second}}
}

func (p *Poster) Initialize(ctx context.Context) error { return nil }
func (p *Poster) Close(ctx context.Context) error      { return nil }

func (p *Poster) HealthCheck(ctx context.Context) error {
	if p.cfg.EncryptedBearerToken == "" {
		return fmt.Errorf("twitter poster missing bearer token")
	}
	return nil
}

// Post replies to the tweet identified by targetURL.
func (p *Poster) Post(ctx context.Context, responseText, targetURL string, applyDelay bool, originalTextLength int, opts posting.PostOptions) (posting.PostResult, error) {
	tweetID, err := parseTweetID(targetURL)
	if err != nil {
		return posting.PostResult{Success: false, ErrorCode: "INVALID_TARGET", Retryable: false}, err
	}

	if applyDelay {
		delay := posting.PrePostDelay(originalTextLength, len(responseText), posting.ProfileAverage)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return posting.PostResult{}, ctx.Err()
		}
	}

	token, err := p.box.Decrypt(p.cfg.EncryptedBearerToken)
	if err != nil {
		return posting.PostResult{Success: false, ErrorCode: "MISSING_CREDENTIALS", Retryable: false}, err
	}

	payload := map[string]any{
		"text": responseText,
		"reply": map[string]string{
			"in_reply_to_tweet_id": tweetID,
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return posting.PostResult{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, postURL, bytes.NewReader(body))
	if err != nil {
		return posting.PostResult{}, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.http.Do(req)
	if err != nil {
		return posting.PostResult{Success: false, ErrorCode: "NETWORK", Retryable: true}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		if resp.StatusCode == http.StatusConflict {
			return posting.PostResult{Success: false, ErrorCode: "DUPLICATE_TWEET", Retryable: false},
				fmt.Errorf("twitter post: duplicate tweet")
		}
		code, retryable := posting.ClassifyHTTPStatus(resp.StatusCode)
		return posting.PostResult{Success: false, ErrorCode: code, Retryable: retryable},
			fmt.Errorf("twitter post: status %d", resp.StatusCode)
	}

	var out struct {
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return posting.PostResult{}, err
	}

	return posting.PostResult{Success: true, ExternalID: out.Data.ID}, nil
}

func (p *Poster) VerifyPosted(ctx context.Context, externalID string) (bool, error) {
	token, err := p.box.Decrypt(p.cfg.EncryptedBearerToken)
	if err != nil {
		return false, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "https://api.twitter.com/2/tweets/"+url.PathEscape(externalID), nil)
	if err != nil {
		return false, err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := p.http.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK, nil
}

func parseTweetID(targetURL string) (string, error) {
	u, err := url.Parse(targetURL)
	if err != nil {
		return "", err
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(parts) == 0 {
		return "", fmt.Errorf("unrecognized twitter target url: %s", targetURL)
	}
	return parts[len(parts)-1], nil
}
