// Package reddit implements the Reddit Poster: OAuth-authenticated reply
// submission via the reddit.com JSON API's /api/comment endpoint.
package reddit

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/reachby3c/engagement-agent/internal/platform/apperrors"
	"github.com/reachby3c/engagement-agent/internal/platform/credentials"
	"github.com/reachby3c/engagement-agent/internal/posting"
)

type Config struct {
	ClientID          string
	ClientSecret      string
	Username          string
	EncryptedPassword string
	UserAgent         string
}

type Poster struct {
	cfg  Config
	box  *credentials.Box
	http *http.Client

	accessToken string
	tokenExpiry time.Time
}

func New(cfg Config, box *credentials.Box) *Poster {
	return &Poster{cfg: cfg, box: box, http: &http.Client{Timeout: 15 * time.Second}}
}

func (p *Poster) Initialize(ctx context.Context) error {
	if p.accessToken != "" && time.Now().Before(p.tokenExpiry) {
		return nil
	}

	password, err := p.box.Decrypt(p.cfg.EncryptedPassword)
	if err != nil {
		return apperrors.Newf(apperrors.KindProviderAuth, "decrypt reddit credentials: %v", err)
	}

	form := url.Values{}
	form.Set("grant_type", "password")
	form.Set("username", p.cfg.Username)
	form.Set("password", password)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "https://www.reddit.com/api/v1/access_token", strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.SetBasicAuth(p.cfg.ClientID, p.cfg.ClientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", p.cfg.UserAgent)

	resp, err := p.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return apperrors.Newf(apperrors.KindProviderAuth, "reddit poster auth failed: status %d", resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("reddit poster auth: status %d", resp.StatusCode)
	}

	var tok struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
		return err
	}
	p.accessToken = tok.AccessToken
	p.tokenExpiry = time.Now().Add(time.Duration(tok.ExpiresIn-30) * time.Second)
	return nil
}

func (p *Poster) Close(ctx context.Context) error { return nil }

func (p *Poster) HealthCheck(ctx context.Context) error {
	return p.Initialize(ctx)
}

// Post replies to the thing identified by targetURL (a reddit.com
// permalink). The subreddit named in targetURL is checked against
// posting.BlockedSubreddits before any network call is made.
func (p *Poster) Post(ctx context.Context, responseText, targetURL string, applyDelay bool, originalTextLength int, opts posting.PostOptions) (posting.PostResult, error) {
	subreddit, thingID, err := parseRedditTarget(targetURL)
	if err != nil {
		return posting.PostResult{Success: false, ErrorCode: "INVALID_TARGET", Retryable: false}, err
	}
	if posting.BlockedSubreddits[subreddit] {
		return posting.PostResult{Success: false, ErrorCode: "BLOCKED_SUBREDDIT", Retryable: false},
			apperrors.Newf(apperrors.KindPolicyBlocked, "subreddit %q is blocked for self-promotion", subreddit)
	}

	if err := p.Initialize(ctx); err != nil {
		return posting.PostResult{Success: false, ErrorCode: "AUTH_FAILED", Retryable: false}, err
	}

	if applyDelay {
		delay := posting.PrePostDelay(originalTextLength, len(responseText), posting.ProfileAverage)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return posting.PostResult{}, ctx.Err()
		}
	}

	form := url.Values{}
	form.Set("thing_id", thingID)
	form.Set("text", responseText)
	form.Set("api_type", "json")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "https://oauth.reddit.com/api/comment", strings.NewReader(form.Encode()))
	if err != nil {
		return posting.PostResult{}, err
	}
	req.Header.Set("Authorization", "Bearer "+p.accessToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", p.cfg.UserAgent)

	resp, err := p.http.Do(req)
	if err != nil {
		return posting.PostResult{Success: false, ErrorCode: "NETWORK", Retryable: true}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		code, retryable := posting.ClassifyHTTPStatus(resp.StatusCode)
		return posting.PostResult{Success: false, ErrorCode: code, Retryable: retryable},
			fmt.Errorf("reddit comment failed: status %d", resp.StatusCode)
	}

	var out struct {
		JSON struct {
			Errors [][]string `json:"errors"`
			Data   struct {
				Things []struct {
					Data struct {
						Name string `json:"name"`
					} `json:"data"`
				} `json:"things"`
			} `json:"data"`
		} `json:"json"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return posting.PostResult{}, err
	}
	if len(out.JSON.Errors) > 0 {
		errCode := out.JSON.Errors[0][0]
		switch errCode {
		case "THREAD_LOCKED":
			return posting.PostResult{Success: false, ErrorCode: "THREAD_LOCKED", Retryable: false}, fmt.Errorf("reddit: %s", errCode)
		case "DELETED_COMMENT":
			return posting.PostResult{Success: false, ErrorCode: "DELETED_COMMENT", Retryable: false}, fmt.Errorf("reddit: %s", errCode)
		default:
			return posting.PostResult{Success: false, ErrorCode: "PLATFORM_ERROR", Retryable: true}, fmt.Errorf("reddit: %s", errCode)
		}
	}
	if len(out.JSON.Data.Things) == 0 {
		return posting.PostResult{Success: false, ErrorCode: "PLATFORM_ERROR", Retryable: true}, fmt.Errorf("reddit: no comment returned")
	}

	return posting.PostResult{Success: true, ExternalID: out.JSON.Data.Things[0].Data.Name}, nil
}

func (p *Poster) VerifyPosted(ctx context.Context, externalID string) (bool, error) {
	if err := p.Initialize(ctx); err != nil {
		return false, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "https://oauth.reddit.com/api/info?id="+url.QueryEscape(externalID), nil)
	if err != nil {
		return false, err
	}
	req.Header.Set("Authorization", "Bearer "+p.accessToken)
	req.Header.Set("User-Agent", p.cfg.UserAgent)

	resp, err := p.http.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	var out struct {
		Data struct {
			Children []any `json:"children"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return false, err
	}
	return len(out.Data.Children) > 0, nil
}

// parseRedditTarget extracts the subreddit and the base36 thing id (t1_/t3_
// prefixed) a comment reply should target from a reddit.com permalink.
func parseRedditTarget(targetURL string) (subreddit, thingID string, err error) {
	u, err := url.Parse(targetURL)
	if err != nil {
		return "", "", err
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	// /r/<subreddit>/comments/<id36>/<slug>[/<comment_id36>]
	if len(parts) < 4 || parts[0] != "r" || parts[2] != "comments" {
		return "", "", fmt.Errorf("unrecognized reddit target url: %s", targetURL)
	}
	subreddit = parts[1]
	if len(parts) >= 6 && parts[5] != "" {
		return subreddit, "t1_" + parts[5], nil
	}
	return subreddit, "t3_" + parts[3], nil
}
