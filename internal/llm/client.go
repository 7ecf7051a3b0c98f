// Package llm is a raw net/http client for the OpenAI-compatible chat
// completions contract.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"

	"github.com/reachby3c/engagement-agent/internal/platform/apperrors"
)

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ChatRequest struct {
	Model          string         `json:"model"`
	Messages       []Message      `json:"messages"`
	Temperature    float64        `json:"temperature"`
	MaxTokens      int            `json:"max_tokens"`
	ResponseFormat map[string]any `json:"response_format,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message Message `json:"message"`
	} `json:"choices"`
}

// Client is an OpenAI-compatible chat-completions client. A gobreaker
// circuit wraps every call: five consecutive failed calls of any kind trip
// it open, and while it is open a call fails with gobreaker.ErrOpenState
// without spending another network round trip.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	breaker    *gobreaker.CircuitBreaker
}

func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "llm-chat-completions",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    baseURL,
		apiKey:     apiKey,
		breaker:    cb,
	}
}

// ChatJSON performs a chat-completion request asking for a JSON object
// response and returns the raw JSON content of the first choice. Transient
// failures (5xx, network, timeout) are retried with exponential backoff
// via cenkalti/backoff before giving up.
func (c *Client) ChatJSON(ctx context.Context, req ChatRequest) (string, error) {
	req.ResponseFormat = map[string]any{"type": "json_object"}

	var content string
	operation := func() error {
		result, err := c.breaker.Execute(func() (any, error) {
			return c.doChat(ctx, req)
		})
		if err != nil {
			return err
		}
		content = result.(string)
		return nil
	}

	bo := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 2), ctx)
	err := backoff.Retry(func() error {
		err := operation()
		if err == nil {
			return nil
		}
		if ae, ok := err.(*apperrors.AppError); ok && !ae.Retryable {
			return backoff.Permanent(err)
		}
		return err
	}, bo)

	if err != nil {
		return "", err
	}
	return content, nil
}

func (c *Client) doChat(ctx context.Context, req ChatRequest) (string, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return "", apperrors.New(apperrors.KindInternal, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", apperrors.New(apperrors.KindInternal, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", apperrors.New(apperrors.KindProviderTransient, err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return "", apperrors.Newf(apperrors.KindProviderRateLimit, "llm rate limited: %s", string(respBody)).WithWait(30)
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return "", apperrors.Newf(apperrors.KindProviderAuth, "llm auth failed: %s", string(respBody))
	case resp.StatusCode >= 500:
		return "", apperrors.Newf(apperrors.KindProviderTransient, "llm server error %d: %s", resp.StatusCode, string(respBody))
	case resp.StatusCode >= 400:
		return "", apperrors.Newf(apperrors.KindInputInvalid, "llm rejected request %d: %s", resp.StatusCode, string(respBody))
	}

	var parsed chatResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", apperrors.New(apperrors.KindProviderTransient, fmt.Errorf("decode chat response: %w", err))
	}
	if len(parsed.Choices) == 0 {
		return "", apperrors.Newf(apperrors.KindProviderTransient, "llm returned no choices")
	}
	return parsed.Choices[0].Message.Content, nil
}

// EmbedRequest/EmbedResponse support the embeddings contract referenced by
// the clustering touchpoint. Nothing in the agent calls Embed; the Sink in
// internal/clustering only receives post markers.
type EmbedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type EmbedResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float64 `json:"embedding"`
	} `json:"data"`
	Usage map[string]any `json:"usage"`
}

func (c *Client) Embed(ctx context.Context, req EmbedRequest) (*EmbedResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, apperrors.New(apperrors.KindInternal, err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, apperrors.New(apperrors.KindInternal, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, apperrors.New(apperrors.KindProviderTransient, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, apperrors.Newf(apperrors.KindProviderTransient, "embeddings call failed %d: %s", resp.StatusCode, string(respBody))
	}

	var parsed EmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, apperrors.New(apperrors.KindProviderTransient, err)
	}
	return &parsed, nil
}
