// Package shortlink shortens URLs through the TinyURL create API.
package shortlink

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gruzilkin/urmom-bot/retry"
	"github.com/gruzilkin/urmom-bot/telemetry"
	"go.opentelemetry.io/otel/attribute"
)

// DefaultAPIURL is the TinyURL create endpoint.
const DefaultAPIURL = "https://api.tinyurl.com/create"

const requestTimeout = 10 * time.Second

// ShortenError is a terminal shortening failure: the API answered but
// refused the request. Transport failures are retried before surfacing.
type ShortenError struct {
	Message string
}

func (e *ShortenError) Error() string { return "shorten: " + e.Message }

// response covers both success and error payloads; code zero means success.
type response struct {
	Code   int      `json:"code"`
	Data   linkData `json:"data"`
	Errors []string `json:"errors"`
}

type linkData struct {
	TinyURL string `json:"tiny_url"`
	Domain  string `json:"domain,omitempty"`
	Alias   string `json:"alias,omitempty"`
}

// Client shortens URLs with a bearer credential.
type Client struct {
	APIURL     string
	Token      string
	HTTPClient *http.Client
	Retry      retry.Policy
}

// NewClient builds a client against the public TinyURL API.
func NewClient(token string, policy retry.Policy) *Client {
	return &Client{APIURL: DefaultAPIURL, Token: token, Retry: policy}
}

func (c *Client) http() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return http.DefaultClient
}

// Shorten returns a shortened URL for longURL. API-level rejections are a
// terminal ShortenError; connection failures retry with backoff.
func (c *Client) Shorten(ctx context.Context, longURL string) (string, error) {
	ctx, span := telemetry.StartSpan(ctx, "shortlink", "shortlink.shorten")
	defer span.End()

	var short string
	err := retry.Do(ctx, c.Retry, "shortlink.shorten", func(ctx context.Context) error {
		telemetry.IncCounter(telemetry.ShortenCalls)
		s, err := c.shortenOnce(ctx, longURL)
		if err != nil {
			return err
		}
		short = s
		return nil
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return "", err
	}
	span.SetAttributes(attribute.String("tiny_url", short))
	telemetry.SetSpanSuccess(span)
	return short, nil
}

func (c *Client) shortenOnce(ctx context.Context, longURL string) (string, error) {
	payload := map[string]string{"url": longURL, "domain": "tinyurl.com"}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", retry.Permanent(fmt.Errorf("marshal request: %w", err))
	}

	reqCtx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, c.APIURL, bytes.NewReader(body))
	if err != nil {
		return "", retry.Permanent(fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("Authorization", "Bearer "+c.Token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http().Do(req)
	if err != nil {
		return "", fmt.Errorf("tinyurl request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	var env response
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return "", retry.Permanent(fmt.Errorf("decode tinyurl response: %w", err))
	}
	if resp.StatusCode != http.StatusOK || env.Code != 0 {
		msg := fmt.Sprintf("code %d", env.Code)
		if len(env.Errors) > 0 {
			msg = env.Errors[0]
		}
		return "", retry.Permanent(&ShortenError{Message: msg})
	}
	if env.Data.TinyURL == "" {
		return "", retry.Permanent(&ShortenError{Message: "empty tiny_url in response"})
	}
	return env.Data.TinyURL, nil
}
