// Package cobalt implements a client for a cobalt-compatible media
// extraction service. One endpoint answers with four response shapes
// discriminated by a status field; the client dispatches on it exhaustively
// and retries only transport-level failures.
package cobalt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/gruzilkin/urmom-bot/retry"
	"github.com/gruzilkin/urmom-bot/telemetry"
	"go.opentelemetry.io/otel/attribute"
)

// DefaultFilename is used when the service omits one.
const DefaultFilename = "video.mp4"

// VideoResult points at playable content on a short-lived signed link.
type VideoResult struct {
	URL      string
	Filename string
}

// PickerItem is one candidate in a multi-item extraction response.
type PickerItem struct {
	Type  string `json:"type"` // photo | video | gif
	URL   string `json:"url"`
	Thumb string `json:"thumb,omitempty"`
}

// errorDetail is the machine-readable failure the service reports.
type errorDetail struct {
	Code    string         `json:"code"`
	Context map[string]any `json:"context,omitempty"`
}

// response is the envelope for all four shapes.
type response struct {
	Status        string       `json:"status"` // tunnel | redirect | picker | error
	URL           string       `json:"url"`
	Filename      string       `json:"filename"`
	Picker        []PickerItem `json:"picker"`
	Audio         string       `json:"audio"`
	AudioFilename string       `json:"audioFilename"`
	Error         *errorDetail `json:"error"`
}

// ContentError means extraction succeeded but yielded no usable video
// (private post, photo-only set, dead link). Never retried.
type ContentError struct {
	Code    string
	Context map[string]any
}

func (e *ContentError) Error() string { return "cobalt content error: " + e.Code }

// RequestError is any other failure the service explicitly reported.
// Deterministic from the service's point of view, so never retried.
type RequestError struct {
	Code    string
	Context map[string]any
}

func (e *RequestError) Error() string { return "cobalt error: " + e.Code }

// classifyError maps a service error code onto the terminal error taxonomy.
func classifyError(d *errorDetail) error {
	if strings.Contains(d.Code, "content.") || strings.Contains(d.Code, "link.") {
		return &ContentError{Code: d.Code, Context: d.Context}
	}
	return &RequestError{Code: d.Code, Context: d.Context}
}

// Client talks to one cobalt instance.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
	Retry      retry.Policy
}

// NewClient builds a client for baseURL with the given retry policy.
func NewClient(baseURL string, policy retry.Policy) *Client {
	return &Client{BaseURL: strings.TrimRight(baseURL, "/"), Retry: policy}
}

func (c *Client) http() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return http.DefaultClient
}

// ExtractVideo resolves a social media URL to a direct video link.
// Transport failures are retried with backoff; a service-reported error
// status is terminal and surfaces as ContentError or RequestError.
func (c *Client) ExtractVideo(ctx context.Context, sourceURL string) (*VideoResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "cobalt", "cobalt.extract_video",
		attribute.String("source_url", sourceURL))
	defer span.End()

	var result *VideoResult
	attempt := 0
	err := retry.Do(ctx, c.Retry, "cobalt.extract_video", func(ctx context.Context) error {
		attempt++
		if attempt > 1 {
			telemetry.IncCounter(telemetry.ExtractionRetries)
		}
		telemetry.IncCounter(telemetry.ExtractionCalls)
		r, err := c.extractOnce(ctx, sourceURL)
		if err != nil {
			return err
		}
		result = r
		return nil
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	span.SetAttributes(attribute.String("filename", result.Filename))
	telemetry.SetSpanSuccess(span)
	return result, nil
}

// extractOnce issues a single request. Fresh request per attempt; no state
// is reused between retries.
func (c *Client) extractOnce(ctx context.Context, sourceURL string) (*VideoResult, error) {
	payload := map[string]string{
		"url":           sourceURL,
		"videoQuality":  "max",
		"filenameStyle": "basic",
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, retry.Permanent(fmt.Errorf("marshal request: %w", err))
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/", bytes.NewReader(body))
	if err != nil {
		return nil, retry.Permanent(fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http().Do(req)
	if err != nil {
		// Connection refused, timeout, DNS failure: worth another attempt.
		return nil, fmt.Errorf("cobalt request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	var env response
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, retry.Permanent(fmt.Errorf("decode cobalt response: %w", err))
	}
	res, err := parseResponse(&env)
	if err != nil {
		return nil, retry.Permanent(err)
	}
	return res, nil
}

// parseResponse dispatches on the status discriminator. Unknown statuses are
// rejected explicitly rather than falling through.
func parseResponse(env *response) (*VideoResult, error) {
	switch env.Status {
	case "tunnel", "redirect":
		filename := env.Filename
		if filename == "" {
			filename = DefaultFilename
		}
		if env.URL == "" {
			return nil, &RequestError{Code: "fetch.empty"}
		}
		return &VideoResult{URL: env.URL, Filename: filename}, nil

	case "picker":
		for _, item := range env.Picker {
			if item.Type == "video" {
				filename := env.AudioFilename
				if filename == "" {
					filename = DefaultFilename
				}
				return &VideoResult{URL: item.URL, Filename: filename}, nil
			}
		}
		// Photo/gif-only sets carry no motion video; this pipeline only
		// delivers motion video.
		return nil, &ContentError{Code: "content.not_video"}

	case "error":
		if env.Error == nil {
			return nil, &RequestError{Code: "unknown_error"}
		}
		return nil, classifyError(env.Error)

	default:
		return nil, &RequestError{Code: fmt.Sprintf("unexpected_status:%s", env.Status)}
	}
}
