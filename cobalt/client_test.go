package cobalt

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gruzilkin/urmom-bot/retry"
)

func testPolicy() retry.Policy {
	return retry.Policy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}
}

func TestExtractVideoResponseShapes(t *testing.T) {
	tests := []struct {
		name         string
		response     map[string]any
		wantURL      string
		wantFilename string
		wantErr      bool
		wantContent  bool
		wantCode     string
	}{
		{
			name: "tunnel with filename",
			response: map[string]any{
				"status":   "tunnel",
				"url":      "https://cdn.example/v.mp4",
				"filename": "clip.mp4",
			},
			wantURL:      "https://cdn.example/v.mp4",
			wantFilename: "clip.mp4",
		},
		{
			name: "redirect defaults filename",
			response: map[string]any{
				"status": "redirect",
				"url":    "https://cdn.example/v2.mp4",
			},
			wantURL:      "https://cdn.example/v2.mp4",
			wantFilename: "video.mp4",
		},
		{
			name: "picker selects first video",
			response: map[string]any{
				"status": "picker",
				"picker": []map[string]string{
					{"type": "photo", "url": "https://cdn.example/p1.jpg"},
					{"type": "video", "url": "https://cdn.example/v3.mp4"},
					{"type": "video", "url": "https://cdn.example/v4.mp4"},
				},
			},
			wantURL:      "https://cdn.example/v3.mp4",
			wantFilename: "video.mp4",
		},
		{
			name: "picker without video is a content error",
			response: map[string]any{
				"status": "picker",
				"picker": []map[string]string{
					{"type": "photo", "url": "https://cdn.example/p1.jpg"},
					{"type": "gif", "url": "https://cdn.example/g1.gif"},
				},
			},
			wantErr:     true,
			wantContent: true,
			wantCode:    "content.not_video",
		},
		{
			name: "service error with content code",
			response: map[string]any{
				"status": "error",
				"error":  map[string]any{"code": "content.post.private"},
			},
			wantErr:     true,
			wantContent: true,
			wantCode:    "content.post.private",
		},
		{
			name: "service error with other code",
			response: map[string]any{
				"status": "error",
				"error":  map[string]any{"code": "api.rate_exceeded"},
			},
			wantErr:  true,
			wantCode: "api.rate_exceeded",
		},
		{
			name:     "unknown status rejected",
			response: map[string]any{"status": "local-processing"},
			wantErr:  true,
			wantCode: "unexpected_status:local-processing",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var hits atomic.Int32
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				hits.Add(1)
				if r.Method != http.MethodPost {
					t.Errorf("method = %s, want POST", r.Method)
				}
				var body map[string]any
				if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
					t.Errorf("request body not JSON: %v", err)
				}
				if body["url"] != "https://x.com/user/status/123" {
					t.Errorf("request url = %v", body["url"])
				}
				w.Header().Set("Content-Type", "application/json")
				_ = json.NewEncoder(w).Encode(tt.response)
			}))
			defer server.Close()

			client := NewClient(server.URL, testPolicy())
			got, err := client.ExtractVideo(context.Background(), "https://x.com/user/status/123")

			if tt.wantErr {
				if err == nil {
					t.Fatalf("ExtractVideo() = %+v, want error", got)
				}
				var contentErr *ContentError
				var reqErr *RequestError
				switch {
				case tt.wantContent:
					if !errors.As(err, &contentErr) {
						t.Fatalf("error %v, want ContentError", err)
					}
					if contentErr.Code != tt.wantCode {
						t.Errorf("code = %q, want %q", contentErr.Code, tt.wantCode)
					}
				default:
					if !errors.As(err, &reqErr) {
						t.Fatalf("error %v, want RequestError", err)
					}
					if reqErr.Code != tt.wantCode {
						t.Errorf("code = %q, want %q", reqErr.Code, tt.wantCode)
					}
				}
				// Service-reported failures are deterministic: one request only.
				if hits.Load() != 1 {
					t.Errorf("requests = %d, want 1 (no retry of service errors)", hits.Load())
				}
				return
			}

			if err != nil {
				t.Fatalf("ExtractVideo() error = %v", err)
			}
			if got.URL != tt.wantURL {
				t.Errorf("URL = %q, want %q", got.URL, tt.wantURL)
			}
			if got.Filename != tt.wantFilename {
				t.Errorf("Filename = %q, want %q", got.Filename, tt.wantFilename)
			}
		})
	}
}

func TestExtractVideoRetriesTransientFailures(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			// Drop the connection mid-request to simulate a network failure.
			if hj, ok := w.(http.Hijacker); ok {
				if conn, _, err := hj.Hijack(); err == nil {
					_ = conn.Close()
				}
			}
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status": "tunnel",
			"url":    "https://cdn.example/v.mp4",
		})
	}))
	defer server.Close()

	client := NewClient(server.URL, testPolicy())
	got, err := client.ExtractVideo(context.Background(), "https://x.com/user/status/1")
	if err != nil {
		t.Fatalf("ExtractVideo() error = %v", err)
	}
	if got.URL != "https://cdn.example/v.mp4" {
		t.Errorf("URL = %q", got.URL)
	}
	if hits.Load() != 2 {
		t.Errorf("requests = %d, want exactly 2", hits.Load())
	}
}

func TestExtractVideoExhaustsRetryBudget(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if hj, ok := w.(http.Hijacker); ok {
			if conn, _, err := hj.Hijack(); err == nil {
				_ = conn.Close()
			}
		}
	}))
	defer server.Close()

	client := NewClient(server.URL, testPolicy())
	_, err := client.ExtractVideo(context.Background(), "https://x.com/user/status/1")
	if err == nil {
		t.Fatal("ExtractVideo() = nil error, want transport failure")
	}
	if hits.Load() != 3 {
		t.Errorf("requests = %d, want 3 (configured retry bound)", hits.Load())
	}
}

func TestExtractVideoMalformedBodyNotRetried(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte("not json"))
	}))
	defer server.Close()

	client := NewClient(server.URL, testPolicy())
	_, err := client.ExtractVideo(context.Background(), "https://x.com/user/status/1")
	if err == nil {
		t.Fatal("want decode error")
	}
	if hits.Load() != 1 {
		t.Errorf("requests = %d, want 1", hits.Load())
	}
}

func TestNewClientTrimsTrailingSlash(t *testing.T) {
	c := NewClient("http://cobalt.local/", testPolicy())
	if c.BaseURL != "http://cobalt.local" {
		t.Errorf("BaseURL = %q", c.BaseURL)
	}
}
