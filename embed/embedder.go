// Package embed turns social media links found in chat messages into
// deliverable videos: inline bytes when the video fits the size budget,
// a shortened link otherwise. Failures are isolated per URL; a message with
// three links can still yield two embeds when one link is dead.
package embed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gruzilkin/urmom-bot/cobalt"
	"github.com/gruzilkin/urmom-bot/telemetry"
	"github.com/gruzilkin/urmom-bot/video"
	"go.opentelemetry.io/otel/attribute"
)

// downloadTimeout bounds the single best-effort fetch of the signed link.
const downloadTimeout = 30 * time.Second

// Result is one delivery decision. Exactly one of FileData or ShortURL is
// set; a URL that yields neither is simply absent from the output.
type Result struct {
	FileData []byte
	Filename string
	ShortURL string

	// SourceURL is the original link that was processed.
	SourceURL string
}

// Extractor resolves a social link to a direct video URL (cobalt.Client).
type Extractor interface {
	ExtractVideo(ctx context.Context, sourceURL string) (*cobalt.VideoResult, error)
}

// Shortener shortens a URL (shortlink.Client).
type Shortener interface {
	Shorten(ctx context.Context, longURL string) (string, error)
}

// Compressor re-encodes oversize videos toward the size budget
// (video.Compressor). ok false means fall back to a link.
type Compressor interface {
	Compress(ctx context.Context, data []byte, filename string, observations []video.CropBox) ([]byte, bool)
}

// Embedder drives the per-URL pipeline: extract, download, decide.
type Embedder struct {
	Extractor  Extractor
	Shortener  Shortener
	Compressor Compressor
	HTTPClient *http.Client

	// MaxFileSize is the inline-delivery budget.
	MaxFileSize int64
	// MaxDownloadSize caps how much we are willing to fetch for the
	// compression attempt; beyond it we skip straight to the link fallback.
	MaxDownloadSize int64
}

func (e *Embedder) http() *http.Client {
	if e.HTTPClient != nil {
		return e.HTTPClient
	}
	return http.DefaultClient
}

// ProcessMessage discovers supported URLs in text and processes each one
// independently. The result set can be empty; it never carries an error for
// ordinary content unavailability.
func (e *Embedder) ProcessMessage(ctx context.Context, text string) []Result {
	urls := FindVideoURLs(text)
	if len(urls) == 0 {
		return nil
	}
	results := make([]Result, 0, len(urls))
	for _, url := range urls {
		if r := e.ProcessURL(ctx, url); r != nil {
			results = append(results, *r)
		}
	}
	return results
}

// ProcessURL runs the pipeline for one URL. A nil result means the URL was
// dropped; the caller never sees an error for a single bad link.
func (e *Embedder) ProcessURL(ctx context.Context, sourceURL string) *Result {
	ctx, span := telemetry.StartSpan(ctx, "embed", "embed.process_url",
		attribute.String("source_url", sourceURL))
	defer span.End()
	start := time.Now()
	defer func() { telemetry.Observe(telemetry.EmbedDuration, time.Since(start).Seconds()) }()

	extracted, err := e.Extractor.ExtractVideo(ctx, sourceURL)
	if err != nil {
		var contentErr *cobalt.ContentError
		if errors.As(err, &contentErr) {
			span.SetAttributes(attribute.String("outcome", "skipped"), attribute.String("code", contentErr.Code))
		} else {
			span.SetAttributes(attribute.String("outcome", "error"))
			telemetry.RecordError(span, err)
		}
		telemetry.IncCounter(telemetry.EmbedsDropped)
		telemetry.LoggerWithCorr(ctx).Info("embed: extraction failed, dropping url", slog.String("url", sourceURL), slog.Any("err", err))
		return nil
	}

	data, err := e.download(ctx, extracted.URL)
	if err != nil {
		telemetry.LoggerWithCorr(ctx).Debug("embed: download failed", slog.String("url", sourceURL), slog.Any("err", err))
		data = nil
	}
	if data != nil {
		telemetry.Observe(telemetry.DownloadBytes, float64(len(data)))
	}

	if data != nil && int64(len(data)) <= e.MaxFileSize {
		span.SetAttributes(attribute.String("outcome", "inline"), attribute.Int("file_size", len(data)))
		telemetry.IncCounter(telemetry.EmbedsInline)
		return &Result{FileData: data, Filename: extracted.Filename, SourceURL: sourceURL}
	}

	if data != nil && e.Compressor != nil {
		if compressed, ok := e.Compressor.Compress(ctx, data, extracted.Filename, nil); ok {
			span.SetAttributes(attribute.String("outcome", "compressed"), attribute.Int("file_size", len(compressed)))
			telemetry.IncCounter(telemetry.EmbedsCompressed)
			return &Result{FileData: compressed, Filename: extracted.Filename, SourceURL: sourceURL}
		}
	}

	short, err := e.Shortener.Shorten(ctx, extracted.URL)
	if err != nil {
		// Both delivery paths failed; drop this URL without surfacing an
		// error for it.
		span.SetAttributes(attribute.String("outcome", "error"))
		telemetry.RecordError(span, err)
		telemetry.IncCounter(telemetry.EmbedsDropped)
		telemetry.LoggerWithCorr(ctx).Info("embed: shorten fallback failed, dropping url", slog.String("url", sourceURL), slog.Any("err", err))
		return nil
	}
	span.SetAttributes(attribute.String("outcome", "url"))
	telemetry.IncCounter(telemetry.EmbedsShortened)
	return &Result{ShortURL: short, SourceURL: sourceURL}
}

// download fetches the extraction result in a single best-effort attempt.
// The link is short-lived and signed, so layering retries here would mostly
// retry an expired URL. The read is cut off at MaxDownloadSize.
func (e *Embedder) download(ctx context.Context, url string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, downloadTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := e.http().Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download status %d", resp.StatusCode)
	}

	// Content-Length precheck avoids streaming something we will never use.
	if cl := resp.Header.Get("Content-Length"); cl != "" {
		if n, err := strconv.ParseInt(cl, 10, 64); err == nil && n > e.MaxDownloadSize {
			return nil, fmt.Errorf("content length %d exceeds download cap", n)
		}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, e.MaxDownloadSize+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > e.MaxDownloadSize {
		return nil, fmt.Errorf("download exceeds cap of %d bytes", e.MaxDownloadSize)
	}
	return data, nil
}
