// Package telemetry provides Prometheus metrics and correlation-id aware logging helpers.
package telemetry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once sync.Once

	// Counters
	EmbedsInline     prometheus.Counter
	EmbedsCompressed prometheus.Counter
	EmbedsShortened  prometheus.Counter
	EmbedsDropped    prometheus.Counter
	ExtractionCalls  prometheus.Counter
	ExtractionRetries prometheus.Counter
	ShortenCalls     prometheus.Counter
	MessagesSeen     prometheus.Counter
	MessagesDeduped  prometheus.Counter

	// Histograms (seconds / bytes)
	EmbedDuration    prometheus.Observer
	CompressDuration prometheus.Observer
	DownloadBytes    prometheus.Observer

	// Gauges
	MediaStoreItems prometheus.Gauge
	MediaStoreBytes prometheus.Gauge
)

// Init registers metrics (idempotent).
func Init() {
	once.Do(func() {
		EmbedsInline = promauto.NewCounter(prometheus.CounterOpts{Name: "embed_inline_total", Help: "Embeds delivered as inline file data"})
		EmbedsCompressed = promauto.NewCounter(prometheus.CounterOpts{Name: "embed_compressed_total", Help: "Embeds delivered inline after re-encoding"})
		EmbedsShortened = promauto.NewCounter(prometheus.CounterOpts{Name: "embed_shortened_total", Help: "Embeds delivered as a shortened link"})
		EmbedsDropped = promauto.NewCounter(prometheus.CounterOpts{Name: "embed_dropped_total", Help: "Discovered URLs that produced no embed"})
		ExtractionCalls = promauto.NewCounter(prometheus.CounterOpts{Name: "extraction_requests_total", Help: "Requests sent to the extraction service"})
		ExtractionRetries = promauto.NewCounter(prometheus.CounterOpts{Name: "extraction_retries_total", Help: "Extraction requests retried after transient failures"})
		ShortenCalls = promauto.NewCounter(prometheus.CounterOpts{Name: "shorten_requests_total", Help: "Requests sent to the link shortener"})
		MessagesSeen = promauto.NewCounter(prometheus.CounterOpts{Name: "chat_messages_total", Help: "Chat messages inspected for video links"})
		MessagesDeduped = promauto.NewCounter(prometheus.CounterOpts{Name: "chat_messages_deduped_total", Help: "Chat messages skipped by the dedup store"})
		EmbedDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "embed_duration_seconds", Help: "Per-URL embed pipeline duration seconds", Buckets: prometheus.DefBuckets})
		CompressDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "embed_compress_duration_seconds", Help: "Video re-encode duration seconds", Buckets: prometheus.DefBuckets})
		DownloadBytes = promauto.NewHistogram(prometheus.HistogramOpts{Name: "embed_download_bytes", Help: "Downloaded video size bytes", Buckets: prometheus.ExponentialBuckets(64*1024, 4, 10)})
		MediaStoreItems = promauto.NewGauge(prometheus.GaugeOpts{Name: "media_store_items", Help: "Items currently held by the inline media store"})
		MediaStoreBytes = promauto.NewGauge(prometheus.GaugeOpts{Name: "media_store_bytes", Help: "Bytes currently held by the inline media store"})
	})
}

// IncCounter is a nil-safe increment so library code works before Init in tests.
func IncCounter(c prometheus.Counter) {
	if c != nil {
		c.Inc()
	}
}

// Observe is a nil-safe observation.
func Observe(o prometheus.Observer, v float64) {
	if o != nil {
		o.Observe(v)
	}
}

// SetMediaStoreSize records the media store footprint.
func SetMediaStoreSize(items int, bytes int64) {
	if MediaStoreItems != nil {
		MediaStoreItems.Set(float64(items))
	}
	if MediaStoreBytes != nil {
		MediaStoreBytes.Set(float64(bytes))
	}
}

// TimeFunc measures the duration of fn and records in observer if non-nil.
func TimeFunc(obs prometheus.Observer, fn func()) time.Duration {
	start := time.Now()
	fn()
	d := time.Since(start)
	if obs != nil {
		obs.Observe(d.Seconds())
	}
	return d
}

// Correlation ID helpers ----------------------------------------------------
type corrKeyType struct{}

var corrKey corrKeyType

// WithCorrelation returns a new context embedding correlation id (if absent) and the id.
func WithCorrelation(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, corrKey, id)
}

// GetCorrelation returns correlation id or empty string.
func GetCorrelation(ctx context.Context) string {
	v := ctx.Value(corrKey)
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

// LoggerWithCorr returns a logger with corr attribute if present.
func LoggerWithCorr(ctx context.Context) *slog.Logger {
	if id := GetCorrelation(ctx); id != "" {
		return slog.Default().With(slog.String("corr", id))
	}
	return slog.Default()
}
