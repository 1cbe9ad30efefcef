// Command urmom-bot is the main entrypoint for the video embed bot.
// It:
//   - Loads configuration and initializes structured logging.
//   - Connects to Postgres and runs idempotent migrations (dedup falls back
//     to an in-memory store when the database is unreachable).
//   - Starts the Twitch chat bot that turns social video links into embeds.
//   - Exposes an HTTP server with /healthz, /readyz, /status, /metrics and
//     the /media host for inline video delivery.
//
// Shutdown is graceful on SIGINT/SIGTERM.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	_ "net/http/pprof" //nolint:gosec // G108: pprof endpoints enabled only when ENABLE_PPROF=1
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/gruzilkin/urmom-bot/chat"
	"github.com/gruzilkin/urmom-bot/cobalt"
	"github.com/gruzilkin/urmom-bot/config"
	"github.com/gruzilkin/urmom-bot/db"
	"github.com/gruzilkin/urmom-bot/dedup"
	"github.com/gruzilkin/urmom-bot/embed"
	"github.com/gruzilkin/urmom-bot/media"
	"github.com/gruzilkin/urmom-bot/retry"
	"github.com/gruzilkin/urmom-bot/server"
	"github.com/gruzilkin/urmom-bot/shortlink"
	"github.com/gruzilkin/urmom-bot/telemetry"
	"github.com/gruzilkin/urmom-bot/video"
)

func main() {
	// Load .env file if present (local dev convenience only; production relies on real env)
	_ = godotenv.Load(".env")

	// Configure logging (level + format). Defaults: level=info, format=text.
	lvl := slog.LevelInfo
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	case "info", "":
		// keep default
	default:
		tmp := slog.New(slog.NewTextHandler(os.Stdout, nil))
		tmp.Warn("unknown LOG_LEVEL, using info", slog.String("value", os.Getenv("LOG_LEVEL")))
	}
	format := strings.ToLower(os.Getenv("LOG_FORMAT")) // text | json
	var handler slog.Handler
	switch format {
	case "json":
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	default:
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	}
	slog.SetDefault(slog.New(handler))
	slog.Info("logger initialized", slog.String("level", lvl.String()), slog.String("format", map[bool]string{true: "json", false: "text"}[format == "json"]))

	// Config
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("err", err))
		os.Exit(1)
	}
	if err := cfg.ValidateEmbedReady(); err != nil {
		slog.Error("config incomplete", slog.Any("err", err))
		os.Exit(1)
	}

	// Metrics / telemetry init
	telemetry.Init()

	// Initialize OpenTelemetry tracing (optional; requires OTEL_EXPORTER_OTLP_ENDPOINT)
	shutdown, err := telemetry.InitTracing("urmom-bot", "1.0.0")
	if err != nil {
		slog.Error("tracing initialization failed", slog.Any("err", err))
		os.Exit(1)
	}
	defer shutdown()

	// Root context with graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// DB backs message dedup; the bot stays functional without it.
	var deduper chat.Deduper
	database, err := db.Connect()
	if err == nil {
		err = database.PingContext(ctx)
	}
	if err != nil {
		slog.Warn("postgres unavailable; using in-memory dedup", slog.Any("err", err))
		if database != nil {
			_ = database.Close()
		}
		database = nil
		deduper = dedup.NewMemory(0)
	} else {
		defer func() {
			if err := database.Close(); err != nil {
				slog.Error("failed to close database", slog.Any("err", err))
			}
		}()
		slog.Info("running database migrations", slog.String("component", "db_migrate"))
		if err := db.Migrate(ctx, database); err != nil {
			slog.Error("failed to migrate db", slog.Any("err", err))
			os.Exit(1)
		}
		deduper = &dedup.Postgres{DB: database}

		// Periodic cleanup of old dedup rows.
		go func() {
			ticker := time.NewTicker(24 * time.Hour)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					if n, err := db.PruneSeenMessages(ctx, database, 7); err != nil {
						slog.Warn("dedup prune failed", slog.Any("err", err))
					} else if n > 0 {
						slog.Info("pruned dedup rows", slog.Int64("rows", n))
					}
				}
			}
		}()
	}

	// Embed pipeline
	policy := retry.Policy{MaxAttempts: cfg.MaxRetryAttempts, BaseDelay: cfg.RetryBaseDelay, MaxDelay: 10 * time.Second}
	extractor := cobalt.NewClient(cfg.CobaltBaseURL, policy)

	var shortener embed.Shortener
	if cfg.TinyURLToken != "" {
		shortener = shortlink.NewClient(cfg.TinyURLToken, policy)
	} else {
		slog.Warn("TINYURL_API_TOKEN not set; oversize videos will be dropped")
		shortener = noShortener{}
	}

	embedder := &embed.Embedder{
		Extractor:       extractor,
		Shortener:       shortener,
		Compressor:      video.NewCompressor(cfg.MaxFileSize, cfg.CropMinSupport),
		HTTPClient:      &http.Client{},
		MaxFileSize:     cfg.MaxFileSize,
		MaxDownloadSize: cfg.MaxDownloadSize,
	}

	// Media host for inline delivery
	store := media.NewStore(cfg.MediaTTL, cfg.MediaMaxBytes)
	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				store.Sweep()
			}
		}
	}()

	// Chat bot
	if err := cfg.ValidateChatReady(); err != nil {
		slog.Info("chat bot disabled", slog.Any("err", err))
	} else {
		bot := &chat.Bot{
			Channel:      cfg.TwitchChannel,
			Username:     cfg.TwitchBotUsername,
			OAuthToken:   cfg.TwitchOAuthToken,
			Processor:    embedder,
			Dedup:        deduper,
			Media:        store,
			MediaBaseURL: cfg.MediaPublicBaseURL,
		}
		go func() {
			if err := bot.Run(ctx); err != nil {
				slog.Error("chat bot exited with error", slog.Any("err", err))
			}
		}()
	}

	// Enable pprof profiling endpoints in debug mode (ENABLE_PPROF=1)
	if os.Getenv("ENABLE_PPROF") == "1" {
		pprofAddr := os.Getenv("PPROF_ADDR")
		if pprofAddr == "" {
			pprofAddr = "localhost:6060"
		}
		go func() {
			slog.Info("pprof profiling enabled", slog.String("addr", pprofAddr))
			srv := &http.Server{
				Addr:              pprofAddr,
				Handler:           nil, // default mux exposes /debug/pprof
				ReadHeaderTimeout: 5 * time.Second,
				ReadTimeout:       10 * time.Second,
				WriteTimeout:      10 * time.Second,
				IdleTimeout:       60 * time.Second,
			}
			if err := srv.ListenAndServe(); err != nil {
				slog.Error("pprof server error", slog.Any("err", err))
			}
		}()
	}

	// HTTP server (health/status/metrics/media)
	go func() {
		if err := server.Start(ctx, database, store, cfg.HTTPAddr); err != nil {
			slog.Error("http server exited with error", slog.Any("err", err))
		}
	}()

	// Block until shutdown signal
	<-ctx.Done()
	slog.Info("shutting down")
}

// noShortener stands in when no shortener token is configured; every oversize
// video falls through to the drop path.
type noShortener struct{}

func (noShortener) Shorten(ctx context.Context, longURL string) (string, error) {
	return "", errShortenerDisabled
}

var errShortenerDisabled = errors.New("link shortener not configured")
