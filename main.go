// Command stream-scribe watches configured streamers, records their live
// streams, and transcribes each finished recording into a JSON sidecar.
// It:
//   - Loads configuration and initializes structured logging.
//   - Connects to Postgres and runs idempotent migrations (catalog + kv).
//   - Starts one supervisor per streamer plus the retention job.
//   - Exposes a minimal HTTP server with /healthz, /readyz, /status,
//     /recordings, and /metrics.
//
// Shutdown is graceful on SIGINT/SIGTERM.
package main

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	_ "net/http/pprof" //nolint:gosec // G108: pprof endpoints enabled only when ENABLE_PPROF=1
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/onnwee/stream-scribe/config"
	"github.com/onnwee/stream-scribe/db"
	"github.com/onnwee/stream-scribe/monitor"
	"github.com/onnwee/stream-scribe/platform"
	"github.com/onnwee/stream-scribe/runner"
	"github.com/onnwee/stream-scribe/server"
	"github.com/onnwee/stream-scribe/telemetry"
	"github.com/onnwee/stream-scribe/transcribe"
	"github.com/onnwee/stream-scribe/transcribe/vosk"
)

func main() {
	// Load .env file if present (local dev convenience only; production relies on real env)
	_ = godotenv.Load()

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
	if len(cfg.Streamers) == 0 {
		slog.Error("no streamers configured (set STREAMERS)")
		os.Exit(1)
	}

	// Metrics / telemetry init
	telemetry.Init()

	// Initialize OpenTelemetry tracing (optional; requires OTEL_EXPORTER_OTLP_ENDPOINT)
	shutdown, err := telemetry.InitTracing("stream-scribe", "1.0.0")
	if err != nil {
		slog.Error("tracing initialization failed", slog.Any("err", err))
		os.Exit(1)
	}
	defer shutdown()

	// External tools: missing tools are logged here and fail at use time.
	run := runner.Exec{}
	runner.CheckTools(run, "streamlink", "ffmpeg", "ffprobe")

	// A missing model with transcription enabled is the one configuration
	// error that stops startup; every later failure degrades instead.
	if err := cfg.ValidateTranscribeReady(); err != nil {
		slog.Error("transcription configuration invalid", slog.Any("err", err))
		os.Exit(1)
	}

	// The speech model is loaded once and shared read-only by all supervisors.
	var pipeline monitor.TranscriptPipeline
	var factory *vosk.Factory
	if cfg.TranscribeEnabled() {
		factory, err = vosk.NewFactory(cfg.ModelDir)
		if err != nil {
			slog.Error("speech model load failed", slog.Any("err", err), slog.String("model_dir", cfg.ModelDir))
			os.Exit(1)
		}
		defer factory.Close()
		pipeline = &transcribe.Pipeline{
			Run:                 run,
			Factory:             factory,
			KeepWAV:             cfg.KeepWAV,
			MinRecordingSeconds: cfg.MinRecordingSecs,
			Recognizer: transcribe.RecognizerOptions{
				MaxSegmentSeconds: cfg.MaxSegmentSecs,
				GapSeconds:        cfg.SegmentGapSecs,
			},
		}
		slog.Info("speech model loaded", slog.String("model_dir", cfg.ModelDir))
	} else {
		slog.Info("transcription disabled for all streamers")
	}

	// Best-effort: fetch a Twitch app access token (client-credentials) if
	// client id/secret provided. Used for Helix live probing; supervisors
	// fall back to streamlink probing without it.
	if cfg.TwitchClientID != "" && cfg.TwitchClientSecret != "" {
		ctx2, cancel := context.WithTimeout(context.Background(), 8*time.Second)
		ts := &platform.TokenSource{ClientID: cfg.TwitchClientID, ClientSecret: cfg.TwitchClientSecret}
		if tok, err := ts.Get(ctx2); err != nil {
			slog.Warn("twitch app token fetch failed", slog.Any("err", err))
		} else if len(tok) > 6 {
			masked := "***" + tok[len(tok)-6:]
			slog.Info("twitch app token acquired", slog.String("tail", masked))
		}
		cancel()
	}

	// DB: the catalog is best-effort. Recording must work during a database
	// outage, so connection failures log and continue with a nil handle.
	var database *sql.DB
	if cfg.DBDsn != "" {
		database, err = db.Connect(cfg.DBDsn)
		if err == nil {
			migrationCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			err = db.Migrate(migrationCtx, database)
			cancel()
		}
		if err != nil {
			slog.Warn("catalog database unavailable; continuing without it", slog.Any("err", err))
			database = nil
		} else {
			defer func() {
				if err := database.Close(); err != nil {
					slog.Error("failed to close database", slog.Any("err", err))
				}
			}()
		}
	}

	// Root context with graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool := monitor.NewPool(cfg, run, pipeline, database)
	go monitor.StartRetentionJob(ctx, database, pool)

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

	// HTTP server (health/status/metrics)
	addr := os.Getenv("HTTP_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	go func() {
		if err := server.Start(ctx, database, pool, addr); err != nil {
			slog.Error("http server exited with error", slog.Any("err", err))
		}
	}()

	// Block until every supervisor has drained after the shutdown signal.
	pool.Run(ctx)
	slog.Info("shutting down")
}
