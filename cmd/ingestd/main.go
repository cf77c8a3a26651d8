package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"catalog-ingest/client"
	"catalog-ingest/config"
	"catalog-ingest/pipeline"
	"catalog-ingest/store"
)

func main() {
	// A missing .env is fine; real deployments inject the environment.
	_ = godotenv.Load()

	defaults := config.DefaultConfig()

	pipelineName := flag.String("pipeline", config.EnvString("INGEST_PIPELINE", "commerce"), "Pipeline to run: video or commerce")
	opName := flag.String("op", config.EnvString("INGEST_OP", "collection"), "Operation: collection, aggregation, cleanup, or full")
	pages := flag.Int("pages", config.EnvInt("INGEST_PAGES", defaults.MaxPagesPerRun), "Maximum listing pages per run")
	batchSize := flag.Int("batch-size", config.EnvInt("INGEST_BATCH_SIZE", defaults.BatchSize), "Documents per batch commit")
	fanOut := flag.Int("fan-out", config.EnvInt("INGEST_FAN_OUT", defaults.FanOutSize), "Concurrent detail fetches per group")
	fanOutDelay := flag.Duration("fan-out-delay", config.EnvDuration("INGEST_FAN_OUT_DELAY", defaults.FanOutDelay), "Pause between detail fetch groups")
	maxRetries := flag.Int("max-retries", config.EnvInt("INGEST_MAX_RETRIES", defaults.MaxRetries), "Retry attempts per API call")
	retentionDays := flag.Int("retention-days", config.EnvInt("INGEST_RETENTION_DAYS", defaults.RetentionDays), "Raw snapshot retention window in days")
	aggregationDays := flag.Int("aggregation-days", config.EnvInt("INGEST_AGGREGATION_DAYS", defaults.AggregationDays), "Trailing days covered by an aggregation sweep")
	databaseURL := flag.String("database-url", config.EnvString("INGEST_DATABASE_URL", ""), "Postgres DSN; empty runs against an in-memory store")
	metricsAddr := flag.String("metrics-addr", config.EnvString("INGEST_METRICS_ADDR", ""), "Prometheus metrics listen address (e.g. :9090)")
	videoAPIKey := flag.String("video-api-key", config.EnvString("INGEST_VIDEO_API_KEY", ""), "Video platform API key")
	channelID := flag.String("channel-id", config.EnvString("INGEST_CHANNEL_ID", ""), "Video channel to ingest")
	verbose := flag.Bool("v", config.EnvBool("INGEST_VERBOSE", false), "Enable verbose logging")
	flag.Parse()

	slog.SetDefault(newLogger(*verbose))

	cfg := config.DefaultConfig()
	cfg.VideoAPIBaseURL = config.EnvString("INGEST_VIDEO_API_URL", cfg.VideoAPIBaseURL)
	cfg.CommerceAPIBaseURL = config.EnvString("INGEST_COMMERCE_API_URL", cfg.CommerceAPIBaseURL)
	cfg.VideoAPIKey = *videoAPIKey
	cfg.ChannelID = *channelID
	cfg.MaxPagesPerRun = *pages
	cfg.BatchSize = *batchSize
	cfg.FanOutSize = *fanOut
	cfg.FanOutDelay = *fanOutDelay
	cfg.MaxRetries = *maxRetries
	cfg.RetentionDays = *retentionDays
	cfg.AggregationDays = *aggregationDays
	cfg.DatabaseURL = *databaseURL
	cfg.MetricsAddr = *metricsAddr
	cfg.Verbose = *verbose
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", slog.Any("error", err))
		os.Exit(1)
	}

	op := pipeline.ParseOp(*opName)
	if op == pipeline.OpUnknown {
		slog.Error("unknown operation", slog.String("op", *opName))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, cleanup, err := openStore(ctx, cfg)
	if err != nil {
		slog.Error("opening store", slog.Any("error", err))
		os.Exit(1)
	}
	defer cleanup()

	metrics := pipeline.NewMetrics()
	var metricsServer *http.Server
	if cfg.MetricsAddr != "" {
		metricsServer = &http.Server{
			Addr:    cfg.MetricsAddr,
			Handler: promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}),
		}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("metrics server failed", slog.Any("error", err))
			}
		}()
		slog.Info("metrics server enabled", slog.String("addr", cfg.MetricsAddr))
	}

	msg := &pipeline.Message{Attributes: map[string]string{"type": op.String()}}

	slog.Info("starting ingest",
		slog.String("pipeline", *pipelineName),
		slog.String("op", op.String()),
		slog.Int("pages", cfg.MaxPagesPerRun),
	)

	start := time.Now()
	runErr := runPipeline(ctx, *pipelineName, cfg, st, metrics, msg)

	if metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("metrics server shutdown failed", slog.Any("error", err))
		}
		cancel()
	}

	if runErr != nil {
		slog.Error("ingest failed",
			slog.String("pipeline", *pipelineName),
			slog.Duration("duration", time.Since(start)),
			slog.Any("error", runErr),
		)
		os.Exit(1)
	}
	slog.Info("ingest finished",
		slog.String("pipeline", *pipelineName),
		slog.Duration("duration", time.Since(start)),
	)
}

func runPipeline(ctx context.Context, name string, cfg *config.Config, st store.Store, metrics *pipeline.Metrics, msg *pipeline.Message) error {
	switch name {
	case "video":
		api, err := client.NewVideoClient(cfg)
		if err != nil {
			return fmt.Errorf("video client: %w", err)
		}
		api.OnRetry = metrics.IncRetries
		p, err := pipeline.NewVideoPipeline(api, st, cfg, metrics)
		if err != nil {
			return fmt.Errorf("video pipeline: %w", err)
		}
		return p.Run(ctx, msg)
	case "commerce":
		api := client.NewCommerceClient(cfg)
		api.OnRetry = metrics.IncRetries
		p, err := pipeline.NewCommercePipeline(api, st, cfg, metrics)
		if err != nil {
			return fmt.Errorf("commerce pipeline: %w", err)
		}
		return p.Run(ctx, msg)
	}
	return fmt.Errorf("unknown pipeline %q", name)
}

func openStore(ctx context.Context, cfg *config.Config) (store.Store, func(), error) {
	if cfg.DatabaseURL == "" {
		slog.Warn("no database configured, using ephemeral in-memory store")
		return store.NewMemory(), func() {}, nil
	}

	pg, err := store.NewPostgres(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	if err := pg.EnsureSchema(ctx); err != nil {
		pg.Close()
		return nil, nil, err
	}
	return pg, pg.Close, nil
}

func newLogger(verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if isTerminal(os.Stdout) {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}
