package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/vidgrab/vidgrab/internal/cleanup"
	"github.com/vidgrab/vidgrab/internal/config"
	"github.com/vidgrab/vidgrab/internal/download"
	"github.com/vidgrab/vidgrab/internal/http/rest"
	"github.com/vidgrab/vidgrab/internal/logctx"
	"github.com/vidgrab/vidgrab/internal/notifier"
	"github.com/vidgrab/vidgrab/internal/telemetry"
	"github.com/vidgrab/vidgrab/internal/ytdlp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const serviceVersion = "1.0.0"

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		slog.Error("config error", "err", err)
		os.Exit(1)
	}

	logger := slog.New(logctx.NewTraceHandler(
		slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()}),
	))
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	slog.Info("vidgrab starting...", "log_level", cfg.LogLevel)

	if err := run(logctx.WithLogger(ctx, logger), cfg); err != nil {
		slog.Error("fatal error", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	logger := logctx.LoggerFromContext(ctx)

	// =========================================================================
	// Start Telemetry
	tel, err := telemetry.New(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    cfg.Telemetry.ServiceName,
		ServiceVersion: serviceVersion,
	})
	if err != nil {
		return fmt.Errorf("failed to set up telemetry: %w", err)
	}
	defer func() {
		if err := tel.Shutdown(context.Background()); err != nil {
			logger.Error("failed to shut down telemetry", "err", err)
		}
	}()

	// =========================================================================
	// Start yt-dlp Client
	tool := ytdlp.NewClient(cfg.YtDlpPath, cfg.MetadataTimeout)

	if version, err := tool.Version(ctx); err != nil {
		logger.Warn("yt-dlp availability check failed; downloads will fail until it is installed", "err", err)
	} else {
		logger.Info("yt-dlp available", "version", version)
	}

	// =========================================================================
	// Start Tracker and Orchestrator
	tracker := download.NewTracker(tel)
	tracker.StartSweeper(ctx, cfg.SweepInterval, cfg.RetentionWindow)

	orchestrator := download.NewOrchestrator(tracker, tool, cfg.DownloadDir, tel)

	if cfg.DiscordWebhookURL != "" {
		orchestrator.SetNotifier(notifier.NewDiscordNotifier(cfg.DiscordWebhookURL))
	}

	// =========================================================================
	// Start Cleanup
	setupCleanup(ctx, cfg)

	// =========================================================================
	// Start API Service

	// Make a channel to listen for errors coming from the listener. Use a
	// buffered channel so the goroutine can exit if we don't collect this error.
	serverErrors := make(chan error, 1)

	server := setupServer(ctx, cfg, tel, orchestrator, tracker, tool)

	go func() {
		logger.Info("Initializing API support", "host", cfg.Web.BindAddress)
		serverErrors <- server.ListenAndServe()
	}()

	logger.Info("waiting for downloads...",
		"download_dir", cfg.DownloadDir,
		"retention", cfg.RetentionWindow.String(),
		"sweep_interval", cfg.SweepInterval.String(),
	)

	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		logger.Info("start shutdown", "active_downloads", orchestrator.ActiveCount())

		// Give outstanding requests a deadline for completion.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Web.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to gracefully shutdown the server", "err", err)

			if err = server.Close(); err != nil {
				return fmt.Errorf("could not stop server gracefully: %w", err)
			}
		}

		return nil
	}
}

// setupCleanup periodically deletes artifacts that outlived the retention
// window without being fetched.
func setupCleanup(ctx context.Context, cfg *config.Config) {
	logger := logctx.LoggerFromContext(ctx)

	go func() {
		cleanupTicker := time.NewTicker(cfg.SweepInterval)
		defer cleanupTicker.Stop()

		for {
			select {
			case <-ctx.Done():
				logger.Info("cleanup goroutine shutting down.")

				return
			case <-cleanupTicker.C:
				if err := cleanup.DeleteExpiredFiles(ctx, cfg.DownloadDir, cfg.RetentionWindow); err != nil {
					logger.Error("failed to delete expired files", "err", err)
				}
			}
		}
	}()
}

// setupServer prepares the handlers and services to create the http rest server.
func setupServer(
	ctx context.Context,
	cfg *config.Config,
	tel *telemetry.Telemetry,
	orchestrator *download.Orchestrator,
	tracker *download.Tracker,
	tool download.Tool,
) *http.Server {
	downloadHandler := rest.NewDownloadHandler(orchestrator, tracker, tool, tel)
	fileHandler := rest.NewFileHandler(cfg.DownloadDir, cfg.FileServeGrace)

	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS", "HEAD"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		MaxAge:         300,
	}))
	r.Use(telemetry.RequestID)
	r.Use(telemetry.NewHTTPMiddleware(tel).Middleware)
	r.Use(telemetry.HTTPLogging)

	r.Mount("/api", downloadHandler.Routes())
	r.Mount("/api/files", fileHandler.Routes())
	r.Handle("/metrics", tel.Handler())

	return &http.Server{
		Addr:         cfg.Web.BindAddress,
		ReadTimeout:  cfg.Web.ReadTimeout,
		WriteTimeout: cfg.Web.WriteTimeout,
		IdleTimeout:  cfg.Web.IdleTimeout,
		Handler:      otelhttp.NewHandler(r, "vidgrab"),
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}
}
