// Package main is the entry point for the playlist downloader API.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dvelarde/yt-playlist-api-go/internal/config"
	"github.com/dvelarde/yt-playlist-api-go/internal/infra/cache"
	"github.com/dvelarde/yt-playlist-api-go/internal/infra/fs"
	"github.com/dvelarde/yt-playlist-api-go/internal/infra/jobstore"
	"github.com/dvelarde/yt-playlist-api-go/internal/infra/r2"
	"github.com/dvelarde/yt-playlist-api-go/internal/infra/sqlite"
	"github.com/dvelarde/yt-playlist-api-go/internal/service/batch"
	"github.com/dvelarde/yt-playlist-api-go/internal/service/ffmpeg"
	"github.com/dvelarde/yt-playlist-api-go/internal/service/ytdlp"
	transporthttp "github.com/dvelarde/yt-playlist-api-go/internal/transport/http"
	"github.com/dvelarde/yt-playlist-api-go/internal/transport/http/middleware"
	"github.com/dvelarde/yt-playlist-api-go/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	logFormat := "text"
	if !cfg.IsDevelopment() {
		logFormat = "json"
	}
	logger.Setup(&logger.Config{Level: cfg.LogLevel, Format: logFormat})

	if err := os.MkdirAll(cfg.TempDir, 0755); err != nil {
		slog.Error("Failed to create temp directory", "dir", cfg.TempDir, "error", err)
		os.Exit(1)
	}

	// appCtx is cancelled on shutdown; in-flight batches abort on it.
	appCtx, stopBatches := context.WithCancel(context.Background())
	defer stopBatches()

	// Initialize components
	tool := ytdlp.New(&ytdlp.Config{
		YtDlpPath:       cfg.YtDlpPath,
		FFmpegPath:      cfg.FFmpegPath,
		ResolveTimeout:  cfg.ResolveTimeout,
		MetadataTimeout: cfg.MetadataTimeout,
		DownloadTimeout: cfg.DownloadTimeout,
	})

	tagger := ffmpeg.New(&ffmpeg.Config{
		FFmpegPath: cfg.FFmpegPath,
		TagTimeout: cfg.TagTimeout,
	})

	store := jobstore.New()
	janitor := fs.New(cfg.TempDir, cfg.RetentionAge, cfg.CleanupGrace, store)
	metaCache := cache.Default()

	history, err := sqlite.NewHistory(cfg.DataDir)
	if err != nil {
		slog.Warn("History database unavailable, continuing without it", "error", err)
		history = nil
	} else {
		defer history.Close()
	}

	var mirror batch.ArchiveMirror
	if cfg.R2Configured() {
		client, err := r2.NewClient(appCtx, &r2.Config{
			AccountID:       cfg.R2AccountID,
			AccessKeyID:     cfg.R2AccessKeyID,
			SecretAccessKey: cfg.R2SecretAccessKey,
			BucketName:      cfg.R2BucketName,
			PublicURL:       cfg.R2PublicURL,
		})
		if err != nil {
			slog.Warn("Archive mirror unavailable, serving local archives only", "error", err)
		} else {
			mirror = client
			janitor.SetMirror(client)
		}
	}

	deps := batch.Deps{
		Tool:    tool,
		Tagger:  tagger,
		Store:   store,
		Janitor: janitor,
		Mirror:  mirror,
	}
	if history != nil {
		deps.History = history
	}

	orch := batch.New(batch.Config{
		WorkRoot:          cfg.TempDir,
		MaxConcurrentJobs: cfg.MaxConcurrentJobs,
	}, deps)

	handlers := transporthttp.NewHandlers(appCtx, tool, orch, store, janitor, metaCache, history)

	limiters := &transporthttp.RateLimiters{
		Batch: middleware.NewRateLimiter(&middleware.RateLimitConfig{
			RequestsPerMinute: cfg.RateLimitRPM,
			Burst:             cfg.RateLimitBurst,
			CleanupInterval:   10 * time.Minute,
		}),
		Lookup: middleware.NewRateLimiter(&middleware.RateLimitConfig{
			RequestsPerMinute: cfg.StatusRPM,
			Burst:             cfg.StatusBurst,
			CleanupInterval:   10 * time.Minute,
		}),
	}
	defer limiters.Batch.Stop()
	defer limiters.Lookup.Stop()

	router := transporthttp.NewRouter(cfg, handlers, limiters)
	server := transporthttp.NewServer(":"+cfg.Port, router)

	go func() {
		slog.Info("Server starting",
			"port", cfg.Port,
			"env", cfg.Env,
			"max_concurrent_jobs", cfg.MaxConcurrentJobs,
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("Server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("Shutting down...")

	// Abort in-flight batches first so their progress streams close and
	// Shutdown is not stuck draining them.
	stopBatches()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		slog.Error("Shutdown error", "error", err)
	}
}
