// entry point of the application
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"tubegrab/internal/config"
	"tubegrab/internal/consts"
	"tubegrab/internal/depmanager"
	"tubegrab/internal/downloader"
	"tubegrab/internal/extractor"
	httprouter "tubegrab/internal/infrastructure/delivery/http"
	"tubegrab/internal/metadata"
	"tubegrab/internal/observability"
	"tubegrab/internal/playlist"
	"tubegrab/internal/proxymgr"
	"tubegrab/internal/search"
	"tubegrab/internal/service"
	"tubegrab/internal/storage"
	httpserver "tubegrab/pkg/http/server"
	"tubegrab/pkg/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.New()
	if err != nil {
		slog.Error("config new", slog.Any("error", err))
		stop()
		os.Exit(1)
	}

	log, err := logger.New(&logger.Options{
		AddSource: true,
		Level:     cfg.App.LogLevel,
		Format:    cfg.App.LogFormat,
	})
	if err != nil {
		slog.WarnContext(ctx, "logger level invalid; defaulting to info", slog.Any("error", err))
	}

	if err := run(ctx, cfg, log); err != nil {
		log.ErrorContext(ctx, "tubegrab stopped", slog.Any("error", err))
		stop()
		os.Exit(1)
	}

	log.InfoContext(ctx, "tubegrab shut down gracefully")
}

func run(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	registry := observability.NewRegistry()
	metrics := observability.New(registry)

	ext, err := newExtractor(ctx, cfg, log)
	if err != nil {
		return err
	}

	// nil when no proxies are configured
	var proxyMgr *proxymgr.Manager
	if len(cfg.Proxy.Proxies) > 0 {
		proxyMgr = proxymgr.New(log, cfg, metrics)
		proxyMgr.StartHealthChecker(ctx)

		log.InfoContext(ctx, "proxy manager initialized", slog.Int("proxy_count", len(cfg.Proxy.Proxies)))
	}

	searchClient, err := search.New(ctx, log, cfg, metrics)
	if err != nil {
		return err
	}

	if !cfg.Search.Enabled() {
		log.WarnContext(ctx, "search API key not set; search is disabled")
	}

	dl := downloader.New(log, cfg, ext, proxyMgr, metrics)
	storer := storage.New(ctx, log, cfg, metrics)

	svc := service.New(cfg, log, storer, dl, service.Lookups{
		Metadata: metadata.New(log, cfg, ext, metrics),
		Search:   searchClient,
		Playlist: playlist.New(log),
	}, metrics)

	router := httprouter.New(log, cfg, svc, metrics, registry)

	httpSrv := httpserver.New(router, httpserver.Options{
		Addr:            cfg.HTTP.Port,
		ShutdownTimeout: cfg.HTTP.ShutdownTimeout,
	})

	svc.Start(ctx)

	if err := httpSrv.Start(); err != nil {
		return err
	}

	log.InfoContext(ctx, "tubegrab started", slog.String("port", cfg.HTTP.Port), slog.String("extractor", cfg.App.Extractor))

	// Waiting for shutdown signal
	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-httpSrv.Notify():
	}

	if err := httpSrv.Shutdown(); err != nil {
		log.ErrorContext(ctx, "http server shutdown", slog.Any("error", err))
	}

	// workers stop between jobs once ctx is done
	cancel()
	svc.Wait()

	return serveErr
}

// newExtractor picks the extraction backend. The real one needs the binaries in place first.
func newExtractor(ctx context.Context, cfg *config.Config, log *slog.Logger) (extractor.Extractor, error) {
	if cfg.App.Extractor == consts.ExtractorSimulated {
		log.WarnContext(ctx, "using simulated extractor; no media is fetched")

		return extractor.NewSimulated(log, cfg.App.SimulateTime), nil
	}

	depMgr := depmanager.New(log, cfg)

	log.InfoContext(ctx, "checking if yt-dlp, ffmpeg, deno are installed. it may take some time...")

	if err := depMgr.Start(ctx); err != nil {
		return nil, err
	}

	return extractor.NewYTdlp(log, cfg, depMgr.Binaries()), nil
}
