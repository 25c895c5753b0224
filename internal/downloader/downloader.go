// Package downloader turns a MediaRequest into a file, falling back across client identities.
package downloader

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"path/filepath"
	"time"

	"tubegrab/internal/config"
	"tubegrab/internal/consts"
	"tubegrab/internal/entity"
	"tubegrab/internal/errs"
	"tubegrab/internal/extractor"
	"tubegrab/internal/observability"
	"tubegrab/internal/progress"
	"tubegrab/internal/proxymgr"
	"tubegrab/pkg/fsname"
)

// Downloader produces exactly one outcome per request.
type Downloader interface {
	Download(ctx context.Context, req entity.MediaRequest, outDir string, tracker *progress.Tracker) entity.DownloadOutcome
}

// Strategy is one simulated client identity.
type Strategy struct {
	Name          string
	UserAgent     string
	SourceAddress string
}

type fallback struct {
	log        *slog.Logger
	cfg        *config.Config
	extractor  extractor.Extractor
	proxies    *proxymgr.Manager
	metrics    *observability.Metrics
	strategies []Strategy

	// wait blocks for d or until ctx is done.
	wait func(ctx context.Context, d time.Duration) error
}

// New creates a Downloader. proxies may be nil.
func New(log *slog.Logger,
	cfg *config.Config,
	ext extractor.Extractor,
	proxies *proxymgr.Manager,
	metrics *observability.Metrics,
) Downloader {
	return &fallback{
		log:        log.With(slog.String("package", "downloader")),
		cfg:        cfg,
		extractor:  ext,
		proxies:    proxies,
		metrics:    metrics,
		strategies: Strategies(cfg),
		wait:       sleep,
	}
}

// Strategies returns the video strategies in the order they are tried.
func Strategies(cfg *config.Config) []Strategy {
	return []Strategy{
		{
			Name:          consts.StrategyAndroid,
			UserAgent:     cfg.Download.MobileUserAgent,
			SourceAddress: cfg.Download.SourceAddress,
		},
		{
			Name:          consts.StrategyWeb,
			UserAgent:     cfg.Download.DesktopUserAgent,
			SourceAddress: cfg.Download.SourceAddress,
		},
		{
			Name: consts.StrategyBasic,
		},
	}
}

func (d *fallback) Download(ctx context.Context,
	req entity.MediaRequest,
	outDir string,
	tracker *progress.Tracker,
) entity.DownloadOutcome {
	if tracker == nil {
		tracker = progress.New(nil)
	}

	tracker.Reset()

	if err := req.Validate(); err != nil {
		return d.fail(ctx, tracker, entity.DownloadOutcome{}, errs.New(errs.KindInvalidInput, "validate", err))
	}

	if req.Kind == entity.KindAudio {
		return d.downloadAudio(ctx, req, outDir, tracker)
	}

	return d.downloadVideo(ctx, req, outDir, tracker)
}

// downloadAudio makes a single attempt with the desktop identity. Playlists yield their first entry only.
func (d *fallback) downloadAudio(ctx context.Context,
	req entity.MediaRequest,
	outDir string,
	tracker *progress.Tracker,
) entity.DownloadOutcome {
	opts := d.baseOptions(req, outDir)
	opts.Format = AudioFormat(req.Container)
	opts.ExtractAudio = true
	opts.AudioFormat = string(req.Container)
	opts.AudioQuality = req.Quality

	if req.Playlist {
		opts.PlaylistItems = "1"
	}

	strategy := Strategy{Name: consts.StrategyAudio, UserAgent: d.cfg.Download.DesktopUserAgent}
	outcome := entity.DownloadOutcome{Strategy: strategy.Name, Attempts: 1}

	path, err := d.attempt(ctx, req.URL, opts, strategy, outDir, audioExts, tracker)
	if err != nil {
		return d.fail(ctx, tracker, outcome, err)
	}

	return d.succeed(ctx, tracker, outcome, path)
}

func (d *fallback) downloadVideo(ctx context.Context,
	req entity.MediaRequest,
	outDir string,
	tracker *progress.Tracker,
) entity.DownloadOutcome {
	if len(d.strategies) == 0 {
		return d.fail(ctx, tracker, entity.DownloadOutcome{}, errs.New(errs.KindUnknown, "download video", errs.ErrNoStrategies))
	}

	opts := d.baseOptions(req, outDir)
	opts.Format, opts.MergeFormat = VideoFormat(req.Quality, req.Container)

	var (
		outcome entity.DownloadOutcome
		lastErr error
	)

	for i, strategy := range d.strategies {
		outcome.Strategy = strategy.Name
		outcome.Attempts = i + 1

		if i > 0 {
			// leftovers of a failed attempt must not pass as this attempt's output
			if err := clearDir(outDir); err != nil {
				d.log.WarnContext(ctx, "clear work dir before retry", slog.String("dir", outDir), slog.Any("error", err))
			}
		}

		path, err := d.attempt(ctx, req.URL, opts, strategy, outDir, videoExts, tracker)
		if err == nil {
			return d.succeed(ctx, tracker, outcome, path)
		}

		lastErr = err
		tracker.Reset()

		d.log.WarnContext(ctx, "download attempt failed",
			slog.String("strategy", strategy.Name),
			slog.Int("attempt", outcome.Attempts),
			slog.String("error_kind", string(errs.KindOf(err))),
			slog.Any("error", err))

		if ctx.Err() != nil || i == len(d.strategies)-1 {
			break
		}

		if errs.Is(err, errs.KindBotChallenge) {
			if waitErr := d.wait(ctx, d.backoff()); waitErr != nil {
				lastErr = waitErr

				break
			}
		}
	}

	return d.fail(ctx, tracker, outcome, lastErr)
}

// attempt runs one extraction and locates its output file.
func (d *fallback) attempt(ctx context.Context,
	url string,
	opts extractor.Options,
	strategy Strategy,
	outDir string,
	exts []string,
	tracker *progress.Tracker,
) (string, error) {
	opts.UserAgent = strategy.UserAgent
	opts.SourceAddress = strategy.SourceAddress

	var proxy string
	if d.proxies != nil {
		proxy, _ = d.proxies.Pick()
		opts.Proxy = proxy
	}

	d.log.InfoContext(ctx, "download attempt",
		slog.String("url", url),
		slog.String("strategy", strategy.Name),
		slog.String("proxy", proxyLabel(proxy)))

	res, err := d.extractor.Extract(ctx, url, opts, tracker.Report)
	if err == nil {
		var path string

		path, err = findOutput(outDir, exts, extractor.Filenames(res.Stdout))
		if err == nil {
			if d.proxies != nil {
				d.proxies.Report(proxy, nil)
			}

			d.metrics.RecordAttempt(strategy.Name, true)

			return path, nil
		}
	}

	if errs.Is(err, errs.KindBotChallenge) {
		d.metrics.RecordBotChallenge(strategy.Name)
	}

	if d.proxies != nil {
		d.proxies.Report(proxy, err)
	}

	d.metrics.RecordAttempt(strategy.Name, false)

	return "", err
}

func (d *fallback) baseOptions(req entity.MediaRequest, outDir string) extractor.Options {
	return extractor.Options{
		OutputTemplate:  filepath.Join(outDir, d.cfg.Dir.FilenameTemplate),
		Playlist:        req.Playlist,
		Retries:         d.cfg.Download.Retries,
		FragmentRetries: d.cfg.Download.FragmentRetries,
		ExtractorArgs:   d.cfg.Download.ExtractorArgs,
	}
}

func (d *fallback) succeed(ctx context.Context,
	tracker *progress.Tracker,
	outcome entity.DownloadOutcome,
	path string,
) entity.DownloadOutcome {
	outcome.FilePath = path
	outcome.Filename = fsname.Sanitize(filepath.Base(path))

	tracker.Finish(path)

	d.log.InfoContext(ctx, "download finished", slog.Any("outcome", outcome))

	return outcome
}

func (d *fallback) fail(ctx context.Context,
	tracker *progress.Tracker,
	outcome entity.DownloadOutcome,
	err error,
) entity.DownloadOutcome {
	outcome.ErrorKind = errs.KindOf(err)
	outcome.Error = err.Error()

	if outcome.ErrorKind == errs.KindBotChallenge {
		outcome.Error = consts.RespBotChallenge
	}

	tracker.Fail(outcome.Error)
	d.metrics.RecordDownloaderError(string(outcome.ErrorKind))

	d.log.ErrorContext(ctx, "download failed", slog.Any("outcome", outcome), slog.Any("error", err))

	return outcome
}

// backoff returns a random duration in [BackoffMin, BackoffMax].
func (d *fallback) backoff() time.Duration {
	lo, hi := d.cfg.Download.BackoffMin, d.cfg.Download.BackoffMax
	if hi <= lo {
		return lo
	}

	return lo + rand.N(hi-lo+1)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return errors.Join(errs.ErrDownloadFailed, ctx.Err())
	}
}

func proxyLabel(proxy string) string {
	if proxy == "" {
		return "none"
	}

	return proxymgr.Label(proxy)
}
