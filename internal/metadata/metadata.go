// Package metadata answers "what is at this URL" without downloading anything.
package metadata

import (
	"context"
	"log/slog"

	"tubegrab/internal/config"
	"tubegrab/internal/entity"
	"tubegrab/internal/errs"
	"tubegrab/internal/extractor"
	"tubegrab/internal/observability"
	"tubegrab/pkg/format"
	"tubegrab/pkg/maths"
	"tubegrab/pkg/ptr"
	"tubegrab/pkg/urls"
)

const unknown = "Unknown"

// Fetcher queries video and playlist metadata.
type Fetcher struct {
	log       *slog.Logger
	cfg       *config.Config
	extractor extractor.Extractor
	metrics   *observability.Metrics
}

// New creates a Fetcher.
func New(log *slog.Logger, cfg *config.Config, ext extractor.Extractor, metrics *observability.Metrics) *Fetcher {
	return &Fetcher{
		log:       log.With(slog.String("package", "metadata")),
		cfg:       cfg,
		extractor: ext,
		metrics:   metrics,
	}
}

// Fetch returns the metadata of the video or playlist at rawURL.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*entity.VideoMetadata, error) {
	if !urls.IsSupported(rawURL) {
		return nil, errs.New(errs.KindInvalidInput, "fetch metadata", errs.ErrInvalidURL)
	}

	opts := extractor.Options{
		Playlist:      true,
		SkipDownload:  true,
		Retries:       f.cfg.Download.Retries,
		ExtractorArgs: f.cfg.Download.ExtractorArgs,
		UserAgent:     f.cfg.Download.DesktopUserAgent,
	}

	res, err := f.extractor.Extract(ctx, urls.Normalize(rawURL), opts, nil)
	if err != nil {
		f.metrics.RecordMetadataRequest(false)
		f.log.ErrorContext(ctx, "fetch metadata", slog.String("url", rawURL), slog.Any("error", err))

		return nil, err
	}

	info, err := extractor.ParseInfo(res.Stdout)
	if err != nil {
		f.metrics.RecordMetadataRequest(false)
		f.log.ErrorContext(ctx, "parse metadata", slog.String("url", rawURL), slog.Any("error", err))

		return nil, err
	}

	meta := Aggregate(info)

	f.metrics.RecordMetadataRequest(true)
	f.log.DebugContext(ctx, "metadata fetched", slog.String("url", rawURL), slog.Any("metadata", meta))

	return meta, nil
}

// Aggregate folds a tool document into VideoMetadata. A document with more than one entry
// is a playlist: its own title and uploader win, the rest comes from the first present entry.
func Aggregate(info *extractor.Info) *entity.VideoMetadata {
	if len(info.Entries) <= 1 {
		item := info
		if entries := info.ValidEntries(); len(entries) == 1 {
			item = entries[0]
		}

		return single(item)
	}

	entries := info.ValidEntries()

	first := &extractor.Info{}
	if len(entries) > 0 {
		first = entries[0]
	}

	meta := single(first)
	meta.IsPlaylist = true
	meta.PlaylistCount = ptr.Of(len(entries))
	meta.Title = firstNonEmpty(info.Title, first.Title, unknown)
	meta.Uploader = firstNonEmpty(info.Uploader, first.Uploader, unknown)

	return meta
}

func single(info *extractor.Info) *entity.VideoMetadata {
	duration := info.DurationString
	if duration == "" && info.Duration != nil {
		duration = format.Duration(maths.Round[int](*info.Duration))
	}

	return &entity.VideoMetadata{
		Title:          firstNonEmpty(info.Title, unknown),
		Uploader:       firstNonEmpty(info.Uploader, info.Channel, unknown),
		ViewCount:      maths.Round[int64](ptr.Deref(info.ViewCount)),
		DurationString: firstNonEmpty(duration, format.UnknownDuration),
		ThumbnailURL:   info.Thumbnail,
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}

	return ""
}
