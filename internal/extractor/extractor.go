// Package extractor is the boundary to the external extraction tool.
package extractor

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"tubegrab/internal/errs"
)

// Progress status tags reported by the tool.
const (
	StatusDownloading = "downloading"
	StatusFinished    = "finished"
)

// Options configures one invocation of the tool.
type Options struct {
	OutputTemplate  string
	Format          string
	MergeFormat     string
	ExtractAudio    bool
	AudioFormat     string
	AudioQuality    string
	Playlist        bool
	PlaylistItems   string
	Retries         int
	FragmentRetries int
	ExtractorArgs   string
	UserAgent       string
	SourceAddress   string
	Proxy           string
	// SkipDownload queries metadata only and prints it as a single JSON document.
	SkipDownload bool
}

// LogValue implements the slog.LogValuer interface for structured logging.
func (o Options) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("format", o.Format),
		slog.String("merge_format", o.MergeFormat),
		slog.Bool("extract_audio", o.ExtractAudio),
		slog.String("audio_format", o.AudioFormat),
		slog.String("audio_quality", o.AudioQuality),
		slog.Bool("playlist", o.Playlist),
		slog.String("user_agent", o.UserAgent),
		slog.String("source_address", o.SourceAddress),
		slog.Bool("proxy", o.Proxy != ""),
		slog.Bool("skip_download", o.SkipDownload),
	)
}

// Update is a progress event emitted while the tool transfers data.
type Update struct {
	Status     string
	Filename   string
	Downloaded int
	Total      int
	Started    time.Time
}

// ProgressFunc receives progress events synchronously.
type ProgressFunc func(Update)

// Result is what a successful invocation leaves behind.
type Result struct {
	Stdout string
}

// Extractor runs the external extraction tool.
type Extractor interface {
	Extract(ctx context.Context, url string, opts Options, progress ProgressFunc) (*Result, error)
}

var (
	botMarkers = []string{
		"sign in to confirm you",
		"not a bot",
	}
	accessMarkers = []string{
		"private video",
		"video unavailable",
		"this video is not available",
		"has been removed",
		"members-only",
		"join this channel",
		"confirm your age",
		"age-restricted",
		"inappropriate for some users",
		"http error 403",
		"forbidden",
	}
	networkMarkers = []string{
		"unable to download webpage",
		"name or service not known",
		"temporary failure in name resolution",
		"no such host",
		"connection reset",
		"connection refused",
		"timed out",
		"network is unreachable",
		"http error 500",
		"http error 502",
		"http error 503",
		"http error 504",
	}
)

// Classify maps the tool's error output to an error kind.
func Classify(text string) errs.Kind {
	text = strings.ToLower(text)

	switch {
	case text == "":
		return errs.KindUnknown
	case containsAny(text, botMarkers):
		return errs.KindBotChallenge
	case containsAny(text, accessMarkers):
		return errs.KindAccessDenied
	case containsAny(text, networkMarkers):
		return errs.KindNetwork
	default:
		return errs.KindUnknown
	}
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}

	return false
}
