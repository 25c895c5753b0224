package extractor

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"tubegrab/internal/config"
	"tubegrab/internal/errs"
	"tubegrab/pkg/calc"
	"tubegrab/pkg/shellquote"

	"github.com/lrstanley/go-ytdlp"
)

const (
	defaultProgressFreq = 200 * time.Millisecond
	// stderrTailLines is how much of the tool's stderr ends up in error messages.
	stderrTailLines = 3
)

// Binaries are the executables the tool needs. Empty paths fall back to PATH lookup.
type Binaries struct {
	YTdlp  string
	FFmpeg string
}

// YTdlp runs yt-dlp through go-ytdlp.
type YTdlp struct {
	log  *slog.Logger
	cfg  *config.Config
	bins Binaries
}

// NewYTdlp creates a yt-dlp backed Extractor.
func NewYTdlp(log *slog.Logger, cfg *config.Config, bins Binaries) *YTdlp {
	return &YTdlp{
		log:  log.With(slog.String("package", "extractor")),
		cfg:  cfg,
		bins: bins,
	}
}

// Extract runs one yt-dlp invocation for url.
func (y *YTdlp) Extract(ctx context.Context, url string, opts Options, progress ProgressFunc) (*Result, error) {
	log := y.log

	command := y.command(opts)

	if progress != nil {
		command = command.ProgressFunc(defaultProgressFreq, func(prog ytdlp.ProgressUpdate) {
			log.DebugContext(ctx, "ytdlp progress", slog.Any("progress_update", ProgressUpdate{&prog}))
			progress(Update{
				Status:     fmt.Sprint(prog.Status),
				Filename:   prog.Filename,
				Downloaded: prog.DownloadedBytes,
				Total:      prog.TotalBytes,
				Started:    prog.Started,
			})
		})
	}

	log.DebugContext(ctx, "ytdlp run", slog.String("url", url), slog.Any("options", opts))

	res, err := command.Run(ctx, url)
	if res != nil {
		log.DebugContext(ctx, "ytdlp command", slog.String("cmd", shellquote.Join(res.Executable, res.Args)))
	}

	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("ytdlp run: %w", ctxErr)
		}

		log.ErrorContext(ctx, "ytdlp run", slog.Any("error", err), slog.Any("result", runResult{res}))

		text := err.Error()
		if res != nil {
			text = res.Stderr + "\n" + text
		}

		return nil, errs.New(Classify(text), "ytdlp run", fmt.Errorf("%w: %s", errs.ErrDownloadFailed, tail(text)))
	}

	log.DebugContext(ctx, "ytdlp done", slog.Any("result", runResult{res}))

	return &Result{Stdout: res.Stdout}, nil
}

func (y *YTdlp) command(opts Options) *ytdlp.Command {
	command := ytdlp.New().
		CacheDir(y.cfg.Dir.Cache).
		Retries(strconv.Itoa(opts.Retries)).
		FragmentRetries(strconv.Itoa(opts.FragmentRetries)).
		SkipUnavailableFragments()

	if y.bins.YTdlp != "" {
		command = command.SetExecutable(y.bins.YTdlp)
	}

	if y.bins.FFmpeg != "" {
		command = command.FFmpegLocation(y.bins.FFmpeg)
	}

	if y.cfg.Dir.CookieFile != "" {
		command = command.Cookies(y.cfg.Dir.CookieFile)
	}

	if opts.ExtractorArgs != "" {
		command = command.ExtractorArgs(opts.ExtractorArgs)
	}

	if opts.UserAgent != "" {
		command = command.AddHeaders("User-Agent:" + opts.UserAgent)
	}

	if opts.SourceAddress != "" {
		command = command.SourceAddress(opts.SourceAddress)
	}

	if opts.Proxy != "" {
		command = command.Proxy(opts.Proxy)
	}

	switch {
	case opts.Playlist && opts.PlaylistItems != "":
		command = command.YesPlaylist().PlaylistItems(opts.PlaylistItems)
	case opts.Playlist:
		command = command.YesPlaylist()
	default:
		command = command.NoPlaylist()
	}

	if opts.SkipDownload {
		return command.SkipDownload().DumpSingleJSON()
	}

	command = command.
		Output(opts.OutputTemplate).
		PrintJSON().
		Print(printAfterMove)

	if opts.Format != "" {
		command = command.Format(opts.Format)
	}

	if opts.MergeFormat != "" {
		command = command.MergeOutputFormat(opts.MergeFormat)
	}

	if opts.ExtractAudio {
		command = command.ExtractAudio().AudioFormat(opts.AudioFormat)
		if opts.AudioQuality != "" {
			command = command.AudioQuality(opts.AudioQuality + "K")
		}
	}

	return command
}

// tail returns the last non-empty lines of text joined by "; ".
func tail(text string) string {
	lines := strings.Split(strings.TrimSpace(text), "\n")

	out := make([]string, 0, stderrTailLines)

	for i := len(lines) - 1; i >= 0 && len(out) < stderrTailLines; i-- {
		line := strings.TrimSpace(lines[i])
		if line != "" {
			out = append(out, line)
		}
	}

	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}

	return strings.Join(out, "; ")
}

// runResult wraps ytdlp.Result for custom logging.
type runResult struct {
	*ytdlp.Result
}

// LogValue implements the slog.LogValuer interface for custom logging of Result.
func (r runResult) LogValue() slog.Value {
	if r.Result == nil {
		return slog.GroupValue(slog.String("error", "nil result"))
	}

	var outputLogs strings.Builder
	for _, line := range r.OutputLogs {
		fmt.Fprintf(&outputLogs, "%v\n", line)
	}

	return slog.GroupValue(
		slog.String("executable", r.Executable),
		slog.String("args", fmt.Sprintf("%v", r.Args)),
		slog.String("stdout", r.Stdout),
		slog.String("stderr", r.Stderr),
		slog.String("output_logs", outputLogs.String()),
	)
}

// ProgressUpdate wraps ytdlp.ProgressUpdate for custom logging.
type ProgressUpdate struct {
	*ytdlp.ProgressUpdate
}

// LogValue implements the slog.LogValuer interface for custom logging of ProgressUpdate.
func (p ProgressUpdate) LogValue() slog.Value {
	if p.ProgressUpdate == nil {
		return slog.GroupValue(slog.String("error", "nil progress update"))
	}

	return slog.GroupValue(
		slog.String("filename", p.Filename),
		slog.String("status", fmt.Sprintf("%v", p.Status)),
		slog.Int("downloaded_bytes", p.DownloadedBytes),
		slog.Int("total_bytes", p.TotalBytes),
		slog.Int("fragment_index", p.FragmentIndex),
		slog.Int("fragment_count", p.FragmentCount),
		slog.Int("progress", calc.Percent(p.DownloadedBytes, p.TotalBytes)),
		slog.Time("started", p.Started),
		slog.String("eta", calc.ETA(p.DownloadedBytes, p.TotalBytes, p.Started).String()),
	)
}
