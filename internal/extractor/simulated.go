package extractor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"tubegrab/pkg/gen"
)

const (
	simulatedSteps     = 10
	simulatedTotal     = 4 << 20 // 4 MiB
	simulatedDuration  = 213     // seconds
	simulatedTitle     = "Simulated video"
	simulatedUploader  = "tubegrab"
	defaultVideoExt    = "mp4"
	filePermReadWrite  = 0o644
	simulatedFileBytes = "simulated media\n"
)

// Simulated is an Extractor that fakes a transfer without touching the network.
// It reports progress on a ticker and writes a small placeholder file.
type Simulated struct {
	log      *slog.Logger
	duration time.Duration
}

// NewSimulated creates a Simulated extractor whose transfers take duration.
func NewSimulated(log *slog.Logger, duration time.Duration) *Simulated {
	return &Simulated{
		log:      log.With(slog.String("package", "extractor"), slog.String("extractor", "simulated")),
		duration: duration,
	}
}

// Extract simulates one invocation of the tool.
func (s *Simulated) Extract(ctx context.Context, url string, opts Options, progress ProgressFunc) (*Result, error) {
	id := gen.UUIDv5(url, "")[:11]

	info := Info{
		Type:           "video",
		ID:             id,
		Title:          simulatedTitle,
		Uploader:       simulatedUploader,
		Channel:        simulatedUploader,
		ViewCount:      new(float64),
		Duration:       new(float64),
		DurationString: "3:33",
		WebpageURL:     url,
	}
	*info.Duration = simulatedDuration

	if opts.SkipDownload {
		return s.result(info, "")
	}

	ext := defaultVideoExt

	switch {
	case opts.ExtractAudio && opts.AudioFormat != "":
		ext = opts.AudioFormat
	case opts.MergeFormat != "":
		ext = opts.MergeFormat
	}

	info.Ext = ext
	path := expandTemplate(opts.OutputTemplate, info)

	if err := s.simulate(ctx, path, progress); err != nil {
		return nil, fmt.Errorf("simulated run: %w", err)
	}

	if err := os.WriteFile(path, []byte(simulatedFileBytes), filePermReadWrite); err != nil {
		return nil, fmt.Errorf("write simulated file: %w", err)
	}

	if progress != nil {
		progress(Update{Status: StatusFinished, Filename: path, Downloaded: simulatedTotal, Total: simulatedTotal})
	}

	s.log.InfoContext(ctx, "simulated download done", slog.String("path", path))

	return s.result(info, path)
}

func (s *Simulated) simulate(ctx context.Context, path string, progress ProgressFunc) error {
	if s.duration <= 0 {
		return ctx.Err()
	}

	ticker := time.NewTicker(s.duration / simulatedSteps)
	defer ticker.Stop()

	start := time.Now()

	for step := 1; step <= simulatedSteps; step++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if progress != nil {
				progress(Update{
					Status:     StatusDownloading,
					Filename:   path,
					Downloaded: step * simulatedTotal / simulatedSteps,
					Total:      simulatedTotal,
					Started:    start,
				})
			}
		}
	}

	return nil
}

func (s *Simulated) result(info Info, path string) (*Result, error) {
	raw, err := json.Marshal(info)
	if err != nil {
		return nil, fmt.Errorf("marshal simulated info: %w", err)
	}

	stdout := string(raw) + "\n"
	if path != "" {
		stdout += path + "\n"
	}

	return &Result{Stdout: stdout}, nil
}

func expandTemplate(tmpl string, info Info) string {
	if tmpl == "" {
		tmpl = "%(title)s.%(ext)s"
	}

	replacer := strings.NewReplacer(
		"%(title)s", info.Title,
		"%(id)s", info.ID,
		"%(ext)s", info.Ext,
	)

	return filepath.Clean(replacer.Replace(tmpl))
}
