package downloader

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"testing/synctest"
	"time"

	"tubegrab/internal/config"
	"tubegrab/internal/consts"
	"tubegrab/internal/entity"
	"tubegrab/internal/errs"
	"tubegrab/internal/extractor"
	"tubegrab/internal/observability"
	"tubegrab/internal/progress"
	"tubegrab/internal/proxymgr"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

const testURL = "https://www.youtube.com/watch?v=dQw4w9WgXcQ"

var (
	errBot     = errs.New(errs.KindBotChallenge, "ytdlp run", errors.New("Sign in to confirm you're not a bot"))
	errNetwork = errs.New(errs.KindNetwork, "ytdlp run", errors.New("Unable to download webpage"))
	errPrivate = errs.New(errs.KindAccessDenied, "ytdlp run", errors.New("Private video"))
)

// fakeExtractor answers call i with errs[i]; a nil error writes file into the output dir.
type fakeExtractor struct {
	mu    sync.Mutex
	errs  []error
	file  string
	calls []extractor.Options
}

func (f *fakeExtractor) Extract(_ context.Context, _ string, opts extractor.Options, progress extractor.ProgressFunc) (*extractor.Result, error) {
	f.mu.Lock()
	call := len(f.calls)
	f.calls = append(f.calls, opts)
	f.mu.Unlock()

	progress(extractor.Update{Status: extractor.StatusDownloading, Downloaded: 50, Total: 100})

	if call < len(f.errs) && f.errs[call] != nil {
		return nil, f.errs[call]
	}

	if f.file == "" {
		return &extractor.Result{}, nil
	}

	path := filepath.Join(filepath.Dir(opts.OutputTemplate), f.file)
	if err := os.WriteFile(path, []byte("media"), 0o600); err != nil {
		return nil, err
	}

	progress(extractor.Update{Status: extractor.StatusFinished, Filename: path})

	return &extractor.Result{Stdout: "{\"id\":\"x\"}\n" + path + "\n"}, nil
}

func (f *fakeExtractor) Calls() []extractor.Options {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.calls
}

func newTestConfig() *config.Config {
	return &config.Config{
		Dir: config.Dir{FilenameTemplate: "%(title)s.%(ext)s"},
		Download: config.Download{
			Retries:          3,
			FragmentRetries:  3,
			BackoffMin:       2 * time.Second,
			BackoffMax:       5 * time.Second,
			ExtractorArgs:    "youtube:skip=dash,hls;player_skip=configs,webpage",
			MobileUserAgent:  "mobile-ua",
			DesktopUserAgent: "desktop-ua",
			SourceAddress:    "0.0.0.0",
		},
	}
}

func newTestDownloader(cfg *config.Config, ext extractor.Extractor, proxies *proxymgr.Manager) (*fallback, *observability.Metrics) {
	metrics := observability.New(prometheus.NewRegistry())
	d := New(slog.Default(), cfg, ext, proxies, metrics).(*fallback)

	return d, metrics
}

func videoRequest() entity.MediaRequest {
	return entity.MediaRequest{URL: testURL, Kind: entity.KindVideo, Container: entity.ContainerMP4, Quality: "1080"}
}

func TestDownloadVideoFallback(t *testing.T) {
	tests := []struct {
		name         string
		errs         []error
		wantOK       bool
		wantAttempts int
		wantStrategy string
		wantKind     errs.Kind
		wantError    string
	}{
		{
			name:         "first strategy succeeds",
			wantOK:       true,
			wantAttempts: 1,
			wantStrategy: consts.StrategyAndroid,
		},
		{
			name:         "bot challenge twice then basic succeeds",
			errs:         []error{errBot, errBot},
			wantOK:       true,
			wantAttempts: 3,
			wantStrategy: consts.StrategyBasic,
		},
		{
			name:         "non-bot error falls through",
			errs:         []error{errNetwork},
			wantOK:       true,
			wantAttempts: 2,
			wantStrategy: consts.StrategyWeb,
		},
		{
			name:         "final error is surfaced",
			errs:         []error{errBot, errNetwork, errPrivate},
			wantAttempts: 3,
			wantStrategy: consts.StrategyBasic,
			wantKind:     errs.KindAccessDenied,
			wantError:    "Private video",
		},
		{
			name:         "final bot challenge gets its own message",
			errs:         []error{errBot, errBot, errBot},
			wantAttempts: 3,
			wantStrategy: consts.StrategyBasic,
			wantKind:     errs.KindBotChallenge,
			wantError:    consts.RespBotChallenge,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			synctest.Test(t, func(t *testing.T) {
				ext := &fakeExtractor{errs: tc.errs, file: "Some Title.mp4"}
				d, metrics := newTestDownloader(newTestConfig(), ext, nil)
				tracker := progress.New(nil)

				got := d.Download(t.Context(), videoRequest(), t.TempDir(), tracker)

				if got.Succeeded() != tc.wantOK {
					t.Fatalf("Succeeded() = %v, outcome %+v", got.Succeeded(), got)
				}

				if got.Attempts != tc.wantAttempts || got.Strategy != tc.wantStrategy {
					t.Errorf("attempts/strategy = %d/%q, want %d/%q", got.Attempts, got.Strategy, tc.wantAttempts, tc.wantStrategy)
				}

				if len(ext.Calls()) != tc.wantAttempts {
					t.Errorf("extractor calls = %d, want %d", len(ext.Calls()), tc.wantAttempts)
				}

				state := tracker.Snapshot()

				if tc.wantOK {
					if got.Filename != "Some Title.mp4" || filepath.Base(got.FilePath) != "Some Title.mp4" {
						t.Errorf("file = %q / %q", got.FilePath, got.Filename)
					}

					if state.Percent != 100 || !state.Complete {
						t.Errorf("progress after success = %+v", state)
					}

					return
				}

				if got.ErrorKind != tc.wantKind || !strings.Contains(got.Error, tc.wantError) {
					t.Errorf("error = %q (%s), want %q (%s)", got.Error, got.ErrorKind, tc.wantError, tc.wantKind)
				}

				if state.Percent != 0 || state.Complete {
					t.Errorf("progress after failure = %+v, want 0", state)
				}

				if got := testutil.ToFloat64(metrics.DownloaderErrors.WithLabelValues(string(tc.wantKind))); got != 1 {
					t.Errorf("errors metric = %v, want 1", got)
				}
			})
		})
	}
}

func TestDownloadVideoStrategyOptions(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		ext := &fakeExtractor{errs: []error{errBot, errBot}, file: "a.webm"}
		d, _ := newTestDownloader(newTestConfig(), ext, nil)

		req := videoRequest()
		req.Container = entity.ContainerWEBM
		req.Quality = "480"

		if got := d.Download(t.Context(), req, t.TempDir(), nil); !got.Succeeded() {
			t.Fatalf("download failed: %+v", got)
		}

		calls := ext.Calls()

		wantUA := []string{"mobile-ua", "desktop-ua", ""}
		wantSrc := []string{"0.0.0.0", "0.0.0.0", ""}

		for i, opts := range calls {
			if opts.UserAgent != wantUA[i] || opts.SourceAddress != wantSrc[i] {
				t.Errorf("call %d identity = %q/%q", i, opts.UserAgent, opts.SourceAddress)
			}

			if opts.Format != "best[height<=480][ext=webm]/best[ext=webm]/best" || opts.MergeFormat != "webm" {
				t.Errorf("call %d format = %q merge %q", i, opts.Format, opts.MergeFormat)
			}

			if opts.Retries != 3 || opts.FragmentRetries != 3 || opts.Playlist {
				t.Errorf("call %d base options = %+v", i, opts)
			}
		}
	})
}

func TestDownloadBotBackoff(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		ext := &fakeExtractor{errs: []error{errBot, errNetwork}, file: "a.mp4"}
		d, metrics := newTestDownloader(newTestConfig(), ext, nil)

		start := time.Now()
		got := d.Download(t.Context(), videoRequest(), t.TempDir(), nil)
		elapsed := time.Since(start)

		if !got.Succeeded() {
			t.Fatalf("download failed: %+v", got)
		}

		// one bot wait only; the network error falls through immediately
		if elapsed < 2*time.Second || elapsed > 5*time.Second {
			t.Errorf("elapsed = %s, want within [2s, 5s]", elapsed)
		}

		if got := testutil.ToFloat64(metrics.BotChallenges.WithLabelValues(consts.StrategyAndroid)); got != 1 {
			t.Errorf("bot challenges = %v, want 1", got)
		}
	})
}

func TestDownloadCanceledDuringBackoff(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		ext := &fakeExtractor{errs: []error{errBot}, file: "a.mp4"}
		d, _ := newTestDownloader(newTestConfig(), ext, nil)

		ctx, cancel := context.WithTimeout(t.Context(), time.Second)
		defer cancel()

		got := d.Download(ctx, videoRequest(), t.TempDir(), nil)

		if got.Succeeded() {
			t.Fatal("expected failure after cancellation")
		}

		if len(ext.Calls()) != 1 {
			t.Errorf("extractor calls = %d, want 1", len(ext.Calls()))
		}

		if !strings.Contains(got.Error, context.DeadlineExceeded.Error()) {
			t.Errorf("error = %q, want deadline", got.Error)
		}
	})
}

func TestDownloadAudio(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		container  entity.Container
		playlist   bool
		errs       []error
		file       string
		wantOK     bool
		wantFormat string
		wantItems  string
	}{
		{
			name:       "mp3",
			container:  entity.ContainerMP3,
			file:       "song.mp3",
			wantOK:     true,
			wantFormat: "bestaudio/best",
		},
		{
			name:       "m4a playlist takes first item",
			container:  entity.ContainerM4A,
			playlist:   true,
			file:       "song.m4a",
			wantOK:     true,
			wantFormat: "bestaudio[ext=m4a]/bestaudio/best",
			wantItems:  "1",
		},
		{
			name:       "bot challenge is not retried",
			container:  entity.ContainerMP3,
			errs:       []error{errBot},
			file:       "song.mp3",
			wantFormat: "bestaudio/best",
		},
		{
			name:       "video file is not an audio output",
			container:  entity.ContainerMP3,
			file:       "clip.mp4",
			wantFormat: "bestaudio/best",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			ext := &fakeExtractor{errs: tc.errs, file: tc.file}
			d, _ := newTestDownloader(newTestConfig(), ext, nil)

			req := entity.MediaRequest{
				URL: testURL, Playlist: tc.playlist, Kind: entity.KindAudio, Container: tc.container, Quality: "320",
			}

			got := d.Download(t.Context(), req, t.TempDir(), nil)

			if got.Succeeded() != tc.wantOK {
				t.Fatalf("Succeeded() = %v, outcome %+v", got.Succeeded(), got)
			}

			calls := ext.Calls()
			if len(calls) != 1 || got.Attempts != 1 || got.Strategy != consts.StrategyAudio {
				t.Fatalf("calls = %d, outcome %+v", len(calls), got)
			}

			opts := calls[0]
			if !opts.ExtractAudio || opts.AudioFormat != string(tc.container) || opts.AudioQuality != "320" {
				t.Errorf("audio options = %+v", opts)
			}

			if opts.Format != tc.wantFormat || opts.PlaylistItems != tc.wantItems || opts.UserAgent != "desktop-ua" {
				t.Errorf("format/items/ua = %q/%q/%q", opts.Format, opts.PlaylistItems, opts.UserAgent)
			}
		})
	}
}

func TestDownloadInvalidRequest(t *testing.T) {
	t.Parallel()

	ext := &fakeExtractor{}
	d, _ := newTestDownloader(newTestConfig(), ext, nil)

	req := entity.MediaRequest{URL: "https://vimeo.com/1", Kind: entity.KindVideo, Container: entity.ContainerMP4, Quality: "720"}

	got := d.Download(t.Context(), req, t.TempDir(), nil)
	if got.Succeeded() || got.ErrorKind != errs.KindInvalidInput || got.Attempts != 0 {
		t.Errorf("outcome = %+v", got)
	}

	if len(ext.Calls()) != 0 {
		t.Errorf("extractor called for invalid input")
	}
}

func TestDownloadNoOutputFile(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		ext := &fakeExtractor{}
		d, _ := newTestDownloader(newTestConfig(), ext, nil)

		got := d.Download(t.Context(), videoRequest(), t.TempDir(), nil)

		if got.Succeeded() || got.ErrorKind != errs.KindUnknown {
			t.Errorf("outcome = %+v", got)
		}

		if !strings.Contains(got.Error, errs.ErrNoOutputFile.Error()) {
			t.Errorf("error = %q", got.Error)
		}
	})
}

func TestDownloadUsesProxies(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		const proxy = "socks5h://127.0.0.1:1080"

		cfg := newTestConfig()
		cfg.Proxy = config.Proxy{Proxies: []string{proxy}, MaxFailures: 5, FailureBackoff: time.Minute}

		proxies := proxymgr.New(slog.Default(), cfg, observability.New(prometheus.NewRegistry()))
		ext := &fakeExtractor{errs: []error{errBot}, file: "a.mp4"}
		d, _ := newTestDownloader(cfg, ext, proxies)

		if got := d.Download(t.Context(), videoRequest(), t.TempDir(), nil); !got.Succeeded() {
			t.Fatalf("download failed: %+v", got)
		}

		for i, opts := range ext.Calls() {
			if opts.Proxy != proxy {
				t.Errorf("call %d proxy = %q", i, opts.Proxy)
			}
		}

		if got := proxies.Stats()[proxy].FailureCount; got != 0 {
			t.Errorf("FailureCount after success = %d, want 0", got)
		}
	})
}

func TestVideoFormat(t *testing.T) {
	t.Parallel()

	tests := []struct {
		quality   string
		container entity.Container
		want      string
		wantMerge string
	}{
		{"720", entity.ContainerMP4, "best[height<=720][ext=mp4]/best[height<=720]/best", "mp4"},
		{"2160", entity.ContainerWEBM, "best[height<=2160][ext=webm]/best[ext=webm]/best", "webm"},
		{"999", entity.ContainerMP4, "best[height<=720][ext=mp4]/best[height<=720]/best", "mp4"},
		{"", entity.ContainerWEBM, "best[height<=720][ext=webm]/best[ext=webm]/best", "webm"},
	}

	for _, tc := range tests {
		got, merge := VideoFormat(tc.quality, tc.container)
		if got != tc.want || merge != tc.wantMerge {
			t.Errorf("VideoFormat(%q, %q) = %q, %q", tc.quality, tc.container, got, merge)
		}
	}
}

func TestFindOutput(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	for _, name := range []string{"b.mp4", "a.part", "a.f137.mp4", "a.f251-drc.webm", "c.webm", "notes.txt"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o600); err != nil {
			t.Fatal(err)
		}
	}

	if err := os.Mkdir(filepath.Join(dir, "a.mp4"), 0o755); err != nil {
		t.Fatal(err)
	}

	got, err := findOutput(dir, videoExts, nil)
	if err != nil || filepath.Base(got) != "b.mp4" {
		t.Errorf("findOutput() = %q, %v; want b.mp4", got, err)
	}

	got, err = findOutput(dir, videoExts, []string{filepath.Join(dir, "c.webm")})
	if err != nil || filepath.Base(got) != "c.webm" {
		t.Errorf("findOutput() with printed path = %q, %v; want c.webm", got, err)
	}

	got, err = findOutput(dir, videoExts, []string{"/elsewhere/x.mp4"})
	if err != nil || filepath.Base(got) != "b.mp4" {
		t.Errorf("findOutput() ignores paths outside dir: got %q, %v", got, err)
	}

	if _, err := findOutput(dir, audioExts, nil); !errors.Is(err, errs.ErrNoOutputFile) {
		t.Errorf("findOutput() audio error = %v, want %v", err, errs.ErrNoOutputFile)
	}
}

// leftoverExtractor fails its first call after writing partial streams, then succeeds
// without printing the output path.
type leftoverExtractor struct {
	calls int
}

func (l *leftoverExtractor) Extract(_ context.Context, _ string, opts extractor.Options, _ extractor.ProgressFunc) (*extractor.Result, error) {
	l.calls++
	dir := filepath.Dir(opts.OutputTemplate)

	names := []string{"Title.mp4"}
	if l.calls == 1 {
		names = []string{"Title.f137.mp4", "A leftover.mp4"}
	}

	for _, name := range names {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("media"), 0o600); err != nil {
			return nil, err
		}
	}

	if l.calls == 1 {
		return nil, errNetwork
	}

	return &extractor.Result{Stdout: "{\"id\":\"x\"}\n"}, nil
}

func TestDownloadClearsLeftoversBeforeRetry(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		ext := &leftoverExtractor{}
		d, _ := newTestDownloader(newTestConfig(), ext, nil)
		outDir := t.TempDir()

		got := d.Download(t.Context(), videoRequest(), outDir, nil)
		if !got.Succeeded() {
			t.Fatalf("outcome = %+v", got)
		}

		if got.Attempts != 2 || got.Filename != "Title.mp4" {
			t.Errorf("outcome = %+v, want Title.mp4 on attempt 2", got)
		}

		entries, err := os.ReadDir(outDir)
		if err != nil {
			t.Fatal(err)
		}

		if len(entries) != 1 {
			t.Errorf("work dir holds %d files, want only the output", len(entries))
		}
	})
}
