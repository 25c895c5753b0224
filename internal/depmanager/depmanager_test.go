//nolint:testpackage // using internal package access to cover private helpers
package depmanager

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"testing/synctest"
	"time"

	"tubegrab/internal/config"
	"tubegrab/internal/errs"

	"github.com/ulikunitz/xz"
)

type rtFunc func(*http.Request) (*http.Response, error)

func (f rtFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

var linuxAMD64 = Platform{OS: platformLinux, Arch: archAMD64}

func newTestManager(cfg config.DepManager) *Manager {
	mgr := New(slog.Default(), &config.Config{DepManager: cfg})
	mgr.platform = linuxAMD64

	return mgr
}

func tarXZ(t *testing.T, files map[string]string) []byte {
	t.Helper()

	var buf bytes.Buffer

	xw, err := xz.NewWriter(&buf)
	if err != nil {
		t.Fatalf("xz writer: %v", err)
	}

	tw := tar.NewWriter(xw)

	for name, content := range files {
		hdr := &tar.Header{Name: name, Mode: 0o755, Size: int64(len(content)), Typeflag: tar.TypeReg}
		if err := tw.WriteHeader(hdr); err != nil {
			t.Fatalf("tar header: %v", err)
		}

		if _, err := tw.Write([]byte(content)); err != nil {
			t.Fatalf("tar write: %v", err)
		}
	}

	if err := tw.Close(); err != nil {
		t.Fatalf("tar close: %v", err)
	}

	if err := xw.Close(); err != nil {
		t.Fatalf("xz close: %v", err)
	}

	return buf.Bytes()
}

func zipArchive(t *testing.T, files map[string]string) []byte {
	t.Helper()

	var buf bytes.Buffer

	zw := zip.NewWriter(&buf)

	for name, content := range files {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("zip create: %v", err)
		}

		if _, err := w.Write([]byte(content)); err != nil {
			t.Fatalf("zip write: %v", err)
		}
	}

	if err := zw.Close(); err != nil {
		t.Fatalf("zip close: %v", err)
	}

	return buf.Bytes()
}

func TestParseSHASums(t *testing.T) {
	t.Parallel()

	hashA := strings.Repeat("a", sha256HexLength)
	hashB := strings.Repeat("B", sha256HexLength)

	tests := []struct {
		name     string
		content  string
		wantHash map[string]string
	}{
		{
			name:     "valid sums",
			content:  hashA + "  yt-dlp_linux\n" + hashB + "  yt-dlp_linux_aarch64\n",
			wantHash: map[string]string{"yt-dlp_linux": hashA, "yt-dlp_linux_aarch64": strings.ToLower(hashB)},
		},
		{
			name:     "binary mode marker",
			content:  hashA + " *deno-x86_64-unknown-linux-gnu.zip",
			wantHash: map[string]string{"deno-x86_64-unknown-linux-gnu.zip": hashA},
		},
		{
			name:     "empty content",
			wantHash: map[string]string{},
		},
		{
			name:     "invalid lines",
			content:  "not a valid line\nshort  filename\n",
			wantHash: map[string]string{},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			mgr := newTestManager(config.DepManager{})
			mgr.ParseSHASums(tc.content)

			if len(mgr.shaSums) != len(tc.wantHash) {
				t.Errorf("got %d sums, want %d", len(mgr.shaSums), len(tc.wantHash))
			}

			for filename, wantHash := range tc.wantHash {
				if got := mgr.shaSums[filename]; got != wantHash {
					t.Errorf("hash for %s: got %s, want %s", filename, got, wantHash)
				}
			}
		})
	}
}

func TestGetBinaryPath(t *testing.T) {
	t.Parallel()

	tests := []struct {
		binary   BinaryName
		os       string
		wantPath string
	}{
		{BinaryYTdlp, "linux", "/app/bins/yt-dlp"},
		{BinaryYTdlp, "windows", "/app/bins/yt-dlp.exe"},
		{BinaryFFprobe, "darwin", "/app/bins/ffprobe"},
	}

	for _, tc := range tests {
		mgr := newTestManager(config.DepManager{BinsDir: "/app/bins"})
		mgr.platform.OS = tc.os

		if got := mgr.GetBinaryPath(tc.binary); got != tc.wantPath {
			t.Errorf("GetBinaryPath(%s) on %s = %s, want %s", tc.binary, tc.os, got, tc.wantPath)
		}
	}
}

func TestSourceURL(t *testing.T) {
	t.Parallel()

	src := source{
		binaries: []BinaryName{BinaryYTdlp},
		arm64:    "https://example.com/releases/yt-dlp_linux_aarch64",
		amd64:    "https://example.com/releases/yt-dlp_linux?raw=1",
	}

	tests := []struct {
		platform  Platform
		wantURL   string
		wantAsset string
		wantErr   error
	}{
		{Platform{OS: "linux", Arch: "arm64"}, src.arm64, "yt-dlp_linux_aarch64", nil},
		{linuxAMD64, src.amd64, "yt-dlp_linux", nil},
		{Platform{OS: "darwin", Arch: "arm64"}, "", "", errs.ErrUnsupportedPlatform},
		{Platform{OS: "linux", Arch: "riscv64"}, "", "", errs.ErrUnsupportedPlatform},
	}

	for _, tc := range tests {
		got, err := src.url(tc.platform)
		if got != tc.wantURL || !errors.Is(err, tc.wantErr) {
			t.Errorf("url(%s) = %q, %v; want %q, %v", tc.platform, got, err, tc.wantURL, tc.wantErr)
		}

		if asset := src.asset(tc.platform); asset != tc.wantAsset {
			t.Errorf("asset(%s) = %q, want %q", tc.platform, asset, tc.wantAsset)
		}
	}
}

func TestSourcesDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := config.New()
	if err != nil {
		t.Fatalf("config.New() error = %v", err)
	}

	want := map[BinaryName]string{
		BinaryFFmpeg: "ffmpeg-master-latest-linux64-gpl.tar.xz",
		BinaryDeno:   "deno-x86_64-unknown-linux-gnu.zip",
		BinaryYTdlp:  "yt-dlp_linux",
	}

	for _, src := range sources(cfg.DepManager) {
		if got := src.asset(linuxAMD64); got != want[src.name()] {
			t.Errorf("asset of %s = %q, want %q", src.name(), got, want[src.name()])
		}
	}
}

func TestFetchSHASums(t *testing.T) {
	t.Parallel()

	hash := strings.Repeat("a", sha256HexLength)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/broken" {
			w.WriteHeader(http.StatusInternalServerError)

			return
		}

		fmt.Fprintf(w, "%s  %s\n", hash, strings.TrimPrefix(r.URL.Path, "/"))
	}))
	t.Cleanup(server.Close)

	mgr := newTestManager(config.DepManager{
		YTdlpSHA256SumsURL: server.URL + "/yt-dlp_linux",
		DenoSHA256SumsURL:  server.URL + "/deno-a.zip, " + server.URL + "/deno-b.zip",
	})

	if err := mgr.FetchSHASums(t.Context()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(mgr.shaSums) != 3 {
		t.Errorf("got %d sums, want 3: %v", len(mgr.shaSums), mgr.shaSums)
	}

	broken := newTestManager(config.DepManager{YTdlpSHA256SumsURL: server.URL + "/broken"})
	if err := broken.FetchSHASums(t.Context()); err == nil {
		t.Error("expected error for server error response")
	}

	empty := newTestManager(config.DepManager{})
	if err := empty.FetchSHASums(t.Context()); !errors.Is(err, errNoSumsURLs) {
		t.Errorf("error = %v, want %v", err, errNoSumsURLs)
	}
}

func TestInstallAll(t *testing.T) {
	t.Parallel()

	archiveFFmpeg := tarXZ(t, map[string]string{
		"ffmpeg-master/bin/ffmpeg":  "ffmpeg binary",
		"ffmpeg-master/bin/ffprobe": "ffprobe binary",
		"ffmpeg-master/LICENSE.txt": "gpl",
	})
	archiveDeno := zipArchive(t, map[string]string{"deno": "deno binary"})
	hash := strings.Repeat("f", sha256HexLength)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ffmpeg.tar.xz":
			_, _ = w.Write(archiveFFmpeg)
		case "/deno.zip":
			_, _ = w.Write(archiveDeno)
		case "/yt-dlp_linux":
			_, _ = w.Write([]byte("yt-dlp binary"))
		case "/sums":
			fmt.Fprintf(w, "%s  yt-dlp_linux\n", hash)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(server.Close)

	binsDir := t.TempDir()
	mgr := newTestManager(config.DepManager{
		BinsDir:            binsDir,
		FFmpegLinuxAMD64:   server.URL + "/ffmpeg.tar.xz",
		DenoLinuxAMD64:     server.URL + "/deno.zip",
		YTdlpLinuxAMD64:    server.URL + "/yt-dlp_linux",
		YTdlpSHA256SumsURL: server.URL + "/sums",
	})

	if err := mgr.InstallAll(t.Context()); err != nil {
		t.Fatalf("InstallAll() error = %v", err)
	}

	want := map[BinaryName]string{
		BinaryFFmpeg:  "ffmpeg binary",
		BinaryFFprobe: "ffprobe binary",
		BinaryDeno:    "deno binary",
		BinaryYTdlp:   "yt-dlp binary",
	}

	for binary, content := range want {
		path := mgr.GetInstalledPath(binary)
		if path != filepath.Join(binsDir, string(binary)) {
			t.Errorf("installed path of %s = %q", binary, path)

			continue
		}

		info, err := os.Stat(path)
		if err != nil || info.Mode().Perm()&0o100 == 0 {
			t.Errorf("%s not executable: %v", binary, err)
		}

		if got, _ := os.ReadFile(path); string(got) != content {
			t.Errorf("%s content = %q, want %q", binary, got, content)
		}
	}

	if _, err := os.Stat(filepath.Join(binsDir, "LICENSE.txt")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("unexpected file extracted: %v", err)
	}

	if bins := mgr.Binaries(); bins.YTdlp != binPath(binsDir, BinaryYTdlp) || bins.FFmpeg != binPath(binsDir, BinaryFFmpeg) {
		t.Errorf("Binaries() = %+v", bins)
	}

	if mgr.savedSums["yt-dlp_linux"] != hash {
		t.Errorf("saved sums = %v", mgr.savedSums)
	}

	// a second run finds everything in place and downloads nothing
	server.Close()

	again := newTestManager(mgr.cfg.DepManager)
	if err := again.InstallAll(t.Context()); err != nil {
		t.Fatalf("second InstallAll() error = %v", err)
	}

	if again.savedSums["yt-dlp_linux"] != hash {
		t.Errorf("saved sums were not loaded: %v", again.savedSums)
	}
}

func binPath(dir string, name BinaryName) string {
	return filepath.Join(dir, string(name))
}

func TestInstallMissingArchiveMember(t *testing.T) {
	t.Parallel()

	archive := tarXZ(t, map[string]string{"bin/ffmpeg": "ffmpeg only"})

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write(archive)
	}))
	t.Cleanup(server.Close)

	mgr := newTestManager(config.DepManager{BinsDir: t.TempDir(), FFmpegLinuxAMD64: server.URL + "/ffmpeg.tar.xz"})

	src, err := mgr.sourceOf(BinaryFFmpeg)
	if err != nil {
		t.Fatal(err)
	}

	if err := mgr.install(t.Context(), src); !errors.Is(err, errNoTargets) {
		t.Errorf("install() error = %v, want %v", err, errNoTargets)
	}

	if mgr.GetInstalledPath(BinaryFFprobe) != "" {
		t.Error("ffprobe recorded as installed")
	}
}

func TestInstallUnsupportedPlatform(t *testing.T) {
	t.Parallel()

	mgr := newTestManager(config.DepManager{BinsDir: t.TempDir(), YTdlpLinuxAMD64: "https://example.com/yt-dlp_linux"})
	mgr.platform = Platform{OS: "darwin", Arch: "arm64"}

	if err := mgr.InstallAll(t.Context()); !errors.Is(err, errs.ErrUnsupportedPlatform) {
		t.Errorf("InstallAll() error = %v, want %v", err, errs.ErrUnsupportedPlatform)
	}
}

func TestFindUpdates(t *testing.T) {
	t.Parallel()

	oldHash := strings.Repeat("1", sha256HexLength)
	newHash := strings.Repeat("2", sha256HexLength)

	tests := []struct {
		name  string
		saved map[string]string
		sums  map[string]string
		want  []BinaryName
	}{
		{
			name:  "changed hash",
			saved: map[string]string{"yt-dlp_linux": oldHash},
			sums:  map[string]string{"yt-dlp_linux": newHash},
			want:  []BinaryName{BinaryYTdlp},
		},
		{
			name:  "same hash",
			saved: map[string]string{"yt-dlp_linux": oldHash},
			sums:  map[string]string{"yt-dlp_linux": oldHash},
		},
		{
			name: "never saved",
			sums: map[string]string{"ffmpeg.tar.xz": newHash, "other-asset": newHash},
			want: []BinaryName{BinaryFFmpeg},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			mgr := newTestManager(config.DepManager{
				YTdlpLinuxAMD64:  "https://example.com/yt-dlp_linux",
				FFmpegLinuxAMD64: "https://example.com/ffmpeg.tar.xz",
			})
			mgr.savedSums = tc.saved
			mgr.shaSums = tc.sums

			if got := mgr.findUpdates(); !slices.Equal(got, tc.want) {
				t.Errorf("findUpdates() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestCheckAndUpdate_DownloadsNewBinary(t *testing.T) {
	t.Parallel()

	tmpDir := t.TempDir()

	const (
		filename      = "yt-dlp_linux"
		binaryContent = "updated binary"
	)

	newHash := strings.Repeat("a", sha256HexLength)
	oldHash := strings.Repeat("b", sha256HexLength)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/sha":
			fmt.Fprintf(w, "%s  %s\n", newHash, filename)
		case "/" + filename:
			_, _ = w.Write([]byte(binaryContent))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(server.Close)

	mgr := newTestManager(config.DepManager{
		BinsDir:            tmpDir,
		YTdlpSHA256SumsURL: server.URL + "/sha",
		YTdlpLinuxAMD64:    server.URL + "/" + filename,
	})
	mgr.savedSums = map[string]string{filename: oldHash}

	mgr.checkAndUpdate(t.Context())

	data, err := os.ReadFile(filepath.Join(tmpDir, "yt-dlp"))
	if err != nil {
		t.Fatalf("expected binary to be downloaded: %v", err)
	}

	if string(data) != binaryContent {
		t.Fatalf("downloaded binary content mismatch: got %q, want %q", string(data), binaryContent)
	}

	if got := mgr.savedSums[filename]; got != newHash {
		t.Fatalf("saved checksum mismatch: got %s, want %s", got, newHash)
	}
}

func TestCheckAndUpdate_FailedInstallIsRetried(t *testing.T) {
	t.Parallel()

	const filename = "yt-dlp_linux"

	newHash := strings.Repeat("a", sha256HexLength)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/sha" {
			fmt.Fprintf(w, "%s  %s\n", newHash, filename)

			return
		}

		w.WriteHeader(http.StatusBadGateway)
	}))
	t.Cleanup(server.Close)

	mgr := newTestManager(config.DepManager{
		BinsDir:            t.TempDir(),
		YTdlpSHA256SumsURL: server.URL + "/sha",
		YTdlpLinuxAMD64:    server.URL + "/" + filename,
	})

	mgr.checkAndUpdate(t.Context())

	if _, ok := mgr.savedSums[filename]; ok {
		t.Errorf("hash of a failed install was saved: %v", mgr.savedSums)
	}

	if got := mgr.findUpdates(); len(got) != 0 {
		t.Errorf("findUpdates() after failed install = %v, want none until the next fetch", got)
	}
}

func TestStartUpdateChecker_UsesTicker(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		tmpDir := t.TempDir()

		const (
			filename      = "yt-dlp_linux"
			binaryContent = "ticker binary"
		)

		newHash := strings.Repeat("c", sha256HexLength)
		oldHash := strings.Repeat("d", sha256HexLength)

		mgr := newTestManager(config.DepManager{
			BinsDir:            tmpDir,
			UpdateInterval:     time.Second,
			YTdlpSHA256SumsURL: "http://updates.test/sha",
			YTdlpLinuxAMD64:    "http://updates.test/" + filename,
		})
		mgr.savedSums = map[string]string{filename: oldHash}

		respond := func(r *http.Request, code int, body string) *http.Response {
			return &http.Response{StatusCode: code, Body: io.NopCloser(strings.NewReader(body)), Header: make(http.Header), Request: r}
		}

		mgr.client = &http.Client{
			Transport: rtFunc(func(r *http.Request) (*http.Response, error) {
				switch r.URL.Path {
				case "/sha":
					return respond(r, http.StatusOK, fmt.Sprintf("%s  %s\n", newHash, filename)), nil
				case "/" + filename:
					return respond(r, http.StatusOK, binaryContent), nil
				default:
					return respond(r, http.StatusNotFound, "nf"), nil
				}
			}),
		}

		ctx, cancel := context.WithCancel(t.Context())
		defer cancel()

		mgr.StartUpdateChecker(ctx)

		time.Sleep(mgr.cfg.DepManager.UpdateInterval)
		synctest.Wait()

		data, err := os.ReadFile(filepath.Join(tmpDir, "yt-dlp"))
		if err != nil {
			t.Fatalf("expected binary to be downloaded by ticker: %v", err)
		}

		if string(data) != binaryContent {
			t.Fatalf("downloaded binary content mismatch: got %q, want %q", string(data), binaryContent)
		}

		cancel()
		synctest.Wait()

		if got := mgr.savedSums[filename]; got != newHash {
			t.Fatalf("saved checksum mismatch: got %s, want %s", got, newHash)
		}
	})
}
