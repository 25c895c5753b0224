// Package depmanager installs and refreshes the external tools downloads depend on:
// yt-dlp, ffmpeg with ffprobe, and deno for player challenges.
// Checksums are only used to notice new releases, not to verify downloads.
package depmanager

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"tubegrab/internal/config"
	"tubegrab/internal/errs"
	"tubegrab/internal/extractor"
)

// BinaryName represents the name of a binary dependency.
type BinaryName string

// Binary dependency names.
const (
	BinaryYTdlp   BinaryName = "yt-dlp"
	BinaryFFmpeg  BinaryName = "ffmpeg"
	BinaryFFprobe BinaryName = "ffprobe"
	BinaryDeno    BinaryName = "deno"
)

const (
	platformLinux   = "linux"
	platformWindows = "windows"
	archARM64       = "arm64"
	archAMD64       = "amd64"

	downloadTimeout    = 10 * time.Minute
	filePermExecutable = 0o755
	filePermReadWrite  = 0o644
)

// Platform represents the OS and architecture combination.
type Platform struct {
	OS   string
	Arch string
}

func (p Platform) String() string {
	return p.OS + "/" + p.Arch
}

// Manager manages binary dependencies.
type Manager struct {
	log      *slog.Logger
	cfg      *config.Config
	platform Platform
	client   *http.Client

	mu        sync.RWMutex
	shaSums   map[string]string     // asset -> sha256 (fetched from remote)
	savedSums map[string]string     // asset -> sha256 (saved by a previous run)
	binPaths  map[BinaryName]string // binary -> installed path

	updating atomic.Bool
}

// New creates a new dependency manager.
func New(log *slog.Logger, cfg *config.Config) *Manager {
	return &Manager{
		log:       log.With(slog.String("package", "depmanager")),
		cfg:       cfg,
		platform:  Platform{OS: runtime.GOOS, Arch: runtime.GOARCH},
		client:    &http.Client{Timeout: downloadTimeout},
		shaSums:   make(map[string]string),
		savedSums: make(map[string]string),
		binPaths:  make(map[BinaryName]string),
	}
}

// Start resolves every binary, either from PATH or by installing it into the bins dir.
// Installed binaries are refreshed in the background until ctx is done.
func (m *Manager) Start(ctx context.Context) error {
	if m.cfg.DepManager.UseSystemBinaries {
		return m.SetSystemBinaries(ctx)
	}

	if err := m.InstallAll(ctx); err != nil {
		return err
	}

	m.StartUpdateChecker(ctx)

	return nil
}

// SetSystemBinaries looks the binaries up in PATH. deno is optional.
func (m *Manager) SetSystemBinaries(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, binary := range []BinaryName{BinaryYTdlp, BinaryFFmpeg, BinaryFFprobe, BinaryDeno} {
		path, err := exec.LookPath(string(binary))
		if err != nil {
			if binary == BinaryDeno {
				m.log.WarnContext(ctx, "deno not found in PATH, player challenges may fail")

				continue
			}

			return fmt.Errorf("%s: %w: %w", binary, errs.ErrBinaryNotFound, err)
		}

		m.binPaths[binary] = path
	}

	m.log.InfoContext(ctx, "using system binaries", slog.Any("binaries", m.binPaths))

	return nil
}

// InstallAll downloads the binaries that are missing from the bins dir.
func (m *Manager) InstallAll(ctx context.Context) error {
	log := m.log

	if err := os.MkdirAll(m.cfg.DepManager.BinsDir, filePermExecutable); err != nil {
		return fmt.Errorf("create bins directory: %w", err)
	}

	if err := m.loadSavedSums(); err != nil {
		log.DebugContext(ctx, "no saved checksums found, first run", slog.Any("error", err))
	}

	for _, src := range sources(m.cfg.DepManager) {
		if m.isInstalled(src) {
			m.setInstalled(src.binaries...)
			log.DebugContext(ctx, "binary already exists", slog.String("binary", string(src.name())))

			continue
		}

		if err := m.install(ctx, src); err != nil {
			return fmt.Errorf("install %s: %w", src.name(), err)
		}
	}

	log.InfoContext(ctx, "all binaries are installed", slog.Any("binaries", m.installedPaths()))

	if err := m.FetchSHASums(ctx); err != nil {
		log.WarnContext(ctx, "failed to fetch checksums", slog.Any("error", err))

		return nil
	}

	if err := m.saveSums(); err != nil {
		log.WarnContext(ctx, "failed to save checksums", slog.Any("error", err))
	}

	return nil
}

// GetBinaryPath returns where name lives inside the bins dir.
func (m *Manager) GetBinaryPath(name BinaryName) string {
	filename := string(name)
	if m.platform.OS == platformWindows {
		filename += ".exe"
	}

	return filepath.Join(m.cfg.DepManager.BinsDir, filename)
}

// GetInstalledPath returns the resolved path of name, or an empty string.
func (m *Manager) GetInstalledPath(name BinaryName) string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.binPaths[name]
}

// Binaries returns the paths the extractor runs with.
func (m *Manager) Binaries() extractor.Binaries {
	return extractor.Binaries{
		YTdlp:  m.GetInstalledPath(BinaryYTdlp),
		FFmpeg: m.GetInstalledPath(BinaryFFmpeg),
	}
}

func (m *Manager) installedPaths() map[BinaryName]string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return maps.Clone(m.binPaths)
}

// isInstalled reports whether every binary of src exists with a non-zero size.
func (m *Manager) isInstalled(src source) bool {
	for _, binary := range src.binaries {
		info, err := os.Stat(m.GetBinaryPath(binary))
		if err != nil || info.Size() == 0 {
			return false
		}
	}

	return true
}

func (m *Manager) setInstalled(binaries ...BinaryName) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, binary := range binaries {
		m.binPaths[binary] = m.GetBinaryPath(binary)
	}
}

// install downloads src and places its binaries into the bins dir.
func (m *Manager) install(ctx context.Context, src source) error {
	log := m.log.With(slog.String("binary", string(src.name())))

	rawURL, err := src.url(m.platform)
	if err != nil {
		return fmt.Errorf("%s on %s: %w", src.name(), m.platform, err)
	}

	log.InfoContext(ctx, "downloading binary", slog.String("url", rawURL))

	paths, err := m.fetchAsset(ctx, rawURL, src)
	if err != nil {
		return err
	}

	for _, path := range paths {
		if err := os.Chmod(path, filePermExecutable); err != nil {
			return fmt.Errorf("chmod: %w", err)
		}
	}

	m.setInstalled(src.binaries...)

	log.InfoContext(ctx, "binary installed", slog.Any("paths", paths))

	return nil
}

// sourceOf returns the source providing name.
func (m *Manager) sourceOf(name BinaryName) (source, error) {
	for _, src := range sources(m.cfg.DepManager) {
		if src.name() == name {
			return src, nil
		}
	}

	return source{}, errors.New("unknown binary " + string(name))
}
