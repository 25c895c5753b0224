// Package config handles application configuration loading and management.
package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds the application configuration.
type Config struct {
	HTTP       HTTP
	App        App
	Job        Job
	Dir        Dir
	Storage    Storage
	Download   Download
	Search     Search
	DepManager DepManager
	Proxy      Proxy
}

// App holds application-wide configuration.
type App struct {
	LogLevel  string `env:"TUBEGRAB_APP_LOG_LEVEL"  envDefault:"info"`
	LogFormat string `env:"TUBEGRAB_APP_LOG_FORMAT" envDefault:"json"` // json or text
	// Extractor selects the extraction backend: ytdlp or simulated.
	Extractor    string        `env:"TUBEGRAB_APP_EXTRACTOR"     envDefault:"ytdlp"`
	SimulateTime time.Duration `env:"TUBEGRAB_APP_SIMULATE_TIME" envDefault:"1s"`
}

// Job holds job processing configuration.
// A single worker keeps requests strictly sequential.
type Job struct {
	Workers   int           `env:"TUBEGRAB_APP_JOB_WORKERS"    envDefault:"1"`
	Timeout   time.Duration `env:"TUBEGRAB_APP_JOB_TIMEOUT"    envDefault:"30m"`
	QueueSize int           `env:"TUBEGRAB_APP_JOB_QUEUE_SIZE" envDefault:"16"`
}

// Storage holds storage configuration.
type Storage struct {
	TTL             time.Duration `env:"TUBEGRAB_APP_STORAGE_TTL"              envDefault:"1h"`
	CleanupInterval time.Duration `env:"TUBEGRAB_APP_STORAGE_CLEANUP_INTERVAL" envDefault:"10m"`
}

// HTTP holds HTTP server configuration.
type HTTP struct {
	Port            string        `env:"TUBEGRAB_HTTP_PORT"             envDefault:":8080"`
	HandlerTimeout  time.Duration `env:"TUBEGRAB_HTTP_HANDLER_TIMEOUT"  envDefault:"60s"`
	ShutdownTimeout time.Duration `env:"TUBEGRAB_HTTP_SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

// Dir holds directory paths for downloads, cache, and cookie file.
type Dir struct {
	Downloads string `env:"TUBEGRAB_DIR_DOWNLOAD" envDefault:"./data/downloads"` // per-request work dirs are created here
	Cache     string `env:"TUBEGRAB_DIR_CACHE"    envDefault:"./data/cache"`     // yt-dlp cache (meta, sigs)

	// must contain cookies.txt file
	// see: https://github.com/yt-dlp/yt-dlp/wiki/FAQ#how-do-i-pass-cookies-to-yt-dlp
	CookieFile string `env:"TUBEGRAB_DIR_COOKIE_FILE" envDefault:""`

	// see: https://github.com/yt-dlp/yt-dlp/blob/2025.09.05/README.md#output-template
	FilenameTemplate string `env:"TUBEGRAB_DIR_FILENAME_TEMPLATE" envDefault:"%(title)s.%(ext)s"`
}

// SetAbsPaths converts all directory paths to absolute paths.
func (c *Dir) SetAbsPaths() error {
	var err error
	if c.Downloads, err = filepath.Abs(c.Downloads); err != nil {
		return fmt.Errorf("downloads: %w", err)
	}

	if c.Cache, err = filepath.Abs(c.Cache); err != nil {
		return fmt.Errorf("cache: %w", err)
	}

	if c.CookieFile != "" {
		if c.CookieFile, err = filepath.Abs(c.CookieFile); err != nil {
			return fmt.Errorf("cookie file: %w", err)
		}
	}

	return nil
}

// Download holds extraction and strategy configuration.
type Download struct {
	Retries         int `env:"TUBEGRAB_DOWNLOAD_RETRIES"          envDefault:"3"`
	FragmentRetries int `env:"TUBEGRAB_DOWNLOAD_FRAGMENT_RETRIES" envDefault:"3"`

	// BackoffMin and BackoffMax bound the randomized wait after a bot challenge.
	BackoffMin time.Duration `env:"TUBEGRAB_DOWNLOAD_BACKOFF_MIN" envDefault:"2s"`
	BackoffMax time.Duration `env:"TUBEGRAB_DOWNLOAD_BACKOFF_MAX" envDefault:"5s"`

	// see: https://github.com/yt-dlp/yt-dlp/wiki/Extractors#youtube
	ExtractorArgs string `env:"TUBEGRAB_DOWNLOAD_EXTRACTOR_ARGS" envDefault:"youtube:skip=dash,hls;player_skip=configs,webpage"`

	MobileUserAgent  string `env:"TUBEGRAB_DOWNLOAD_MOBILE_USER_AGENT"  envDefault:"Mozilla/5.0 (Linux; Android 8.0.0; Pixel 2 XL Build/OPD1.171019.011) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Mobile Safari/537.36"` //nolint:lll
	DesktopUserAgent string `env:"TUBEGRAB_DOWNLOAD_DESKTOP_USER_AGENT" envDefault:"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"`                             //nolint:lll
	SourceAddress    string `env:"TUBEGRAB_DOWNLOAD_SOURCE_ADDRESS"     envDefault:"0.0.0.0"`

	DefaultVideoQuality string `env:"TUBEGRAB_DOWNLOAD_DEFAULT_VIDEO_QUALITY" envDefault:"720"`
	DefaultAudioQuality string `env:"TUBEGRAB_DOWNLOAD_DEFAULT_AUDIO_QUALITY" envDefault:"192"`
}

// Search holds search API configuration.
type Search struct {
	// APIKey has no default on purpose: search stays disabled until it is set.
	APIKey     string        `env:"TUBEGRAB_SEARCH_API_KEY"     envDefault:""`
	MaxResults int           `env:"TUBEGRAB_SEARCH_MAX_RESULTS" envDefault:"10"`
	RateLimit  float64       `env:"TUBEGRAB_SEARCH_RATE_LIMIT"  envDefault:"2"` // requests per second
	RateBurst  int           `env:"TUBEGRAB_SEARCH_RATE_BURST"  envDefault:"4"`
	Timeout    time.Duration `env:"TUBEGRAB_SEARCH_TIMEOUT"     envDefault:"10s"`
	Endpoint   string        `env:"TUBEGRAB_SEARCH_ENDPOINT"    envDefault:""` // overrides the API base URL
}

// Enabled reports whether a search API key is configured.
func (s Search) Enabled() bool {
	return strings.TrimSpace(s.APIKey) != ""
}

// New loads configuration from environment variables.
func New() (*Config, error) {
	cfg := &Config{}

	err := env.Parse(cfg)
	if err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	err = cfg.Dir.SetAbsPaths()
	if err != nil {
		return nil, fmt.Errorf("set absolute paths: %w", err)
	}

	err = cfg.DepManager.SetAbsPaths()
	if err != nil {
		return nil, fmt.Errorf("set dep manager absolute paths: %w", err)
	}

	if cfg.Download.BackoffMax < cfg.Download.BackoffMin {
		return nil, fmt.Errorf("download backoff max %s is below min %s",
			cfg.Download.BackoffMax, cfg.Download.BackoffMin)
	}

	cfg.Proxy.parseList()

	return cfg, nil
}

// DepManager holds binary dependency management configuration.
type DepManager struct {
	// BinsDir is the directory where binaries are stored
	BinsDir string `env:"TUBEGRAB_DEPMANAGER_BINS_DIR" envDefault:"./bins"`
	// UseSystemBinaries indicates whether to use system-installed binaries or download them.
	UseSystemBinaries bool `env:"TUBEGRAB_DEPMANAGER_USE_SYSTEM_BINARIES" envDefault:"false"`
	// UpdateInterval is how often to check for binary updates
	UpdateInterval time.Duration `env:"TUBEGRAB_DEPMANAGER_UPDATE_INTERVAL" envDefault:"24h"`

	// ffmpeg binary URLs per platform.
	FFmpegSHA256SumsURL string `env:"TUBEGRAB_DEPMANAGER_FFMPEG_SHA256SUMS_URL" envDefault:"https://github.com/BtbN/FFmpeg-Builds/releases/latest/download/checksums.sha256"`                        //nolint:lll
	FFmpegLinuxARM64    string `env:"TUBEGRAB_DEPMANAGER_FFMPEG_LINUX_ARM64" envDefault:"https://github.com/BtbN/FFmpeg-Builds/releases/latest/download/ffmpeg-master-latest-linuxarm64-gpl.tar.xz"` //nolint:lll
	FFmpegLinuxAMD64    string `env:"TUBEGRAB_DEPMANAGER_FFMPEG_LINUX_AMD64" envDefault:"https://github.com/BtbN/FFmpeg-Builds/releases/latest/download/ffmpeg-master-latest-linux64-gpl.tar.xz"`    //nolint:lll

	// yt-dlp binary URLs per platform.
	YTdlpSHA256SumsURL string `env:"TUBEGRAB_DEPMANAGER_YTDLP_SHA256SUMS_URL" envDefault:"https://github.com/yt-dlp/yt-dlp/releases/latest/download/SHA2-256SUMS"`      //nolint:lll
	YTdlpLinuxARM64    string `env:"TUBEGRAB_DEPMANAGER_YTDLP_LINUX_ARM64" envDefault:"https://github.com/yt-dlp/yt-dlp/releases/latest/download/yt-dlp_linux_aarch64"` //nolint:lll
	YTdlpLinuxAMD64    string `env:"TUBEGRAB_DEPMANAGER_YTDLP_LINUX_AMD64" envDefault:"https://github.com/yt-dlp/yt-dlp/releases/latest/download/yt-dlp_linux"`         //nolint:lll

	// deno runs the player JS challenges for yt-dlp.
	DenoSHA256SumsURL string `env:"TUBEGRAB_DEPMANAGER_DENO_SHA256SUMS_URL" envDefault:"https://github.com/denoland/deno/releases/latest/download/deno-aarch64-unknown-linux-gnu.zip.sha256sum,https://github.com/denoland/deno/releases/latest/download/deno-x86_64-unknown-linux-gnu.zip.sha256sum"` //nolint:lll
	DenoLinuxARM64    string `env:"TUBEGRAB_DEPMANAGER_DENO_LINUX_ARM64" envDefault:"https://github.com/denoland/deno/releases/latest/download/deno-aarch64-unknown-linux-gnu.zip"`                                                                                                                    //nolint:lll
	DenoLinuxAMD64    string `env:"TUBEGRAB_DEPMANAGER_DENO_LINUX_AMD64" envDefault:"https://github.com/denoland/deno/releases/latest/download/deno-x86_64-unknown-linux-gnu.zip"`                                                                                                                     //nolint:lll
}

// SetAbsPaths converts the BinsDir path to an absolute path.
func (d *DepManager) SetAbsPaths() error {
	var err error
	if d.BinsDir, err = filepath.Abs(d.BinsDir); err != nil {
		return fmt.Errorf("bins dir: %w", err)
	}

	return nil
}

// Proxy holds proxy configuration for download requests.
type Proxy struct {
	// List is a comma-separated list of proxy URLs in socks5h format
	List string `env:"TUBEGRAB_PROXY_LIST" envDefault:""`
	// HealthCheckInterval is how often to check proxy health
	HealthCheckInterval time.Duration `env:"TUBEGRAB_PROXY_HEALTH_CHECK_INTERVAL" envDefault:"5m"`
	// FailureBackoff is the initial backoff duration for failed proxies
	FailureBackoff time.Duration `env:"TUBEGRAB_PROXY_FAILURE_BACKOFF" envDefault:"1m"`
	// MaxFailures is the maximum number of failures before a proxy is temporarily removed
	MaxFailures int `env:"TUBEGRAB_PROXY_MAX_FAILURES" envDefault:"3"`

	// Proxies is the parsed list of proxy URLs
	Proxies []string `env:"-"`
}

// parseList parses the comma-separated proxy list.
func (p *Proxy) parseList() {
	if p.List == "" {
		return
	}

	for proxy := range strings.SplitSeq(p.List, ",") {
		proxy = strings.TrimSpace(proxy)
		if proxy != "" {
			p.Proxies = append(p.Proxies, proxy)
		}
	}
}
