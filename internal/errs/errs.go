// Package errs defines common error variables used across the application.
package errs

import (
	"errors"
	"fmt"
)

var (
	// ErrServiceClosed indicates that the service is closed and cannot accept new jobs.
	ErrServiceClosed = errors.New("service is closed")
	// ErrInvalidRequestBody indicates that the request body is invalid or cannot be parsed.
	ErrInvalidRequestBody = errors.New("invalid request body")
)

// Valid request errors.
var (
	// ErrInvalidURL indicates that the URL does not match any accepted video URL shape.
	ErrInvalidURL = errors.New("invalid url field")
	// ErrInvalidKind indicates that the media kind is neither audio nor video.
	ErrInvalidKind = errors.New("invalid kind field")
	// ErrInvalidContainer indicates that the container does not belong to the media kind.
	ErrInvalidContainer = errors.New("invalid container field")
	// ErrInvalidQuality indicates that the quality tier is not supported for the media kind.
	ErrInvalidQuality = errors.New("invalid quality field")
	// ErrEmptyQuery indicates that the search query is empty.
	ErrEmptyQuery = errors.New("empty search query")
	// ErrInvalidPlaylist indicates that the URL carries no playlist id.
	ErrInvalidPlaylist = errors.New("url has no playlist id")
)

// Job and storage errors.
var (
	// ErrNoJobs indicates that there are no jobs in storage.
	ErrNoJobs = errors.New("no jobs")
	// ErrJobAlreadyExists indicates that the job already exists in storage with the same request.
	ErrJobAlreadyExists = errors.New("job already exists")
	// ErrJobNotFound indicates that the job is not found in storage.
	ErrJobNotFound = errors.New("job not found")
	// ErrJobNil indicates that the job is nil.
	ErrJobNil = errors.New("job is nil")
	// ErrStaleRun indicates that the job was deleted and enqueued again since the run started.
	ErrStaleRun = errors.New("job belongs to another run")
	// ErrJobNotFinished indicates that the job has no file to serve yet.
	ErrJobNotFinished = errors.New("job not finished")
	// ErrJobQueueFull indicates that the job queue is full.
	ErrJobQueueFull = errors.New("job queue is full")
)

// Downloader errors.
var (
	// ErrDownloadFailed indicates that the download failed.
	ErrDownloadFailed = errors.New("download failed")
	// ErrNoOutputFile indicates that the tool succeeded but no file with an expected extension was produced.
	ErrNoOutputFile = errors.New("no output file produced")
	// ErrNoStrategies indicates that the downloader has no strategy to try.
	ErrNoStrategies = errors.New("no download strategies configured")
	// ErrBinaryNotFound indicates that the required binary was not found.
	ErrBinaryNotFound = errors.New("binary not found")
	// ErrUnsupportedPlatform indicates that the current platform is not supported.
	ErrUnsupportedPlatform = errors.New("unsupported platform")
)

// Metadata and search errors.
var (
	// ErrNoMetadata indicates that the extractor returned nothing usable.
	ErrNoMetadata = errors.New("no metadata")
	// ErrSearchDisabled indicates that no search API key is configured.
	ErrSearchDisabled = errors.New("search is disabled: no api key configured")
)

// Proxy errors.
var (
	// ErrNoProxiesAvailable indicates that no proxies are available.
	ErrNoProxiesAvailable = errors.New("no proxies available")
)

// Kind discriminates failure causes so callers don't have to match on message text.
type Kind string

const (
	// KindInvalidInput is a request that fails validation; never retried.
	KindInvalidInput Kind = "invalid_input"
	// KindAccessDenied covers private, removed, age or membership restricted media.
	KindAccessDenied Kind = "access_denied"
	// KindBotChallenge is the platform's anti-automation check.
	KindBotChallenge Kind = "bot_challenge"
	// KindNetwork covers DNS, connection and upstream availability failures.
	KindNetwork Kind = "network"
	// KindUnknown is everything else.
	KindUnknown Kind = "unknown"
)

// Error is an error carrying a Kind.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

// New wraps err with a kind and the operation that failed.
func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func (e *Error) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}

	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the kind of the first *Error in err's chain, or KindUnknown.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}

	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}

	return KindUnknown
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
