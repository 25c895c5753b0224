// Package entity defines the core entities used in the application.
package entity

import (
	"log/slog"
	"slices"
	"time"

	"tubegrab/internal/errs"
	"tubegrab/pkg/urls"
)

// MediaKind is the kind of media a request asks for.
type MediaKind string

const (
	// KindAudio requests an audio-only file.
	KindAudio MediaKind = "audio"
	// KindVideo requests a video file.
	KindVideo MediaKind = "video"
)

// Container is the requested output container.
type Container string

// Supported containers.
const (
	ContainerMP3  Container = "mp3"
	ContainerM4A  Container = "m4a"
	ContainerMP4  Container = "mp4"
	ContainerWEBM Container = "webm"
)

var (
	// AudioQualities are the accepted audio bitrates in kbps.
	AudioQualities = []string{"128", "192", "256", "320"}
	// VideoQualities are the accepted maximum heights in pixels.
	VideoQualities = []string{"360", "480", "720", "1080", "1440", "2160"}

	audioContainers = []Container{ContainerMP3, ContainerM4A}
	videoContainers = []Container{ContainerMP4, ContainerWEBM}
)

// Containers returns the containers valid for the kind.
func (k MediaKind) Containers() []Container {
	switch k {
	case KindAudio:
		return audioContainers
	case KindVideo:
		return videoContainers
	default:
		return nil
	}
}

// Qualities returns the quality tiers valid for the kind.
func (k MediaKind) Qualities() []string {
	switch k {
	case KindAudio:
		return AudioQualities
	case KindVideo:
		return VideoQualities
	default:
		return nil
	}
}

// MediaRequest is a single download request. It must not change once a download starts.
type MediaRequest struct {
	URL       string    `json:"url"`
	Playlist  bool      `json:"playlist"`
	Kind      MediaKind `json:"kind"`
	Container Container `json:"container"`
	Quality   string    `json:"quality"`
}

// WithDefaults returns a copy of r with an empty quality replaced by the default for its kind.
func (r MediaRequest) WithDefaults(videoQuality, audioQuality string) MediaRequest {
	r.URL = urls.Normalize(r.URL)

	if r.Quality != "" {
		return r
	}

	switch r.Kind {
	case KindAudio:
		r.Quality = audioQuality
	case KindVideo:
		r.Quality = videoQuality
	}

	return r
}

// Validate checks the URL shape and kind, container and quality consistency.
func (r MediaRequest) Validate() error {
	if !urls.IsSupported(r.URL) {
		return errs.ErrInvalidURL
	}

	containers := r.Kind.Containers()
	if containers == nil {
		return errs.ErrInvalidKind
	}

	if !slices.Contains(containers, r.Container) {
		return errs.ErrInvalidContainer
	}

	if !slices.Contains(r.Kind.Qualities(), r.Quality) {
		return errs.ErrInvalidQuality
	}

	return nil
}

// LogValue implements the slog.LogValuer interface for structured logging.
func (r MediaRequest) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("url", r.URL),
		slog.Bool("playlist", r.Playlist),
		slog.String("kind", string(r.Kind)),
		slog.String("container", string(r.Container)),
		slog.String("quality", r.Quality),
	)
}

// VideoMetadata is a read-only snapshot of a video or playlist taken before downloading.
type VideoMetadata struct {
	Title          string `json:"title"`
	Uploader       string `json:"uploader"`
	ViewCount      int64  `json:"viewCount"`
	DurationString string `json:"durationString"`
	ThumbnailURL   string `json:"thumbnailUrl,omitempty"`
	PlaylistCount  *int   `json:"playlistCount"`
	IsPlaylist     bool   `json:"isPlaylist"`
}

// LogValue implements the slog.LogValuer interface for structured logging.
func (m VideoMetadata) LogValue() slog.Value {
	count := 0
	if m.PlaylistCount != nil {
		count = *m.PlaylistCount
	}

	return slog.GroupValue(
		slog.String("title", m.Title),
		slog.String("uploader", m.Uploader),
		slog.Int64("view_count", m.ViewCount),
		slog.String("duration", m.DurationString),
		slog.Bool("is_playlist", m.IsPlaylist),
		slog.Int("playlist_count", count),
	)
}

// DownloadOutcome is the terminal result of a MediaRequest.
type DownloadOutcome struct {
	FilePath  string    `json:"-"`
	Filename  string    `json:"filename,omitempty"`
	Strategy  string    `json:"strategy,omitempty"`
	Attempts  int       `json:"attempts"`
	Error     string    `json:"error,omitempty"`
	ErrorKind errs.Kind `json:"errorKind,omitempty"`
}

// Succeeded reports whether the outcome carries a file.
func (o DownloadOutcome) Succeeded() bool {
	return o.FilePath != ""
}

// LogValue implements the slog.LogValuer interface for structured logging.
func (o DownloadOutcome) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("file_path", o.FilePath),
		slog.String("strategy", o.Strategy),
		slog.Int("attempts", o.Attempts),
		slog.String("error", o.Error),
		slog.String("error_kind", string(o.ErrorKind)),
	)
}

// ProgressState is the progress of the in-flight download of one request.
type ProgressState struct {
	Percent  int    `json:"percent"`
	Status   string `json:"status"`
	Complete bool   `json:"complete"`
	FilePath string `json:"-"`
}

// JobStatus represents the status of a download job.
type JobStatus string

const (
	// JobStatusStarting indicates that the job is accepted and is about to start.
	JobStatusStarting JobStatus = "starting"
	// JobStatusDownloading indicates that the job is in progress.
	JobStatusDownloading JobStatus = "downloading"
	// JobStatusError indicates that the job has encountered an error.
	JobStatusError JobStatus = "error"
	// JobStatusFinished indicates that the job has finished successfully.
	JobStatusFinished JobStatus = "finished"
)

// Job represents a queued MediaRequest and everything known about it.
type Job struct {
	ID        string           `json:"id"`
	Request   MediaRequest     `json:"request"`
	Status    JobStatus        `json:"status"`
	Progress  ProgressState    `json:"progress"`
	Outcome   *DownloadOutcome `json:"outcome,omitempty"`
	Error     string           `json:"error,omitempty"`
	ErrorKind errs.Kind        `json:"errorKind,omitempty"`
	WorkDir   string           `json:"-"`
	RunID     string           `json:"-"`
	CreatedAt time.Time        `json:"createdAt"`
	UpdatedAt time.Time        `json:"updatedAt"`
	ExpiresAt time.Time        `json:"expiresAt"`
}

// LogValue implements the slog.LogValuer interface for structured logging.
func (j Job) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("id", j.ID),
		slog.Any("request", j.Request),
		slog.String("status", string(j.Status)),
		slog.Int("progress", j.Progress.Percent),
		slog.String("error", j.Error),
	)
}

// SearchResult is one video returned by the search API.
type SearchResult struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	Channel      string `json:"channel"`
	ThumbnailURL string `json:"thumbnailUrl"`
	Description  string `json:"description"`
	URL          string `json:"url"`
	Published    string `json:"published"`
}

// PlaylistEntry is one video of a playlist.
type PlaylistEntry struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	URL   string `json:"url"`
}
