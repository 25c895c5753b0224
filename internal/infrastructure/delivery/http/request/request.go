// Package request holds the decoded bodies of API requests.
package request

import (
	"tubegrab/internal/entity"
	"tubegrab/internal/errs"
	"tubegrab/pkg/urls"
)

// Enqueue is the body of a download request. Kind, container and quality checks
// happen in the service once defaults are applied.
type Enqueue struct {
	URL       string `json:"url"`
	Playlist  bool   `json:"playlist"`
	Kind      string `json:"kind"`      // "audio" or "video"
	Container string `json:"container"` // mp3, m4a, mp4, webm
	Quality   string `json:"quality"`   // kbps for audio, height for video; empty means the default
}

// Validate checks the URL shape.
func (e *Enqueue) Validate() error {
	if !urls.IsSupported(e.URL) {
		return errs.ErrInvalidURL
	}

	return nil
}

// MediaRequest converts the body into the service request.
func (e *Enqueue) MediaRequest() entity.MediaRequest {
	return entity.MediaRequest{
		URL:       e.URL,
		Playlist:  e.Playlist,
		Kind:      entity.MediaKind(e.Kind),
		Container: entity.Container(e.Container),
		Quality:   e.Quality,
	}
}

// Info is the body of a metadata query.
type Info struct {
	URL string `json:"url"`
}

// Validate checks that the URL is an absolute http(s) URL. Platform support is checked by the fetcher.
func (i *Info) Validate() error {
	if !urls.IsURLValid(i.URL) {
		return errs.ErrInvalidURL
	}

	return nil
}
