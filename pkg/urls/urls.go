// Package urls provides utility functions for working with URLs.
package urls

import (
	"net/url"
	"regexp"
	"strings"
)

const (
	schemeHTTP  = "http"
	schemeHTTPS = "https"

	watchURLPrefix = "https://www.youtube.com/watch?v="
	playlistParam  = "list"
)

// supported are the accepted video URL shapes. Patterns are anchored at the start only,
// trailing query parameters are allowed.
var supported = []*regexp.Regexp{
	regexp.MustCompile(`^https?://(?:www\.)?youtube\.com/watch\?v=[\w-]+`),
	regexp.MustCompile(`^https?://(?:www\.)?youtube\.com/playlist\?list=[\w-]+`),
	regexp.MustCompile(`^https?://youtu\.be/[\w-]+`),
	regexp.MustCompile(`^https?://(?:www\.)?youtube\.com/embed/[\w-]+`),
	regexp.MustCompile(`^https?://(?:m\.)?youtube\.com/watch\?v=[\w-]+`),
}

// IsSupported reports whether raw matches one of the accepted video URL shapes.
func IsSupported(raw string) bool {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return false
	}

	for _, re := range supported {
		if re.MatchString(raw) {
			return true
		}
	}

	return false
}

// IsURLValid checks if the given URL is valid.
func IsURLValid(raw string) bool {
	u, err := url.Parse(raw)

	return err == nil && u.Scheme != "" && u.Host != "" && (u.Scheme == schemeHTTP || u.Scheme == schemeHTTPS)
}

// Normalize trims spaces, parses and returns the URL in string format.
func Normalize(raw string) string {
	raw = strings.TrimSpace(raw)

	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}

	return u.String()
}

// PlaylistID returns the value of the list query parameter or an empty string.
func PlaylistID(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return ""
	}

	return u.Query().Get(playlistParam)
}

// WatchURL returns the canonical watch page URL for a video id.
func WatchURL(id string) string {
	return watchURLPrefix + id
}
