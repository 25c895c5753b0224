// Package format renders byte counts, durations and titles for humans.
package format

import (
	"fmt"
	"html"
	"strings"
)

const (
	unitStep = 1024

	maxTitleLength = 80
	titleEllipsis  = "..."

	// UnknownTitle is returned for empty titles.
	UnknownTitle = "Unknown Title"
	// UnknownDuration is returned for zero or unknown durations.
	UnknownDuration = "N/A"
)

var byteUnits = []string{"B", "KB", "MB", "GB", "TB"}

// Bytes formats a byte count with binary steps and one decimal, e.g. 1536 => "1.5 KB".
func Bytes(n float64) string {
	if n == 0 {
		return "0 B"
	}

	i := 0
	for n >= unitStep && i < len(byteUnits)-1 {
		n /= unitStep
		i++
	}

	return fmt.Sprintf("%.1f %s", n, byteUnits[i])
}

// Duration formats seconds as MM:SS, or HH:MM:SS when at least an hour long.
func Duration(seconds int) string {
	if seconds <= 0 {
		return UnknownDuration
	}

	hours := seconds / 3600
	minutes := (seconds % 3600) / 60
	secs := seconds % 60

	if hours > 0 {
		return fmt.Sprintf("%02d:%02d:%02d", hours, minutes, secs)
	}

	return fmt.Sprintf("%02d:%02d", minutes, secs)
}

// CleanTitle decodes HTML entities and shortens long titles for display.
func CleanTitle(title string) string {
	title = strings.TrimSpace(html.UnescapeString(title))
	if title == "" {
		return UnknownTitle
	}

	if runes := []rune(title); len(runes) > maxTitleLength {
		return string(runes[:maxTitleLength-len(titleEllipsis)]) + titleEllipsis
	}

	return title
}

// Truncate cuts s to limit characters and appends an ellipsis when it was longer.
func Truncate(s string, limit int) string {
	if runes := []rune(s); len(runes) > limit {
		return string(runes[:limit]) + titleEllipsis
	}

	return s
}
