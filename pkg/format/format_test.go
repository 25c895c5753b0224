package format

import (
	"strings"
	"testing"
)

func TestBytes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   float64
		want string
	}{
		{0, "0 B"},
		{1, "1.0 B"},
		{1023, "1023.0 B"},
		{1024, "1.0 KB"},
		{1536, "1.5 KB"},
		{1024 * 1024 * 3, "3.0 MB"},
		{1024 * 1024 * 1024 * 2.5, "2.5 GB"},
		{1024 * 1024 * 1024 * 1024 * 2048, "2048.0 TB"},
	}

	for _, tc := range tests {
		if got := Bytes(tc.in); got != tc.want {
			t.Errorf("Bytes(%v) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestDuration(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   int
		want string
	}{
		{0, "N/A"},
		{-5, "N/A"},
		{59, "00:59"},
		{212, "03:32"},
		{3600, "01:00:00"},
		{3725, "01:02:05"},
	}

	for _, tc := range tests {
		if got := Duration(tc.in); got != tc.want {
			t.Errorf("Duration(%d) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestCleanTitle(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", UnknownTitle},
		{"entities", "Rock &amp; Roll &quot;Live&quot; &#39;99", `Rock & Roll "Live" '99`},
		{"short", "Title", "Title"},
		{"long", strings.Repeat("x", 100), strings.Repeat("x", 77) + "..."},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			if got := CleanTitle(tc.in); got != tc.want {
				t.Errorf("CleanTitle(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestTruncate(t *testing.T) {
	t.Parallel()

	if got := Truncate("short", 100); got != "short" {
		t.Errorf("Truncate() = %q", got)
	}

	if got := Truncate(strings.Repeat("d", 101), 100); got != strings.Repeat("d", 100)+"..." {
		t.Errorf("Truncate() = %q", got)
	}
}
