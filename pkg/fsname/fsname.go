// Package fsname derives filesystem-safe file names from media titles.
package fsname

import (
	"path/filepath"
	"regexp"
	"strings"
)

// MaxStemLength is the maximum number of characters kept before the extension.
const MaxStemLength = 100

var (
	reUnsafe     = regexp.MustCompile(`[<>:"/\\|?*]`)
	reWhitespace = regexp.MustCompile(`\s+`)
)

// Sanitize strips characters that are unsafe on common filesystems, collapses runs of
// whitespace and caps the name at MaxStemLength characters. The extension is preserved.
func Sanitize(name string) string {
	stem, ext := splitExt(name)

	stem = reUnsafe.ReplaceAllString(stem, "")
	stem = strings.TrimSpace(reWhitespace.ReplaceAllString(stem, " "))

	if runes := []rune(stem); len(runes) > MaxStemLength {
		stem = string(runes[:MaxStemLength])
	}

	return stem + ext
}

// splitExt splits the extension off the last path element. A name made only of a
// leading dot and letters (".bashrc") has no extension.
func splitExt(name string) (string, string) {
	ext := filepath.Ext(name)
	if ext == "" || len(ext) == len(filepath.Base(name)) || strings.ContainsAny(ext, `/\`) {
		return name, ""
	}

	return strings.TrimSuffix(name, ext), ext
}
