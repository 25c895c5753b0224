package downloader

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"

	"tubegrab/internal/entity"
	"tubegrab/internal/errs"
)

const defaultVideoHeight = "720"

var (
	videoExts = []string{"mp4", "webm", "mkv"}
	audioExts = []string{"mp3", "m4a"}

	// single-stream parts yt-dlp writes before merging, e.g. "Title.f137.mp4"
	intermediateRe = regexp.MustCompile(`\.f\d+(-[0-9A-Za-z]+)?\.[0-9A-Za-z]+$`)
)

// AudioFormat returns the source stream selector for an audio container.
func AudioFormat(container entity.Container) string {
	if container == entity.ContainerM4A {
		return "bestaudio[ext=m4a]/bestaudio/best"
	}

	return "bestaudio/best"
}

// VideoFormat returns the source stream selector and merge container for a video request.
// Unknown quality tiers fall back to 720p.
func VideoFormat(quality string, container entity.Container) (selector, merge string) {
	if !slices.Contains(entity.VideoQualities, quality) {
		quality = defaultVideoHeight
	}

	base := fmt.Sprintf("best[height<=%s]", quality)

	if container == entity.ContainerWEBM {
		return base + "[ext=webm]/best[ext=webm]/best", string(entity.ContainerWEBM)
	}

	return base + "[ext=mp4]/" + base + "/best", string(entity.ContainerMP4)
}

// findOutput returns the produced file. Paths printed by the tool win; otherwise the
// first regular file in dir, by name, with one of exts that is not an unmerged stream.
func findOutput(dir string, exts, printed []string) (string, error) {
	for _, path := range printed {
		if !hasExt(path, exts) || filepath.Dir(filepath.Clean(path)) != filepath.Clean(dir) {
			continue
		}

		if info, err := os.Stat(path); err == nil && info.Mode().IsRegular() {
			return path, nil
		}
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", errs.New(errs.KindUnknown, "find output", fmt.Errorf("read dir: %w", err))
	}

	for _, entry := range entries {
		if entry.Type().IsRegular() && hasExt(entry.Name(), exts) && !intermediateRe.MatchString(entry.Name()) {
			return filepath.Join(dir, entry.Name()), nil
		}
	}

	return "", errs.New(errs.KindUnknown, "find output", errs.ErrNoOutputFile)
}

func hasExt(name string, exts []string) bool {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))

	return slices.Contains(exts, ext)
}

// clearDir removes everything inside dir and keeps dir itself.
func clearDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read dir: %w", err)
	}

	var errList []error

	for _, entry := range entries {
		if err := os.RemoveAll(filepath.Join(dir, entry.Name())); err != nil {
			errList = append(errList, err)
		}
	}

	return errors.Join(errList...)
}
