package depmanager

import (
	"archive/tar"
	"archive/zip"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/ulikunitz/xz"
)

var errNoTargets = errors.New("no target files found in archive")

// fetchAsset downloads rawURL and installs the binaries of src from it, returning their paths.
// Archives are unpacked; anything else is the binary itself.
func (m *Manager) fetchAsset(ctx context.Context, rawURL string, src source) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download: unexpected status %d", resp.StatusCode)
	}

	destDir := m.cfg.DepManager.BinsDir

	tmp, err := os.CreateTemp(destDir, "download-*")
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}

	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	_, err = io.Copy(tmp, resp.Body)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}

	if err != nil {
		return nil, fmt.Errorf("write temp file: %w", err)
	}

	targets := make(map[string]string, len(src.binaries)) // name in archive -> dest path
	for _, binary := range src.binaries {
		targets[string(binary)] = m.GetBinaryPath(binary)
	}

	switch {
	case strings.HasSuffix(rawURL, ".zip"):
		err = extractZip(tmpPath, targets)
	case strings.HasSuffix(rawURL, ".tar.xz"), strings.HasSuffix(rawURL, ".tar.gz"):
		err = extractTar(tmpPath, rawURL, targets)
	default:
		err = os.Rename(tmpPath, m.GetBinaryPath(src.name()))
		targets = map[string]string{string(src.name()): m.GetBinaryPath(src.name())}
	}

	if err != nil {
		return nil, fmt.Errorf("install %s: %w", filepath.Base(rawURL), err)
	}

	paths := make([]string, 0, len(targets))
	for _, dest := range targets {
		paths = append(paths, dest)
	}

	return paths, nil
}

func extractZip(archive string, targets map[string]string) error {
	reader, err := zip.OpenReader(archive)
	if err != nil {
		return fmt.Errorf("open zip: %w", err)
	}
	defer reader.Close()

	found := 0

	for _, file := range reader.File {
		dest, ok := targets[file.FileInfo().Name()]
		if !ok || file.FileInfo().IsDir() {
			continue
		}

		rc, err := file.Open()
		if err != nil {
			return fmt.Errorf("open %s in zip: %w", file.Name, err)
		}

		err = writeExecutable(dest, rc)
		rc.Close()

		if err != nil {
			return err
		}

		if found++; found == len(targets) {
			return nil
		}
	}

	return fmt.Errorf("%w: found %d of %d", errNoTargets, found, len(targets))
}

func extractTar(archive, rawURL string, targets map[string]string) error {
	file, err := os.Open(archive)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	defer file.Close()

	var stream io.Reader

	if strings.HasSuffix(rawURL, ".tar.xz") {
		stream, err = xz.NewReader(file)
		if err != nil {
			return fmt.Errorf("create xz reader: %w", err)
		}
	} else {
		gz, err := gzip.NewReader(file)
		if err != nil {
			return fmt.Errorf("create gzip reader: %w", err)
		}
		defer gz.Close()

		stream = gz
	}

	tr := tar.NewReader(stream)
	found := 0

	for {
		header, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}

		if err != nil {
			return fmt.Errorf("read tar header: %w", err)
		}

		dest, ok := targets[filepath.Base(header.Name)]
		if !ok || header.Typeflag != tar.TypeReg {
			continue
		}

		if err := writeExecutable(dest, tr); err != nil {
			return err
		}

		if found++; found == len(targets) {
			return nil
		}
	}

	return fmt.Errorf("%w: found %d of %d", errNoTargets, found, len(targets))
}

func writeExecutable(dest string, r io.Reader) error {
	out, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, filePermExecutable)
	if err != nil {
		return fmt.Errorf("create %s: %w", filepath.Base(dest), err)
	}

	_, err = io.Copy(out, r)
	if closeErr := out.Close(); err == nil {
		err = closeErr
	}

	if err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(dest), err)
	}

	return nil
}
