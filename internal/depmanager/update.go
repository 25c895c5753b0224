package depmanager

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	sha256HexLength = 64
	// savedSumsFilename keeps the checksums of the installed assets between runs.
	savedSumsFilename = ".sha256sums.json"
)

var errNoSumsURLs = errors.New("no SHA256 sums URLs configured")

// StartUpdateChecker periodically compares remote checksums with the saved ones and
// reinstalls the binaries whose release changed.
func (m *Manager) StartUpdateChecker(ctx context.Context) {
	interval := m.cfg.DepManager.UpdateInterval
	if interval <= 0 {
		return
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.checkAndUpdate(ctx)
			}
		}
	}()

	m.log.InfoContext(ctx, "update checker started", slog.Duration("interval", interval))
}

// CollectSHASumsURLs returns every configured checksum file URL.
func (m *Manager) CollectSHASumsURLs() ([]string, error) {
	var sumsURLs []string

	for _, src := range sources(m.cfg.DepManager) {
		sumsURLs = append(sumsURLs, splitURLs(src.sumsURLs)...)
	}

	if len(sumsURLs) == 0 {
		return nil, errNoSumsURLs
	}

	return sumsURLs, nil
}

// FetchSHASums downloads and parses every checksum file.
func (m *Manager) FetchSHASums(ctx context.Context) error {
	sumsURLs, err := m.CollectSHASumsURLs()
	if err != nil {
		return err
	}

	for _, sumsURL := range sumsURLs {
		body, err := m.get(ctx, sumsURL)
		if err != nil {
			return fmt.Errorf("fetch SHA sums: %w", err)
		}

		m.ParseSHASums(string(body))
	}

	return nil
}

func (m *Manager) get(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	return body, nil
}

// ParseSHASums reads "hash  filename" lines. Malformed lines are skipped.
// Binary mode markers ("*filename") are stripped.
func (m *Manager) ParseSHASums(content string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for line := range strings.SplitSeq(content, "\n") {
		fields := strings.Fields(line)
		if len(fields) != 2 || len(fields[0]) != sha256HexLength {
			continue
		}

		m.shaSums[strings.TrimPrefix(fields[1], "*")] = strings.ToLower(fields[0])
	}

	m.log.Debug("parsed SHA256 sums", slog.Int("count", len(m.shaSums)))
}

// checkAndUpdate reinstalls the binaries whose checksum changed. Concurrent calls are dropped.
func (m *Manager) checkAndUpdate(ctx context.Context) {
	if !m.updating.CompareAndSwap(false, true) {
		return
	}
	defer m.updating.Store(false)

	log := m.log.With(slog.String("action", "update_check"))

	if err := m.FetchSHASums(ctx); err != nil {
		log.WarnContext(ctx, "failed to fetch checksums", slog.Any("error", err))

		return
	}

	updates := m.findUpdates()
	if len(updates) == 0 {
		log.DebugContext(ctx, "no updates available")

		return
	}

	log.InfoContext(ctx, "updates available", slog.Any("binaries", updates))

	for _, name := range updates {
		src, err := m.sourceOf(name)
		if err == nil {
			err = m.install(ctx, src)
		}

		if err != nil {
			log.ErrorContext(ctx, "failed to update binary", slog.String("binary", string(name)), slog.Any("error", err))

			// forget the new hash so the next check retries
			m.mu.Lock()
			delete(m.shaSums, src.asset(m.platform))
			m.mu.Unlock()

			continue
		}

		log.InfoContext(ctx, "binary updated", slog.String("binary", string(name)))
	}

	if err := m.saveSums(); err != nil {
		log.WarnContext(ctx, "failed to save checksums", slog.Any("error", err))
	}
}

// findUpdates returns the binaries whose asset checksum is new or differs from the saved one.
func (m *Manager) findUpdates() []BinaryName {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var updates []BinaryName

	for _, src := range sources(m.cfg.DepManager) {
		asset := src.asset(m.platform)
		if asset == "" {
			continue
		}

		newHash, hasNew := m.shaSums[asset]
		oldHash, hasOld := m.savedSums[asset]

		if hasNew && (!hasOld || newHash != oldHash) {
			updates = append(updates, src.name())
		}
	}

	return updates
}

func (m *Manager) loadSavedSums() error {
	data, err := os.ReadFile(filepath.Join(m.cfg.DepManager.BinsDir, savedSumsFilename))
	if err != nil {
		return fmt.Errorf("read checksums file: %w", err)
	}

	saved := make(map[string]string)
	if err := json.Unmarshal(data, &saved); err != nil {
		return fmt.Errorf("unmarshal checksums: %w", err)
	}

	m.mu.Lock()
	m.savedSums = saved
	m.mu.Unlock()

	return nil
}

// saveSums persists the fetched checksums and makes them the saved baseline.
func (m *Manager) saveSums() error {
	m.mu.RLock()
	current := maps.Clone(m.shaSums)
	m.mu.RUnlock()

	data, err := json.MarshalIndent(current, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal checksums: %w", err)
	}

	if err := os.WriteFile(filepath.Join(m.cfg.DepManager.BinsDir, savedSumsFilename), data, filePermReadWrite); err != nil {
		return fmt.Errorf("write checksums file: %w", err)
	}

	m.mu.Lock()
	m.savedSums = current
	m.mu.Unlock()

	return nil
}
