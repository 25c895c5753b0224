// Package playlist lists the entries of a playlist so single items can be picked.
package playlist

import (
	"context"
	"log/slog"
	"time"

	"tubegrab/internal/consts"
	"tubegrab/internal/entity"
	"tubegrab/internal/errs"
	"tubegrab/pkg/format"
	"tubegrab/pkg/urls"

	ytget "github.com/ytget/ytdlp/v2"
)

// listFunc fetches every entry of the playlist with the given id.
type listFunc func(ctx context.Context, id string) ([]entity.PlaylistEntry, error)

// Lister resolves playlist URLs into their entries.
type Lister struct {
	log     *slog.Logger
	list    listFunc
	timeout time.Duration
}

// New creates a Lister backed by the in-process ytget client.
func New(log *slog.Logger) *Lister {
	return &Lister{
		log:     log.With(slog.String("package", "playlist")),
		list:    listYtget,
		timeout: consts.DefaultInfoTimeout,
	}
}

// Entries returns the videos of the playlist referenced by rawURL.
func (l *Lister) Entries(ctx context.Context, rawURL string) ([]entity.PlaylistEntry, error) {
	id := urls.PlaylistID(rawURL)
	if id == "" {
		return nil, errs.New(errs.KindInvalidInput, "list playlist", errs.ErrInvalidPlaylist)
	}

	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	entries, err := l.list(ctx, id)
	if err != nil {
		l.log.ErrorContext(ctx, "list playlist", slog.String("playlist_id", id), slog.Any("error", err))

		return nil, errs.New(errs.KindNetwork, "list playlist", err)
	}

	l.log.DebugContext(ctx, "playlist listed", slog.String("playlist_id", id), slog.Int("entries", len(entries)))

	return entries, nil
}

func listYtget(ctx context.Context, id string) ([]entity.PlaylistEntry, error) {
	items, err := ytget.New().GetPlaylistItemsAll(ctx, id, 0)
	if err != nil {
		return nil, err
	}

	entries := make([]entity.PlaylistEntry, 0, len(items))

	for _, it := range items {
		if it.VideoID == "" {
			continue
		}

		entries = append(entries, entity.PlaylistEntry{
			ID:    it.VideoID,
			Title: format.CleanTitle(it.Title),
			URL:   urls.WatchURL(it.VideoID),
		})
	}

	return entries, nil
}
