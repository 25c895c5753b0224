// Package search finds videos through the YouTube Data API.
package search

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"tubegrab/internal/config"
	"tubegrab/internal/consts"
	"tubegrab/internal/entity"
	"tubegrab/internal/errs"
	"tubegrab/internal/observability"
	"tubegrab/pkg/format"
	"tubegrab/pkg/maths"
	"tubegrab/pkg/urls"

	"golang.org/x/time/rate"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"
)

const (
	descriptionLimit = 100
	publishedLen     = len("2006-01-02")
	unknownChannel   = "Unknown Channel"
)

// Client queries the search.list endpoint. A client without an API key refuses every query.
type Client struct {
	log     *slog.Logger
	cfg     *config.Config
	metrics *observability.Metrics
	limiter *rate.Limiter
	service *youtube.Service
}

// New creates a Client. The API service is only built when an API key is configured.
func New(ctx context.Context, log *slog.Logger, cfg *config.Config, metrics *observability.Metrics) (*Client, error) {
	c := &Client{
		log:     log.With(slog.String("package", "search")),
		cfg:     cfg,
		metrics: metrics,
		limiter: rate.NewLimiter(rate.Limit(cfg.Search.RateLimit), max(cfg.Search.RateBurst, 1)),
	}

	if !cfg.Search.Enabled() {
		c.log.Warn("search disabled, no api key configured")

		return c, nil
	}

	opts := []option.ClientOption{option.WithAPIKey(strings.TrimSpace(cfg.Search.APIKey))}
	if cfg.Search.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Search.Endpoint))
	}

	svc, err := youtube.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create youtube service: %w", err)
	}

	c.service = svc

	return c, nil
}

// Search returns up to limit videos matching query. A limit outside 1..50 falls back to
// the configured default.
func (c *Client) Search(ctx context.Context, query string, limit int) ([]entity.SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []entity.SearchResult{}, errs.New(errs.KindInvalidInput, "search", errs.ErrEmptyQuery)
	}

	if c.service == nil {
		return []entity.SearchResult{}, errs.New(errs.KindAccessDenied, "search", errs.ErrSearchDisabled)
	}

	limit = c.clampLimit(limit)

	if err := c.limiter.Wait(ctx); err != nil {
		return []entity.SearchResult{}, errs.New(errs.KindNetwork, "search rate limit", err)
	}

	if c.cfg.Search.Timeout > 0 {
		var cancel context.CancelFunc

		ctx, cancel = context.WithTimeout(ctx, c.cfg.Search.Timeout)
		defer cancel()
	}

	resp, err := c.service.Search.List([]string{"id", "snippet"}).
		Q(query).
		Type("video").
		Order("relevance").
		MaxResults(int64(limit)).
		Context(ctx).
		Do()
	if err != nil {
		c.metrics.RecordSearchRequest(false)
		c.log.ErrorContext(ctx, "search request", slog.String("query", query), slog.Any("error", err))

		return []entity.SearchResult{}, errs.New(errs.KindNetwork, "search request", err)
	}

	results := make([]entity.SearchResult, 0, len(resp.Items))

	for _, item := range resp.Items {
		if result, ok := toResult(item); ok {
			results = append(results, result)
		}
	}

	c.metrics.RecordSearchRequest(true)
	c.log.DebugContext(ctx, "search done",
		slog.String("query", query),
		slog.Int("limit", limit),
		slog.Int("results", len(results)))

	return results, nil
}

func (c *Client) clampLimit(limit int) int {
	if maths.InRange(limit, 1, consts.MaxSearchLimit) {
		return limit
	}

	if d := c.cfg.Search.MaxResults; maths.InRange(d, 1, consts.MaxSearchLimit) {
		return d
	}

	return consts.DefaultSearchLimit
}

func toResult(item *youtube.SearchResult) (entity.SearchResult, bool) {
	if item == nil || item.Id == nil || item.Id.VideoId == "" {
		return entity.SearchResult{}, false
	}

	result := entity.SearchResult{
		ID:      item.Id.VideoId,
		Title:   format.UnknownTitle,
		Channel: unknownChannel,
		URL:     urls.WatchURL(item.Id.VideoId),
	}

	snippet := item.Snippet
	if snippet == nil {
		return result, true
	}

	result.Title = format.CleanTitle(snippet.Title)
	result.Description = format.Truncate(snippet.Description, descriptionLimit)

	if snippet.ChannelTitle != "" {
		result.Channel = snippet.ChannelTitle
	}

	if snippet.Thumbnails != nil && snippet.Thumbnails.Medium != nil {
		result.ThumbnailURL = snippet.Thumbnails.Medium.Url
	}

	result.Published = snippet.PublishedAt
	if len(result.Published) > publishedLen {
		result.Published = result.Published[:publishedLen]
	}

	return result, true
}
