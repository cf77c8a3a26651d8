package client

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"catalog-ingest/config"
	"catalog-ingest/models"
)

// MaxDetailIDs is the provider cap on ids per detail lookup call.
const MaxDetailIDs = 50

// VideoClient fetches channel uploads from the video platform API.
type VideoClient struct {
	http      *resty.Client
	apiKey    string
	channelID string
	pageSize  int
	policy    RetryPolicy

	// OnRetry, when set, is invoked once per retried attempt.
	OnRetry func()

	now func() time.Time
}

// NewVideoClient builds a video API client from cfg.
func NewVideoClient(cfg *config.Config) (*VideoClient, error) {
	if cfg.VideoAPIKey == "" {
		return nil, fmt.Errorf("video API key is required")
	}
	if cfg.ChannelID == "" {
		return nil, fmt.Errorf("channel id is required")
	}

	httpClient := resty.New().
		SetBaseURL(cfg.VideoAPIBaseURL).
		SetTimeout(cfg.RequestTimeout).
		SetHeader("User-Agent", cfg.UserAgent)

	return &VideoClient{
		http:      httpClient,
		apiKey:    cfg.VideoAPIKey,
		channelID: cfg.ChannelID,
		pageSize:  cfg.PageSize,
		policy: RetryPolicy{
			MaxAttempts: cfg.MaxRetries,
			Backoff:     cfg.RetryBackoff,
			BackoffMax:  cfg.RetryBackoffMax,
		},
		now: time.Now,
	}, nil
}

type searchResponse struct {
	Items []struct {
		ID struct {
			VideoID string `json:"videoId"`
		} `json:"id"`
	} `json:"items"`
	NextPageToken string `json:"nextPageToken"`
}

// SearchPage fetches one page of video ids for the configured channel.
// An empty returned token means the listing is exhausted.
func (c *VideoClient) SearchPage(ctx context.Context, pageToken string) ([]string, string, error) {
	params := map[string]string{
		"part":       "id",
		"channelId":  c.channelID,
		"type":       "video",
		"order":      "date",
		"maxResults": fmt.Sprintf("%d", c.pageSize),
		"key":        c.apiKey,
	}
	if pageToken != "" {
		params["pageToken"] = pageToken
	}

	out, err := withRetry(ctx, c.policy, "video.search", c.OnRetry, func() (*searchResponse, error) {
		var page searchResponse
		if err := c.get(ctx, "/search", params, &page); err != nil {
			return nil, err
		}
		return &page, nil
	})
	if err != nil {
		return nil, "", err
	}

	ids := make([]string, 0, len(out.Items))
	for _, item := range out.Items {
		if item.ID.VideoID == "" {
			continue
		}
		ids = append(ids, item.ID.VideoID)
	}
	return ids, out.NextPageToken, nil
}

type videosResponse struct {
	Items []struct {
		ID      string `json:"id"`
		Snippet struct {
			Title        string `json:"title"`
			Description  string `json:"description"`
			PublishedAt  string `json:"publishedAt"`
			ChannelID    string `json:"channelId"`
			ChannelTitle string `json:"channelTitle"`
			Thumbnails   struct {
				Default struct {
					URL string `json:"url"`
				} `json:"default"`
			} `json:"thumbnails"`
		} `json:"snippet"`
	} `json:"items"`
}

// VideoDetails resolves up to MaxDetailIDs ids in a single call.
// Payload entries missing an id or title are dropped with a warning.
func (c *VideoClient) VideoDetails(ctx context.Context, ids []string) ([]*models.Video, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	if len(ids) > MaxDetailIDs {
		return nil, fmt.Errorf("detail lookup limited to %d ids, got %d", MaxDetailIDs, len(ids))
	}

	params := map[string]string{
		"part": "snippet",
		"id":   strings.Join(ids, ","),
		"key":  c.apiKey,
	}

	out, err := withRetry(ctx, c.policy, "video.details", c.OnRetry, func() (*videosResponse, error) {
		var page videosResponse
		if err := c.get(ctx, "/videos", params, &page); err != nil {
			return nil, err
		}
		return &page, nil
	})
	if err != nil {
		return nil, err
	}

	fetchedAt := c.now()
	videos := make([]*models.Video, 0, len(out.Items))
	for _, item := range out.Items {
		video := &models.Video{
			VideoID:       item.ID,
			Title:         item.Snippet.Title,
			Description:   item.Snippet.Description,
			ThumbnailURL:  item.Snippet.Thumbnails.Default.URL,
			ChannelID:     item.Snippet.ChannelID,
			ChannelTitle:  item.Snippet.ChannelTitle,
			LastFetchedAt: fetchedAt,
		}
		if item.Snippet.PublishedAt != "" {
			if ts, err := time.Parse(time.RFC3339, item.Snippet.PublishedAt); err == nil {
				video.PublishedAt = ts
			}
		}
		if err := video.Validate(); err != nil {
			slog.Warn("dropping malformed video payload", slog.Any("error", err))
			continue
		}
		videos = append(videos, video)
	}
	return videos, nil
}

func (c *VideoClient) get(ctx context.Context, path string, params map[string]string, out any) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(params).
		Get(path)
	if err != nil {
		return Classify(err, 0)
	}
	if resp.IsError() {
		return Classify(nil, resp.StatusCode())
	}
	if err := decodeJSON(resp.Body(), path, out); err != nil {
		return err
	}
	return nil
}
