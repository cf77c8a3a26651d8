// Package models defines the documents moved through the ingest pipelines.
package models

import (
	"fmt"
	"time"
)

// Store collection names shared by the pipelines.
const (
	CollectionVideos          = "videos"
	CollectionProducts        = "products"
	CollectionSnapshots       = "product_snapshots_raw"
	CollectionDailyAggregates = "product_snapshots_daily"
	CollectionCheckpoints     = "pipeline_checkpoints"
)

// Video is the persisted form of one channel upload.
type Video struct {
	VideoID       string
	Title         string
	Description   string
	PublishedAt   time.Time
	ThumbnailURL  string
	ChannelID     string
	ChannelTitle  string
	LastFetchedAt time.Time
}

// Validate reports whether the video carries the fields required for
// persistence.
func (v *Video) Validate() error {
	if v.VideoID == "" {
		return fmt.Errorf("video missing id")
	}
	if v.Title == "" {
		return fmt.Errorf("video %s missing title", v.VideoID)
	}
	return nil
}

// Doc renders the video as a store document. Zero-valued optional
// fields are omitted so merge writes never clobber known data.
func (v *Video) Doc() map[string]any {
	doc := map[string]any{
		"videoId":       v.VideoID,
		"title":         v.Title,
		"lastFetchedAt": v.LastFetchedAt,
	}
	if v.Description != "" {
		doc["description"] = v.Description
	}
	if !v.PublishedAt.IsZero() {
		doc["publishedAt"] = v.PublishedAt
	}
	if v.ThumbnailURL != "" {
		doc["thumbnailUrl"] = v.ThumbnailURL
	}
	if v.ChannelID != "" {
		doc["channelId"] = v.ChannelID
	}
	if v.ChannelTitle != "" {
		doc["channelTitle"] = v.ChannelTitle
	}
	return doc
}

// Product is the persisted form of one catalog entry. Listing pages
// populate the summary fields; detail fetches merge in the rest.
type Product struct {
	ProductID     string
	Title         string
	Maker         string
	Category      string
	ReleaseDate   string
	LastFetchedAt time.Time
}

// Validate reports whether the product carries the fields required for
// persistence.
func (p *Product) Validate() error {
	if p.ProductID == "" {
		return fmt.Errorf("product missing id")
	}
	if p.Title == "" {
		return fmt.Errorf("product %s missing title", p.ProductID)
	}
	return nil
}

// Doc renders the product as a store document, omitting zero-valued
// optional fields.
func (p *Product) Doc() map[string]any {
	doc := map[string]any{
		"productId":     p.ProductID,
		"title":         p.Title,
		"lastFetchedAt": p.LastFetchedAt,
	}
	if p.Maker != "" {
		doc["maker"] = p.Maker
	}
	if p.Category != "" {
		doc["category"] = p.Category
	}
	if p.ReleaseDate != "" {
		doc["releaseDate"] = p.ReleaseDate
	}
	return doc
}
