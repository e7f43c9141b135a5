// Copyright (c) 2024-2026 IT Help San Diego Inc.
// Licensed under BUSL-1.1 — See LICENSE for terms.
package analyzer

import (
	"bufio"
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

const (
	OpenPhishFeedURL  = "https://raw.githubusercontent.com/openphish/public_feed/refs/heads/main/feed.txt"
	openPhishCacheTTL = 12 * time.Hour
	openPhishTimeout  = 15 * time.Second
)

type httpGetter interface {
	Get(ctx context.Context, rawURL string) (*http.Response, error)
}

// OpenPhishFeed checks URLs against the OpenPhish public feed. The feed is
// downloaded on first use and refreshed after openPhishCacheTTL. A failed
// refresh keeps serving the previous copy.
type OpenPhishFeed struct {
	client  httpGetter
	feedURL string
	logger  *slog.Logger

	mu      sync.RWMutex
	entries map[string]bool
	fetched time.Time
}

func NewOpenPhishFeed(client httpGetter, feedURL string, logger *slog.Logger) *OpenPhishFeed {
	if feedURL == "" {
		feedURL = OpenPhishFeedURL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &OpenPhishFeed{client: client, feedURL: feedURL, logger: logger}
}

func (f *OpenPhishFeed) load(ctx context.Context) map[string]bool {
	f.mu.RLock()
	if f.entries != nil && time.Since(f.fetched) < openPhishCacheTTL {
		defer f.mu.RUnlock()
		return f.entries
	}
	f.mu.RUnlock()

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.entries != nil && time.Since(f.fetched) < openPhishCacheTTL {
		return f.entries
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), openPhishTimeout)
	defer cancel()

	resp, err := f.client.Get(ctx, f.feedURL)
	if err != nil {
		f.logger.Warn("OpenPhish feed fetch failed", "error", err)
		return f.entries
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		f.logger.Warn("OpenPhish feed fetch failed", "status", resp.StatusCode)
		return f.entries
	}

	feed := make(map[string]bool)
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		parsed, err := url.Parse(line)
		if err == nil && parsed.Host != "" {
			feed[strings.ToLower(parsed.Host)] = true
			feed[strings.ToLower(line)] = true
		}
	}

	if len(feed) > 0 {
		f.entries = feed
		f.fetched = time.Now()
		f.logger.Info("Loaded OpenPhish feed", "entries", len(feed))
	}

	return f.entries
}

// Listed reports whether the URL or its host appears in the feed. An
// unavailable feed lists nothing.
func (f *OpenPhishFeed) Listed(ctx context.Context, rawURL string) bool {
	feed := f.load(ctx)
	if len(feed) == 0 {
		return false
	}
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" {
		return false
	}
	return feed[strings.ToLower(parsed.Host)] || feed[strings.ToLower(rawURL)]
}
