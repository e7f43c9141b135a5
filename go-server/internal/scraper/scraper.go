// Copyright (c) 2024-2026 IT Help San Diego Inc.
// Licensed under BUSL-1.1 — See LICENSE for terms.

// Package scraper fetches a page and reduces it to visible text for the
// content-based reasons and parked-domain detection.
package scraper

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html/charset"
)

const defaultMaxBytes = 2 << 20

// ErrDisabled is returned by Noop.
var ErrDisabled = errors.New("content fetching disabled")

type Page struct {
	URL   string
	Title string
	Text  string
}

type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) (Page, error)
}

// Noop never fetches anything.
type Noop struct{}

func (Noop) Fetch(context.Context, string) (Page, error) {
	return Page{}, ErrDisabled
}

type httpGetter interface {
	Get(ctx context.Context, rawURL string) (*http.Response, error)
}

type HTTPFetcher struct {
	client   httpGetter
	maxBytes int64
	logger   *slog.Logger
}

type Option func(*HTTPFetcher)

func WithMaxBytes(n int64) Option {
	return func(f *HTTPFetcher) { f.maxBytes = n }
}

func WithLogger(l *slog.Logger) Option {
	return func(f *HTTPFetcher) { f.logger = l }
}

func NewHTTPFetcher(client httpGetter, opts ...Option) *HTTPFetcher {
	f := &HTTPFetcher{client: client, maxBytes: defaultMaxBytes, logger: slog.Default()}
	for _, o := range opts {
		o(f)
	}
	return f
}

func (f *HTTPFetcher) Fetch(ctx context.Context, rawURL string) (Page, error) {
	resp, err := f.client.Get(ctx, rawURL)
	if err != nil {
		return Page{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return Page{}, fmt.Errorf("status %d", resp.StatusCode)
	}
	ct := resp.Header.Get("Content-Type")
	if ct != "" && !strings.Contains(ct, "html") && !strings.HasPrefix(ct, "text/") {
		return Page{}, fmt.Errorf("unsupported content type %q", ct)
	}

	reader, err := charset.NewReader(resp.Body, ct)
	if err != nil {
		f.logger.Debug("Charset detection failed, reading raw body", "url", rawURL, "error", err)
		reader = resp.Body
	}
	body, err := io.ReadAll(io.LimitReader(reader, f.maxBytes))
	if err != nil {
		return Page{}, err
	}

	page, err := Extract(body)
	if err != nil {
		return Page{}, err
	}
	page.URL = rawURL
	if resp.Request != nil && resp.Request.URL != nil {
		page.URL = resp.Request.URL.String()
	}
	return page, nil
}

// Extract returns the title and the visible text of an HTML document with
// whitespace collapsed.
func Extract(body []byte) (Page, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return Page{}, err
	}
	doc.Find("script, style, noscript, template").Remove()

	root := doc.Find("body")
	if root.Length() == 0 {
		root = doc.Selection
	}
	parts := []string{root.Text()}
	doc.Find("input[placeholder]").Each(func(_ int, s *goquery.Selection) {
		parts = append(parts, s.AttrOr("placeholder", ""))
	})
	text := strings.Join(parts, " ")

	return Page{
		Title: strings.TrimSpace(doc.Find("title").First().Text()),
		Text:  strings.Join(strings.Fields(text), " "),
	}, nil
}
