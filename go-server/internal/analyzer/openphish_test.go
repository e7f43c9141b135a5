// Copyright (c) 2024-2026 IT Help San Diego Inc.
// Licensed under BUSL-1.1 — See LICENSE for terms.
package analyzer

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"websentinel/go-server/internal/dnsclient"
)

func TestOpenPhishFeedListed(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.Write([]byte("https://evil.example.net/login.php\n\nhttp://Phish.Example.org/a\nnot a url\n"))
	}))
	defer srv.Close()

	client := dnsclient.NewSafeHTTPClient(2*time.Second, dnsclient.WithAllowPrivateTargets())
	feed := NewOpenPhishFeed(client, srv.URL, quietLogger())
	ctx := context.Background()

	tests := []struct {
		url  string
		want bool
	}{
		{"https://evil.example.net/other", true},
		{"http://phish.example.org/", true},
		{"https://example.com/", false},
		{"not a url", false},
	}
	for _, tt := range tests {
		if got := feed.Listed(ctx, tt.url); got != tt.want {
			t.Errorf("Listed(%q) = %v, want %v", tt.url, got, tt.want)
		}
	}
	if n := atomic.LoadInt32(&hits); n != 1 {
		t.Errorf("feed fetched %d times, want 1", n)
	}
}

func TestOpenPhishFeedUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	client := dnsclient.NewSafeHTTPClient(2*time.Second, dnsclient.WithAllowPrivateTargets())
	feed := NewOpenPhishFeed(client, srv.URL, quietLogger())
	if feed.Listed(context.Background(), "https://evil.example.net/") {
		t.Error("unavailable feed should list nothing")
	}
}
