// Copyright (c) 2024-2026 IT Help San Diego Inc.
// Licensed under BUSL-1.1 — See LICENSE for terms.
package dnsclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"
)

var ErrPrivateTarget = errors.New("SSRF protection: target resolves to private/reserved IP range")

const defaultMaxRedirects = 10

// SafeHTTPClient refuses requests and redirects whose host resolves to a
// private or reserved address.
type SafeHTTPClient struct {
	client       *http.Client
	userAgent    string
	maxRedirects int
	allowPrivate bool
}

type HTTPOption func(*SafeHTTPClient)

// WithAllowPrivateTargets turns off the private address guard. Intended for
// tests against loopback servers.
func WithAllowPrivateTargets() HTTPOption {
	return func(s *SafeHTTPClient) { s.allowPrivate = true }
}

func WithMaxRedirects(n int) HTTPOption {
	return func(s *SafeHTTPClient) { s.maxRedirects = n }
}

func WithUserAgent(ua string) HTTPOption {
	return func(s *SafeHTTPClient) { s.userAgent = ua }
}

func NewSafeHTTPClient(timeout time.Duration, opts ...HTTPOption) *SafeHTTPClient {
	s := &SafeHTTPClient{
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        20,
				IdleConnTimeout:     30 * time.Second,
				MaxIdleConnsPerHost: 5,
			},
		},
		userAgent:    UserAgent,
		maxRedirects: defaultMaxRedirects,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// ProbeResult is the outcome of following a URL to its final response.
type ProbeResult struct {
	StatusCode int
	Redirects  int
	FinalURL   string
	Latency    time.Duration
}

func (s *SafeHTTPClient) Get(ctx context.Context, rawURL string) (*http.Response, error) {
	resp, _, err := s.do(ctx, http.MethodGet, rawURL)
	return resp, err
}

// Head issues a HEAD request, following redirects up to the configured
// limit, and reports the hop count and time to the final response.
func (s *SafeHTTPClient) Head(ctx context.Context, rawURL string) (ProbeResult, error) {
	start := time.Now()
	resp, hops, err := s.do(ctx, http.MethodHead, rawURL)
	if err != nil {
		return ProbeResult{Redirects: hops}, err
	}
	defer resp.Body.Close()
	return ProbeResult{
		StatusCode: resp.StatusCode,
		Redirects:  hops,
		FinalURL:   resp.Request.URL.String(),
		Latency:    time.Since(start),
	}, nil
}

func (s *SafeHTTPClient) do(ctx context.Context, method, rawURL string) (*http.Response, int, error) {
	if err := s.checkTarget(ctx, rawURL); err != nil {
		return nil, 0, err
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, nil)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("User-Agent", s.userAgent)

	hops := 0
	client := *s.client
	client.CheckRedirect = func(next *http.Request, via []*http.Request) error {
		if len(via) > s.maxRedirects {
			return fmt.Errorf("stopped after %d redirects", s.maxRedirects)
		}
		if err := s.checkTarget(next.Context(), next.URL.String()); err != nil {
			return err
		}
		hops = len(via)
		return nil
	}

	resp, err := client.Do(req)
	return resp, hops, err
}

func (s *SafeHTTPClient) checkTarget(ctx context.Context, rawURL string) error {
	if s.allowPrivate {
		return nil
	}
	return ValidateURLTarget(ctx, rawURL)
}

func ReadBody(resp *http.Response, maxBytes int64) ([]byte, error) {
	defer resp.Body.Close()
	return io.ReadAll(io.LimitReader(resp.Body, maxBytes))
}

func IsPrivateIP(ipStr string) bool {
	ip := net.ParseIP(ipStr)
	if ip == nil {
		return false
	}

	if ip.IsPrivate() || ip.IsLoopback() || ip.IsLinkLocalUnicast() ||
		ip.IsLinkLocalMulticast() || ip.IsUnspecified() {
		return true
	}

	if ip4 := ip.To4(); ip4 != nil {
		if ip4[0] == 100 && ip4[1] >= 64 && ip4[1] <= 127 {
			return true
		}
		if ip4[0] == 192 && ip4[1] == 0 && ip4[2] == 0 {
			return true
		}
		if ip4[0] == 198 && (ip4[1] == 18 || ip4[1] == 19) {
			return true
		}
	}
	return false
}

// ValidateURLTarget resolves the URL host and fails if any address is
// private or reserved.
func ValidateURLTarget(ctx context.Context, rawURL string) error {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return err
	}
	hostname := parsed.Hostname()
	if hostname == "" {
		return fmt.Errorf("no host in %q", rawURL)
	}

	addrs, err := net.DefaultResolver.LookupHost(ctx, hostname)
	if err != nil {
		return err
	}
	for _, addr := range addrs {
		if IsPrivateIP(addr) {
			return ErrPrivateTarget
		}
	}
	return nil
}
