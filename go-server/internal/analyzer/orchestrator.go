// Copyright (c) 2024-2026 IT Help San Diego Inc.
// Licensed under BUSL-1.1 — See LICENSE for terms.
package analyzer

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"websentinel/go-server/internal/features"
	"websentinel/go-server/internal/netfeatures"
	"websentinel/go-server/internal/scanner"
	"websentinel/go-server/internal/scraper"
)

type namedResult struct {
	key    string
	result any
}

// Analyze scores one URL. The only errors are *InvalidInputError for input
// that is not a URL, ErrAtCapacity, and scoring failures; failed network
// lookups degrade the report instead.
func (a *Analyzer) Analyze(ctx context.Context, rawURL string) (*Report, error) {
	target, host, err := NormalizeURL(rawURL)
	if err != nil {
		return nil, err
	}
	input := strings.TrimSpace(rawURL)

	select {
	case a.semaphore <- struct{}{}:
		defer func() { <-a.semaphore }()
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(a.queueTimeout):
		a.logger.Warn("Backpressure: rejected analysis", "url", target)
		return nil, ErrAtCapacity
	}

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	start := time.Now()
	obs, page, listed := a.runParallel(ctx, target, host)
	a.logger.Info("Parallel lookups completed", "url", target,
		"elapsed_s", fmt.Sprintf("%.2f", time.Since(start).Seconds()))

	now := a.now()
	vec, err := features.Assemble(features.InputLexicalValues(input, target), features.Defaults(), obs.Features(now))
	if err != nil {
		return nil, fmt.Errorf("assembling features for %s: %w", target, err)
	}
	scored, err := a.scorer.Score(vec)
	if err != nil {
		return nil, fmt.Errorf("scoring %s: %w", target, err)
	}

	label, verdict := Verdict(scored.AdjustedProbability)
	report := &Report{
		URL:              target,
		Domain:           host,
		Probability:      roundProbability(scored.AdjustedProbability),
		Label:            label,
		Verdict:          verdict,
		Risk:             scored.RiskTier,
		FeaturesDetected: scored.FeaturesDetected,
		TotalFeatures:    vec.Len(),
		Reasons:          a.reasons(input, page.Text),
		DomainAge:        DomainAge(obs.Registration, now),
		HTTPStatus:       HTTPStatus(obs.HTTP),
		SPFDMARC:         SPFDMARC(obs.SPF, obs.DMARC),
		FreeHosted:       FreeHosted(hostname(host)),
		ParkedDomain:     ParkedDomain(page.Text),
		OpenPhishListed:  listed,
		ElapsedMs:        time.Since(start).Milliseconds(),
		Features:         vec,
	}
	if probe := scanner.Classify(hostname(host)); probe.Matched {
		report.CallbackService = probe.Source
		a.logger.Info("Callback service host detected", "url", target, "source", probe.Source, "kind", probe.Kind)
	}
	for _, f := range obs.Failures() {
		report.DegradedLookups = append(report.DegradedLookups, f.Lookup)
	}

	a.logger.Info("Analysis complete", "url", target, "verdict", verdict,
		"probability", report.Probability, "raw_probability", scored.RawProbability,
		"degraded_lookups", len(report.DegradedLookups))
	return report, nil
}

// runParallel runs the network resolver, the content fetch and the feed
// check concurrently and waits for all three.
func (a *Analyzer) runParallel(ctx context.Context, target, host string) (netfeatures.Observation, scraper.Page, bool) {
	tasks := map[string]func() any{
		"network": func() any { return a.resolver.Resolve(ctx, hostname(host), target) },
		"content": func() any {
			page, err := a.fetcher.Fetch(ctx, target)
			if err != nil {
				a.logger.Debug("Content fetch skipped", "url", target, "error", err)
				return scraper.Page{}
			}
			return page
		},
		"openphish": func() any {
			if a.feed == nil {
				return false
			}
			return a.feed.Listed(ctx, target)
		},
	}

	ch := make(chan namedResult, len(tasks))
	for key, fn := range tasks {
		go func(key string, fn func() any) {
			defer func() {
				if r := recover(); r != nil {
					a.logger.Error("Analysis task panicked", "task", key, "panic", r)
					ch <- namedResult{key: key}
				}
			}()
			ch <- namedResult{key: key, result: fn()}
		}(key, fn)
	}

	var (
		obs    netfeatures.Observation
		page   scraper.Page
		listed bool
	)
	for range tasks {
		r := <-ch
		switch v := r.result.(type) {
		case netfeatures.Observation:
			obs = v
		case scraper.Page:
			page = v
		case bool:
			listed = v
		}
	}
	return obs, page, listed
}

// NormalizeURL trims the input, adds http:// when no scheme is given and
// returns the URL with its lowercased host (port included).
func NormalizeURL(rawURL string) (string, string, error) {
	trimmed := strings.TrimSpace(rawURL)
	if trimmed == "" {
		return "", "", &InvalidInputError{Reason: "URL is required"}
	}
	if !strings.Contains(trimmed, "://") {
		trimmed = "http://" + trimmed
	}
	u, err := url.Parse(trimmed)
	if err != nil {
		return "", "", &InvalidInputError{Input: rawURL, Reason: err.Error()}
	}
	if u.Hostname() == "" {
		return "", "", &InvalidInputError{Input: rawURL, Reason: "no host"}
	}
	return trimmed, strings.ToLower(u.Host), nil
}

func hostname(host string) string {
	u := url.URL{Host: host}
	return u.Hostname()
}
