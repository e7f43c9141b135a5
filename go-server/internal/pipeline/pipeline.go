// Copyright (c) 2024-2026 IT Help San Diego Inc.
// Licensed under BUSL-1.1 — See LICENSE for terms.

// Package pipeline wires configuration into a ready Analyzer. Both the
// HTTP server and the CLI build on it.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"websentinel/go-server/internal/analyzer"
	"websentinel/go-server/internal/cache"
	"websentinel/go-server/internal/config"
	"websentinel/go-server/internal/dnsclient"
	"websentinel/go-server/internal/netfeatures"
	"websentinel/go-server/internal/scoring"
	"websentinel/go-server/internal/scraper"
	"websentinel/go-server/internal/telemetry"
)

const (
	dnsCacheTTL     = 5 * time.Minute
	registrationMax = 500
	registrationTTL = 24 * time.Hour
)

// Pipeline owns the analyzer and every resource behind it.
type Pipeline struct {
	Analyzer  *analyzer.Analyzer
	Telemetry *telemetry.Registry
	Caches    []CacheReporter

	closers []io.Closer
	dns     *dnsclient.Client
}

type CacheReporter interface {
	Stats() telemetry.CacheStats
}

// NewLogger returns a text or JSON slog logger writing to w.
func NewLogger(format string, w io.Writer, level slog.Level) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// New loads the scoring artifacts and builds the network stack. Artifact
// errors are returned as *scoring.ConfigurationError and are fatal for
// callers; optional collaborators (Redis, GeoIP) only log when unavailable.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Pipeline, error) {
	scorer, err := scoring.Load(cfg.ModelPath, cfg.ScalerPath)
	if err != nil {
		return nil, err
	}
	logger.Info("Scoring artifacts loaded", "model", cfg.ModelPath, "scaler", cfg.ScalerPath)

	p := &Pipeline{Telemetry: telemetry.NewRegistry()}

	userAgent := dnsclient.WithUserAgent("WebSentinel-URLScanner/" + cfg.AppVersion)
	probeClient := dnsclient.NewSafeHTTPClient(cfg.LookupTimeout, userAgent)
	p.dns = dnsclient.New(
		dnsclient.WithTimeout(cfg.LookupTimeout),
		dnsclient.WithCacheTTL(dnsCacheTTL),
		dnsclient.WithLogger(logger),
	)
	p.Caches = append(p.Caches, p.dns)

	var store cache.Store
	if cfg.RedisURL != "" {
		r, err := cache.NewRedis(ctx, cfg.RedisURL, logger)
		if err != nil {
			logger.Warn("Redis unavailable, using in-memory registration cache", "error", err)
		} else {
			store = r
		}
	}
	if store == nil {
		mem := cache.NewMemory("registration", registrationMax, registrationTTL)
		p.Caches = append(p.Caches, mem)
		store = mem
	}
	p.closers = append(p.closers, store)

	registrar := netfeatures.NewRegistrar(probeClient, cfg.LookupTimeout,
		netfeatures.WithRegistrationStore(store),
		netfeatures.WithRegistrarTelemetry(p.Telemetry),
		netfeatures.WithRegistrarLogger(logger),
	)

	resolverOpts := []netfeatures.Option{
		netfeatures.WithTelemetry(p.Telemetry),
		netfeatures.WithLogger(logger),
		netfeatures.WithLookupTimeout(cfg.LookupTimeout),
	}
	if cfg.GeoIPASNDB != "" {
		asn, err := netfeatures.OpenGeoIPASN(cfg.GeoIPASNDB)
		if err != nil {
			logger.Warn("GeoIP ASN database unavailable, asn_ip will be 0", "path", cfg.GeoIPASNDB, "error", err)
		} else {
			resolverOpts = append(resolverOpts, netfeatures.WithASN(asn))
			p.closers = append(p.closers, asn)
		}
	}
	resolver := netfeatures.NewResolver(p.dns, probeClient, netfeatures.TLSDialer{Timeout: cfg.LookupTimeout}, registrar, resolverOpts...)

	opts := []analyzer.Option{
		analyzer.WithMaxConcurrent(cfg.MaxConcurrent),
		analyzer.WithTimeout(cfg.AnalysisTimeout),
		analyzer.WithLogger(logger),
	}
	if cfg.ContentFetch {
		opts = append(opts, analyzer.WithFetcher(scraper.NewHTTPFetcher(probeClient, scraper.WithLogger(logger))))
	}
	if cfg.OpenPhish {
		feedClient := dnsclient.NewSafeHTTPClient(15*time.Second, userAgent)
		opts = append(opts, analyzer.WithPhishFeed(analyzer.NewOpenPhishFeed(feedClient, "", logger)))
	}
	p.Analyzer = analyzer.New(scorer, resolver, opts...)

	logger.Info("Analyzer initialized",
		"max_concurrent", cfg.MaxConcurrent,
		"content_fetch", cfg.ContentFetch,
		"openphish", cfg.OpenPhish,
		"asn", cfg.GeoIPASNDB != "",
	)
	return p, nil
}

func (p *Pipeline) Close() error {
	var errs []error
	for _, c := range p.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if p.dns != nil {
		p.dns.Close()
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("closing pipeline: %w", err)
	}
	return nil
}
