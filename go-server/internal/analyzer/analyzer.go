// Copyright (c) 2024-2026 IT Help San Diego Inc.
// Licensed under BUSL-1.1 — See LICENSE for terms.
package analyzer

import (
	"context"
	"log/slog"
	"time"

	"websentinel/go-server/internal/features"
	"websentinel/go-server/internal/netfeatures"
	"websentinel/go-server/internal/scoring"
	"websentinel/go-server/internal/scraper"
)

const (
	defaultMaxConcurrent   = 6
	defaultAnalysisTimeout = 20 * time.Second
	defaultQueueTimeout    = 10 * time.Second
)

type Scorer interface {
	Score(v features.Vector) (scoring.Result, error)
}

type NetworkResolver interface {
	Resolve(ctx context.Context, host, rawURL string) netfeatures.Observation
}

type PhishFeed interface {
	Listed(ctx context.Context, rawURL string) bool
}

// Analyzer scores URLs. It is safe for concurrent use; at most
// maxConcurrent analyses run at once.
type Analyzer struct {
	scorer   Scorer
	resolver NetworkResolver
	fetcher  scraper.Fetcher
	feed     PhishFeed
	logger   *slog.Logger
	now      func() time.Time

	reasonFunc func(input, content string) []string

	timeout       time.Duration
	queueTimeout  time.Duration
	maxConcurrent int
	semaphore     chan struct{}
}

type Option func(*Analyzer)

func WithMaxConcurrent(n int) Option {
	return func(a *Analyzer) {
		if n > 0 {
			a.maxConcurrent = n
		}
	}
}

// WithTimeout bounds a whole analysis, network lookups included.
func WithTimeout(d time.Duration) Option {
	return func(a *Analyzer) {
		if d > 0 {
			a.timeout = d
		}
	}
}

// WithQueueTimeout sets how long Analyze waits for a free slot before
// returning ErrAtCapacity.
func WithQueueTimeout(d time.Duration) Option {
	return func(a *Analyzer) { a.queueTimeout = d }
}

func WithFetcher(f scraper.Fetcher) Option {
	return func(a *Analyzer) { a.fetcher = f }
}

func WithPhishFeed(f PhishFeed) Option {
	return func(a *Analyzer) { a.feed = f }
}

func WithLogger(l *slog.Logger) Option {
	return func(a *Analyzer) { a.logger = l }
}

func WithClock(now func() time.Time) Option {
	return func(a *Analyzer) { a.now = now }
}

func New(scorer Scorer, resolver NetworkResolver, opts ...Option) *Analyzer {
	a := &Analyzer{
		scorer:        scorer,
		resolver:      resolver,
		fetcher:       scraper.Noop{},
		logger:        slog.Default(),
		now:           time.Now,
		reasonFunc:    GenerateReasons,
		timeout:       defaultAnalysisTimeout,
		queueTimeout:  defaultQueueTimeout,
		maxConcurrent: defaultMaxConcurrent,
	}
	for _, o := range opts {
		o(a)
	}
	a.semaphore = make(chan struct{}, a.maxConcurrent)
	return a
}

// InFlight returns the number of analyses currently holding a slot.
func (a *Analyzer) InFlight() int {
	return len(a.semaphore)
}

func (a *Analyzer) Capacity() int {
	return a.maxConcurrent
}
