// Copyright (c) 2024-2026 IT Help San Diego Inc.
// Licensed under BUSL-1.1 — See LICENSE for terms.

// Package cache stores lookup results that outlive a single analysis, such
// as domain registration dates and the phishing feed.
package cache

import (
	"context"
	"encoding/json"
	"time"

	"websentinel/go-server/internal/telemetry"
)

// Store is a byte cache keyed by string. A miss and a backend error both
// report ok=false; callers treat the cache as best effort.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration)
	Close() error
}

// Memory is a process-local Store.
type Memory struct {
	items *telemetry.TTLCache[[]byte]
}

func NewMemory(name string, maxSize int, defaultTTL time.Duration) *Memory {
	return &Memory{items: telemetry.NewTTLCache[[]byte](name, maxSize, defaultTTL)}
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, bool) {
	return m.items.Get(key)
}

func (m *Memory) Set(_ context.Context, key string, value []byte, ttl time.Duration) {
	m.items.SetWithTTL(key, value, ttl)
}

func (m *Memory) Stats() telemetry.CacheStats {
	return m.items.Stats()
}

func (m *Memory) Close() error {
	m.items.Close()
	return nil
}

// GetJSON decodes a cached JSON value into out.
func GetJSON(ctx context.Context, s Store, key string, out any) bool {
	raw, ok := s.Get(ctx, key)
	if !ok {
		return false
	}
	return json.Unmarshal(raw, out) == nil
}

func SetJSON(ctx context.Context, s Store, key string, v any, ttl time.Duration) {
	raw, err := json.Marshal(v)
	if err != nil {
		return
	}
	s.Set(ctx, key, raw, ttl)
}
