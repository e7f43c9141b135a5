// Copyright (c) 2024-2026 IT Help San Diego Inc.
// Licensed under BUSL-1.1 — See LICENSE for terms.
package netfeatures

import (
	"errors"
	"fmt"
)

var (
	ErrCooldown  = errors.New("lookup in cooldown")
	ErrNotDomain = errors.New("host is not a public DNS name")
	ErrNoData    = errors.New("no data")
)

// LookupFailure records why one network lookup fell back to its default.
type LookupFailure struct {
	Lookup string
	Err    error
}

func (f *LookupFailure) Error() string {
	return fmt.Sprintf("%s: %v", f.Lookup, f.Err)
}

func (f *LookupFailure) Unwrap() error {
	return f.Err
}

// Result carries either a lookup value or the failure that replaced it.
type Result[T any] struct {
	Value   T
	Failure *LookupFailure
}

func (r Result[T]) OK() bool {
	return r.Failure == nil
}

// ValueOr returns fallback when the lookup failed.
func (r Result[T]) ValueOr(fallback T) T {
	if r.Failure != nil {
		return fallback
	}
	return r.Value
}

func succeeded[T any](v T) Result[T] {
	return Result[T]{Value: v}
}

func failed[T any](lookup string, err error) Result[T] {
	return Result[T]{Failure: &LookupFailure{Lookup: lookup, Err: err}}
}
