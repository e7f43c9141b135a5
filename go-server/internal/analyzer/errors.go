// Copyright (c) 2024-2026 IT Help San Diego Inc.
// Licensed under BUSL-1.1 — See LICENSE for terms.
package analyzer

import (
	"errors"
	"fmt"
)

// ErrAtCapacity is returned when no analysis slot frees up in time.
var ErrAtCapacity = errors.New("system is currently at capacity")

// InvalidInputError reports a URL that cannot be analyzed at all.
type InvalidInputError struct {
	Input  string
	Reason string
}

func (e *InvalidInputError) Error() string {
	if e.Input == "" {
		return "invalid URL: " + e.Reason
	}
	return fmt.Sprintf("invalid URL %q: %s", e.Input, e.Reason)
}
