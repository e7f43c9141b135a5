// Copyright (c) 2024-2026 IT Help San Diego Inc.
// Licensed under BUSL-1.1 — See LICENSE for terms.
package analyzer

import "strings"

const (
	ReasonMissingHTTPS     = "Missing HTTPS"
	ReasonPhishingKeywords = "Phishing-related keywords found"
	ReasonURLLength        = "URL length suspicious"
	ReasonNone             = "None"
	ReasonError            = "Error generating reasons"

	suspiciousURLLength = 75
)

var phishingKeywords = []string{"login", "verify", "reset", "urgent", "password"}

// GenerateReasons lists the heuristic reasons a URL looks risky, in a fixed
// order. content is the page text and may be empty.
func GenerateReasons(rawURL, content string) []string {
	var reasons []string
	if strings.Contains(rawURL, "http://") || !strings.Contains(rawURL, "https://") {
		reasons = append(reasons, ReasonMissingHTTPS)
	}
	if content != "" {
		lower := strings.ToLower(content)
		for _, kw := range phishingKeywords {
			if strings.Contains(lower, kw) {
				reasons = append(reasons, ReasonPhishingKeywords)
				break
			}
		}
	}
	if len(rawURL) > suspiciousURLLength {
		reasons = append(reasons, ReasonURLLength)
	}

	if len(reasons) == 0 {
		return []string{ReasonNone}
	}
	return reasons
}

// reasons runs the reason generator, reporting ReasonError instead of
// failing the analysis if it panics.
func (a *Analyzer) reasons(input, content string) (out []string) {
	defer func() {
		if r := recover(); r != nil {
			a.logger.Error("Reason generation panicked", "url", input, "panic", r)
			out = []string{ReasonError}
		}
	}()
	return a.reasonFunc(input, content)
}
