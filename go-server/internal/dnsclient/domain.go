// Copyright (c) 2024-2026 IT Help San Diego Inc.
// Licensed under BUSL-1.1 — See LICENSE for terms.
package dnsclient

import (
	"net"
	"regexp"
	"strings"

	"golang.org/x/net/idna"
	"golang.org/x/net/publicsuffix"
)

var (
	labelRegex    = regexp.MustCompile(`^[a-zA-Z0-9-]+$`)
	asciiHostname = regexp.MustCompile(`^[a-zA-Z0-9._-]+$`)
	tldRegex      = regexp.MustCompile(`^[a-zA-Z]{2,}$`)
	hexLabelRegex = regexp.MustCompile(`^[0-9a-f]+$`)

	lookupProfile = idna.New(idna.MapForLookup(), idna.Transitional(false))
)

const maxLabelDepth = 10

func DomainToASCII(domain string) (string, error) {
	domain = strings.TrimRight(strings.TrimSpace(domain), ".")

	ascii, err := lookupProfile.ToASCII(domain)
	if err == nil {
		return ascii, nil
	}
	// Underscored or otherwise non-IDNA but plain ASCII names still resolve.
	if !asciiHostname.MatchString(domain) {
		return "", err
	}
	for _, label := range strings.Split(domain, ".") {
		if label == "" || len(label) > 63 || strings.HasPrefix(label, "-") || strings.HasSuffix(label, "-") {
			return "", err
		}
	}
	return strings.ToLower(domain), nil
}

// ValidateDomain reports whether domain is a public DNS name worth querying.
// IP literals, single-label names and out-of-band probe hosts are rejected.
func ValidateDomain(domain string) bool {
	domain = strings.TrimRight(strings.TrimSpace(domain), ".")
	if domain == "" || len(domain) > 253 || net.ParseIP(domain) != nil {
		return false
	}

	ascii, err := DomainToASCII(domain)
	if err != nil {
		return false
	}
	if strings.Contains(ascii, "..") || strings.HasPrefix(ascii, ".") || strings.HasPrefix(ascii, "-") {
		return false
	}

	labels := strings.Split(ascii, ".")
	if len(labels) < 2 || len(labels) > maxLabelDepth {
		return false
	}
	if !validateLabels(labels) || looksLikeSSRFProbe(ascii) {
		return false
	}
	return validateTLD(labels[len(labels)-1])
}

// RegistrableDomain returns the eTLD+1 of host, which is the unit WHOIS and
// RDAP answer for. It falls back to host when the suffix list has no entry.
func RegistrableDomain(host string) string {
	host = strings.ToLower(strings.TrimRight(host, "."))
	if reg, err := publicsuffix.EffectiveTLDPlusOne(host); err == nil {
		return reg
	}
	return host
}

var ssrfPatterns = []string{
	"ssrf", "qualysperiscope", "oastify", "burpcollaborator",
	"interact.sh", "canarytokens", "dnslog", "ceye.io",
	"bxss.me", "xss.ht",
}

func looksLikeSSRFProbe(domain string) bool {
	lower := strings.ToLower(domain)
	for _, pat := range ssrfPatterns {
		if strings.Contains(lower, pat) {
			return true
		}
	}

	longHex := 0
	for _, label := range strings.Split(lower, ".") {
		if len(label) >= 20 && hexLabelRegex.MatchString(label) {
			longHex++
		}
	}
	return longHex >= 2
}

func validateLabels(labels []string) bool {
	for _, label := range labels {
		if label == "" || len(label) > 63 {
			return false
		}
		if strings.HasPrefix(label, "-") || strings.HasSuffix(label, "-") {
			return false
		}
		if !labelRegex.MatchString(label) {
			return false
		}
	}
	return true
}

func validateTLD(tld string) bool {
	return tldRegex.MatchString(tld) || strings.HasPrefix(tld, "xn--")
}
