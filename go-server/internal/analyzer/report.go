// Copyright (c) 2024-2026 IT Help San Diego Inc.
// Licensed under BUSL-1.1 — See LICENSE for terms.
package analyzer

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"websentinel/go-server/internal/dnsclient"
	"websentinel/go-server/internal/features"
	"websentinel/go-server/internal/netfeatures"
)

const (
	LabelMalicious  = "Malicious"
	LabelSuspicious = "Suspicious"
	LabelSafe       = "Safe"

	VerdictHighRisk   = "HIGH RISK"
	VerdictSuspicious = "SUSPICIOUS"
	VerdictLikelySafe = "LIKELY SAFE"

	maliciousAbove  = 0.75
	suspiciousAbove = 0.5

	unknownAge       = "Unknown"
	unknownStatus    = "N/A"
	parkedPossibly   = "Possibly Parked"
	parkedNot        = "Not Parked"
	spfAndDMARCFound = "SPF and DMARC found"
	spfFound         = "SPF found"
	dmarcFound       = "DMARC found"
	authNotFound     = "Not found"
)

var (
	freeHostingDomains = []string{"wordpress.com", "wixsite.com", "weebly.com", "blogspot.com"}
	parkedKeywords     = []string{"domain for sale", "parked domain", "buy this domain"}
)

// Report is the result of analyzing one URL.
type Report struct {
	URL              string   `json:"url"`
	Domain           string   `json:"domain"`
	Probability      float64  `json:"probability"`
	Label            string   `json:"label"`
	Verdict          string   `json:"verdict"`
	Risk             string   `json:"risk"`
	FeaturesDetected int      `json:"features_detected"`
	TotalFeatures    int      `json:"total_features"`
	Reasons          []string `json:"reasons"`
	DomainAge        string   `json:"domain_age"`
	HTTPStatus       string   `json:"http_status"`
	SPFDMARC         string   `json:"spf_dmarc"`
	FreeHosted       bool     `json:"free_hosted"`
	ParkedDomain     string   `json:"parked_domain"`
	OpenPhishListed  bool     `json:"openphish_listed"`
	CallbackService  string   `json:"callback_service,omitempty"`
	DegradedLookups  []string `json:"degraded_lookups,omitempty"`
	ElapsedMs        int64    `json:"elapsed_ms"`

	Features features.Vector `json:"-"`
}

// Verdict maps an adjusted probability to its label and display string.
// The thresholds are exclusive: exactly 0.75 is Suspicious, exactly 0.5 is Safe.
func Verdict(p float64) (label, display string) {
	switch {
	case p > maliciousAbove:
		return LabelMalicious, VerdictHighRisk
	case p > suspiciousAbove:
		return LabelSuspicious, VerdictSuspicious
	default:
		return LabelSafe, VerdictLikelySafe
	}
}

func roundProbability(p float64) float64 {
	return math.Round(p*100) / 100
}

// DomainAge renders whole years since creation, "Unknown" when the
// registration lookup failed.
func DomainAge(reg netfeatures.Result[netfeatures.Registration], now time.Time) string {
	created := reg.ValueOr(netfeatures.Registration{}).Created
	if created.IsZero() {
		return unknownAge
	}
	days := int(now.Sub(created).Hours() / 24)
	if days < 0 {
		days = 0
	}
	return fmt.Sprintf("%d years ago", days/365)
}

func HTTPStatus(probe netfeatures.Result[dnsclient.ProbeResult]) string {
	if !probe.OK() || probe.Value.StatusCode == 0 {
		return unknownStatus
	}
	return strconv.Itoa(probe.Value.StatusCode)
}

func SPFDMARC(spf, dmarc netfeatures.Result[bool]) string {
	hasSPF, hasDMARC := spf.ValueOr(false), dmarc.ValueOr(false)
	switch {
	case hasSPF && hasDMARC:
		return spfAndDMARCFound
	case hasSPF:
		return spfFound
	case hasDMARC:
		return dmarcFound
	default:
		return authNotFound
	}
}

// FreeHosted reports whether host is, or is a subdomain of, a free hosting
// platform.
func FreeHosted(host string) bool {
	host = strings.ToLower(strings.TrimSuffix(host, "."))
	for _, d := range freeHostingDomains {
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	return false
}

func ParkedDomain(content string) string {
	lower := strings.ToLower(content)
	for _, kw := range parkedKeywords {
		if strings.Contains(lower, kw) {
			return parkedPossibly
		}
	}
	return parkedNot
}
