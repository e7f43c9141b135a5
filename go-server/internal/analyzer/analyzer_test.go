// Copyright (c) 2024-2026 IT Help San Diego Inc.
// Licensed under BUSL-1.1 — See LICENSE for terms.
package analyzer

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"websentinel/go-server/internal/dnsclient"
	"websentinel/go-server/internal/features"
	"websentinel/go-server/internal/netfeatures"
	"websentinel/go-server/internal/scoring"
	"websentinel/go-server/internal/scraper"
)

var errOffline = errors.New("network unreachable")

type fixedClassifier struct {
	p   float64
	err error
}

func (c fixedClassifier) Predict([]float64) (float64, error) { return c.p, c.err }
func (c fixedClassifier) InputSize() int                     { return len(features.Schema) }

func newTestScorer(t *testing.T, c scoring.Classifier) *scoring.Scorer {
	t.Helper()
	n := &scoring.Normalizer{
		Features: append([]string(nil), features.Schema...),
		Mean:     make([]float64, len(features.Schema)),
		Scale:    make([]float64, len(features.Schema)),
	}
	s, err := scoring.NewScorer(n, c)
	if err != nil {
		t.Fatalf("NewScorer: %v", err)
	}
	return s
}

type staticResolver struct {
	obs netfeatures.Observation
}

func (r staticResolver) Resolve(context.Context, string, string) netfeatures.Observation {
	return r.obs
}

type blockingResolver struct {
	release chan struct{}
}

func (r blockingResolver) Resolve(ctx context.Context, _, _ string) netfeatures.Observation {
	select {
	case <-r.release:
	case <-ctx.Done():
	}
	return netfeatures.Observation{}
}

type staticFetcher struct {
	text string
}

func (f staticFetcher) Fetch(context.Context, string) (scraper.Page, error) {
	return scraper.Page{Text: f.text}, nil
}

type staticFeed bool

func (f staticFeed) Listed(context.Context, string) bool { return bool(f) }

type offlineDNS struct{}

func (offlineDNS) Resolve(context.Context, string, string) (dnsclient.RecordWithTTL, error) {
	return dnsclient.RecordWithTTL{}, errOffline
}

type offlineHTTP struct{}

func (offlineHTTP) Head(context.Context, string) (dnsclient.ProbeResult, error) {
	return dnsclient.ProbeResult{}, errOffline
}

type offlineTLS struct{}

func (offlineTLS) ProbeTLS(context.Context, string) error { return errOffline }

type offlineRegistrar struct{}

func (offlineRegistrar) Lookup(context.Context, string) (netfeatures.Registration, error) {
	return netfeatures.Registration{}, errOffline
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func fixedClock() time.Time {
	return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
}

func healthyObservation() netfeatures.Observation {
	ttl := uint32(300)
	return netfeatures.Observation{
		Registration: netfeatures.Result[netfeatures.Registration]{Value: netfeatures.Registration{
			Created: time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC),
			Expires: time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC),
		}},
		MX:    netfeatures.Result[int]{Value: 2},
		SPF:   netfeatures.Result[bool]{Value: true},
		DMARC: netfeatures.Result[bool]{Value: true},
		A:     netfeatures.Result[dnsclient.RecordWithTTL]{Value: dnsclient.RecordWithTTL{Records: []string{"93.184.216.34"}, TTL: &ttl}},
		NS:    netfeatures.Result[int]{Value: 2},
		TLS:   netfeatures.Result[bool]{Value: true},
		HTTP:  netfeatures.Result[dnsclient.ProbeResult]{Value: dnsclient.ProbeResult{StatusCode: 200, Redirects: 1}},
		ASN:   netfeatures.Result[uint]{Value: 15133},
	}
}

func TestAnalyzeEmptyURL(t *testing.T) {
	a := New(newTestScorer(t, fixedClassifier{p: 0.5}), staticResolver{}, WithLogger(quietLogger()))
	for _, input := range []string{"", "   ", "http://"} {
		report, err := a.Analyze(context.Background(), input)
		var invalid *InvalidInputError
		if !errors.As(err, &invalid) {
			t.Errorf("Analyze(%q) error = %v, want InvalidInputError", input, err)
		}
		if report != nil {
			t.Errorf("Analyze(%q) returned a report", input)
		}
	}
}

func TestAnalyzeHealthyDomain(t *testing.T) {
	a := New(newTestScorer(t, fixedClassifier{p: 0.9}), staticResolver{obs: healthyObservation()},
		WithFetcher(staticFetcher{text: "Enter your PASSWORD. Buy this domain today."}),
		WithPhishFeed(staticFeed(true)),
		WithClock(fixedClock),
		WithLogger(quietLogger()),
	)

	report, err := a.Analyze(context.Background(), "https://Example.com/account")
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}

	if report.Domain != "example.com" {
		t.Errorf("Domain = %q", report.Domain)
	}
	if report.Probability != 0.3 {
		t.Errorf("Probability = %v, want 0.3 (0.9 * 0.8 * 0.7 * 0.6 rounded)", report.Probability)
	}
	if report.Label != LabelSafe || report.Verdict != VerdictLikelySafe || report.Risk != scoring.RiskLikelySafe {
		t.Errorf("verdict = %s/%s/%s", report.Label, report.Verdict, report.Risk)
	}
	if report.DomainAge != "26 years ago" {
		t.Errorf("DomainAge = %q", report.DomainAge)
	}
	if report.HTTPStatus != "200" {
		t.Errorf("HTTPStatus = %q", report.HTTPStatus)
	}
	if report.SPFDMARC != "SPF and DMARC found" {
		t.Errorf("SPFDMARC = %q", report.SPFDMARC)
	}
	if report.ParkedDomain != "Possibly Parked" {
		t.Errorf("ParkedDomain = %q", report.ParkedDomain)
	}
	if !report.OpenPhishListed {
		t.Error("OpenPhishListed = false")
	}
	if report.FreeHosted {
		t.Error("FreeHosted = true")
	}
	if report.CallbackService != "" {
		t.Errorf("CallbackService = %q", report.CallbackService)
	}
	if len(report.Reasons) != 1 || report.Reasons[0] != ReasonPhishingKeywords {
		t.Errorf("Reasons = %v", report.Reasons)
	}
	if report.TotalFeatures != len(features.Schema) {
		t.Errorf("TotalFeatures = %d", report.TotalFeatures)
	}
	if report.Features.Get(features.FeatureMXServers) != 2 || report.Features.Get(features.FeatureASN) != 15133 {
		t.Errorf("network features not merged: mx=%v asn=%v",
			report.Features.Get(features.FeatureMXServers), report.Features.Get(features.FeatureASN))
	}
	if len(report.DegradedLookups) != 0 {
		t.Errorf("DegradedLookups = %v", report.DegradedLookups)
	}
}

func TestAnalyzeSurvivesTotalNetworkFailure(t *testing.T) {
	resolver := netfeatures.NewResolver(offlineDNS{}, offlineHTTP{}, offlineTLS{}, offlineRegistrar{},
		netfeatures.WithLogger(quietLogger()))
	a := New(newTestScorer(t, fixedClassifier{p: 0.8}), resolver, WithLogger(quietLogger()))

	report, err := a.Analyze(context.Background(), "http://example.com")
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if report.Label != LabelMalicious || report.Verdict != VerdictHighRisk || report.Risk != scoring.RiskHigh {
		t.Errorf("verdict = %s/%s/%s", report.Label, report.Verdict, report.Risk)
	}
	if report.DomainAge != "Unknown" || report.HTTPStatus != "N/A" || report.SPFDMARC != "Not found" {
		t.Errorf("fallback descriptors = %q %q %q", report.DomainAge, report.HTTPStatus, report.SPFDMARC)
	}
	if report.ParkedDomain != "Not Parked" {
		t.Errorf("ParkedDomain = %q", report.ParkedDomain)
	}
	if len(report.Reasons) == 0 || report.Reasons[0] != ReasonMissingHTTPS {
		t.Errorf("Reasons = %v", report.Reasons)
	}
	if len(report.DegradedLookups) != 9 {
		t.Errorf("DegradedLookups = %v, want all 9", report.DegradedLookups)
	}
}

func TestAnalyzeFlagsCallbackServices(t *testing.T) {
	a := New(newTestScorer(t, fixedClassifier{p: 0.2}), staticResolver{}, WithLogger(quietLogger()))
	report, err := a.Analyze(context.Background(), "https://c58bduhe008dovpv.oast.fun/x")
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if report.CallbackService != "Interactsh" {
		t.Errorf("CallbackService = %q", report.CallbackService)
	}
}

func TestAnalyzeReasonPanicUsesInjectedLogger(t *testing.T) {
	var buf bytes.Buffer
	a := New(newTestScorer(t, fixedClassifier{p: 0.2}), staticResolver{},
		WithLogger(slog.New(slog.NewTextHandler(&buf, nil))))
	a.reasonFunc = func(string, string) []string { panic("bad keyword table") }

	report, err := a.Analyze(context.Background(), "https://example.com")
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if len(report.Reasons) != 1 || report.Reasons[0] != ReasonError {
		t.Errorf("Reasons = %v, want [%s]", report.Reasons, ReasonError)
	}
	if !strings.Contains(buf.String(), "Reason generation panicked") {
		t.Errorf("panic not logged through the analyzer logger: %q", buf.String())
	}
}

func TestAnalyzeMeasuresURLAsTyped(t *testing.T) {
	a := New(newTestScorer(t, fixedClassifier{p: 0.2}), staticResolver{}, WithLogger(quietLogger()))
	typed := "example.com/" + strings.Repeat("a", 60)

	report, err := a.Analyze(context.Background(), typed)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if got := report.Features.Get("length_url"); got != float64(len(typed)) {
		t.Errorf("length_url = %v, want %d", got, len(typed))
	}
	if got := report.Features.Get("domain_length"); got != 11 {
		t.Errorf("domain_length = %v, want 11", got)
	}
	for _, r := range report.Reasons {
		if r == ReasonURLLength {
			t.Errorf("%d-character input flagged as long: %v", len(typed), report.Reasons)
		}
	}
	if report.URL != "http://"+typed {
		t.Errorf("URL = %q", report.URL)
	}
}

func TestAnalyzeScoringFailureAborts(t *testing.T) {
	a := New(newTestScorer(t, fixedClassifier{err: errors.New("bad weights")}), staticResolver{}, WithLogger(quietLogger()))
	if _, err := a.Analyze(context.Background(), "example.com"); err == nil {
		t.Fatal("expected scoring error")
	}
}

func TestAnalyzeAtCapacity(t *testing.T) {
	release := make(chan struct{})
	a := New(newTestScorer(t, fixedClassifier{p: 0.1}), blockingResolver{release: release},
		WithMaxConcurrent(1), WithQueueTimeout(20*time.Millisecond), WithLogger(quietLogger()))

	done := make(chan error, 1)
	go func() {
		_, err := a.Analyze(context.Background(), "example.com")
		done <- err
	}()

	deadline := time.Now().Add(2 * time.Second)
	for a.InFlight() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}

	if _, err := a.Analyze(context.Background(), "example.org"); !errors.Is(err, ErrAtCapacity) {
		t.Errorf("second Analyze error = %v, want ErrAtCapacity", err)
	}

	close(release)
	if err := <-done; err != nil {
		t.Errorf("first Analyze: %v", err)
	}
	if a.InFlight() != 0 {
		t.Errorf("InFlight = %d after completion", a.InFlight())
	}
}

func TestVerdictBandsAreMonotonic(t *testing.T) {
	rank := map[string]int{LabelSafe: 0, LabelSuspicious: 1, LabelMalicious: 2}
	prev := -1
	for i := 0; i <= 100; i++ {
		label, _ := Verdict(float64(i) / 100)
		if rank[label] < prev {
			t.Fatalf("Verdict(%v) = %s dropped below previous band", float64(i)/100, label)
		}
		prev = rank[label]
	}

	tests := []struct {
		p       float64
		label   string
		display string
	}{
		{0, LabelSafe, VerdictLikelySafe},
		{0.5, LabelSafe, VerdictLikelySafe},
		{0.51, LabelSuspicious, VerdictSuspicious},
		{0.75, LabelSuspicious, VerdictSuspicious},
		{0.7501, LabelMalicious, VerdictHighRisk},
		{1, LabelMalicious, VerdictHighRisk},
	}
	for _, tt := range tests {
		label, display := Verdict(tt.p)
		if label != tt.label || display != tt.display {
			t.Errorf("Verdict(%v) = %s/%s, want %s/%s", tt.p, label, display, tt.label, tt.display)
		}
	}
}

func TestGenerateReasons(t *testing.T) {
	long := "https://example.com/" + strings.Repeat("a", 80)
	tests := []struct {
		name    string
		url     string
		content string
		want    []string
	}{
		{"plain http", "http://example.com", "", []string{ReasonMissingHTTPS}},
		{"clean https", "https://example.com", "welcome", []string{ReasonNone}},
		{"keywords", "https://example.com", "Please VERIFY your account", []string{ReasonPhishingKeywords}},
		{"keywords ignored in url", "https://example.com/login", "", []string{ReasonNone}},
		{"long", long, "", []string{ReasonURLLength}},
		{"all", "http://example.com/" + strings.Repeat("b", 80), "reset now", []string{ReasonMissingHTTPS, ReasonPhishingKeywords, ReasonURLLength}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := GenerateReasons(tt.url, tt.content)
			if strings.Join(got, "|") != strings.Join(tt.want, "|") {
				t.Errorf("GenerateReasons = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNormalizeURL(t *testing.T) {
	tests := []struct {
		in, url, host string
	}{
		{"example.com", "http://example.com", "example.com"},
		{"  HTTPS://WWW.Example.com:8443/x ", "HTTPS://WWW.Example.com:8443/x", "www.example.com:8443"},
		{"http://192.168.0.1/login", "http://192.168.0.1/login", "192.168.0.1"},
	}
	for _, tt := range tests {
		u, host, err := NormalizeURL(tt.in)
		if err != nil {
			t.Errorf("NormalizeURL(%q): %v", tt.in, err)
			continue
		}
		if u != tt.url || host != tt.host {
			t.Errorf("NormalizeURL(%q) = %q, %q", tt.in, u, host)
		}
	}

	if _, _, err := NormalizeURL("http://[::1"); err == nil {
		t.Error("expected error for malformed URL")
	}
}

func TestDescriptors(t *testing.T) {
	if !FreeHosted("myshop.wixsite.com") || !FreeHosted("blogspot.com") {
		t.Error("free hosting subdomain not detected")
	}
	if FreeHosted("notwordpress.com") || FreeHosted("example.com") {
		t.Error("false free hosting match")
	}

	yes := netfeatures.Result[bool]{Value: true}
	no := netfeatures.Result[bool]{}
	failedLookup := netfeatures.Result[bool]{Value: true, Failure: &netfeatures.LookupFailure{Lookup: "dns_txt_spf", Err: errOffline}}
	cases := []struct {
		spf, dmarc netfeatures.Result[bool]
		want       string
	}{
		{yes, yes, "SPF and DMARC found"},
		{yes, no, "SPF found"},
		{no, yes, "DMARC found"},
		{failedLookup, no, "Not found"},
	}
	for _, c := range cases {
		if got := SPFDMARC(c.spf, c.dmarc); got != c.want {
			t.Errorf("SPFDMARC = %q, want %q", got, c.want)
		}
	}

	if ParkedDomain("This PARKED DOMAIN is managed by") != "Possibly Parked" || ParkedDomain("") != "Not Parked" {
		t.Error("parked detection")
	}
}
