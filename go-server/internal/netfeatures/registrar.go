// Copyright (c) 2024-2026 IT Help San Diego Inc.
// Licensed under BUSL-1.1 — See LICENSE for terms.
package netfeatures

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/likexian/whois"

	"websentinel/go-server/internal/cache"
	"websentinel/go-server/internal/dnsclient"
	"websentinel/go-server/internal/telemetry"
)

const (
	registrationTTL     = 24 * time.Hour
	ianaBootstrapURL    = "https://data.iana.org/rdap/dns.json"
	rdapFallbackURL     = "https://rdap.org/"
	bootstrapRetry      = 5 * time.Minute
	maxRegistryResponse = 1 << 20
)

var directRDAPEndpoints = map[string]string{
	"com":  "https://rdap.verisign.com/com/v1/",
	"net":  "https://rdap.verisign.com/net/v1/",
	"org":  "https://rdap.publicinterestregistry.net/rdap/",
	"io":   "https://rdap.nic.io/",
	"dev":  "https://rdap.nic.google/",
	"app":  "https://rdap.nic.google/",
	"uk":   "https://rdap.nominet.uk/uk/",
	"nl":   "https://rdap.sidn.nl/rdap/",
	"cc":   "https://rdap.verisign.com/cc/v1/",
	"xyz":  "https://rdap.centralnic.com/xyz/",
	"co":   "https://rdap.nic.co/",
	"info": "https://rdap.afilias.net/rdap/info/",
	"top":  "https://rdap.nic.top/",
}

var (
	whoisCreatedRe = regexp.MustCompile(`(?im)^\s*(?:creation date|created(?: on)?|created date|registered(?: on)?|registration time|registration date|domain registration date)\s*:\s*(.+)$`)
	whoisExpiresRe = regexp.MustCompile(`(?im)^\s*(?:registry expiry date|registrar registration expiration date|expir(?:y|ation) date|expires(?: on)?|expire date|paid-till)\s*:\s*(.+)$`)

	whoisDateLayouts = []string{
		time.RFC3339,
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05",
		"2006-01-02",
		"02-Jan-2006",
		"2006.01.02",
		"2006/01/02",
		"02.01.2006",
	}

	whoisRestrictedIndicators = []string{
		"not authorised", "not authorized", "access denied",
		"query rate limit exceeded", "too many queries",
		"exceeded the established limit",
	}
)

// Registration holds the registry dates for a registrable domain.
type Registration struct {
	Created time.Time `json:"created"`
	Expires time.Time `json:"expires"`
	Source  string    `json:"source"`
}

type httpGetter interface {
	Get(ctx context.Context, rawURL string) (*http.Response, error)
}

type whoisQuerier interface {
	Whois(domain string, servers ...string) (string, error)
}

// Registrar looks up registration and expiration dates over RDAP first and
// port-43 WHOIS second. Results are cached per registrable domain.
type Registrar struct {
	http      httpGetter
	whois     whoisQuerier
	store     cache.Store
	telemetry *telemetry.Registry
	logger    *slog.Logger

	endpoints    map[string]string
	bootstrapURL string

	// bootstrapTLDs stays nil until one fetch succeeds; failed fetches are
	// retried once bootstrapRetry has passed since the last attempt.
	bootstrapMu      sync.RWMutex
	bootstrapTLDs    map[string][]string
	bootstrapTried   time.Time
	bootstrapBackoff time.Duration
}

type RegistrarOption func(*Registrar)

func WithRDAPEndpoints(endpoints map[string]string) RegistrarOption {
	return func(r *Registrar) { r.endpoints = endpoints }
}

// WithBootstrapURL sets the IANA RDAP bootstrap file. Empty disables it.
func WithBootstrapURL(u string) RegistrarOption {
	return func(r *Registrar) { r.bootstrapURL = u }
}

func WithWhoisClient(w whoisQuerier) RegistrarOption {
	return func(r *Registrar) { r.whois = w }
}

func WithRegistrationStore(s cache.Store) RegistrarOption {
	return func(r *Registrar) { r.store = s }
}

func WithRegistrarTelemetry(t *telemetry.Registry) RegistrarOption {
	return func(r *Registrar) { r.telemetry = t }
}

func WithRegistrarLogger(l *slog.Logger) RegistrarOption {
	return func(r *Registrar) { r.logger = l }
}

func NewRegistrar(client httpGetter, timeout time.Duration, opts ...RegistrarOption) *Registrar {
	wc := whois.NewClient()
	wc.SetTimeout(timeout)

	r := &Registrar{
		http:             client,
		whois:            wc,
		telemetry:        telemetry.NewRegistry(),
		logger:           slog.Default(),
		endpoints:        directRDAPEndpoints,
		bootstrapURL:     ianaBootstrapURL,
		bootstrapBackoff: bootstrapRetry,
	}
	for _, o := range opts {
		o(r)
	}
	if r.store == nil {
		r.store = cache.NewMemory("registration", 500, registrationTTL)
	}
	return r
}

func (r *Registrar) Lookup(ctx context.Context, host string) (Registration, error) {
	domain := dnsclient.RegistrableDomain(host)
	key := "registration:" + domain

	var reg Registration
	if cache.GetJSON(ctx, r.store, key, &reg) {
		r.logger.Debug("Registration cache hit", "domain", domain)
		return reg, nil
	}

	reg, rdapErr := r.rdapLookup(ctx, domain)
	if rdapErr != nil {
		var whoisErr error
		reg, whoisErr = r.whoisLookup(ctx, domain)
		if whoisErr != nil {
			return Registration{}, fmt.Errorf("registration for %s: %w", domain, errors.Join(rdapErr, whoisErr))
		}
	}

	cache.SetJSON(ctx, r.store, key, reg, registrationTTL)
	return reg, nil
}

type rdapDomain struct {
	ErrorCode int `json:"errorCode"`
	Events    []struct {
		Action string `json:"eventAction"`
		Date   string `json:"eventDate"`
	} `json:"events"`
}

func (r *Registrar) rdapLookup(ctx context.Context, domain string) (Registration, error) {
	tld := tldOf(domain)
	provider := "rdap:" + tld
	if r.telemetry.InCooldown(provider) {
		r.telemetry.RecordSkipped(provider)
		return Registration{}, fmt.Errorf("%s: %w", provider, ErrCooldown)
	}

	rdapURL := fmt.Sprintf("%s/domain/%s", strings.TrimRight(r.endpointFor(ctx, tld), "/"), domain)
	start := time.Now()
	reg, err := r.fetchRDAP(ctx, rdapURL)
	if errors.Is(err, ErrNoData) {
		// The registry answered; it just has nothing for this domain.
		r.telemetry.RecordSuccess(provider, time.Since(start))
		r.logger.Debug("RDAP has no registration data", "url", rdapURL, "error", err)
		return Registration{}, fmt.Errorf("rdap: %w", err)
	}
	if err != nil {
		r.telemetry.RecordFailure(provider, err.Error())
		r.logger.Debug("RDAP lookup failed", "url", rdapURL, "error", err)
		return Registration{}, fmt.Errorf("rdap: %w", err)
	}
	r.telemetry.RecordSuccess(provider, time.Since(start))
	return reg, nil
}

func (r *Registrar) fetchRDAP(ctx context.Context, rdapURL string) (Registration, error) {
	resp, err := r.http.Get(ctx, rdapURL)
	if err != nil {
		return Registration{}, err
	}
	body, err := dnsclient.ReadBody(resp, maxRegistryResponse)
	if err != nil {
		return Registration{}, err
	}
	if resp.StatusCode == http.StatusNotFound {
		return Registration{}, fmt.Errorf("%w: HTTP 404", ErrNoData)
	}
	if resp.StatusCode >= 400 {
		return Registration{}, fmt.Errorf("HTTP %d", resp.StatusCode)
	}

	var data rdapDomain
	if err := json.Unmarshal(body, &data); err != nil {
		return Registration{}, fmt.Errorf("invalid JSON: %w", err)
	}
	if data.ErrorCode == http.StatusNotFound {
		return Registration{}, fmt.Errorf("%w: RDAP error 404", ErrNoData)
	}
	if data.ErrorCode != 0 {
		return Registration{}, fmt.Errorf("RDAP error %d", data.ErrorCode)
	}

	reg := Registration{Source: "RDAP"}
	for _, ev := range data.Events {
		ts, ok := parseRegistryDate(ev.Date)
		if !ok {
			continue
		}
		switch strings.ToLower(ev.Action) {
		case "registration":
			reg.Created = ts
		case "expiration":
			reg.Expires = ts
		}
	}
	if reg.Created.IsZero() && reg.Expires.IsZero() {
		return Registration{}, ErrNoData
	}
	return reg, nil
}

func (r *Registrar) endpointFor(ctx context.Context, tld string) string {
	if ep := r.endpoints[tld]; ep != "" {
		return ep
	}
	if r.bootstrapURL != "" {
		if eps := r.bootstrapEndpoints(ctx, tld); len(eps) > 0 {
			return eps[0]
		}
	}
	return rdapFallbackURL
}

func (r *Registrar) bootstrapEndpoints(ctx context.Context, tld string) []string {
	r.bootstrapMu.RLock()
	if r.bootstrapTLDs != nil || time.Since(r.bootstrapTried) < r.bootstrapBackoff {
		defer r.bootstrapMu.RUnlock()
		return r.bootstrapTLDs[tld]
	}
	r.bootstrapMu.RUnlock()

	r.bootstrapMu.Lock()
	defer r.bootstrapMu.Unlock()

	if r.bootstrapTLDs == nil && time.Since(r.bootstrapTried) >= r.bootstrapBackoff {
		r.bootstrapTried = time.Now()
		tlds, err := r.loadBootstrap(ctx)
		if err != nil {
			r.logger.Warn("Failed to load IANA RDAP data", "error", err, "retry_in", r.bootstrapBackoff)
		} else {
			r.bootstrapTLDs = tlds
			r.logger.Info("Loaded IANA RDAP map", "tld_count", len(tlds))
		}
	}
	return r.bootstrapTLDs[tld]
}

func (r *Registrar) loadBootstrap(ctx context.Context) (map[string][]string, error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	resp, err := r.http.Get(ctx, r.bootstrapURL)
	if err != nil {
		return nil, err
	}
	body, err := dnsclient.ReadBody(resp, maxRegistryResponse)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d", resp.StatusCode)
	}

	var data struct {
		Services [][][]string `json:"services"`
	}
	if err := json.Unmarshal(body, &data); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}

	tlds := make(map[string][]string)
	for _, svc := range data.Services {
		if len(svc) != 2 || len(svc[1]) == 0 {
			continue
		}
		for _, tld := range svc[0] {
			tlds[strings.ToLower(tld)] = svc[1]
		}
	}
	if len(tlds) == 0 {
		return nil, fmt.Errorf("%w: empty bootstrap file", ErrNoData)
	}
	return tlds, nil
}

func (r *Registrar) whoisLookup(ctx context.Context, domain string) (Registration, error) {
	type answer struct {
		text string
		err  error
	}
	ch := make(chan answer, 1)
	go func() {
		text, err := r.whois.Whois(domain)
		ch <- answer{text, err}
	}()

	select {
	case <-ctx.Done():
		return Registration{}, fmt.Errorf("whois: %w", ctx.Err())
	case a := <-ch:
		if a.err != nil {
			return Registration{}, fmt.Errorf("whois: %w", a.err)
		}
		return parseWhoisDates(a.text)
	}
}

func parseWhoisDates(text string) (Registration, error) {
	if isWhoisRestricted(text) {
		return Registration{}, errors.New("whois: registry restricted or rate limited")
	}
	reg := Registration{Source: "WHOIS"}
	if m := whoisCreatedRe.FindStringSubmatch(text); m != nil {
		reg.Created, _ = parseRegistryDate(m[1])
	}
	if m := whoisExpiresRe.FindStringSubmatch(text); m != nil {
		reg.Expires, _ = parseRegistryDate(m[1])
	}
	if reg.Created.IsZero() && reg.Expires.IsZero() {
		return Registration{}, fmt.Errorf("whois: %w", ErrNoData)
	}
	return reg, nil
}

func isWhoisRestricted(text string) bool {
	if len(strings.TrimSpace(text)) < 50 {
		return true
	}
	lower := strings.ToLower(text)
	for _, indicator := range whoisRestrictedIndicators {
		if strings.Contains(lower, indicator) {
			return true
		}
	}
	return false
}

// parseRegistryDate accepts the date formats registries commonly emit,
// ignoring trailing annotations after the date.
func parseRegistryDate(value string) (time.Time, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, false
	}
	candidates := []string{value}
	if fields := strings.Fields(value); len(fields) > 1 {
		candidates = append(candidates, fields[0]+" "+fields[1], fields[0])
	}
	for _, c := range candidates {
		for _, layout := range whoisDateLayouts {
			if ts, err := time.Parse(layout, c); err == nil {
				return ts.UTC(), true
			}
		}
	}
	return time.Time{}, false
}

func tldOf(domain string) string {
	if i := strings.LastIndex(domain, "."); i >= 0 {
		return domain[i+1:]
	}
	return domain
}
