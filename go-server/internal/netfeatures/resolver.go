// Copyright (c) 2024-2026 IT Help San Diego Inc.
// Licensed under BUSL-1.1 — See LICENSE for terms.

// Package netfeatures resolves the URL features that need live network
// state. Every lookup is isolated: it runs concurrently with its own
// timeout and degrades to a fallback value on failure.
package netfeatures

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"net"
	"strings"
	"sync"
	"time"

	"websentinel/go-server/internal/dnsclient"
	"websentinel/go-server/internal/features"
	"websentinel/go-server/internal/telemetry"
)

const (
	LookupRegistration = "registration"
	LookupMX           = "dns_mx"
	LookupSPF          = "dns_txt_spf"
	LookupDMARC        = "dns_txt_dmarc"
	LookupA            = "dns_a"
	LookupNS           = "dns_ns"
	LookupTLS          = "tls_probe"
	LookupHTTP         = "http_head"
	LookupASN          = "asn"

	defaultLookupTimeout = 5 * time.Second
)

type DNSResolver interface {
	Resolve(ctx context.Context, recordType, domain string) (dnsclient.RecordWithTTL, error)
}

type HTTPProber interface {
	Head(ctx context.Context, rawURL string) (dnsclient.ProbeResult, error)
}

type TLSProber interface {
	ProbeTLS(ctx context.Context, host string) error
}

type RegistrationLookup interface {
	Lookup(ctx context.Context, host string) (Registration, error)
}

type ASNLookup interface {
	LookupASN(ip string) (uint, error)
}

// Observation is everything the network lookups learned about one URL.
type Observation struct {
	Registration Result[Registration]
	MX           Result[int]
	SPF          Result[bool]
	DMARC        Result[bool]
	A            Result[dnsclient.RecordWithTTL]
	NS           Result[int]
	TLS          Result[bool]
	HTTP         Result[dnsclient.ProbeResult]
	ASN          Result[uint]
}

type Resolver struct {
	dns       DNSResolver
	http      HTTPProber
	tls       TLSProber
	registrar RegistrationLookup
	asn       ASNLookup
	telemetry *telemetry.Registry
	logger    *slog.Logger
	timeout   time.Duration
}

type Option func(*Resolver)

func WithASN(a ASNLookup) Option {
	return func(r *Resolver) { r.asn = a }
}

func WithTelemetry(t *telemetry.Registry) Option {
	return func(r *Resolver) { r.telemetry = t }
}

func WithLogger(l *slog.Logger) Option {
	return func(r *Resolver) { r.logger = l }
}

// WithLookupTimeout bounds each individual lookup.
func WithLookupTimeout(d time.Duration) Option {
	return func(r *Resolver) {
		if d > 0 {
			r.timeout = d
		}
	}
}

func NewResolver(dns DNSResolver, http HTTPProber, tls TLSProber, registrar RegistrationLookup, opts ...Option) *Resolver {
	r := &Resolver{
		dns:       dns,
		http:      http,
		tls:       tls,
		registrar: registrar,
		telemetry: telemetry.NewRegistry(),
		logger:    slog.Default(),
		timeout:   defaultLookupTimeout,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Resolve runs every lookup for host concurrently and returns once all of
// them have finished or timed out. rawURL is the target of the HTTP probe.
func (r *Resolver) Resolve(ctx context.Context, host, rawURL string) Observation {
	host = strings.ToLower(strings.TrimSuffix(host, "."))
	var obs Observation
	var wg sync.WaitGroup

	spawn := func(fn func()) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn()
		}()
	}

	isIP := net.ParseIP(host) != nil
	dnsName := ""
	if !isIP && dnsclient.ValidateDomain(host) {
		dnsName, _ = dnsclient.DomainToASCII(host)
	}

	spawn(func() {
		obs.TLS = run(ctx, r, LookupTLS, func(ctx context.Context) (bool, error) {
			if err := r.tls.ProbeTLS(ctx, host); err != nil {
				return false, err
			}
			return true, nil
		})
	})
	spawn(func() {
		obs.HTTP = run(ctx, r, LookupHTTP, func(ctx context.Context) (dnsclient.ProbeResult, error) {
			return r.http.Head(ctx, rawURL)
		})
	})
	spawn(func() {
		if isIP {
			obs.A = succeeded(dnsclient.RecordWithTTL{Records: []string{host}})
		} else {
			obs.A = r.dnsLookup(ctx, LookupA, "A", dnsName)
		}
		obs.ASN = r.lookupASN(ctx, obs.A)
	})

	if dnsName == "" {
		reason := fmt.Errorf("%w: %q", ErrNotDomain, host)
		obs.Registration = failed[Registration](LookupRegistration, reason)
		obs.MX = failed[int](LookupMX, reason)
		obs.SPF = failed[bool](LookupSPF, reason)
		obs.DMARC = failed[bool](LookupDMARC, reason)
		obs.NS = failed[int](LookupNS, reason)
		wg.Wait()
		return obs
	}

	spawn(func() {
		obs.Registration = run(ctx, r, LookupRegistration, func(ctx context.Context) (Registration, error) {
			return r.registrar.Lookup(ctx, dnsName)
		})
	})
	spawn(func() {
		obs.MX = countOf(r.dnsLookup(ctx, LookupMX, "MX", dnsName))
	})
	spawn(func() {
		obs.NS = countOf(r.dnsLookup(ctx, LookupNS, "NS", dnsName))
	})
	spawn(func() {
		obs.SPF = containsRecord(r.dnsLookup(ctx, LookupSPF, "TXT", dnsName), "v=spf1")
	})
	spawn(func() {
		obs.DMARC = containsRecord(r.dnsLookup(ctx, LookupDMARC, "TXT", "_dmarc."+dnsName), "v=dmarc1")
	})

	wg.Wait()
	return obs
}

func (r *Resolver) dnsLookup(ctx context.Context, name, recordType, domain string) Result[dnsclient.RecordWithTTL] {
	return run(ctx, r, name, func(ctx context.Context) (dnsclient.RecordWithTTL, error) {
		return r.dns.Resolve(ctx, recordType, domain)
	})
}

func (r *Resolver) lookupASN(ctx context.Context, a Result[dnsclient.RecordWithTTL]) Result[uint] {
	if r.asn == nil {
		return failed[uint](LookupASN, fmt.Errorf("%w: no ASN database configured", ErrNoData))
	}
	if !a.OK() || len(a.Value.Records) == 0 {
		return failed[uint](LookupASN, fmt.Errorf("%w: no address to look up", ErrNoData))
	}
	ip := a.Value.Records[0]
	return run(ctx, r, LookupASN, func(context.Context) (uint, error) {
		return r.asn.LookupASN(ip)
	})
}

// run executes one lookup under its own timeout, recording telemetry and
// converting errors and panics into a LookupFailure. Telemetry is only
// reported here: a failure for one host never short-circuits another.
func run[T any](ctx context.Context, r *Resolver, name string, fn func(context.Context) (T, error)) Result[T] {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	start := time.Now()
	v, err := safeCall(ctx, fn)
	if err != nil {
		r.telemetry.RecordFailure(name, err.Error())
		r.logger.Warn("Lookup degraded to fallback", "lookup", name, "error", err)
		return failed[T](name, err)
	}
	r.telemetry.RecordSuccess(name, time.Since(start))
	return succeeded(v)
}

func safeCall[T any](ctx context.Context, fn func(context.Context) (T, error)) (v T, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("lookup panicked: %v", p)
		}
	}()
	return fn(ctx)
}

func countOf(res Result[dnsclient.RecordWithTTL]) Result[int] {
	if !res.OK() {
		return Result[int]{Failure: res.Failure}
	}
	return succeeded(len(res.Value.Records))
}

func containsRecord(res Result[dnsclient.RecordWithTTL], marker string) Result[bool] {
	if !res.OK() {
		return Result[bool]{Failure: res.Failure}
	}
	for _, rec := range res.Value.Records {
		if strings.Contains(strings.ToLower(rec), marker) {
			return succeeded(true)
		}
	}
	return succeeded(false)
}

// Failures lists every lookup that fell back to its default.
func (o Observation) Failures() []*LookupFailure {
	var out []*LookupFailure
	for _, f := range []*LookupFailure{
		o.Registration.Failure, o.MX.Failure, o.SPF.Failure, o.DMARC.Failure,
		o.A.Failure, o.NS.Failure, o.TLS.Failure, o.HTTP.Failure, o.ASN.Failure,
	} {
		if f != nil {
			out = append(out, f)
		}
	}
	return out
}

// Features maps the observation onto schema features, substituting each
// lookup's fallback for failures.
func (o Observation) Features(now time.Time) map[string]float64 {
	f := make(map[string]float64, 11)

	reg := o.Registration.ValueOr(Registration{})
	f[features.FeatureDomainAge] = daysBetween(reg.Created, now)
	f[features.FeatureDomainExpiry] = daysBetween(now, reg.Expires)

	f[features.FeatureMXServers] = float64(o.MX.ValueOr(0))
	f[features.FeatureSPF] = boolValue(o.SPF.ValueOr(false))
	f[features.FeatureNameservers] = float64(o.NS.ValueOr(0))

	a := o.A.ValueOr(dnsclient.RecordWithTTL{})
	f[features.FeatureTTLHostname] = 0
	if a.TTL != nil {
		f[features.FeatureTTLHostname] = float64(*a.TTL)
	}
	f[features.FeatureIPResolved] = float64(len(a.Records))
	f[features.FeatureASN] = float64(o.ASN.ValueOr(0))

	f[features.FeatureTLS] = boolValue(o.TLS.ValueOr(false))

	probe := o.HTTP.ValueOr(dnsclient.ProbeResult{})
	f[features.FeatureRedirects] = float64(probe.Redirects)
	f[features.FeatureTimeResponse] = math.Round(probe.Latency.Seconds()*1000) / 1000
	return f
}

// daysBetween returns whole days from from to to, or 0 if either is unknown.
func daysBetween(from, to time.Time) float64 {
	if from.IsZero() || to.IsZero() {
		return 0
	}
	return math.Floor(to.Sub(from).Hours() / 24)
}

func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
