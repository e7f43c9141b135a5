package netfeatures

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"websentinel/go-server/internal/dnsclient"
	"websentinel/go-server/internal/features"
	"websentinel/go-server/internal/telemetry"
)

var errUnreachable = errors.New("network unreachable")

type fakeDNS struct {
	answers map[string]dnsclient.RecordWithTTL
	err     error
	calls   int32
}

func (f *fakeDNS) Resolve(_ context.Context, recordType, domain string) (dnsclient.RecordWithTTL, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.err != nil {
		return dnsclient.RecordWithTTL{}, f.err
	}
	return f.answers[recordType+" "+domain], nil
}

type fakeHTTP struct {
	res dnsclient.ProbeResult
	err error
}

func (f fakeHTTP) Head(context.Context, string) (dnsclient.ProbeResult, error) {
	return f.res, f.err
}

type fakeTLS struct{ err error }

func (f fakeTLS) ProbeTLS(context.Context, string) error { return f.err }

type fakeRegistrar struct {
	reg Registration
	err error
}

func (f fakeRegistrar) Lookup(context.Context, string) (Registration, error) {
	return f.reg, f.err
}

type fakeASN struct{}

func (fakeASN) LookupASN(ip string) (uint, error) {
	if ip == "93.184.216.34" {
		return 15133, nil
	}
	return 0, ErrNoData
}

type blockingTLS struct{}

func (blockingTLS) ProbeTLS(ctx context.Context, _ string) error {
	<-ctx.Done()
	return ctx.Err()
}

type panickingRegistrar struct{}

func (panickingRegistrar) Lookup(context.Context, string) (Registration, error) {
	panic("registry parser bug")
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func ttl(v uint32) *uint32 { return &v }

func healthyDNS() *fakeDNS {
	return &fakeDNS{answers: map[string]dnsclient.RecordWithTTL{
		"A example.com":          {Records: []string{"93.184.216.34", "93.184.216.35"}, TTL: ttl(300)},
		"MX example.com":         {Records: []string{"10 mx1.example.com.", "20 mx2.example.com."}},
		"NS example.com":         {Records: []string{"a.iana-servers.net.", "b.iana-servers.net."}},
		"TXT example.com":        {Records: []string{"google-site-verification=abc", "V=SPF1 -all"}},
		"TXT _dmarc.example.com": {Records: []string{"v=DMARC1; p=reject"}},
	}}
}

func TestResolveAllLookupsSucceed(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	reg := Registration{
		Created: now.AddDate(0, 0, -400),
		Expires: now.AddDate(0, 0, 30),
		Source:  "RDAP",
	}
	r := NewResolver(
		healthyDNS(),
		fakeHTTP{res: dnsclient.ProbeResult{StatusCode: 200, Redirects: 2, Latency: 1234 * time.Millisecond}},
		fakeTLS{},
		fakeRegistrar{reg: reg},
		WithASN(fakeASN{}),
		WithLogger(quietLogger()),
	)

	obs := r.Resolve(context.Background(), "Example.com.", "https://example.com")
	assert.Empty(t, obs.Failures())
	assert.True(t, obs.DMARC.Value)

	f := obs.Features(now)
	assert.Equal(t, 400.0, f[features.FeatureDomainAge])
	assert.Equal(t, 30.0, f[features.FeatureDomainExpiry])
	assert.Equal(t, 2.0, f[features.FeatureMXServers])
	assert.Equal(t, 1.0, f[features.FeatureSPF])
	assert.Equal(t, 300.0, f[features.FeatureTTLHostname])
	assert.Equal(t, 2.0, f[features.FeatureIPResolved])
	assert.Equal(t, 2.0, f[features.FeatureNameservers])
	assert.Equal(t, 15133.0, f[features.FeatureASN])
	assert.Equal(t, 1.0, f[features.FeatureTLS])
	assert.Equal(t, 2.0, f[features.FeatureRedirects])
	assert.Equal(t, 1.234, f[features.FeatureTimeResponse])

	_, err := features.Assemble(f)
	require.NoError(t, err)
}

func TestResolveTotalFailureUsesFallbacks(t *testing.T) {
	r := NewResolver(
		&fakeDNS{err: errUnreachable},
		fakeHTTP{err: errUnreachable},
		fakeTLS{err: errUnreachable},
		fakeRegistrar{err: errUnreachable},
		WithLogger(quietLogger()),
	)

	obs := r.Resolve(context.Background(), "example.com", "https://example.com")
	assert.Len(t, obs.Failures(), 9)

	for name, v := range obs.Features(time.Now()) {
		assert.Zero(t, v, "feature %s should fall back to 0", name)
	}
	for _, f := range obs.Failures() {
		if f.Lookup != LookupASN {
			assert.ErrorIs(t, f, errUnreachable, f.Lookup)
		}
	}
}

func TestResolveIPLiteralSkipsDNS(t *testing.T) {
	dns := healthyDNS()
	r := NewResolver(dns, fakeHTTP{}, fakeTLS{err: errUnreachable}, fakeRegistrar{}, WithLogger(quietLogger()))

	obs := r.Resolve(context.Background(), "192.168.0.1", "http://192.168.0.1/login")
	assert.Equal(t, int32(0), atomic.LoadInt32(&dns.calls))
	assert.ErrorIs(t, obs.MX.Failure, ErrNotDomain)
	assert.ErrorIs(t, obs.Registration.Failure, ErrNotDomain)

	f := obs.Features(time.Now())
	assert.Equal(t, 1.0, f[features.FeatureIPResolved])
	assert.Equal(t, 0.0, f[features.FeatureTLS])
}

func TestResolveBoundsSlowLookups(t *testing.T) {
	r := NewResolver(healthyDNS(), fakeHTTP{}, blockingTLS{}, fakeRegistrar{},
		WithLookupTimeout(50*time.Millisecond), WithLogger(quietLogger()))

	start := time.Now()
	obs := r.Resolve(context.Background(), "example.com", "https://example.com")
	assert.Less(t, time.Since(start), 2*time.Second)
	require.NotNil(t, obs.TLS.Failure)
	assert.ErrorIs(t, obs.TLS.Failure, context.DeadlineExceeded)
	assert.True(t, obs.MX.OK())
}

func TestResolveRecoversPanickingLookup(t *testing.T) {
	r := NewResolver(healthyDNS(), fakeHTTP{}, fakeTLS{}, panickingRegistrar{}, WithLogger(quietLogger()))

	obs := r.Resolve(context.Background(), "example.com", "https://example.com")
	require.NotNil(t, obs.Registration.Failure)
	assert.Contains(t, obs.Registration.Failure.Error(), "panicked")
	assert.Equal(t, 0.0, obs.Features(time.Now())[features.FeatureDomainAge])
}

type onlyHostTLS string

func (h onlyHostTLS) ProbeTLS(_ context.Context, host string) error {
	if host != string(h) {
		return errUnreachable
	}
	return nil
}

type onlyHostRegistrar struct {
	host string
	reg  Registration
}

func (f onlyHostRegistrar) Lookup(_ context.Context, host string) (Registration, error) {
	if host != f.host {
		return Registration{}, ErrNoData
	}
	return f.reg, nil
}

func TestResolveIgnoresEarlierFailuresForOtherHosts(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	reg := telemetry.NewRegistry()
	r := NewResolver(healthyDNS(), fakeHTTP{}, onlyHostTLS("example.com"),
		onlyHostRegistrar{host: "example.com", reg: Registration{Created: now.AddDate(-20, 0, 0)}},
		WithTelemetry(reg), WithLogger(quietLogger()))

	before := r.Resolve(context.Background(), "example.com", "https://example.com").Features(now)
	for _, dead := range []string{"dead1.test", "dead2.test", "dead3.test", "dead4.test"} {
		r.Resolve(context.Background(), dead, "https://"+dead)
	}
	require.True(t, reg.InCooldown(LookupTLS))

	obs := r.Resolve(context.Background(), "example.com", "https://example.com")
	after := obs.Features(now)

	assert.Nil(t, obs.TLS.Failure)
	assert.Nil(t, obs.Registration.Failure)
	assert.Equal(t, before[features.FeatureTLS], after[features.FeatureTLS])
	assert.Equal(t, before[features.FeatureDomainAge], after[features.FeatureDomainAge])
	assert.Equal(t, 1.0, after[features.FeatureTLS])
	assert.Equal(t, int64(0), reg.Stats(LookupTLS).Skipped)
}

func TestResultValueOr(t *testing.T) {
	ok := succeeded(3)
	assert.Equal(t, 3, ok.ValueOr(7))
	bad := failed[int]("dns_mx", errUnreachable)
	assert.Equal(t, 7, bad.ValueOr(7))
	assert.False(t, bad.OK())
	assert.EqualError(t, bad.Failure, "dns_mx: network unreachable")
}
