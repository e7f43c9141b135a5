// Copyright (c) 2024-2026 IT Help San Diego Inc.
// Licensed under BUSL-1.1 — See LICENSE for terms.
package dnsclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/miekg/dns"

	"websentinel/go-server/internal/telemetry"
)

type ResolverConfig struct {
	Name string
	IP   string
}

var DefaultResolvers = []ResolverConfig{
	{Name: "Cloudflare", IP: "1.1.1.1"},
	{Name: "Google", IP: "8.8.8.8"},
	{Name: "Quad9", IP: "9.9.9.9"},
}

var UserAgent = "WebSentinel-URLScanner/1.0"

const (
	DefaultDoHURL  = "https://dns.google/resolve"
	defaultTimeout = 2 * time.Second
	cacheMaxSize   = 5000
)

var (
	ErrUnsupportedType = errors.New("unsupported record type")
	errDoHStatus       = errors.New("DoH server failure")
)

// RecordWithTTL is one answer set. TTL is the first matching record's TTL
// and is nil when the answer is empty.
type RecordWithTTL struct {
	Records []string
	TTL     *uint32
}

// Client resolves records over DNS-over-HTTPS first and then plain UDP
// against each configured resolver, falling back to TCP on truncation.
type Client struct {
	resolvers  []ResolverConfig
	httpClient *http.Client
	dohURL     string
	timeout    time.Duration
	cache      *telemetry.TTLCache[RecordWithTTL]
	logger     *slog.Logger
}

type Option func(*Client)

func WithResolvers(r []ResolverConfig) Option {
	return func(c *Client) { c.resolvers = r }
}

func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.httpClient = h }
}

// WithDoHURL sets the JSON DoH endpoint. An empty URL disables DoH.
func WithDoHURL(u string) Option {
	return func(c *Client) { c.dohURL = u }
}

func WithTimeout(t time.Duration) Option {
	return func(c *Client) { c.timeout = t }
}

func WithCacheTTL(t time.Duration) Option {
	return func(c *Client) {
		if t > 0 {
			c.cache = telemetry.NewTTLCache[RecordWithTTL]("dns", cacheMaxSize, t)
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

func New(opts ...Option) *Client {
	c := &Client{
		resolvers: DefaultResolvers,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        20,
				IdleConnTimeout:     30 * time.Second,
				MaxIdleConnsPerHost: 5,
			},
		},
		dohURL:  DefaultDoHURL,
		timeout: defaultTimeout,
		logger:  slog.Default(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Close releases the answer cache.
func (c *Client) Close() {
	if c.cache != nil {
		c.cache.Close()
	}
}

// Stats reports the answer cache. Counters stay zero when caching is off.
func (c *Client) Stats() telemetry.CacheStats {
	if c.cache == nil {
		return telemetry.CacheStats{Name: "dns"}
	}
	return c.cache.Stats()
}

func dnsTypeFromString(recordType string) (uint16, error) {
	qtype, ok := dns.StringToType[strings.ToUpper(recordType)]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnsupportedType, recordType)
	}
	return qtype, nil
}

func rrToString(rr dns.RR) string {
	switch v := rr.(type) {
	case *dns.A:
		return v.A.String()
	case *dns.AAAA:
		return v.AAAA.String()
	case *dns.MX:
		return fmt.Sprintf("%d %s", v.Preference, v.Mx)
	case *dns.TXT:
		return strings.Join(v.Txt, "")
	case *dns.NS:
		return v.Ns
	case *dns.CNAME:
		return v.Target
	default:
		return strings.TrimSpace(strings.TrimPrefix(rr.String(), rr.Header().String()))
	}
}

// Resolve returns the answer set for domain. An empty answer or NXDOMAIN is
// a successful, empty result. The error is non-nil only when no transport
// produced an answer at all.
func (c *Client) Resolve(ctx context.Context, recordType, domain string) (RecordWithTTL, error) {
	if domain == "" {
		return RecordWithTTL{}, errors.New("empty domain")
	}
	qtype, err := dnsTypeFromString(recordType)
	if err != nil {
		return RecordWithTTL{}, err
	}

	key := fmt.Sprintf("%s:%s", dns.TypeToString[qtype], strings.ToLower(domain))
	if c.cache != nil {
		if cached, ok := c.cache.Get(key); ok {
			return cached, nil
		}
	}

	var errs []error
	if c.dohURL != "" {
		res, err := c.dohQuery(ctx, domain, qtype)
		if err == nil {
			c.store(key, res)
			return res, nil
		}
		c.logger.Debug("DoH query failed", "domain", domain, "type", recordType, "error", err)
		errs = append(errs, err)
	}

	for _, resolver := range c.resolvers {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		res, err := c.exchange(ctx, domain, qtype, resolver.IP)
		if err == nil {
			c.store(key, res)
			return res, nil
		}
		c.logger.Debug("resolver error", "resolver", resolver.Name, "type", recordType, "domain", domain, "error", err)
		errs = append(errs, fmt.Errorf("%s: %w", resolver.Name, err))
	}

	return RecordWithTTL{}, fmt.Errorf("%s %s: %w", recordType, domain, errors.Join(errs...))
}

// QueryDNS returns the records of the given type, or nil on any failure.
func (c *Client) QueryDNS(ctx context.Context, recordType, domain string) []string {
	res, err := c.Resolve(ctx, recordType, domain)
	if err != nil {
		return nil
	}
	return res.Records
}

func (c *Client) store(key string, res RecordWithTTL) {
	if c.cache != nil {
		c.cache.Set(key, res)
	}
}

func (c *Client) exchange(ctx context.Context, domain string, qtype uint16, resolverIP string) (RecordWithTTL, error) {
	msg := new(dns.Msg)
	msg.SetQuestion(dns.Fqdn(domain), qtype)
	msg.RecursionDesired = true

	addr := net.JoinHostPort(resolverIP, "53")
	client := &dns.Client{Net: "udp", Timeout: c.timeout}
	r, _, err := client.ExchangeContext(ctx, msg, addr)
	if err == nil && r != nil && r.Truncated {
		c.logger.Debug("UDP answer truncated, retrying over TCP", "resolver", addr)
		client.Net = "tcp"
		r, _, err = client.ExchangeContext(ctx, msg, addr)
	}
	if err != nil {
		return RecordWithTTL{}, err
	}

	switch r.Rcode {
	case dns.RcodeSuccess, dns.RcodeNameError:
	default:
		return RecordWithTTL{}, fmt.Errorf("rcode %s", dns.RcodeToString[r.Rcode])
	}

	var res RecordWithTTL
	for _, rr := range r.Answer {
		if rr.Header().Rrtype != qtype {
			continue
		}
		s := rrToString(rr)
		if s == "" {
			continue
		}
		res.Records = append(res.Records, s)
		if res.TTL == nil {
			t := rr.Header().Ttl
			res.TTL = &t
		}
	}
	return res, nil
}

type dohResponse struct {
	Status int `json:"Status"`
	Answer []struct {
		Type uint16 `json:"type"`
		Data string `json:"data"`
		TTL  uint32 `json:"TTL"`
	} `json:"Answer"`
}

func (c *Client) dohQuery(ctx context.Context, domain string, qtype uint16) (RecordWithTTL, error) {
	q := url.Values{}
	q.Set("name", domain)
	q.Set("type", dns.TypeToString[qtype])

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.dohURL+"?"+q.Encode(), nil)
	if err != nil {
		return RecordWithTTL{}, err
	}
	req.Header.Set("Accept", "application/dns-json")
	req.Header.Set("User-Agent", UserAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return RecordWithTTL{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return RecordWithTTL{}, fmt.Errorf("DoH HTTP %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return RecordWithTTL{}, err
	}
	return parseDohResponse(body, qtype)
}

func parseDohResponse(body []byte, qtype uint16) (RecordWithTTL, error) {
	var data dohResponse
	if err := json.Unmarshal(body, &data); err != nil {
		return RecordWithTTL{}, fmt.Errorf("invalid DoH JSON: %w", err)
	}

	switch data.Status {
	case dns.RcodeSuccess, dns.RcodeNameError:
	default:
		return RecordWithTTL{}, fmt.Errorf("%w: status %d", errDoHStatus, data.Status)
	}

	var res RecordWithTTL
	seen := make(map[string]bool)
	for _, answer := range data.Answer {
		if answer.Type != 0 && answer.Type != qtype {
			continue
		}
		rd := strings.TrimSpace(answer.Data)
		if qtype == dns.TypeTXT {
			rd = strings.ReplaceAll(strings.Trim(rd, `"`), `" "`, "")
		}
		if rd == "" || seen[rd] {
			continue
		}
		seen[rd] = true
		res.Records = append(res.Records, rd)
		if res.TTL == nil {
			t := answer.TTL
			res.TTL = &t
		}
	}
	return res, nil
}
