// Copyright (c) 2024-2026 IT Help San Diego Inc.
// Licensed under BUSL-1.1 — See LICENSE for terms.
package dnsclient

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/miekg/dns"
)

func TestParseDohResponse(t *testing.T) {
	body := []byte(`{"Status":0,"Answer":[
		{"name":"example.com.","type":5,"TTL":60,"data":"alias.example.net."},
		{"name":"alias.example.net.","type":1,"TTL":300,"data":"93.184.216.34"},
		{"name":"alias.example.net.","type":1,"TTL":300,"data":"93.184.216.35"},
		{"name":"alias.example.net.","type":1,"TTL":300,"data":"93.184.216.35"}]}`)

	res, err := parseDohResponse(body, dns.TypeA)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Records) != 2 {
		t.Fatalf("expected 2 A records, got %v", res.Records)
	}
	if res.TTL == nil || *res.TTL != 300 {
		t.Errorf("expected TTL 300 from first A record, got %v", res.TTL)
	}
}

func TestParseDohResponseTXT(t *testing.T) {
	body := []byte(`{"Status":0,"Answer":[{"type":16,"TTL":3600,"data":"\"v=spf1 include:_spf.google.com \" \"~all\""}]}`)
	res, err := parseDohResponse(body, dns.TypeTXT)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Records) != 1 || res.Records[0] != "v=spf1 include:_spf.google.com ~all" {
		t.Errorf("unexpected TXT records %q", res.Records)
	}
}

func TestParseDohResponseStatuses(t *testing.T) {
	res, err := parseDohResponse([]byte(`{"Status":3}`), dns.TypeMX)
	if err != nil || len(res.Records) != 0 || res.TTL != nil {
		t.Errorf("NXDOMAIN should be an empty success, got %v %v", res, err)
	}

	if _, err := parseDohResponse([]byte(`{"Status":2}`), dns.TypeMX); !errors.Is(err, errDoHStatus) {
		t.Errorf("SERVFAIL should be an error, got %v", err)
	}
	if _, err := parseDohResponse([]byte(`not json`), dns.TypeMX); err == nil {
		t.Error("expected error for invalid JSON")
	}
}

func TestResolveUsesDoHAndCache(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		if r.URL.Query().Get("type") != "MX" || r.URL.Query().Get("name") != "example.com" {
			t.Errorf("unexpected query %s", r.URL.RawQuery)
		}
		w.Header().Set("Content-Type", "application/dns-json")
		w.Write([]byte(`{"Status":0,"Answer":[{"type":15,"TTL":120,"data":"10 mx1.example.com."},{"type":15,"TTL":120,"data":"20 mx2.example.com."}]}`))
	}))
	defer srv.Close()

	c := New(WithDoHURL(srv.URL), WithResolvers(nil), WithCacheTTL(time.Minute))
	defer c.Close()

	for i := 0; i < 3; i++ {
		res, err := c.Resolve(context.Background(), "mx", "example.com")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(res.Records) != 2 {
			t.Fatalf("expected 2 MX records, got %v", res.Records)
		}
	}
	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Errorf("expected one DoH call with caching, got %d", n)
	}
}

func TestResolveReportsTotalFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := New(WithDoHURL(srv.URL), WithResolvers(nil))
	if _, err := c.Resolve(context.Background(), "A", "example.com"); err == nil {
		t.Error("expected error when every transport fails")
	}
	if got := c.QueryDNS(context.Background(), "A", "example.com"); got != nil {
		t.Errorf("QueryDNS should return nil on failure, got %v", got)
	}
}

func TestResolveRejectsBadInput(t *testing.T) {
	c := New(WithDoHURL(""), WithResolvers(nil))
	if _, err := c.Resolve(context.Background(), "BOGUS", "example.com"); !errors.Is(err, ErrUnsupportedType) {
		t.Errorf("expected ErrUnsupportedType, got %v", err)
	}
	if _, err := c.Resolve(context.Background(), "A", ""); err == nil {
		t.Error("expected error for empty domain")
	}
}

func TestRRToString(t *testing.T) {
	mx, err := dns.NewRR("example.com. 300 IN MX 10 mail.example.com.")
	if err != nil {
		t.Fatal(err)
	}
	if got := rrToString(mx); got != "10 mail.example.com." {
		t.Errorf("unexpected MX string %q", got)
	}

	txt, err := dns.NewRR(`example.com. 300 IN TXT "v=spf1 " "-all"`)
	if err != nil {
		t.Fatal(err)
	}
	if got := rrToString(txt); got != "v=spf1 -all" {
		t.Errorf("unexpected TXT string %q", got)
	}
}
