// Copyright (c) 2024-2026 IT Help San Diego Inc.
// Licensed under BUSL-1.1 — See LICENSE for terms.
package netfeatures

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"time"

	"websentinel/go-server/internal/dnsclient"
)

// TLSDialer completes a TLS handshake on port 443 with certificate
// verification on. Hosts resolving to a private or reserved address are
// refused before any connection is made.
type TLSDialer struct {
	Timeout time.Duration
}

func (d TLSDialer) ProbeTLS(ctx context.Context, host string) error {
	addrs, err := net.DefaultResolver.LookupHost(ctx, host)
	if err != nil {
		return err
	}
	if len(addrs) == 0 {
		return fmt.Errorf("%s: %w", host, ErrNoData)
	}
	for _, addr := range addrs {
		if dnsclient.IsPrivateIP(addr) {
			return fmt.Errorf("%s: %w", host, dnsclient.ErrPrivateTarget)
		}
	}

	dialer := &tls.Dialer{
		NetDialer: &net.Dialer{Timeout: d.Timeout},
		Config: &tls.Config{
			ServerName: host,
			MinVersion: tls.VersionTLS12,
		},
	}
	// Dial the vetted address so a second resolution cannot swap it.
	conn, err := dialer.DialContext(ctx, "tcp", net.JoinHostPort(addrs[0], "443"))
	if err != nil {
		return err
	}
	return conn.Close()
}
