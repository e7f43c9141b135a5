// Copyright (c) 2024-2026 IT Help San Diego Inc.
// Licensed under BUSL-1.1 — See LICENSE for terms.
package netfeatures

import (
	"fmt"
	"net"

	"github.com/oschwald/geoip2-golang"
)

// GeoIPASN reads autonomous system numbers from a MaxMind GeoLite2-ASN
// database.
type GeoIPASN struct {
	reader *geoip2.Reader
}

func OpenGeoIPASN(path string) (*GeoIPASN, error) {
	reader, err := geoip2.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open ASN database: %w", err)
	}
	return &GeoIPASN{reader: reader}, nil
}

func (g *GeoIPASN) LookupASN(ip string) (uint, error) {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return 0, fmt.Errorf("invalid IP address %q", ip)
	}
	record, err := g.reader.ASN(parsed)
	if err != nil {
		return 0, err
	}
	if record.AutonomousSystemNumber == 0 {
		return 0, ErrNoData
	}
	return uint(record.AutonomousSystemNumber), nil
}

func (g *GeoIPASN) Close() error {
	return g.reader.Close()
}
