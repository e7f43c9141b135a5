// Copyright (c) 2024-2026 IT Help San Diego Inc.
// Licensed under BUSL-1.1 — See LICENSE for terms.

// Package scanner recognizes hosts that belong to out-of-band interaction
// services, request catchers, tunnels and scanning infrastructure. Phishing
// kits and exploit payloads often point at these instead of a real site.
package scanner

import (
	"regexp"
	"strings"
)

type Classification struct {
	Matched bool
	Source  string
	Kind    string
}

const (
	KindOAST      = "oast"
	KindTunnel    = "tunnel"
	KindCatcher   = "request_catcher"
	KindScanner   = "scanner"
	KindHeuristic = "heuristic"
)

var knownHosts = []struct {
	suffix string
	source string
	kind   string
}{
	{"burpcollaborator.net", "Burp Collaborator", KindOAST},
	{"oastify.com", "Burp Suite OAST", KindOAST},
	{"interact.sh", "Interactsh", KindOAST},
	{"oast.fun", "Interactsh", KindOAST},
	{"oast.me", "Interactsh", KindOAST},
	{"oast.pro", "Interactsh", KindOAST},
	{"oast.live", "Interactsh", KindOAST},
	{"oast.site", "Interactsh", KindOAST},
	{"oast.online", "Interactsh", KindOAST},
	{"bxss.me", "Blind XSS Hunter", KindOAST},
	{"canarytokens.com", "Canary Tokens", KindOAST},
	{"dnslog.cn", "DNSLog", KindOAST},
	{"dnslog.link", "DNSLog", KindOAST},
	{"ceye.io", "CEYE", KindOAST},
	{"r87.me", "r87 OAST", KindOAST},
	{"ngrok.io", "ngrok", KindTunnel},
	{"ngrok-free.app", "ngrok", KindTunnel},
	{"trycloudflare.com", "Cloudflare Tunnel", KindTunnel},
	{"loca.lt", "localtunnel", KindTunnel},
	{"serveo.net", "Serveo", KindTunnel},
	{"webhook.site", "Webhook.site", KindCatcher},
	{"requestbin.net", "RequestBin", KindCatcher},
	{"pipedream.net", "Pipedream", KindCatcher},
	{"qualysperiscope.com", "Qualys Periscope", KindScanner},
	{"shodan.io", "Shodan", KindScanner},
	{"censys.io", "Censys", KindScanner},
	{"projectdiscovery.io", "ProjectDiscovery", KindScanner},
}

var hexLabelPattern = regexp.MustCompile(`^[0-9a-f]{12,}$`)

// Classify matches host against the known services, then against the
// deep random-hex label pattern interaction payloads use.
func Classify(host string) Classification {
	host = strings.ToLower(strings.TrimSuffix(host, "."))
	if host == "" {
		return Classification{}
	}

	for _, entry := range knownHosts {
		if host == entry.suffix || strings.HasSuffix(host, "."+entry.suffix) {
			return Classification{Matched: true, Source: entry.source, Kind: entry.kind}
		}
	}

	if isHeuristicProbe(host) {
		return Classification{Matched: true, Source: "Heuristic (automated probe pattern)", Kind: KindHeuristic}
	}
	return Classification{}
}

func isHeuristicProbe(host string) bool {
	labels := strings.Split(host, ".")
	if len(labels) < 5 {
		return false
	}

	hexCount := 0
	for _, label := range labels {
		if hexLabelPattern.MatchString(label) {
			hexCount++
		}
	}
	return hexCount >= 2
}
