// Copyright (c) 2024-2026 IT Help San Diego Inc.
// Licensed under BUSL-1.1 — See LICENSE for terms.
package features

import (
	"net/url"
	"regexp"
	"strings"
)

var ipLiteralRe = regexp.MustCompile(`^\d+\.\d+\.\d+\.\d+`)

type charFeature struct {
	name string
	char string
}

var countedChars = []charFeature{
	{"dot", "."}, {"hyphen", "-"}, {"underline", "_"}, {"slash", "/"},
	{"questionmark", "?"}, {"equal", "="}, {"at", "@"}, {"and", "&"},
	{"exclamation", "!"}, {"space", " "}, {"tilde", "~"}, {"comma", ","},
	{"plus", "+"}, {"asterisk", "*"}, {"hashtag", "#"}, {"dollar", "$"},
	{"percent", "%"},
}

var (
	knownTLDs                = []string{"com", "org", "net", "co", "in", "uk"}
	shortenerDomains         = []string{"bit.ly", "goo.gl", "tinyurl", "t.co"}
	impersonatedBrands       = []string{"amazon", "paypal", "google", "facebook"}
	suspiciousDomainKeywords = []string{"login", "secure", "update", "verify", "account"}
	suspiciousDirKeywords    = []string{"hidden", "bin", "temp", "download"}
	suspiciousFileExtensions = []string{"exe", "spc", "bat", "cmd", "dll"}
	malwareFileNames         = []string{"boatnet", "mirai", "gafgyt"}
	homoglyphReplacer        = strings.NewReplacer("0", "o", "1", "i")
)

// Segments is a URL split into the parts the lexical features count over.
type Segments struct {
	URL       string
	Domain    string
	Directory string
	File      string
	Params    string
	HasPath   bool
	Scheme    string
}

// Split never fails: a URL that does not parse keeps only its URL segment.
func Split(rawURL string) Segments {
	s := Segments{URL: rawURL}
	u, err := url.Parse(rawURL)
	if err != nil {
		return s
	}
	s.Scheme = strings.ToLower(u.Scheme)

	netloc := u.Host
	if u.User != nil {
		netloc = u.User.String() + "@" + netloc
	}
	s.Domain = strings.ToLower(netloc)

	// RawPath holds the path as typed when it differs from the default
	// escaping; otherwise the escaped form is the input itself.
	path := u.RawPath
	if path == "" {
		path = u.EscapedPath()
	}
	if path != "" {
		s.HasPath = true
		parts := strings.Split(path, "/")
		last := parts[len(parts)-1]
		if strings.Contains(last, ".") {
			s.File = last
			s.Directory = strings.Join(parts[:len(parts)-1], "/")
		} else {
			s.Directory = path
		}
	}
	s.Params = u.RawQuery
	return s
}

// Lexical returns a full schema Vector with only the lexical features set.
func Lexical(rawURL string) Vector {
	v, _ := Assemble(LexicalValues(rawURL), Defaults())
	return v
}

// Defaults holds features that carry a fixed non-zero value because no
// source computes them.
func Defaults() map[string]float64 {
	return map[string]float64{
		FeatureURLIndexed:    1,
		FeatureDomainIndexed: 1,
	}
}

// LexicalValues computes every feature derivable from the URL string alone.
func LexicalValues(rawURL string) map[string]float64 {
	return lexicalValues(Split(rawURL))
}

// InputLexicalValues is LexicalValues for a URL the caller completed before
// parsing, such as by adding a scheme. Whole-URL features count over input
// as typed; the segment features come from normalized.
func InputLexicalValues(input, normalized string) map[string]float64 {
	seg := Split(normalized)
	seg.URL = input
	return lexicalValues(seg)
}

func lexicalValues(seg Segments) map[string]float64 {
	f := make(map[string]float64, 96)

	countInto(f, "url", seg.URL)
	f["length_url"] = float64(len(seg.URL))

	countInto(f, "domain", seg.Domain)
	f["domain_length"] = float64(len(seg.Domain))
	f["qty_vowels_domain"] = float64(countVowels(seg.Domain))
	f["qty_tld_url"] = float64(countKnownTLDLabels(seg.Domain))
	f[FeatureDomainInIP] = boolFeature(ipLiteralRe.MatchString(seg.Domain))
	f["server_client_domain"] = boolFeature(containsAny(seg.Domain, "server", "client"))
	f["suspicious_domain_keywords"] = boolFeature(containsAny(seg.Domain, suspiciousDomainKeywords...))
	f[FeatureURLShortened] = boolFeature(containsAny(seg.Domain, shortenerDomains...))
	f[FeatureBrandImpersonation] = boolFeature(containsAny(homoglyphReplacer.Replace(seg.Domain), impersonatedBrands...))
	f["email_in_url"] = boolFeature(strings.Contains(seg.URL, "@") && !strings.Contains(seg.Domain, "@"))

	if seg.HasPath {
		countInto(f, "directory", seg.Directory)
		f["directory_length"] = float64(len(seg.Directory))
		f["suspicious_directory_keywords"] = boolFeature(containsAny(strings.ToLower(seg.Directory), suspiciousDirKeywords...))
	}

	if seg.File != "" {
		countInto(f, "file", seg.File)
		f["file_length"] = float64(len(seg.File))
		ext := seg.File[strings.LastIndex(seg.File, ".")+1:]
		f["suspicious_file_extension"] = boolFeature(inList(strings.ToLower(ext), suspiciousFileExtensions))
		f["malware_file_name"] = boolFeature(containsAny(strings.ToLower(seg.File), malwareFileNames...))
	}

	if seg.Params != "" {
		countInto(f, "params", seg.Params)
		f["params_length"] = float64(len(seg.Params))
		f["tld_present_params"] = boolFeature(containsAny(seg.Params, knownTLDs...))
		f["qty_params"] = float64(len(strings.Split(seg.Params, "&")))
	}

	return f
}

func countInto(f map[string]float64, segment, s string) {
	for _, cf := range countedChars {
		f["qty_"+cf.name+"_"+segment] = float64(strings.Count(s, cf.char))
	}
}

func countVowels(s string) int {
	n := 0
	for _, r := range s {
		switch r {
		case 'a', 'e', 'i', 'o', 'u':
			n++
		}
	}
	return n
}

func countKnownTLDLabels(domain string) int {
	n := 0
	for _, label := range strings.Split(domain, ".") {
		if inList(label, knownTLDs) {
			n++
		}
	}
	return n
}

func containsAny(s string, substrs ...string) bool {
	for _, sub := range substrs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func inList(s string, list []string) bool {
	for _, item := range list {
		if s == item {
			return true
		}
	}
	return false
}

func boolFeature(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
