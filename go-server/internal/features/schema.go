// Copyright (c) 2024-2026 IT Help San Diego Inc.
// Licensed under BUSL-1.1 — See LICENSE for terms.
package features

import (
	"errors"
	"fmt"
)

const SchemaVersion = "v1"

var ErrSchemaMismatch = errors.New("feature schema mismatch")

// Schema is the ordered feature list shared by the extractor, the normalizer
// artifact and the classifier artifact. Order is the model's column order.
var Schema = []string{
	"asn_ip", "directory_length", "domain_google_index", "domain_in_ip",
	"domain_length", "domain_spf", "email_in_url", "file_length",
	"params_length", "qty_and_directory", "qty_and_domain", "qty_and_file", "qty_and_params",
	"qty_and_url", "qty_asterisk_directory", "qty_asterisk_domain", "qty_asterisk_file",
	"qty_asterisk_params", "qty_asterisk_url", "qty_at_directory", "qty_at_domain", "qty_at_file",
	"qty_at_params", "qty_at_url", "qty_comma_directory", "qty_comma_domain", "qty_comma_file",
	"qty_comma_params", "qty_comma_url", "qty_dollar_directory", "qty_dollar_domain",
	"qty_dollar_file", "qty_dollar_params", "qty_dollar_url", "qty_dot_directory",
	"qty_dot_domain", "qty_dot_file", "qty_dot_params", "qty_dot_url", "qty_equal_directory",
	"qty_equal_domain", "qty_equal_file", "qty_equal_params", "qty_equal_url",
	"qty_exclamation_directory", "qty_exclamation_domain", "qty_exclamation_file",
	"qty_exclamation_params", "qty_exclamation_url", "qty_hashtag_directory",
	"qty_hashtag_domain", "qty_hashtag_file", "qty_hashtag_params", "qty_hashtag_url",
	"qty_hyphen_directory", "qty_hyphen_domain", "qty_hyphen_file", "qty_hyphen_params",
	"qty_hyphen_url", "qty_ip_resolved", "qty_mx_servers", "qty_nameservers",
	"qty_percent_directory", "qty_percent_domain", "qty_percent_file", "qty_percent_params",
	"qty_percent_url", "qty_plus_directory", "qty_plus_domain", "qty_plus_file",
	"qty_plus_params", "qty_plus_url", "qty_params", "qty_questionmark_directory",
	"qty_questionmark_domain", "qty_questionmark_file", "qty_questionmark_params",
	"qty_questionmark_url", "qty_redirects", "qty_slash_directory", "qty_slash_domain",
	"qty_slash_file", "qty_slash_params", "qty_slash_url", "qty_space_directory",
	"qty_space_domain", "qty_space_file", "qty_space_params", "qty_space_url",
	"qty_tilde_directory", "qty_tilde_domain", "qty_tilde_file", "qty_tilde_params",
	"qty_tilde_url", "qty_tld_url", "qty_underline_directory", "qty_underline_domain",
	"qty_underline_file", "qty_underline_params", "qty_underline_url", "qty_vowels_domain",
	"server_client_domain", "time_domain_activation", "time_domain_expiration",
	"time_response", "tls_ssl_certificate", "tld_present_params", "ttl_hostname",
	"url_google_index", "url_shortened", "length_url",
	"suspicious_domain_keywords", "suspicious_directory_keywords",
	"suspicious_file_extension", "malware_file_name", "brand_impersonation",
}

const (
	FeatureTLS                = "tls_ssl_certificate"
	FeatureDomainAge          = "time_domain_activation"
	FeatureDomainExpiry       = "time_domain_expiration"
	FeatureSPF                = "domain_spf"
	FeatureMXServers          = "qty_mx_servers"
	FeatureTTLHostname        = "ttl_hostname"
	FeatureRedirects          = "qty_redirects"
	FeatureIPResolved         = "qty_ip_resolved"
	FeatureNameservers        = "qty_nameservers"
	FeatureASN                = "asn_ip"
	FeatureTimeResponse       = "time_response"
	FeatureURLIndexed         = "url_google_index"
	FeatureDomainIndexed      = "domain_google_index"
	FeatureURLLength          = "length_url"
	FeatureDomainInIP         = "domain_in_ip"
	FeatureURLShortened       = "url_shortened"
	FeatureBrandImpersonation = "brand_impersonation"
)

var schemaIndex = func() map[string]int {
	idx := make(map[string]int, len(Schema))
	for i, name := range Schema {
		idx[name] = i
	}
	return idx
}()

// ValidateNames reports an ErrSchemaMismatch unless names equals Schema
// element for element.
func ValidateNames(names []string) error {
	if len(names) != len(Schema) {
		return fmt.Errorf("%w: got %d features, want %d", ErrSchemaMismatch, len(names), len(Schema))
	}
	for i, name := range names {
		if name != Schema[i] {
			return fmt.Errorf("%w: position %d is %q, want %q", ErrSchemaMismatch, i, name, Schema[i])
		}
	}
	return nil
}
