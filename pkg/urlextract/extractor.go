// Package urlextract canonicalizes profile URLs into stable identifiers
// using tenant-configured domain-pattern + regex extraction rules, so that
// differently formatted URLs for the same person or company collapse to a
// single string (e.g. "linkedin:jdoe").
package urlextract

import (
	"context"
	"net/url"
	"regexp"
	"strings"
	"sync"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// RuleSource loads active extraction rules for a tenant, ordered by priority
type RuleSource interface {
	ListActive(ctx context.Context, tenantID string) ([]models.URLExtractionRule, error)
}

// Extractor applies extraction rules with a lazy per-tenant cache. The cache
// is append-only per tenant key and never invalidated internally; callers
// must ClearCache (or recreate the extractor) when rules change.
type Extractor struct {
	logger ectologger.Logger
	source RuleSource

	mu    sync.RWMutex
	cache map[string][]models.URLExtractionRule
}

// New creates an Extractor. A nil source disables rule lookup, leaving only
// fallback canonicalization.
func New(logger ectologger.Logger, source RuleSource) *Extractor {
	return &Extractor{
		logger: logger,
		source: source,
		cache:  make(map[string][]models.URLExtractionRule),
	}
}

// Canonicalize turns a raw URL into a stable identifier. Rules are filtered
// to the field's explicit id list unless the field requests all rules; when
// no rule matches, the canonical form is domain/path with "www." stripped.
func (e *Extractor) Canonicalize(ctx context.Context, tenantID, rawURL string, opts models.PreprocessingOptions) string {
	ctx, span := tracing.StartSpan(ctx, "urlextract.Extractor.Canonicalize")
	defer span.End()

	host, path, ok := splitURL(rawURL)
	if !ok {
		return strings.ToLower(strings.TrimSpace(rawURL))
	}

	for _, rule := range e.candidateRules(ctx, tenantID, opts) {
		id, ok := applyRule(rule, host, path)
		if ok {
			return id
		}
	}

	return fallback(host, path)
}

// ClearCache drops all cached tenant rules
func (e *Extractor) ClearCache() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cache = make(map[string][]models.URLExtractionRule)
}

// candidateRules returns the tenant's active rules, narrowed to the field's
// explicit id list when one is configured.
func (e *Extractor) candidateRules(ctx context.Context, tenantID string, opts models.PreprocessingOptions) []models.URLExtractionRule {
	rules := e.tenantRules(ctx, tenantID)
	if opts.AllExtractionRules || len(opts.ExtractionRuleIDs) == 0 {
		return rules
	}

	wanted := make(map[string]struct{}, len(opts.ExtractionRuleIDs))
	for _, id := range opts.ExtractionRuleIDs {
		wanted[id] = struct{}{}
	}

	filtered := make([]models.URLExtractionRule, 0, len(wanted))
	for _, rule := range rules {
		if _, ok := wanted[rule.ID]; ok {
			filtered = append(filtered, rule)
		}
	}
	return filtered
}

// tenantRules loads and caches rules on first use. Lookup failures are
// logged and produce no rules for this call; the failure is not cached so a
// later call can retry.
func (e *Extractor) tenantRules(ctx context.Context, tenantID string) []models.URLExtractionRule {
	e.mu.RLock()
	rules, ok := e.cache[tenantID]
	e.mu.RUnlock()
	if ok {
		return rules
	}

	if e.source == nil {
		return nil
	}

	loaded, err := e.source.ListActive(ctx, tenantID)
	if err != nil {
		e.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"tenant_id": tenantID,
		}).Warn("Failed to load URL extraction rules")
		return nil
	}

	e.mu.Lock()
	e.cache[tenantID] = loaded
	e.mu.Unlock()
	return loaded
}

// applyRule matches a single rule against the request domain and extracts
// the canonical identifier. Invalid extraction patterns are treated as
// no-extraction, never raised.
func applyRule(rule models.URLExtractionRule, host, path string) (string, bool) {
	domain := host
	if rule.StripSubdomains {
		domain = stripSubdomains(host)
	}

	if !domainMatches(rule.DomainPatterns, domain) {
		return "", false
	}

	re, err := regexp.Compile(rule.ExtractionPattern)
	if err != nil {
		return "", false
	}

	groups := re.FindStringSubmatch(domain + path)
	if groups == nil {
		return "", false
	}

	// first non-empty capture group, or the whole match without groups
	id := groups[0]
	for _, g := range groups[1:] {
		if g != "" {
			id = g
			break
		}
	}
	if id == "" {
		return "", false
	}

	if !rule.CaseSensitive {
		id = strings.ToLower(id)
	}
	if rule.ExtractionFormat != "" {
		id = strings.Replace(rule.ExtractionFormat, "{}", id, 1)
	}
	return id, true
}

// domainMatches reports whether any pattern matches the computed domain.
// Patterns are exact hosts or "*.suffix" wildcards; a wildcard also matches
// the bare suffix.
func domainMatches(patterns []string, domain string) bool {
	for _, pattern := range patterns {
		pattern = strings.ToLower(strings.TrimSpace(pattern))
		if pattern == "" {
			continue
		}
		if suffix, ok := strings.CutPrefix(pattern, "*."); ok {
			if domain == suffix || strings.HasSuffix(domain, "."+suffix) {
				return true
			}
			continue
		}
		if domain == pattern {
			return true
		}
	}
	return false
}

// twoPartTLDs are public suffixes where the registrable domain spans three
// labels instead of two.
var twoPartTLDs = map[string]struct{}{
	"co.uk":  {},
	"com.au": {},
	"co.nz":  {},
	"co.za":  {},
	"com.br": {},
	"co.jp":  {},
	"co.in":  {},
}

// stripSubdomains keeps the registrable domain: the last two labels, or the
// last three when the host ends in a known two-part TLD.
func stripSubdomains(host string) string {
	labels := strings.Split(host, ".")
	keep := 2
	if len(labels) >= 2 {
		tld := strings.Join(labels[len(labels)-2:], ".")
		if _, ok := twoPartTLDs[tld]; ok {
			keep = 3
		}
	}
	if len(labels) <= keep {
		return host
	}
	return strings.Join(labels[len(labels)-keep:], ".")
}

// splitURL parses the raw value into a lower-cased host and a path with the
// trailing slash removed. Scheme-less values get https prepended first.
func splitURL(rawURL string) (host, path string, ok bool) {
	s := strings.TrimSpace(rawURL)
	if s == "" {
		return "", "", false
	}
	if !strings.Contains(s, "://") {
		s = "https://" + s
	}

	u, err := url.Parse(s)
	if err != nil || u.Hostname() == "" {
		return "", "", false
	}

	return strings.ToLower(u.Hostname()), strings.TrimSuffix(u.Path, "/"), true
}

// fallback is the canonical form when no extraction rule matches
func fallback(host, path string) string {
	return strings.ToLower(strings.TrimPrefix(host, "www.") + path)
}
