package urlextract

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/pkg/logging"
	"github.com/Ramsey-B/fern/pkg/models"
)

type fakeRuleSource struct {
	rules []models.URLExtractionRule
	err   error
	calls int
}

func (f *fakeRuleSource) ListActive(_ context.Context, _ string) ([]models.URLExtractionRule, error) {
	f.calls++
	return f.rules, f.err
}

func linkedinRule() models.URLExtractionRule {
	return models.URLExtractionRule{
		ID:                "rule-1",
		TenantID:          "tenant-1",
		Name:              "linkedin",
		DomainPatterns:    []string{"linkedin.com", "*.linkedin.com"},
		ExtractionPattern: `linkedin\.com/in/([^/?]+)`,
		ExtractionFormat:  "linkedin:{}",
		StripSubdomains:   true,
		IsActive:          true,
	}
}

func TestCanonicalizeLinkedInVariants(t *testing.T) {
	source := &fakeRuleSource{rules: []models.URLExtractionRule{linkedinRule()}}
	extractor := New(logging.Nop(), source)

	variants := []string{
		"https://www.linkedin.com/in/John-Doe",
		"http://linkedin.com/in/john-doe/",
		"linkedin.com/in/JOHN-DOE",
		"https://uk.linkedin.com/in/john-doe",
	}

	for _, raw := range variants {
		assert.Equal(t, "linkedin:john-doe", extractor.Canonicalize(context.Background(), "tenant-1", raw, models.PreprocessingOptions{}), raw)
	}
}

func TestCanonicalizeFallback(t *testing.T) {
	extractor := New(logging.Nop(), &fakeRuleSource{})

	assert.Equal(t, "example.com/page", extractor.Canonicalize(context.Background(), "tenant-1", "https://www.Example.com/Page/", models.PreprocessingOptions{}))
	assert.Equal(t, "example.com", extractor.Canonicalize(context.Background(), "tenant-1", "example.com", models.PreprocessingOptions{}))
}

func TestCanonicalizeCaseSensitiveRule(t *testing.T) {
	rule := linkedinRule()
	rule.CaseSensitive = true
	extractor := New(logging.Nop(), &fakeRuleSource{rules: []models.URLExtractionRule{rule}})

	got := extractor.Canonicalize(context.Background(), "tenant-1", "https://linkedin.com/in/John-Doe", models.PreprocessingOptions{})
	assert.Equal(t, "linkedin:John-Doe", got)
}

func TestCanonicalizeRuleFiltering(t *testing.T) {
	other := linkedinRule()
	other.ID = "rule-2"
	source := &fakeRuleSource{rules: []models.URLExtractionRule{linkedinRule(), other}}
	extractor := New(logging.Nop(), source)

	// filter to an id that is not the matching rule
	opts := models.PreprocessingOptions{ExtractionRuleIDs: []string{"rule-9"}}
	got := extractor.Canonicalize(context.Background(), "tenant-1", "https://linkedin.com/in/john-doe", opts)
	assert.Equal(t, "linkedin.com/in/john-doe", got)

	// explicit all marker uses every rule
	opts = models.PreprocessingOptions{ExtractionRuleIDs: []string{"rule-9"}, AllExtractionRules: true}
	got = extractor.Canonicalize(context.Background(), "tenant-1", "https://linkedin.com/in/john-doe", opts)
	assert.Equal(t, "linkedin:john-doe", got)
}

func TestCanonicalizeInvalidPatternSkipsRule(t *testing.T) {
	broken := linkedinRule()
	broken.ExtractionPattern = `([invalid`
	extractor := New(logging.Nop(), &fakeRuleSource{rules: []models.URLExtractionRule{broken}})

	got := extractor.Canonicalize(context.Background(), "tenant-1", "https://linkedin.com/in/john-doe", models.PreprocessingOptions{})
	assert.Equal(t, "linkedin.com/in/john-doe", got)
}

func TestTenantRuleCache(t *testing.T) {
	source := &fakeRuleSource{rules: []models.URLExtractionRule{linkedinRule()}}
	extractor := New(logging.Nop(), source)

	for i := 0; i < 3; i++ {
		extractor.Canonicalize(context.Background(), "tenant-1", "https://linkedin.com/in/john-doe", models.PreprocessingOptions{})
	}
	assert.Equal(t, 1, source.calls)

	extractor.ClearCache()
	extractor.Canonicalize(context.Background(), "tenant-1", "https://linkedin.com/in/john-doe", models.PreprocessingOptions{})
	assert.Equal(t, 2, source.calls)
}

func TestLookupFailureNotCached(t *testing.T) {
	source := &fakeRuleSource{err: errors.New("db down")}
	extractor := New(logging.Nop(), source)

	got := extractor.Canonicalize(context.Background(), "tenant-1", "https://www.example.com/a", models.PreprocessingOptions{})
	assert.Equal(t, "example.com/a", got)

	extractor.Canonicalize(context.Background(), "tenant-1", "https://www.example.com/a", models.PreprocessingOptions{})
	require.Equal(t, 2, source.calls)
}

func TestStripSubdomains(t *testing.T) {
	tests := []struct {
		host     string
		expected string
	}{
		{"www.example.com", "example.com"},
		{"a.b.example.com", "example.com"},
		{"example.com", "example.com"},
		{"www.example.co.uk", "example.co.uk"},
		{"shop.example.com.au", "example.com.au"},
		{"localhost", "localhost"},
	}

	for _, tt := range tests {
		t.Run(tt.host, func(t *testing.T) {
			assert.Equal(t, tt.expected, stripSubdomains(tt.host))
		})
	}
}

func TestDomainMatches(t *testing.T) {
	assert.True(t, domainMatches([]string{"linkedin.com"}, "linkedin.com"))
	assert.True(t, domainMatches([]string{"*.linkedin.com"}, "uk.linkedin.com"))
	assert.True(t, domainMatches([]string{"*.linkedin.com"}, "linkedin.com"))
	assert.False(t, domainMatches([]string{"linkedin.com"}, "notlinkedin.com"))
	assert.False(t, domainMatches(nil, "linkedin.com"))
}
