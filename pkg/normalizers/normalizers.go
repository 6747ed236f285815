// Package normalizers provides field canonicalization shared by the scoring
// and logic engines. Both engines normalize through the same routines so the
// two evaluation models can never drift apart.
package normalizers

import (
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"

	"github.com/Ramsey-B/fern/pkg/models"
)

// Normalizer is a function that normalizes a string value
type Normalizer func(string) string

// registry holds all registered normalizers
var registry = make(map[string]Normalizer)

func init() {
	Register("lowercase", Lowercase)
	Register("trim", Trim)
	Register("collapse_whitespace", CollapseWhitespace)
	Register("remove_punctuation", RemovePunctuation)
	Register("remove_accents", RemoveAccents)
	Register("digits_only", DigitsOnly)
	Register("nphone", NormalizePhone)
	Register("ncompany", NormalizeCompany)
}

// Register adds a normalizer to the registry
func Register(name string, fn Normalizer) {
	registry[name] = fn
}

// Apply applies a named normalizer to a value. Unknown names return the value
// unchanged.
func Apply(value, normalizer string) string {
	fn, ok := registry[normalizer]
	if !ok {
		return value
	}
	return fn(value)
}

// ApplyChain applies multiple normalizers in sequence
func ApplyChain(value string, normalizers ...string) string {
	result := value
	for _, name := range normalizers {
		result = Apply(result, name)
	}
	return result
}

// ForField canonicalizes a value according to its field type and the rule's
// preprocessing options. URL fields are not handled here; callers route them
// through the URL extractor first.
func ForField(value string, fieldType models.FieldType, opts models.PreprocessingOptions) string {
	switch fieldType {
	case models.FieldTypePhone:
		return NormalizePhone(value)
	case models.FieldTypeEmail:
		return NormalizeEmail(value, opts)
	case models.FieldTypeCompany:
		return NormalizeCompany(value)
	default:
		return normalizeText(value, opts)
	}
}

func normalizeText(value string, opts models.PreprocessingOptions) string {
	s := value
	if boolOrDefault(opts.NormalizeCase, true) {
		s = Lowercase(s)
	}
	if opts.StripAccents {
		s = RemoveAccents(s)
	}
	if opts.StripPunctuation {
		s = RemovePunctuation(s)
	}
	if boolOrDefault(opts.CollapseWhitespace, true) {
		s = CollapseWhitespace(s)
	}
	return s
}

// Lowercase converts string to lowercase
func Lowercase(s string) string {
	return strings.ToLower(s)
}

// Trim removes leading and trailing whitespace
func Trim(s string) string {
	return strings.TrimSpace(s)
}

// CollapseWhitespace trims the string and folds interior runs of whitespace
// into single spaces
func CollapseWhitespace(s string) string {
	var result strings.Builder
	prevSpace := false
	for _, r := range strings.TrimSpace(s) {
		if unicode.IsSpace(r) {
			if !prevSpace {
				result.WriteRune(' ')
				prevSpace = true
			}
			continue
		}
		result.WriteRune(r)
		prevSpace = false
	}
	return result.String()
}

// RemovePunctuation removes all punctuation and symbol characters
func RemovePunctuation(s string) string {
	var result strings.Builder
	for _, r := range s {
		if !unicode.IsPunct(r) && !unicode.IsSymbol(r) {
			result.WriteRune(r)
		}
	}
	return result.String()
}

// RemoveAccents decomposes to NFD and drops combining marks
func RemoveAccents(s string) string {
	decomposed := norm.NFD.String(s)
	var result strings.Builder
	for _, r := range decomposed {
		if unicode.Is(unicode.Mn, r) {
			continue
		}
		result.WriteRune(r)
	}
	return result.String()
}

// DigitsOnly keeps only digit characters
func DigitsOnly(s string) string {
	var result strings.Builder
	for _, r := range s {
		if unicode.IsDigit(r) {
			result.WriteRune(r)
		}
	}
	return result.String()
}

// NormalizePhone strips every non-digit character. An 11-digit result with a
// leading 1 drops the US country code, so "+1 (555) 123-4567" and
// "5551234567" normalize identically. Idempotent.
func NormalizePhone(s string) string {
	digits := DigitsOnly(s)
	if len(digits) == 11 && digits[0] == '1' {
		return digits[1:]
	}
	return digits
}

// CoercePhone flattens structured {country_code, number} values before
// stripping; plain strings normalize directly.
func CoercePhone(v any) string {
	switch value := v.(type) {
	case string:
		return NormalizePhone(value)
	case map[string]any:
		cc, _ := value["country_code"].(string)
		number, _ := value["number"].(string)
		return NormalizePhone(cc + number)
	default:
		return NormalizePhone(fmt.Sprintf("%v", v))
	}
}

// NormalizeEmail lower-cases and trims, each governed by the field's own
// configuration rather than a fixed default.
func NormalizeEmail(s string, opts models.PreprocessingOptions) string {
	if boolOrDefault(opts.TrimWhitespace, true) {
		s = Trim(s)
	}
	if boolOrDefault(opts.AutoLowercase, true) {
		s = Lowercase(s)
	}
	return s
}

// legal suffixes stripped from company names, longest variants first
var companySuffixes = []string{
	"incorporated", "corporation", "company", "corp.", "corp", "inc.", "inc",
	"llc.", "llc", "ltd.", "ltd", "l.p.", "lp", "co.", "co",
}

// NormalizeCompany lower-cases, strips common legal suffixes, then removes
// punctuation and collapses whitespace.
func NormalizeCompany(s string) string {
	s = CollapseWhitespace(Lowercase(s))
	for changed := true; changed; {
		changed = false
		for _, suffix := range companySuffixes {
			if strings.HasSuffix(s, " "+suffix) || s == suffix {
				s = strings.TrimSpace(strings.TrimSuffix(s, suffix))
				s = strings.TrimSuffix(s, ",")
				s = strings.TrimSpace(s)
				changed = true
			}
		}
	}
	return CollapseWhitespace(RemovePunctuation(s))
}

func boolOrDefault(v *bool, def bool) bool {
	if v == nil {
		return def
	}
	return *v
}
