// Package matchers implements the comparison algorithms behind every match
// type. A Registry dispatches on match type and always returns a score in
// [0, 1]; algorithm failures score 0 and are never raised to the caller.
package matchers

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/normalizers"
)

// Registry compares normalized values using the algorithm named by a field
// rule's match type.
type Registry struct {
	logger ectologger.Logger
	fuzzy  FuzzyScorer
}

// NewRegistry creates a Registry. A nil scorer gets the library-backed
// default.
func NewRegistry(logger ectologger.Logger, fuzzy FuzzyScorer) *Registry {
	if fuzzy == nil {
		fuzzy = NewLevenshteinScorer()
	}
	return &Registry{
		logger: logger,
		fuzzy:  fuzzy,
	}
}

// Known reports whether the match type has a registered algorithm
func Known(matchType models.MatchType) bool {
	switch matchType {
	case models.MatchTypeExact, models.MatchTypeCaseInsensitive,
		models.MatchTypeLevenshtein, models.MatchTypeJaroWinkler,
		models.MatchTypeFuzzy, models.MatchTypeSoundex, models.MatchTypeMetaphone,
		models.MatchTypeCosine, models.MatchTypeJaccard, models.MatchTypePartial,
		models.MatchTypeEmailDomain, models.MatchTypePhone,
		models.MatchTypeRegex, models.MatchTypeNumeric:
		return true
	}
	return false
}

// Compare scores two normalized values under the rule's match type. Unknown
// match types degrade to case-insensitive equality with a warning; a panic
// in any algorithm scores 0.
func (r *Registry) Compare(ctx context.Context, a, b string, rule models.FieldRule) (score float64) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.WithContext(ctx).WithFields(map[string]any{
				"match_type": rule.MatchType,
				"field":      rule.Field,
				"panic":      fmt.Sprintf("%v", p),
			}).Error("Match algorithm panicked")
			score = 0.0
		}
	}()

	switch rule.MatchType {
	case models.MatchTypeExact:
		return boolScore(a == b)
	case models.MatchTypeCaseInsensitive:
		return boolScore(strings.EqualFold(a, b))
	case models.MatchTypeLevenshtein:
		return r.fuzzy.EditDistanceRatio(a, b)
	case models.MatchTypeJaroWinkler:
		return JaroWinkler(a, b)
	case models.MatchTypeFuzzy:
		return r.fuzzyMax(a, b)
	case models.MatchTypeSoundex:
		return boolScore(Soundex(a) == Soundex(b))
	case models.MatchTypeMetaphone:
		return boolScore(Metaphone(a) == Metaphone(b))
	case models.MatchTypeCosine:
		return CosineSimilarity(a, b)
	case models.MatchTypeJaccard:
		return Jaccard(a, b)
	case models.MatchTypePartial:
		return PartialContainment(a, b)
	case models.MatchTypeEmailDomain:
		return EmailDomainMatch(a, b)
	case models.MatchTypePhone:
		return boolScore(normalizers.NormalizePhone(a) == normalizers.NormalizePhone(b))
	case models.MatchTypeRegex:
		return r.regexMatch(ctx, a, b, rule)
	case models.MatchTypeNumeric:
		return NumericMatch(a, b, rule.Preprocessing.NumberFormat)
	default:
		r.logger.WithContext(ctx).WithFields(map[string]any{
			"match_type": rule.MatchType,
			"field":      rule.Field,
		}).Warn("Unknown match type, falling back to case-insensitive equality")
		return boolScore(strings.EqualFold(a, b))
	}
}

// fuzzyMax is the best of the four fuzzy ratios
func (r *Registry) fuzzyMax(a, b string) float64 {
	best := r.fuzzy.Ratio(a, b)
	if s := r.fuzzy.PartialRatio(a, b); s > best {
		best = s
	}
	if s := r.fuzzy.TokenSortRatio(a, b); s > best {
		best = s
	}
	if s := r.fuzzy.TokenSetRatio(a, b); s > best {
		best = s
	}
	return best
}

// regexMatch extracts the first non-empty capture group from each value
// under the rule's custom pattern and compares the extractions. An invalid
// or empty pattern scores 0.
func (r *Registry) regexMatch(ctx context.Context, a, b string, rule models.FieldRule) float64 {
	if rule.CustomPattern == "" {
		return 0.0
	}
	re, err := regexp.Compile(rule.CustomPattern)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"field": rule.Field,
		}).Warn("Invalid custom pattern")
		return 0.0
	}

	extractedA := firstCapture(re, a)
	extractedB := firstCapture(re, b)
	return boolScore(extractedA != "" && extractedA == extractedB)
}

func firstCapture(re *regexp.Regexp, s string) string {
	groups := re.FindStringSubmatch(s)
	if groups == nil {
		return ""
	}
	for _, g := range groups[1:] {
		if g != "" {
			return g
		}
	}
	return groups[0]
}

// JaroWinkler calculates prefix-boosted Jaro similarity
func JaroWinkler(a, b string) float64 {
	if a == b {
		return 1.0
	}

	jaro := Jaro(a, b)

	prefixLen := 0
	maxPrefix := 4
	for i := 0; i < len(a) && i < len(b) && i < maxPrefix; i++ {
		if a[i] == b[i] {
			prefixLen++
		} else {
			break
		}
	}

	scalingFactor := 0.1
	return jaro + float64(prefixLen)*scalingFactor*(1.0-jaro)
}

// Jaro calculates the Jaro similarity between two strings
func Jaro(a, b string) float64 {
	if a == b {
		return 1.0
	}
	if len(a) == 0 || len(b) == 0 {
		return 0.0
	}

	matchDist := max(len(a), len(b))/2 - 1
	if matchDist < 0 {
		matchDist = 0
	}

	aMatches := make([]bool, len(a))
	bMatches := make([]bool, len(b))

	matches := 0
	transpositions := 0

	for i := 0; i < len(a); i++ {
		start := max(0, i-matchDist)
		end := min(len(b), i+matchDist+1)

		for j := start; j < end; j++ {
			if bMatches[j] || a[i] != b[j] {
				continue
			}
			aMatches[i] = true
			bMatches[j] = true
			matches++
			break
		}
	}

	if matches == 0 {
		return 0.0
	}

	k := 0
	for i := 0; i < len(a); i++ {
		if !aMatches[i] {
			continue
		}
		for !bMatches[k] {
			k++
		}
		if a[i] != b[k] {
			transpositions++
		}
		k++
	}

	m := float64(matches)
	t := float64(transpositions) / 2

	return (m/float64(len(a)) + m/float64(len(b)) + (m-t)/m) / 3
}

// Jaccard is token-set intersection over union
func Jaccard(a, b string) float64 {
	setA := tokenSet(a)
	setB := tokenSet(b)
	if len(setA) == 0 && len(setB) == 0 {
		return 1.0
	}

	intersection := 0
	for token := range setA {
		if _, ok := setB[token]; ok {
			intersection++
		}
	}

	union := len(setA) + len(setB) - intersection
	if union == 0 {
		return 0.0
	}
	return float64(intersection) / float64(union)
}

// PartialContainment scores 1.0 for equality, the length ratio when one
// value contains the other, and 0 otherwise.
func PartialContainment(a, b string) float64 {
	if a == b {
		return 1.0
	}
	if a == "" || b == "" {
		return 0.0
	}
	if strings.Contains(a, b) || strings.Contains(b, a) {
		return float64(min(len(a), len(b))) / float64(max(len(a), len(b)))
	}
	return 0.0
}

// EmailDomainMatch compares the lower-cased domain after the last '@'.
// Values without an '@' compare as whole strings.
func EmailDomainMatch(a, b string) float64 {
	domainA := emailDomain(a)
	domainB := emailDomain(b)
	if domainA == "" || domainB == "" {
		return boolScore(strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b)))
	}
	return boolScore(domainA == domainB)
}

func emailDomain(s string) string {
	at := strings.LastIndex(s, "@")
	if at < 0 || at == len(s)-1 {
		return ""
	}
	return strings.ToLower(strings.TrimSpace(s[at+1:]))
}

// NumericMatch parses both values under the format hint and compares the
// numbers. Unparseable values score 0.
func NumericMatch(a, b, format string) float64 {
	numA, okA := parseNumber(a, format)
	numB, okB := parseNumber(b, format)
	if !okA || !okB {
		return 0.0
	}

	diff := numA - numB
	if diff < 0 {
		diff = -diff
	}
	return boolScore(diff < 1e-9)
}

// parseNumber strips format decorations before parsing. Currency keeps only
// digits and the decimal point; percentage drops the '%' and compares the
// number as written, so "45%" equals "45".
func parseNumber(s, format string) (float64, bool) {
	s = strings.TrimSpace(s)

	switch format {
	case models.NumberFormatCurrency:
		s = strings.Map(func(r rune) rune {
			if (r >= '0' && r <= '9') || r == '.' {
				return r
			}
			return -1
		}, s)
	case models.NumberFormatPercentage:
		s = strings.ReplaceAll(s, "%", "")
	default:
		s = strings.ReplaceAll(s, ",", "")
	}

	num, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, false
	}
	return num, true
}

func boolScore(matched bool) float64 {
	if matched {
		return 1.0
	}
	return 0.0
}
