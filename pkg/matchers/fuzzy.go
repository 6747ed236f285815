package matchers

import (
	"sort"
	"strings"

	"github.com/agnivade/levenshtein"
)

// FuzzyScorer provides the string-similarity ratios used by the fuzzy and
// levenshtein match types. All methods return a score in [0, 1].
type FuzzyScorer interface {
	Ratio(a, b string) float64
	PartialRatio(a, b string) float64
	TokenSortRatio(a, b string) float64
	TokenSetRatio(a, b string) float64
	EditDistanceRatio(a, b string) float64
}

// LevenshteinScorer is the default FuzzyScorer, backed by an optimized edit
// distance implementation.
type LevenshteinScorer struct{}

// NewLevenshteinScorer creates the default fuzzy scorer
func NewLevenshteinScorer() *LevenshteinScorer {
	return &LevenshteinScorer{}
}

// Ratio is the edit-distance similarity over the full strings
func (s *LevenshteinScorer) Ratio(a, b string) float64 {
	return s.EditDistanceRatio(a, b)
}

// PartialRatio slides the shorter string across the longer and returns the
// best window ratio, so "smith" scores high against "john smith jr".
func (s *LevenshteinScorer) PartialRatio(a, b string) float64 {
	shorter, longer := []rune(a), []rune(b)
	if len(shorter) > len(longer) {
		shorter, longer = longer, shorter
	}
	if len(shorter) == 0 {
		if len(longer) == 0 {
			return 1.0
		}
		return 0.0
	}

	best := 0.0
	for i := 0; i+len(shorter) <= len(longer); i++ {
		window := string(longer[i : i+len(shorter)])
		if ratio := s.EditDistanceRatio(string(shorter), window); ratio > best {
			best = ratio
		}
		if best == 1.0 {
			break
		}
	}
	return best
}

// TokenSortRatio compares the strings with their tokens in sorted order,
// making the score order-insensitive.
func (s *LevenshteinScorer) TokenSortRatio(a, b string) float64 {
	return s.EditDistanceRatio(sortedTokens(a), sortedTokens(b))
}

// TokenSetRatio compares the shared-token core against each side's full
// token set and returns the best of the three ratios.
func (s *LevenshteinScorer) TokenSetRatio(a, b string) float64 {
	setA := tokenSet(a)
	setB := tokenSet(b)

	var common, onlyA, onlyB []string
	for token := range setA {
		if _, ok := setB[token]; ok {
			common = append(common, token)
		} else {
			onlyA = append(onlyA, token)
		}
	}
	for token := range setB {
		if _, ok := setA[token]; !ok {
			onlyB = append(onlyB, token)
		}
	}
	sort.Strings(common)
	sort.Strings(onlyA)
	sort.Strings(onlyB)

	core := strings.Join(common, " ")
	fullA := strings.TrimSpace(core + " " + strings.Join(onlyA, " "))
	fullB := strings.TrimSpace(core + " " + strings.Join(onlyB, " "))

	best := s.EditDistanceRatio(core, fullA)
	if ratio := s.EditDistanceRatio(core, fullB); ratio > best {
		best = ratio
	}
	if ratio := s.EditDistanceRatio(fullA, fullB); ratio > best {
		best = ratio
	}
	return best
}

// EditDistanceRatio is 1 - distance/maxLen. Two empty strings are identical.
func (s *LevenshteinScorer) EditDistanceRatio(a, b string) float64 {
	if a == b {
		return 1.0
	}
	maxLen := max(len([]rune(a)), len([]rune(b)))
	if maxLen == 0 {
		return 1.0
	}
	return 1.0 - float64(levenshtein.ComputeDistance(a, b))/float64(maxLen)
}

// SimpleScorer is the degraded FuzzyScorer used when library-backed fuzzy
// matching is disabled. Every method reduces to one subsequence-based ratio.
type SimpleScorer struct{}

// NewSimpleScorer creates the degraded single-metric scorer
func NewSimpleScorer() *SimpleScorer {
	return &SimpleScorer{}
}

func (s *SimpleScorer) Ratio(a, b string) float64             { return subsequenceRatio(a, b) }
func (s *SimpleScorer) PartialRatio(a, b string) float64      { return subsequenceRatio(a, b) }
func (s *SimpleScorer) TokenSortRatio(a, b string) float64    { return subsequenceRatio(a, b) }
func (s *SimpleScorer) TokenSetRatio(a, b string) float64     { return subsequenceRatio(a, b) }
func (s *SimpleScorer) EditDistanceRatio(a, b string) float64 { return subsequenceRatio(a, b) }

// subsequenceRatio is 2*LCS/(len(a)+len(b)) over runes
func subsequenceRatio(a, b string) float64 {
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 && len(rb) == 0 {
		return 1.0
	}
	if len(ra) == 0 || len(rb) == 0 {
		return 0.0
	}

	row := make([]int, len(rb)+1)
	prevRow := make([]int, len(rb)+1)
	for i := 1; i <= len(ra); i++ {
		for j := 1; j <= len(rb); j++ {
			if ra[i-1] == rb[j-1] {
				row[j] = prevRow[j-1] + 1
			} else {
				row[j] = max(row[j-1], prevRow[j])
			}
		}
		row, prevRow = prevRow, row
	}

	lcs := prevRow[len(rb)]
	return 2.0 * float64(lcs) / float64(len(ra)+len(rb))
}

func sortedTokens(s string) string {
	tokens := strings.Fields(s)
	sort.Strings(tokens)
	return strings.Join(tokens, " ")
}

func tokenSet(s string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, token := range strings.Fields(s) {
		set[token] = struct{}{}
	}
	return set
}
