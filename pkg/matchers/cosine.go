package matchers

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// CosineSimilarity compares character-bigram frequency vectors of the two
// strings. Strings shorter than a bigram fall back to equality.
func CosineSimilarity(a, b string) float64 {
	bigramsA := bigrams(a)
	bigramsB := bigrams(b)
	if len(bigramsA) == 0 || len(bigramsB) == 0 {
		if a == b {
			return 1.0
		}
		return 0.0
	}

	vocab := make(map[string]int)
	for gram := range bigramsA {
		if _, ok := vocab[gram]; !ok {
			vocab[gram] = len(vocab)
		}
	}
	for gram := range bigramsB {
		if _, ok := vocab[gram]; !ok {
			vocab[gram] = len(vocab)
		}
	}

	vecA := make([]float64, len(vocab))
	vecB := make([]float64, len(vocab))
	for gram, count := range bigramsA {
		vecA[vocab[gram]] = float64(count)
	}
	for gram, count := range bigramsB {
		vecB[vocab[gram]] = float64(count)
	}

	normA := floats.Norm(vecA, 2)
	normB := floats.Norm(vecB, 2)
	if normA == 0 || normB == 0 {
		return 0.0
	}

	// rounding can push identical vectors a hair past 1
	return math.Min(1.0, floats.Dot(vecA, vecB)/(normA*normB))
}

// bigrams counts overlapping character pairs
func bigrams(s string) map[string]int {
	runes := []rune(s)
	grams := make(map[string]int, len(runes))
	for i := 0; i+1 < len(runes); i++ {
		grams[string(runes[i:i+2])]++
	}
	return grams
}
