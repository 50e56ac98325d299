// Package similarity computes local text similarity and classifies how
// significant an edit was. It is the first filter before any model call:
// formatting-level changes never reach the LLM.
package similarity

import (
	"github.com/gmarmat/jotrack/internal/vocab"
)

// Significance classifies the magnitude of a text change.
type Significance string

const (
	SignificanceNone  Significance = "none"
	SignificanceMinor Significance = "minor"
	SignificanceMajor Significance = "major"
)

const (
	noneThreshold  = 0.95
	minorThreshold = 0.80
)

// Jaccard returns |A∩B| / |A∪B| over the unigram sets of the two texts,
// using the same normalization as the vocabulary extractor. An empty union
// yields 0.
func Jaccard(a, b string) float64 {
	setA := unigramSet(a)
	setB := unigramSet(b)

	if len(setA) == 0 && len(setB) == 0 {
		return 0
	}

	intersection := 0
	for term := range setA {
		if _, ok := setB[term]; ok {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

// Classify maps a similarity score to a change significance:
// above 0.95 is formatting or typo-level noise, 0.80 to 0.95 is a minor
// edit, anything below is a major rewrite.
func Classify(similarity float64) Significance {
	switch {
	case similarity > noneThreshold:
		return SignificanceNone
	case similarity >= minorThreshold:
		return SignificanceMinor
	default:
		return SignificanceMajor
	}
}

// Assess is the convenience pairing of Jaccard and Classify.
func Assess(a, b string) (float64, Significance) {
	score := Jaccard(a, b)
	return score, Classify(score)
}

func unigramSet(text string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, tok := range vocab.Tokenize(text) {
		if len(tok) > 2 {
			set[tok] = struct{}{}
		}
	}
	return set
}
