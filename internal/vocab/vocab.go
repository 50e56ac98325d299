// Package vocab tokenizes document text into unigram/bigram/trigram sets
// with surrounding context. The index is the evidence base for scoring: a
// term that is not in here does not exist as far as the scorer is concerned.
package vocab

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

const contextWindow = 150

const (
	minBigramLen  = 4
	minTrigramLen = 6
)

// Index holds the extracted vocabulary of a single document. It is cheap to
// compute and always rebuilt from current text, never cached.
type Index struct {
	Unigrams map[string]struct{}
	Bigrams  map[string]struct{}
	Trigrams map[string]struct{}
	// Context maps a term to up to 150 characters of the line it first
	// appeared on. First occurrence wins.
	Context map[string]string
}

var stopWords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {}, "be": {},
	"but": {}, "by": {}, "for": {}, "from": {}, "has": {}, "have": {},
	"in": {}, "is": {}, "it": {}, "its": {}, "of": {}, "on": {}, "or": {},
	"our": {}, "that": {}, "the": {}, "their": {}, "they": {}, "this": {},
	"to": {}, "was": {}, "we": {}, "were": {}, "will": {}, "with": {},
	"you": {}, "your": {},
}

// Extract builds an Index from arbitrary text. It is a pure function of the
// input; empty or unparseable text yields an empty index, never an error.
func Extract(text string) *Index {
	idx := &Index{
		Unigrams: make(map[string]struct{}),
		Bigrams:  make(map[string]struct{}),
		Trigrams: make(map[string]struct{}),
		Context:  make(map[string]string),
	}

	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		context := truncateContext(trimmed)

		tokens := Tokenize(trimmed)
		for i, tok := range tokens {
			idx.add(idx.Unigrams, tok, context)
			if i+1 < len(tokens) {
				bigram := tok + " " + tokens[i+1]
				if len(bigram) > minBigramLen {
					idx.add(idx.Bigrams, bigram, context)
				}
			}
			if i+2 < len(tokens) {
				trigram := tok + " " + tokens[i+1] + " " + tokens[i+2]
				if len(trigram) > minTrigramLen {
					idx.add(idx.Trigrams, trigram, context)
				}
			}
		}
	}
	return idx
}

// Tokenize lowercases a line and splits it into tokens, dropping punctuation,
// stop words, and tokens of a single character.
func Tokenize(line string) []string {
	fields := strings.FieldsFunc(strings.ToLower(line), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r) && r != '+' && r != '#'
	})
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if len(f) <= 1 {
			continue
		}
		if _, ok := stopWords[f]; ok {
			continue
		}
		out = append(out, f)
	}
	return out
}

// IsStopWord reports whether the lowercased token is in the stop-word set.
func IsStopWord(token string) bool {
	_, ok := stopWords[strings.ToLower(token)]
	return ok
}

// Has reports whether the term exists in any of the three sets.
func (idx *Index) Has(term string) bool {
	if idx == nil {
		return false
	}
	if _, ok := idx.Unigrams[term]; ok {
		return true
	}
	if _, ok := idx.Bigrams[term]; ok {
		return true
	}
	_, ok := idx.Trigrams[term]
	return ok
}

// HasSubstring reports whether the term appears as a substring of any bigram
// or trigram. This is the fallback used for multi-word keywords whose exact
// form never surfaced as one n-gram.
func (idx *Index) HasSubstring(term string) bool {
	if idx == nil || term == "" {
		return false
	}
	for b := range idx.Bigrams {
		if strings.Contains(b, term) {
			return true
		}
	}
	for t := range idx.Trigrams {
		if strings.Contains(t, term) {
			return true
		}
	}
	return false
}

// ContextFor returns the recorded context line for a term, checking the term
// itself first and then any n-gram containing it.
func (idx *Index) ContextFor(term string) string {
	if idx == nil {
		return ""
	}
	if ctx, ok := idx.Context[term]; ok {
		return ctx
	}
	for key, ctx := range idx.Context {
		if strings.Contains(key, term) {
			return ctx
		}
	}
	return ""
}

// truncateContext caps a context line at the window, backing up to a rune
// boundary so a multi-byte character is never cut in half.
func truncateContext(line string) string {
	if len(line) <= contextWindow {
		return line
	}
	cut := contextWindow
	for cut > 0 && !utf8.RuneStart(line[cut]) {
		cut--
	}
	return line[:cut]
}

func (idx *Index) add(set map[string]struct{}, term, context string) {
	set[term] = struct{}{}
	if _, ok := idx.Context[term]; !ok {
		idx.Context[term] = context
	}
}
