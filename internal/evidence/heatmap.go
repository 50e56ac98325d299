package evidence

import (
	"sort"

	"github.com/gmarmat/jotrack/internal/vocab"
)

// Heatmap presence buckets, in ranking order. A term only the job
// description mentions is the most actionable gap, so it outranks shared
// terms, which outrank résumé-only extras.
const (
	PresenceJDOnly     = "jd_only"
	PresenceBoth       = "both"
	PresenceResumeOnly = "resume_only"
)

// HeatmapEntry is one ranked term from the combined vocabularies.
type HeatmapEntry struct {
	Term     string `json:"term"`
	Presence string `json:"presence"`
	Context  string `json:"context,omitempty"`
}

// KeywordHeatmap ranks every term from both documents by importance without
// scoring: JD-only first, then shared, then résumé-only, alphabetical
// within each bucket.
func KeywordHeatmap(jdText, resumeText string) []HeatmapEntry {
	jd := vocab.Extract(jdText)
	resume := vocab.Extract(resumeText)

	var entries []HeatmapEntry
	for _, term := range allTerms(jd) {
		if resume.Has(term) {
			entries = append(entries, HeatmapEntry{Term: term, Presence: PresenceBoth, Context: jd.ContextFor(term)})
		} else {
			entries = append(entries, HeatmapEntry{Term: term, Presence: PresenceJDOnly, Context: jd.ContextFor(term)})
		}
	}
	for _, term := range allTerms(resume) {
		if !jd.Has(term) {
			entries = append(entries, HeatmapEntry{Term: term, Presence: PresenceResumeOnly, Context: resume.ContextFor(term)})
		}
	}

	rank := map[string]int{PresenceJDOnly: 0, PresenceBoth: 1, PresenceResumeOnly: 2}
	sort.Slice(entries, func(i, j int) bool {
		if rank[entries[i].Presence] != rank[entries[j].Presence] {
			return rank[entries[i].Presence] < rank[entries[j].Presence]
		}
		return entries[i].Term < entries[j].Term
	})
	return entries
}

func allTerms(idx *vocab.Index) []string {
	terms := make([]string, 0, len(idx.Unigrams)+len(idx.Bigrams)+len(idx.Trigrams))
	for t := range idx.Unigrams {
		terms = append(terms, t)
	}
	for t := range idx.Bigrams {
		terms = append(terms, t)
	}
	for t := range idx.Trigrams {
		terms = append(terms, t)
	}
	sort.Strings(terms)
	return terms
}
