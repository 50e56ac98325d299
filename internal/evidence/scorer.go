package evidence

import (
	"fmt"
	"strings"

	"github.com/gmarmat/jotrack/internal/vocab"
)

// Score buckets. The four-way branch is the whole anti-hallucination
// contract: a parameter scores zero unless one of its keywords was actually
// found in at least one document's vocabulary.
const (
	scoreAbsent     = 0.0
	scoreGap        = 0.3
	scoreBonus      = 0.7
	scoreMatch      = 1.0
	reasoningAbsent = "Unknown/Absent"
)

// ParameterScore is the per-parameter breakdown of a scoring run. Evidence
// holds verbatim text fragments from the source documents (or explicit "not
// mentioned" statements) so every number is traceable to a line of input.
type ParameterScore struct {
	Name      string   `json:"name"`
	Weight    float64  `json:"weight"`
	Score     float64  `json:"score"`
	Weighted  float64  `json:"weighted"`
	Reasoning string   `json:"reasoning"`
	Evidence  []string `json:"evidence"`
	Matched   []string `json:"matchedKeywords,omitempty"`
}

// ScoreResult is the output of ScoreParameters.
type ScoreResult struct {
	Overall   float64          `json:"overall"`
	Breakdown []ParameterScore `json:"breakdown"`
}

// ScoreParameters evaluates jdText (a job description) against resumeText
// under the given taxonomy. Overall is the weighted sum of per-parameter
// scores and lies in [0,1] whenever the taxonomy validates.
func ScoreParameters(jdText, resumeText string, tax *Taxonomy) ScoreResult {
	if tax == nil {
		tax = DefaultTaxonomy()
	}
	jd := vocab.Extract(jdText)
	resume := vocab.Extract(resumeText)

	res := ScoreResult{Breakdown: make([]ParameterScore, 0, len(tax.Parameters))}
	for _, p := range tax.Parameters {
		ps := scoreParameter(p, jd, resume)
		res.Overall += ps.Weighted
		res.Breakdown = append(res.Breakdown, ps)
	}
	return res
}

func scoreParameter(p Parameter, jd, resume *vocab.Index) ParameterScore {
	ps := ParameterScore{Name: p.Name, Weight: p.Weight}

	terms := make([]string, 0, len(p.Keywords)+len(p.Aliases))
	terms = append(terms, p.Keywords...)
	terms = append(terms, p.Aliases...)

	var inJD, inResume bool
	for _, raw := range terms {
		term := strings.ToLower(strings.TrimSpace(raw))
		if term == "" {
			continue
		}
		if found(jd, term) {
			inJD = true
			ps.Matched = appendUnique(ps.Matched, term)
			ps.Evidence = append(ps.Evidence, fmt.Sprintf("job description: %q", contextOrTerm(jd, term)))
		}
		if found(resume, term) {
			inResume = true
			ps.Matched = appendUnique(ps.Matched, term)
			ps.Evidence = append(ps.Evidence, fmt.Sprintf("resume: %q", contextOrTerm(resume, term)))
		}
	}

	switch {
	case inJD && inResume:
		ps.Score = scoreMatch
		ps.Reasoning = "required and present — match"
	case inJD:
		ps.Score = scoreGap
		ps.Reasoning = "required but absent — gap"
	case inResume:
		ps.Score = scoreBonus
		ps.Reasoning = "bonus skill, not required"
	default:
		ps.Score = scoreAbsent
		ps.Reasoning = reasoningAbsent
		ps.Evidence = []string{
			"not mentioned in job description",
			"not mentioned in resume",
		}
	}
	ps.Weighted = ps.Weight * ps.Score
	return ps
}

// found applies exact-term lookup first, then the substring-of-ngram
// fallback. The fallback is limited to multi-word keywords: letting a short
// keyword like "go" match inside "google cloud" would produce scores with no
// real occurrence behind them.
func found(idx *vocab.Index, term string) bool {
	if idx.Has(term) {
		return true
	}
	if !strings.Contains(term, " ") {
		return false
	}
	return idx.HasSubstring(term)
}

func contextOrTerm(idx *vocab.Index, term string) string {
	if ctx := idx.ContextFor(term); ctx != "" {
		return ctx
	}
	return term
}

func appendUnique(list []string, term string) []string {
	for _, t := range list {
		if t == term {
			return list
		}
	}
	return append(list, term)
}
