package analysis

import (
	"time"

	"github.com/gmarmat/jotrack/internal/variants"
)

// State describes where a job's cached analysis stands. The stored states
// are pending through analyzing; StateNeverAnalyzed is reported by the
// staleness check but never persisted.
type State string

const (
	StatePending       State = "pending"
	StateNoVariants    State = "no_variants"
	StateVariantsFresh State = "variants_fresh"
	StateFresh         State = "fresh"
	StateStale         State = "stale"
	StateAnalyzing     State = "analyzing"

	StateNeverAnalyzed State = "never_analyzed"
)

// Severity qualifies a stale report by which source types changed.
type Severity string

const (
	SeverityNone  Severity = "none"
	SeverityMinor Severity = "minor"
	SeverityMajor Severity = "major"
)

// Type enumerates the analyses this engine tracks. Unknown types are
// rejected loudly rather than silently skipped.
type Type string

const (
	TypeMatchScore     Type = "match_score"
	TypeInterviewCoach Type = "interview_coach"
	TypeCompanyFit     Type = "company_fit"
)

// typeDependencies maps each analysis type to the variant kinds it reads.
// Every known type must have an entry; Valid() is the gate.
var typeDependencies = map[Type][]variants.Kind{
	TypeMatchScore:     {variants.KindAIOptimized},
	TypeInterviewCoach: {variants.KindAIOptimized, variants.KindDetailed},
	TypeCompanyFit:     {variants.KindAIOptimized},
}

func (t Type) Valid() bool {
	_, ok := typeDependencies[t]
	return ok
}

// DependencyKinds returns the variant kinds an analysis of this type reads.
func (t Type) DependencyKinds() []variants.Kind {
	return typeDependencies[t]
}

// KnownTypes lists every analysis type, for iteration in stable order.
var KnownTypes = []Type{TypeMatchScore, TypeInterviewCoach, TypeCompanyFit}

// Record is one row of the append-only analysis history. The newest record
// per (JobID, Type) is authoritative; older rows are audit trail.
type Record struct {
	ID                string     `json:"id"`
	JobID             string     `json:"jobId"`
	Type              Type       `json:"analysisType"`
	State             State      `json:"state"`
	Fingerprint       string     `json:"fingerprint"`
	FingerprintTokens []string   `json:"fingerprintTokens"`
	LastCompletedAt   *time.Time `json:"lastCompletedAt,omitempty"`
	CreatedAt         time.Time  `json:"createdAt"`
}

// VariantRef names one variant an analysis read.
type VariantRef struct {
	SourceID    string              `json:"sourceId"`
	SourceType  variants.SourceType `json:"sourceType"`
	VariantKind variants.Kind       `json:"variantKind"`
}

// DependencyRecord is one row of the append-only dependency history.
// Invalidation flips IsValid, it never deletes.
type DependencyRecord struct {
	ID        string       `json:"id"`
	JobID     string       `json:"jobId"`
	Type      Type         `json:"analysisType"`
	DependsOn []VariantRef `json:"dependsOn"`
	IsValid   bool         `json:"isValid"`
	CreatedAt time.Time    `json:"createdAt"`
}

// StalenessReport is the outcome of a staleness check.
type StalenessReport struct {
	JobID    string   `json:"jobId"`
	State    State    `json:"state"`
	IsStale  bool     `json:"isStale"`
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
}

// primarySourceTypes are the document types whose change makes a stale
// report major rather than minor.
var primarySourceTypes = map[variants.SourceType]bool{
	variants.SourceResume:         true,
	variants.SourceJobDescription: true,
}
