package variants

import (
	"encoding/json"
	"fmt"
	"time"
)

// SourceType identifies the kind of source document a variant derives from.
type SourceType string

const (
	SourceResume         SourceType = "resume"
	SourceJobDescription SourceType = "job_description"
	SourceCoverLetter    SourceType = "cover_letter"
	SourceAttachment     SourceType = "attachment"
	SourceProfile        SourceType = "profile"
	SourceCompanyIntel   SourceType = "company_intel"
)

// KnownSourceTypes lists every source type the store accepts.
var KnownSourceTypes = []SourceType{
	SourceResume,
	SourceJobDescription,
	SourceCoverLetter,
	SourceAttachment,
	SourceProfile,
	SourceCompanyIntel,
}

// Valid reports whether t is a known source type.
func (t SourceType) Valid() bool {
	for _, known := range KnownSourceTypes {
		if t == known {
			return true
		}
	}
	return false
}

// Kind identifies the derived representation stored in a variant.
type Kind string

const (
	KindRaw Kind = "raw"
	// KindAIOptimized is the normalized representation produced for model
	// consumption; job fingerprints are built from its content hash.
	KindAIOptimized Kind = "ai_optimized"
	KindDetailed    Kind = "detailed"
	KindUI          Kind = "ui"
)

// Valid reports whether k is a known variant kind.
func (k Kind) Valid() bool {
	switch k {
	case KindRaw, KindAIOptimized, KindDetailed, KindUI:
		return true
	}
	return false
}

// Variant is one derived representation of a source document. Rows are
// append-only: a variant is superseded by deactivation, never deleted or
// mutated in place.
type Variant struct {
	ID          string     `json:"id"`
	SourceID    string     `json:"sourceId"`
	SourceType  SourceType `json:"sourceType"`
	Kind        Kind       `json:"variantKind"`
	Version     int        `json:"version"`
	ContentHash string     `json:"contentHash"`
	Payload     Payload    `json:"payload"`
	TokenCount  int        `json:"tokenCount"`
	ProducedBy  string     `json:"producedBy"`
	IsActive    bool       `json:"isActive"`
	CreatedAt   time.Time  `json:"createdAt"`
}

// Payload is a tagged union over the known variant kinds, with an opaque
// bytes field as the forward-compatibility escape hatch for kinds this
// release does not model yet.
type Payload struct {
	Kind      Kind              `json:"kind"`
	Raw       *RawPayload       `json:"raw,omitempty"`
	Optimized *OptimizedPayload `json:"optimized,omitempty"`
	Detailed  *DetailedPayload  `json:"detailed,omitempty"`
	UI        *UIPayload        `json:"ui,omitempty"`
	Opaque    json.RawMessage   `json:"opaque,omitempty"`
}

// RawPayload holds the text extracted from the upload, untouched.
type RawPayload struct {
	Text string `json:"text"`
}

// OptimizedPayload is the normalized, model-facing representation.
type OptimizedPayload struct {
	Text    string `json:"text"`
	Summary string `json:"summary,omitempty"`
}

// DetailedPayload is the richer representation with pulled-out highlights.
type DetailedPayload struct {
	Text       string   `json:"text"`
	Highlights []string `json:"highlights,omitempty"`
}

// UIPayload is the display-oriented representation.
type UIPayload struct {
	Text     string            `json:"text"`
	Sections map[string]string `json:"sections,omitempty"`
}

// NewRawPayload wraps extracted text as a raw-kind payload.
func NewRawPayload(text string) Payload {
	return Payload{Kind: KindRaw, Raw: &RawPayload{Text: text}}
}

// NewOptimizedPayload wraps normalized text as an ai_optimized payload.
func NewOptimizedPayload(text, summary string) Payload {
	return Payload{Kind: KindAIOptimized, Optimized: &OptimizedPayload{Text: text, Summary: summary}}
}

// Text returns the best textual representation of the payload, or "" when
// only opaque bytes are present.
func (p Payload) Text() string {
	switch {
	case p.Raw != nil:
		return p.Raw.Text
	case p.Optimized != nil:
		return p.Optimized.Text
	case p.Detailed != nil:
		return p.Detailed.Text
	case p.UI != nil:
		return p.UI.Text
	}
	return ""
}

// Validate checks that exactly the field matching the tagged kind is set.
// Unknown kinds are accepted when carried as opaque bytes.
func (p Payload) Validate() error {
	switch p.Kind {
	case KindRaw:
		if p.Raw == nil {
			return fmt.Errorf("payload kind %q missing raw field", p.Kind)
		}
	case KindAIOptimized:
		if p.Optimized == nil {
			return fmt.Errorf("payload kind %q missing optimized field", p.Kind)
		}
	case KindDetailed:
		if p.Detailed == nil {
			return fmt.Errorf("payload kind %q missing detailed field", p.Kind)
		}
	case KindUI:
		if p.UI == nil {
			return fmt.Errorf("payload kind %q missing ui field", p.Kind)
		}
	default:
		if len(p.Opaque) == 0 {
			return fmt.Errorf("unknown payload kind %q without opaque data", p.Kind)
		}
	}
	return nil
}

// EstimateTokens is the rough chars/4 heuristic used when the producer did
// not report a token count.
func EstimateTokens(text string) int {
	if text == "" {
		return 0
	}
	return (len(text) + 3) / 4
}
