package variants

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gmarmat/jotrack/internal/extract"
	"github.com/gmarmat/jotrack/internal/shared/metrics"
	"github.com/gmarmat/jotrack/internal/shared/telemetry"
	"github.com/gmarmat/jotrack/internal/shared/util"
)

// Invalidator is notified whenever a put supersedes an active variant, so
// downstream analyses depending on the old content can be marked stale.
type Invalidator interface {
	Invalidate(ctx context.Context, sourceID string, sourceType SourceType) error
}

// Service contains business logic for the variant store.
type Service struct {
	Repo    Repo
	Sources SourcesRepo
	// Deps may be nil in tools that only read variants.
	Deps Invalidator
}

// PutInput carries everything needed to store one derived representation.
type PutInput struct {
	SourceID   string
	SourceType SourceType
	Payload    Payload
	// ContentHash is the digest of the text the payload was produced from.
	// Left empty, it is computed from the payload text.
	ContentHash string
	TokenCount  int
	ProducedBy  string
}

// Put stores a variant, applying content-hash dedup and the single-active
// invariant. When a previous active variant is superseded, dependents are
// invalidated.
func (s *Service) Put(ctx context.Context, in PutInput) (PutResult, error) {
	if strings.TrimSpace(in.SourceID) == "" {
		return PutResult{}, fmt.Errorf("%w: sourceId is required", ErrInvalidInput)
	}
	if !in.SourceType.Valid() {
		return PutResult{}, fmt.Errorf("%w: unknown source type %q", ErrInvalidInput, in.SourceType)
	}
	if err := in.Payload.Validate(); err != nil {
		return PutResult{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	contentHash := in.ContentHash
	if contentHash == "" {
		contentHash = util.ContentHash(in.Payload.Text())
	}
	tokenCount := in.TokenCount
	if tokenCount == 0 {
		tokenCount = EstimateTokens(in.Payload.Text())
	}

	result, err := s.Repo.Put(ctx, Variant{
		SourceID:    in.SourceID,
		SourceType:  in.SourceType,
		Kind:        in.Payload.Kind,
		ContentHash: contentHash,
		Payload:     in.Payload,
		TokenCount:  tokenCount,
		ProducedBy:  in.ProducedBy,
		CreatedAt:   time.Now().UTC(),
	})
	if err != nil {
		return PutResult{}, err
	}

	if result.Deduped {
		metrics.IncExtractionDeduped()
		return result, nil
	}
	metrics.IncExtraction()

	if result.DeactivatedID != "" && s.Deps != nil {
		if err := s.Deps.Invalidate(ctx, in.SourceID, in.SourceType); err != nil {
			telemetry.Error("variants.invalidate", map[string]any{
				"source_id":   in.SourceID,
				"source_type": in.SourceType,
				"error":       err.Error(),
			})
		}
	}
	return result, nil
}

// ExtractVariants stores the raw representation of freshly uploaded text and
// registers the source against its job. Idempotent: re-extracting unchanged
// text returns the existing variant id without writing.
func (s *Service) ExtractVariants(ctx context.Context, jobID, sourceID string, sourceType SourceType, rawText string) ([]string, error) {
	if strings.TrimSpace(rawText) == "" {
		return nil, fmt.Errorf("%w: raw text is empty", ErrInvalidInput)
	}
	if jobID != "" && s.Sources != nil {
		if err := s.Sources.Upsert(ctx, SourceDoc{JobID: jobID, SourceID: sourceID, SourceType: sourceType}); err != nil {
			return nil, fmt.Errorf("register source: %w", err)
		}
	}

	result, err := s.Put(ctx, PutInput{
		SourceID:   sourceID,
		SourceType: sourceType,
		Payload:    NewRawPayload(rawText),
		ProducedBy: "local",
	})
	if err != nil {
		return nil, err
	}
	return []string{result.VariantID}, nil
}

// ExtractFromFile extracts text from an uploaded document and stores the raw
// variant. Extraction failures leave the store untouched.
func (s *Service) ExtractFromFile(ctx context.Context, jobID, sourceID string, sourceType SourceType, data []byte, mimeType, fileName string) ([]string, error) {
	text, err := extract.Text(ctx, data, mimeType, fileName)
	if err != nil {
		return nil, fmt.Errorf("%w: %s mime %s: %w", ErrExtraction, fileName, mimeType, err)
	}
	return s.ExtractVariants(ctx, jobID, sourceID, sourceType, text)
}

// Get returns the active payload for the requested kind, falling back to the
// raw kind for documents uploaded before the kind existed.
func (s *Service) Get(ctx context.Context, sourceID string, sourceType SourceType, kind Kind) (Variant, error) {
	v, err := s.Repo.GetActive(ctx, sourceID, sourceType, kind)
	if err == nil {
		return v, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return Variant{}, err
	}
	if kind == KindRaw {
		return Variant{}, ErrNotFound
	}
	raw, rawErr := s.Repo.GetActive(ctx, sourceID, sourceType, KindRaw)
	if rawErr != nil {
		return Variant{}, ErrNotFound
	}
	return raw, nil
}

// GetAll returns every currently active variant for the source, keyed by kind.
func (s *Service) GetAll(ctx context.Context, sourceID string, sourceType SourceType) (map[Kind]Variant, error) {
	list, err := s.Repo.ListActive(ctx, sourceID, sourceType)
	if err != nil {
		return nil, err
	}
	out := make(map[Kind]Variant, len(list))
	for _, v := range list {
		out[v.Kind] = v
	}
	return out, nil
}

// ActiveContentHash reports the active content hash for a key, or "" when no
// variant exists. Used by the fingerprint engine.
func (s *Service) ActiveContentHash(ctx context.Context, sourceID string, sourceType SourceType, kind Kind) (string, error) {
	v, err := s.Repo.GetActive(ctx, sourceID, sourceType, kind)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return "", nil
		}
		return "", err
	}
	return v.ContentHash, nil
}
