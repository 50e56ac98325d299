package analysis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/gmarmat/jotrack/internal/shared/metrics"
	"github.com/gmarmat/jotrack/internal/shared/telemetry"
	"github.com/gmarmat/jotrack/internal/variants"
)

// Tracker records which variants each analysis read and lazily invalidates
// cached results when a variant is superseded. Nothing is recomputed
// eagerly: invalidation only marks jobs stale, the next requested run pays
// the cost.
type Tracker struct {
	Deps   DepsRepo
	Engine *Engine
	// Now is a test hook; nil means time.Now.
	Now func() time.Time
}

func (t *Tracker) now() time.Time {
	if t.Now != nil {
		return t.Now().UTC()
	}
	return time.Now().UTC()
}

// Record appends a dependency record for a completed run. Prior records for
// the same key are kept as audit trail.
func (t *Tracker) Record(ctx context.Context, jobID string, typ Type, used []VariantRef) error {
	if !typ.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownType, typ)
	}
	if jobID == "" {
		return fmt.Errorf("record dependencies: empty job id")
	}
	rec := DependencyRecord{
		ID:        uuid.NewString(),
		JobID:     jobID,
		Type:      typ,
		DependsOn: used,
		IsValid:   true,
		CreatedAt: t.now(),
	}
	return t.Deps.Append(ctx, rec)
}

// Invalidate flips every valid dependency record referencing the source and
// marks each affected job stale. Satisfies the variant store's Invalidator
// so a superseding put propagates here automatically.
func (t *Tracker) Invalidate(ctx context.Context, sourceID string, sourceType variants.SourceType) error {
	jobs, err := t.Deps.InvalidateByVariant(ctx, sourceID, sourceType)
	if err != nil {
		return fmt.Errorf("invalidate dependencies: %w", err)
	}
	for _, jobID := range jobs {
		if err := t.Engine.MarkStale(ctx, jobID); err != nil {
			return fmt.Errorf("mark job %s stale: %w", jobID, err)
		}
		metrics.IncInvalidation()
	}
	if len(jobs) > 0 {
		telemetry.Info("dependencies.invalidated", map[string]any{
			"source_id":   sourceID,
			"source_type": string(sourceType),
			"jobs":        len(jobs),
		})
	}
	return nil
}

// IsValid reports the newest dependency record's flag, false when none
// exists.
func (t *Tracker) IsValid(ctx context.Context, jobID string, typ Type) (bool, error) {
	rec, err := t.Deps.Latest(ctx, jobID, typ)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return rec.IsValid, nil
}

var _ variants.Invalidator = (*Tracker)(nil)
