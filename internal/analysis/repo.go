package analysis

import (
	"context"

	"github.com/gmarmat/jotrack/internal/variants"
)

// RecordsRepo persists the append-only analysis history.
type RecordsRepo interface {
	Append(ctx context.Context, rec Record) error
	// Latest returns the newest record for (jobID, analysisType) or
	// ErrNotFound.
	Latest(ctx context.Context, jobID string, typ Type) (Record, error)
	// LatestByJob returns the newest record per analysis type for the job.
	LatestByJob(ctx context.Context, jobID string) ([]Record, error)
}

// DepsRepo persists the append-only dependency history.
type DepsRepo interface {
	Append(ctx context.Context, rec DependencyRecord) error
	// Latest returns the newest dependency record for (jobID, analysisType)
	// or ErrNotFound.
	Latest(ctx context.Context, jobID string, typ Type) (DependencyRecord, error)
	// InvalidateByVariant flips IsValid=false on every valid record whose
	// DependsOn references (sourceID, sourceType) and returns the affected
	// jobs, deduplicated.
	InvalidateByVariant(ctx context.Context, sourceID string, sourceType variants.SourceType) ([]string, error)
}
