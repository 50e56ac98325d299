package variants

import "context"

// PutResult reports what a Put actually did. Deduped means an active variant
// with the same content hash already existed and nothing was written.
type PutResult struct {
	VariantID     string
	Version       int
	Deduped       bool
	DeactivatedID string
}

// Repo defines persistence for variants. Put must be atomic per
// (sourceID, sourceType, kind): after any interleaving of concurrent puts,
// exactly one row for the key is active.
type Repo interface {
	Put(ctx context.Context, v Variant) (PutResult, error)
	GetActive(ctx context.Context, sourceID string, sourceType SourceType, kind Kind) (Variant, error)
	ListActive(ctx context.Context, sourceID string, sourceType SourceType) ([]Variant, error)
}

// SourceRef identifies a source document.
type SourceRef struct {
	SourceID   string     `json:"sourceId"`
	SourceType SourceType `json:"sourceType"`
}

// SourceDoc is a catalog entry tying a source document to a job. The
// surrounding system owns uploads; this subsystem records what it was told
// so the fingerprint engine can enumerate a job's sources.
type SourceDoc struct {
	JobID      string
	SourceID   string
	SourceType SourceType
	IsActive   bool
}

// SourcesRepo is the job-to-sources catalog plus the global profile version
// counter that participates in fingerprints.
type SourcesRepo interface {
	Upsert(ctx context.Context, doc SourceDoc) error
	ListActiveByJob(ctx context.Context, jobID string) ([]SourceDoc, error)
	Deactivate(ctx context.Context, sourceID string, sourceType SourceType) error
	// ProfileVersion never fails the caller: implementations return
	// (1, nil) when no profile state exists yet.
	ProfileVersion(ctx context.Context) (int, error)
	BumpProfileVersion(ctx context.Context) error
}
