package variants

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryRepo is an in-memory implementation of Repo, safe for concurrent use.
type MemoryRepo struct {
	mu   sync.Mutex
	data map[string][]Variant // key -> full history, newest last
}

// NewMemoryRepo constructs a MemoryRepo.
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{data: make(map[string][]Variant)}
}

func variantKey(sourceID string, sourceType SourceType, kind Kind) string {
	return sourceID + "|" + string(sourceType) + "|" + string(kind)
}

// Put applies the deactivate-then-insert contract under a single lock.
func (r *MemoryRepo) Put(ctx context.Context, v Variant) (PutResult, error) {
	if err := ctx.Err(); err != nil {
		return PutResult{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	key := variantKey(v.SourceID, v.SourceType, v.Kind)
	history := r.data[key]

	var active *Variant
	for i := range history {
		if history[i].IsActive {
			active = &history[i]
			break
		}
	}

	if active != nil && active.ContentHash == v.ContentHash {
		return PutResult{VariantID: active.ID, Version: active.Version, Deduped: true}, nil
	}

	result := PutResult{}
	if active != nil {
		active.IsActive = false
		result.DeactivatedID = active.ID
	}

	v.ID = uuid.NewString()
	v.Version = len(history) + 1
	v.IsActive = true
	if v.CreatedAt.IsZero() {
		v.CreatedAt = time.Now().UTC()
	}
	r.data[key] = append(history, v)

	result.VariantID = v.ID
	result.Version = v.Version
	return result, nil
}

// GetActive returns the active variant for the key.
func (r *MemoryRepo) GetActive(ctx context.Context, sourceID string, sourceType SourceType, kind Kind) (Variant, error) {
	if err := ctx.Err(); err != nil {
		return Variant{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, v := range r.data[variantKey(sourceID, sourceType, kind)] {
		if v.IsActive {
			return v, nil
		}
	}
	return Variant{}, ErrNotFound
}

// ListActive returns every active variant for the source, any kind.
func (r *MemoryRepo) ListActive(ctx context.Context, sourceID string, sourceType SourceType) ([]Variant, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []Variant
	prefix := sourceID + "|" + string(sourceType) + "|"
	for key, history := range r.data {
		if len(key) < len(prefix) || key[:len(prefix)] != prefix {
			continue
		}
		for _, v := range history {
			if v.IsActive {
				out = append(out, v)
			}
		}
	}
	return out, nil
}

// historyLen is a test hook exposing how many rows exist for a key.
func (r *MemoryRepo) historyLen(sourceID string, sourceType SourceType, kind Kind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.data[variantKey(sourceID, sourceType, kind)])
}

var _ Repo = (*MemoryRepo)(nil)

// MemorySourcesRepo is an in-memory SourcesRepo.
type MemorySourcesRepo struct {
	mu             sync.Mutex
	docs           map[string]SourceDoc // sourceID|sourceType
	profileVersion int
}

// NewMemorySourcesRepo constructs a MemorySourcesRepo.
func NewMemorySourcesRepo() *MemorySourcesRepo {
	return &MemorySourcesRepo{docs: make(map[string]SourceDoc), profileVersion: 1}
}

func sourceKey(sourceID string, sourceType SourceType) string {
	return sourceID + "|" + string(sourceType)
}

// Upsert records or reactivates a catalog entry.
func (r *MemorySourcesRepo) Upsert(ctx context.Context, doc SourceDoc) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	doc.IsActive = true
	r.docs[sourceKey(doc.SourceID, doc.SourceType)] = doc
	return nil
}

// ListActiveByJob returns the active sources for a job.
func (r *MemorySourcesRepo) ListActiveByJob(ctx context.Context, jobID string) ([]SourceDoc, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []SourceDoc
	for _, doc := range r.docs {
		if doc.JobID == jobID && doc.IsActive {
			out = append(out, doc)
		}
	}
	return out, nil
}

// Deactivate marks a catalog entry inactive.
func (r *MemorySourcesRepo) Deactivate(ctx context.Context, sourceID string, sourceType SourceType) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	key := sourceKey(sourceID, sourceType)
	doc, ok := r.docs[key]
	if !ok {
		return nil
	}
	doc.IsActive = false
	r.docs[key] = doc
	return nil
}

// ProfileVersion returns the current global profile version.
func (r *MemorySourcesRepo) ProfileVersion(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.profileVersion <= 0 {
		return 1, nil
	}
	return r.profileVersion, nil
}

// BumpProfileVersion increments the global profile version.
func (r *MemorySourcesRepo) BumpProfileVersion(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.profileVersion <= 0 {
		r.profileVersion = 1
	}
	r.profileVersion++
	return nil
}

var _ SourcesRepo = (*MemorySourcesRepo)(nil)
