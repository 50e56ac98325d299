package analysis

import (
	"context"
	"sort"
	"sync"

	"github.com/gmarmat/jotrack/internal/variants"
)

// MemoryRecordsRepo is an in-memory RecordsRepo for tests and DB-less runs.
type MemoryRecordsRepo struct {
	mu      sync.Mutex
	records map[string][]Record
}

func NewMemoryRecordsRepo() *MemoryRecordsRepo {
	return &MemoryRecordsRepo{records: make(map[string][]Record)}
}

func recordKey(jobID string, typ Type) string {
	return jobID + "|" + string(typ)
}

func (r *MemoryRecordsRepo) Append(ctx context.Context, rec Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := recordKey(rec.JobID, rec.Type)
	r.records[key] = append(r.records[key], rec)
	return nil
}

func (r *MemoryRecordsRepo) Latest(ctx context.Context, jobID string, typ Type) (Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	history := r.records[recordKey(jobID, typ)]
	if len(history) == 0 {
		return Record{}, ErrNotFound
	}
	return history[len(history)-1], nil
}

func (r *MemoryRecordsRepo) LatestByJob(ctx context.Context, jobID string) ([]Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Record
	for _, typ := range KnownTypes {
		history := r.records[recordKey(jobID, typ)]
		if len(history) > 0 {
			out = append(out, history[len(history)-1])
		}
	}
	return out, nil
}

// historyLen is a test hook.
func (r *MemoryRecordsRepo) historyLen(jobID string, typ Type) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.records[recordKey(jobID, typ)])
}

// MemoryDepsRepo is an in-memory DepsRepo.
type MemoryDepsRepo struct {
	mu      sync.Mutex
	records []DependencyRecord
}

func NewMemoryDepsRepo() *MemoryDepsRepo {
	return &MemoryDepsRepo{}
}

func (r *MemoryDepsRepo) Append(ctx context.Context, rec DependencyRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, rec)
	return nil
}

func (r *MemoryDepsRepo) Latest(ctx context.Context, jobID string, typ Type) (DependencyRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.records) - 1; i >= 0; i-- {
		if r.records[i].JobID == jobID && r.records[i].Type == typ {
			return r.records[i], nil
		}
	}
	return DependencyRecord{}, ErrNotFound
}

func (r *MemoryDepsRepo) InvalidateByVariant(ctx context.Context, sourceID string, sourceType variants.SourceType) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	affected := make(map[string]bool)
	for i := range r.records {
		rec := &r.records[i]
		if !rec.IsValid {
			continue
		}
		for _, dep := range rec.DependsOn {
			if dep.SourceID == sourceID && dep.SourceType == sourceType {
				rec.IsValid = false
				affected[rec.JobID] = true
				break
			}
		}
	}
	jobs := make([]string, 0, len(affected))
	for jobID := range affected {
		jobs = append(jobs, jobID)
	}
	sort.Strings(jobs)
	return jobs, nil
}
