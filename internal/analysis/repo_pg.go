package analysis

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/gmarmat/jotrack/internal/variants"
)

// PGRecordsRepo implements RecordsRepo using Postgres. Rows are append-only;
// the newest row per (job_id, analysis_type) is authoritative and older rows
// remain as audit history.
type PGRecordsRepo struct {
	DB *sql.DB
}

func (r *PGRecordsRepo) Append(ctx context.Context, rec Record) error {
	tokens, err := json.Marshal(rec.FingerprintTokens)
	if err != nil {
		return fmt.Errorf("marshal fingerprint tokens: %w", err)
	}
	id := rec.ID
	if id == "" {
		id = uuid.NewString()
	}
	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	const query = `
INSERT INTO analysis_records (id, job_id, analysis_type, state, fingerprint, fingerprint_tokens, last_completed_at, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err = r.DB.ExecContext(ctx, query,
		id,
		rec.JobID,
		rec.Type,
		rec.State,
		rec.Fingerprint,
		tokens,
		rec.LastCompletedAt,
		createdAt,
	)
	return err
}

func (r *PGRecordsRepo) Latest(ctx context.Context, jobID string, typ Type) (Record, error) {
	const query = `
SELECT id, job_id, analysis_type, state, fingerprint, fingerprint_tokens, last_completed_at, created_at
FROM analysis_records
WHERE job_id = $1 AND analysis_type = $2
ORDER BY created_at DESC
LIMIT 1`
	rec, err := scanRecord(r.DB.QueryRowContext(ctx, query, jobID, typ))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Record{}, ErrNotFound
		}
		return Record{}, err
	}
	return rec, nil
}

func (r *PGRecordsRepo) LatestByJob(ctx context.Context, jobID string) ([]Record, error) {
	const query = `
SELECT DISTINCT ON (analysis_type)
    id, job_id, analysis_type, state, fingerprint, fingerprint_tokens, last_completed_at, created_at
FROM analysis_records
WHERE job_id = $1
ORDER BY analysis_type, created_at DESC`
	rows, err := r.DB.QueryContext(ctx, query, jobID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (Record, error) {
	var rec Record
	var tokens []byte
	if err := row.Scan(
		&rec.ID,
		&rec.JobID,
		&rec.Type,
		&rec.State,
		&rec.Fingerprint,
		&tokens,
		&rec.LastCompletedAt,
		&rec.CreatedAt,
	); err != nil {
		return Record{}, err
	}
	if err := json.Unmarshal(tokens, &rec.FingerprintTokens); err != nil {
		return Record{}, fmt.Errorf("unmarshal fingerprint tokens: %w", err)
	}
	return rec, nil
}

var _ RecordsRepo = (*PGRecordsRepo)(nil)

// PGDepsRepo implements DepsRepo using Postgres.
type PGDepsRepo struct {
	DB *sql.DB
}

func (r *PGDepsRepo) Append(ctx context.Context, rec DependencyRecord) error {
	deps, err := json.Marshal(rec.DependsOn)
	if err != nil {
		return fmt.Errorf("marshal depends_on: %w", err)
	}
	id := rec.ID
	if id == "" {
		id = uuid.NewString()
	}
	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	const query = `
INSERT INTO dependency_records (id, job_id, analysis_type, depends_on, is_valid, created_at)
VALUES ($1, $2, $3, $4, $5, $6)`
	_, err = r.DB.ExecContext(ctx, query, id, rec.JobID, rec.Type, deps, rec.IsValid, createdAt)
	return err
}

func (r *PGDepsRepo) Latest(ctx context.Context, jobID string, typ Type) (DependencyRecord, error) {
	const query = `
SELECT id, job_id, analysis_type, depends_on, is_valid, created_at
FROM dependency_records
WHERE job_id = $1 AND analysis_type = $2
ORDER BY created_at DESC
LIMIT 1`
	var rec DependencyRecord
	var deps []byte
	err := r.DB.QueryRowContext(ctx, query, jobID, typ).Scan(
		&rec.ID,
		&rec.JobID,
		&rec.Type,
		&deps,
		&rec.IsValid,
		&rec.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return DependencyRecord{}, ErrNotFound
		}
		return DependencyRecord{}, err
	}
	if err := json.Unmarshal(deps, &rec.DependsOn); err != nil {
		return DependencyRecord{}, fmt.Errorf("unmarshal depends_on: %w", err)
	}
	return rec, nil
}

// InvalidateByVariant flips is_valid on every valid record whose depends_on
// array contains the key. The JSONB containment predicate rides the partial
// GIN index on depends_on.
func (r *PGDepsRepo) InvalidateByVariant(ctx context.Context, sourceID string, sourceType variants.SourceType) ([]string, error) {
	needle, err := json.Marshal([]map[string]string{{
		"sourceId":   sourceID,
		"sourceType": string(sourceType),
	}})
	if err != nil {
		return nil, fmt.Errorf("marshal containment needle: %w", err)
	}

	const query = `
UPDATE dependency_records
SET is_valid = FALSE
WHERE is_valid AND depends_on @> $1::jsonb
RETURNING job_id`
	rows, err := r.DB.QueryContext(ctx, query, needle)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	seen := make(map[string]bool)
	var jobs []string
	for rows.Next() {
		var jobID string
		if err := rows.Scan(&jobID); err != nil {
			return nil, err
		}
		if !seen[jobID] {
			seen[jobID] = true
			jobs = append(jobs, jobID)
		}
	}
	return jobs, rows.Err()
}

var _ DepsRepo = (*PGDepsRepo)(nil)
