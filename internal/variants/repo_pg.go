package variants

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// PGRepo implements Repo using Postgres. The one-active-row invariant is
// enforced twice: by the row lock taken inside Put's transaction and by the
// partial unique index idx_variants_one_active, so a lost race surfaces as a
// constraint error instead of two active rows.
type PGRepo struct {
	DB *sql.DB
}

// Put applies the deactivate-then-insert contract in a single transaction.
// Any failure rolls back and leaves the previous active row untouched.
func (r *PGRepo) Put(ctx context.Context, v Variant) (PutResult, error) {
	payload, err := json.Marshal(v.Payload)
	if err != nil {
		return PutResult{}, fmt.Errorf("marshal payload: %w", err)
	}

	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return PutResult{}, err
	}
	defer tx.Rollback()

	const lockQuery = `
SELECT id, version, content_hash
FROM variants
WHERE source_id = $1 AND source_type = $2 AND variant_kind = $3 AND is_active
FOR UPDATE`

	var activeID, activeHash string
	var activeVersion int
	err = tx.QueryRowContext(ctx, lockQuery, v.SourceID, v.SourceType, v.Kind).
		Scan(&activeID, &activeVersion, &activeHash)
	hasActive := err == nil
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return PutResult{}, err
	}

	if hasActive && activeHash == v.ContentHash {
		return PutResult{VariantID: activeID, Version: activeVersion, Deduped: true}, nil
	}

	result := PutResult{}
	if hasActive {
		if _, err := tx.ExecContext(ctx, `UPDATE variants SET is_active = FALSE WHERE id = $1`, activeID); err != nil {
			return PutResult{}, err
		}
		result.DeactivatedID = activeID
	}

	var nextVersion int
	const versionQuery = `
SELECT COALESCE(MAX(version), 0) + 1
FROM variants
WHERE source_id = $1 AND source_type = $2 AND variant_kind = $3`
	if err := tx.QueryRowContext(ctx, versionQuery, v.SourceID, v.SourceType, v.Kind).Scan(&nextVersion); err != nil {
		return PutResult{}, err
	}

	id := v.ID
	if id == "" {
		id = uuid.NewString()
	}
	createdAt := v.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	producedBy := v.ProducedBy
	if producedBy == "" {
		producedBy = "local"
	}

	const insertQuery = `
INSERT INTO variants (
    id,
    source_id,
    source_type,
    variant_kind,
    version,
    content_hash,
    payload,
    token_count,
    produced_by,
    is_active,
    created_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, TRUE, $10)`
	if _, err := tx.ExecContext(ctx, insertQuery,
		id,
		v.SourceID,
		v.SourceType,
		v.Kind,
		nextVersion,
		v.ContentHash,
		payload,
		v.TokenCount,
		producedBy,
		createdAt,
	); err != nil {
		return PutResult{}, err
	}

	if err := tx.Commit(); err != nil {
		return PutResult{}, err
	}

	result.VariantID = id
	result.Version = nextVersion
	return result, nil
}

// GetActive returns the active variant for the key.
func (r *PGRepo) GetActive(ctx context.Context, sourceID string, sourceType SourceType, kind Kind) (Variant, error) {
	const query = `
SELECT id, source_id, source_type, variant_kind, version, content_hash, payload, token_count, produced_by, is_active, created_at
FROM variants
WHERE source_id = $1 AND source_type = $2 AND variant_kind = $3 AND is_active
LIMIT 1`
	row := r.DB.QueryRowContext(ctx, query, sourceID, sourceType, kind)
	v, err := scanVariant(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Variant{}, ErrNotFound
		}
		return Variant{}, err
	}
	return v, nil
}

// ListActive returns every active variant for the source, any kind.
func (r *PGRepo) ListActive(ctx context.Context, sourceID string, sourceType SourceType) ([]Variant, error) {
	const query = `
SELECT id, source_id, source_type, variant_kind, version, content_hash, payload, token_count, produced_by, is_active, created_at
FROM variants
WHERE source_id = $1 AND source_type = $2 AND is_active
ORDER BY variant_kind`
	rows, err := r.DB.QueryContext(ctx, query, sourceID, sourceType)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Variant
	for rows.Next() {
		v, err := scanVariant(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanVariant(row rowScanner) (Variant, error) {
	var v Variant
	var payload []byte
	if err := row.Scan(
		&v.ID,
		&v.SourceID,
		&v.SourceType,
		&v.Kind,
		&v.Version,
		&v.ContentHash,
		&payload,
		&v.TokenCount,
		&v.ProducedBy,
		&v.IsActive,
		&v.CreatedAt,
	); err != nil {
		return Variant{}, err
	}
	if err := json.Unmarshal(payload, &v.Payload); err != nil {
		return Variant{}, fmt.Errorf("unmarshal payload: %w", err)
	}
	return v, nil
}

var _ Repo = (*PGRepo)(nil)

// PGSourcesRepo implements SourcesRepo using Postgres.
type PGSourcesRepo struct {
	DB *sql.DB
}

// Upsert records or reactivates a catalog entry.
func (r *PGSourcesRepo) Upsert(ctx context.Context, doc SourceDoc) error {
	const query = `
INSERT INTO job_sources (source_id, source_type, job_id, is_active, created_at)
VALUES ($1, $2, $3, TRUE, $4)
ON CONFLICT (source_id, source_type)
DO UPDATE SET job_id = EXCLUDED.job_id, is_active = TRUE`
	_, err := r.DB.ExecContext(ctx, query, doc.SourceID, doc.SourceType, doc.JobID, time.Now().UTC())
	return err
}

// ListActiveByJob returns the active sources for a job.
func (r *PGSourcesRepo) ListActiveByJob(ctx context.Context, jobID string) ([]SourceDoc, error) {
	const query = `
SELECT source_id, source_type, job_id
FROM job_sources
WHERE job_id = $1 AND is_active
ORDER BY source_type, source_id`
	rows, err := r.DB.QueryContext(ctx, query, jobID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SourceDoc
	for rows.Next() {
		doc := SourceDoc{IsActive: true}
		if err := rows.Scan(&doc.SourceID, &doc.SourceType, &doc.JobID); err != nil {
			return nil, err
		}
		out = append(out, doc)
	}
	return out, rows.Err()
}

// Deactivate marks a catalog entry inactive.
func (r *PGSourcesRepo) Deactivate(ctx context.Context, sourceID string, sourceType SourceType) error {
	const query = `UPDATE job_sources SET is_active = FALSE WHERE source_id = $1 AND source_type = $2`
	_, err := r.DB.ExecContext(ctx, query, sourceID, sourceType)
	return err
}

// ProfileVersion returns the global profile version, defaulting to 1 when
// no profile state row exists. A missing profile never fails the caller.
func (r *PGSourcesRepo) ProfileVersion(ctx context.Context) (int, error) {
	var version int
	err := r.DB.QueryRowContext(ctx, `SELECT version FROM profile_state WHERE id = 1`).Scan(&version)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 1, nil
		}
		return 0, err
	}
	if version <= 0 {
		return 1, nil
	}
	return version, nil
}

// BumpProfileVersion increments the global profile version.
func (r *PGSourcesRepo) BumpProfileVersion(ctx context.Context) error {
	const query = `
INSERT INTO profile_state (id, version) VALUES (1, 2)
ON CONFLICT (id) DO UPDATE SET version = profile_state.version + 1`
	_, err := r.DB.ExecContext(ctx, query)
	return err
}

var _ SourcesRepo = (*PGSourcesRepo)(nil)
