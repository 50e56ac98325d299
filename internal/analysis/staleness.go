package analysis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/gmarmat/jotrack/internal/shared/telemetry"
	"github.com/gmarmat/jotrack/internal/variants"
)

// Engine owns fingerprints and the staleness state machine. It never runs
// an analysis itself; it only decides whether one is needed and records the
// outcome when a caller commits one.
type Engine struct {
	Records  RecordsRepo
	Sources  sourceCatalog
	Variants variantHashes
	// Now is a test hook; nil means time.Now.
	Now func() time.Time
}

func (e *Engine) now() time.Time {
	if e.Now != nil {
		return e.Now().UTC()
	}
	return time.Now().UTC()
}

// CheckStaleness evaluates the job in strict priority order. "No variants
// yet" outranks a stale fingerprint because the caller's next step differs:
// extract first, re-analyze second.
func (e *Engine) CheckStaleness(ctx context.Context, jobID string) (StalenessReport, error) {
	report := StalenessReport{JobID: jobID, Severity: SeverityNone}

	sources, err := e.Sources.ListActiveByJob(ctx, jobID)
	if err != nil {
		return StalenessReport{}, fmt.Errorf("list job sources: %w", err)
	}

	latest, hasRecord, err := e.latestForJob(ctx, jobID)
	if err != nil {
		return StalenessReport{}, err
	}

	// 1. Nothing to judge: report the prior state unchanged.
	if len(sources) == 0 {
		if hasRecord {
			report.State = latest.State
			report.IsStale = latest.State == StateStale
		} else {
			report.State = StatePending
		}
		report.Message = "no source documents for this job"
		return report, nil
	}

	// 2. Raw content exists but nothing analyzable has been produced.
	anyNormalized := false
	for _, src := range sources {
		hash, err := e.Variants.ActiveContentHash(ctx, src.SourceID, src.SourceType, variants.KindAIOptimized)
		if err != nil {
			return StalenessReport{}, fmt.Errorf("variant hash for %s/%s: %w", src.SourceType, src.SourceID, err)
		}
		if hash != "" {
			anyNormalized = true
			break
		}
	}
	if !anyNormalized {
		report.State = StateNoVariants
		report.Message = "no normalized variants yet; extract before analyzing"
		return report, nil
	}

	// 3. Analyzable but never analyzed.
	if !hasRecord || latest.LastCompletedAt == nil {
		if hasRecord && latest.State == StateAnalyzing {
			report.State = StateAnalyzing
			report.Message = "analysis in progress"
			return report, nil
		}
		report.State = StateVariantsFresh
		report.Message = "variants ready, no analysis has completed"
		return report, nil
	}

	current, err := e.ComputeFingerprint(ctx, jobID)
	if err != nil {
		return StalenessReport{}, err
	}

	// 4. Explicitly marked stale: grade by which source types changed.
	if latest.State == StateStale {
		return e.staleReport(jobID, latest.FingerprintTokens, current.Tokens), nil
	}

	// 5. Completed but no fingerprint on record.
	if latest.Fingerprint == "" {
		report.State = StateNeverAnalyzed
		report.IsStale = true
		report.Severity = SeverityMajor
		report.Message = "analysis completed without a fingerprint; re-run to record one"
		return report, nil
	}

	if latest.State == StateAnalyzing {
		report.State = StateAnalyzing
		report.Message = "analysis in progress"
		return report, nil
	}

	// 6. Fingerprint equality is sufficient for freshness.
	if latest.Fingerprint != current.Hash {
		return e.staleReport(jobID, latest.FingerprintTokens, current.Tokens), nil
	}
	report.State = StateFresh
	report.Message = "analysis is up to date"
	return report, nil
}

func (e *Engine) staleReport(jobID string, prevTokens, currTokens []string) StalenessReport {
	report := StalenessReport{JobID: jobID, State: StateStale, IsStale: true, Severity: SeverityMinor}
	changed := changedSourceTypes(prevTokens, currTokens)
	for _, typ := range changed {
		if primarySourceTypes[typ] {
			report.Severity = SeverityMajor
			break
		}
	}
	switch report.Severity {
	case SeverityMajor:
		report.Message = "a primary document changed; re-run analysis"
	default:
		report.Message = "supporting content changed; re-run analysis when convenient"
	}
	return report
}

// CommitFresh recomputes the fingerprint and appends a fresh record with the
// completion time. Used at the end of a successful analysis run.
func (e *Engine) CommitFresh(ctx context.Context, jobID string, typ Type) error {
	if !typ.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownType, typ)
	}
	fp, err := e.ComputeFingerprint(ctx, jobID)
	if err != nil {
		return err
	}
	completedAt := e.now()
	rec := Record{
		ID:                uuid.NewString(),
		JobID:             jobID,
		Type:              typ,
		State:             StateFresh,
		Fingerprint:       fp.Hash,
		FingerprintTokens: fp.Tokens,
		LastCompletedAt:   &completedAt,
		CreatedAt:         completedAt,
	}
	if err := e.Records.Append(ctx, rec); err != nil {
		return fmt.Errorf("append fresh record: %w", err)
	}
	telemetry.Info("analysis.fresh", map[string]any{
		"job_id":        jobID,
		"analysis_type": string(typ),
		"fingerprint":   fp.Hash,
	})
	return nil
}

// MarkStale appends a stale record for every analysis type the job has
// history for, carrying the prior fingerprint forward so the next staleness
// check can grade what changed. A job with no history has nothing to mark.
func (e *Engine) MarkStale(ctx context.Context, jobID string) error {
	records, err := e.Records.LatestByJob(ctx, jobID)
	if err != nil {
		return fmt.Errorf("list records: %w", err)
	}
	for _, prev := range records {
		if prev.State == StateStale {
			continue
		}
		rec := prev
		rec.ID = uuid.NewString()
		rec.State = StateStale
		rec.CreatedAt = e.now()
		if err := e.Records.Append(ctx, rec); err != nil {
			return fmt.Errorf("append stale record: %w", err)
		}
	}
	return nil
}

// MarkAnalyzing appends an analyzing record so concurrent staleness checks
// see the in-flight run. The prior record is returned so a failed run can
// Restore it, leaving the job in its pre-run state.
func (e *Engine) MarkAnalyzing(ctx context.Context, jobID string, typ Type) (prior Record, hadPrior bool, err error) {
	if !typ.Valid() {
		return Record{}, false, fmt.Errorf("%w: %q", ErrUnknownType, typ)
	}
	prior, hadPrior, err = e.latest(ctx, jobID, typ)
	if err != nil {
		return Record{}, false, err
	}
	rec := Record{
		ID:        uuid.NewString(),
		JobID:     jobID,
		Type:      typ,
		State:     StateAnalyzing,
		CreatedAt: e.now(),
	}
	if hadPrior {
		rec.Fingerprint = prior.Fingerprint
		rec.FingerprintTokens = prior.FingerprintTokens
		rec.LastCompletedAt = prior.LastCompletedAt
	}
	if err := e.Records.Append(ctx, rec); err != nil {
		return Record{}, false, err
	}
	return prior, hadPrior, nil
}

// Restore re-appends a prior record after a failed or abandoned run, so the
// job reads as if the run never started.
func (e *Engine) Restore(ctx context.Context, prior Record) error {
	restored := prior
	restored.ID = uuid.NewString()
	restored.CreatedAt = e.now()
	return e.Records.Append(ctx, restored)
}

// LastCompletedAt returns the completion time of the newest record for the
// key, or the zero time when none exists. Used by the run cooldown.
func (e *Engine) LastCompletedAt(ctx context.Context, jobID string, typ Type) (time.Time, error) {
	rec, hasRecord, err := e.latest(ctx, jobID, typ)
	if err != nil {
		return time.Time{}, err
	}
	if !hasRecord || rec.LastCompletedAt == nil {
		return time.Time{}, nil
	}
	return *rec.LastCompletedAt, nil
}

func (e *Engine) latest(ctx context.Context, jobID string, typ Type) (Record, bool, error) {
	rec, err := e.Records.Latest(ctx, jobID, typ)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Record{}, false, nil
		}
		return Record{}, false, err
	}
	return rec, true, nil
}

// latestForJob returns the newest record across all analysis types.
func (e *Engine) latestForJob(ctx context.Context, jobID string) (Record, bool, error) {
	records, err := e.Records.LatestByJob(ctx, jobID)
	if err != nil {
		return Record{}, false, err
	}
	if len(records) == 0 {
		return Record{}, false, nil
	}
	newest := records[0]
	for _, rec := range records[1:] {
		if rec.CreatedAt.After(newest.CreatedAt) {
			newest = rec
		}
	}
	return newest, true, nil
}
