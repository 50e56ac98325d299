package variants

import (
	"context"
	"testing"
)

type recordingInvalidator struct {
	calls []SourceRef
}

func (r *recordingInvalidator) Invalidate(ctx context.Context, sourceID string, sourceType SourceType) error {
	r.calls = append(r.calls, SourceRef{SourceID: sourceID, SourceType: sourceType})
	return nil
}

func newTestService() (*Service, *MemoryRepo, *recordingInvalidator) {
	repo := NewMemoryRepo()
	inv := &recordingInvalidator{}
	svc := &Service{Repo: repo, Sources: NewMemorySourcesRepo(), Deps: inv}
	return svc, repo, inv
}

func TestExtractVariantsIdempotent(t *testing.T) {
	svc, repo, _ := newTestService()
	ctx := context.Background()

	first, err := svc.ExtractVariants(ctx, "job-1", "att-1", SourceResume, "resume body")
	if err != nil {
		t.Fatalf("first extract: %v", err)
	}
	second, err := svc.ExtractVariants(ctx, "job-1", "att-1", SourceResume, "resume body")
	if err != nil {
		t.Fatalf("second extract: %v", err)
	}
	if first[0] != second[0] {
		t.Fatalf("expected same variant id, got %s and %s", first[0], second[0])
	}
	if got := repo.historyLen("att-1", SourceResume, KindRaw); got != 1 {
		t.Fatalf("expected one stored row, got %d", got)
	}
}

func TestPutSupersedesAndKeepsHistory(t *testing.T) {
	svc, repo, inv := newTestService()
	ctx := context.Background()

	if _, err := svc.ExtractVariants(ctx, "job-1", "att-1", SourceResume, "version one"); err != nil {
		t.Fatalf("extract v1: %v", err)
	}
	if _, err := svc.ExtractVariants(ctx, "job-1", "att-1", SourceResume, "version two"); err != nil {
		t.Fatalf("extract v2: %v", err)
	}

	if got := repo.historyLen("att-1", SourceResume, KindRaw); got != 2 {
		t.Fatalf("expected append-only history of 2, got %d", got)
	}
	active, err := repo.GetActive(ctx, "att-1", SourceResume, KindRaw)
	if err != nil {
		t.Fatalf("GetActive: %v", err)
	}
	if active.Version != 2 || active.Payload.Text() != "version two" {
		t.Fatalf("expected v2 active, got version %d text %q", active.Version, active.Payload.Text())
	}
	if len(inv.calls) != 1 {
		t.Fatalf("expected one invalidation, got %d", len(inv.calls))
	}
}

func TestSingleActiveInvariantAfterManyPuts(t *testing.T) {
	svc, repo, _ := newTestService()
	ctx := context.Background()

	texts := []string{"a body", "b body", "a body", "c body", "c body"}
	for _, text := range texts {
		if _, err := svc.ExtractVariants(ctx, "job-1", "att-1", SourceResume, text); err != nil {
			t.Fatalf("extract %q: %v", text, err)
		}
	}

	repo.mu.Lock()
	activeCount := 0
	for _, v := range repo.data[variantKey("att-1", SourceResume, KindRaw)] {
		if v.IsActive {
			activeCount++
		}
	}
	repo.mu.Unlock()
	if activeCount != 1 {
		t.Fatalf("expected exactly one active row, got %d", activeCount)
	}
}

func TestGetFallsBackToRaw(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	if _, err := svc.ExtractVariants(ctx, "job-1", "att-1", SourceResume, "raw only"); err != nil {
		t.Fatalf("extract: %v", err)
	}

	v, err := svc.Get(ctx, "att-1", SourceResume, KindAIOptimized)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if v.Kind != KindRaw || v.Payload.Text() != "raw only" {
		t.Fatalf("expected raw fallback, got kind %q text %q", v.Kind, v.Payload.Text())
	}

	if _, err := svc.Get(ctx, "missing", SourceResume, KindAIOptimized); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestGetPrefersRequestedKind(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	if _, err := svc.ExtractVariants(ctx, "job-1", "att-1", SourceResume, "raw text"); err != nil {
		t.Fatalf("extract: %v", err)
	}
	if _, err := svc.Put(ctx, PutInput{
		SourceID:   "att-1",
		SourceType: SourceResume,
		Payload:    NewOptimizedPayload("normalized text", "summary"),
		ProducedBy: "gpt-4o-mini",
	}); err != nil {
		t.Fatalf("put optimized: %v", err)
	}

	v, err := svc.Get(ctx, "att-1", SourceResume, KindAIOptimized)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if v.Kind != KindAIOptimized || v.Payload.Text() != "normalized text" {
		t.Fatalf("expected optimized variant, got kind %q", v.Kind)
	}
}

func TestGetAllReturnsActiveMap(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	if _, err := svc.ExtractVariants(ctx, "job-1", "att-1", SourceResume, "raw text"); err != nil {
		t.Fatalf("extract: %v", err)
	}
	if _, err := svc.Put(ctx, PutInput{
		SourceID:   "att-1",
		SourceType: SourceResume,
		Payload:    NewOptimizedPayload("normalized", ""),
	}); err != nil {
		t.Fatalf("put optimized: %v", err)
	}

	all, err := svc.GetAll(ctx, "att-1", SourceResume)
	if err != nil {
		t.Fatalf("GetAll: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected two kinds, got %d", len(all))
	}
	if _, ok := all[KindRaw]; !ok {
		t.Fatal("expected raw kind present")
	}
	if _, ok := all[KindAIOptimized]; !ok {
		t.Fatal("expected ai_optimized kind present")
	}
}

func TestPutRejectsInvalidInput(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	if _, err := svc.Put(ctx, PutInput{SourceType: SourceResume, Payload: NewRawPayload("x")}); err == nil {
		t.Fatal("expected error for missing sourceId")
	}
	if _, err := svc.Put(ctx, PutInput{SourceID: "a", SourceType: "mystery", Payload: NewRawPayload("x")}); err == nil {
		t.Fatal("expected error for unknown source type")
	}
	if _, err := svc.Put(ctx, PutInput{SourceID: "a", SourceType: SourceResume, Payload: Payload{Kind: KindRaw}}); err == nil {
		t.Fatal("expected error for kind/field mismatch")
	}
}

func TestDedupSkipsInvalidation(t *testing.T) {
	svc, _, inv := newTestService()
	ctx := context.Background()

	if _, err := svc.ExtractVariants(ctx, "job-1", "att-1", SourceResume, "same text"); err != nil {
		t.Fatalf("extract: %v", err)
	}
	if _, err := svc.ExtractVariants(ctx, "job-1", "att-1", SourceResume, "same text"); err != nil {
		t.Fatalf("re-extract: %v", err)
	}
	if len(inv.calls) != 0 {
		t.Fatalf("expected no invalidations for deduped put, got %d", len(inv.calls))
	}
}

func TestActiveContentHashMissingIsEmpty(t *testing.T) {
	svc, _, _ := newTestService()
	hash, err := svc.ActiveContentHash(context.Background(), "none", SourceResume, KindAIOptimized)
	if err != nil {
		t.Fatalf("ActiveContentHash: %v", err)
	}
	if hash != "" {
		t.Fatalf("expected empty hash for missing variant, got %q", hash)
	}
}
