package variants

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestPGRepoPutDedupesOnSameHash(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	repo := &PGRepo{DB: db}

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id, version, content_hash").
		WithArgs("att-1", SourceResume, KindRaw).
		WillReturnRows(sqlmock.NewRows([]string{"id", "version", "content_hash"}).
			AddRow("existing-id", 3, "hash-a"))
	mock.ExpectRollback()

	result, err := repo.Put(context.Background(), Variant{
		SourceID:    "att-1",
		SourceType:  SourceResume,
		Kind:        KindRaw,
		ContentHash: "hash-a",
		Payload:     NewRawPayload("unchanged"),
	})
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if !result.Deduped || result.VariantID != "existing-id" || result.Version != 3 {
		t.Fatalf("expected dedup of existing-id v3, got %+v", result)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}

func TestPGRepoPutDeactivatesThenInserts(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	repo := &PGRepo{DB: db}

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id, version, content_hash").
		WithArgs("att-1", SourceResume, KindRaw).
		WillReturnRows(sqlmock.NewRows([]string{"id", "version", "content_hash"}).
			AddRow("old-id", 1, "hash-old"))
	mock.ExpectExec("UPDATE variants SET is_active = FALSE").
		WithArgs("old-id").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`SELECT COALESCE\(MAX\(version\), 0\) \+ 1`).
		WithArgs("att-1", SourceResume, KindRaw).
		WillReturnRows(sqlmock.NewRows([]string{"next"}).AddRow(2))
	mock.ExpectExec("INSERT INTO variants").
		WithArgs(
			sqlmock.AnyArg(), // id
			"att-1",
			SourceResume,
			KindRaw,
			2,
			"hash-new",
			sqlmock.AnyArg(), // payload json
			sqlmock.AnyArg(), // token count
			"local",
			sqlmock.AnyArg(), // created at
		).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	result, err := repo.Put(context.Background(), Variant{
		SourceID:    "att-1",
		SourceType:  SourceResume,
		Kind:        KindRaw,
		ContentHash: "hash-new",
		Payload:     NewRawPayload("new text"),
	})
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if result.Deduped {
		t.Fatal("expected a write, not a dedup")
	}
	if result.DeactivatedID != "old-id" || result.Version != 2 {
		t.Fatalf("expected old-id superseded at v2, got %+v", result)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}

func TestPGRepoPutRollsBackOnFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	repo := &PGRepo{DB: db}

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id, version, content_hash").
		WithArgs("att-1", SourceResume, KindRaw).
		WillReturnRows(sqlmock.NewRows([]string{"id", "version", "content_hash"}).
			AddRow("old-id", 1, "hash-old"))
	mock.ExpectExec("UPDATE variants SET is_active = FALSE").
		WithArgs("old-id").
		WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	if _, err := repo.Put(context.Background(), Variant{
		SourceID:    "att-1",
		SourceType:  SourceResume,
		Kind:        KindRaw,
		ContentHash: "hash-new",
		Payload:     NewRawPayload("new text"),
	}); err == nil {
		t.Fatal("expected write failure to surface")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}

func TestPGSourcesRepoProfileVersionDefault(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	repo := &PGSourcesRepo{DB: db}

	mock.ExpectQuery("SELECT version FROM profile_state").
		WillReturnRows(sqlmock.NewRows([]string{"version"}))

	version, err := repo.ProfileVersion(context.Background())
	if err != nil {
		t.Fatalf("ProfileVersion: %v", err)
	}
	if version != 1 {
		t.Fatalf("expected default version 1, got %d", version)
	}
}
