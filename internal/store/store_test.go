package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"tariffmaster/internal/db/mock"
	"tariffmaster/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

func newStore(t *testing.T) *Store {
	t.Helper()

	database, err := mock.New(context.Background())
	if err != nil {
		t.Fatalf("mock.New() error = %v", err)
	}
	s, err := New(database)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return s
}

func TestNewRejectsNilDatabase(t *testing.T) {
	t.Parallel()

	if _, err := New(nil); !errors.Is(err, ErrNilDatabase) {
		t.Fatalf("New(nil) error = %v, want %v", err, ErrNilDatabase)
	}
}

func TestClearReferenceKeepsLedger(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := newStore(t)

	if _, err := s.RecordRun(ctx, Run{Phase: "load", StartedAt: time.Now(), FinishedAt: time.Now()}); err != nil {
		t.Fatalf("RecordRun() error = %v", err)
	}

	if err := s.Transaction(ctx, ClearReference); err != nil {
		t.Fatalf("ClearReference() error = %v", err)
	}

	for _, model := range referenceTables() {
		var count int64
		if err := s.DB(ctx).Model(model).Count(&count).Error; err != nil {
			t.Fatalf("count %T: %v", model, err)
		}
		if count != 0 {
			t.Fatalf("count %T = %d, want 0", model, count)
		}
	}

	var runs int64
	if err := s.DB(ctx).Model(&models.PipelineRun{}).Count(&runs).Error; err != nil {
		t.Fatalf("count runs: %v", err)
	}
	if runs != 1 {
		t.Fatalf("runs = %d, want 1", runs)
	}
}

func TestTransactionRollsBackOnError(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := newStore(t)
	boom := errors.New("boom")

	err := s.Transaction(ctx, func(tx *gorm.DB) error {
		if err := ClearReference(tx); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("Transaction() error = %v, want %v", err, boom)
	}

	var count int64
	if err := s.DB(ctx).Model(&models.BrandedPack{}).Count(&count).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 12 {
		t.Fatalf("branded packs = %d, want 12 after rollback", count)
	}
}

func TestSourceFingerprints(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := newStore(t)
	db := s.DB(ctx)

	if _, ok, err := LastFingerprint(db, "generic_pack"); err != nil || ok {
		t.Fatalf("LastFingerprint() = ok %v err %v, want nothing recorded", ok, err)
	}

	for _, digest := range []string{"aaa", "bbb"} {
		file := models.SourceFile{Kind: "generic_pack", Path: "f_vmpp2.xml", Digest: digest, LoadedAt: time.Now()}
		if err := RecordSourceFile(db, file); err != nil {
			t.Fatalf("RecordSourceFile() error = %v", err)
		}
	}

	digest, ok, err := LastFingerprint(db, "generic_pack")
	if err != nil || !ok {
		t.Fatalf("LastFingerprint() = ok %v err %v", ok, err)
	}
	if digest != "bbb" {
		t.Fatalf("digest = %q, want %q", digest, "bbb")
	}

	var files int64
	if err := db.Model(&models.SourceFile{}).Where("kind = ?", "generic_pack").Count(&files).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if files != 1 {
		t.Fatalf("fingerprints = %d, want 1", files)
	}
}

func TestRecordRun(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := newStore(t)
	started := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

	ok, err := s.RecordRun(ctx, Run{
		ID:         uuid.New(),
		Phase:      "price",
		Mode:       "fill_missing",
		Report:     map[string]int{"same_pack": 2},
		StartedAt:  started,
		FinishedAt: started.Add(time.Minute),
	})
	if err != nil {
		t.Fatalf("RecordRun() error = %v", err)
	}
	if ok.Status != models.RunStatusSucceeded {
		t.Fatalf("Status = %q, want %q", ok.Status, models.RunStatusSucceeded)
	}

	failed, err := s.RecordRun(ctx, Run{
		Phase:      "load",
		Err:        errors.New("unresolved parent"),
		StartedAt:  started.Add(time.Hour),
		FinishedAt: started.Add(time.Hour),
	})
	if err != nil {
		t.Fatalf("RecordRun() error = %v", err)
	}
	if failed.ID == uuid.Nil {
		t.Fatal("RecordRun() left the run id empty")
	}
	if failed.Status != models.RunStatusFailed || failed.Error != "unresolved parent" {
		t.Fatalf("failed run = %+v", failed)
	}

	runs, err := s.Runs(ctx, 10)
	if err != nil {
		t.Fatalf("Runs() error = %v", err)
	}
	if len(runs) != 2 || runs[0].Phase != "load" {
		t.Fatalf("Runs() = %+v, want newest load run first", runs)
	}
	if string(runs[1].Report) != `{"same_pack":2}` {
		t.Fatalf("Report = %s", runs[1].Report)
	}
}
