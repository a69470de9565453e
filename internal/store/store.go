// Package store owns database access shared by the pipeline phases.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"tariffmaster/models"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ErrNilDatabase is returned when a Store is built without a database handle.
var ErrNilDatabase = errors.New("store: database handle is nil")

// Store wraps the gorm handle used by every phase.
type Store struct {
	db *gorm.DB
}

// New wraps db.
func New(db *gorm.DB) (*Store, error) {
	if db == nil {
		return nil, ErrNilDatabase
	}
	return &Store{db: db}, nil
}

// DB returns a handle bound to ctx.
func (s *Store) DB(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx)
}

// Transaction runs fn in one database transaction. Either everything fn wrote
// is committed or nothing is.
func (s *Store) Transaction(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return s.db.WithContext(ctx).Transaction(fn)
}

// referenceTables lists the loaded reference data, children first.
func referenceTables() []any {
	return []any{
		&models.IndexEntry{},
		&models.TradeCode{},
		&models.BrandedPack{},
		&models.BrandedProduct{},
		&models.GenericPack{},
		&models.ProductForm{},
		&models.ProductIngredient{},
		&models.GenericProduct{},
		&models.Moiety{},
		&models.Ingredient{},
		&models.Lookup{},
		&models.SourceFile{},
	}
}

// ClearReference deletes all loaded reference data and the derived index.
// The run ledger is kept.
func ClearReference(tx *gorm.DB) error {
	all := tx.Session(&gorm.Session{AllowGlobalUpdate: true})
	for _, model := range referenceTables() {
		if err := all.Delete(model).Error; err != nil {
			return fmt.Errorf("clear %T: %w", model, err)
		}
	}
	return nil
}

// LastFingerprint returns the digest recorded for the most recent load of a
// source kind.
func LastFingerprint(tx *gorm.DB, kind string) (string, bool, error) {
	var file models.SourceFile
	err := tx.Where("kind = ?", kind).Order("loaded_at DESC").Order("id DESC").Take(&file).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("query source fingerprint: %w", err)
	}
	return file.Digest, true, nil
}

// RecordSourceFile replaces the fingerprint stored for file.Kind.
func RecordSourceFile(tx *gorm.DB, file models.SourceFile) error {
	if err := tx.Where("kind = ?", file.Kind).Delete(&models.SourceFile{}).Error; err != nil {
		return fmt.Errorf("clear source fingerprint: %w", err)
	}
	if err := tx.Create(&file).Error; err != nil {
		return fmt.Errorf("record source fingerprint: %w", err)
	}
	return nil
}

// Run describes one finished phase for the ledger.
type Run struct {
	ID         uuid.UUID
	Phase      string
	Mode       string
	Err        error
	Report     any
	StartedAt  time.Time
	FinishedAt time.Time
}

// RecordRun appends a ledger entry. It runs outside any phase transaction so
// failures are recorded too.
func (s *Store) RecordRun(ctx context.Context, run Run) (models.PipelineRun, error) {
	payload, err := json.Marshal(run.Report)
	if err != nil {
		return models.PipelineRun{}, fmt.Errorf("encode run report: %w", err)
	}

	entry := models.PipelineRun{
		ID:         run.ID,
		Phase:      run.Phase,
		Mode:       run.Mode,
		Status:     models.RunStatusSucceeded,
		Report:     datatypes.JSON(payload),
		StartedAt:  run.StartedAt,
		FinishedAt: run.FinishedAt,
	}
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if run.Err != nil {
		entry.Status = models.RunStatusFailed
		entry.Error = run.Err.Error()
	}

	if err := s.db.WithContext(ctx).Create(&entry).Error; err != nil {
		return models.PipelineRun{}, fmt.Errorf("record run: %w", err)
	}
	return entry, nil
}

// Runs returns the most recent ledger entries, newest first.
func (s *Store) Runs(ctx context.Context, limit int) ([]models.PipelineRun, error) {
	var runs []models.PipelineRun
	query := s.db.WithContext(ctx).Order("started_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&runs).Error; err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	return runs, nil
}
