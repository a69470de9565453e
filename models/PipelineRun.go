package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Run statuses recorded in the ledger.
const (
	RunStatusSucceeded = "succeeded"
	RunStatusFailed    = "failed"
)

// PipelineRun is a ledger entry for one executed phase.
type PipelineRun struct {
	ID         uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	Phase      string         `gorm:"type:varchar(16);not null;index" json:"phase"`
	Mode       string         `gorm:"type:varchar(24)" json:"mode"`
	Status     string         `gorm:"type:varchar(16);not null" json:"status"`
	Error      string         `gorm:"type:text" json:"error,omitempty"`
	Report     datatypes.JSON `json:"report"`
	StartedAt  time.Time      `gorm:"not null" json:"started_at"`
	FinishedAt time.Time      `gorm:"not null" json:"finished_at"`
}

// SourceFile fingerprints a loaded input so unchanged files can be skipped on
// incremental reloads.
type SourceFile struct {
	ID       uint      `gorm:"primaryKey" json:"id"`
	Kind     string    `gorm:"type:varchar(32);not null;index" json:"kind"`
	Path     string    `gorm:"not null" json:"path"`
	Digest   string    `gorm:"type:varchar(64);not null" json:"digest"`
	Size     int64     `json:"size"`
	RunID    uuid.UUID `gorm:"type:uuid;index" json:"run_id"`
	LoadedAt time.Time `gorm:"not null" json:"loaded_at"`
}
