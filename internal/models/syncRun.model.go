package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type SyncRunKind string

const (
	SyncRunKindCatalog SyncRunKind = "catalog"
	SyncRunKindPlays   SyncRunKind = "plays"
	SyncRunKindSubmit  SyncRunKind = "submit"
)

// SyncRun is the audit record of one sync pipeline execution. Counters land
// in the Summary JSON blob so pipelines can record whatever breakdown they
// have without schema churn.
type SyncRun struct {
	BaseUUIDModel
	Kind       SyncRunKind    `gorm:"type:text;not null;index:idx_sync_runs_kind" json:"kind"`
	UserID     *uuid.UUID     `gorm:"type:uuid;index:idx_sync_runs_user" json:"userId,omitempty"`
	StartedAt  time.Time      `gorm:"type:timestamp;not null" json:"startedAt"`
	FinishedAt *time.Time     `gorm:"type:timestamp" json:"finishedAt,omitempty"`
	Succeeded  bool           `gorm:"type:bool;default:false" json:"succeeded"`
	Error      *string        `gorm:"type:text" json:"error,omitempty"`
	Summary    datatypes.JSON `gorm:"type:jsonb" json:"summary,omitempty"`
}

func (s *SyncRun) BeforeCreate(tx *gorm.DB) (err error) {
	if err := s.BaseUUIDModel.BeforeCreate(tx); err != nil {
		return err
	}
	if s.StartedAt.IsZero() {
		s.StartedAt = time.Now().UTC()
	}
	return nil
}

// Finish closes the run with its outcome
func (s *SyncRun) Finish(succeeded bool, errorMessage *string) {
	now := time.Now().UTC()
	s.FinishedAt = &now
	s.Succeeded = succeeded
	s.Error = errorMessage
}
