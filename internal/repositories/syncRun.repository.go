package repositories

import (
	"context"

	contextutil "tabletally/internal/context"
	"tabletally/internal/database"
	"tabletally/internal/logger"
	. "tabletally/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type SyncRunRepository interface {
	Create(ctx context.Context, run *SyncRun) error
	Update(ctx context.Context, run *SyncRun) error
	GetRecent(ctx context.Context, kind SyncRunKind, userID *uuid.UUID, limit int) ([]SyncRun, error)
}

type syncRunRepository struct {
	db  database.DB
	log logger.Logger
}

func NewSyncRunRepository(db database.DB) SyncRunRepository {
	return &syncRunRepository{
		db:  db,
		log: logger.New("syncRunRepository"),
	}
}

func (r *syncRunRepository) getDB(ctx context.Context) *gorm.DB {
	if tx, ok := contextutil.GetTransaction(ctx); ok {
		return tx
	}
	return r.db.SQLWithContext(ctx)
}

func (r *syncRunRepository) Create(ctx context.Context, run *SyncRun) error {
	log := r.log.Function("Create")

	if err := r.getDB(ctx).Create(run).Error; err != nil {
		return log.Err("failed to create sync run", err, "kind", run.Kind)
	}

	return nil
}

func (r *syncRunRepository) Update(ctx context.Context, run *SyncRun) error {
	log := r.log.Function("Update")

	if err := r.getDB(ctx).Save(run).Error; err != nil {
		return log.Err("failed to update sync run", err, "id", run.ID)
	}

	return nil
}

func (r *syncRunRepository) GetRecent(
	ctx context.Context,
	kind SyncRunKind,
	userID *uuid.UUID,
	limit int,
) ([]SyncRun, error) {
	log := r.log.Function("GetRecent")

	query := r.getDB(ctx).Where("kind = ?", kind)
	if userID != nil {
		query = query.Where("user_id = ?", *userID)
	}

	var runs []SyncRun
	err := query.Order("started_at DESC").Limit(limit).Find(&runs).Error
	if err != nil {
		return nil, log.Err("failed to get recent sync runs", err, "kind", kind)
	}

	return runs, nil
}
