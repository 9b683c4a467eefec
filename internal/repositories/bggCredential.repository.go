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

type BGGCredentialRepository interface {
	GetByUserID(ctx context.Context, userID uuid.UUID) (*BGGCredential, error)
	GetByPlayID(ctx context.Context, playID uuid.UUID) (*BGGCredential, error)
	Save(ctx context.Context, credential *BGGCredential) error
	DeleteByPlayID(ctx context.Context, playID uuid.UUID) error
}

type bggCredentialRepository struct {
	db  database.DB
	log logger.Logger
}

func NewBGGCredentialRepository(db database.DB) BGGCredentialRepository {
	return &bggCredentialRepository{
		db:  db,
		log: logger.New("bggCredentialRepository"),
	}
}

func (r *bggCredentialRepository) getDB(ctx context.Context) *gorm.DB {
	if tx, ok := contextutil.GetTransaction(ctx); ok {
		return tx
	}
	return r.db.SQLWithContext(ctx)
}

func (r *bggCredentialRepository) GetByUserID(
	ctx context.Context,
	userID uuid.UUID,
) (*BGGCredential, error) {
	log := r.log.Function("GetByUserID")

	var credential BGGCredential
	err := r.getDB(ctx).First(&credential, "user_id = ?", userID).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, log.Err("failed to get credential by user ID", err, "userID", userID)
	}

	return &credential, nil
}

func (r *bggCredentialRepository) GetByPlayID(
	ctx context.Context,
	playID uuid.UUID,
) (*BGGCredential, error) {
	log := r.log.Function("GetByPlayID")

	var credential BGGCredential
	err := r.getDB(ctx).First(&credential, "play_id = ?", playID).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, log.Err("failed to get credential by play ID", err, "playID", playID)
	}

	return &credential, nil
}

func (r *bggCredentialRepository) Save(ctx context.Context, credential *BGGCredential) error {
	log := r.log.Function("Save")

	if err := r.getDB(ctx).Save(credential).Error; err != nil {
		return log.Err("failed to save credential", err)
	}

	return nil
}

func (r *bggCredentialRepository) DeleteByPlayID(ctx context.Context, playID uuid.UUID) error {
	log := r.log.Function("DeleteByPlayID")

	err := r.getDB(ctx).Unscoped().Delete(&BGGCredential{}, "play_id = ?", playID).Error
	if err != nil {
		return log.Err("failed to delete play credential", err, "playID", playID)
	}

	return nil
}
