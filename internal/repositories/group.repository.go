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

type GroupRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Group, error)
	Create(ctx context.Context, group *Group) error
	AddMember(ctx context.Context, groupID, userID uuid.UUID) error
	IsMember(ctx context.Context, groupID, userID uuid.UUID) (bool, error)
}

type groupRepository struct {
	db  database.DB
	log logger.Logger
}

func NewGroupRepository(db database.DB) GroupRepository {
	return &groupRepository{
		db:  db,
		log: logger.New("groupRepository"),
	}
}

func (r *groupRepository) getDB(ctx context.Context) *gorm.DB {
	if tx, ok := contextutil.GetTransaction(ctx); ok {
		return tx
	}
	return r.db.SQLWithContext(ctx)
}

func (r *groupRepository) GetByID(ctx context.Context, id uuid.UUID) (*Group, error) {
	log := r.log.Function("GetByID")

	var group Group
	if err := r.getDB(ctx).Preload("Members").First(&group, "id = ?", id).Error; err != nil {
		return nil, log.Err("failed to get group by ID", err, "id", id)
	}

	return &group, nil
}

func (r *groupRepository) Create(ctx context.Context, group *Group) error {
	log := r.log.Function("Create")

	if err := r.getDB(ctx).Create(group).Error; err != nil {
		return log.Err("failed to create group", err)
	}

	return nil
}

func (r *groupRepository) AddMember(ctx context.Context, groupID, userID uuid.UUID) error {
	log := r.log.Function("AddMember")

	err := r.getDB(ctx).
		Exec("INSERT INTO group_members (group_id, user_id) VALUES (?, ?) ON CONFLICT DO NOTHING", groupID, userID).
		Error
	if err != nil {
		return log.Err("failed to add group member", err, "groupID", groupID, "userID", userID)
	}

	return nil
}

func (r *groupRepository) IsMember(ctx context.Context, groupID, userID uuid.UUID) (bool, error) {
	log := r.log.Function("IsMember")

	var count int64
	err := r.getDB(ctx).
		Table("group_members").
		Where("group_id = ? AND user_id = ?", groupID, userID).
		Count(&count).Error
	if err != nil {
		return false, log.Err("failed to check group membership", err, "groupID", groupID, "userID", userID)
	}

	return count > 0, nil
}
