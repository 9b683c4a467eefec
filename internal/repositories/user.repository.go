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

type UserRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*User, error)
	GetByBGGUsername(ctx context.Context, username string) (*User, error)
	GetWithBGGUsernames(ctx context.Context) ([]User, error)
	Create(ctx context.Context, user *User) error
	Update(ctx context.Context, user *User) error
}

type userRepository struct {
	db  database.DB
	log logger.Logger
}

func NewUserRepository(db database.DB) UserRepository {
	return &userRepository{
		db:  db,
		log: logger.New("userRepository"),
	}
}

func (r *userRepository) getDB(ctx context.Context) *gorm.DB {
	if tx, ok := contextutil.GetTransaction(ctx); ok {
		return tx
	}
	return r.db.SQLWithContext(ctx)
}

func (r *userRepository) GetByID(ctx context.Context, id uuid.UUID) (*User, error) {
	log := r.log.Function("GetByID")

	var user User
	if err := r.getDB(ctx).First(&user, "id = ?", id).Error; err != nil {
		return nil, log.Err("failed to get user by ID", err, "id", id)
	}

	return &user, nil
}

func (r *userRepository) GetByBGGUsername(ctx context.Context, username string) (*User, error) {
	log := r.log.Function("GetByBGGUsername")

	var user User
	err := r.getDB(ctx).First(&user, "bgg_username = ?", username).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, log.Err("failed to get user by BGG username", err, "username", username)
	}

	return &user, nil
}

// GetWithBGGUsernames returns active users eligible for inbound play sync
func (r *userRepository) GetWithBGGUsernames(ctx context.Context) ([]User, error) {
	log := r.log.Function("GetWithBGGUsernames")

	var users []User
	err := r.getDB(ctx).
		Where("bgg_username IS NOT NULL AND bgg_username != '' AND is_active = ?", true).
		Find(&users).Error
	if err != nil {
		return nil, log.Err("failed to get users with BGG usernames", err)
	}

	return users, nil
}

func (r *userRepository) Create(ctx context.Context, user *User) error {
	log := r.log.Function("Create")

	if err := r.getDB(ctx).Create(user).Error; err != nil {
		return log.Err("failed to create user", err)
	}

	return nil
}

func (r *userRepository) Update(ctx context.Context, user *User) error {
	log := r.log.Function("Update")

	if err := r.getDB(ctx).Save(user).Error; err != nil {
		return log.Err("failed to update user", err, "id", user.ID)
	}

	return nil
}
