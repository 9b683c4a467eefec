package userController

import (
	"context"

	"tabletally/config"
	"tabletally/internal/logger"
	. "tabletally/internal/models"
	"tabletally/internal/repositories"
)

type UserController struct {
	userRepo repositories.UserRepository
	config   config.Config
}

type UserControllerInterface interface {
	GetProfile(ctx context.Context, user *User) UserProfile
	SetBGGUsername(ctx context.Context, user *User, username string) (*User, error)
}

func New(repos repositories.Repository, config config.Config) UserControllerInterface {
	return &UserController{
		userRepo: repos.User,
		config:   config,
	}
}

func (uc *UserController) GetProfile(ctx context.Context, user *User) UserProfile {
	return user.ToProfile()
}

// SetBGGUsername links or unlinks the user's BGG account. An empty username
// unlinks; the periodic sync fan-out skips unlinked users.
func (uc *UserController) SetBGGUsername(
	ctx context.Context,
	user *User,
	username string,
) (*User, error) {
	log := logger.NewWithContext(ctx, "userController").Function("SetBGGUsername")

	if username == "" {
		user.BGGUsername = nil
	} else {
		existing, err := uc.userRepo.GetByBGGUsername(ctx, username)
		if err != nil {
			return nil, err
		}
		if existing != nil && existing.ID != user.ID {
			return nil, log.ErrMsg("BGG username is already linked to another account")
		}
		user.BGGUsername = &username
	}

	if err := uc.userRepo.Update(ctx, user); err != nil {
		return nil, err
	}

	log.Info("BGG username updated", "userID", user.ID)
	return user, nil
}
