package groupController

import (
	"context"

	"tabletally/config"
	"tabletally/internal/logger"
	. "tabletally/internal/models"
	"tabletally/internal/repositories"

	"github.com/google/uuid"
)

type GroupController struct {
	groupRepo repositories.GroupRepository
	userRepo  repositories.UserRepository
	config    config.Config
}

type GroupControllerInterface interface {
	Create(ctx context.Context, user *User, name string) (*Group, error)
	Get(ctx context.Context, groupID uuid.UUID) (*Group, error)
	AddMember(ctx context.Context, user *User, groupID, memberID uuid.UUID) error
}

func New(repos repositories.Repository, config config.Config) GroupControllerInterface {
	return &GroupController{
		groupRepo: repos.Group,
		userRepo:  repos.User,
		config:    config,
	}
}

func (gc *GroupController) Create(ctx context.Context, user *User, name string) (*Group, error) {
	log := logger.NewWithContext(ctx, "groupController").Function("Create")

	if name == "" {
		return nil, log.ErrMsg("group name is required")
	}

	group := &Group{
		Name:    name,
		OwnerID: user.ID,
	}
	if err := gc.groupRepo.Create(ctx, group); err != nil {
		return nil, err
	}

	// Owner is always a member
	if err := gc.groupRepo.AddMember(ctx, group.ID, user.ID); err != nil {
		return nil, err
	}

	log.Info("Group created", "groupID", group.ID, "ownerID", user.ID)
	return group, nil
}

func (gc *GroupController) Get(ctx context.Context, groupID uuid.UUID) (*Group, error) {
	return gc.groupRepo.GetByID(ctx, groupID)
}

// AddMember adds another user to the group. Only the owner may do so.
func (gc *GroupController) AddMember(
	ctx context.Context,
	user *User,
	groupID, memberID uuid.UUID,
) error {
	log := logger.NewWithContext(ctx, "groupController").Function("AddMember")

	group, err := gc.groupRepo.GetByID(ctx, groupID)
	if err != nil {
		return err
	}
	if group.OwnerID != user.ID {
		return log.ErrMsg("only the group owner can add members")
	}

	member, err := gc.userRepo.GetByID(ctx, memberID)
	if err != nil {
		return err
	}
	if member == nil {
		return log.ErrMsg("user not found")
	}

	return gc.groupRepo.AddMember(ctx, groupID, memberID)
}
