package playController

import (
	"context"

	"tabletally/config"
	"tabletally/internal/logger"
	. "tabletally/internal/models"
	"tabletally/internal/repositories"
	"tabletally/internal/services"

	"github.com/google/uuid"
)

type PlayController struct {
	playService       *services.PlayService
	playSubmitService *services.PlaySubmitService
	credentialService *services.CredentialService
	playRepo          repositories.PlayRepository
	config            config.Config
}

type PlayControllerInterface interface {
	Create(ctx context.Context, user *User, req services.CreatePlayRequest) (*Play, error)
	Update(ctx context.Context, user *User, playID uuid.UUID, req services.UpdatePlayRequest) (*Play, error)
	Delete(ctx context.Context, user *User, playID uuid.UUID) error
	Get(ctx context.Context, playID uuid.UUID) (*Play, error)
	List(ctx context.Context, user *User, groupID *uuid.UUID, includeExcluded bool, limit, offset int) ([]Play, error)
	Stats(ctx context.Context, user *User, groupID *uuid.UUID) (*services.PlayStats, error)
	Submit(ctx context.Context, user *User, playID uuid.UUID, credential *Credential) error
	StoreCredential(ctx context.Context, user *User, username, password string) error
}

func New(
	repos repositories.Repository,
	services services.Service,
	config config.Config,
) PlayControllerInterface {
	return &PlayController{
		playService:       services.Play,
		playSubmitService: services.PlaySubmit,
		credentialService: services.Credential,
		playRepo:          repos.Play,
		config:            config,
	}
}

func (pc *PlayController) Create(
	ctx context.Context,
	user *User,
	req services.CreatePlayRequest,
) (*Play, error) {
	return pc.playService.Create(ctx, user.ID, req)
}

func (pc *PlayController) Update(
	ctx context.Context,
	user *User,
	playID uuid.UUID,
	req services.UpdatePlayRequest,
) (*Play, error) {
	log := logger.NewWithContext(ctx, "playController").Function("Update")

	if err := pc.checkOwnership(ctx, user, playID); err != nil {
		return nil, log.Err("play ownership check failed", err, "playID", playID)
	}

	return pc.playService.Update(ctx, playID, req)
}

func (pc *PlayController) Delete(ctx context.Context, user *User, playID uuid.UUID) error {
	log := logger.NewWithContext(ctx, "playController").Function("Delete")

	if err := pc.checkOwnership(ctx, user, playID); err != nil {
		return log.Err("play ownership check failed", err, "playID", playID)
	}

	return pc.playService.Delete(ctx, playID)
}

func (pc *PlayController) Get(ctx context.Context, playID uuid.UUID) (*Play, error) {
	return pc.playService.GetByID(ctx, playID)
}

func (pc *PlayController) List(
	ctx context.Context,
	user *User,
	groupID *uuid.UUID,
	includeExcluded bool,
	limit, offset int,
) ([]Play, error) {
	userID := user.ID
	filter := repositories.StatsFilter{
		UserID:          &userID,
		GroupID:         groupID,
		IncludeExcluded: includeExcluded,
	}
	return pc.playService.List(ctx, filter, limit, offset)
}

func (pc *PlayController) Stats(
	ctx context.Context,
	user *User,
	groupID *uuid.UUID,
) (*services.PlayStats, error) {
	return pc.playService.Stats(ctx, user.ID, groupID)
}

func (pc *PlayController) Submit(
	ctx context.Context,
	user *User,
	playID uuid.UUID,
	credential *Credential,
) error {
	log := logger.NewWithContext(ctx, "playController").Function("Submit")

	if err := pc.checkOwnership(ctx, user, playID); err != nil {
		return log.Err("play ownership check failed", err, "playID", playID)
	}

	return pc.playSubmitService.Submit(ctx, playID, credential, true)
}

func (pc *PlayController) StoreCredential(
	ctx context.Context,
	user *User,
	username, password string,
) error {
	return pc.credentialService.StoreUserCredential(ctx, user.ID, Credential{
		Username: username,
		Password: password,
	})
}

func (pc *PlayController) checkOwnership(ctx context.Context, user *User, playID uuid.UUID) error {
	log := logger.NewWithContext(ctx, "playController").Function("checkOwnership")

	play, err := pc.playRepo.GetByID(ctx, playID)
	if err != nil {
		return err
	}
	if play == nil {
		return log.ErrMsg("play not found")
	}
	if play.CreatedByID != user.ID {
		return log.ErrMsg("play belongs to another user")
	}
	return nil
}
