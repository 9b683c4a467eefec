package controllers

import (
	"tabletally/config"
	"tabletally/internal/events"
	"tabletally/internal/repositories"
	"tabletally/internal/services"

	groupController "tabletally/internal/controllers/groups"
	playController "tabletally/internal/controllers/play"
	syncController "tabletally/internal/controllers/sync"
	userController "tabletally/internal/controllers/users"
)

type Controllers struct {
	User  userController.UserControllerInterface
	Group groupController.GroupControllerInterface
	Play  playController.PlayControllerInterface
	Sync  syncController.SyncControllerInterface
}

func New(
	services services.Service,
	repos repositories.Repository,
	eventBus *events.EventBus,
	config config.Config,
) Controllers {
	return Controllers{
		User:  userController.New(repos, config),
		Group: groupController.New(repos, config),
		Play:  playController.New(repos, services, config),
		Sync:  syncController.New(repos, services, eventBus, config),
	}
}
