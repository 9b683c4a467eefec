package repositories

import (
	"tabletally/internal/database"
)

type Repository struct {
	User          UserRepository
	Group         GroupRepository
	BoardGame     BoardGameRepository
	Play          PlayRepository
	BGGCredential BGGCredentialRepository
	SyncRun       SyncRunRepository
}

func New(db database.DB) Repository {
	return Repository{
		User:          NewUserRepository(db),
		Group:         NewGroupRepository(db),
		BoardGame:     NewBoardGameRepository(db),
		Play:          NewPlayRepository(db),
		BGGCredential: NewBGGCredentialRepository(db),
		SyncRun:       NewSyncRunRepository(db),
	}
}
