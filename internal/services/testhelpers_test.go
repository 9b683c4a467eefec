package services

import (
	"context"
	"fmt"
	"testing"
	"time"

	"tabletally/internal/database"
	"tabletally/internal/models"
	"tabletally/internal/repositories"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) database.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.New().String())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormLogger.Default.LogMode(gormLogger.Silent),
	})
	require.NoError(t, err)

	err = db.AutoMigrate(
		&models.User{},
		&models.Group{},
		&models.BoardGame{},
		&models.Play{},
		&models.PlayParticipant{},
		&models.BGGCredential{},
		&models.SyncRun{},
	)
	require.NoError(t, err)

	return database.DB{SQL: db}
}

func newTestRepos(t *testing.T) (database.DB, repositories.Repository) {
	t.Helper()
	db := newTestDB(t)
	return db, repositories.New(db)
}

func createTestUser(t *testing.T, repos repositories.Repository, bggUsername string) *models.User {
	t.Helper()

	user := &models.User{
		FirstName: "Test",
		LastName:  "User",
	}
	if bggUsername != "" {
		user.BGGUsername = &bggUsername
	}
	require.NoError(t, repos.User.Create(context.Background(), user))
	return user
}

func createTestGroup(t *testing.T, repos repositories.Repository, owner *models.User) *models.Group {
	t.Helper()

	group := &models.Group{
		Name:    "Game Night",
		OwnerID: owner.ID,
	}
	require.NoError(t, repos.Group.Create(context.Background(), group))
	require.NoError(t, repos.Group.AddMember(context.Background(), group.ID, owner.ID))
	return group
}

func createTestGame(t *testing.T, repos repositories.Repository, bggID int64) *models.BoardGame {
	t.Helper()

	game := &models.BoardGame{
		Name: fmt.Sprintf("Game %d", bggID),
	}
	if bggID > 0 {
		game.BGGID = &bggID
	}
	require.NoError(t, repos.BoardGame.Create(context.Background(), game))
	return game
}

func createTestExpansion(t *testing.T, repos repositories.Repository, name string) *models.BoardGame {
	t.Helper()

	expansion := &models.BoardGame{
		Name:        name,
		IsExpansion: true,
	}
	require.NoError(t, repos.BoardGame.Create(context.Background(), expansion))
	return expansion
}

func userParticipant(userID uuid.UUID) models.PlayParticipant {
	id := userID
	return models.PlayParticipant{UserID: &id}
}

func guestParticipant(name string) models.PlayParticipant {
	n := name
	return models.PlayParticipant{GuestName: &n}
}

func bggParticipant(username string) models.PlayParticipant {
	u := username
	return models.PlayParticipant{BGGUsername: &u}
}

func createTestPlay(
	t *testing.T,
	repos repositories.Repository,
	game *models.BoardGame,
	group *models.Group,
	creator *models.User,
	playDate time.Time,
	participants []models.PlayParticipant,
) *models.Play {
	t.Helper()

	play := &models.Play{
		BoardGameID: game.ID,
		CreatedByID: creator.ID,
		PlayDate:    playDate,
	}
	if group != nil {
		groupID := group.ID
		play.GroupID = &groupID
	}
	require.NoError(t, repos.Play.Create(context.Background(), play))
	require.NoError(t, repos.Play.ReplaceParticipants(context.Background(), play.ID, participants))
	play.Participants = participants
	return play
}
