package services

import (
	"context"
	"testing"
	"time"

	"tabletally/internal/models"
	"tabletally/internal/repositories"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPlaySyncService(repos repositories.Repository, bgg *fakeBGGService) *PlaySyncService {
	gameSync := NewGameSyncService(bgg, repos.BoardGame, nil, 6)
	dedup := NewDedupService(repos.Play)
	return NewPlaySyncService(bgg, gameSync, dedup, repos.Play, repos.User, repos.SyncRun, nil)
}

func fakeBGGPlay(id int64, date string, objectID int64, players ...BGGPlayer) BGGPlay {
	return BGGPlay{
		ID:       id,
		Date:     date,
		Location: "Home",
		Length:   95,
		Item:     bggPlayItem{Name: "Gloomhaven", ObjectID: objectID},
		Players:  players,
	}
}

var syncWindow = struct{ min, max time.Time }{
	min: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
	max: time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC),
}

func TestPlaySyncImportsRemotePlays(t *testing.T) {
	_, repos := newTestRepos(t)
	ctx := context.Background()

	user := createTestUser(t, repos, "tester")

	bgg := &fakeBGGService{
		things: []BGGThing{fakeThing(174430, "Gloomhaven")},
		plays: []BGGPlay{
			fakeBGGPlay(101, "2026-03-14", 174430,
				BGGPlayer{Username: "tester", Score: "42", Win: 1, StartPosition: "1"},
				BGGPlayer{Name: "Sam", Score: "38", New: 1},
			),
		},
	}
	service := newTestPlaySyncService(repos, bgg)

	require.NoError(t, service.SyncUserPlays(ctx, user.ID, syncWindow.min, syncWindow.max))

	// The unknown game was registered through the catalog pipeline
	game, err := repos.BoardGame.GetByBGGID(ctx, 174430)
	require.NoError(t, err)
	require.NotNil(t, game)

	play, err := repos.Play.GetByBGGPlayID(ctx, 101)
	require.NoError(t, err)
	require.NotNil(t, play)
	assert.Equal(t, game.ID, play.BoardGameID)
	assert.Equal(t, user.ID, play.CreatedByID)
	assert.Equal(t, models.PlaySourceBGG, play.Source)
	assert.Equal(t, "2026-03-14", play.PlayDate.Format("2006-01-02"))
	require.NotNil(t, play.Duration)
	assert.Equal(t, 95, *play.Duration)

	require.Len(t, play.Participants, 2)
	var own, guest *models.PlayParticipant
	for i := range play.Participants {
		if play.Participants[i].UserID != nil {
			own = &play.Participants[i]
		} else {
			guest = &play.Participants[i]
		}
	}
	require.NotNil(t, own)
	assert.Equal(t, user.ID, *own.UserID)
	assert.True(t, own.IsWinner)
	require.NotNil(t, own.Score)
	assert.Equal(t, "42", own.Score.String())
	require.NotNil(t, own.FinishPosition)
	assert.Equal(t, 1, *own.FinishPosition)

	require.NotNil(t, guest)
	require.NotNil(t, guest.GuestName)
	assert.Equal(t, "Sam", *guest.GuestName)
	assert.True(t, guest.IsFirstPlay)
}

func TestPlaySyncIsIdempotent(t *testing.T) {
	_, repos := newTestRepos(t)
	ctx := context.Background()

	user := createTestUser(t, repos, "tester")

	bgg := &fakeBGGService{
		things: []BGGThing{fakeThing(174430, "Gloomhaven")},
		plays: []BGGPlay{
			fakeBGGPlay(101, "2026-03-14", 174430, BGGPlayer{Username: "tester", Win: 1}),
		},
	}
	service := newTestPlaySyncService(repos, bgg)

	require.NoError(t, service.SyncUserPlays(ctx, user.ID, syncWindow.min, syncWindow.max))
	require.NoError(t, service.SyncUserPlays(ctx, user.ID, syncWindow.min, syncWindow.max))

	count, err := repos.Play.CountPlays(ctx, repositories.StatsFilter{UserID: &user.ID})
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestPlaySyncUpdatesChangedPlays(t *testing.T) {
	_, repos := newTestRepos(t)
	ctx := context.Background()

	user := createTestUser(t, repos, "tester")

	bgg := &fakeBGGService{
		things: []BGGThing{fakeThing(174430, "Gloomhaven")},
		plays: []BGGPlay{
			fakeBGGPlay(101, "2026-03-14", 174430, BGGPlayer{Username: "tester"}),
		},
	}
	service := newTestPlaySyncService(repos, bgg)
	require.NoError(t, service.SyncUserPlays(ctx, user.ID, syncWindow.min, syncWindow.max))

	// The play was edited on the remote side
	bgg.plays[0].Location = "Cafe"
	require.NoError(t, service.SyncUserPlays(ctx, user.ID, syncWindow.min, syncWindow.max))

	play, err := repos.Play.GetByBGGPlayID(ctx, 101)
	require.NoError(t, err)
	require.NotNil(t, play)
	assert.Equal(t, "Cafe", play.Location)
}

func TestPlaySyncReconcilesRemoteDeletions(t *testing.T) {
	_, repos := newTestRepos(t)
	ctx := context.Background()

	user := createTestUser(t, repos, "tester")

	bgg := &fakeBGGService{
		things: []BGGThing{fakeThing(174430, "Gloomhaven")},
		plays: []BGGPlay{
			fakeBGGPlay(101, "2026-03-14", 174430, BGGPlayer{Username: "tester"}),
			fakeBGGPlay(102, "2026-03-15", 174430, BGGPlayer{Username: "tester"}),
		},
	}
	service := newTestPlaySyncService(repos, bgg)
	require.NoError(t, service.SyncUserPlays(ctx, user.ID, syncWindow.min, syncWindow.max))

	// Play 102 deleted on the remote side
	bgg.plays = bgg.plays[:1]
	require.NoError(t, service.SyncUserPlays(ctx, user.ID, syncWindow.min, syncWindow.max))

	gone, err := repos.Play.GetByBGGPlayID(ctx, 102)
	require.NoError(t, err)
	assert.Nil(t, gone)

	kept, err := repos.Play.GetByBGGPlayID(ctx, 101)
	require.NoError(t, err)
	assert.NotNil(t, kept)
}

func TestPlaySyncDeletionsOutsideWindowAreKept(t *testing.T) {
	_, repos := newTestRepos(t)
	ctx := context.Background()

	user := createTestUser(t, repos, "tester")

	bgg := &fakeBGGService{
		things: []BGGThing{fakeThing(174430, "Gloomhaven")},
		plays: []BGGPlay{
			fakeBGGPlay(101, "2026-02-10", 174430, BGGPlayer{Username: "tester"}),
		},
	}
	service := newTestPlaySyncService(repos, bgg)

	feb := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	febEnd := time.Date(2026, 2, 28, 0, 0, 0, 0, time.UTC)
	require.NoError(t, service.SyncUserPlays(ctx, user.ID, feb, febEnd))

	// A March sync lists nothing, but the February play is outside its window
	bgg.plays = nil
	require.NoError(t, service.SyncUserPlays(ctx, user.ID, syncWindow.min, syncWindow.max))

	kept, err := repos.Play.GetByBGGPlayID(ctx, 101)
	require.NoError(t, err)
	assert.NotNil(t, kept)
}

func TestPlaySyncFetchFailureMarksPendingAndReRaises(t *testing.T) {
	_, repos := newTestRepos(t)
	ctx := context.Background()

	user := createTestUser(t, repos, "tester")
	game := createTestGame(t, repos, 174430)

	pending := createTestPlay(t, repos, game, nil, user, time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC), nil)
	pending.Source = models.PlaySourceBGG
	bggPlayID := int64(101)
	pending.BGGPlayID = &bggPlayID
	pending.SyncStatus = models.SyncStatusPending
	require.NoError(t, repos.Play.Update(ctx, pending))

	bgg := &fakeBGGService{playsErr: ErrRetryExhausted}
	service := newTestPlaySyncService(repos, bgg)

	err := service.SyncUserPlays(ctx, user.ID, syncWindow.min, syncWindow.max)
	require.Error(t, err)

	reloaded, err := repos.Play.GetByID(ctx, pending.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SyncStatusFailed, reloaded.SyncStatus)
	assert.NotNil(t, reloaded.SyncError)
}

func TestPlaySyncRequiresLinkedBGGUsername(t *testing.T) {
	_, repos := newTestRepos(t)
	ctx := context.Background()

	user := createTestUser(t, repos, "")
	service := newTestPlaySyncService(repos, &fakeBGGService{})

	err := service.SyncUserPlays(ctx, user.ID, syncWindow.min, syncWindow.max)
	assert.Error(t, err)
}

func TestPlaySyncRecordsAuditRun(t *testing.T) {
	_, repos := newTestRepos(t)
	ctx := context.Background()

	user := createTestUser(t, repos, "tester")

	bgg := &fakeBGGService{
		things: []BGGThing{fakeThing(174430, "Gloomhaven")},
		plays: []BGGPlay{
			fakeBGGPlay(101, "2026-03-14", 174430, BGGPlayer{Username: "tester"}),
		},
	}
	service := newTestPlaySyncService(repos, bgg)
	require.NoError(t, service.SyncUserPlays(ctx, user.ID, syncWindow.min, syncWindow.max))

	runs, err := repos.SyncRun.GetRecent(ctx, models.SyncRunKindPlays, &user.ID, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.True(t, runs[0].Succeeded)
	assert.NotNil(t, runs[0].FinishedAt)
	assert.Contains(t, string(runs[0].Summary), `"imported":1`)
}
