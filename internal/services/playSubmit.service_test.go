package services

import (
	"context"
	"testing"
	"time"

	"tabletally/internal/models"
	"tabletally/internal/repositories"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPlaySubmitService(
	t *testing.T,
	repos repositories.Repository,
	bgg *fakeBGGService,
) *PlaySubmitService {
	t.Helper()
	credentials := newTestCredentialService(t, repos)
	return NewPlaySubmitService(bgg, credentials, repos.Play, repos.BoardGame, nil, false)
}

func submittablePlay(
	t *testing.T,
	repos repositories.Repository,
	user *models.User,
	game *models.BoardGame,
) *models.Play {
	t.Helper()

	score := decimal.NewFromInt(42)
	position := 1
	participants := []models.PlayParticipant{
		{UserID: &user.ID, IsWinner: true, Score: &score, FinishPosition: &position},
		guestParticipant("Sam"),
	}
	return createTestPlay(t, repos, game, nil, user,
		time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC), participants)
}

func TestPlaySubmit_SuccessRecordsRemoteID(t *testing.T) {
	_, repos := newTestRepos(t)
	ctx := context.Background()

	user := createTestUser(t, repos, "tester")
	game := createTestGame(t, repos, 174430)
	play := submittablePlay(t, repos, user, game)

	bgg := &fakeBGGService{submitID: 9912345}
	service := newTestPlaySubmitService(t, repos, bgg)
	require.NoError(t, service.Submit(ctx, play.ID, &models.Credential{
		Username: "tester",
		Password: "hunter2",
	}, true))

	reloaded, err := repos.Play.GetByID(ctx, play.ID)
	require.NoError(t, err)
	require.NotNil(t, reloaded.BGGPlayID)
	assert.Equal(t, int64(9912345), *reloaded.BGGPlayID)
	assert.Equal(t, models.SyncStatusSynced, reloaded.SubmitStatus)
	assert.False(t, reloaded.RequestOutboundSync)

	require.Len(t, bgg.submitted, 1)
	submission := bgg.submitted[0]
	assert.Equal(t, int64(174430), submission.ObjectID)
	assert.Equal(t, "2026-03-14", submission.Date)
	assert.Nil(t, submission.PlayID)
	require.Len(t, submission.Players, 2)
}

func TestPlaySubmit_TranslatesParticipants(t *testing.T) {
	_, repos := newTestRepos(t)
	ctx := context.Background()

	user := createTestUser(t, repos, "tester")
	game := createTestGame(t, repos, 174430)
	play := submittablePlay(t, repos, user, game)

	bgg := &fakeBGGService{submitID: 1}
	service := newTestPlaySubmitService(t, repos, bgg)
	require.NoError(t, service.Submit(ctx, play.ID, &models.Credential{
		Username: "tester",
		Password: "hunter2",
	}, true))

	require.Len(t, bgg.submitted, 1)
	players := bgg.submitted[0].Players

	var linked, guest *SubmissionPlayer
	for i := range players {
		if players[i].Username != "" {
			linked = &players[i]
		} else {
			guest = &players[i]
		}
	}
	require.NotNil(t, linked)
	assert.Equal(t, "tester", linked.Username)
	assert.True(t, linked.Win)
	assert.Equal(t, "42", linked.Score)
	assert.Equal(t, "1", linked.Position)

	require.NotNil(t, guest)
	assert.Equal(t, "Sam", guest.Name)
}

func TestPlaySubmit_ExistingRemoteIDUpdatesInPlace(t *testing.T) {
	_, repos := newTestRepos(t)
	ctx := context.Background()

	user := createTestUser(t, repos, "tester")
	game := createTestGame(t, repos, 174430)
	play := submittablePlay(t, repos, user, game)

	bggPlayID := int64(5555)
	play.BGGPlayID = &bggPlayID
	play.RequestOutboundSync = true
	require.NoError(t, repos.Play.Update(ctx, play))

	bgg := &fakeBGGService{submitID: 5555}
	service := newTestPlaySubmitService(t, repos, bgg)
	require.NoError(t, service.Submit(ctx, play.ID, &models.Credential{
		Username: "tester",
		Password: "hunter2",
	}, false))

	require.Len(t, bgg.submitted, 1)
	require.NotNil(t, bgg.submitted[0].PlayID)
	assert.Equal(t, int64(5555), *bgg.submitted[0].PlayID)
}

func TestPlaySubmit_AlreadySubmittedIsNoOp(t *testing.T) {
	_, repos := newTestRepos(t)
	ctx := context.Background()

	user := createTestUser(t, repos, "tester")
	game := createTestGame(t, repos, 174430)
	play := submittablePlay(t, repos, user, game)

	play.MarkAsSubmitted(5555)
	require.NoError(t, repos.Play.Update(ctx, play))

	bgg := &fakeBGGService{}
	service := newTestPlaySubmitService(t, repos, bgg)
	require.NoError(t, service.Submit(ctx, play.ID, nil, true))
	assert.Empty(t, bgg.submitted)
}

func TestPlaySubmit_ExcludedPlayIsRejected(t *testing.T) {
	_, repos := newTestRepos(t)
	ctx := context.Background()

	user := createTestUser(t, repos, "tester")
	game := createTestGame(t, repos, 174430)
	leader := submittablePlay(t, repos, user, game)
	play := submittablePlay(t, repos, user, game)

	play.MarkAsExcluded(leader.ID)
	require.NoError(t, repos.Play.Update(ctx, play))

	bgg := &fakeBGGService{}
	service := newTestPlaySubmitService(t, repos, bgg)
	err := service.Submit(ctx, play.ID, nil, true)
	assert.ErrorIs(t, err, ErrPermanentClient)
	assert.Empty(t, bgg.submitted)
}

func TestPlaySubmit_UnmappedGameIsTerminal(t *testing.T) {
	_, repos := newTestRepos(t)
	ctx := context.Background()

	user := createTestUser(t, repos, "tester")
	game := createTestGame(t, repos, 0)
	play := submittablePlay(t, repos, user, game)

	bgg := &fakeBGGService{}
	service := newTestPlaySubmitService(t, repos, bgg)
	err := service.Submit(ctx, play.ID, &models.Credential{
		Username: "tester",
		Password: "hunter2",
	}, true)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMissingExternalMapping)
	assert.True(t, IsTerminalError(err))

	reloaded, err := repos.Play.GetByID(ctx, play.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SyncStatusFailed, reloaded.SubmitStatus)
	assert.NotNil(t, reloaded.SubmitError)
}

func TestPlaySubmit_AuthFailureIsRecordedAndReRaised(t *testing.T) {
	_, repos := newTestRepos(t)
	ctx := context.Background()

	user := createTestUser(t, repos, "tester")
	game := createTestGame(t, repos, 174430)
	play := submittablePlay(t, repos, user, game)

	bgg := &fakeBGGService{loginErr: ErrAuthenticationFailed}
	service := newTestPlaySubmitService(t, repos, bgg)
	err := service.Submit(ctx, play.ID, &models.Credential{
		Username: "tester",
		Password: "wrong",
	}, true)
	assert.ErrorIs(t, err, ErrAuthenticationFailed)

	reloaded, err := repos.Play.GetByID(ctx, play.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SyncStatusFailed, reloaded.SubmitStatus)
}

func TestPlaySubmit_ImportedPlayNeedsOutboundRequest(t *testing.T) {
	_, repos := newTestRepos(t)
	ctx := context.Background()

	user := createTestUser(t, repos, "tester")
	game := createTestGame(t, repos, 174430)
	play := submittablePlay(t, repos, user, game)

	play.Source = models.PlaySourceBGG
	require.NoError(t, repos.Play.Update(ctx, play))

	bgg := &fakeBGGService{}
	service := newTestPlaySubmitService(t, repos, bgg)
	err := service.Submit(ctx, play.ID, nil, true)
	assert.ErrorIs(t, err, ErrPermanentClient)
}

func TestPlaySubmit_WithdrawnRequestSkipsSubmission(t *testing.T) {
	_, repos := newTestRepos(t)
	ctx := context.Background()

	user := createTestUser(t, repos, "tester")
	game := createTestGame(t, repos, 174430)
	play := submittablePlay(t, repos, user, game)

	// Queued flush after the user withdrew the outbound request
	bgg := &fakeBGGService{submitID: 1}
	service := newTestPlaySubmitService(t, repos, bgg)
	require.NoError(t, service.Submit(ctx, play.ID, nil, false))
	assert.Empty(t, bgg.submitted)

	reloaded, err := repos.Play.GetByID(ctx, play.ID)
	require.NoError(t, err)
	assert.Nil(t, reloaded.BGGPlayID)
	assert.Equal(t, models.SyncStatusNone, reloaded.SubmitStatus)
}
