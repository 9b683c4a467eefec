package services

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"tabletally/internal/events"
	"tabletally/internal/logger"
	. "tabletally/internal/models"
	"tabletally/internal/repositories"
	"tabletally/internal/utils"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// PlaySyncService imports a user's play history from BGG. Each fetched play
// is upserted by its BGG play id, unknown games are registered through the
// catalog pipeline first, and plays the remote no longer lists are removed.
// Every touched play goes through the deduplication resolver.
type PlaySyncService struct {
	bgg         BGGService
	gameSync    *GameSyncService
	dedup       *DedupService
	playRepo    repositories.PlayRepository
	userRepo    repositories.UserRepository
	syncRunRepo repositories.SyncRunRepository
	eventBus    *events.EventBus
	log         logger.Logger
}

func NewPlaySyncService(
	bgg BGGService,
	gameSync *GameSyncService,
	dedup *DedupService,
	playRepo repositories.PlayRepository,
	userRepo repositories.UserRepository,
	syncRunRepo repositories.SyncRunRepository,
	eventBus *events.EventBus,
) *PlaySyncService {
	return &PlaySyncService{
		bgg:         bgg,
		gameSync:    gameSync,
		dedup:       dedup,
		playRepo:    playRepo,
		userRepo:    userRepo,
		syncRunRepo: syncRunRepo,
		eventBus:    eventBus,
		log:         logger.New("PlaySyncService"),
	}
}

// SyncUserPlays imports the user's BGG plays dated inside [minDate, maxDate].
// The remote listing must arrive completely before any reconciliation runs;
// a fetch failure marks the window's pending records failed and is re-raised.
func (s *PlaySyncService) SyncUserPlays(ctx context.Context, userID uuid.UUID, minDate, maxDate time.Time) error {
	log := s.log.Function("SyncUserPlays")

	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	if user == nil || !user.HasBGGUsername() {
		return log.ErrMsg("user has no BGG username configured")
	}

	minDate = NormalizePlayDate(minDate)
	maxDate = NormalizePlayDate(maxDate)

	run := s.startRun(ctx, userID)

	s.publish(events.PLAY_SYNC_STARTED, &userID, map[string]any{
		"minDate": utils.FormatPlayDate(minDate),
		"maxDate": utils.FormatPlayDate(maxDate),
	})

	remotePlays, err := s.bgg.FetchPlays(ctx, *user.BGGUsername, minDate, maxDate)
	if err != nil {
		msg := utils.TruncateError(err.Error())
		if markErr := s.playRepo.MarkInboundPendingFailed(ctx, userID, minDate, maxDate, msg); markErr != nil {
			log.Warn("Failed to mark pending plays as failed", "userID", userID, "error", markErr)
		}
		s.publish(events.PLAY_SYNC_ERROR, &userID, map[string]any{"error": msg})
		s.finishRun(ctx, run, false, &msg, nil)
		return log.Err("failed to fetch plays", err, "userID", userID, "username", *user.BGGUsername)
	}

	games, err := s.ensureGamesFor(ctx, remotePlays)
	if err != nil {
		msg := utils.TruncateError(err.Error())
		s.finishRun(ctx, run, false, &msg, nil)
		return err
	}

	imported := 0
	created := 0
	skipped := 0
	seen := make(map[int64]bool, len(remotePlays))

	for i := range remotePlays {
		remote := &remotePlays[i]
		seen[remote.ID] = true

		game, ok := games[remote.Item.ObjectID]
		if !ok || game == nil {
			skipped++
			log.Warn("Skipping play for unregistered game",
				"bggPlayID", remote.ID,
				"bggGameID", remote.Item.ObjectID,
			)
			continue
		}

		play, parseErr := s.remoteToPlay(remote, user, game)
		if parseErr != nil {
			skipped++
			log.Warn("Skipping unparseable play", "bggPlayID", remote.ID, "error", parseErr)
			continue
		}

		persisted, wasCreated, err := s.playRepo.UpsertByBGGPlayID(ctx, play)
		if err != nil {
			skipped++
			log.Warn("Failed to upsert play", "bggPlayID", remote.ID, "error", err)
			continue
		}

		if err := s.dedup.Resolve(ctx, persisted); err != nil {
			log.Warn("Failed to resolve duplicates for play", "playID", persisted.ID, "error", err)
		}

		imported++
		if wasCreated {
			created++
		}

		if imported%25 == 0 {
			s.publish(events.PLAY_SYNC_PROGRESS, &userID, map[string]any{
				"imported": imported,
				"total":    len(remotePlays),
			})
		}
	}

	// Reconciliation runs only against a complete listing, never a partial one
	removed, err := s.reconcileDeletions(ctx, userID, minDate, maxDate, seen)
	if err != nil {
		msg := utils.TruncateError(err.Error())
		s.finishRun(ctx, run, false, &msg, nil)
		return err
	}

	s.finishRun(ctx, run, true, nil, map[string]any{
		"imported": imported,
		"created":  created,
		"skipped":  skipped,
		"removed":  removed,
	})

	log.Info("Play sync finished",
		"userID", userID,
		"imported", imported,
		"created", created,
		"skipped", skipped,
		"removed", removed,
	)
	s.publish(events.PLAY_SYNC_COMPLETE, &userID, map[string]any{
		"imported": imported,
		"created":  created,
		"skipped":  skipped,
		"removed":  removed,
	})

	return nil
}

// ensureGamesFor registers every game referenced by the fetched plays and
// returns them keyed by BGG id
func (s *PlaySyncService) ensureGamesFor(ctx context.Context, remotePlays []BGGPlay) (map[int64]*BoardGame, error) {
	idSet := make(map[int64]bool, len(remotePlays))
	var ids []int64
	for i := range remotePlays {
		id := remotePlays[i].Item.ObjectID
		if id > 0 && !idSet[id] {
			idSet[id] = true
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return map[int64]*BoardGame{}, nil
	}
	return s.gameSync.EnsureGames(ctx, ids)
}

// remoteToPlay maps a fetched BGG play onto our model. The importing user's
// own seat is recognized by BGG username and linked to the local account.
func (s *PlaySyncService) remoteToPlay(remote *BGGPlay, user *User, game *BoardGame) (*Play, error) {
	playDate, err := utils.ParsePlayDate(remote.Date)
	if err != nil {
		return nil, err
	}

	bggPlayID := remote.ID
	play := &Play{
		BoardGameID: game.ID,
		CreatedByID: user.ID,
		PlayDate:    playDate,
		Location:    remote.Location,
		Comments:    remote.Comments,
		Source:      PlaySourceBGG,
		BGGPlayID:   &bggPlayID,
	}
	if remote.Length > 0 {
		length := remote.Length
		play.Duration = &length
	}
	play.MarkAsSynced()

	for i := range remote.Players {
		participant, err := s.remoteToParticipant(&remote.Players[i], user)
		if err != nil {
			return nil, err
		}
		play.Participants = append(play.Participants, *participant)
	}

	return play, nil
}

func (s *PlaySyncService) remoteToParticipant(player *BGGPlayer, user *User) (*PlayParticipant, error) {
	participant := &PlayParticipant{
		IsWinner:    player.Win == 1,
		IsFirstPlay: player.New == 1,
	}

	switch {
	case player.Username != "" && user.BGGUsername != nil && player.Username == *user.BGGUsername:
		userID := user.ID
		participant.UserID = &userID
	case player.Username != "":
		username := player.Username
		participant.BGGUsername = &username
	case player.Name != "":
		guest := player.Name
		participant.GuestName = &guest
	default:
		return nil, ErrAmbiguousIdentity
	}

	if player.Score != "" {
		if score, err := decimal.NewFromString(player.Score); err == nil {
			participant.Score = &score
		}
	}
	if player.StartPosition != "" {
		if pos, err := strconv.Atoi(player.StartPosition); err == nil && pos > 0 {
			participant.FinishPosition = &pos
		}
	}

	return participant, nil
}

// reconcileDeletions removes local BGG-sourced plays inside the window that
// no longer appear remotely. Hard delete frees the unique BGG play id, so a
// later re-import is a clean create, and followers are re-homed first.
func (s *PlaySyncService) reconcileDeletions(
	ctx context.Context,
	userID uuid.UUID,
	minDate, maxDate time.Time,
	seen map[int64]bool,
) (int, error) {
	log := s.log.Function("reconcileDeletions")

	local, err := s.playRepo.GetExternalPlaysInRange(ctx, userID, minDate, maxDate)
	if err != nil {
		return 0, err
	}

	removed := 0
	for i := range local {
		play := &local[i]
		if play.BGGPlayID == nil || seen[*play.BGGPlayID] {
			continue
		}

		if err := s.dedup.HandleDeleted(ctx, play); err != nil {
			log.Warn("Failed to re-home followers before delete", "playID", play.ID, "error", err)
			continue
		}

		if err := s.playRepo.DeleteHard(ctx, play.ID); err != nil {
			log.Warn("Failed to delete remotely removed play", "playID", play.ID, "error", err)
			continue
		}

		removed++
		log.Info("Removed play deleted on BGG", "playID", play.ID, "bggPlayID", *play.BGGPlayID)
	}

	return removed, nil
}

// startRun opens the audit record for this import. Audit failures are
// logged and swallowed; bookkeeping never blocks the sync itself.
func (s *PlaySyncService) startRun(ctx context.Context, userID uuid.UUID) *SyncRun {
	run := &SyncRun{
		Kind:      SyncRunKindPlays,
		UserID:    &userID,
		StartedAt: time.Now().UTC(),
	}
	if err := s.syncRunRepo.Create(ctx, run); err != nil {
		s.log.Warn("Failed to record sync run start", "userID", userID, "error", err)
		return nil
	}
	return run
}

func (s *PlaySyncService) finishRun(
	ctx context.Context,
	run *SyncRun,
	succeeded bool,
	errorMessage *string,
	summary map[string]any,
) {
	if run == nil {
		return
	}

	run.Finish(succeeded, errorMessage)
	if summary != nil {
		if raw, err := json.Marshal(summary); err == nil {
			run.Summary = datatypes.JSON(raw)
		}
	}

	if err := s.syncRunRepo.Update(ctx, run); err != nil {
		s.log.Warn("Failed to record sync run end", "runID", run.ID, "error", err)
	}
}

func (s *PlaySyncService) publish(msgType events.MessageType, userID *uuid.UUID, data map[string]any) {
	if s.eventBus == nil {
		return
	}
	if err := s.eventBus.Publish(events.SYNC_CHANNEL, events.Event{
		Type:   msgType,
		UserID: userID,
		Data:   data,
	}); err != nil {
		s.log.Warn("Failed to publish sync event", "type", msgType, "error", err)
	}
}
