package services

import (
	"context"
	"fmt"
	"time"

	"tabletally/internal/events"
	"tabletally/internal/logger"
	. "tabletally/internal/models"
	"tabletally/internal/repositories"
	"tabletally/internal/utils"
)

// GameSyncService pulls catalog metadata from BGG and upserts it into the
// local board game table. A record that fails to parse is marked failed and
// skipped; it never aborts the rest of the batch.
type GameSyncService struct {
	bgg        BGGService
	gameRepo   repositories.BoardGameRepository
	eventBus   *events.EventBus
	staleAfter time.Duration
	staleLimit int
	log        logger.Logger
}

func NewGameSyncService(
	bgg BGGService,
	gameRepo repositories.BoardGameRepository,
	eventBus *events.EventBus,
	staleMonths int,
) *GameSyncService {
	return &GameSyncService{
		bgg:        bgg,
		gameRepo:   gameRepo,
		eventBus:   eventBus,
		staleAfter: time.Duration(staleMonths) * 30 * 24 * time.Hour,
		staleLimit: 200,
		log:        logger.New("GameSyncService"),
	}
}

// SyncByBGGIDs fetches the given BGG ids and upserts each returned item.
// Ids the remote omits from its response are marked as failed syncs so the
// gap is visible, but the call still succeeds for the items that came back.
func (s *GameSyncService) SyncByBGGIDs(ctx context.Context, bggIDs []int64) error {
	log := s.log.Function("SyncByBGGIDs")

	if len(bggIDs) == 0 {
		return nil
	}

	s.publish(events.CATALOG_SYNC_STARTED, map[string]any{"requested": len(bggIDs)})

	things, err := s.bgg.FetchThings(ctx, bggIDs)
	if err != nil {
		s.markBatchFailed(ctx, bggIDs, err)
		return log.Err("failed to fetch catalog items", err, "count", len(bggIDs))
	}

	returned := make(map[int64]bool, len(things))
	synced := 0
	failed := 0

	for i := range things {
		thing := &things[i]
		returned[thing.ID] = true

		game, parseErr := s.thingToBoardGame(thing)
		if parseErr != nil {
			failed++
			log.Warn("Skipping unparseable catalog item", "bggID", thing.ID, "error", parseErr)
			s.markFailed(ctx, thing.ID, parseErr)
			continue
		}

		if _, err := s.gameRepo.UpsertByBGGID(ctx, game); err != nil {
			failed++
			log.Warn("Failed to upsert catalog item", "bggID", thing.ID, "error", err)
			continue
		}
		synced++
	}

	for _, id := range bggIDs {
		if !returned[id] {
			failed++
			s.markFailed(ctx, id, ErrMalformedResponse)
		}
	}

	log.Info("Catalog sync finished", "requested", len(bggIDs), "synced", synced, "failed", failed)
	s.publish(events.CATALOG_SYNC_COMPLETE, map[string]any{
		"requested": len(bggIDs),
		"synced":    synced,
		"failed":    failed,
	})

	return nil
}

// EnsureGames guarantees local records exist for the given BGG ids, fetching
// only the ones we have never seen. Used by inbound play sync to register
// games it discovers. Returns the full id-to-game map for the caller.
func (s *GameSyncService) EnsureGames(ctx context.Context, bggIDs []int64) (map[int64]*BoardGame, error) {
	log := s.log.Function("EnsureGames")

	existing, err := s.gameRepo.GetBatchByBGGIDs(ctx, bggIDs)
	if err != nil {
		return nil, err
	}

	var missing []int64
	for _, id := range bggIDs {
		if _, ok := existing[id]; !ok {
			missing = append(missing, id)
		}
	}

	if len(missing) > 0 {
		log.Info("Registering unknown games from play history", "count", len(missing))
		if err := s.SyncByBGGIDs(ctx, missing); err != nil {
			return nil, err
		}

		existing, err = s.gameRepo.GetBatchByBGGIDs(ctx, bggIDs)
		if err != nil {
			return nil, err
		}
	}

	return existing, nil
}

// RefreshStale re-syncs games whose metadata has not been refreshed within
// the staleness window. Runs from the scheduler.
func (s *GameSyncService) RefreshStale(ctx context.Context) error {
	log := s.log.Function("RefreshStale")

	stale, err := s.gameRepo.GetStale(ctx, s.staleAfter, s.staleLimit)
	if err != nil {
		return log.Err("failed to query stale games", err)
	}

	if len(stale) == 0 {
		return nil
	}

	ids := make([]int64, 0, len(stale))
	for i := range stale {
		if stale[i].BGGID != nil {
			ids = append(ids, *stale[i].BGGID)
		}
	}

	log.Info("Refreshing stale catalog entries", "count", len(ids))
	return s.SyncByBGGIDs(ctx, ids)
}

// thingToBoardGame maps a BGG item onto our model, validating the fields we
// require. A nil return with error means the record is unusable.
func (s *GameSyncService) thingToBoardGame(thing *BGGThing) (*BoardGame, error) {
	name := thing.PrimaryName()
	if name == "" {
		return nil, ErrMalformedResponse
	}

	bggID := thing.ID
	now := time.Now()

	game := &BoardGame{
		BGGID:              &bggID,
		Name:               name,
		MinPlayers:         thing.MinPlayers.Ptr(),
		MaxPlayers:         thing.MaxPlayers.Ptr(),
		PlayingTimeMinutes: thing.PlayTime.Ptr(),
		YearPublished:      thing.YearPub.Ptr(),
		Publisher:          optString(thing.LinkValue("boardgamepublisher")),
		Designer:           optString(thing.LinkValue("boardgamedesigner")),
		ImageURL:           optString(thing.Image),
		ThumbnailURL:       optString(thing.Thumbnail),
		IsExpansion:        thing.IsExpansion(),
		AverageRating:      thing.Statistics.Ratings.Average.Decimal(),
		Weight:             thing.Statistics.Ratings.AverageWeight.Decimal(),
		LastSyncedAt:       &now,
		SyncStatus:         SyncStatusSynced,
	}

	return game, nil
}

func optString(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}

func (s *GameSyncService) markFailed(ctx context.Context, bggID int64, cause error) {
	message := utils.TruncateError(cause.Error())

	game, err := s.gameRepo.GetByBGGID(ctx, bggID)
	if err != nil {
		return
	}

	// An id we have never seen still gets a record, so the failure is
	// visible and the next catalog sync retries it.
	if game == nil {
		stub := &BoardGame{
			Name:  fmt.Sprintf("BGG item %d", bggID),
			BGGID: &bggID,
		}
		stub.MarkAsSyncFailed(message)
		if _, err := s.gameRepo.UpsertByBGGID(ctx, stub); err != nil {
			s.log.Warn("Failed to record sync failure", "bggID", bggID, "error", err)
		}
		return
	}

	game.MarkAsSyncFailed(message)
	if err := s.gameRepo.Update(ctx, game); err != nil {
		s.log.Warn("Failed to record sync failure", "bggID", bggID, "error", err)
	}
}

func (s *GameSyncService) markBatchFailed(ctx context.Context, bggIDs []int64, cause error) {
	for _, id := range bggIDs {
		s.markFailed(ctx, id, cause)
	}
}

func (s *GameSyncService) publish(msgType events.MessageType, data map[string]any) {
	if s.eventBus == nil {
		return
	}
	if err := s.eventBus.Publish(events.SYNC_CHANNEL, events.Event{
		Type: msgType,
		Data: data,
	}); err != nil {
		s.log.Warn("Failed to publish sync event", "type", msgType, "error", err)
	}
}
