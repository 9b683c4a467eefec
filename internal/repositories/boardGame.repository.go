package repositories

import (
	"context"
	"time"

	contextutil "tabletally/internal/context"
	"tabletally/internal/database"
	"tabletally/internal/logger"
	. "tabletally/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type BoardGameRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*BoardGame, error)
	GetByBGGID(ctx context.Context, bggID int64) (*BoardGame, error)
	GetBatchByBGGIDs(ctx context.Context, bggIDs []int64) (map[int64]*BoardGame, error)
	Create(ctx context.Context, game *BoardGame) error
	Update(ctx context.Context, game *BoardGame) error
	UpsertByBGGID(ctx context.Context, game *BoardGame) (*BoardGame, error)
	GetStale(ctx context.Context, threshold time.Duration, limit int) ([]BoardGame, error)
}

type boardGameRepository struct {
	db  database.DB
	log logger.Logger
}

func NewBoardGameRepository(db database.DB) BoardGameRepository {
	return &boardGameRepository{
		db:  db,
		log: logger.New("boardGameRepository"),
	}
}

func (r *boardGameRepository) getDB(ctx context.Context) *gorm.DB {
	if tx, ok := contextutil.GetTransaction(ctx); ok {
		return tx
	}
	return r.db.SQLWithContext(ctx)
}

func (r *boardGameRepository) GetByID(ctx context.Context, id uuid.UUID) (*BoardGame, error) {
	log := r.log.Function("GetByID")

	var game BoardGame
	if err := r.getDB(ctx).First(&game, "id = ?", id).Error; err != nil {
		return nil, log.Err("failed to get board game by ID", err, "id", id)
	}

	return &game, nil
}

func (r *boardGameRepository) GetByBGGID(ctx context.Context, bggID int64) (*BoardGame, error) {
	log := r.log.Function("GetByBGGID")

	var game BoardGame
	err := r.getDB(ctx).First(&game, "bgg_id = ?", bggID).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, log.Err("failed to get board game by BGG ID", err, "bggID", bggID)
	}

	return &game, nil
}

func (r *boardGameRepository) GetBatchByBGGIDs(
	ctx context.Context,
	bggIDs []int64,
) (map[int64]*BoardGame, error) {
	log := r.log.Function("GetBatchByBGGIDs")

	if len(bggIDs) == 0 {
		return make(map[int64]*BoardGame), nil
	}

	var games []*BoardGame
	if err := r.getDB(ctx).Where("bgg_id IN ?", bggIDs).Find(&games).Error; err != nil {
		return nil, log.Err("failed to get board games by BGG IDs", err, "count", len(bggIDs))
	}

	result := make(map[int64]*BoardGame, len(games))
	for _, game := range games {
		if game.BGGID != nil {
			result[*game.BGGID] = game
		}
	}

	return result, nil
}

func (r *boardGameRepository) Create(ctx context.Context, game *BoardGame) error {
	log := r.log.Function("Create")

	if err := r.getDB(ctx).Create(game).Error; err != nil {
		return log.Err("failed to create board game", err, "name", game.Name)
	}

	return nil
}

func (r *boardGameRepository) Update(ctx context.Context, game *BoardGame) error {
	log := r.log.Function("Update")

	if err := r.getDB(ctx).Save(game).Error; err != nil {
		return log.Err("failed to update board game", err, "id", game.ID)
	}

	return nil
}

// UpsertByBGGID creates the game if no record carries its BGG ID yet,
// otherwise overwrites the mutable catalog fields on the existing record.
// Local identity and play references survive the overwrite, which is what
// makes catalog sync idempotent.
func (r *boardGameRepository) UpsertByBGGID(
	ctx context.Context,
	game *BoardGame,
) (*BoardGame, error) {
	log := r.log.Function("UpsertByBGGID")

	if !game.HasBGGID() {
		return nil, log.ErrMsg("board game has no BGG ID to upsert by")
	}

	existing, err := r.GetByBGGID(ctx, *game.BGGID)
	if err != nil {
		return nil, err
	}

	if existing == nil {
		if err := r.getDB(ctx).Create(game).Error; err != nil {
			return nil, log.Err("failed to create board game", err, "bggID", *game.BGGID)
		}
		return game, nil
	}

	existing.Name = game.Name
	existing.MinPlayers = game.MinPlayers
	existing.MaxPlayers = game.MaxPlayers
	existing.PlayingTimeMinutes = game.PlayingTimeMinutes
	existing.YearPublished = game.YearPublished
	existing.Publisher = game.Publisher
	existing.Designer = game.Designer
	existing.AverageRating = game.AverageRating
	existing.Weight = game.Weight
	existing.ThumbnailURL = game.ThumbnailURL
	existing.ImageURL = game.ImageURL
	existing.IsExpansion = game.IsExpansion
	existing.LastSyncedAt = game.LastSyncedAt
	existing.SyncStatus = game.SyncStatus
	existing.SyncError = game.SyncError

	if err := r.getDB(ctx).Save(existing).Error; err != nil {
		return nil, log.Err("failed to update board game", err, "bggID", *game.BGGID)
	}

	return existing, nil
}

// GetStale returns games that have never synced or synced before the
// staleness threshold, feeding the scheduled catalog refresh
func (r *boardGameRepository) GetStale(
	ctx context.Context,
	threshold time.Duration,
	limit int,
) ([]BoardGame, error) {
	log := r.log.Function("GetStale")

	cutoff := time.Now().UTC().Add(-threshold)

	var games []BoardGame
	err := r.getDB(ctx).
		Where("bgg_id IS NOT NULL").
		Where("last_synced_at IS NULL OR last_synced_at < ?", cutoff).
		Order("last_synced_at ASC NULLS FIRST").
		Limit(limit).
		Find(&games).Error
	if err != nil {
		return nil, log.Err("failed to get stale board games", err)
	}

	return games, nil
}
