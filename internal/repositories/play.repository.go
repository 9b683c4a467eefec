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

// StatsFilter narrows play statistics to a user and/or group. Excluded plays
// are hidden unless IncludeExcluded is set.
type StatsFilter struct {
	UserID          *uuid.UUID
	GroupID         *uuid.UUID
	IncludeExcluded bool
}

type PlayRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Play, error)
	GetByBGGPlayID(ctx context.Context, bggPlayID int64) (*Play, error)
	Create(ctx context.Context, play *Play) error
	Update(ctx context.Context, play *Play) error
	Delete(ctx context.Context, id uuid.UUID) error
	DeleteHard(ctx context.Context, id uuid.UUID) error
	ReplaceParticipants(ctx context.Context, playID uuid.UUID, participants []PlayParticipant) error
	ReplaceExpansions(ctx context.Context, playID uuid.UUID, expansionIDs []uuid.UUID) error
	UpsertByBGGPlayID(ctx context.Context, play *Play) (*Play, bool, error)
	GetLeadingCandidates(ctx context.Context, boardGameID uuid.UUID, playDate time.Time, groupID uuid.UUID, excludeID uuid.UUID) ([]Play, error)
	GetFollowers(ctx context.Context, leadingID uuid.UUID) ([]Play, error)
	GetExternalPlaysInRange(ctx context.Context, userID uuid.UUID, minDate, maxDate time.Time) ([]Play, error)
	GetPendingOutbound(ctx context.Context, limit int) ([]Play, error)
	MarkInboundPendingFailed(ctx context.Context, userID uuid.UUID, minDate, maxDate time.Time, errorMessage string) error
	List(ctx context.Context, filter StatsFilter, limit, offset int) ([]Play, error)
	CountPlays(ctx context.Context, filter StatsFilter) (int64, error)
	CountWins(ctx context.Context, userID uuid.UUID, groupID *uuid.UUID) (int64, error)
}

type playRepository struct {
	db  database.DB
	log logger.Logger
}

func NewPlayRepository(db database.DB) PlayRepository {
	return &playRepository{
		db:  db,
		log: logger.New("playRepository"),
	}
}

func (r *playRepository) getDB(ctx context.Context) *gorm.DB {
	if tx, ok := contextutil.GetTransaction(ctx); ok {
		return tx
	}
	return r.db.SQLWithContext(ctx)
}

func (r *playRepository) GetByID(ctx context.Context, id uuid.UUID) (*Play, error) {
	log := r.log.Function("GetByID")

	var play Play
	err := r.getDB(ctx).
		Preload("Participants").
		Preload("Participants.User").
		Preload("BoardGame").
		Preload("Expansions").
		First(&play, "id = ?", id).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, log.Err("failed to get play by ID", err, "id", id)
	}

	return &play, nil
}

func (r *playRepository) GetByBGGPlayID(ctx context.Context, bggPlayID int64) (*Play, error) {
	log := r.log.Function("GetByBGGPlayID")

	var play Play
	err := r.getDB(ctx).
		Preload("Participants").
		First(&play, "bgg_play_id = ?", bggPlayID).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, log.Err("failed to get play by BGG play ID", err, "bggPlayID", bggPlayID)
	}

	return &play, nil
}

func (r *playRepository) Create(ctx context.Context, play *Play) error {
	log := r.log.Function("Create")

	if err := r.getDB(ctx).Create(play).Error; err != nil {
		return log.Err("failed to create play", err, "boardGameID", play.BoardGameID)
	}

	return nil
}

func (r *playRepository) Update(ctx context.Context, play *Play) error {
	log := r.log.Function("Update")

	// Save without touching associations; participants are replaced
	// wholesale through ReplaceParticipants
	err := r.getDB(ctx).Omit("Participants", "Expansions").Save(play).Error
	if err != nil {
		return log.Err("failed to update play", err, "id", play.ID)
	}

	return nil
}

func (r *playRepository) Delete(ctx context.Context, id uuid.UUID) error {
	log := r.log.Function("Delete")

	if err := r.getDB(ctx).Delete(&Play{}, "id = ?", id).Error; err != nil {
		return log.Err("failed to delete play", err, "id", id)
	}

	return nil
}

// DeleteHard removes the play, its participants and its expansion links for
// good. Used by deletion reconciliation, where the unique BGG play id must
// become reusable for a future re-import.
func (r *playRepository) DeleteHard(ctx context.Context, id uuid.UUID) error {
	log := r.log.Function("DeleteHard")

	db := r.getDB(ctx)

	if err := db.Unscoped().Delete(&PlayParticipant{}, "play_id = ?", id).Error; err != nil {
		return log.Err("failed to delete play participants", err, "playID", id)
	}

	if err := db.Exec("DELETE FROM play_expansions WHERE play_id = ?", id).Error; err != nil {
		return log.Err("failed to delete play expansion links", err, "playID", id)
	}

	if err := db.Unscoped().Delete(&Play{}, "id = ?", id).Error; err != nil {
		return log.Err("failed to hard delete play", err, "id", id)
	}

	return nil
}

// ReplaceParticipants swaps the full participant set of a play in one
// transaction. Old rows are removed, new ones inserted; there is no in-place
// patching, which keeps identity-set comparison trivial.
func (r *playRepository) ReplaceParticipants(
	ctx context.Context,
	playID uuid.UUID,
	participants []PlayParticipant,
) error {
	log := r.log.Function("ReplaceParticipants")

	err := r.getDB(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Unscoped().Delete(&PlayParticipant{}, "play_id = ?", playID).Error; err != nil {
			return err
		}

		for i := range participants {
			participants[i].ID = uuid.Nil
			participants[i].PlayID = playID
		}

		if len(participants) > 0 {
			if err := tx.Create(&participants).Error; err != nil {
				return err
			}
		}

		return nil
	})
	if err != nil {
		return log.Err("failed to replace play participants", err, "playID", playID)
	}

	return nil
}

// ReplaceExpansions swaps the expansions attached to a play by rewriting the
// join rows directly. Validation of the ids (existence, expansion flag) is
// the service's job.
func (r *playRepository) ReplaceExpansions(
	ctx context.Context,
	playID uuid.UUID,
	expansionIDs []uuid.UUID,
) error {
	log := r.log.Function("ReplaceExpansions")

	db := r.getDB(ctx)

	if err := db.Exec("DELETE FROM play_expansions WHERE play_id = ?", playID).Error; err != nil {
		return log.Err("failed to clear play expansion links", err, "playID", playID)
	}

	for _, expansionID := range expansionIDs {
		err := db.Exec(
			"INSERT INTO play_expansions (play_id, board_game_id) VALUES (?, ?)",
			playID, expansionID,
		).Error
		if err != nil {
			return log.Err("failed to attach play expansion", err,
				"playID", playID, "expansionID", expansionID)
		}
	}

	return nil
}

// UpsertByBGGPlayID creates the play if its BGG play id is unseen, otherwise
// refreshes the existing record and replaces its participants. Returns the
// persisted play and whether it was newly created.
func (r *playRepository) UpsertByBGGPlayID(ctx context.Context, play *Play) (*Play, bool, error) {
	log := r.log.Function("UpsertByBGGPlayID")

	if !play.HasBGGPlayID() {
		return nil, false, log.ErrMsg("play has no BGG play ID to upsert by")
	}

	existing, err := r.GetByBGGPlayID(ctx, *play.BGGPlayID)
	if err != nil {
		return nil, false, err
	}

	if existing == nil {
		participants := play.Participants
		play.Participants = nil
		if err := r.getDB(ctx).Omit("Expansions").Create(play).Error; err != nil {
			return nil, false, log.Err("failed to create play", err, "bggPlayID", *play.BGGPlayID)
		}
		if err := r.ReplaceParticipants(ctx, play.ID, participants); err != nil {
			return nil, false, err
		}
		play.Participants = participants
		return play, true, nil
	}

	existing.BoardGameID = play.BoardGameID
	existing.PlayDate = play.PlayDate
	existing.Location = play.Location
	existing.Duration = play.Duration
	existing.Comments = play.Comments
	existing.SyncedAt = play.SyncedAt
	existing.SyncStatus = play.SyncStatus
	existing.SyncError = play.SyncError

	if err := r.Update(ctx, existing); err != nil {
		return nil, false, err
	}

	if err := r.ReplaceParticipants(ctx, existing.ID, play.Participants); err != nil {
		return nil, false, err
	}
	existing.Participants = play.Participants

	return existing, false, nil
}

// GetLeadingCandidates returns the leading plays sharing the grouping key
// (board game, play date, group), excluding the play being resolved. The
// query is bounded by the composite grouping index.
func (r *playRepository) GetLeadingCandidates(
	ctx context.Context,
	boardGameID uuid.UUID,
	playDate time.Time,
	groupID uuid.UUID,
	excludeID uuid.UUID,
) ([]Play, error) {
	log := r.log.Function("GetLeadingCandidates")

	var plays []Play
	err := r.getDB(ctx).
		Preload("Participants").
		Where("board_game_id = ? AND play_date = ? AND group_id = ? AND is_excluded = ?",
			boardGameID, NormalizePlayDate(playDate), groupID, false).
		Where("id != ?", excludeID).
		Order("created_at ASC, id ASC").
		Find(&plays).Error
	if err != nil {
		return nil, log.Err("failed to get leading candidates", err,
			"boardGameID", boardGameID,
			"groupID", groupID,
		)
	}

	return plays, nil
}

func (r *playRepository) GetFollowers(ctx context.Context, leadingID uuid.UUID) ([]Play, error) {
	log := r.log.Function("GetFollowers")

	var plays []Play
	err := r.getDB(ctx).
		Preload("Participants").
		Where("leading_play_id = ? AND is_excluded = ?", leadingID, true).
		Order("created_at ASC, id ASC").
		Find(&plays).Error
	if err != nil {
		return nil, log.Err("failed to get followers", err, "leadingID", leadingID)
	}

	return plays, nil
}

// GetExternalPlaysInRange returns the user's BGG-sourced plays whose play
// date falls inside [minDate, maxDate], used for deletion reconciliation
func (r *playRepository) GetExternalPlaysInRange(
	ctx context.Context,
	userID uuid.UUID,
	minDate, maxDate time.Time,
) ([]Play, error) {
	log := r.log.Function("GetExternalPlaysInRange")

	var plays []Play
	err := r.getDB(ctx).
		Where("created_by_id = ? AND source = ? AND bgg_play_id IS NOT NULL", userID, PlaySourceBGG).
		Where("play_date >= ? AND play_date <= ?", NormalizePlayDate(minDate), NormalizePlayDate(maxDate)).
		Find(&plays).Error
	if err != nil {
		return nil, log.Err("failed to get external plays in range", err, "userID", userID)
	}

	return plays, nil
}

// GetPendingOutbound returns leading plays flagged for submission to BGG,
// oldest first so retries do not starve new requests
func (r *playRepository) GetPendingOutbound(ctx context.Context, limit int) ([]Play, error) {
	log := r.log.Function("GetPendingOutbound")

	var plays []Play
	err := r.getDB(ctx).
		Where("request_outbound_sync = ? AND is_excluded = ?", true, false).
		Order("updated_at ASC").
		Limit(limit).
		Find(&plays).Error
	if err != nil {
		return nil, log.Err("failed to get pending outbound plays", err)
	}

	return plays, nil
}

// MarkInboundPendingFailed records a fetch failure on every in-range inbound
// record that has not completed a sync yet
func (r *playRepository) MarkInboundPendingFailed(
	ctx context.Context,
	userID uuid.UUID,
	minDate, maxDate time.Time,
	errorMessage string,
) error {
	log := r.log.Function("MarkInboundPendingFailed")

	err := r.getDB(ctx).
		Model(&Play{}).
		Where("created_by_id = ? AND source = ?", userID, PlaySourceBGG).
		Where("play_date >= ? AND play_date <= ?", NormalizePlayDate(minDate), NormalizePlayDate(maxDate)).
		Where("sync_status IN ?", []SyncStatus{SyncStatusNone, SyncStatusPending}).
		Updates(map[string]any{
			"sync_status": SyncStatusFailed,
			"sync_error":  errorMessage,
		}).Error
	if err != nil {
		return log.Err("failed to mark pending inbound plays failed", err, "userID", userID)
	}

	return nil
}

func (r *playRepository) applyStatsFilter(db *gorm.DB, filter StatsFilter) *gorm.DB {
	if filter.UserID != nil {
		db = db.Where("created_by_id = ?", *filter.UserID)
	}
	if filter.GroupID != nil {
		db = db.Where("group_id = ?", *filter.GroupID)
	}
	if !filter.IncludeExcluded {
		db = db.Where("is_excluded = ?", false)
	}
	return db
}

func (r *playRepository) List(
	ctx context.Context,
	filter StatsFilter,
	limit, offset int,
) ([]Play, error) {
	log := r.log.Function("List")

	var plays []Play
	err := r.applyStatsFilter(r.getDB(ctx).Model(&Play{}), filter).
		Preload("Participants").
		Preload("BoardGame").
		Order("play_date DESC, created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&plays).Error
	if err != nil {
		return nil, log.Err("failed to list plays", err)
	}

	return plays, nil
}

func (r *playRepository) CountPlays(ctx context.Context, filter StatsFilter) (int64, error) {
	log := r.log.Function("CountPlays")

	var count int64
	err := r.applyStatsFilter(r.getDB(ctx).Model(&Play{}), filter).Count(&count).Error
	if err != nil {
		return 0, log.Err("failed to count plays", err)
	}

	return count, nil
}

// CountWins counts leading plays in which the user is a winning participant.
// Excluded plays never contribute to statistics.
func (r *playRepository) CountWins(
	ctx context.Context,
	userID uuid.UUID,
	groupID *uuid.UUID,
) (int64, error) {
	log := r.log.Function("CountWins")

	db := r.getDB(ctx).
		Model(&Play{}).
		Joins("JOIN play_participants pp ON pp.play_id = plays.id AND pp.deleted_at IS NULL").
		Where("pp.user_id = ? AND pp.is_winner = ?", userID, true).
		Where("plays.is_excluded = ?", false)

	if groupID != nil {
		db = db.Where("plays.group_id = ?", *groupID)
	}

	var count int64
	if err := db.Count(&count).Error; err != nil {
		return 0, log.Err("failed to count wins", err, "userID", userID)
	}

	return count, nil
}
