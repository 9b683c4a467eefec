package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type BoardGame struct {
	BaseUUIDModel
	Name               string           `gorm:"type:text;not null;index:idx_board_games_name" json:"name" validate:"required"`
	BGGID              *int64           `gorm:"type:bigint;uniqueIndex:idx_board_games_bgg_id" json:"bggId,omitempty"`
	MinPlayers         *int             `gorm:"type:int" json:"minPlayers,omitempty"`
	MaxPlayers         *int             `gorm:"type:int" json:"maxPlayers,omitempty"`
	PlayingTimeMinutes *int             `gorm:"type:int" json:"playingTimeMinutes,omitempty"`
	YearPublished      *int             `gorm:"type:int;index:idx_board_games_year" json:"yearPublished,omitempty"`
	Publisher          *string          `gorm:"type:text" json:"publisher,omitempty"`
	Designer           *string          `gorm:"type:text" json:"designer,omitempty"`
	AverageRating      *decimal.Decimal `gorm:"type:numeric(5,3)" json:"averageRating,omitempty"`
	Weight             *decimal.Decimal `gorm:"type:numeric(5,3)" json:"weight,omitempty"`
	ThumbnailURL       *string          `gorm:"type:text" json:"thumbnailUrl,omitempty"`
	ImageURL           *string          `gorm:"type:text" json:"imageUrl,omitempty"`
	IsExpansion        bool             `gorm:"type:bool;default:false;index:idx_board_games_expansion" json:"isExpansion"`

	// Catalog sync bookkeeping. Mutated only by catalog sync, never by play sync.
	LastSyncedAt *time.Time `gorm:"type:timestamp" json:"lastSyncedAt,omitempty"`
	SyncStatus   SyncStatus `gorm:"type:text;default:'none';index:idx_board_games_sync_status" json:"syncStatus"`
	SyncError    *string    `gorm:"type:text" json:"syncError,omitempty"`

	// Relationships
	Plays      []Play `gorm:"foreignKey:BoardGameID"    json:"plays,omitempty"`
	UsedInPlays []Play `gorm:"many2many:play_expansions;" json:"-"`
}

func (g *BoardGame) BeforeCreate(tx *gorm.DB) (err error) {
	if err := g.BaseUUIDModel.BeforeCreate(tx); err != nil {
		return err
	}
	if g.Name == "" {
		return gorm.ErrInvalidValue
	}
	if g.SyncStatus == "" {
		g.SyncStatus = SyncStatusNone
	}
	return nil
}

func (g *BoardGame) BeforeUpdate(tx *gorm.DB) (err error) {
	// Batch updates run this hook against a zero-value model.
	if g.ID == uuid.Nil {
		return nil
	}
	if g.Name == "" {
		return gorm.ErrInvalidValue
	}
	return nil
}

func (g *BoardGame) HasBGGID() bool {
	return g.BGGID != nil && *g.BGGID > 0
}

func (g *BoardGame) MarkAsSynced() {
	now := time.Now().UTC()
	g.SyncStatus = SyncStatusSynced
	g.LastSyncedAt = &now
	g.SyncError = nil
}

func (g *BoardGame) MarkAsSyncFailed(errorMessage string) {
	g.SyncStatus = SyncStatusFailed
	g.SyncError = &errorMessage
}

// IsStale reports whether the catalog record should be refreshed: never
// synced, or last synced longer than the staleness threshold ago
func (g *BoardGame) IsStale(threshold time.Duration) bool {
	if g.LastSyncedAt == nil {
		return true
	}
	return time.Since(*g.LastSyncedAt) > threshold
}
