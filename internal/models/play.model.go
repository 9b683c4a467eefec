package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type PlaySource string

const (
	PlaySourceLocal PlaySource = "local"
	PlaySourceBGG   PlaySource = "bgg"
)

// Play records one real-world play session of a board game. Plays imported
// from BGG carry a BGGPlayID; locally created plays may be pushed back to BGG
// when RequestOutboundSync is set. Duplicate plays logged independently by
// group members are linked through IsExcluded/LeadingPlayID: the leading play
// is authoritative, excluded plays are hidden from default listings but kept
// for audit and re-resolution.
type Play struct {
	BaseUUIDModel
	BoardGameID uuid.UUID  `gorm:"type:uuid;not null;index:idx_plays_grouping,priority:1" json:"boardGameId" validate:"required"`
	GroupID     *uuid.UUID `gorm:"type:uuid;index:idx_plays_grouping,priority:3" json:"groupId,omitempty"`
	CreatedByID uuid.UUID  `gorm:"type:uuid;not null;index:idx_plays_created_by" json:"createdById" validate:"required"`
	PlayDate    time.Time  `gorm:"type:date;not null;index:idx_plays_grouping,priority:2" json:"playDate"`
	Location    string     `gorm:"type:text" json:"location"`
	Duration    *int       `gorm:"type:int" json:"duration,omitempty"`
	Comments    string     `gorm:"type:text" json:"comments"`
	Source      PlaySource `gorm:"type:text;not null;default:'local'" json:"source"`

	// Inbound sync bookkeeping
	BGGPlayID  *int64     `gorm:"type:bigint;uniqueIndex:idx_plays_bgg_play_id" json:"bggPlayId,omitempty"`
	SyncedAt   *time.Time `gorm:"type:timestamp" json:"syncedAt,omitempty"`
	SyncStatus SyncStatus `gorm:"type:text;default:'none'" json:"syncStatus"`
	SyncError  *string    `gorm:"type:text" json:"syncError,omitempty"`

	// Outbound submission bookkeeping
	RequestOutboundSync bool       `gorm:"type:bool;default:false;index:idx_plays_outbound" json:"requestOutboundSync"`
	SubmittedAt         *time.Time `gorm:"type:timestamp" json:"submittedAt,omitempty"`
	SubmitStatus        SyncStatus `gorm:"type:text;default:'none'" json:"submitStatus"`
	SubmitError         *string    `gorm:"type:text" json:"submitError,omitempty"`

	// Deduplication bookkeeping. LeadingPlayID is a weak back-reference:
	// deleting a leading play must promote or re-point its followers, never
	// cascade to them.
	IsExcluded      bool       `gorm:"type:bool;default:false;index:idx_plays_excluded" json:"isExcluded"`
	LeadingPlayID   *uuid.UUID `gorm:"type:uuid;index:idx_plays_leading" json:"leadingPlayId,omitempty"`
	ExcludedAt      *time.Time `gorm:"type:timestamp" json:"excludedAt,omitempty"`
	ExclusionReason *string    `gorm:"type:text" json:"exclusionReason,omitempty"`

	// Relationships
	BoardGame    *BoardGame        `gorm:"foreignKey:BoardGameID" json:"boardGame,omitempty"`
	Group        *Group            `gorm:"foreignKey:GroupID" json:"group,omitempty"`
	CreatedBy    *User             `gorm:"foreignKey:CreatedByID" json:"createdBy,omitempty"`
	LeadingPlay  *Play             `gorm:"foreignKey:LeadingPlayID" json:"leadingPlay,omitempty"`
	Participants []PlayParticipant `gorm:"foreignKey:PlayID;constraint:OnDelete:CASCADE" json:"participants,omitempty"`
	Expansions   []BoardGame       `gorm:"many2many:play_expansions;" json:"expansions,omitempty"`
}

func (p *Play) BeforeCreate(tx *gorm.DB) (err error) {
	if err := p.BaseUUIDModel.BeforeCreate(tx); err != nil {
		return err
	}
	if p.BoardGameID == uuid.Nil {
		return gorm.ErrInvalidValue
	}
	if p.CreatedByID == uuid.Nil {
		return gorm.ErrInvalidValue
	}
	if p.Source == "" {
		p.Source = PlaySourceLocal
	}
	if p.SyncStatus == "" {
		p.SyncStatus = SyncStatusNone
	}
	if p.SubmitStatus == "" {
		p.SubmitStatus = SyncStatusNone
	}
	p.PlayDate = NormalizePlayDate(p.PlayDate)
	return nil
}

func (p *Play) BeforeUpdate(tx *gorm.DB) (err error) {
	// Map-based batch updates run this hook against a zero-value model; only
	// full-record saves carry fields worth validating.
	if p.ID == uuid.Nil {
		return nil
	}
	if p.BoardGameID == uuid.Nil {
		return gorm.ErrInvalidValue
	}
	p.PlayDate = NormalizePlayDate(p.PlayDate)
	return nil
}

// NormalizePlayDate truncates a timestamp to date granularity in UTC. Play
// dates compare by calendar day, never by time of day.
func NormalizePlayDate(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

func (p *Play) IsFromBGG() bool {
	return p.Source == PlaySourceBGG
}

func (p *Play) HasBGGPlayID() bool {
	return p.BGGPlayID != nil && *p.BGGPlayID > 0
}

// IsGrouped reports whether the play participates in deduplication at all.
// Personal plays (no group) are never merged.
func (p *Play) IsGrouped() bool {
	return p.GroupID != nil && *p.GroupID != uuid.Nil
}

// MarkAsLeading makes the play authoritative for its duplicate set
func (p *Play) MarkAsLeading() {
	p.IsExcluded = false
	p.LeadingPlayID = nil
	p.ExcludedAt = nil
	p.ExclusionReason = nil
}

// MarkAsExcluded hides the play behind the given leading play
func (p *Play) MarkAsExcluded(leadingID uuid.UUID) {
	now := time.Now().UTC()
	reason := fmt.Sprintf("duplicate of play %s", leadingID)
	p.IsExcluded = true
	p.LeadingPlayID = &leadingID
	p.ExcludedAt = &now
	p.ExclusionReason = &reason
}

func (p *Play) MarkAsSynced() {
	now := time.Now().UTC()
	p.SyncStatus = SyncStatusSynced
	p.SyncedAt = &now
	p.SyncError = nil
}

func (p *Play) MarkAsSyncFailed(errorMessage string) {
	p.SyncStatus = SyncStatusFailed
	p.SyncError = &errorMessage
}

func (p *Play) MarkAsSubmitted(bggPlayID int64) {
	now := time.Now().UTC()
	p.BGGPlayID = &bggPlayID
	p.SubmitStatus = SyncStatusSynced
	p.SubmittedAt = &now
	p.SubmitError = nil
}

func (p *Play) MarkAsSubmitFailed(errorMessage string) {
	p.SubmitStatus = SyncStatusFailed
	p.SubmitError = &errorMessage
}

// IdentitySet returns the multiset of participant identity keys, used by the
// deduplication resolver to decide whether two plays describe the same event
func (p *Play) IdentitySet() map[string]int {
	set := make(map[string]int, len(p.Participants))
	for i := range p.Participants {
		identity, err := p.Participants[i].Identity()
		if err != nil {
			continue
		}
		set[identity.Key()]++
	}
	return set
}

// IdentitySetEquals compares two participant identity multisets
func IdentitySetEquals(a, b map[string]int) bool {
	if len(a) != len(b) {
		return false
	}
	for key, count := range a {
		if b[key] != count {
			return false
		}
	}
	return true
}
