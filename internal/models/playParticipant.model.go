package models

import (
	"errors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ErrAmbiguousIdentity is returned when a participant does not resolve to
// exactly one of: local user, BGG username, guest name.
var ErrAmbiguousIdentity = errors.New("participant must have exactly one identity")

type IdentityKind string

const (
	IdentityKindUser  IdentityKind = "user"
	IdentityKindBGG   IdentityKind = "bgg"
	IdentityKindGuest IdentityKind = "guest"
)

// ParticipantIdentity is the resolved identity of a participant: exactly one
// kind with its value. Score, position and winner flags are not part of
// identity; two records of the same event may disagree on those.
type ParticipantIdentity struct {
	Kind  IdentityKind
	Value string
}

// Key returns the canonical identity key used for duplicate matching
func (pi ParticipantIdentity) Key() string {
	return string(pi.Kind) + ":" + pi.Value
}

// PlayParticipant is one seat at the table for a play. Participants are
// replaced wholesale on play edit, never patched in place.
type PlayParticipant struct {
	BaseUUIDModel
	PlayID uuid.UUID `gorm:"type:uuid;not null;index:idx_play_participants_play" json:"playId" validate:"required"`

	// Identity: exactly one of the three must be set
	UserID      *uuid.UUID `gorm:"type:uuid;index:idx_play_participants_user" json:"userId,omitempty"`
	BGGUsername *string    `gorm:"type:text" json:"bggUsername,omitempty"`
	GuestName   *string    `gorm:"type:text" json:"guestName,omitempty"`

	Score          *decimal.Decimal `gorm:"type:numeric(10,2)" json:"score,omitempty"`
	IsWinner       bool             `gorm:"type:bool;default:false" json:"isWinner"`
	IsFirstPlay    bool             `gorm:"type:bool;default:false" json:"isFirstPlay"`
	FinishPosition *int             `gorm:"type:int" json:"finishPosition,omitempty"`

	// Relationships
	Play *Play `gorm:"foreignKey:PlayID" json:"play,omitempty"`
	User *User `gorm:"foreignKey:UserID" json:"user,omitempty"`
}

func (p *PlayParticipant) BeforeCreate(tx *gorm.DB) (err error) {
	if err := p.BaseUUIDModel.BeforeCreate(tx); err != nil {
		return err
	}
	if p.PlayID == uuid.Nil {
		return gorm.ErrInvalidValue
	}
	if _, err := p.Identity(); err != nil {
		return err
	}
	return nil
}

// Identity resolves the participant's tagged identity, enforcing the
// exactly-one invariant
func (p *PlayParticipant) Identity() (ParticipantIdentity, error) {
	var identity ParticipantIdentity
	count := 0

	if p.UserID != nil && *p.UserID != uuid.Nil {
		identity = ParticipantIdentity{Kind: IdentityKindUser, Value: p.UserID.String()}
		count++
	}
	if p.BGGUsername != nil && *p.BGGUsername != "" {
		identity = ParticipantIdentity{Kind: IdentityKindBGG, Value: *p.BGGUsername}
		count++
	}
	if p.GuestName != nil && *p.GuestName != "" {
		identity = ParticipantIdentity{Kind: IdentityKindGuest, Value: *p.GuestName}
		count++
	}

	if count != 1 {
		return ParticipantIdentity{}, ErrAmbiguousIdentity
	}
	return identity, nil
}
