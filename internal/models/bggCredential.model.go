package models

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// BGGCredential stores a BGG username/password pair for outbound play
// submission. The password is sealed with secretbox before it reaches the
// database; PlaintextPassword never leaves process memory.
//
// A credential is scoped to exactly one owner: a user (their default
// submission identity) or a single play (submit this one play as someone
// else). Precedence between the two scopes during submission is a
// configuration decision.
type BGGCredential struct {
	BaseUUIDModel
	UserID *uuid.UUID `gorm:"type:uuid;uniqueIndex:idx_bgg_credentials_user" json:"userId,omitempty"`
	PlayID *uuid.UUID `gorm:"type:uuid;uniqueIndex:idx_bgg_credentials_play" json:"playId,omitempty"`

	Username       string `gorm:"type:text;not null" json:"username"`
	SealedPassword []byte `gorm:"type:bytea;not null" json:"-"`
	Nonce          []byte `gorm:"type:bytea;not null" json:"-"`

	// Relationships
	User *User `gorm:"foreignKey:UserID" json:"user,omitempty"`
	Play *Play `gorm:"foreignKey:PlayID" json:"play,omitempty"`
}

func (c *BGGCredential) BeforeCreate(tx *gorm.DB) (err error) {
	if err := c.BaseUUIDModel.BeforeCreate(tx); err != nil {
		return err
	}
	if c.Username == "" {
		return gorm.ErrInvalidValue
	}
	if len(c.SealedPassword) == 0 {
		return gorm.ErrInvalidValue
	}

	userScoped := c.UserID != nil && *c.UserID != uuid.Nil
	playScoped := c.PlayID != nil && *c.PlayID != uuid.Nil
	if userScoped == playScoped {
		return gorm.ErrInvalidValue
	}
	return nil
}

// Credential is a plaintext username/password pair, used in memory only
type Credential struct {
	Username string `json:"username"`
	Password string `json:"password"`
}
