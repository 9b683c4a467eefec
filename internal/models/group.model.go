package models

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Group is a circle of members who log plays together. Plays with a group
// reference are candidates for deduplication; personal plays are not.
type Group struct {
	BaseUUIDModel
	Name        string    `gorm:"type:text;not null;index:idx_groups_name" json:"name"`
	Description string    `gorm:"type:text"                                json:"description"`
	OwnerID     uuid.UUID `gorm:"type:uuid;not null;index:idx_groups_owner" json:"ownerId"`

	Owner   *User  `gorm:"foreignKey:OwnerID"         json:"owner,omitempty"`
	Members []User `gorm:"many2many:group_members;"   json:"members,omitempty"`
	Plays   []Play `gorm:"foreignKey:GroupID"         json:"plays,omitempty"`
}

func (g *Group) BeforeCreate(tx *gorm.DB) error {
	if err := g.BaseUUIDModel.BeforeCreate(tx); err != nil {
		return err
	}
	if g.Name == "" {
		return gorm.ErrInvalidValue
	}
	if g.OwnerID == uuid.Nil {
		return gorm.ErrInvalidValue
	}
	return nil
}
