package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// User is the read-only view of an account used to decorate feed entries.
// Accounts are owned by the identity service; this service only reads them.
type User struct {
	ID        string    `gorm:"primaryKey;type:varchar(36)" bson:"_id" json:"id"`
	Email     string    `gorm:"uniqueIndex;not null" bson:"email" json:"email"`
	Name      string    `bson:"name" json:"name"`
	Username  string    `gorm:"index" bson:"username" json:"username"`
	Image     string    `bson:"image,omitempty" json:"image,omitempty"`
	Bio       string    `bson:"bio,omitempty" json:"bio,omitempty"`
	CreatedAt time.Time `bson:"createdAt" json:"createdAt"`
	UpdatedAt time.Time `bson:"updatedAt" json:"updatedAt"`
}

// BeforeCreate assigns a UUID when the caller did not supply one.
func (u *User) BeforeCreate(_ *gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	return nil
}
