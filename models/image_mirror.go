// models/image_mirror.go
package models

import (
	"time"
)

// ImageMirror mirrors image catalog data from the media service. The solution
// coordinates ride along for game creation but are never serialized — players
// only ever see the id and the public URL.
type ImageMirror struct {
	ID        string `gorm:"primaryKey;type:varchar(64);not null" json:"id"`
	Title     string `gorm:"type:text" json:"title,omitempty"`
	PublicURL string `gorm:"type:text;not null" json:"url"`

	// 🔒 Where the photo was actually taken — server-side only
	LatE6 int32 `gorm:"not null" json:"-"`
	LonE6 int32 `gorm:"not null" json:"-"`

	IsActive     bool      `gorm:"not null" json:"is_active"`
	LastSyncedAt time.Time `gorm:"not null" json:"last_synced_at"`
	CreatedAt    time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt    time.Time `gorm:"not null" json:"updated_at"`
}
