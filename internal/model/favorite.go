package model

import "time"

// Favorite is a subscription edge: the user wants presence notifications for
// the spot. No payload beyond the pair itself.
//
// Favorites are not cascaded on spot deletion; a dangling favorite simply
// never matches on fan-out again.
type Favorite struct {
	UserID    int64     `gorm:"primaryKey" json:"userId"`
	SpotID    int64     `gorm:"primaryKey" json:"spotId"`
	CreatedAt time.Time `gorm:"not null" json:"-"`
}
