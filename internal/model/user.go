package model

import "time"

// User represents a person interacting with the service. The ID is the
// external messaging identity, so users are never autoincremented.
type User struct {
	ID        int64  `gorm:"primaryKey" json:"id"`
	FirstName string `gorm:"size:128;not null" json:"firstName"`
	LastName  string `gorm:"size:128" json:"lastName,omitempty"`
	Username  string `gorm:"size:128" json:"username,omitempty"`
	IsAdmin   bool   `gorm:"not null;default:false" json:"isAdmin"`
	// IANA timezone name used to localize displayed times. Stored values are
	// always valid; unknown zones are normalized to UTC at write time.
	Timezone  string    `gorm:"size:64;not null;default:UTC" json:"timezone"`
	CreatedAt time.Time `gorm:"not null" json:"-"`
	UpdatedAt time.Time `gorm:"not null" json:"-"`
}

// Location resolves the user's timezone, falling back to UTC.
func (u *User) Location() *time.Location {
	loc, err := time.LoadLocation(u.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// DisplayName is the name used in notifications and occupancy listings.
func (u *User) DisplayName() string {
	if u.Username != "" {
		return u.FirstName + " (@" + u.Username + ")"
	}
	return u.FirstName
}
