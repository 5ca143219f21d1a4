package model

import "time"

// CheckInKind partitions the check-in ledger.
type CheckInKind int

const (
	// KindPresent asserts current physical presence at the spot.
	KindPresent CheckInKind = 1
	// KindPlanned records an intent to arrive at ArrivalAt.
	KindPlanned CheckInKind = 2
	// KindAwaiting is a planned record whose arrival time has passed and
	// whose owner has been prompted to confirm. It keeps the row alive for a
	// grace period so the confirm button can still act on the same id.
	KindAwaiting CheckInKind = 3
)

// CheckIn is a ledger record of presence or intent-to-arrive. At most one
// record per user may be active at any instant; the store layer enforces
// this on every insert.
type CheckIn struct {
	ID     int64       `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID int64       `gorm:"index;not null" json:"userId"`
	SpotID int64       `gorm:"index;not null" json:"spotId"`
	Kind   CheckInKind `gorm:"not null" json:"kind"`
	Active bool        `gorm:"index;not null;default:true" json:"active"`
	// CreatedAt is always stored in UTC.
	CreatedAt time.Time `gorm:"not null" json:"createdAt"`
	// DurationHours is set only for present records with a known stay length.
	DurationHours *float64 `json:"durationHours,omitempty"`
	// ArrivalAt is set only for planned/awaiting records, in UTC.
	ArrivalAt *time.Time `json:"arrivalAt,omitempty"`
	// ExpiresAt is the UTC instant after which the record is stale and the
	// reconciler must act on it. Present: CreatedAt + DurationHours, nil when
	// no duration was given. Planned: ArrivalAt. Awaiting: prompt time plus
	// the grace period.
	ExpiresAt *time.Time `gorm:"index" json:"expiresAt,omitempty"`
}

// Pending reports whether the record still awaits an arrival confirmation.
func (c *CheckIn) Pending() bool {
	return c.Kind == KindPlanned || c.Kind == KindAwaiting
}
