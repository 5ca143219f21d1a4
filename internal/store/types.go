package store

import "time"

// UserSummary is the display-side projection of a user in occupancy answers.
type UserSummary struct {
	UserID    int64  `json:"userId"`
	FirstName string `json:"firstName"`
	Username  string `json:"username,omitempty"`
}

// PlannedArrival is a user expected at a spot, with the promised UTC instant.
type PlannedArrival struct {
	UserSummary
	ArrivalAt time.Time `json:"arrivalAt"`
}

// Occupancy answers "who is here and who is coming" for one spot.
type Occupancy struct {
	SpotID       int64            `json:"spotId"`
	PresentCount int              `json:"presentCount"`
	Present      []UserSummary    `json:"presentUsers"`
	Planned      []PlannedArrival `json:"plannedUsers"`
}
