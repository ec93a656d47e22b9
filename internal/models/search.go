package models

import "time"

// MaxSearchResults caps donation listing queries.
const MaxSearchResults = 50

// DonationFilter narrows a listing search. Now is the reference time
// for the unexpired check so callers control the clock.
type DonationFilter struct {
	Category string
	Location string
	Query    string
	Limit    int
	Now      time.Time
}

// DonationStats summarizes a user's donation history.
type DonationStats struct {
	Role           string  `json:"role"`
	Total          int64   `json:"total_donations"`
	Completed      int64   `json:"completed_donations"`
	Active         int64   `json:"active_donations"`
	CompletionRate float64 `json:"completion_rate"`
}
