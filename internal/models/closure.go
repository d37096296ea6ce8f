package models

import "time"

// Closure marks a whole day when the salon does not take bookings.
type Closure struct {
	Date      time.Time `json:"date"`
	Reason    string    `json:"reason"`
	CreatedAt time.Time `json:"created_at"`
}
