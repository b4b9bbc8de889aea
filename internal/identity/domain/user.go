package domain

import "time"

// User is the minimal account record the identity service needs. Profile
// management lives elsewhere; this service only authenticates and guards.
type User struct {
	ID           string
	Email        string
	Username     string
	PasswordHash string
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
