package domain

import "time"

// User represents a registered account. Usernames are immutable once created.
type User struct {
	ID           int64
	Username     string
	PasswordHash string
	Email        string
	CreatedAt    time.Time
}
