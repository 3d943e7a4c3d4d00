package identity

import "time"

// User represents a registered wallet owner. The numeric id doubles as the
// global ordering key for wallet row locks.
type User struct {
	ID           int64
	Username     string
	Email        string
	PasswordHash []byte
	CreatedAt    time.Time
}

// Credentials carry a registration or login request.
type Credentials struct {
	Username string
	Email    string
	Password string
}
