package store

import "time"

// AuthType distinguishes password accounts from social logins; a user keeps
// the type they registered with.
const (
	AuthRegular = "regular"
	AuthGoogle  = "google"
)

type User struct {
	ID          string
	Email       string
	FirstName   string
	LastName    string
	PhoneNumber string
	Image       string
	AuthType    string
	IsActive    bool
	CreatedAt   time.Time
}

// FullName joins first and last name for token claims.
func (u User) FullName() string {
	if u.LastName == "" {
		return u.FirstName
	}
	return u.FirstName + " " + u.LastName
}
