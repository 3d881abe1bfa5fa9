package domain

import "time"

// User ID is the Telegram user ID. Balance is whole currency units.
type User struct {
	ID        int64
	FirstName string
	Username  string
	IsAdmin   bool
	Balance   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (u *User) DisplayName() string {
	if u.FirstName != "" {
		return u.FirstName
	}
	if u.Username != "" {
		return "@" + u.Username
	}
	return "某人"
}
