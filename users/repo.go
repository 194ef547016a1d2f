package users

import "time"

// UserRepo is the identity store consumed by the authorization core.
type UserRepo interface {
	Upsert(user *User) error
	GetByEmail(email string) (*User, error)
	GetByID(id string) (*User, error)
	List(offset, limit int) ([]*User, int, error)
	SetStatus(id string, status AccountStatus) error
	RecordLogin(id string, at time.Time) error
}
