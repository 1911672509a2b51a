// Package domain contains entity without logic, just meta-data
package domain

import (
	"errors"
	"strconv"
)

const MaxUsernameLen = 150

var (
	ErrUsernameTooLong = errors.New("username too long")
	ErrUsernameEmpty   = errors.New("username empty")
	ErrInvalidUserID   = errors.New("invalid user id")
)

// UserID is the directory's integer primary key. Valid ids are positive.
type UserID int64

func (id UserID) String() string { return strconv.FormatInt(int64(id), 10) }

// User is a verified identity, immutable for the lifetime of a connection.
// The zero value is the anonymous user.
type User struct {
	ID       UserID `json:"id"`
	Username string `json:"username"`
}

// Anonymous is what an unauthenticated connection resolves to.
var Anonymous = User{}

func NewUser(id UserID, username string) (User, error) {
	if id <= 0 {
		return Anonymous, ErrInvalidUserID
	}
	if len(username) == 0 {
		return Anonymous, ErrUsernameEmpty
	}
	if len(username) > MaxUsernameLen {
		return Anonymous, ErrUsernameTooLong
	}
	return User{ID: id, Username: username}, nil
}

func (u User) Authenticated() bool { return u.ID > 0 }
