package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"strings"
)

var ErrInvalidCredentials = errors.New("auth: invalid credentials")

// User is an operator account from configuration.
type User struct {
	Email    string
	Password string
	Role     string
}

// Directory authenticates the fixed set of configured operators.
type Directory struct {
	users map[string]User
}

// NewDirectory skips users with an empty email or password.
func NewDirectory(users ...User) *Directory {
	d := &Directory{users: make(map[string]User, len(users))}
	for _, u := range users {
		if u.Email == "" || u.Password == "" {
			continue
		}
		d.users[strings.ToLower(u.Email)] = u
	}
	return d
}

// Authenticate compares in constant time and does not reveal whether the email exists.
func (d *Directory) Authenticate(email, password string) (User, error) {
	u, ok := d.users[strings.ToLower(strings.TrimSpace(email))]
	want := u.Password
	if !ok {
		want = "\x00"
	}
	// Digests have equal length, so the compare covers every byte.
	a := sha256.Sum256([]byte(password))
	b := sha256.Sum256([]byte(want))
	if subtle.ConstantTimeCompare(a[:], b[:]) != 1 || !ok {
		return User{}, ErrInvalidCredentials
	}
	return u, nil
}

// Lookup is used by the refresh flow to re-resolve the role.
func (d *Directory) Lookup(email string) (User, bool) {
	u, ok := d.users[strings.ToLower(strings.TrimSpace(email))]
	return u, ok
}
