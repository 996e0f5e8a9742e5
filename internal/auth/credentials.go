package auth

import (
	"crypto/subtle"
	"errors"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// ErrInvalidCredentials is returned when no account matches.
var ErrInvalidCredentials = errors.New("invalid email or password")

// bcryptCost matches the cost used when hashing through the CLI.
const bcryptCost = 12

// Account is one configured sign-in.
type Account struct {
	Email        string
	PasswordHash string
	Role         Role
}

// Credentials checks sign-ins against a fixed set of accounts loaded from
// configuration.
type Credentials struct {
	accounts []Account
	// dummy is compared against when the email is unknown so both paths
	// cost one bcrypt comparison.
	dummy []byte
}

// NewCredentials drops accounts without an email or hash.
func NewCredentials(accounts ...Account) *Credentials {
	var kept []Account
	for _, a := range accounts {
		if a.Email == "" || a.PasswordHash == "" || !a.Role.Valid() {
			continue
		}
		kept = append(kept, a)
	}
	dummy, _ := bcrypt.GenerateFromPassword([]byte("darkroom"), bcrypt.MinCost)
	return &Credentials{accounts: kept, dummy: dummy}
}

// Enabled reports whether any account can sign in.
func (c *Credentials) Enabled() bool { return len(c.accounts) > 0 }

// Authenticate returns the role of the account matching email and password.
func (c *Credentials) Authenticate(email, password string) (Role, error) {
	email = strings.TrimSpace(email)
	for _, a := range c.accounts {
		if subtle.ConstantTimeCompare([]byte(strings.ToLower(a.Email)), []byte(strings.ToLower(email))) != 1 {
			continue
		}
		if bcrypt.CompareHashAndPassword([]byte(a.PasswordHash), []byte(password)) != nil {
			return "", ErrInvalidCredentials
		}
		return a.Role, nil
	}
	_ = bcrypt.CompareHashAndPassword(c.dummy, []byte(password))
	return "", ErrInvalidCredentials
}

// HashPassword returns the bcrypt hash to configure for password.
func HashPassword(password string) (string, error) {
	if len(password) < 8 {
		return "", errors.New("password must be at least 8 characters")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
