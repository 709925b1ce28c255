package auth

import (
	"crypto/subtle"
	"errors"
	"time"

	"golang.org/x/crypto/bcrypt"
)

var ErrInvalidCredentials = errors.New("invalid credentials")

// StaffAuthenticator checks the single configured admin account
type StaffAuthenticator struct {
	username     string
	passwordHash []byte
	tokens       *TokenManager
}

func NewStaffAuthenticator(username, passwordHash string, tokens *TokenManager) *StaffAuthenticator {
	return &StaffAuthenticator{
		username:     username,
		passwordHash: []byte(passwordHash),
		tokens:       tokens,
	}
}

// Login verifies the password against the bcrypt hash and issues a token
func (a *StaffAuthenticator) Login(username, password string) (string, time.Time, error) {
	if a.username == "" || len(a.passwordHash) == 0 {
		return "", time.Time{}, ErrInvalidCredentials
	}
	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(a.username)) == 1
	// always run bcrypt so a wrong username costs the same as a wrong password
	passErr := bcrypt.CompareHashAndPassword(a.passwordHash, []byte(password))
	if !userOK || passErr != nil {
		return "", time.Time{}, ErrInvalidCredentials
	}
	return a.tokens.GenerateToken(username, RoleStaff)
}

// HashPassword produces the value stored in auth.admin_password_hash
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
