// Package model defines the rows of the five persistent collections and the
// wire field names shared by all three services.
package model

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// User is a registered player. Online is 1 exactly while the lobby holds a
// session for the user.
type User struct {
	ID           int     `json:"id"`
	Name         string  `json:"name"`
	PasswordHash string  `json:"password_hashed"`
	CreatedAt    string  `json:"createdAt"`
	LastLoginAt  *string `json:"lastLoginAt"`
	Online       int     `json:"online"`
}

// Developer is a registered game developer. Developers carry no online flag:
// the developer service is stateless per request.
type Developer struct {
	ID           int    `json:"id"`
	Name         string `json:"name"`
	PasswordHash string `json:"password_hashed"`
	CreatedAt    string `json:"createdAt"`
}

// HashPassword returns the sha-256 hex digest stored in place of passwords.
func HashPassword(password string) string {
	sum := sha256.Sum256([]byte(password))
	return hex.EncodeToString(sum[:])
}

// Timestamp returns the current time in the ISO 8601 form used across the
// catalog.
func Timestamp() string {
	return time.Now().Format("2006-01-02T15:04:05.000000")
}
