// Package repository persists identity-provider state: identities, refresh
// tokens and password-reset tokens.  The sentinel values below let higher
// layers distinguish failure scenarios without inspecting driver errors.
package repository

import (
	"strings"

	"github.com/pkg/errors"
)

// ErrNotFound is returned when the requested row does not exist.
var ErrNotFound = errors.New("not found")

// ErrEmailExists is returned when an identity with the same normalized email
// already exists.
var ErrEmailExists = errors.New("email already exists")

// ErrTokenInvalid is returned for unknown, revoked, used or expired tokens.
var ErrTokenInvalid = errors.New("token invalid")

// isDuplicate recognises unique-key violations of both supported drivers
// (MySQL error 1062 and SQLite's UNIQUE constraint message).
func isDuplicate(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "1062") || strings.Contains(msg, "unique constraint failed")
}

func normalizeEmail(email string) string { return strings.ToLower(strings.TrimSpace(email)) }
