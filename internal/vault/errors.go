package vault

import (
	"errors"
	"fmt"
)

var (
	// ErrCredentialsNotFound is returned by Load when no credential file
	// exists for the account.
	ErrCredentialsNotFound = errors.New("credentials not found")

	// ErrTokenExpired is returned when a token has expired and cannot be
	// refreshed (no refresh token, or the refresh token was rejected).
	ErrTokenExpired = errors.New("token expired")

	// ErrCorrupted is returned when a credential file cannot be decrypted
	// or parsed: wrong key, tampered file, or format change.
	ErrCorrupted = errors.New("credential file corrupted")
)

// KeyInitError indicates the vault's encryption key could not be created or
// loaded. Nothing works without the key, so callers should treat this as
// fatal for the whole run.
type KeyInitError struct {
	Dir string
	Err error
}

func (e *KeyInitError) Error() string {
	return fmt.Sprintf("initializing vault key in %s: %v", e.Dir, e.Err)
}

func (e *KeyInitError) Unwrap() error { return e.Err }

// AuthorizationError indicates the interactive authorization flow failed
// for an account.
type AuthorizationError struct {
	AccountID string
	Err       error
}

func (e *AuthorizationError) Error() string {
	return fmt.Sprintf("authorizing %s: %v", e.AccountID, e.Err)
}

func (e *AuthorizationError) Unwrap() error { return e.Err }
