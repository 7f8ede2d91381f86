// Package vault encrypts, stores, refreshes, and verifies per-account token
// bundles. Records are encrypted at rest with AES-256-GCM under a single
// key derived once per vault directory; refresh tokens are long-lived
// bearer secrets and are never written in cleartext.
package vault

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"time"
)

const credExt = ".cred"

// TokenRefresher exchanges a record's refresh token for a fresh access
// token at the record's token endpoint.
type TokenRefresher interface {
	Refresh(ctx context.Context, rec Record) (Record, error)
}

// Authenticator runs the interactive authorization-code flow for an account
// and returns a fresh token bundle.
type Authenticator interface {
	Authorize(ctx context.Context, accountID string) (Record, error)
}

// TokenVerifier performs a lightweight round-trip against the remote API to
// confirm a token bundle is currently accepted.
type TokenVerifier interface {
	Check(ctx context.Context, rec Record) error
}

// Vault manages the encrypted credential store for one storage directory.
type Vault struct {
	dir       string
	aead      cipher.AEAD
	refresher TokenRefresher
	auth      Authenticator
	verifier  TokenVerifier
	logger    *log.Logger
	now       func() time.Time
}

// Option configures a Vault.
type Option func(*Vault)

// WithRefresher overrides the token refresher. The default refreshes via
// the record's OAuth2 token endpoint.
func WithRefresher(r TokenRefresher) Option {
	return func(v *Vault) { v.refresher = r }
}

// WithAuthenticator sets the interactive authorization flow collaborator.
func WithAuthenticator(a Authenticator) Option {
	return func(v *Vault) { v.auth = a }
}

// WithVerifier sets the collaborator used by Verify.
func WithVerifier(tv TokenVerifier) Option {
	return func(v *Vault) { v.verifier = tv }
}

// WithLogger sets an optional logger for refresh and key events.
func WithLogger(l *log.Logger) Option {
	return func(v *Vault) { v.logger = l }
}

// WithClock overrides the time source. Intended for tests.
func WithClock(now func() time.Time) Option {
	return func(v *Vault) { v.now = now }
}

// New opens the vault rooted at dir, creating the directory (0700) and the
// encryption key on first use. It returns a *KeyInitError if the directory
// is not writable or the key cannot be created or loaded.
func New(dir string, opts ...Option) (*Vault, error) {
	v := &Vault{
		dir:       dir,
		refresher: oauthRefresher{},
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(v)
	}

	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, &KeyInitError{Dir: dir, Err: err}
	}

	key, err := loadOrCreateKey(dir)
	if err != nil {
		return nil, &KeyInitError{Dir: dir, Err: err}
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, &KeyInitError{Dir: dir, Err: err}
	}
	v.aead, err = cipher.NewGCM(block)
	if err != nil {
		return nil, &KeyInitError{Dir: dir, Err: err}
	}

	return v, nil
}

// Dir returns the vault's storage directory.
func (v *Vault) Dir() string { return v.dir }

// Authenticate runs the interactive authorization flow for the account and
// returns the resulting token bundle without persisting it. Callers decide
// whether to Save.
func (v *Vault) Authenticate(ctx context.Context, accountID string) (Record, error) {
	if v.auth == nil {
		return Record{}, &AuthorizationError{
			AccountID: accountID,
			Err:       errors.New("no authorization flow configured"),
		}
	}

	rec, err := v.auth.Authorize(ctx, accountID)
	if err != nil {
		return Record{}, &AuthorizationError{AccountID: accountID, Err: err}
	}
	rec.AccountID = accountID
	return rec, nil
}

// Save serializes the record, encrypts it, and writes it atomically to the
// per-account credential file with owner-only permissions, replacing any
// existing file for the account.
func (v *Vault) Save(accountID string, rec Record) error {
	rec.AccountID = accountID

	plaintext, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("serializing credentials for %s: %w", accountID, err)
	}

	nonce := make([]byte, v.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return fmt.Errorf("generating nonce: %w", err)
	}
	sealed := v.aead.Seal(nonce, nonce, plaintext, nil)

	if err := writeFileAtomic(v.credPath(accountID), sealed, 0o600); err != nil {
		return fmt.Errorf("writing credentials for %s: %w", accountID, err)
	}
	return nil
}

// Load reads and decrypts the account's record. It does not refresh: the
// returned record may be expired. It returns ErrCredentialsNotFound if no
// file exists and ErrCorrupted if decryption or parsing fails.
func (v *Vault) Load(accountID string) (Record, error) {
	sealed, err := os.ReadFile(v.credPath(accountID))
	if err != nil {
		if os.IsNotExist(err) {
			return Record{}, fmt.Errorf("%w for %s", ErrCredentialsNotFound, accountID)
		}
		return Record{}, fmt.Errorf("reading credentials for %s: %w", accountID, err)
	}

	if len(sealed) < v.aead.NonceSize() {
		return Record{}, fmt.Errorf("%w: file too short", ErrCorrupted)
	}
	nonce, ciphertext := sealed[:v.aead.NonceSize()], sealed[v.aead.NonceSize():]

	plaintext, err := v.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return Record{}, fmt.Errorf("%w: %v", ErrCorrupted, err)
	}

	var rec Record
	if err := json.Unmarshal(plaintext, &rec); err != nil {
		return Record{}, fmt.Errorf("%w: %v", ErrCorrupted, err)
	}
	return rec, nil
}

// RefreshIfExpired refreshes the record via its token endpoint when its
// access token has expired, persisting the updated record before returning
// it. The boolean reports whether a refresh happened. An expired record
// without a refresh token yields ErrTokenExpired.
func (v *Vault) RefreshIfExpired(ctx context.Context, rec Record) (Record, bool, error) {
	if !rec.Expired(v.now()) {
		return rec, false, nil
	}
	if rec.RefreshToken == "" {
		return Record{}, false, fmt.Errorf("%w for %s and no refresh token", ErrTokenExpired, rec.AccountID)
	}

	fresh, err := v.refresher.Refresh(ctx, rec)
	if err != nil {
		if isInvalidGrant(err) {
			return Record{}, false, fmt.Errorf("%w for %s: %v", ErrTokenExpired, rec.AccountID, err)
		}
		return Record{}, false, fmt.Errorf("refreshing token for %s: %w", rec.AccountID, err)
	}
	v.logf("refreshed token for %s (expires %s)", rec.AccountID, fresh.Expiry.Format(time.RFC3339))

	if err := v.Save(rec.AccountID, fresh); err != nil {
		return Record{}, false, err
	}
	return fresh, true, nil
}

// LoadUsable loads the account's record and transparently refreshes and
// re-persists it when expired, so callers always receive a live bundle.
func (v *Vault) LoadUsable(ctx context.Context, accountID string) (Record, error) {
	rec, err := v.Load(accountID)
	if err != nil {
		return Record{}, err
	}
	rec, _, err = v.RefreshIfExpired(ctx, rec)
	return rec, err
}

// Verify reports whether the record is currently accepted by the remote
// API. It never returns an error: any failure, including a missing
// verifier, reads as false.
func (v *Vault) Verify(ctx context.Context, rec Record) bool {
	if v.verifier == nil {
		return false
	}
	return v.verifier.Check(ctx, rec) == nil
}

func (v *Vault) credPath(accountID string) string {
	return filepath.Join(v.dir, accountID+credExt)
}

func (v *Vault) logf(format string, args ...any) {
	if v.logger != nil {
		v.logger.Printf(format, args...)
	}
}

// writeFileAtomic writes data to a temporary file in the target directory
// and renames it into place, so readers never observe a partial write.
func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, perm); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}
