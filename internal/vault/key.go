package vault

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/99designs/keyring"
	"golang.org/x/crypto/pbkdf2"
)

const (
	keyFileName = ".key"
	keyLen      = 32
	saltLen     = 16
	kdfRounds   = 100_000

	keyringService    = "mailsnag"
	keyringPassphrase = "vault-passphrase"

	// fallbackPassphrase is used when no OS keyring is available. The
	// derived key file is still required to decrypt anything, so a known
	// passphrase alone recovers nothing.
	fallbackPassphrase = "mailsnag-vault"
)

// loadOrCreateKey returns the vault's symmetric key. On first use it
// derives a fresh key with PBKDF2-SHA256 over a random salt and persists it
// base64-encoded with owner-only permissions; afterwards the key file is
// authoritative and reused for the lifetime of the directory. Losing the
// key file makes every stored record unrecoverable.
func loadOrCreateKey(dir string) ([]byte, error) {
	keyPath := filepath.Join(dir, keyFileName)

	if encoded, err := os.ReadFile(keyPath); err == nil {
		key, err := base64.StdEncoding.DecodeString(string(encoded))
		if err != nil {
			return nil, fmt.Errorf("decoding key file: %w", err)
		}
		if len(key) != keyLen {
			return nil, fmt.Errorf("key file holds %d bytes, want %d", len(key), keyLen)
		}
		return key, nil
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("reading key file: %w", err)
	}

	salt := make([]byte, saltLen)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("generating salt: %w", err)
	}

	key := pbkdf2.Key([]byte(passphrase(dir)), salt, kdfRounds, keyLen, sha256.New)

	encoded := base64.StdEncoding.EncodeToString(key)
	if err := writeFileAtomic(keyPath, []byte(encoded), 0o600); err != nil {
		return nil, fmt.Errorf("writing key file: %w", err)
	}
	return key, nil
}

// passphrase returns the key-derivation passphrase. It prefers a random
// per-install secret held in the OS keyring, generating one on first use,
// and falls back to a built-in passphrase when no keyring backend works.
func passphrase(dir string) string {
	ring, err := keyring.Open(keyring.Config{
		ServiceName: keyringService,
		AllowedBackends: []keyring.BackendType{
			keyring.KeychainBackend,
			keyring.SecretServiceBackend,
			keyring.WinCredBackend,
			keyring.PassBackend,
			keyring.FileBackend,
		},
		FileDir:                  filepath.Join(dir, "keyring"),
		FilePasswordFunc:         keyring.FixedStringPrompt("mailsnag-file-key"),
		KeychainTrustApplication: true,
	})
	if err != nil {
		return fallbackPassphrase
	}

	if item, err := ring.Get(keyringPassphrase); err == nil {
		return string(item.Data)
	}

	secret := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, secret); err != nil {
		return fallbackPassphrase
	}
	generated := hex.EncodeToString(secret)

	if err := ring.Set(keyring.Item{Key: keyringPassphrase, Data: []byte(generated)}); err != nil {
		return fallbackPassphrase
	}
	return generated
}
